package store

import (
	"context"
	"fmt"
	"io"
	"os"

	mmerrors "github.com/mindmaze-labs/mmpack-go/pkg/errors"
	"github.com/mindmaze-labs/mmpack-go/pkg/hash"
	"github.com/mindmaze-labs/mmpack-go/pkg/pkgmeta"
)

// ResourceFetcher adapts a Cache to the transaction applier's per-resource
// Fetch(ctx, res, destPath) contract, content-addressing every download
// through the cache before copying it to destPath: a second install of an
// archive already proven to match its digest (from an earlier install, a
// reinstall during fix-broken, or another repository offering the same
// build) is served from Dir instead of refetched, the Go equivalent of the
// original's "skip download if the cached file's sha256 already matches"
// policy in download.c, generalized from one hardcoded cache path per
// package to Cache's digest-keyed layout.
type ResourceFetcher struct {
	Cache *Cache
}

// Fetch satisfies transaction.Fetcher: it downloads res into the cache under its own digest if not
// already present there with a matching hash, then copies the cached file
// to destPath.
func (f *ResourceFetcher) Fetch(ctx context.Context, res pkgmeta.RemoteResource, destPath string) error {
	cached := f.Cache.pathFor(res.SHA256)

	if got, err := hash.File(cached); err != nil || got != res.SHA256 {
		if f.Cache.Fetcher == nil {
			return mmerrors.New("store.ResourceFetcher.Fetch", mmerrors.Internal, res.Filename, fmt.Errorf("cache has no underlying fetcher configured"))
		}
		if err := f.Cache.Fetcher.Fetch(ctx, res, cached); err != nil {
			return err
		}
		got, err := hash.File(cached)
		if err != nil {
			return mmerrors.New("store.ResourceFetcher.Fetch", mmerrors.IO, res.Filename, err)
		}
		if got != res.SHA256 {
			os.Remove(cached)
			return mmerrors.New("store.ResourceFetcher.Fetch", mmerrors.BadDigest, res.Filename, fmt.Errorf("downloaded archive for %s does not match recorded digest", res.Filename))
		}
	}

	return copyFile(cached, destPath)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return mmerrors.New("store.copyFile", mmerrors.IO, src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return mmerrors.New("store.copyFile", mmerrors.IO, dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return mmerrors.New("store.copyFile", mmerrors.IO, dst, err)
	}
	return nil
}
