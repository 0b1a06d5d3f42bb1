// Package store is the content-addressed local cache of downloaded package
// archives, keyed by their SHA-256 digest, built on fetch.HTTPClient for
// the actual transfer.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	mmerrors "github.com/mindmaze-labs/mmpack-go/pkg/errors"
	"github.com/mindmaze-labs/mmpack-go/pkg/hash"
	"github.com/mindmaze-labs/mmpack-go/pkg/pkgmeta"
)

// Fetcher downloads a remote resource into destPath, matching
// transaction.Fetcher so the two packages can share one implementation
// (fetch.HTTPClient).
type Fetcher interface {
	Fetch(ctx context.Context, res pkgmeta.RemoteResource, destPath string) error
}

// Cache is a content-addressed directory of downloaded package archives:
// a file is stored under its SumDigest's hex string rather than its
// filename, so two repositories offering byte-identical archives under
// different names share one cache entry.
type Cache struct {
	Dir     string
	Fetcher Fetcher
}

// New returns a Cache rooted at dir, creating it if necessary.
func New(dir string, fetcher Fetcher) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, mmerrors.New("store.New", mmerrors.IO, "", err)
	}
	return &Cache{Dir: dir, Fetcher: fetcher}, nil
}

func (c *Cache) pathFor(digest hash.Digest) string {
	return filepath.Join(c.Dir, digest.String()+".mpk")
}

// Has reports whether pkg's archive is already present and matches its
// recorded digest.
func (c *Cache) Has(pkg *pkgmeta.Record) bool {
	path := c.pathFor(pkg.SumDigest)
	got, err := hash.File(path)
	return err == nil && got == pkg.SumDigest
}

// Fetch returns the local path to pkg's archive, downloading it from the
// first reachable remote resource if it is not already cached or the
// cached copy fails its digest check. Remote resources are tried in the
// order given, matching repo-preference ordering.
func (c *Cache) Fetch(ctx context.Context, pkg *pkgmeta.Record) (string, error) {
	path := c.pathFor(pkg.SumDigest)

	if c.Has(pkg) {
		return path, nil
	}

	if len(pkg.Remotes) == 0 {
		return "", mmerrors.New("store.Fetch", mmerrors.NotFound, pkg.Name, fmt.Errorf("no remote resource available for %s", pkg.Name))
	}

	var lastErr error
	for _, res := range pkg.Remotes {
		if err := c.Fetcher.Fetch(ctx, res, path); err != nil {
			lastErr = err
			continue
		}

		got, err := hash.File(path)
		if err != nil {
			lastErr = err
			continue
		}
		if got != pkg.SumDigest {
			os.Remove(path)
			lastErr = mmerrors.New("store.Fetch", mmerrors.BadDigest, pkg.Name, fmt.Errorf("downloaded archive for %s does not match recorded digest", pkg.Name))
			continue
		}

		return path, nil
	}

	return "", mmerrors.New("store.Fetch", mmerrors.Network, pkg.Name, lastErr)
}

// Purge removes every cached archive, the Go equivalent of clearing
// var/cache/mmpack/pkgs.
func (c *Cache) Purge() error {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return mmerrors.New("store.Purge", mmerrors.IO, "", err)
	}
	for _, e := range entries {
		os.Remove(filepath.Join(c.Dir, e.Name()))
	}
	return nil
}
