package repoindex

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	mmerrors "github.com/mindmaze-labs/mmpack-go/pkg/errors"
)

// Repository is one configured package source: a name, a base URL used both
// to resolve archive downloads and, when IndexBranch is set, to
// shallow-clone the repository's index.
type Repository struct {
	Name        string
	URL         string
	IndexBranch string // non-empty: sync via git clone (SyncGit); empty: plain HTTP GET (SyncHTTP)
}

// Downloader streams url's body to w, satisfied by fetch.HTTPClient.Download.
type Downloader interface {
	Download(ctx context.Context, url string, w io.Writer) error
}

func indexPath(cacheDir string, repo Repository) string {
	return filepath.Join(cacheDir, "binindex.yaml."+repo.Name)
}

// SyncGit refreshes cacheDir/binindex.yaml.<name> by shallow-cloning
// repo.URL's IndexBranch and copying out its binindex.yaml, generalized
// from one hardcoded registry clone to the index file of any git-hosted
// repository. A single-branch, depth-1 clone is used since only the tip
// of the index branch is ever needed.
func SyncGit(cacheDir string, repo Repository) error {
	tempDir, err := os.MkdirTemp("", "mmpack-index-*")
	if err != nil {
		return mmerrors.New("repoindex.SyncGit", mmerrors.IO, repo.Name, err)
	}
	defer os.RemoveAll(tempDir)

	_, err = git.PlainClone(tempDir, false, &git.CloneOptions{
		URL:           repo.URL,
		ReferenceName: plumbing.NewBranchReferenceName(repo.IndexBranch),
		SingleBranch:  true,
		Depth:         1,
	})
	if err != nil {
		return mmerrors.New("repoindex.SyncGit", mmerrors.Network, repo.Name, fmt.Errorf("git clone: %w", err))
	}

	src := filepath.Join(tempDir, "binindex.yaml")
	in, err := os.Open(src)
	if err != nil {
		return mmerrors.New("repoindex.SyncGit", mmerrors.NotFound, repo.Name, fmt.Errorf("cloned repository has no binindex.yaml: %w", err))
	}
	defer in.Close()

	out, err := os.Create(indexPath(cacheDir, repo))
	if err != nil {
		return mmerrors.New("repoindex.SyncGit", mmerrors.IO, repo.Name, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return mmerrors.New("repoindex.SyncGit", mmerrors.IO, repo.Name, err)
	}
	return nil
}

// SyncHTTP refreshes cacheDir/binindex.yaml.<name> by GETting
// repo.URL+"/binindex.yaml" through dl, the plain-file-server counterpart
// of SyncGit for a repository with no IndexBranch configured.
func SyncHTTP(ctx context.Context, cacheDir string, repo Repository, dl Downloader) error {
	out, err := os.Create(indexPath(cacheDir, repo))
	if err != nil {
		return mmerrors.New("repoindex.SyncHTTP", mmerrors.IO, repo.Name, err)
	}
	defer out.Close()

	if err := dl.Download(ctx, repo.URL+"/binindex.yaml", out); err != nil {
		return mmerrors.New("repoindex.SyncHTTP", mmerrors.Network, repo.Name, err)
	}
	return nil
}
