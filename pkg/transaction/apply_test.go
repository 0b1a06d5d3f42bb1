package transaction

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mindmaze-labs/mmpack-go/pkg/hash"
	"github.com/mindmaze-labs/mmpack-go/pkg/installstate"
	"github.com/mindmaze-labs/mmpack-go/pkg/pkgmeta"
	"github.com/mindmaze-labs/mmpack-go/pkg/plan"
)

// buildArchive writes a tar archive (uncompressed) containing the given
// name->content entries, each stored with a "./" prefix the way mmpack
// archives do.
func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		hdr := &tar.Header{
			Name: "./" + name,
			Mode: 0644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tw.Close: %v", err)
	}
	return buf.Bytes()
}

// stubFetcher "fetches" a resource by writing a pre-built archive's bytes to
// destPath, simulating a successful download.
type stubFetcher struct {
	archive []byte
}

func (s *stubFetcher) Fetch(ctx context.Context, res pkgmeta.RemoteResource, destPath string) error {
	return os.WriteFile(destPath, s.archive, 0644)
}

func newTestRecord(name, version string) *pkgmeta.Record {
	r := &pkgmeta.Record{Name: name, Version: version}
	r.AddRemoteResource(pkgmeta.RemoteResource{Repo: "test", Filename: name + "-" + version + ".mpk"})
	return r
}

// scenario 4: archive contains ./bin/tool and ./MMPACK/info; after apply,
// bin/tool exists, MMPACK/info does not, and the sum-file lists bin/tool
// with the correct reg-<hex> value.
func TestInstallStripsMetadataAndWritesSumFile(t *testing.T) {
	prefix := t.TempDir()
	archiveBytes := buildArchive(t, map[string]string{
		"bin/tool":    "#!/bin/sh\necho hi\n",
		"MMPACK/info": "name: pkg-a\n",
	})

	pkg := newTestRecord("pkg-a", "0.0.1")
	a := &Applier{PrefixRoot: prefix, Fetcher: &stubFetcher{archive: archiveBytes}}

	installed := installstate.New()
	manual := installstate.NewManuallyInstalled()
	p := &plan.Plan{Actions: []plan.Action{{Kind: plan.Install, Pkg: pkg}}}

	if err := a.Apply(context.Background(), p, installed, manual); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, err := os.Stat(filepath.Join(prefix, "bin", "tool")); err != nil {
		t.Errorf("expected bin/tool to exist after install: %v", err)
	}
	if _, err := os.Stat(filepath.Join(prefix, "MMPACK", "info")); !os.IsNotExist(err) {
		t.Errorf("expected MMPACK/info to not exist after install, stat err = %v", err)
	}

	sumPath := filepath.Join(prefix, "var", "lib", "mmpack", "metadata", "pkg-a.sha256sums")
	entries, err := installstate.ReadSumFile(sumPath)
	if err != nil {
		t.Fatalf("ReadSumFile: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "bin/tool" {
		t.Fatalf("expected sum-file to list exactly bin/tool, got %+v", entries)
	}
	if entries[0].Hash.Type != hash.Regular {
		t.Errorf("expected a regular-file hash entry, got type %q", entries[0].Hash.Type)
	}

	wantDigest, err := hash.File(filepath.Join(prefix, "bin", "tool"))
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].Hash.Digest != wantDigest {
		t.Errorf("sum-file digest does not match the installed file's actual hash")
	}

	if installed.Get("pkg-a") != pkg {
		t.Errorf("expected pkg-a to be recorded as installed")
	}
}

// scenario 6: remove pkg-a whose sum-file lists bin/tool and
// share/pkg-a/data.txt: both files are unlinked, share/pkg-a is removed, but
// the non-empty share/ directory is left alone.
func TestRemoveUnlinksFilesAndPrunesOnlyEmptyDirs(t *testing.T) {
	prefix := t.TempDir()

	mustMkdirAll(t, filepath.Join(prefix, "bin"))
	mustMkdirAll(t, filepath.Join(prefix, "share", "pkg-a"))
	mustMkdirAll(t, filepath.Join(prefix, "share", "other-pkg"))
	mustWriteFile(t, filepath.Join(prefix, "bin", "tool"), "tool")
	mustWriteFile(t, filepath.Join(prefix, "share", "pkg-a", "data.txt"), "data")
	mustWriteFile(t, filepath.Join(prefix, "share", "other-pkg", "keep.txt"), "keep")

	toolDigest, err := hash.File(filepath.Join(prefix, "bin", "tool"))
	if err != nil {
		t.Fatal(err)
	}
	dataDigest, err := hash.File(filepath.Join(prefix, "share", "pkg-a", "data.txt"))
	if err != nil {
		t.Fatal(err)
	}

	metaDir := filepath.Join(prefix, "var", "lib", "mmpack", "metadata")
	mustMkdirAll(t, metaDir)
	sumPath := filepath.Join(metaDir, "pkg-a.sha256sums")
	err = installstate.WriteSumFile(sumPath, []installstate.SumEntry{
		{Path: "bin/tool", Hash: hash.TypedHash{Type: hash.Regular, Digest: toolDigest}},
		{Path: "share/pkg-a/data.txt", Hash: hash.TypedHash{Type: hash.Regular, Digest: dataDigest}},
	})
	if err != nil {
		t.Fatalf("WriteSumFile: %v", err)
	}

	pkg := newTestRecord("pkg-a", "0.0.1")
	a := &Applier{PrefixRoot: prefix}
	installed := installstate.New()
	installed.Add(pkg)
	manual := installstate.NewManuallyInstalled()
	manual.Add("pkg-a")

	p := &plan.Plan{Actions: []plan.Action{{Kind: plan.Remove, Pkg: pkg}}}
	if err := a.Apply(context.Background(), p, installed, manual); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, err := os.Stat(filepath.Join(prefix, "bin", "tool")); !os.IsNotExist(err) {
		t.Errorf("expected bin/tool to be removed, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(prefix, "share", "pkg-a", "data.txt")); !os.IsNotExist(err) {
		t.Errorf("expected share/pkg-a/data.txt to be removed, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(prefix, "share", "pkg-a")); !os.IsNotExist(err) {
		t.Errorf("expected share/pkg-a to be rmdir-ed once empty")
	}
	if _, err := os.Stat(filepath.Join(prefix, "share")); err != nil {
		t.Errorf("expected share/ to survive since share/other-pkg still has files: %v", err)
	}
	if _, err := os.Stat(filepath.Join(prefix, "share", "other-pkg", "keep.txt")); err != nil {
		t.Errorf("expected unrelated package's files to be untouched: %v", err)
	}

	if installed.Get("pkg-a") != nil {
		t.Errorf("expected pkg-a to be dropped from the installed set")
	}
	if manual.Contains("pkg-a") {
		t.Errorf("expected pkg-a to be dropped from the manually-installed set")
	}
}

func TestUpgradeReplacesFilesAndRewritesSumFile(t *testing.T) {
	prefix := t.TempDir()
	oldArchive := buildArchive(t, map[string]string{"bin/tool": "old version"})
	newArchive := buildArchive(t, map[string]string{"bin/tool": "new version", "bin/extra": "extra"})

	oldPkg := newTestRecord("pkg-a", "1.0")
	newPkg := newTestRecord("pkg-a", "2.0")

	installed := installstate.New()
	manual := installstate.NewManuallyInstalled()

	installA := &Applier{PrefixRoot: prefix, Fetcher: &stubFetcher{archive: oldArchive}}
	installP := &plan.Plan{Actions: []plan.Action{{Kind: plan.Install, Pkg: oldPkg}}}
	if err := installA.Apply(context.Background(), installP, installed, manual); err != nil {
		t.Fatalf("initial install Apply: %v", err)
	}

	upgradeA := &Applier{PrefixRoot: prefix, Fetcher: &stubFetcher{archive: newArchive}}
	upgradeP := &plan.Plan{Actions: []plan.Action{{Kind: plan.Upgrade, Pkg: newPkg, OldPkg: oldPkg}}}
	if err := upgradeA.Apply(context.Background(), upgradeP, installed, manual); err != nil {
		t.Fatalf("upgrade Apply: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(prefix, "bin", "tool"))
	if err != nil {
		t.Fatalf("reading bin/tool after upgrade: %v", err)
	}
	if string(content) != "new version" {
		t.Errorf("expected bin/tool to contain the new version's content, got %q", content)
	}
	if _, err := os.Stat(filepath.Join(prefix, "bin", "extra")); err != nil {
		t.Errorf("expected bin/extra (new in this version) to exist: %v", err)
	}

	sumPath := filepath.Join(prefix, "var", "lib", "mmpack", "metadata", "pkg-a.sha256sums")
	entries, err := installstate.ReadSumFile(sumPath)
	if err != nil {
		t.Fatalf("ReadSumFile after upgrade: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected the rewritten sum-file to list both files, got %+v", entries)
	}

	if installed.Get("pkg-a") != newPkg {
		t.Errorf("expected installed set to point at the new record after upgrade")
	}
}

func mustMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatal(err)
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}
