package installstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mindmaze-labs/mmpack-go/pkg/hash"
	"github.com/mindmaze-labs/mmpack-go/pkg/pkgmeta"
)

func TestStoreAddGetRemove(t *testing.T) {
	s := New()
	pkg := &pkgmeta.Record{Name: "foo", Version: "1.0"}
	s.Add(pkg)

	if got := s.Get("foo"); got != pkg {
		t.Fatalf("expected Get to return the added record")
	}
	if s.Len() != 1 {
		t.Fatalf("expected Len() == 1, got %d", s.Len())
	}

	s.Remove("foo")
	if s.Get("foo") != nil {
		t.Fatalf("expected foo to be removed")
	}
	if s.Len() != 0 {
		t.Fatalf("expected Len() == 0 after removal, got %d", s.Len())
	}
}

func TestStoreRemoveUnknownIsNoOp(t *testing.T) {
	s := New()
	s.Remove("does-not-exist")
	if s.Len() != 0 {
		t.Fatalf("expected removing an unknown name to be a no-op")
	}
}

func TestStoreCloneIsIndependent(t *testing.T) {
	s := New()
	s.Add(&pkgmeta.Record{Name: "foo", Version: "1.0"})

	clone := s.Clone()
	clone.Add(&pkgmeta.Record{Name: "bar", Version: "1.0"})

	if s.Get("bar") != nil {
		t.Errorf("mutating a clone should not affect the original Store")
	}
	if clone.Get("foo") == nil {
		t.Errorf("clone should retain entries present at clone time")
	}
}

func TestStoreNamesSorted(t *testing.T) {
	s := New()
	s.Add(&pkgmeta.Record{Name: "zeta", Version: "1.0"})
	s.Add(&pkgmeta.Record{Name: "alpha", Version: "1.0"})
	s.Add(&pkgmeta.Record{Name: "mid", Version: "1.0"})

	got := s.Names()
	want := []string{"alpha", "mid", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("expected %d names, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: want %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSaveInstalledThenLoadInstalledRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "installed.yaml")

	s := New()
	s.Add(&pkgmeta.Record{
		Name: "foo", Version: "1.0",
		Depends: []pkgmeta.DepSpec{{Name: "bar", MinVersion: pkgmeta.AnyVersion, MaxVersion: pkgmeta.AnyVersion}},
	})

	if err := SaveInstalled(path, s); err != nil {
		t.Fatalf("SaveInstalled: %v", err)
	}

	loaded, err := LoadInstalled(path)
	if err != nil {
		t.Fatalf("LoadInstalled: %v", err)
	}
	if loaded.Len() != 1 {
		t.Fatalf("expected 1 loaded record, got %d", loaded.Len())
	}
	got := loaded.Get("foo")
	if got == nil || got.Version != "1.0" {
		t.Fatalf("expected to load back foo 1.0, got %+v", got)
	}
}

func TestLoadInstalledMissingFileYieldsEmptyStore(t *testing.T) {
	s, err := LoadInstalled(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadInstalled on a missing file should not error, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected an empty Store for a missing installed-list")
	}
}

func TestManuallyInstalledRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manually-installed.txt")

	m := NewManuallyInstalled()
	m.Add("foo")
	m.Add("bar")

	if err := SaveManuallyInstalled(path, m); err != nil {
		t.Fatalf("SaveManuallyInstalled: %v", err)
	}

	loaded, err := LoadManuallyInstalled(path)
	if err != nil {
		t.Fatalf("LoadManuallyInstalled: %v", err)
	}
	if !loaded.Contains("foo") || !loaded.Contains("bar") {
		t.Fatalf("expected both foo and bar to round-trip, got %v", loaded.Names())
	}
	if len(loaded.Names()) != 2 {
		t.Fatalf("expected exactly 2 names, got %v", loaded.Names())
	}
}

func TestManuallyInstalledRemove(t *testing.T) {
	m := NewManuallyInstalled()
	m.Add("foo")
	m.Remove("foo")
	if m.Contains("foo") {
		t.Errorf("expected foo to be removed from the manually-installed set")
	}
	m.Remove("never-added")
}

func TestLoadManuallyInstalledMissingFileYieldsEmptySet(t *testing.T) {
	m, err := LoadManuallyInstalled(filepath.Join(t.TempDir(), "missing.txt"))
	if err != nil {
		t.Fatalf("expected no error for a missing file, got %v", err)
	}
	if len(m.Names()) != 0 {
		t.Fatalf("expected an empty set for a missing manually-installed file")
	}
}

func TestSumFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "foo.sha256sums")

	var d hash.Digest
	d[0] = 0xab
	entries := []SumEntry{
		{Path: "bin/tool", Hash: hash.TypedHash{Type: hash.Regular, Digest: d}},
		{Path: "lib/libfoo.so", Hash: hash.TypedHash{Type: hash.Symlink, Digest: d}},
	}

	if err := WriteSumFile(path, entries); err != nil {
		t.Fatalf("WriteSumFile: %v", err)
	}

	got, err := ReadSumFile(path)
	if err != nil {
		t.Fatalf("ReadSumFile: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("expected %d entries, got %d", len(entries), len(got))
	}
	for i := range entries {
		if got[i] != entries[i] {
			t.Errorf("entry %d: want %+v, got %+v", i, entries[i], got[i])
		}
	}
}

func TestReadSumFileRejectsMalformedLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.sha256sums")
	if err := os.WriteFile(path, []byte("this line has no separator\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSumFile(path); err == nil {
		t.Errorf("expected an error for a malformed sum-file line")
	}
}
