package sysdep

import (
	"os"
	"path/filepath"
	"testing"
)

const statusFixture = `Package: libfoo
Status: install ok installed
Version: 1.0

Package: libbar
Status: deinstall ok config-files
Version: 2.0

Package: libbaz
Status: install ok installed
Version: 3.0
`

func writeStatus(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "status")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDpkgProberMissing(t *testing.T) {
	path := writeStatus(t, statusFixture)
	p := &DpkgProber{StatusPath: path}

	missing, err := p.Missing([]string{"libfoo", "libbar", "libbaz", "libquux"})
	if err != nil {
		t.Fatalf("Missing: %v", err)
	}

	want := map[string]bool{"libbar": true, "libquux": true}
	if len(missing) != len(want) {
		t.Fatalf("expected %d missing packages, got %v", len(want), missing)
	}
	for _, name := range missing {
		if !want[name] {
			t.Errorf("unexpected name reported missing: %q", name)
		}
	}
}

func TestDpkgProberMissingFileYieldsAllMissing(t *testing.T) {
	p := &DpkgProber{StatusPath: filepath.Join(t.TempDir(), "no-such-status")}

	missing, err := p.Missing([]string{"libfoo"})
	if err != nil {
		t.Fatalf("Missing with no status file present should not error, got %v", err)
	}
	if len(missing) != 1 || missing[0] != "libfoo" {
		t.Fatalf("expected libfoo reported missing, got %v", missing)
	}
}

func TestCheckerCheckInstalled(t *testing.T) {
	path := writeStatus(t, statusFixture)
	c := &Checker{Prober: &DpkgProber{StatusPath: path}}

	if err := c.CheckInstalled([]string{"libfoo", "libbaz"}); err != nil {
		t.Errorf("expected no error when all sysdeps are installed, got %v", err)
	}

	if err := c.CheckInstalled([]string{"libfoo", "libbar"}); err == nil {
		t.Errorf("expected an error when a sysdep (libbar) is not installed")
	}
}

func TestCheckerNilProberIsNoOp(t *testing.T) {
	c := &Checker{}
	if err := c.CheckInstalled([]string{"anything"}); err != nil {
		t.Errorf("a Checker with no Prober should be a no-op, got %v", err)
	}
}

func TestRegistryResolve(t *testing.T) {
	dir := t.TempDir()
	toml := "name = \"curl\"\n\n[backend]\ndpkg = \"libcurl4\"\npacman = \"mingw-w64-x86_64-curl\"\n"
	if err := os.WriteFile(filepath.Join(dir, "curl.toml"), []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry(dir)

	if got := r.Resolve("curl", "dpkg"); got != "libcurl4" {
		t.Errorf("Resolve(curl, dpkg) = %q, want libcurl4", got)
	}
	if got := r.Resolve("curl", "pacman"); got != "mingw-w64-x86_64-curl" {
		t.Errorf("Resolve(curl, pacman) = %q, want mingw-w64-x86_64-curl", got)
	}
	if got := r.Resolve("unmapped", "dpkg"); got != "unmapped" {
		t.Errorf("Resolve for an unmapped name should fall back to the name itself, got %q", got)
	}
}
