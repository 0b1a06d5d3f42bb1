package hash

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "foo.txt")
	if err := os.WriteFile(path, []byte("hello mmpack"), 0644); err != nil {
		t.Fatal(err)
	}

	d1, err := File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	d2, err := File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if d1 != d2 {
		t.Errorf("hashing the same file twice gave different digests")
	}

	parsed, err := FromHex(d1.String())
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	if parsed != d1 {
		t.Errorf("FromHex(d.String()) != d")
	}
}

func TestFileMutationChangesDigest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "foo.txt")
	if err := os.WriteFile(path, []byte("version one"), 0644); err != nil {
		t.Fatal(err)
	}
	before, err := File(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("version two"), 0644); err != nil {
		t.Fatal(err)
	}
	after, err := File(path)
	if err != nil {
		t.Fatal(err)
	}

	if before == after {
		t.Errorf("digest did not change after file content changed")
	}
}

func TestFromHexRejectsBadLength(t *testing.T) {
	if _, err := FromHex("deadbeef"); err == nil {
		t.Errorf("expected error for short hex string")
	}
}

func TestTypedHashRoundTrip(t *testing.T) {
	d, err := Stream(strings.NewReader("some data"))
	if err != nil {
		t.Fatal(err)
	}
	th := TypedHash{Type: Regular, Digest: d}

	parsed, err := ParseTypedHash(th.String())
	if err != nil {
		t.Fatalf("ParseTypedHash: %v", err)
	}
	if parsed != th {
		t.Errorf("ParseTypedHash(th.String()) != th")
	}
	if !strings.HasPrefix(th.String(), "reg-") {
		t.Errorf("expected reg- prefix, got %q", th.String())
	}
}

func TestParseTypedHashRejectsUnknownType(t *testing.T) {
	d, _ := Stream(strings.NewReader("x"))
	bogus := "xyz-" + d.String()
	if _, err := ParseTypedHash(bogus); err == nil {
		t.Errorf("expected error for unknown hash type prefix")
	}
}

func TestSymlinkDigest(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	if err := os.WriteFile(target, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink("target.txt", link); err != nil {
		t.Skipf("symlinks unsupported on this platform: %v", err)
	}

	d, err := SymlinkTarget(link)
	if err != nil {
		t.Fatalf("SymlinkTarget: %v", err)
	}
	want, err := Stream(strings.NewReader("target.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if d != want {
		t.Errorf("Symlink digest should hash the link target string, not its contents")
	}
}
