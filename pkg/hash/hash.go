// Package hash computes and encodes the SHA-256 digests mmpack uses to
// identify package archives and verify installed files, grounded on
// crypto.c's hexstr_from_digest/digest_from_hexstr/sha_file_compute.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	mmerrors "github.com/mindmaze-labs/mmpack-go/pkg/errors"
)

// EntryType distinguishes a regular file digest from a symlink-target
// digest, matching the "reg-"/"sym-" prefix convention used in sum-files.
type EntryType string

const (
	Regular EntryType = "reg"
	Symlink EntryType = "sym"
)

// Digest is a raw SHA-256 digest, the Go equivalent of crypto.h's digest_t.
type Digest [sha256.Size]byte

// String renders the digest as lowercase hex, the Go equivalent of
// hexstr_from_digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// FromHex parses a 64-character lowercase/uppercase hex string back into a
// Digest, the Go equivalent of digest_from_hexstr.
func FromHex(s string) (Digest, error) {
	var d Digest
	if len(s) != hex.EncodedLen(len(d)) {
		return d, mmerrors.New("hash.FromHex", mmerrors.BadFormat, "", fmt.Errorf("invalid hex digest length %d", len(s)))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, mmerrors.New("hash.FromHex", mmerrors.BadFormat, "", err)
	}
	copy(d[:], b)
	return d, nil
}

// TypedHash is the "reg-<hex>" / "sym-<hex>" string form stored in sum-files
// and remote-resource records.
type TypedHash struct {
	Type   EntryType
	Digest Digest
}

func (t TypedHash) String() string {
	return fmt.Sprintf("%s-%s", t.Type, t.Digest)
}

// ParseTypedHash parses a "reg-<hex>" or "sym-<hex>" string.
func ParseTypedHash(s string) (TypedHash, error) {
	if len(s) < 5 || s[3] != '-' {
		return TypedHash{}, mmerrors.New("hash.ParseTypedHash", mmerrors.BadFormat, "", fmt.Errorf("malformed typed hash %q", s))
	}
	typ := EntryType(s[:3])
	if typ != Regular && typ != Symlink {
		return TypedHash{}, mmerrors.New("hash.ParseTypedHash", mmerrors.BadFormat, "", fmt.Errorf("unknown hash type %q", s[:3]))
	}
	d, err := FromHex(s[4:])
	if err != nil {
		return TypedHash{}, err
	}
	return TypedHash{Type: typ, Digest: d}, nil
}

// File computes the SHA-256 digest of the named regular file, the Go
// equivalent of sha_file_compute.
func File(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, mmerrors.New("hash.File", mmerrors.IO, path, err)
	}
	defer f.Close()
	return Stream(f)
}

// Stream computes the SHA-256 digest of everything read from r.
func Stream(r io.Reader) (Digest, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return Digest{}, mmerrors.New("hash.Stream", mmerrors.IO, "", err)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// SymlinkTarget computes the SHA-256 digest of a symlink's target string,
// the Go equivalent of sha_symlink_compute.
func SymlinkTarget(path string) (Digest, error) {
	target, err := os.Readlink(path)
	if err != nil {
		return Digest{}, mmerrors.New("hash.SymlinkTarget", mmerrors.IO, path, err)
	}
	return Digest(sha256.Sum256([]byte(target))), nil
}
