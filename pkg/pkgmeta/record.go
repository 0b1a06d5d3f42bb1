package pkgmeta

import "github.com/mindmaze-labs/mmpack-go/pkg/hash"

// Flags mirrors binpkg.h's MMPKG_FLAGS_* bitmask.
type Flags int

const (
	// FlagGhost marks a record for a package that is referenced (as a
	// dependency, or as formerly installed) but not provided by any
	// configured repository, the Go equivalent of MMPKG_FLAGS_GHOST.
	FlagGhost Flags = 1 << iota
)

// DepSpec is a dependency requirement on a named package within a version
// range. Both MinVersion and MaxVersion are inclusive; AnyVersion on either
// side means unconstrained. The "pkg (= ver)" constraint from the
// repository index grammar is represented by MinVersion == MaxVersion ==
// ver, which Satisfies treats as an exact match.
type DepSpec struct {
	Name       string
	MinVersion string
	MaxVersion string
}

// Satisfies reports whether version v of the named package satisfies this
// dependency spec's range.
func (d DepSpec) Satisfies(v string) bool {
	if d.MinVersion != AnyVersion && d.MinVersion == d.MaxVersion {
		return CompareVersions(v, d.MinVersion) == 0
	}
	return VersionInRange(v, d.MinVersion, d.MaxVersion)
}

// RemoteResource is one repository's copy of a package archive, the Go
// equivalent of struct remote_resource. A Record can be provided by several
// repositories at once; binindex_add_pkgindex merges these into the
// existing Record for the same (name, version, digest) rather than
// duplicating the Record.
type RemoteResource struct {
	Repo     string
	Filename string
	SHA256   hash.Digest
	Size     int64
}

// Record is one (name, version) entry of the binary index, the Go
// equivalent of struct binpkg.
type Record struct {
	NameID  int32
	Name    string
	Version string
	Source  string
	Desc    string

	// SumDigest identifies the installed-files manifest (sum-file) of
	// this exact build; two Records with the same SumDigest are the same
	// build even if retrieved from different repositories, and their
	// RemoteResources are merged rather than kept as separate Records
	// (binindex_add_pkgindex's "identical digest" merge).
	SumDigest hash.Digest
	SrcDigest hash.Digest

	Remotes []RemoteResource

	Flags Flags

	Depends    []DepSpec
	SysDepends []string
}

// IsGhost reports whether this Record is a placeholder for a package that
// is referenced but not provided by any configured repository.
func (r *Record) IsGhost() bool {
	return r.Flags&FlagGhost != 0
}

// IsAvailable reports whether this Record can be fetched from at least one
// configured repository, the Go equivalent of binpkg_is_available.
func (r *Record) IsAvailable() bool {
	return len(r.Remotes) > 0
}

// ProvidedByRepo reports whether repo offers this exact Record.
func (r *Record) ProvidedByRepo(repo string) bool {
	for _, res := range r.Remotes {
		if res.Repo == repo {
			return true
		}
	}
	return false
}

// AddRemoteResource appends res to r.Remotes, replacing any existing entry
// from the same repository (binpkg_add_remote_resource).
func (r *Record) AddRemoteResource(res RemoteResource) {
	for i, existing := range r.Remotes {
		if existing.Repo == res.Repo {
			r.Remotes[i] = res
			return
		}
	}
	r.Remotes = append(r.Remotes, res)
}
