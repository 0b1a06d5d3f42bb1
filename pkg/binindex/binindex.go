// Package binindex is the in-memory binary package index: a dense
// name->int ID table, one version-descending record list per name, reverse
// dependency sets and compiled dependency resolution, grounded on
// binindex.c.
package binindex

import (
	"sort"

	"github.com/mindmaze-labs/mmpack-go/pkg/pkgmeta"
)

// nameEntry is one name's package list plus its reverse-dependency set, the
// Go equivalent of struct pkglist.
type nameEntry struct {
	name    string
	id      int32
	records []*pkgmeta.Record // version-descending, like pkglist's linked list
	rdeps   []int32           // potential reverse dependencies, like struct rdepends
}

// Index is the binary package index, the Go equivalent of struct binindex:
// a name->id table (pkgnameIdx) plus a dense id-indexed slice of name
// entries (pkgnameTable).
type Index struct {
	byName map[string]int32
	byID   []*nameEntry
	numPkg int
}

// New returns an empty Index, the Go equivalent of binindex_init.
func New() *Index {
	return &Index{byName: make(map[string]int32)}
}

// NameID returns the dense id assigned to name, creating a fresh empty
// entry (and a new id) if name is not yet known, the Go equivalent of
// binindex_get_pkgname_id. It never fails.
func (ix *Index) NameID(name string) int32 {
	if id, ok := ix.byName[name]; ok {
		return id
	}
	id := int32(len(ix.byID))
	ix.byID = append(ix.byID, &nameEntry{name: name, id: id})
	ix.byName[name] = id
	return id
}

// NumNames returns the number of distinct package names known to the index.
func (ix *Index) NumNames() int {
	return len(ix.byID)
}

// NumPackages returns the number of distinct (name, version, digest)
// records held in the index.
func (ix *Index) NumPackages() int {
	return ix.numPkg
}

func (ix *Index) entryByName(name string) *nameEntry {
	id, ok := ix.byName[name]
	if !ok {
		return nil
	}
	return ix.byID[id]
}

// NameOf returns the package name assigned to id.
func (ix *Index) NameOf(id int32) string {
	return ix.byID[id].name
}

// AddRecord inserts r into the index, the Go equivalent of
// binindex_add_pkg: if a record with the same version and SumDigest
// already exists for this name, its RemoteResources are merged into the
// existing record (mirroring pkglist_add_or_modify's identical-digest
// merge) and the existing *Record is returned; otherwise r is inserted,
// version-sorted descending, and returned as-is.
func (ix *Index) AddRecord(r *pkgmeta.Record) *pkgmeta.Record {
	r.NameID = ix.NameID(r.Name)
	entry := ix.byID[r.NameID]

	for _, existing := range entry.records {
		if existing.Version == r.Version && existing.SumDigest == r.SumDigest {
			for _, res := range r.Remotes {
				existing.AddRemoteResource(res)
			}
			return existing
		}
	}

	idx := sort.Search(len(entry.records), func(i int) bool {
		return pkgmeta.CompareVersions(entry.records[i].Version, r.Version) <= 0
	})
	entry.records = append(entry.records, nil)
	copy(entry.records[idx+1:], entry.records[idx:])
	entry.records[idx] = r
	ix.numPkg++

	return r
}

// Records returns the version-descending record list for name, or nil if
// name is unknown.
func (ix *Index) Records(name string) []*pkgmeta.Record {
	entry := ix.entryByName(name)
	if entry == nil {
		return nil
	}
	return entry.records
}

// RecordsByID returns the version-descending record list for a name id.
func (ix *Index) RecordsByID(id int32) []*pkgmeta.Record {
	return ix.byID[id].records
}

// Constraints narrows a Lookup query, the Go equivalent of struct
// constraints.
type Constraints struct {
	Version string
	Digest  *[32]byte
	Repo    string
}

// Lookup returns the record matching name and the given constraints, the Go
// equivalent of binindex_lookup. An empty/zero Constraints matches the
// "any" version.
func (ix *Index) Lookup(name string, c Constraints) *pkgmeta.Record {
	version := c.Version
	if version == "" {
		version = pkgmeta.AnyVersion
	}

	for _, r := range ix.Records(name) {
		if c.Digest != nil && r.SumDigest != *c.Digest {
			continue
		}
		if c.Repo != "" && !r.ProvidedByRepo(c.Repo) {
			continue
		}
		if pkgmeta.CompareVersions(version, r.Version) != 0 {
			continue
		}
		return r
	}
	return nil
}

// IsUpgradeable reports whether a newer version than the installed record
// pkg is known to the index, the Go equivalent of
// binindex_is_pkg_upgradeable.
func (ix *Index) IsUpgradeable(pkg *pkgmeta.Record) bool {
	records := ix.Records(pkg.Name)
	if len(records) == 0 {
		return false
	}
	return pkgmeta.CompareVersions(records[0].Version, pkg.Version) > 0
}

// ForEach calls fn for every record in the index, in name-id then
// version-descending order, the Go equivalent of pkg_iter_first/next.
func (ix *Index) ForEach(fn func(*pkgmeta.Record)) {
	for _, entry := range ix.byID {
		for _, r := range entry.records {
			fn(r)
		}
	}
}

// ComputeReverseDependencies populates, for every known name, the set of
// names that have at least one version depending on at least one version
// of it (computed at the name level rather than the exact-version level).
// It returns the set of dependency names that were referenced but are
// entirely unknown to the index.
func (ix *Index) ComputeReverseDependencies() (unmet []string) {
	seenUnmet := make(map[string]bool)
	ix.ForEach(func(pkg *pkgmeta.Record) {
		for _, dep := range pkg.Depends {
			entry := ix.entryByName(dep.Name)
			if entry == nil {
				if !seenUnmet[dep.Name] {
					seenUnmet[dep.Name] = true
					unmet = append(unmet, dep.Name)
				}
				continue
			}
			addRdep(entry, pkg.NameID)
		}
	})
	return unmet
}

func addRdep(entry *nameEntry, nameID int32) {
	for _, id := range entry.rdeps {
		if id == nameID {
			return
		}
	}
	entry.rdeps = append(entry.rdeps, nameID)
}

// PotentialReverseDependencies returns the name ids of packages that have
// at least one version depending on at least one version of nameID, the Go
// equivalent of binindex_get_potential_rdeps.
func (ix *Index) PotentialReverseDependencies(nameID int32) []int32 {
	return ix.byID[nameID].rdeps
}

// IsDependency reports whether candidate is a dependency of pkg, the Go
// equivalent of is_dependency.
func IsDependency(pkg, candidate *pkgmeta.Record) bool {
	for _, dep := range pkg.Depends {
		if dep.Name == candidate.Name && dep.Satisfies(candidate.Version) {
			return true
		}
	}
	return false
}

// ReverseDependencies returns every record, among all names in
// PotentialReverseDependencies(pkg.NameID), that actually declares a
// dependency on pkg, the Go equivalent of rdeps_iter_first/next.
func (ix *Index) ReverseDependencies(pkg *pkgmeta.Record) []*pkgmeta.Record {
	var out []*pkgmeta.Record
	for _, id := range ix.PotentialReverseDependencies(pkg.NameID) {
		for _, candidate := range ix.byID[id].records {
			if IsDependency(candidate, pkg) {
				out = append(out, candidate)
			}
		}
	}
	return out
}

// InstalledReverseDependencies returns every record present in installed
// (keyed by name) that is a reverse dependency of pkg and is currently
// installed, the Go equivalent of inst_rdeps_iter_first/next.
func (ix *Index) InstalledReverseDependencies(pkg *pkgmeta.Record, installed map[string]*pkgmeta.Record) []*pkgmeta.Record {
	var out []*pkgmeta.Record
	for _, id := range ix.PotentialReverseDependencies(pkg.NameID) {
		name := ix.byID[id].name
		candidate, ok := installed[name]
		if !ok {
			continue
		}
		if CompileDependencies(ix, candidate).DependsOnName(pkg.NameID) {
			out = append(out, candidate)
		}
	}
	return out
}
