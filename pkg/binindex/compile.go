package binindex

import "github.com/mindmaze-labs/mmpack-go/pkg/pkgmeta"

// CompiledDep is the set of index Records that satisfy one dependency
// requirement. A slice of CompiledDep forms a whole dependency chain, so
// CompiledDeps below is simply []CompiledDep.
type CompiledDep struct {
	NameID     int32
	Candidates []*pkgmeta.Record // version-descending, same order as the name's record list
}

// CompiledDeps is an ordered chain of CompiledDep.
type CompiledDeps []CompiledDep

// DependsOnName reports whether any entry in the chain targets nameID, used
// by InstalledReverseDependencies to confirm a candidate genuinely depends
// on the package under consideration (not just shares a potential-rdeps
// entry with it).
func (c CompiledDeps) DependsOnName(nameID int32) bool {
	for _, d := range c {
		if d.NameID == nameID {
			return true
		}
	}
	return false
}

// compileDep resolves one DepSpec against the index: every record of the
// named package whose version falls in the spec's range becomes a
// candidate. Returns the zero value and false if the name is unknown or no
// candidate satisfies the range.
func compileDep(ix *Index, dep pkgmeta.DepSpec) (CompiledDep, bool) {
	entry := ix.entryByName(dep.Name)
	if entry == nil {
		return CompiledDep{}, false
	}

	var candidates []*pkgmeta.Record
	for _, r := range entry.records {
		if dep.Satisfies(r.Version) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return CompiledDep{}, false
	}

	return CompiledDep{NameID: entry.id, Candidates: candidates}, true
}

// CompileDependencies resolves every direct dependency of pkg against the
// index, the Go equivalent of binindex_compile_pkgdeps. Unlike the C
// version this does not cache the result on the Record (Go callers that
// need caching can memoize CompileDependencies themselves); the function is
// cheap enough (building slices, not allocating an arena) that per-call
// recomputation is the simpler and equally idiomatic choice here.
func CompileDependencies(ix *Index, pkg *pkgmeta.Record) CompiledDeps {
	if len(pkg.Depends) == 0 {
		return nil
	}

	deps := make(CompiledDeps, 0, len(pkg.Depends))
	for _, dep := range pkg.Depends {
		compiled, ok := compileDep(ix, dep)
		if !ok {
			// Unmet dependency: skipped here. The solver calls
			// UnmetDependencies before installing pkg and backtracks,
			// which ends in UNSATISFIABLE when no decision is left.
			continue
		}
		deps = append(deps, compiled)
	}
	return deps
}

// UnmetDependencies returns the names, among pkg's direct dependencies,
// that could not be resolved to any known candidate, the Go equivalent of
// the "Unmet dependency" diagnostic in binindex_compile_pkgdeps /
// binindex_compute_rdepends.
func UnmetDependencies(ix *Index, pkg *pkgmeta.Record) []string {
	var unmet []string
	for _, dep := range pkg.Depends {
		if _, ok := compileDep(ix, dep); !ok {
			unmet = append(unmet, dep.Name)
		}
	}
	return unmet
}

// CompileUpgradeCandidates returns every record of pkg's name that is
// strictly newer than pkg, version-descending, the Go equivalent of
// binindex_compile_upgrade. Returns nil if pkg is already the newest known
// version.
func CompileUpgradeCandidates(ix *Index, pkg *pkgmeta.Record) []*pkgmeta.Record {
	records := ix.RecordsByID(pkg.NameID)
	var newer []*pkgmeta.Record
	for _, r := range records {
		if r == pkg {
			break
		}
		newer = append(newer, r)
	}
	return newer
}
