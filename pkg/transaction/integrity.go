package transaction

import (
	"context"
	"fmt"
	"sort"

	"github.com/mindmaze-labs/mmpack-go/pkg/installstate"
	"github.com/mindmaze-labs/mmpack-go/pkg/pkgmeta"
	"github.com/mindmaze-labs/mmpack-go/pkg/plan"
)

// IntegrityReport is the outcome of checking one installed package, the Go
// equivalent of the per-package info/error lines printed by binindex_cb in
// mmpack-check-integrity.c.
type IntegrityReport struct {
	Package *pkgmeta.Record
	Err     error
}

// CheckIntegrity verifies every file of every record in installed still
// matches its recorded hash, or only pkgName's files if pkgName is
// non-empty, the Go equivalent of mmpack_check_integrity's binindex_cb
// callback. Packages are checked in name order for reproducible output.
func CheckIntegrity(prefixRoot string, installed *installstate.Store, pkgName string) ([]IntegrityReport, error) {
	if pkgName != "" {
		pkg := installed.Get(pkgName)
		if pkg == nil {
			return nil, fmt.Errorf("package %q not found", pkgName)
		}
		return []IntegrityReport{{Package: pkg, Err: CheckInstalledPkg(prefixRoot, pkg)}}, nil
	}

	names := installed.Names()
	sort.Strings(names)
	reports := make([]IntegrityReport, 0, len(names))
	for _, name := range names {
		pkg := installed.Get(name)
		reports = append(reports, IntegrityReport{Package: pkg, Err: CheckInstalledPkg(prefixRoot, pkg)})
	}
	return reports, nil
}

// FixBroken reinstalls pkg from its own declared remote resource (without
// involving the solver), restoring it to the state it was in right after
// installation.
func (a *Applier) FixBroken(ctx context.Context, installed *installstate.Store, manual *installstate.ManuallyInstalled, pkg *pkgmeta.Record) error {
	p := &plan.Plan{Actions: []plan.Action{{Kind: plan.Install, Pkg: pkg}}}
	return a.Apply(ctx, p, installed, manual)
}

// FixAllBroken checks every installed package and calls FixBroken on each
// one whose integrity check failed. It stops at the first package that
// still fails to fix.
func (a *Applier) FixAllBroken(ctx context.Context, installed *installstate.Store, manual *installstate.ManuallyInstalled) error {
	names := installed.Names()
	for _, name := range names {
		pkg := installed.Get(name)
		if CheckInstalledPkg(a.PrefixRoot, pkg) == nil {
			continue
		}

		a.logf("Trying to fix broken installed package: %s (%s) ...", pkg.Name, pkg.Version)
		if err := a.FixBroken(ctx, installed, manual, pkg); err != nil {
			a.logf("Failed")
			return err
		}
		a.logf("Done")
	}
	return nil
}
