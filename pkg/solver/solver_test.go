package solver

import (
	"testing"

	"github.com/mindmaze-labs/mmpack-go/pkg/binindex"
	"github.com/mindmaze-labs/mmpack-go/pkg/hash"
	"github.com/mindmaze-labs/mmpack-go/pkg/pkgmeta"
	"github.com/mindmaze-labs/mmpack-go/pkg/plan"
)

func digestFor(b byte) hash.Digest {
	var d hash.Digest
	d[0] = b
	return d
}

func dep(name, min, max string) pkgmeta.DepSpec {
	return pkgmeta.DepSpec{Name: name, MinVersion: min, MaxVersion: max}
}

func anyDep(name string) pkgmeta.DepSpec {
	return dep(name, pkgmeta.AnyVersion, pkgmeta.AnyVersion)
}

// scenario 1: empty prefix, install pkg-a 0.0.1 depending on pkg-b (>= 0.0.2),
// with pkg-b's only version being 0.0.2.
func TestInstallSimpleDependency(t *testing.T) {
	ix := binindex.New()
	ix.AddRecord(&pkgmeta.Record{Name: "pkg-b", Version: "0.0.2", SumDigest: digestFor(2)})
	ix.AddRecord(&pkgmeta.Record{
		Name: "pkg-a", Version: "0.0.1", SumDigest: digestFor(1),
		Depends: []pkgmeta.DepSpec{dep("pkg-b", "0.0.2", pkgmeta.AnyVersion)},
	})
	ix.ComputeReverseDependencies()

	p, err := Install(ix, nil, []Request{{Name: "pkg-a", Version: "0.0.1"}})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if len(p.Actions) != 2 {
		t.Fatalf("expected 2 actions, got %d: %+v", len(p.Actions), p.Actions)
	}
	if p.Actions[0].Kind != plan.Install || p.Actions[0].Pkg.Name != "pkg-b" {
		t.Errorf("expected first action to install pkg-b, got %+v", p.Actions[0])
	}
	if p.Actions[1].Kind != plan.Install || p.Actions[1].Pkg.Name != "pkg-a" {
		t.Errorf("expected second action to install pkg-a, got %+v", p.Actions[1])
	}
}

// scenario 2: same graph, but pkg-b only has version 0.0.1, which cannot
// satisfy pkg-a's >= 0.0.2 requirement: UNSATISFIABLE.
func TestInstallUnsatisfiableVersionConstraint(t *testing.T) {
	ix := binindex.New()
	ix.AddRecord(&pkgmeta.Record{Name: "pkg-b", Version: "0.0.1", SumDigest: digestFor(2)})
	ix.AddRecord(&pkgmeta.Record{
		Name: "pkg-a", Version: "0.0.1", SumDigest: digestFor(1),
		Depends: []pkgmeta.DepSpec{dep("pkg-b", "0.0.2", pkgmeta.AnyVersion)},
	})
	ix.ComputeReverseDependencies()

	_, err := Install(ix, nil, []Request{{Name: "pkg-a", Version: "0.0.1"}})
	if err == nil {
		t.Fatalf("expected UNSATISFIABLE error, got nil")
	}
}

// scenario 3: prefix has {pkg-a 1, pkg-b 1} with pkg-a -> pkg-b (= 1);
// repository adds pkg-b 2 and a compatible pkg-a 2; upgrading pkg-b must pull
// pkg-a along.
func TestUpgradePullsInCompatibleDependent(t *testing.T) {
	ix := binindex.New()
	pkgB1 := &pkgmeta.Record{Name: "pkg-b", Version: "1", SumDigest: digestFor(1)}
	pkgB2 := &pkgmeta.Record{Name: "pkg-b", Version: "2", SumDigest: digestFor(2)}
	ix.AddRecord(pkgB1)
	ix.AddRecord(pkgB2)

	pkgA1 := &pkgmeta.Record{
		Name: "pkg-a", Version: "1", SumDigest: digestFor(3),
		Depends: []pkgmeta.DepSpec{dep("pkg-b", "1", "1")},
	}
	pkgA2 := &pkgmeta.Record{
		Name: "pkg-a", Version: "2", SumDigest: digestFor(4),
		Depends: []pkgmeta.DepSpec{dep("pkg-b", "2", "2")},
	}
	ix.AddRecord(pkgA1)
	ix.AddRecord(pkgA2)
	ix.ComputeReverseDependencies()

	installed := map[string]*pkgmeta.Record{"pkg-a": pkgA1, "pkg-b": pkgB1}

	p, err := Upgrade(ix, installed, []string{"pkg-b"})
	if err != nil {
		t.Fatalf("Upgrade: %v", err)
	}

	var upgradedA, upgradedB bool
	for _, a := range p.Actions {
		if a.Kind != plan.Upgrade {
			continue
		}
		switch a.Pkg.Name {
		case "pkg-a":
			upgradedA = a.Pkg.Version == "2"
		case "pkg-b":
			upgradedB = a.Pkg.Version == "2"
		}
	}
	if !upgradedB {
		t.Errorf("expected pkg-b to be upgraded to version 2, got %+v", p.Actions)
	}
	if !upgradedA {
		t.Errorf("expected pkg-a to be upgraded along with pkg-b, got %+v", p.Actions)
	}
}

// Same setup as above, but with no compatible pkg-a 2: upgrading pkg-b must
// fail as UNSATISFIABLE rather than leave pkg-a's constraint unmet.
func TestUpgradeUnsatisfiableWithoutCompatibleDependent(t *testing.T) {
	ix := binindex.New()
	pkgB1 := &pkgmeta.Record{Name: "pkg-b", Version: "1", SumDigest: digestFor(1)}
	pkgB2 := &pkgmeta.Record{Name: "pkg-b", Version: "2", SumDigest: digestFor(2)}
	ix.AddRecord(pkgB1)
	ix.AddRecord(pkgB2)

	pkgA1 := &pkgmeta.Record{
		Name: "pkg-a", Version: "1", SumDigest: digestFor(3),
		Depends: []pkgmeta.DepSpec{dep("pkg-b", "1", "1")},
	}
	ix.AddRecord(pkgA1)
	ix.ComputeReverseDependencies()

	installed := map[string]*pkgmeta.Record{"pkg-a": pkgA1, "pkg-b": pkgB1}

	_, err := Upgrade(ix, installed, []string{"pkg-b"})
	if err == nil {
		t.Fatalf("expected UNSATISFIABLE, got a plan")
	}
}

// Reverse removal closure: A -> B -> C. Removing C must also remove A and B,
// in dependent-before-dependency order: [remove A, remove B, remove C].
func TestReverseRemovalClosure(t *testing.T) {
	ix := binindex.New()
	pkgC := &pkgmeta.Record{Name: "C", Version: "1", SumDigest: digestFor(1)}
	ix.AddRecord(pkgC)
	pkgB := &pkgmeta.Record{
		Name: "B", Version: "1", SumDigest: digestFor(2),
		Depends: []pkgmeta.DepSpec{anyDep("C")},
	}
	ix.AddRecord(pkgB)
	pkgA := &pkgmeta.Record{
		Name: "A", Version: "1", SumDigest: digestFor(3),
		Depends: []pkgmeta.DepSpec{anyDep("B")},
	}
	ix.AddRecord(pkgA)
	ix.ComputeReverseDependencies()

	installed := map[string]*pkgmeta.Record{"A": pkgA, "B": pkgB, "C": pkgC}

	p := Remove(ix, installed, []string{"C"})
	if len(p.Actions) != 3 {
		t.Fatalf("expected 3 removal actions, got %d: %+v", len(p.Actions), p.Actions)
	}
	wantOrder := []string{"A", "B", "C"}
	for i, name := range wantOrder {
		if p.Actions[i].Kind != plan.Remove || p.Actions[i].Pkg.Name != name {
			t.Errorf("position %d: want remove %s, got %+v", i, name, p.Actions[i])
		}
	}
}

// Solver completeness (bounded): simplest/simple/complex-dependency graphs
// should all return a non-empty plan; a graph with an unresolvable
// dependency returns UNSATISFIABLE.
func TestSolverCompletenessOnExampleGraphs(t *testing.T) {
	t.Run("simplest", func(t *testing.T) {
		ix := binindex.New()
		ix.AddRecord(&pkgmeta.Record{Name: "only", Version: "1.0", SumDigest: digestFor(1)})
		ix.ComputeReverseDependencies()

		p, err := Install(ix, nil, []Request{{Name: "only"}})
		if err != nil {
			t.Fatalf("Install: %v", err)
		}
		if p.IsEmpty() {
			t.Fatalf("expected a non-empty plan")
		}
	})

	t.Run("simple", func(t *testing.T) {
		ix := binindex.New()
		ix.AddRecord(&pkgmeta.Record{Name: "leaf", Version: "1.0", SumDigest: digestFor(1)})
		ix.AddRecord(&pkgmeta.Record{
			Name: "root", Version: "1.0", SumDigest: digestFor(2),
			Depends: []pkgmeta.DepSpec{anyDep("leaf")},
		})
		ix.ComputeReverseDependencies()

		p, err := Install(ix, nil, []Request{{Name: "root"}})
		if err != nil {
			t.Fatalf("Install: %v", err)
		}
		if p.IsEmpty() {
			t.Fatalf("expected a non-empty plan")
		}
	})

	t.Run("circular", func(t *testing.T) {
		ix := binindex.New()
		pkgX := &pkgmeta.Record{Name: "x", Version: "1.0", SumDigest: digestFor(1)}
		pkgY := &pkgmeta.Record{Name: "y", Version: "1.0", SumDigest: digestFor(2)}
		pkgX.Depends = []pkgmeta.DepSpec{anyDep("y")}
		pkgY.Depends = []pkgmeta.DepSpec{anyDep("x")}
		ix.AddRecord(pkgX)
		ix.AddRecord(pkgY)
		ix.ComputeReverseDependencies()

		p, err := Install(ix, nil, []Request{{Name: "x"}})
		if err != nil {
			t.Fatalf("Install on a circular graph should terminate with a plan, got error: %v", err)
		}
		if p.IsEmpty() {
			t.Fatalf("expected a non-empty plan even for a circular dependency graph")
		}
	})

	t.Run("complex-dependency", func(t *testing.T) {
		ix := binindex.New()
		ix.AddRecord(&pkgmeta.Record{Name: "base", Version: "1.0", SumDigest: digestFor(1)})
		ix.AddRecord(&pkgmeta.Record{
			Name: "mid1", Version: "1.0", SumDigest: digestFor(2),
			Depends: []pkgmeta.DepSpec{anyDep("base")},
		})
		ix.AddRecord(&pkgmeta.Record{
			Name: "mid2", Version: "1.0", SumDigest: digestFor(3),
			Depends: []pkgmeta.DepSpec{anyDep("base")},
		})
		ix.AddRecord(&pkgmeta.Record{
			Name: "top", Version: "1.0", SumDigest: digestFor(4),
			Depends: []pkgmeta.DepSpec{anyDep("mid1"), anyDep("mid2")},
		})
		ix.ComputeReverseDependencies()

		p, err := Install(ix, nil, []Request{{Name: "top"}})
		if err != nil {
			t.Fatalf("Install: %v", err)
		}
		if len(p.Actions) != 4 {
			t.Fatalf("expected 4 actions (base, mid1, mid2, top), got %d: %+v", len(p.Actions), p.Actions)
		}
	})

	t.Run("dependency-issue", func(t *testing.T) {
		ix := binindex.New()
		ix.AddRecord(&pkgmeta.Record{
			Name: "broken", Version: "1.0", SumDigest: digestFor(1),
			Depends: []pkgmeta.DepSpec{anyDep("nonexistent")},
		})
		ix.ComputeReverseDependencies()

		_, err := Install(ix, nil, []Request{{Name: "broken"}})
		if err == nil {
			t.Fatalf("expected UNSATISFIABLE for a dependency on an unknown package")
		}
	})
}

func TestNeedsConfirmationSuppressionRule(t *testing.T) {
	ix := binindex.New()
	ix.AddRecord(&pkgmeta.Record{Name: "solo", Version: "1.0", SumDigest: digestFor(1)})
	ix.ComputeReverseDependencies()

	p, err := Install(ix, nil, []Request{{Name: "solo"}})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if p.NeedsConfirmation(1) {
		t.Errorf("plan matching the requested count exactly should not need confirmation")
	}
	if !p.NeedsConfirmation(0) {
		t.Errorf("plan with more actions than requested should need confirmation")
	}
}
