// Package solver computes the set of install/remove/upgrade actions needed
// to satisfy a set of requested packages against a binary index and the
// currently installed set, grounded on action-solver.c's explicit state
// machine (VALIDATION -> SELECTION -> UPGRADE_RDEPS -> INSTALL_DEPS ->
// NEXT/BACKTRACK).
package solver

import (
	"fmt"

	"github.com/mindmaze-labs/mmpack-go/pkg/binindex"
	mmerrors "github.com/mindmaze-labs/mmpack-go/pkg/errors"
	"github.com/mindmaze-labs/mmpack-go/pkg/pkgmeta"
	"github.com/mindmaze-labs/mmpack-go/pkg/plan"
)

type state int

const (
	stateValidation state = iota
	stateSelection
	stateUpgradeRdeps
	stateInstallDeps
	stateNext
	stateBacktrack
)

// frame is the processing data for one dependency list being walked, the Go
// equivalent of struct proc_frame.
type frame struct {
	dep       binindex.CompiledDeps
	depIdx    int // index into dep, the Go equivalent of walking next_entry_delta
	ipkg      int // index of package currently selected within dep[depIdx].Candidates
	state     state
	doUpgrade bool
}

func (f *frame) current() binindex.CompiledDep {
	return f.dep[f.depIdx]
}

func (f *frame) hasNext() bool {
	return f.depIdx+1 < len(f.dep)
}

// opKind mirrors struct planned_op's action enum.
type opKind int

const (
	opStage opKind = iota
	opInstall
	opRemove
	opUpgrade
)

type plannedOp struct {
	kind   opKind
	nameID int32
	pkg    *pkgmeta.Record // INSTALL/REMOVE: the package; UPGRADE: the new package
	oldPkg *pkgmeta.Record // UPGRADE only
}

// decisionState snapshots everything needed to backtrack to a prior choice
// point. Go's garbage collector and value-copyable slices make a plain
// struct-of-slices snapshot a simple way to capture that bookkeeping.
type decisionState struct {
	opsLen      int
	frame       frame
	frameStack  []frame // copy of the processing stack at decision time
}

// Solver resolves a sequence of install/remove/upgrade requests into an
// ordered Plan, the Go equivalent of struct solver plus its
// mmpkg_get_*_list entry points.
type Solver struct {
	index   *binindex.Index
	instLUT []*pkgmeta.Record // installed, by name id
	stgLUT  []*pkgmeta.Record // staged for install, by name id

	frameStack []frame
	ops        []plannedOp
	decisions  []decisionState

	hasError bool
}

// New builds a Solver seeded with the currently installed set, the Go
// equivalent of solver_init (install_state_fill_lookup_table).
func New(index *binindex.Index, installed map[string]*pkgmeta.Record) *Solver {
	numNames := index.NumNames()
	s := &Solver{
		index:   index,
		instLUT: make([]*pkgmeta.Record, numNames),
		stgLUT:  make([]*pkgmeta.Record, numNames),
	}
	for name, pkg := range installed {
		id := index.NameID(name)
		s.instLUT[id] = pkg
	}
	return s
}

func compiledDepMatch(dep binindex.CompiledDep, pkg *pkgmeta.Record) bool {
	for _, candidate := range dep.Candidates {
		if candidate == pkg {
			return true
		}
	}
	return false
}

func getCompDepWithID(deps binindex.CompiledDeps, id int32) (binindex.CompiledDep, bool) {
	for _, d := range deps {
		if d.NameID == id {
			return d, true
		}
	}
	return binindex.CompiledDep{}, false
}

// revertOps undoes every entry pushed onto s.ops since index prevLen, the Go
// equivalent of solver_revert_planned_ops.
func (s *Solver) revertOps(prevLen int) {
	for i := len(s.ops) - 1; i >= prevLen; i-- {
		op := s.ops[i]
		switch op.kind {
		case opStage:
			s.stgLUT[op.nameID] = nil
		case opInstall:
			s.instLUT[op.nameID] = nil
		case opRemove:
			s.instLUT[op.nameID] = op.pkg
		case opUpgrade:
			s.instLUT[op.nameID] = op.oldPkg
		}
	}
	s.ops = s.ops[:prevLen]
}

func (s *Solver) stagePkgInstall(id int32, pkg *pkgmeta.Record) {
	s.stgLUT[id] = pkg
	s.ops = append(s.ops, plannedOp{kind: opStage, nameID: id, pkg: pkg})
}

func (s *Solver) commitPkgInstall(id int32) {
	pkg := s.stgLUT[id]
	old := s.instLUT[id]
	s.instLUT[id] = pkg
	if old != nil {
		s.ops = append(s.ops, plannedOp{kind: opUpgrade, nameID: id, pkg: pkg, oldPkg: old})
	} else {
		s.ops = append(s.ops, plannedOp{kind: opInstall, nameID: id, pkg: pkg})
	}
}

// saveDecisionState snapshots the current point so a later BACKTRACK can
// return to it and try the next candidate, the Go equivalent of
// solver_save_decision_state. No snapshot is made if there is no
// alternative candidate left to try (f.ipkg is already at the last one).
func (s *Solver) saveDecisionState(f *frame) {
	if f.ipkg >= len(f.current().Candidates)-1 {
		return
	}
	snapshot := make([]frame, len(s.frameStack))
	copy(snapshot, s.frameStack)
	s.decisions = append(s.decisions, decisionState{
		opsLen:     len(s.ops),
		frame:      *f,
		frameStack: snapshot,
	})
}

// backtrackOnDecision restores the most recent saved decision state and
// advances to its next candidate, the Go equivalent of
// solver_backtrack_on_decision. Returns false if there is no decision left
// to revisit (the problem is unsatisfiable).
func (s *Solver) backtrackOnDecision(f *frame) bool {
	if len(s.decisions) == 0 {
		return false
	}
	last := s.decisions[len(s.decisions)-1]
	s.decisions = s.decisions[:len(s.decisions)-1]

	s.revertOps(last.opsLen)
	*f = last.frame
	s.frameStack = last.frameStack

	f.ipkg++
	return true
}

// addDepsToProcess pushes the current frame and starts walking deps, the Go
// equivalent of solver_add_deps_to_process.
func (s *Solver) addDepsToProcess(f *frame, deps binindex.CompiledDeps) {
	if len(deps) == 0 {
		return
	}
	s.frameStack = append(s.frameStack, *f)
	*f = frame{dep: deps, state: stateValidation}
}

// advanceProcessing moves the frame past UPGRADE_RDEPS/INSTALL_DEPS/NEXT,
// popping the frame stack when a dependency chain is exhausted, the Go
// equivalent of solver_advance_processing. Returns false when the whole
// solve is complete.
func (s *Solver) advanceProcessing(f *frame) bool {
	if s.hasError {
		return false
	}

	for {
		if f.state == stateUpgradeRdeps {
			f.state = stateInstallDeps
			break
		}

		if f.state == stateInstallDeps {
			s.commitPkgInstall(f.current().NameID)
			f.state = stateNext
		}

		if f.state == stateNext {
			if f.hasNext() {
				f.depIdx++
				f.state = stateValidation
				break
			}

			if len(s.frameStack) == 0 {
				return false
			}

			*f = s.frameStack[len(s.frameStack)-1]
			s.frameStack = s.frameStack[:len(s.frameStack)-1]
			continue
		}

		break
	}

	return true
}

func (s *Solver) stepValidation(f *frame) bool {
	dep := f.current()
	id := dep.NameID

	pkg := s.stgLUT[id]
	staged := pkg != nil
	if !staged {
		pkg = s.instLUT[id]
	}

	if pkg != nil {
		match := compiledDepMatch(dep, pkg)
		if staged {
			if match {
				f.state = stateNext
				return true
			}
			f.state = stateBacktrack
			return false
		}
		if match && !f.doUpgrade {
			f.state = stateNext
			return true
		}
	}

	f.ipkg = 0
	f.state = stateSelection
	return true
}

// stepSelectPkg picks the candidate at f.ipkg, the Go equivalent of
// solver_step_select_pkg. Candidates are version-descending, so refusing to
// reinstall the already-installed exact record also forecloses any
// implicit downgrade.
func (s *Solver) stepSelectPkg(f *frame) bool {
	dep := f.current()
	id := dep.NameID

	pkg := dep.Candidates[f.ipkg]
	old := s.instLUT[id]
	if old == pkg {
		f.state = stateNext
		return false
	}

	s.saveDecisionState(f)
	s.stagePkgInstall(id, pkg)

	if old != nil {
		f.state = stateUpgradeRdeps
	} else {
		f.state = stateInstallDeps
	}
	return true
}

// checkUpgradeRdep inspects one reverse dependency of the old package being
// replaced, the Go equivalent of solver_check_upgrade_rdep. It returns the
// upgrade CompiledDep to queue (or none), and whether backtracking is
// required.
func (s *Solver) checkUpgradeRdep(rdepID int32, newpkg *pkgmeta.Record) (upgrade *binindex.CompiledDep, needBacktrack bool) {
	rdep := s.stgLUT[rdepID]
	staged := rdep != nil
	if !staged {
		rdep = s.instLUT[rdepID]
	}
	if rdep == nil {
		return nil, false
	}

	deps := binindex.CompileDependencies(s.index, rdep)
	dep, ok := getCompDepWithID(deps, newpkg.NameID)
	if !ok || compiledDepMatch(dep, newpkg) {
		return nil, false
	}

	if staged {
		return nil, true
	}

	candidates := binindex.CompileUpgradeCandidates(s.index, rdep)
	if len(candidates) == 0 {
		return nil, true
	}
	return &binindex.CompiledDep{NameID: rdepID, Candidates: candidates}, false
}

func (s *Solver) stepUpgradeRdeps(f *frame) bool {
	newpkg := f.current().Candidates[f.ipkg]
	rdepIDs := s.index.PotentialReverseDependencies(newpkg.NameID)

	var upgrades binindex.CompiledDeps
	for _, rdepID := range rdepIDs {
		upgrade, needBacktrack := s.checkUpgradeRdep(rdepID, newpkg)
		if needBacktrack {
			f.state = stateBacktrack
			return false
		}
		if upgrade != nil {
			upgrades = append(upgrades, *upgrade)
		}
	}

	if len(upgrades) > 0 {
		s.addDepsToProcess(f, upgrades)
	} else {
		f.state = stateInstallDeps
	}
	return true
}

func (s *Solver) stepInstallDeps(f *frame) {
	pkg := f.current().Candidates[f.ipkg]
	if len(binindex.UnmetDependencies(s.index, pkg)) > 0 {
		f.state = stateBacktrack
		return
	}
	deps := binindex.CompileDependencies(s.index, pkg)
	s.addDepsToProcess(f, deps)
}

// solveDeps is the solver's main loop, the Go equivalent of
// solver_solve_deps.
func (s *Solver) solveDeps(initial binindex.CompiledDeps, doUpgrade bool) error {
	f := frame{dep: initial, state: stateValidation, doUpgrade: doUpgrade}

	for s.advanceProcessing(&f) {
		if f.state == stateBacktrack {
			if !s.backtrackOnDecision(&f) {
				return mmerrors.New("solver.solveDeps", mmerrors.Unsatisfiable, "", mmerrors.ErrUnsatisfiable)
			}
			continue
		}
		if f.state == stateValidation {
			if !s.stepValidation(&f) {
				continue
			}
		}
		if f.state == stateSelection {
			if !s.stepSelectPkg(&f) {
				continue
			}
		}
		if f.state == stateUpgradeRdeps {
			if !s.stepUpgradeRdeps(&f) {
				continue
			}
		}
		if f.state == stateInstallDeps {
			s.stepInstallDeps(&f)
		}
	}

	if s.hasError {
		return mmerrors.New("solver.solveDeps", mmerrors.Unsatisfiable, "", mmerrors.ErrUnsatisfiable)
	}
	return nil
}

// removePkgName recursively removes pkgName and whatever installed package
// depends on it, the Go equivalent of solver_remove_pkgname. Nulling
// instLUT before recursing breaks dependency cycles.
func (s *Solver) removePkgName(nameID int32) {
	pkg := s.instLUT[nameID]
	if pkg == nil {
		return
	}
	s.instLUT[nameID] = nil

	for _, rdep := range s.index.InstalledReverseDependencies(pkg, s.installedByName()) {
		s.removePkgName(s.index.NameID(rdep.Name))
	}

	s.ops = append(s.ops, plannedOp{kind: opRemove, nameID: nameID, pkg: pkg})
}

// installedByName reconstructs a name->Record map from instLUT, the shape
// InstalledReverseDependencies needs; cheap relative to the solving work
// it supports.
func (s *Solver) installedByName() map[string]*pkgmeta.Record {
	out := make(map[string]*pkgmeta.Record, len(s.instLUT))
	for id, pkg := range s.instLUT {
		if pkg != nil {
			out[s.index.NameOf(int32(id))] = pkg
		}
	}
	return out
}

// createActionPlan replays s.ops into an ordered Plan.
func (s *Solver) createActionPlan() *plan.Plan {
	p := &plan.Plan{}
	for _, op := range s.ops {
		switch op.kind {
		case opStage:
			// no-op: staged-only ops never reach the plan
		case opInstall:
			p.Actions = append(p.Actions, plan.Action{Kind: plan.Install, Pkg: op.pkg})
		case opRemove:
			p.Actions = append(p.Actions, plan.Action{Kind: plan.Remove, Pkg: op.pkg})
		case opUpgrade:
			p.Actions = append(p.Actions, plan.Action{Kind: plan.Upgrade, Pkg: op.pkg, OldPkg: op.oldPkg})
		}
	}
	return p
}

// Request is one requested package, the Go equivalent of struct
// pkg_request: either an exact package (Pkg set) or a name/version pair.
type Request struct {
	Pkg     *pkgmeta.Record
	Name    string
	Version string
}

// compileRequests compiles a request list into a CompiledDeps chain, the Go
// equivalent of compdeps_from_reqlist.
func compileRequests(index *binindex.Index, reqs []Request) (binindex.CompiledDeps, error) {
	var deps binindex.CompiledDeps
	for _, req := range reqs {
		if req.Pkg != nil {
			deps = append(deps, binindex.CompiledDep{NameID: req.Pkg.NameID, Candidates: []*pkgmeta.Record{req.Pkg}})
			continue
		}

		version := req.Version
		if version == "" {
			version = pkgmeta.AnyVersion
		}
		spec := pkgmeta.DepSpec{Name: req.Name, MinVersion: version, MaxVersion: version}
		var candidates []*pkgmeta.Record
		for _, r := range index.Records(req.Name) {
			if spec.Satisfies(r.Version) {
				candidates = append(candidates, r)
			}
		}
		if len(candidates) == 0 {
			return nil, mmerrors.New("solver.compileRequests", mmerrors.NotFound, req.Name, fmt.Errorf("cannot find package %s version %s", req.Name, req.Version))
		}
		deps = append(deps, binindex.CompiledDep{NameID: index.NameID(req.Name), Candidates: candidates})
	}
	return deps, nil
}

// Install computes the actions needed to install reqs on top of the
// currently installed set, the Go equivalent of mmpkg_get_install_list.
func Install(index *binindex.Index, installed map[string]*pkgmeta.Record, reqs []Request) (*plan.Plan, error) {
	s := New(index, installed)
	deps, err := compileRequests(index, reqs)
	if err != nil {
		return nil, err
	}
	if err := s.solveDeps(deps, false); err != nil {
		return nil, err
	}
	return s.createActionPlan(), nil
}

// Upgrade computes the actions needed to upgrade the named installed
// packages to their newest available version, the Go equivalent of
// mmpkg_get_upgrade_list. Only versions strictly newer than the installed
// one are candidates; a named package already at its newest version
// contributes no action.
func Upgrade(index *binindex.Index, installed map[string]*pkgmeta.Record, names []string) (*plan.Plan, error) {
	s := New(index, installed)

	var deps binindex.CompiledDeps
	for _, name := range names {
		id := index.NameID(name)
		pkg := s.instLUT[id]
		if pkg == nil {
			return nil, mmerrors.New("solver.Upgrade", mmerrors.NotFound, name, fmt.Errorf("package %s is not installed", name))
		}
		var candidates []*pkgmeta.Record
		for _, r := range index.Records(name) {
			if pkgmeta.CompareVersions(r.Version, pkg.Version) > 0 {
				candidates = append(candidates, r)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		deps = append(deps, binindex.CompiledDep{NameID: id, Candidates: candidates})
	}
	if len(deps) == 0 {
		return &plan.Plan{}, nil
	}

	if err := s.solveDeps(deps, true); err != nil {
		return nil, err
	}
	return s.createActionPlan(), nil
}

// Remove computes the actions needed to remove the named packages and
// whatever installed package transitively depends on them, the Go
// equivalent of mmpkg_get_remove_list.
func Remove(index *binindex.Index, installed map[string]*pkgmeta.Record, names []string) *plan.Plan {
	s := New(index, installed)
	for _, name := range names {
		s.removePkgName(index.NameID(name))
	}
	return s.createActionPlan()
}
