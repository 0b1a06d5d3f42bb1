// Package transaction applies a solved plan to a prefix: fetching archives,
// unpacking and moving installed files into place, removing a package's
// files, and the python bytecode bookkeeping that goes with both, grounded
// on pkg-fs-utils.c's struct fschange and apply_action_stack.
package transaction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mindmaze-labs/mmpack-go/pkg/archive"
	mmerrors "github.com/mindmaze-labs/mmpack-go/pkg/errors"
	"github.com/mindmaze-labs/mmpack-go/pkg/hash"
	"github.com/mindmaze-labs/mmpack-go/pkg/installstate"
	"github.com/mindmaze-labs/mmpack-go/pkg/pkgmeta"
	"github.com/mindmaze-labs/mmpack-go/pkg/plan"
)

const (
	// metadataRelPath is the prefix-relative directory holding per-package
	// sum-files, the Go equivalent of METADATA_RELPATH.
	metadataRelPath = "var/lib/mmpack/metadata"

	// unpackCacheRelPath is the scratch directory archives are extracted
	// into before their files are moved into their final locations, the Go
	// equivalent of UNPACK_CACHEDIR_RELPATH.
	unpackCacheRelPath = "var/cache/mmpack/unpack"

	pycacheSubdir = "__pycache__"
)

// Fetcher retrieves the archive for a remote resource into destPath, the Go
// equivalent of download_remote_resource.
type Fetcher interface {
	Fetch(ctx context.Context, res pkgmeta.RemoteResource, destPath string) error
}

// PyCompiler runs "python3 -m compileall" (or equivalent) over a set of
// script paths fed on stdin, the Go equivalent of fschange_compile_pyscripts.
// A nil PyCompiler on Applier silently skips bytecode precompilation.
type PyCompiler interface {
	Compile(ctx context.Context, scripts []string) error
}

// SysdepChecker verifies that a set of system package names is present on
// the host, the Go equivalent of check_sysdeps_installed. A nil
// SysdepChecker on Applier skips the check.
type SysdepChecker interface {
	CheckInstalled(names []string) error
}

// Logger is satisfied by *log.Logger.
type Logger interface {
	Printf(format string, v ...interface{})
}

// Applier applies a Plan's actions against a prefix directory, the Go
// equivalent of apply_action_stack plus the struct fschange it threads
// through each action.
type Applier struct {
	PrefixRoot string
	Fetcher    Fetcher
	PyCompiler PyCompiler
	Sysdeps    SysdepChecker
	Logger     Logger

	installed *installstate.Store
	manual    *installstate.ManuallyInstalled

	rmFiles   []string
	rmDirs    map[string]struct{}
	pyScripts map[string]struct{}
}

func (a *Applier) logf(format string, v ...interface{}) {
	if a.Logger != nil {
		a.Logger.Printf(format, v...)
	}
}

func (a *Applier) path(rel string) string {
	return filepath.Join(a.PrefixRoot, rel)
}

// Apply fetches, then applies, every action of p in order, the Go
// equivalent of apply_action_stack. Actions are applied sequentially and
// processing stops at the first failure: the plan is ordered so a package
// is never installed before its dependencies, nor removed before its
// reverse dependencies, so a partial run still leaves a consistent prefix.
// installed and manual are mutated in place as actions succeed.
func (a *Applier) Apply(ctx context.Context, p *plan.Plan, installed *installstate.Store, manual *installstate.ManuallyInstalled) error {
	if p.IsEmpty() {
		return nil
	}

	if a.Sysdeps != nil {
		if err := a.Sysdeps.CheckInstalled(newSysdepNames(p)); err != nil {
			return mmerrors.New("transaction.Apply", mmerrors.MissingSysdep, "", err)
		}
	}

	if err := os.MkdirAll(a.path(metadataRelPath), 0755); err != nil {
		return mmerrors.New("transaction.Apply", mmerrors.IO, "", err)
	}
	if err := os.MkdirAll(a.path(unpackCacheRelPath), 0755); err != nil {
		return mmerrors.New("transaction.Apply", mmerrors.IO, "", err)
	}

	archivePaths, err := a.fetchAll(ctx, p)
	if err != nil {
		return err
	}

	a.installed = installed
	a.manual = manual
	a.rmDirs = make(map[string]struct{})
	a.pyScripts = make(map[string]struct{})

	var applyErr error
	for _, act := range p.Actions {
		a.rmFiles = nil
		if applyErr = a.applyAction(ctx, act, archivePaths); applyErr != nil {
			break
		}
	}

	a.compilePyScripts(ctx)
	a.applyRmDirs()
	os.RemoveAll(a.path(unpackCacheRelPath))

	return applyErr
}

// newSysdepNames collects the deduplicated system dependency names of every
// package about to be installed, the Go equivalent of check_new_sysdeps.
func newSysdepNames(p *plan.Plan) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, act := range p.Actions {
		if act.Kind != plan.Install && act.Kind != plan.Upgrade {
			continue
		}
		for _, dep := range act.Pkg.SysDepends {
			if _, ok := seen[dep]; !ok {
				seen[dep] = struct{}{}
				names = append(names, dep)
			}
		}
	}
	return names
}

// fetchAll downloads, concurrently, the archive for every Install/Upgrade
// action. Downloads are independent, so errgroup parallelizes the one step
// of applying a plan that benefits from it.
func (a *Applier) fetchAll(ctx context.Context, p *plan.Plan) (map[*pkgmeta.Record]string, error) {
	paths := make(map[*pkgmeta.Record]string)
	type job struct {
		pkg  *pkgmeta.Record
		dest string
	}
	var jobs []job
	for _, act := range p.Actions {
		if act.Kind != plan.Install && act.Kind != plan.Upgrade {
			continue
		}
		dest := a.path(filepath.Join(unpackCacheRelPath, ".fetch-"+act.Pkg.Name+"-"+act.Pkg.Version))
		paths[act.Pkg] = dest
		jobs = append(jobs, job{pkg: act.Pkg, dest: dest})
	}
	if len(jobs) == 0 || a.Fetcher == nil {
		return paths, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		j := j
		res, ok := pickRemote(j.pkg)
		if !ok {
			return nil, mmerrors.New("transaction.fetchAll", mmerrors.NotFound, j.pkg.Name, fmt.Errorf("no remote resource available for %s (%s)", j.pkg.Name, j.pkg.Version))
		}
		g.Go(func() error {
			if err := a.Fetcher.Fetch(gctx, res, j.dest); err != nil {
				return mmerrors.New("transaction.fetchAll", mmerrors.Network, j.pkg.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func pickRemote(pkg *pkgmeta.Record) (pkgmeta.RemoteResource, bool) {
	if len(pkg.Remotes) == 0 {
		return pkgmeta.RemoteResource{}, false
	}
	return pkg.Remotes[0], true
}

func (a *Applier) applyAction(ctx context.Context, act plan.Action, archivePaths map[*pkgmeta.Record]string) error {
	switch act.Kind {
	case plan.Install:
		return a.installPkg(ctx, act.Pkg, archivePaths[act.Pkg])
	case plan.Remove:
		return a.removePkg(act.Pkg)
	case plan.Upgrade:
		return a.upgradePkg(ctx, act.Pkg, act.OldPkg, archivePaths[act.Pkg])
	default:
		return mmerrors.New("transaction.applyAction", mmerrors.Internal, "", fmt.Errorf("invalid action kind %v", act.Kind))
	}
}

// installPkg unpacks mpkFile into the prefix and records pkg as installed,
// the Go equivalent of fschange_install_pkg.
func (a *Applier) installPkg(ctx context.Context, pkg *pkgmeta.Record, mpkFile string) error {
	a.logf("Installing package %s (%s)...", pkg.Name, pkg.Version)
	a.logf("\tsumsha: %s", pkg.SumDigest)

	instFiles, err := a.unpackAndMove(mpkFile)
	if err != nil {
		a.logf("Failed!")
		return err
	}
	if err := a.writeSumFile(pkg, instFiles); err != nil {
		a.logf("Failed!")
		return err
	}
	a.checkInstalledPyScripts(instFiles)

	a.installed.Add(pkg)
	a.logf("OK")
	return nil
}

// writeSumFile hashes every file pkg just installed and writes them to its
// sum-file, the Go equivalent of fschange_write_sha256sums.
func (a *Applier) writeSumFile(pkg *pkgmeta.Record, instFiles []string) error {
	entries := make([]installstate.SumEntry, 0, len(instFiles))
	for _, rel := range instFiles {
		full := a.path(rel)

		info, err := os.Lstat(full)
		if err != nil {
			return mmerrors.New("transaction.writeSumFile", mmerrors.IO, pkg.Name, err)
		}

		var th hash.TypedHash
		if info.Mode()&os.ModeSymlink != 0 {
			d, err := hash.SymlinkTarget(full)
			if err != nil {
				return mmerrors.New("transaction.writeSumFile", mmerrors.IO, pkg.Name, err)
			}
			th = hash.TypedHash{Type: hash.Symlink, Digest: d}
		} else {
			d, err := hash.File(full)
			if err != nil {
				return mmerrors.New("transaction.writeSumFile", mmerrors.IO, pkg.Name, err)
			}
			th = hash.TypedHash{Type: hash.Regular, Digest: d}
		}

		entries = append(entries, installstate.SumEntry{Path: rel, Hash: th})
	}

	if err := installstate.WriteSumFile(a.sumFilePath(pkg), entries); err != nil {
		return err
	}
	return nil
}

// removePkg deletes pkg's files from the prefix, the Go equivalent of
// fschange_remove_pkg.
func (a *Applier) removePkg(pkg *pkgmeta.Record) error {
	a.logf("Removing package %s ...", pkg.Name)

	if err := a.listPkgRemoveFiles(pkg); err != nil {
		a.logf("Failed!")
		return err
	}
	a.removeRmFilesPyCache()
	if err := a.applyRmFilesList(); err != nil {
		a.logf("Failed!")
		return err
	}
	a.updateRmDirs()

	a.installed.Remove(pkg.Name)
	a.manual.Remove(pkg.Name)
	a.logf("OK")
	return nil
}

// upgradePkg replaces oldPkg's files with pkg's, the Go equivalent of
// fschange_upgrade_pkg: the old package's sum-file is listed for removal
// before the new archive is unpacked, so files common to both versions are
// dropped from the removal list by unpackAndMove (mirroring
// fschange_move_instfiles's "drop newly-installed files from rm_files").
func (a *Applier) upgradePkg(ctx context.Context, pkg, oldPkg *pkgmeta.Record, mpkFile string) error {
	operation := "Upgrading"
	if pkgmeta.CompareVersions(pkg.Version, oldPkg.Version) < 0 {
		operation = "Downgrading"
	}
	a.logf("%s package %s (%s) over (%s) ...", operation, pkg.Name, pkg.Version, oldPkg.Version)

	if err := a.listPkgRemoveFiles(oldPkg); err != nil {
		a.logf("Failed!")
		return err
	}
	a.removeRmFilesPyCache()

	instFiles, err := a.unpackAndMove(mpkFile)
	if err != nil {
		a.logf("Failed!")
		return err
	}

	if err := a.applyRmFilesList(); err != nil {
		a.logf("Failed!")
		return err
	}
	a.updateRmDirs()
	if err := a.writeSumFile(pkg, instFiles); err != nil {
		a.logf("Failed!")
		return err
	}
	a.checkInstalledPyScripts(instFiles)

	a.installed.Add(pkg)
	a.logf("OK")
	return nil
}

// unpackAndMove extracts mpkFile's non-metadata entries into the unpack
// scratch directory, numbered by the order they appear in the archive, then
// renames each into its final location, the Go equivalent of
// fschange_pkg_unpack (fschange_unpack_mpk + fschange_move_instfiles).
// Extraction and move are kept as two passes, not one, so that a package's
// files only ever replace the previous ones in a single atomic rename per
// file rather than being overwritten file-by-file mid-extraction.
func (a *Applier) unpackAndMove(mpkFile string) (instFiles []string, err error) {
	scratchDir := a.path(unpackCacheRelPath)

	f, err := os.Open(mpkFile)
	if err != nil {
		return nil, mmerrors.New("transaction.unpackAndMove", mmerrors.IO, "", err)
	}
	defer f.Close()

	scratchPaths, finalPaths, err := archive.ExtractNumbered(f, scratchDir, archive.MetadataPrefix)
	if err != nil {
		return nil, mmerrors.New("transaction.unpackAndMove", mmerrors.BadFormat, "", err)
	}

	// Drop files being installed from the pending removal list (upgrade
	// case) and collect the set of target directories to create.
	finalSet := make(map[string]struct{}, len(finalPaths))
	dirSet := make(map[string]struct{})
	for _, rel := range finalPaths {
		finalSet[a.path(rel)] = struct{}{}
		dirSet[filepath.Dir(a.path(rel))] = struct{}{}
	}
	a.rmFiles = dropStrings(a.rmFiles, finalSet)

	dirs := make([]string, 0, len(dirSet))
	for d := range dirSet {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, mmerrors.New("transaction.unpackAndMove", mmerrors.IO, "", err)
		}
	}

	for i, rel := range finalPaths {
		target := a.path(rel)
		if err := os.Rename(scratchPaths[i], target); err != nil {
			return nil, mmerrors.New("transaction.unpackAndMove", mmerrors.IO, "", err)
		}
	}

	return finalPaths, nil
}

func dropStrings(list []string, drop map[string]struct{}) []string {
	if len(list) == 0 {
		return list
	}
	out := list[:0]
	for _, s := range list {
		if _, ok := drop[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// listPkgRemoveFiles reads pkg's sum-file and queues every listed path for
// removal (plus the sum-file itself), the Go equivalent of
// fschange_list_pkg_rm_files.
func (a *Applier) listPkgRemoveFiles(pkg *pkgmeta.Record) error {
	sumPath := a.sumFilePath(pkg)
	a.rmFiles = append(a.rmFiles, sumPath)

	entries, err := installstate.ReadSumFile(sumPath)
	if err != nil {
		return err
	}
	for _, e := range entries {
		a.rmFiles = append(a.rmFiles, a.path(e.Path))
	}
	return nil
}

func (a *Applier) sumFilePath(pkg *pkgmeta.Record) string {
	return a.path(filepath.Join(metadataRelPath, pkg.Name+".sha256sums"))
}

// applyRmFilesList unlinks every queued file, tolerating files already
// missing, the Go equivalent of fschange_apply_rm_files_list.
func (a *Applier) applyRmFilesList() error {
	for _, path := range a.rmFiles {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return mmerrors.New("transaction.applyRmFilesList", mmerrors.IO, "", err)
		}
	}
	return nil
}

// updateRmDirs adds every parent directory of a removed file (up to the
// prefix root) to the set of directories to try to remove once the whole
// plan has been applied, the Go equivalent of fschange_update_rm_dirs.
func (a *Applier) updateRmDirs() {
	root := filepath.Clean(a.PrefixRoot)
	for _, path := range a.rmFiles {
		dir := filepath.Dir(path)
		for dir != root && dir != "." && dir != string(filepath.Separator) {
			if _, already := a.rmDirs[dir]; already {
				break
			}
			a.rmDirs[dir] = struct{}{}
			dir = filepath.Dir(dir)
		}
	}
}

// applyRmDirs removes every directory collected in rmDirs, deepest first so
// that leaves are removed before their parents, silently ignoring any
// directory that is not empty or cannot be removed, the Go equivalent of
// fschange_apply_rm_dirs.
func (a *Applier) applyRmDirs() {
	dirs := make([]string, 0, len(a.rmDirs))
	for d := range a.rmDirs {
		dirs = append(dirs, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, d := range dirs {
		os.Remove(d)
	}
}

// checkInstalledPyScripts records every just-installed ".py" file so it can
// be fed to the bytecode compiler once the whole plan has been applied, the
// Go equivalent of fschange_check_installed_pyscripts.
func (a *Applier) checkInstalledPyScripts(instFiles []string) {
	for _, rel := range instFiles {
		if strings.HasSuffix(rel, ".py") {
			a.pyScripts[a.path(rel)] = struct{}{}
		}
	}
}

// removeRmFilesPyCache drops the __pycache__ directory entries matching
// each ".py" file queued for removal and queues those cache directories for
// cleanup, the Go equivalent of fschange_remove_rmfiles_pycache.
func (a *Applier) removeRmFilesPyCache() {
	for _, path := range a.rmFiles {
		if !strings.HasSuffix(path, ".py") {
			continue
		}

		delete(a.pyScripts, path)

		dir := filepath.Dir(path)
		base := strings.TrimSuffix(filepath.Base(path), ".py")
		cacheDir := filepath.Join(dir, pycacheSubdir)
		a.rmDirs[cacheDir] = struct{}{}

		entries, err := os.ReadDir(cacheDir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), base) {
				os.Remove(filepath.Join(cacheDir, e.Name()))
			}
		}
	}
}

// compilePyScripts precompiles every script recorded in pyScripts via
// PyCompiler, the Go equivalent of fschange_compile_pyscripts. A nil
// PyCompiler, or an empty script set, is a silent no-op.
func (a *Applier) compilePyScripts(ctx context.Context) {
	if a.PyCompiler == nil || len(a.pyScripts) == 0 {
		return
	}
	scripts := make([]string, 0, len(a.pyScripts))
	for s := range a.pyScripts {
		scripts = append(scripts, s)
	}
	sort.Strings(scripts)
	a.PyCompiler.Compile(ctx, scripts)
}

// CheckInstalledPkg verifies every file of an installed package still
// matches its recorded hash, the Go equivalent of check_installed_pkg.
func CheckInstalledPkg(prefixRoot string, pkg *pkgmeta.Record) error {
	sumPath := filepath.Join(prefixRoot, metadataRelPath, pkg.Name+".sha256sums")

	entries, err := installstate.ReadSumFile(sumPath)
	if err != nil {
		return err
	}

	for _, e := range entries {
		fullPath := filepath.Join(prefixRoot, e.Path)
		if err := checkTypedHash(e.Hash, fullPath); err != nil {
			return mmerrors.New("transaction.CheckInstalledPkg", mmerrors.BadDigest, pkg.Name, err)
		}
	}
	return nil
}

func checkTypedHash(want hash.TypedHash, path string) error {
	var got hash.Digest
	var err error

	switch want.Type {
	case hash.Symlink:
		got, err = hash.SymlinkTarget(path)
	default:
		got, err = hash.File(path)
	}
	if err != nil {
		return err
	}
	if got != want.Digest {
		return fmt.Errorf("hash mismatch for %s", path)
	}
	return nil
}
