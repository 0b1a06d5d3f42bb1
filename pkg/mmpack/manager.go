// Package mmpack is the re-exported facade wiring the prefix, binary
// index, install state, solver, transaction applier and content-addressed
// cache into the handful of operations a command-line front end needs: a
// thin façade over the core packages rather than a place for new logic.
package mmpack

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/mindmaze-labs/mmpack-go/pkg/binindex"
	mmerrors "github.com/mindmaze-labs/mmpack-go/pkg/errors"
	"github.com/mindmaze-labs/mmpack-go/pkg/fetch"
	"github.com/mindmaze-labs/mmpack-go/pkg/installstate"
	"github.com/mindmaze-labs/mmpack-go/pkg/mount"
	"github.com/mindmaze-labs/mmpack-go/pkg/pkgmeta"
	"github.com/mindmaze-labs/mmpack-go/pkg/plan"
	"github.com/mindmaze-labs/mmpack-go/pkg/prefix"
	"github.com/mindmaze-labs/mmpack-go/pkg/repoindex"
	"github.com/mindmaze-labs/mmpack-go/pkg/solver"
	"github.com/mindmaze-labs/mmpack-go/pkg/store"
	"github.com/mindmaze-labs/mmpack-go/pkg/sysdep"
	"github.com/mindmaze-labs/mmpack-go/pkg/transaction"
)

// Re-export the core types a front end needs to name.
type (
	Record    = pkgmeta.Record
	Plan      = plan.Plan
	Action    = plan.Action
	Prober    = sysdep.Prober
	Prefix    = prefix.Prefix
	Config    = prefix.Config
	RepoEntry = prefix.RepoConfig
)

// Manager owns one opened prefix's full state: its binary index, installed
// set and manually-installed set, and the collaborators (fetcher, cache,
// sysdep checker, mount helper) the core packages treat as external.
type Manager struct {
	Prefix    *prefix.Prefix
	Index     *binindex.Index
	Installed *installstate.Store
	Manual    *installstate.ManuallyInstalled

	HTTP    *fetch.HTTPClient
	Cache   *store.Cache
	Sysdeps *sysdep.Checker
	Mount   *mount.Helper
	Logger  *log.Logger
}

// Open loads an existing prefix at root: its merged configuration,
// installed set, manually-installed set, and the binary index built from
// every configured repository's synced index file.
func Open(root string) (*Manager, error) {
	p, err := prefix.Open(root)
	if err != nil {
		return nil, err
	}

	installed, err := installstate.LoadInstalled(p.InstalledListPath())
	if err != nil {
		return nil, err
	}

	manual, err := installstate.LoadManuallyInstalled(p.ManuallyInstalledPath())
	if err != nil {
		return nil, err
	}

	index := binindex.New()
	for _, repo := range p.Config.Repositories {
		if err := loadRepoIndex(index, p, repo); err != nil {
			return nil, err
		}
	}
	registerInstalled(index, installed)

	httpClient := fetch.NewHTTPClient()
	cache, err := store.New(p.PkgCacheDir(), httpClient)
	if err != nil {
		return nil, err
	}

	prober, err := sysdep.NewHostProber("")
	var sysdeps *sysdep.Checker
	if err == nil {
		registry, rerr := sysdep.LoadRegistry(filepath.Join(filepath.Dir(p.MetadataDir()), "deps"))
		if rerr != nil {
			return nil, rerr
		}
		sysdeps = &sysdep.Checker{Prober: prober, Registry: registry}
	}

	logger := log.New(os.Stderr, "", 0)

	return &Manager{
		Prefix:    p,
		Index:     index,
		Installed: installed,
		Manual:    manual,
		HTTP:      httpClient,
		Cache:     cache,
		Sysdeps:   sysdeps,
		Mount:     &mount.Helper{},
		Logger:    logger,
	}, nil
}

// Create initializes a fresh prefix at root and opens it, the Go
// equivalent of mmpack-mkprefix.
func Create(root string) (*Manager, error) {
	if _, err := prefix.Create(root); err != nil {
		return nil, err
	}
	return Open(root)
}

func loadRepoIndex(index *binindex.Index, p *prefix.Prefix, repo prefix.RepoConfig) error {
	f, err := os.Open(p.BinIndexPath(repo.Name))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return mmerrors.New("mmpack.loadRepoIndex", mmerrors.IO, repo.Name, err)
	}
	defer f.Close()

	records, err := repoindex.ParseIndex(f, repo.Name)
	if err != nil {
		return err
	}
	for _, r := range records {
		index.AddRecord(r)
	}
	return nil
}

// registerInstalled folds every installed record not already provided by a
// repository into the index as a ghost entry, the Go equivalent of
// binindex_populate's handling of installed packages absent from every
// synced repository index (e.g. a repository that dropped a package still
// installed locally).
func registerInstalled(index *binindex.Index, installed *installstate.Store) {
	installed.ForEach(func(pkg *pkgmeta.Record) {
		for _, existing := range index.Records(pkg.Name) {
			if existing.Version == pkg.Version && existing.SumDigest == pkg.SumDigest {
				return
			}
		}
		ghost := *pkg
		ghost.Flags |= pkgmeta.FlagGhost
		index.AddRecord(&ghost)
	})
}

func (m *Manager) installedMap() map[string]*pkgmeta.Record {
	out := make(map[string]*pkgmeta.Record, m.Installed.Len())
	m.Installed.ForEach(func(pkg *pkgmeta.Record) { out[pkg.Name] = pkg })
	return out
}

func (m *Manager) applier() *transaction.Applier {
	return &transaction.Applier{
		PrefixRoot: m.Prefix.Root,
		Fetcher:    &store.ResourceFetcher{Cache: m.Cache},
		Sysdeps:    m.Sysdeps,
		Logger:     m.Logger,
	}
}

// Sync refreshes every configured repository's index, the Go equivalent of
// mmpack-update.
func (m *Manager) Sync(ctx context.Context) error {
	for _, repo := range m.Prefix.Config.Repositories {
		sr := repoindex.Repository{Name: repo.Name, URL: repo.URL, IndexBranch: repo.IndexBranch}
		cacheDir := filepath.Dir(m.Prefix.BinIndexPath(repo.Name))
		if err := os.MkdirAll(cacheDir, 0755); err != nil {
			return mmerrors.New("mmpack.Sync", mmerrors.IO, repo.Name, err)
		}

		var err error
		if repo.IndexBranch != "" {
			err = repoindex.SyncGit(cacheDir, sr)
		} else {
			err = repoindex.SyncHTTP(ctx, cacheDir, sr, m.HTTP)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Install computes the action plan installing names (and whatever they
// pull in) and, once accepted by confirm, applies it, the Go equivalent of
// mmpack-install.
func (m *Manager) Install(ctx context.Context, names []string, confirm func(*plan.Plan) bool) (*plan.Plan, error) {
	reqs := make([]solver.Request, len(names))
	for i, n := range names {
		reqs[i] = solver.Request{Name: n, Version: pkgmeta.AnyVersion}
	}

	p, err := solver.Install(m.Index, m.installedMap(), reqs)
	if err != nil {
		return nil, err
	}
	if err := m.confirmAndApply(ctx, p, len(names), confirm); err != nil {
		return nil, err
	}
	for _, n := range names {
		m.Manual.Add(n)
	}
	return p, m.saveState()
}

// Remove computes the action plan removing names and their reverse
// dependencies, the Go equivalent of mmpack-remove.
func (m *Manager) Remove(ctx context.Context, names []string, confirm func(*plan.Plan) bool) (*plan.Plan, error) {
	p := solver.Remove(m.Index, m.installedMap(), names)
	if err := m.confirmAndApply(ctx, p, len(names), confirm); err != nil {
		return nil, err
	}
	for _, n := range names {
		m.Manual.Remove(n)
	}
	return p, m.saveState()
}

// Upgrade computes the action plan upgrading names to their newest
// satisfying version; an empty names upgrades every installed package that
// has a newer available version, the Go equivalent of mmpack-upgrade.
func (m *Manager) Upgrade(ctx context.Context, names []string, confirm func(*plan.Plan) bool) (*plan.Plan, error) {
	if len(names) == 0 {
		names = m.upgradeableNames()
	}
	if len(names) == 0 {
		return &plan.Plan{}, nil
	}

	p, err := solver.Upgrade(m.Index, m.installedMap(), names)
	if err != nil {
		return nil, err
	}
	if err := m.confirmAndApply(ctx, p, len(names), confirm); err != nil {
		return nil, err
	}
	return p, m.saveState()
}

func (m *Manager) upgradeableNames() []string {
	var names []string
	m.Installed.ForEach(func(pkg *pkgmeta.Record) {
		if m.Index.IsUpgradeable(pkg) {
			names = append(names, pkg.Name)
		}
	})
	sort.Strings(names)
	return names
}

// confirmAndApply runs confirm (if set and the plan needs it) before
// applying p, the Go equivalent of confirm_action_stack_if_needed guarding
// apply_action_stack.
func (m *Manager) confirmAndApply(ctx context.Context, p *plan.Plan, requestedCount int, confirm func(*plan.Plan) bool) error {
	if p.IsEmpty() {
		return nil
	}
	if confirm != nil && p.NeedsConfirmation(requestedCount) {
		if !confirm(p) {
			return mmerrors.New("mmpack.confirmAndApply", mmerrors.Internal, "", fmt.Errorf("aborted: transaction not confirmed"))
		}
	}
	return m.applier().Apply(ctx, p, m.Installed, m.Manual)
}

func (m *Manager) saveState() error {
	if err := installstate.SaveInstalled(m.Prefix.InstalledListPath(), m.Installed); err != nil {
		return err
	}
	return installstate.SaveManuallyInstalled(m.Prefix.ManuallyInstalledPath(), m.Manual)
}

// Autoremove removes every installed package that was not manually
// installed and is no longer a dependency of anything, the Go equivalent
// of mmpack-autoremove.c's leaf-sweep.
func (m *Manager) Autoremove(ctx context.Context, confirm func(*plan.Plan) bool) (*plan.Plan, error) {
	var orphans []string
	installed := m.installedMap()
	m.Installed.ForEach(func(pkg *pkgmeta.Record) {
		if m.Manual.Contains(pkg.Name) {
			return
		}
		if len(m.Index.InstalledReverseDependencies(pkg, installed)) == 0 {
			orphans = append(orphans, pkg.Name)
		}
	})
	if len(orphans) == 0 {
		return &plan.Plan{}, nil
	}
	sort.Strings(orphans)
	return m.Remove(ctx, orphans, confirm)
}

// List returns every installed record, sorted by name.
func (m *Manager) List() []*pkgmeta.Record {
	names := m.Installed.Names()
	out := make([]*pkgmeta.Record, len(names))
	for i, n := range names {
		out[i] = m.Installed.Get(n)
	}
	return out
}

// Show returns every known version of name across all repositories plus
// the installed state.
func (m *Manager) Show(name string) []*pkgmeta.Record {
	return m.Index.Records(name)
}

// Search returns the record of every package known to the index whose name or
// description contains query, the Go equivalent of mmpack-search's
// substring filter over the loaded binary index.
func (m *Manager) Search(query string) []*pkgmeta.Record {
	var out []*pkgmeta.Record
	m.Index.ForEach(func(pkg *pkgmeta.Record) {
		if containsFold(pkg.Name, query) || containsFold(pkg.Desc, query) {
			out = append(out, pkg)
		}
	})
	return out
}

// Rdepends returns every installed package that directly depends on name,
// the Go equivalent of mmpack-rdepends. Reverse dependencies of those
// packages are not followed.
func (m *Manager) Rdepends(name string) []*pkgmeta.Record {
	pkg := m.Installed.Get(name)
	if pkg == nil {
		return nil
	}
	return m.Index.InstalledReverseDependencies(pkg, m.installedMap())
}

// Provides returns every installed package providing a file at path (the
// package whose sum-file lists it), the Go equivalent of mmpack-provides.
func (m *Manager) Provides(path string) ([]string, error) {
	var owners []string
	for _, name := range m.Installed.Names() {
		entries, err := installstate.ReadSumFile(filepath.Join(m.Prefix.MetadataDir(), name+".sha256sums"))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.Path == path {
				owners = append(owners, name)
				break
			}
		}
	}
	return owners, nil
}

// CheckIntegrity verifies every installed package's recorded file hashes
// (or a single one if pkgName is non-empty), the Go equivalent of
// mmpack-check-integrity.
func (m *Manager) CheckIntegrity(pkgName string) ([]transaction.IntegrityReport, error) {
	return transaction.CheckIntegrity(m.Prefix.Root, m.Installed, pkgName)
}

// FixBroken reinstalls pkgName over itself to repair a failed integrity
// check, or every broken package if pkgName is empty, the Go equivalent of
// mmpack-fix-broken.
func (m *Manager) FixBroken(ctx context.Context, pkgName string) error {
	a := m.applier()
	if pkgName == "" {
		return a.FixAllBroken(ctx, m.Installed, m.Manual)
	}
	pkg := m.Installed.Get(pkgName)
	if pkg == nil {
		return mmerrors.New("mmpack.FixBroken", mmerrors.NotFound, pkgName, fmt.Errorf("package %s is not installed", pkgName))
	}
	return a.FixBroken(ctx, m.Installed, m.Manual, pkg)
}

// AddRepo appends repo to the prefix configuration and persists it, the Go
// equivalent of mmpack-repo add.
func (m *Manager) AddRepo(repo prefix.RepoConfig) error {
	m.Prefix.Config.Repositories = append(m.Prefix.Config.Repositories, repo)
	return prefix.SaveConfig(m.Prefix.Config, m.Prefix.ConfigPath())
}

// RemoveRepo drops the repository named name from the prefix
// configuration and persists it, the Go equivalent of mmpack-repo remove.
func (m *Manager) RemoveRepo(name string) error {
	repos := m.Prefix.Config.Repositories[:0]
	for _, r := range m.Prefix.Config.Repositories {
		if r.Name != name {
			repos = append(repos, r)
		}
	}
	m.Prefix.Config.Repositories = repos
	return prefix.SaveConfig(m.Prefix.Config, m.Prefix.ConfigPath())
}

// Repos returns the prefix's configured repositories.
func (m *Manager) Repos() []prefix.RepoConfig {
	return m.Prefix.Config.Repositories
}

func containsFold(s, substr string) bool {
	if substr == "" {
		return true
	}
	return indexFold(s, substr) >= 0
}

// indexFold is a small case-insensitive substring search, avoiding a
// strings.ToLower allocation on every candidate the way mmpack-search's
// filter loop does over an in-memory index.
func indexFold(s, substr string) int {
	ls, lsub := len(s), len(substr)
	if lsub == 0 {
		return 0
	}
	for i := 0; i+lsub <= ls; i++ {
		if equalFold(s[i:i+lsub], substr) {
			return i
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
