// Package installstate tracks what is currently installed in a prefix: the
// installed-package set keyed by name, the manually-installed subset, and
// each package's per-file sum manifest, grounded on install-state.c,
// manually_installed.c and sumsha.c.
package installstate

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	mmerrors "github.com/mindmaze-labs/mmpack-go/pkg/errors"
	"github.com/mindmaze-labs/mmpack-go/pkg/hash"
	"github.com/mindmaze-labs/mmpack-go/pkg/pkgmeta"
	"github.com/mindmaze-labs/mmpack-go/pkg/repoindex"
)

// Store is a name-keyed index of installed packages, backed by a plain map.
type Store struct {
	byName map[string]*pkgmeta.Record
}

// New returns an empty Store.
func New() *Store {
	return &Store{byName: make(map[string]*pkgmeta.Record)}
}

// Clone returns a deep-enough copy of s (new map, same *Record pointers),
// the Go equivalent of install_state_copy — used by the solver to snapshot
// state at a branch point without mutating the caller's Store.
func (s *Store) Clone() *Store {
	clone := &Store{byName: make(map[string]*pkgmeta.Record, len(s.byName))}
	for k, v := range s.byName {
		clone.byName[k] = v
	}
	return clone
}

// Get returns the installed record for name, or nil if name is not
// installed, the Go equivalent of install_state_get_pkg.
func (s *Store) Get(name string) *pkgmeta.Record {
	return s.byName[name]
}

// Add installs (or replaces) pkg under its own name, the Go equivalent of
// install_state_add_pkg.
func (s *Store) Add(pkg *pkgmeta.Record) {
	s.byName[pkg.Name] = pkg
}

// Remove uninstalls the package named name, the Go equivalent of
// install_state_rm_pkgname. It is a no-op if name is not installed.
func (s *Store) Remove(name string) {
	delete(s.byName, name)
}

// Len returns the number of installed packages.
func (s *Store) Len() int {
	return len(s.byName)
}

// ForEach calls fn for every installed record, in unspecified order.
func (s *Store) ForEach(fn func(*pkgmeta.Record)) {
	for _, pkg := range s.byName {
		fn(pkg)
	}
}

// Names returns the sorted list of installed package names.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupTable returns a dense, name-id-indexed slice of installed records
// (nil where a name id has no installed package), the Go equivalent of
// install_state_fill_lookup_table. numNames must be at least
// index.NumNames().
func (s *Store) LookupTable(nameID func(name string) int32, numNames int) []*pkgmeta.Record {
	table := make([]*pkgmeta.Record, numNames)
	for name, pkg := range s.byName {
		table[nameID(name)] = pkg
	}
	return table
}

// LoadInstalled reads var/lib/mmpack/installed.yaml (the repository-index
// block format minus filename/sha256/size) into a fresh Store. A missing
// file yields an empty Store, matching a freshly created prefix.
func LoadInstalled(path string) (*Store, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, mmerrors.New("installstate.LoadInstalled", mmerrors.IO, "", err)
	}
	defer f.Close()

	records, err := repoindex.ParseIndex(f, "")
	if err != nil {
		return nil, err
	}

	s := New()
	for _, r := range records {
		s.Add(r)
	}
	return s, nil
}

// SaveInstalled writes path in the same block format LoadInstalled reads.
func SaveInstalled(path string, s *Store) error {
	names := s.Names()
	records := make([]*pkgmeta.Record, len(names))
	for i, name := range names {
		records[i] = s.byName[name]
	}

	f, err := os.Create(path)
	if err != nil {
		return mmerrors.New("installstate.SaveInstalled", mmerrors.IO, "", err)
	}
	defer f.Close()

	if err := repoindex.WriteIndex(f, records, false); err != nil {
		return mmerrors.New("installstate.SaveInstalled", mmerrors.Internal, "", err)
	}
	return nil
}

// ManuallyInstalled is the set of package names the user explicitly
// requested (as opposed to pulled in only as a dependency), persisted as a
// plain text file with one name per line (see SaveManuallyInstalled).
type ManuallyInstalled struct {
	names map[string]struct{}
}

// NewManuallyInstalled returns an empty set.
func NewManuallyInstalled() *ManuallyInstalled {
	return &ManuallyInstalled{names: make(map[string]struct{})}
}

// Add marks name as manually installed.
func (m *ManuallyInstalled) Add(name string) {
	m.names[name] = struct{}{}
}

// Remove unmarks name. A name absent from the set is not an error.
func (m *ManuallyInstalled) Remove(name string) {
	delete(m.names, name)
}

// Contains reports whether name is in the manually-installed set.
func (m *ManuallyInstalled) Contains(name string) bool {
	_, ok := m.names[name]
	return ok
}

// Names returns the sorted list of manually-installed package names.
func (m *ManuallyInstalled) Names() []string {
	names := make([]string, 0, len(m.names))
	for name := range m.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadManuallyInstalled reads a manually-installed.txt file (one package
// name per line) into a fresh set. A missing file yields an empty set,
// matching the behavior expected of a freshly created prefix.
func LoadManuallyInstalled(path string) (*ManuallyInstalled, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return NewManuallyInstalled(), nil
	}
	if err != nil {
		return nil, mmerrors.New("installstate.LoadManuallyInstalled", mmerrors.IO, "", err)
	}
	defer f.Close()

	m := NewManuallyInstalled()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name != "" {
			m.Add(name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, mmerrors.New("installstate.LoadManuallyInstalled", mmerrors.IO, "", err)
	}
	return m, nil
}

// SaveManuallyInstalled writes path as one package name per line, the Go
// equivalent of dump_manually_installed under the redesigned plain-text
// format.
func SaveManuallyInstalled(path string, m *ManuallyInstalled) error {
	var sb strings.Builder
	for _, name := range m.Names() {
		sb.WriteString(name)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return mmerrors.New("installstate.SaveManuallyInstalled", mmerrors.IO, "", err)
	}
	return nil
}

// SumEntry is one line of a package's sum-file: the installed path (prefix
// relative) and its typed hash.
type SumEntry struct {
	Path string
	Hash hash.TypedHash
}

// ReadSumFile parses a "<path> : <type>-<hex>" per-line sum-file, the Go
// equivalent of read_sha256sums/sumsha_reader_next.
func ReadSumFile(path string) ([]SumEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, mmerrors.New("installstate.ReadSumFile", mmerrors.IO, "", err)
	}
	defer f.Close()

	var entries []SumEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		idx := strings.LastIndex(line, ":")
		if idx < 0 {
			return nil, mmerrors.New("installstate.ReadSumFile", mmerrors.BadFormat, "", fmt.Errorf("malformed sum-file line %q", line))
		}
		filePath := strings.TrimSpace(line[:idx])
		hashStr := strings.TrimSpace(line[idx+1:])
		th, err := hash.ParseTypedHash(hashStr)
		if err != nil {
			return nil, err
		}
		entries = append(entries, SumEntry{Path: filePath, Hash: th})
	}
	if err := scanner.Err(); err != nil {
		return nil, mmerrors.New("installstate.ReadSumFile", mmerrors.IO, "", err)
	}
	return entries, nil
}

// WriteSumFile writes entries to path in the "<path> : <type>-<hex>" form.
func WriteSumFile(path string, entries []SumEntry) error {
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s : %s\n", e.Path, e.Hash)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return mmerrors.New("installstate.WriteSumFile", mmerrors.IO, "", err)
	}
	return nil
}
