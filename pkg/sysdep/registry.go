package sysdep

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	mmerrors "github.com/mindmaze-labs/mmpack-go/pkg/errors"
)

// Entry is one canonical system dependency's per-backend name mapping:
// "canonical name -> per-package-manager-backend name" for mmpack's two
// sysdep backends (dpkg, pacman). A package's sys_deps entries are
// mmpack-source-declared names; a repository may ship a Registry
// translating those into the concrete name each backend's database uses
// (e.g. a repository-declared "openssl" resolving to dpkg's "libssl3").
type Entry struct {
	Name    string            `toml:"name"`
	Backend map[string]string `toml:"backend"`
}

// Registry resolves opaque sys_deps names to a concrete per-backend
// package name, read from a prefix's cached deps/ directory
// (var/lib/mmpack/deps/<name>.toml, one file per name).
type Registry struct {
	depsDir string
}

// NewRegistry returns a Registry rooted at depsDir.
func NewRegistry(depsDir string) *Registry {
	return &Registry{depsDir: depsDir}
}

// Resolve returns the backend-specific name for sysdep name under the
// named backend ("dpkg" or "pacman"), or name itself unchanged if no
// mapping file exists or the backend has no override entry — most sysdeps
// are named identically across distributions, so absence of a mapping is
// the common case, not an error.
func (r *Registry) Resolve(name, backendName string) string {
	path := filepath.Join(r.depsDir, name+".toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return name
	}

	var entry Entry
	if _, err := toml.Decode(string(data), &entry); err != nil {
		return name
	}
	if mapped, ok := entry.Backend[backendName]; ok && mapped != "" {
		return mapped
	}
	return name
}

// ResolveAll maps every name in names through Resolve for the given
// backend.
func (r *Registry) ResolveAll(names []string, backendName string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = r.Resolve(n, backendName)
	}
	return out
}

// LoadRegistry is a convenience constructor validating depsDir exists; a
// missing directory is not itself an error here since Resolve already
// degrades to passthrough.
func LoadRegistry(depsDir string) (*Registry, error) {
	if _, err := os.Stat(depsDir); err != nil && !os.IsNotExist(err) {
		return nil, mmerrors.New("sysdep.LoadRegistry", mmerrors.IO, depsDir, err)
	}
	return NewRegistry(depsDir), nil
}
