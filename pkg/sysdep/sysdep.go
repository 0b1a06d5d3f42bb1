// Package sysdep probes the host's native package database for the
// sys_deps names a mmpack package declares. It dispatches on the host OS to
// exactly two concrete backends (dpkg on Linux, pacman/MSYS2 on Windows)
// and errors on anything else, rather than inventing probes for package
// ecosystems this tool never targets (see DESIGN.md for the backends
// evaluated and dropped).
package sysdep

import (
	"fmt"
	"runtime"
	"sort"

	mmerrors "github.com/mindmaze-labs/mmpack-go/pkg/errors"
)

// Prober reports which of a set of system package names are missing from
// the host. Each supported backend implements it independently.
type Prober interface {
	Missing(names []string) ([]string, error)
	// BackendName identifies the backend for Registry name resolution
	// ("dpkg" or "pacman").
	BackendName() string
}

func (p *DpkgProber) BackendName() string   { return "dpkg" }
func (p *PacmanProber) BackendName() string { return "pacman" }

// NewHostProber returns the Prober appropriate for the running host.
// msys2Root is only consulted on Windows (pacman backend); pass "" to use
// the default MSYS2 install location.
func NewHostProber(msys2Root string) (Prober, error) {
	switch runtime.GOOS {
	case "linux":
		return &DpkgProber{StatusPath: defaultDpkgStatusPath}, nil
	case "windows":
		return &PacmanProber{Root: msys2Root}, nil
	default:
		return nil, mmerrors.New("sysdep.NewHostProber", mmerrors.Internal, "", fmt.Errorf("unsupported host OS for sysdep probing: %s", runtime.GOOS))
	}
}

// CheckInstalled reports MISSING_SYSDEP if any of names is absent; it
// implements transaction.SysdepChecker.
type Checker struct {
	Prober   Prober
	Registry *Registry // optional; resolves opaque sys_deps names before probing
}

func (c *Checker) CheckInstalled(names []string) error {
	if len(names) == 0 || c.Prober == nil {
		return nil
	}

	queryNames := names
	if c.Registry != nil {
		queryNames = c.Registry.ResolveAll(names, c.Prober.BackendName())
	}

	missing, err := c.Prober.Missing(queryNames)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return mmerrors.New("sysdep.CheckInstalled", mmerrors.MissingSysdep, "", fmt.Errorf("missing system dependencies: %v", missing))
}

func diffMissing(requested []string, installed map[string]struct{}) []string {
	var missing []string
	for _, name := range requested {
		if _, ok := installed[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
