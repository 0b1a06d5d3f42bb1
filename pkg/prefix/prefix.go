// Package prefix models the isolated installation tree ("prefix") a
// mmpack-go Manager operates on: its on-disk layout (every path resolved
// relative to the prefix root) and its configuration.
package prefix

import "path/filepath"

// Relative paths of every persisted file or directory, anchored at the
// prefix root.
const (
	ConfigRelPath           = "etc/mmpack-config.yaml"
	PkgCacheRelDir          = "var/cache/mmpack/pkgs"
	UnpackCacheRelDir       = "var/cache/mmpack/unpack"
	InstalledListRelPath    = "var/lib/mmpack/installed.yaml"
	ManuallyInstalledRelPath = "var/lib/mmpack/manually-installed.txt"
	MetadataRelDir          = "var/lib/mmpack/metadata"
	LogRelPath              = "var/log/mmpack.log"
)

// BinIndexRelPath returns the per-repository cached binary index path
// (var/lib/mmpack/binindex.yaml.<reponame>).
func BinIndexRelPath(repoName string) string {
	return filepath.Join("var", "lib", "mmpack", "binindex.yaml."+repoName)
}

// Prefix is one installation tree: a root directory plus its resolved
// configuration. Every path-returning method yields an absolute path
// rooted at Root.
type Prefix struct {
	Root   string
	Config *Config
}

func (p *Prefix) path(rel string) string {
	return filepath.Join(p.Root, rel)
}

// ConfigPath is the prefix-local config override file.
func (p *Prefix) ConfigPath() string { return p.path(ConfigRelPath) }

// PkgCacheDir is the content-addressed archive cache directory (C2).
func (p *Prefix) PkgCacheDir() string { return p.path(PkgCacheRelDir) }

// UnpackCacheDir is the transaction applier's scratch extraction directory.
func (p *Prefix) UnpackCacheDir() string { return p.path(UnpackCacheRelDir) }

// InstalledListPath is the installed-package index file (C6).
func (p *Prefix) InstalledListPath() string { return p.path(InstalledListRelPath) }

// ManuallyInstalledPath is the manually-installed name list.
func (p *Prefix) ManuallyInstalledPath() string { return p.path(ManuallyInstalledRelPath) }

// MetadataDir holds one sum-file per installed package.
func (p *Prefix) MetadataDir() string { return p.path(MetadataRelDir) }

// LogPath is the append-only transaction log.
func (p *Prefix) LogPath() string { return p.path(LogRelPath) }

// BinIndexPath is the cached binary index for one configured repository.
func (p *Prefix) BinIndexPath(repoName string) string {
	return p.path(BinIndexRelPath(repoName))
}
