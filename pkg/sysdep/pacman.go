package sysdep

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	mmerrors "github.com/mindmaze-labs/mmpack-go/pkg/errors"
)

const defaultMSYS2Root = `C:\msys64`

// pacmanLocalRelDir is the pacman local package database directory relative
// to the MSYS2 root, the Go equivalent of sysdeps.c's pacmandb_relpath.
const pacmanLocalRelDir = `var/lib/pacman/local`

// PacmanProber answers Missing by reading the package names recorded in a
// MSYS2 pacman local database, the Go equivalent of
// pacman_check_sysdeps_installed.
type PacmanProber struct {
	// Root is the MSYS2 installation root (e.g. "C:\msys64"); empty uses
	// cygpathRoot.
	Root string
}

// cygpathRoot shells out to "cygpath.exe -w /" to resolve the MSYS2 root,
// falling back to defaultMSYS2Root on any failure.
func cygpathRoot() string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "cygpath.exe", "-w", "/").Output()
	if err != nil {
		return defaultMSYS2Root
	}
	return strings.TrimRight(string(out), "\r\n")
}

func (p *PacmanProber) root() string {
	if p.Root != "" {
		return p.Root
	}
	return cygpathRoot()
}

// Missing reports which of names have no corresponding %NAME% entry among
// the pacman local database's per-package desc files.
func (p *PacmanProber) Missing(names []string) ([]string, error) {
	installed, err := readPacmanInstalled(filepath.Join(p.root(), pacmanLocalRelDir))
	if err != nil {
		return nil, err
	}
	return diffMissing(names, installed), nil
}

// readPacmanInstalled lists every package-dir/desc's %NAME% value under
// localDir, the Go equivalent of pacman_populate_instpkgs.
func readPacmanInstalled(localDir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(localDir)
	if os.IsNotExist(err) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, mmerrors.New("sysdep.readPacmanInstalled", mmerrors.IO, localDir, err)
	}

	installed := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name, err := readDescName(filepath.Join(localDir, e.Name(), "desc"))
		if err != nil {
			continue
		}
		if name != "" {
			installed[name] = struct{}{}
		}
	}
	return installed, nil
}

// readDescName reads a pacman "desc" file and returns its %NAME% value,
// the Go equivalent of read_pkgname: the file is a sequence of "%HEADER%"
// lines each followed by one value line, the same %HEADER%/value grammar
// pkg/pacman/parser.go's parseDescFile tokenizes for a sync-database tar
// stream, here applied line-by-line to a single on-disk local-db entry.
func readDescName(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var header string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "%") && strings.HasSuffix(line, "%") {
			header = line
			continue
		}
		if header == "%NAME%" {
			return strings.TrimSpace(line), scanner.Err()
		}
	}
	return "", scanner.Err()
}
