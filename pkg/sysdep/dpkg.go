package sysdep

import (
	"bufio"
	"os"
	"strings"

	mmerrors "github.com/mindmaze-labs/mmpack-go/pkg/errors"
)

// defaultDpkgStatusPath is dpkg's local package database, a sequence of
// the same stanza-per-package format as a repository Packages file, with a
// "Status:" field this package reads instead of the repository fields that
// format carries.
const defaultDpkgStatusPath = "/var/lib/dpkg/status"

// DpkgProber answers Missing by scanning a dpkg status database for
// "Package:"/"Status:" stanzas directly, rather than shelling out to a
// helper script, using the same stanza grammar as a remote Packages index.
type DpkgProber struct {
	StatusPath string
}

// Missing reports which of names have no stanza in the dpkg database whose
// Status field ends in the "installed" state (as in "install ok installed").
func (p *DpkgProber) Missing(names []string) ([]string, error) {
	path := p.StatusPath
	if path == "" {
		path = defaultDpkgStatusPath
	}

	installed, err := readDpkgInstalled(path)
	if err != nil {
		return nil, err
	}
	return diffMissing(names, installed), nil
}

// readDpkgInstalled scans path's Package:/Status: stanzas, the Go
// equivalent of ParsePackages's blank-line-delimited stanza loop trimmed to
// the two fields a sysdep check needs.
func readDpkgInstalled(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, mmerrors.New("sysdep.readDpkgInstalled", mmerrors.IO, path, err)
	}
	defer f.Close()

	installed := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var pkgName, status string
	flush := func() {
		if pkgName != "" && strings.HasSuffix(status, " installed") {
			installed[pkgName] = struct{}{}
		}
		pkgName, status = "", ""
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			continue
		}
		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(field) {
		case "Package":
			pkgName = value
		case "Status":
			status = value
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, mmerrors.New("sysdep.readDpkgInstalled", mmerrors.IO, path, err)
	}
	return installed, nil
}
