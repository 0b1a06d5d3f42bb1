// Package repoindex parses and writes the repository index and
// installed-list on-disk formats and syncs a repository's index into the
// prefix cache, using a stanza-based key-value scanner generalized to
// mmpack's block format and multi-value fields.
package repoindex

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strconv"
	"strings"

	mmerrors "github.com/mindmaze-labs/mmpack-go/pkg/errors"
	"github.com/mindmaze-labs/mmpack-go/pkg/hash"
	"github.com/mindmaze-labs/mmpack-go/pkg/pkgmeta"
)

var gzipMagic = []byte{0x1f, 0x8b}

// block is one raw key/value record before conversion to a pkgmeta.Record:
// one stanza between blank lines in the key-value index format.
type block map[string]string

// openMaybeGzip auto-detects gzip wrapping by its two-byte magic, so an
// index file can be stored either plain or compressed.
func openMaybeGzip(r io.Reader) (io.Reader, error) {
	br := make([]byte, 2)
	n, err := io.ReadFull(r, br)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	head := br[:n]
	rest := io.MultiReader(bytes.NewReader(head), r)

	if len(head) == 2 && bytes.Equal(head, gzipMagic) {
		return gzip.NewReader(rest)
	}
	return rest, nil
}

// scanBlocks splits r into key-value blocks separated by blank lines, with
// values continued on subsequent indented lines. A continuation line
// extends the *current* key's value with a newline, rather than always
// appending to a fixed field the way a dpkg status file would.
func scanBlocks(r io.Reader) ([]block, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var blocks []block
	var current block
	var lastKey string

	flush := func() {
		if current != nil && len(current) > 0 {
			blocks = append(blocks, current)
		}
		current = nil
		lastKey = ""
	}

	for scanner.Scan() {
		line := scanner.Text()

		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}

		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if current != nil && lastKey != "" {
				current[lastKey] += "\n" + strings.TrimSpace(line)
			}
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if current == nil {
			current = make(block)
		}
		current[key] = value
		lastKey = key
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning index: %w", err)
	}
	return blocks, nil
}

// parseDepList parses a comma-separated "pkg (op ver)" dependency list into
// DepSpecs: op is one of "=", ">=", "<"; a bare name with no parenthesised
// constraint depends on any version.
func parseDepList(s string) []pkgmeta.DepSpec {
	if s == "" {
		return nil
	}
	var deps []pkgmeta.DepSpec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		deps = append(deps, parseDepSpec(part))
	}
	return deps
}

func parseDepSpec(s string) pkgmeta.DepSpec {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return pkgmeta.DepSpec{Name: s, MinVersion: pkgmeta.AnyVersion, MaxVersion: pkgmeta.AnyVersion}
	}

	name := strings.TrimSpace(s[:open])
	constraint := strings.TrimSuffix(strings.TrimSpace(s[open+1:]), ")")

	dep := pkgmeta.DepSpec{Name: name, MinVersion: pkgmeta.AnyVersion, MaxVersion: pkgmeta.AnyVersion}
	switch {
	case strings.HasPrefix(constraint, ">="):
		dep.MinVersion = strings.TrimSpace(constraint[2:])
	case strings.HasPrefix(constraint, "<"):
		dep.MaxVersion = strings.TrimSpace(constraint[1:])
	case strings.HasPrefix(constraint, "="):
		v := strings.TrimSpace(constraint[1:])
		dep.MinVersion = v
		dep.MaxVersion = v
	}
	return dep
}

func parseStrList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func blockToRecord(b block, repo string) (*pkgmeta.Record, error) {
	name, ok := b["name"]
	if !ok {
		return nil, fmt.Errorf("record block missing required key \"name\"")
	}

	r := &pkgmeta.Record{
		Name:       name,
		Version:    b["version"],
		Source:     b["source"],
		Desc:       b["description"],
		Depends:    parseDepList(b["depends"]),
		SysDepends: parseStrList(b["sysdepends"]),
	}

	if srcsha, ok := b["srcsha256"]; ok && srcsha != "" {
		d, err := hash.FromHex(srcsha)
		if err != nil {
			return nil, fmt.Errorf("package %s: srcsha256: %w", name, err)
		}
		r.SrcDigest = d
	}

	if sumsha, ok := b["sumsha256sums"]; ok && sumsha != "" {
		d, err := hash.FromHex(sumsha)
		if err != nil {
			return nil, fmt.Errorf("package %s: sumsha256sums: %w", name, err)
		}
		r.SumDigest = d
	}

	if b["ghost"] == "true" || b["ghost"] == "1" {
		r.Flags |= pkgmeta.FlagGhost
	}

	if filename, ok := b["filename"]; ok && filename != "" {
		res := pkgmeta.RemoteResource{Repo: repo, Filename: filename}
		if sha256, ok := b["sha256"]; ok && sha256 != "" {
			d, err := hash.FromHex(sha256)
			if err != nil {
				return nil, fmt.Errorf("package %s: sha256: %w", name, err)
			}
			res.SHA256 = d
		}
		if size, ok := b["size"]; ok && size != "" {
			n, err := strconv.ParseInt(size, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("package %s: size: %w", name, err)
			}
			res.Size = n
		}
		r.Remotes = append(r.Remotes, res)
	}

	return r, nil
}

// ParseIndex reads a repository index (or an installed-list, which shares
// the same block grammar minus the filename/sha256/size keys) optionally
// gzip-wrapped, into a flat list of Records, the Go equivalent of
// binindex_populate's per-source parse step. repo names the source this
// index came from, attached to any RemoteResource built from a filename
// key; pass "" when parsing an installed-list.
func ParseIndex(r io.Reader, repo string) ([]*pkgmeta.Record, error) {
	stream, err := openMaybeGzip(r)
	if err != nil {
		return nil, mmerrors.New("repoindex.ParseIndex", mmerrors.BadFormat, "", err)
	}

	blocks, err := scanBlocks(stream)
	if err != nil {
		return nil, mmerrors.New("repoindex.ParseIndex", mmerrors.BadFormat, "", err)
	}

	records := make([]*pkgmeta.Record, 0, len(blocks))
	for _, b := range blocks {
		rec, err := blockToRecord(b, repo)
		if err != nil {
			return nil, mmerrors.New("repoindex.ParseIndex", mmerrors.BadFormat, "", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// WriteIndex serializes records in the block key-value format (used both
// to persist var/lib/mmpack/installed.yaml and, by a repository maintainer
// tool, a repo's own binindex.yaml). includeRemote controls whether
// filename/sha256/size are emitted (true for a repo index, false for the
// installed-list).
func WriteIndex(w io.Writer, records []*pkgmeta.Record, includeRemote bool) error {
	bw := bufio.NewWriter(w)
	for i, r := range records {
		fmt.Fprintf(bw, "name: %s\n", r.Name)
		fmt.Fprintf(bw, "version: %s\n", r.Version)
		fmt.Fprintf(bw, "source: %s\n", r.Source)
		fmt.Fprintf(bw, "srcsha256: %s\n", r.SrcDigest)
		fmt.Fprintf(bw, "sumsha256sums: %s\n", r.SumDigest)
		fmt.Fprintf(bw, "ghost: %t\n", r.IsGhost())
		if r.Desc != "" {
			fmt.Fprintf(bw, "description: %s\n", strings.ReplaceAll(r.Desc, "\n", "\n "))
		}
		if len(r.Depends) > 0 {
			fmt.Fprintf(bw, "depends: %s\n", joinDepSpecs(r.Depends))
		}
		if len(r.SysDepends) > 0 {
			fmt.Fprintf(bw, "sysdepends: %s\n", strings.Join(r.SysDepends, ", "))
		}
		if includeRemote && len(r.Remotes) > 0 {
			res := r.Remotes[0]
			fmt.Fprintf(bw, "filename: %s\n", res.Filename)
			fmt.Fprintf(bw, "sha256: %s\n", res.SHA256)
			fmt.Fprintf(bw, "size: %d\n", res.Size)
		}
		if i != len(records)-1 {
			fmt.Fprint(bw, "\n")
		}
	}
	return bw.Flush()
}

func joinDepSpecs(deps []pkgmeta.DepSpec) string {
	parts := make([]string, len(deps))
	for i, d := range deps {
		parts[i] = formatDepSpec(d)
	}
	return strings.Join(parts, ", ")
}

func formatDepSpec(d pkgmeta.DepSpec) string {
	switch {
	case d.MinVersion == pkgmeta.AnyVersion && d.MaxVersion == pkgmeta.AnyVersion:
		return d.Name
	case d.MinVersion != pkgmeta.AnyVersion && d.MinVersion == d.MaxVersion:
		return fmt.Sprintf("%s (= %s)", d.Name, d.MinVersion)
	case d.MinVersion != pkgmeta.AnyVersion:
		return fmt.Sprintf("%s (>= %s)", d.Name, d.MinVersion)
	case d.MaxVersion != pkgmeta.AnyVersion:
		return fmt.Sprintf("%s (< %s)", d.Name, d.MaxVersion)
	default:
		return d.Name
	}
}
