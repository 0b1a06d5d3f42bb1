package repoindex

import (
	"io"

	"gopkg.in/yaml.v3"

	mmerrors "github.com/mindmaze-labs/mmpack-go/pkg/errors"
	"github.com/mindmaze-labs/mmpack-go/pkg/hash"
	"github.com/mindmaze-labs/mmpack-go/pkg/pkgmeta"
)

// legacyRecord is the "pkg-name: {version: ..., depends: {dep: [min, max]}}"
// YAML-mapping shape used by installed-lists written by older mmpack
// releases, the Go equivalent of the YAML branch of binindex_populate
// (mmpack_parse_dependency's "pkg-b: [0.0.2, any]" pair grammar).
type legacyRecord struct {
	Version    string              `yaml:"version"`
	Source     string              `yaml:"source"`
	SrcSHA256  string              `yaml:"srcsha256"`
	SumSHA256  string              `yaml:"sumsha256sums"`
	Ghost      bool                `yaml:"ghost"`
	Depends    map[string][2]string `yaml:"depends"`
	SysDepends []string            `yaml:"sysdepends"`
}

// ParseLegacyIndex reads an installed-list or binary index in the legacy
// YAML-mapping layout ("name: {version: ..., depends: {dep: [min, max]}}"),
// the Go equivalent of binindex_populate's YAML parsing path
// (mmpack_parse_dependency/mmpack_parse_deplist) for files produced by a
// pre-block-format mmpack release.
func ParseLegacyIndex(r io.Reader) ([]*pkgmeta.Record, error) {
	var raw map[string]legacyRecord
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, mmerrors.New("repoindex.ParseLegacyIndex", mmerrors.BadFormat, "", err)
	}

	records := make([]*pkgmeta.Record, 0, len(raw))
	for name, lr := range raw {
		rec := &pkgmeta.Record{
			Name:       name,
			Version:    lr.Version,
			Source:     lr.Source,
			SysDepends: lr.SysDepends,
		}
		if lr.Ghost {
			rec.Flags |= pkgmeta.FlagGhost
		}
		if lr.SrcSHA256 != "" {
			d, err := hash.FromHex(lr.SrcSHA256)
			if err != nil {
				return nil, mmerrors.New("repoindex.ParseLegacyIndex", mmerrors.BadFormat, name, err)
			}
			rec.SrcDigest = d
		}
		if lr.SumSHA256 != "" {
			d, err := hash.FromHex(lr.SumSHA256)
			if err != nil {
				return nil, mmerrors.New("repoindex.ParseLegacyIndex", mmerrors.BadFormat, name, err)
			}
			rec.SumDigest = d
		}
		for depName, bounds := range lr.Depends {
			rec.Depends = append(rec.Depends, pkgmeta.DepSpec{
				Name:       depName,
				MinVersion: bounds[0],
				MaxVersion: bounds[1],
			})
		}
		records = append(records, rec)
	}
	return records, nil
}
