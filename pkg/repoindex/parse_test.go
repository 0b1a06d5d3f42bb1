package repoindex

import (
	"bytes"
	"compress/gzip"
	"strings"
	"testing"

	"github.com/mindmaze-labs/mmpack-go/pkg/pkgmeta"
)

const twoPkgIndex = `name: pkg-a
version: 0.0.1
source: pkg-a
srcsha256: 00000000000000000000000000000000000000000000000000000000000000aa
sumsha256sums: 00000000000000000000000000000000000000000000000000000000000000bb
ghost: false
description: the a package
depends: pkg-b (>= 0.0.2), pkg-c
filename: pkg-a_0.0.1.mpk
sha256: 00000000000000000000000000000000000000000000000000000000000000cc
size: 1024

name: pkg-b
version: 0.0.2
source: pkg-b
srcsha256: 00000000000000000000000000000000000000000000000000000000000000dd
sumsha256sums: 00000000000000000000000000000000000000000000000000000000000000ee
ghost: false
description: the b package,
 continued on the next line
`

func TestParseIndexBasicFields(t *testing.T) {
	records, err := ParseIndex(strings.NewReader(twoPkgIndex), "stable")
	if err != nil {
		t.Fatalf("ParseIndex: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	a := records[0]
	if a.Name != "pkg-a" || a.Version != "0.0.1" {
		t.Errorf("unexpected first record: %+v", a)
	}
	if len(a.Depends) != 2 {
		t.Fatalf("expected 2 dependencies, got %d: %+v", len(a.Depends), a.Depends)
	}
	if a.Depends[0].Name != "pkg-b" || a.Depends[0].MinVersion != "0.0.2" {
		t.Errorf("unexpected first dependency: %+v", a.Depends[0])
	}
	if a.Depends[1].Name != "pkg-c" || a.Depends[1].MinVersion != pkgmeta.AnyVersion {
		t.Errorf("bare dependency should be unconstrained: %+v", a.Depends[1])
	}
	if len(a.Remotes) != 1 || a.Remotes[0].Repo != "stable" || a.Remotes[0].Filename != "pkg-a_0.0.1.mpk" {
		t.Errorf("unexpected remote resource: %+v", a.Remotes)
	}
	if a.Remotes[0].Size != 1024 {
		t.Errorf("expected size 1024, got %d", a.Remotes[0].Size)
	}

	b := records[1]
	if !strings.Contains(b.Desc, "continued on the next line") {
		t.Errorf("expected multi-line description to be joined, got %q", b.Desc)
	}
}

func TestParseIndexGzipAutoDetect(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(twoPkgIndex)); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}

	records, err := ParseIndex(&buf, "stable")
	if err != nil {
		t.Fatalf("ParseIndex on gzip input: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records from gzip input, got %d", len(records))
	}
}

func TestParseIndexRejectsMissingName(t *testing.T) {
	_, err := ParseIndex(strings.NewReader("version: 1.0\n"), "stable")
	if err == nil {
		t.Fatalf("expected an error for a block missing the name field")
	}
}

func TestParseDepSpecGrammar(t *testing.T) {
	cases := []struct {
		in         string
		wantName   string
		wantMin    string
		wantMax    string
	}{
		{"foo", "foo", pkgmeta.AnyVersion, pkgmeta.AnyVersion},
		{"foo (>= 1.2)", "foo", "1.2", pkgmeta.AnyVersion},
		{"foo (< 2.0)", "foo", pkgmeta.AnyVersion, "2.0"},
		{"foo (= 1.5)", "foo", "1.5", "1.5"},
	}
	for _, c := range cases {
		got := parseDepSpec(c.in)
		if got.Name != c.wantName || got.MinVersion != c.wantMin || got.MaxVersion != c.wantMax {
			t.Errorf("parseDepSpec(%q) = %+v, want {%q %q %q}", c.in, got, c.wantName, c.wantMin, c.wantMax)
		}
	}
}

func TestWriteIndexThenParseIndexRoundTrip(t *testing.T) {
	original := []*pkgmeta.Record{
		{
			Name: "roundtrip", Version: "1.0", Source: "roundtrip",
			Depends: []pkgmeta.DepSpec{{Name: "dep", MinVersion: "1.0", MaxVersion: pkgmeta.AnyVersion}},
		},
	}

	var buf bytes.Buffer
	if err := WriteIndex(&buf, original, false); err != nil {
		t.Fatalf("WriteIndex: %v", err)
	}

	parsed, err := ParseIndex(&buf, "")
	if err != nil {
		t.Fatalf("ParseIndex of written output: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("expected 1 record round-tripped, got %d", len(parsed))
	}
	if parsed[0].Name != "roundtrip" || parsed[0].Version != "1.0" {
		t.Errorf("round-tripped record mismatch: %+v", parsed[0])
	}
	if len(parsed[0].Depends) != 1 || parsed[0].Depends[0].Name != "dep" {
		t.Errorf("round-tripped dependency mismatch: %+v", parsed[0].Depends)
	}
}
