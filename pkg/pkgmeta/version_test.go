package pkgmeta

import "testing"

func TestCompareVersionsLiterals(t *testing.T) {
	cases := []struct {
		v1, v2 string
		want   int
	}{
		{"01.9", "1.9", 0},
		{"1.2", "1.2.1", -1},
		{"16.10", "16.9", 1},
	}
	for _, c := range cases {
		got := CompareVersions(c.v1, c.v2)
		if sign(got) != sign(c.want) {
			t.Errorf("CompareVersions(%q, %q) = %d, want sign %d", c.v1, c.v2, got, c.want)
		}
	}
}

func TestCompareVersionsAnyIsWildcard(t *testing.T) {
	if CompareVersions(AnyVersion, "1.2.3") != 0 {
		t.Errorf("AnyVersion should compare equal to any version string")
	}
	if CompareVersions("1.2.3", AnyVersion) != 0 {
		t.Errorf("AnyVersion should compare equal to any version string, either side")
	}
}

func TestCompareVersionsAntisymmetric(t *testing.T) {
	pairs := [][2]string{
		{"1.0", "2.0"},
		{"1.9", "1.10"},
		{"abc1.30.5", "abc1.29.50"},
		{"1.2.3", "1.2.3"},
	}
	for _, p := range pairs {
		a := CompareVersions(p[0], p[1])
		b := CompareVersions(p[1], p[0])
		if sign(a) != -sign(b) {
			t.Errorf("CompareVersions(%q,%q)=%d and CompareVersions(%q,%q)=%d are not antisymmetric", p[0], p[1], a, p[1], p[0], b)
		}
	}
}

func TestVersionLess(t *testing.T) {
	if !VersionLess("1.2", "1.2.1") {
		t.Errorf("expected 1.2 < 1.2.1")
	}
	if VersionLess("16.10", "16.9") {
		t.Errorf("expected 16.10 >= 16.9")
	}
}

func TestVersionInRange(t *testing.T) {
	if !VersionInRange("1.5", "1.0", "2.0") {
		t.Errorf("1.5 should be in [1.0, 2.0]")
	}
	if !VersionInRange("2.0", "1.0", "2.0") {
		t.Errorf("upper bound should be inclusive")
	}
	if !VersionInRange("1.0", "1.0", "2.0") {
		t.Errorf("lower bound should be inclusive")
	}
	if !VersionInRange("99.0", AnyVersion, AnyVersion) {
		t.Errorf("any/any should accept everything")
	}
}

func TestDepSpecSatisfiesExactPin(t *testing.T) {
	d := DepSpec{Name: "foo", MinVersion: "1.2", MaxVersion: "1.2"}
	if !d.Satisfies("1.2") {
		t.Errorf("exact pin should match its own version")
	}
	if d.Satisfies("1.3") {
		t.Errorf("exact pin should reject a different version")
	}
}

func TestDepSpecSatisfiesRange(t *testing.T) {
	d := DepSpec{Name: "foo", MinVersion: "1.0", MaxVersion: "2.0"}
	if !d.Satisfies("1.5") {
		t.Errorf("1.5 should satisfy [1.0, 2.0]")
	}
	if !d.Satisfies("2.0") {
		t.Errorf("2.0 should satisfy [1.0, 2.0]")
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
