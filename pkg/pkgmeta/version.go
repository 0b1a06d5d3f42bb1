// Package pkgmeta holds the package record model (name, version, digests,
// dependency specs) shared by the binary index, solver and transaction
// applier, grounded on binpkg.h and package-utils.c.
package pkgmeta

// AnyVersion is the universal wildcard version, matched against and
// comparing equal to any other version string.
const AnyVersion = "any"

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// CompareVersions compares two mmpack version strings the way
// pkg_version_compare does: lexicographic order, except that runs of digits
// are compared as whole numbers (so "abc1.30.5" > "abc1.29.50"), and the
// string "any" compares equal to everything else.
//
// Returns a negative number if v1 < v2, zero if v1 == v2 (or either is
// "any"), and a positive number if v1 > v2.
func CompareVersions(v1, v2 string) int {
	if v1 == AnyVersion || v2 == AnyVersion {
		return 0
	}

	i, j := 0, 0
	for i < len(v1) && j < len(v2) {
		c1, c2 := v1[i], v2[j]

		if isDigit(c1) && isDigit(c2) {
			for i < len(v1) && v1[i] == '0' {
				i++
			}
			for j < len(v2) && v2[j] == '0' {
				j++
			}

			firstDiff := 0
			for i < len(v1) && j < len(v2) && isDigit(v1[i]) && isDigit(v2[j]) {
				if firstDiff == 0 {
					firstDiff = int(v1[i]) - int(v2[j])
				}
				i++
				j++
			}

			iDigit := i < len(v1) && isDigit(v1[i])
			jDigit := j < len(v2) && isDigit(v2[j])
			if iDigit == jDigit {
				if firstDiff != 0 {
					return firstDiff
				}
				continue
			}
			if iDigit {
				return 1
			}
			return -1
		}

		if c1 != c2 {
			return int(c1) - int(c2)
		}
		i++
		j++
	}

	// Ran out of one or both strings; compare the next byte the same way
	// the C loop's terminating `c1 - c2` does (0 past the end of string).
	var c1, c2 int
	if i < len(v1) {
		c1 = int(v1[i])
	}
	if j < len(v2) {
		c2 = int(v2[j])
	}
	return c1 - c2
}

// VersionLess reports whether v1 < v2 under CompareVersions.
func VersionLess(v1, v2 string) bool {
	return CompareVersions(v1, v2) < 0
}

// VersionInRange reports whether v falls in [minVersion, maxVersion] per the
// DepSpec convention (min inclusive, max inclusive); "any" on either bound
// disables that side of the check.
func VersionInRange(v, minVersion, maxVersion string) bool {
	if minVersion != "" && minVersion != AnyVersion {
		if CompareVersions(v, minVersion) < 0 {
			return false
		}
	}
	if maxVersion != "" && maxVersion != AnyVersion {
		if CompareVersions(v, maxVersion) > 0 {
			return false
		}
	}
	return true
}
