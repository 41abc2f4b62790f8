package omc

import (
	"fmt"
	"regexp"
	"strconv"
)

// versionPattern accepts both banner formats the compiler has used:
//
//	OMCompiler v1.17.0-dev.94+g4da66238ab
//	OpenModelica 1.14.2
var versionPattern = regexp.MustCompile(`^(?:OMCompiler v|OpenModelica )(\d+)\.(\d+)\.(\d+)`)

// Version is a parsed compiler release number.
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseVersion extracts the release number from a getVersion() banner.
// Unrecognized formats are an error.
func ParseVersion(banner string) (Version, error) {
	m := versionPattern.FindStringSubmatch(banner)
	if m == nil {
		return Version{}, Errorf("unrecognized compiler version string %q", banner)
	}

	nums := make([]int, 3)
	for i := range nums {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Version{}, Errorf("invalid version component %q in %q", m[i+1], banner)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// String renders the version as major.minor.patch.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}
