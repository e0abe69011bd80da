package material

import "fmt"

// Version is a compiled material format revision, named after the first
// game release that writes it
type Version int

const (
	V1_18_30 Version = iota
	V1_19_60
	V1_20_80
	V1_21_20
	V1_21_110
	V26_0_24
)

var versionNames = [...]string{
	V1_18_30:  "v1.18.30",
	V1_19_60:  "v1.19.60",
	V1_20_80:  "v1.20.80",
	V1_21_20:  "v1.21.20",
	V1_21_110: "v1.21.110",
	V26_0_24:  "v26.0.24",
}

func (v Version) String() string {
	if v < 0 || int(v) >= len(versionNames) {
		return fmt.Sprintf("Version(%d)", int(v))
	}
	return versionNames[v]
}

// AllVersions returns every known version, oldest first
func AllVersions() []Version {
	out := make([]Version, len(versionNames))
	for i := range out {
		out[i] = Version(i)
	}
	return out
}

// ParseVersion accepts the names produced by Version.String
func ParseVersion(s string) (Version, error) {
	for i, name := range versionNames {
		if name == s {
			return Version(i), nil
		}
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownVersion)
}
