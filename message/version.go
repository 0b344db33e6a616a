package message

import "fmt"

// ConfigurationVersion tags the schema a writer's data frames were encoded
// against. Versions order by major, then minor.
type ConfigurationVersion struct {
	Major uint32 `json:"major" msgpack:"major" yaml:"major"`
	Minor uint32 `json:"minor" msgpack:"minor" yaml:"minor"`
}

// Compare returns -1, 0 or +1 depending on whether v is less than, equal to,
// or greater than o.
func (v ConfigurationVersion) Compare(o ConfigurationVersion) int {
	switch {
	case v.Major < o.Major:
		return -1
	case v.Major > o.Major:
		return 1
	case v.Minor < o.Minor:
		return -1
	case v.Minor > o.Minor:
		return 1
	default:
		return 0
	}
}

// Less reports whether v orders before o.
func (v ConfigurationVersion) Less(o ConfigurationVersion) bool {
	return v.Compare(o) < 0
}

func (v ConfigurationVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}
