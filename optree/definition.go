package optree

import "github.com/Masterminds/semver/v3"

// Definition identifies a Template: a stable ID, a semantic version, and
// a human description. It carries no behavior.
type Definition struct {
	ID          string
	Version     *semver.Version
	Description string
}

// versionString renders Version for logging, tolerating the zero value.
func (d Definition) versionString() string {
	if d.Version == nil {
		return ""
	}
	return d.Version.String()
}
