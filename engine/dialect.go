package engine

import (
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Dialect selects optional Starlark language features.
type Dialect struct {
	Set             bool `koanf:"set"`
	While           bool `koanf:"while"`
	Recursion       bool `koanf:"recursion"`
	GlobalReassign  bool `koanf:"global_reassign"`
	TopLevelControl bool `koanf:"top_level_control"`
}

// FileOptions returns the parser options for the dialect.
func (d Dialect) FileOptions() *syntax.FileOptions {
	return &syntax.FileOptions{
		Set:             d.Set,
		While:           d.While,
		Recursion:       d.Recursion,
		GlobalReassign:  d.GlobalReassign,
		TopLevelControl: d.TopLevelControl,
	}
}

// Version identifies the host interpreter revision.
type Version struct {
	Major int `koanf:"major" validate:"gte=0"`
	Minor int `koanf:"minor" validate:"gte=0"`
}

// Less reports whether v is older than o.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// HostVersion is the revision of the embedded interpreter: language major
// version 1, minor tracking the compiled program format.
var HostVersion = Version{Major: 1, Minor: starlark.CompilerVersion}
