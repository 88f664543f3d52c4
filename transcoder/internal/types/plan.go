package types

import "reflect"

// Plan is the precomputed conversion shape of a Go struct type.
type Plan struct {
	GoType reflect.Type
	Fields []Field
}

// Field describes one exported struct field as seen from the host.
type Field struct {
	Type      reflect.Type
	Name      string
	HostName  string
	Index     []int
	Optional  bool
	OmitEmpty bool
}

// Lookup returns the field with the given host name.
func (p *Plan) Lookup(hostName string) (*Field, bool) {
	for i := range p.Fields {
		if p.Fields[i].HostName == hostName {
			return &p.Fields[i], true
		}
	}
	return nil, false
}
