package transcoder

import (
	"reflect"

	"go.starlark.net/starlark"
)

// Marshaler is implemented by Go types that build their own host value.
type Marshaler interface {
	MarshalHost() (starlark.Value, error)
}

// Unmarshaler is implemented by pointer types that decode themselves from a
// host value.
type Unmarshaler interface {
	UnmarshalHost(v starlark.Value) error
}

// Resolver converts values the transcoder cannot represent structurally:
// opaque references to host objects and Go types registered with the
// runtime. Both methods report ok=false to fall through to the default rules.
type Resolver interface {
	// ToHost converts a Go value into a host value.
	ToHost(v reflect.Value) (hv starlark.Value, ok bool, err error)
	// FromHost converts a host value into a Go value of type target. A nil
	// target asks for the natural Go form of an opaque reference.
	FromHost(v starlark.Value, target reflect.Type) (gv reflect.Value, ok bool, err error)
}

// Option configures an Encoder or Decoder.
type Option func(*options)

type options struct {
	resolver Resolver
	compiler *Compiler
	limited  bool
}

// WithResolver installs hooks for opaque references and registered types.
func WithResolver(r Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithCompiler shares a plan cache between encoders and decoders.
func WithCompiler(c *Compiler) Option {
	return func(o *options) { o.compiler = c }
}

// WithLimitedABI restricts decoding to the generic value protocols
// (Indexable, Iterable, IterableMapping, HasAttrs); concrete container
// types get no fast path.
func WithLimitedABI(limited bool) Option {
	return func(o *options) { o.limited = limited }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.compiler == nil {
		o.compiler = NewCompiler()
	}
	return o
}

var (
	hostValueType   = reflect.TypeOf((*starlark.Value)(nil)).Elem()
	marshalerType   = reflect.TypeOf((*Marshaler)(nil)).Elem()
	unmarshalerType = reflect.TypeOf((*Unmarshaler)(nil)).Elem()
	anyType         = reflect.TypeOf((*any)(nil)).Elem()
	variantType     = reflect.TypeOf(Variant{})
)
