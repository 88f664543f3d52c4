// Package transcoder converts values between Go and the host interpreter.
//
// Two directions, two modes:
//
//	Encoder.Encode  Go -> host, driven by the Go type (reflection)
//	Decoder.Decode  host -> Go, driven by the target Go type
//	Encoder.Lower   Go -> host, driven by a wit schema type
//	Decoder.Lift    host -> Go, driven by a wit schema type
//
// # Reflection Mapping
//
//	Go                      host
//	──────────────────────────────────────
//	bool                    bool
//	intN, uintN             int (range-checked on decode)
//	float32, float64        float
//	string                  string (UTF-8 validated on decode)
//	[]byte                  bytes
//	[]T                     list
//	[N]T                    tuple (exact length on decode)
//	map[K]V                 dict (keys sorted on encode)
//	struct                  struct, fields named by `host` tag
//	*T                      None or T
//	starlark.Value          passed through unchanged
//
// Struct fields default to their snake_case name. The tag
// `host:"name,optional,omitempty"` overrides the name, allows a missing
// field on decode, and drops zero values on encode. Pointer fields are
// always optional.
//
// # Errors
//
// Every failure is an *errors.Error whose Path locates the offending
// element, for example [decode] overflow at items.[3]. Decoding never
// truncates: a value that does not fit its target is an overflow error.
//
// # Limited Protocol
//
// WithLimitedABI(true) restricts the Decoder to the generic value protocols
// (Indexable, Iterable, IterableMapping, HasAttrs) so it works with host
// values the bridge has never seen. Without it concrete lists and tuples
// take a direct path.
package transcoder
