// Package numeric provides range-checked integer coercion for the
// transcoder.
//
// Values arriving from Go callers may be any numeric type (including float64
// from JSON decoding). Int and Uint accept them all and report whether the
// value fits the requested bit width exactly; nothing is ever truncated.
//
// This package is internal to the transcoder.
package numeric
