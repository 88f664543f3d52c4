// Package types defines the compiled type structures for fast transcoding.
//
// Plan holds the host-facing shape of a Go struct (exported fields, their
// host names and optionality) so the transcoder walks struct tags once per
// type instead of once per value.
//
// # Key Types
//
//   - Plan: cached struct shape
//   - Kind: schema type discriminator (primitive, record, list, variant, etc.)
//
// This package is internal to the transcoder.
package types
