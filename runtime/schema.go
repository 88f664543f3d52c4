package runtime

import (
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/hostbridge/errors"
)

// ParseType parses a schema type expression such as "list<u32>" or
// "option<string>" for use with Lift and Token.Lower.
func ParseType(s string) (wit.Type, error) {
	t, err := wit.ParseType(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse type "+s)
	}
	return t, nil
}
