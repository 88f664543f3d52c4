package transcoder

import (
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/hostbridge/transcoder/internal/types"
)

type TypeKind = types.Kind

const (
	KindBool    = types.KindBool
	KindU8      = types.KindU8
	KindS8      = types.KindS8
	KindU16     = types.KindU16
	KindS16     = types.KindS16
	KindU32     = types.KindU32
	KindS32     = types.KindS32
	KindU64     = types.KindU64
	KindS64     = types.KindS64
	KindF32     = types.KindF32
	KindF64     = types.KindF64
	KindChar    = types.KindChar
	KindString  = types.KindString
	KindRecord  = types.KindRecord
	KindList    = types.KindList
	KindVariant = types.KindVariant
	KindOption  = types.KindOption
	KindResult  = types.KindResult
	KindTuple   = types.KindTuple
	KindEnum    = types.KindEnum
	KindFlags   = types.KindFlags
	KindOwn     = types.KindOwn
	KindBorrow  = types.KindBorrow
)

type Plan = types.Plan
type PlanField = types.Field

// Variant is the Go form of a variant or result value. Results use the
// cases "ok" and "err".
type Variant struct {
	Value any
	Case  string
}

// kindOf resolves a schema type to its kind, following type aliases.
// It returns the resolved definition kind for TypeDefs.
func kindOf(t wit.Type) (TypeKind, any, bool) {
	switch v := t.(type) {
	case wit.Bool:
		return KindBool, nil, true
	case wit.U8:
		return KindU8, nil, true
	case wit.S8:
		return KindS8, nil, true
	case wit.U16:
		return KindU16, nil, true
	case wit.S16:
		return KindS16, nil, true
	case wit.U32:
		return KindU32, nil, true
	case wit.S32:
		return KindS32, nil, true
	case wit.U64:
		return KindU64, nil, true
	case wit.S64:
		return KindS64, nil, true
	case wit.F32:
		return KindF32, nil, true
	case wit.F64:
		return KindF64, nil, true
	case wit.Char:
		return KindChar, nil, true
	case wit.String:
		return KindString, nil, true
	case *wit.TypeDef:
		switch k := v.Kind.(type) {
		case *wit.Record:
			return KindRecord, k, true
		case *wit.List:
			return KindList, k, true
		case *wit.Tuple:
			return KindTuple, k, true
		case *wit.Enum:
			return KindEnum, k, true
		case *wit.Flags:
			return KindFlags, k, true
		case *wit.Option:
			return KindOption, k, true
		case *wit.Result:
			return KindResult, k, true
		case *wit.Variant:
			return KindVariant, k, true
		case *wit.Own:
			return KindOwn, k, true
		case *wit.Borrow:
			return KindBorrow, k, true
		case wit.Type:
			return kindOf(k)
		}
	}
	return 0, nil, false
}
