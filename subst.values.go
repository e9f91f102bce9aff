package subst

import (
	"fmt"
	"reflect"

	"github.com/itsatony/go-subst/internal"
	"github.com/spf13/cast"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// UndefinedValue is the type of Undefined.
type UndefinedValue = internal.UndefinedValue

// Undefined marks a replacement that has no value. Placeholders whose
// replacement is Undefined are substituted with the undefined policy value.
// A nil replacement is the "null" case and uses the null policy value.
var Undefined = UndefinedValue{}

// ReplaceFunc computes a replacement lazily during a substitution pass. It
// receives the pattern, the template given to Resolve and the partially
// substituted string of the current pass. The returned value may itself be
// another function, which is invoked in turn with the same arguments.
type ReplaceFunc func(pattern, template, partial string) (any, error)

// PolicyFunc computes the text used for nil or Undefined replacements.
type PolicyFunc func(pattern string) any

// IdentityReplacement re-emits the placeholder unchanged, leaving it
// visibly unresolved. It is the default null and undefined policy.
var IdentityReplacement PolicyFunc = func(pattern string) any {
	return internal.Placeholder(pattern)
}

// Map is an insertion-ordered shortcut replacement map. Definitions built
// from a Map keep the order in which keys were first set.
type Map = orderedmap.OrderedMap[string, any]

// Pair is a single pattern/replacement entry used to build a Map.
type Pair struct {
	Key   string
	Value any
}

// P builds a Pair.
func P(key string, value any) Pair {
	return Pair{Key: key, Value: value}
}

// NewMap creates an ordered shortcut map from pairs, in order.
func NewMap(pairs ...Pair) *Map {
	m := orderedmap.New[string, any]()
	for _, p := range pairs {
		m.Set(p.Key, p.Value)
	}
	return m
}

// asReplaceFunc adapts the supported function shapes to ReplaceFunc.
func asReplaceFunc(v any) (ReplaceFunc, bool) {
	switch fn := v.(type) {
	case ReplaceFunc:
		return fn, fn != nil
	case func(pattern, template, partial string) (any, error):
		return fn, fn != nil
	case func(pattern, template, partial string) any:
		return func(p, t, s string) (any, error) { return fn(p, t, s), nil }, fn != nil
	case PolicyFunc:
		return func(p, _, _ string) (any, error) { return fn(p), nil }, fn != nil
	case func(pattern string) any:
		return func(p, _, _ string) (any, error) { return fn(p), nil }, fn != nil
	case func(pattern string) string:
		return func(p, _, _ string) (any, error) { return fn(p), nil }, fn != nil
	case func(pattern string) (any, error):
		return func(p, _, _ string) (any, error) { return fn(p) }, fn != nil
	case func() any:
		return func(_, _, _ string) (any, error) { return fn(), nil }, fn != nil
	case func() string:
		return func(_, _, _ string) (any, error) { return fn(), nil }, fn != nil
	case func() (any, error):
		return func(_, _, _ string) (any, error) { return fn() }, fn != nil
	default:
		return convertReplaceFunc(v)
	}
}

// replaceFuncShapes are the unnamed function types asReplaceFunc adapts.
var replaceFuncShapes = []reflect.Type{
	reflect.TypeOf((func(string, string, string) (any, error))(nil)),
	reflect.TypeOf((func(string, string, string) any)(nil)),
	reflect.TypeOf((func(string) any)(nil)),
	reflect.TypeOf((func(string) string)(nil)),
	reflect.TypeOf((func(string) (any, error))(nil)),
	reflect.TypeOf((func() any)(nil)),
	reflect.TypeOf((func() string)(nil)),
	reflect.TypeOf((func() (any, error))(nil)),
}

// convertReplaceFunc accepts named function types whose underlying type is
// one of the supported shapes.
func convertReplaceFunc(v any) (ReplaceFunc, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, false
	}
	for _, shape := range replaceFuncShapes {
		if rv.Type() != shape && rv.Type().ConvertibleTo(shape) {
			return asReplaceFunc(rv.Convert(shape).Interface())
		}
	}
	return nil, false
}

// checkReplacement rejects function values that asReplaceFunc could not
// adapt. A nil function is the null case.
func checkReplacement(pattern string, v any) (any, error) {
	if !internal.IsFunc(v) {
		return v, nil
	}
	if reflect.ValueOf(v).IsNil() {
		return nil, nil
	}
	return nil, NewUnsupportedReplacementError(pattern, v)
}

// IsReplaceFunc reports whether v is a function shape accepted as a
// replacement.
func IsReplaceFunc(v any) bool {
	_, ok := asReplaceFunc(v)
	return ok
}

// toText coerces a literal replacement to substitution text. Zero values are
// kept: 0 becomes "0" and false becomes "false". A policy that yields nil or
// Undefined substitutes the empty string.
func toText(v any) string {
	switch v.(type) {
	case nil, UndefinedValue:
		return ""
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}
