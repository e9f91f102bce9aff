package internal

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/go-viper/mapstructure/v2"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"
)

// OrderedMap is the insertion-ordered map used for shortcut replacement maps.
type OrderedMap = orderedmap.OrderedMap[string, any]

// UndefinedValue is the type of the "no value" sentinel. It is always a leaf.
type UndefinedValue struct{}

var undefinedJSON = []byte(`{"` + UndefinedJSONKey + `":true}`)

// MarshalJSON encodes the sentinel as {"$undefined":true}.
func (UndefinedValue) MarshalJSON() ([]byte, error) {
	return undefinedJSON, nil
}

// RestoreUndefined replaces decoded {"$undefined":true} objects inside v with
// UndefinedValue, descending into ordered maps, Go maps and slices. Ordered
// maps and Go maps are updated in place.
func RestoreUndefined(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if isUndefinedMarker(t) {
			return UndefinedValue{}
		}
		for k, child := range t {
			t[k] = RestoreUndefined(child)
		}
		return t
	case *OrderedMap:
		if t == nil {
			return t
		}
		for pair := t.Oldest(); pair != nil; pair = pair.Next() {
			pair.Value = RestoreUndefined(pair.Value)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = RestoreUndefined(child)
		}
		return t
	default:
		return v
	}
}

func isUndefinedMarker(m map[string]any) bool {
	if len(m) != 1 {
		return false
	}
	flag, ok := m[UndefinedJSONKey].(bool)
	return ok && flag
}

// Leaf is a terminal value reached while flattening, addressed by its dotted path.
type Leaf struct {
	Path  string
	Value any
}

// Flattener expands nested maps, slices and structs into dotted leaves.
type Flattener struct {
	isLeaf func(any) bool
	logger *zap.Logger
}

// NewFlattener creates a flattener. isLeaf may force additional values to be
// treated as terminal; it is consulted before any structural inspection.
func NewFlattener(isLeaf func(any) bool, logger *zap.Logger) *Flattener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flattener{
		isLeaf: isLeaf,
		logger: logger,
	}
}

// IsComposite reports whether v expands into several leaves.
func (f *Flattener) IsComposite(v any) bool {
	if v == nil {
		return false
	}
	if f.isLeaf != nil && f.isLeaf(v) {
		return false
	}
	switch v.(type) {
	case UndefinedValue, string, []byte, time.Time, fmt.Stringer, error:
		return false
	case *OrderedMap:
		return true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	default:
		return false
	}
}

// IsFunc reports whether v is a function value of any signature.
func IsFunc(v any) bool {
	return v != nil && reflect.ValueOf(v).Kind() == reflect.Func
}

// Flatten walks v and returns one leaf per terminal value, each path rooted at
// base. Functions found below base are dropped. A non-composite v yields a
// single leaf at base.
func (f *Flattener) Flatten(base string, v any) []Leaf {
	var leaves []Leaf
	f.walk(base, v, &leaves, false)
	return leaves
}

func (f *Flattener) walk(path string, v any, out *[]Leaf, nested bool) {
	if nested && IsFunc(v) {
		f.logger.Debug(LogMsgFlattenDroppedFn, zap.String(LogFieldPath, path))
		return
	}
	if !f.IsComposite(v) {
		*out = append(*out, Leaf{Path: path, Value: v})
		return
	}

	err := f.Each(v, func(key any, child any) error {
		f.walk(path+PathSeparator+KeyString(key), child, out, true)
		return nil
	})
	if err != nil {
		f.logger.Debug(LogMsgFlattenDecodeErr,
			zap.String(LogFieldPath, path),
			zap.String(LogFieldType, fmt.Sprintf("%T", v)),
			zap.Error(err),
		)
		*out = append(*out, Leaf{Path: path, Value: v})
	}
}

// Each calls fn for every entry of a composite value in a stable order:
// insertion order for ordered maps, sorted key order for Go maps and structs,
// index order for slices and arrays. Integer map keys sort numerically, any
// other key type by its text. Slice keys are ints, every other key is
// a string. Iteration stops at the first error returned by fn.
func (f *Flattener) Each(v any, fn func(key any, value any) error) error {
	switch m := v.(type) {
	case *OrderedMap:
		for pair := m.Oldest(); pair != nil; pair = pair.Next() {
			if err := fn(pair.Key, pair.Value); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		for _, key := range sortedKeys(m) {
			if err := fn(key, m[key]); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := fn(i, rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		keys := rv.MapKeys()
		sortMapKeys(keys)
		for _, k := range keys {
			if err := fn(KeyString(k.Interface()), rv.MapIndex(k).Interface()); err != nil {
				return err
			}
		}
		return nil
	case reflect.Struct:
		decoded := make(map[string]any)
		if err := mapstructure.Decode(rv.Interface(), &decoded); err != nil {
			return err
		}
		for _, key := range sortedKeys(decoded) {
			if err := fn(key, decoded[key]); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

// KeyString renders a map key or slice index as path text.
func KeyString(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case int:
		return strconv.Itoa(k)
	default:
		return fmt.Sprint(k)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sortMapKeys orders reflected map keys numerically for integer key types
// and by KeyString otherwise.
func sortMapKeys(keys []reflect.Value) {
	if len(keys) == 0 {
		return
	}
	switch keys[0].Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		sort.Slice(keys, func(i, j int) bool { return keys[i].Int() < keys[j].Int() })
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		sort.Slice(keys, func(i, j int) bool { return keys[i].Uint() < keys[j].Uint() })
	default:
		sort.Slice(keys, func(i, j int) bool {
			return KeyString(keys[i].Interface()) < KeyString(keys[j].Interface())
		})
	}
}
