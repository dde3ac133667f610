package chain

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type conversionKey struct {
	from, to reflect.Type
}

type conversionFunc func(any) (any, error)

// conversions holds registered source -> target coercions.
var conversions sync.Map

// RegisterConversion registers a coercion used when a column value of type S
// must be assigned to a parameter or property of type D. A later
// registration for the same pair replaces the earlier one.
func RegisterConversion[S, D any](fn func(S) (D, error)) {
	key := conversionKey{from: reflect.TypeFor[S](), to: reflect.TypeFor[D]()}
	conversions.Store(key, conversionFunc(func(v any) (any, error) {
		return fn(v.(S))
	}))
}

func lookupConversion(from, to reflect.Type) (conversionFunc, bool) {
	fn, ok := conversions.Load(conversionKey{from: from, to: to})
	if !ok {
		return nil, false
	}
	return fn.(conversionFunc), true
}

// intermediates are tried, in order, when no direct conversion exists.
var intermediates = []reflect.Type{
	reflect.TypeFor[string](),
	reflect.TypeFor[int64](),
	reflect.TypeFor[uint64](),
	reflect.TypeFor[float64](),
}

// convert coerces a non-NULL driver value to D.
func convert[D any](v any) (D, error) {
	var zero D
	if d, ok := v.(D); ok {
		return d, nil
	}
	to := reflect.TypeFor[D]()
	if s, ok := any(&zero).(sql.Scanner); ok {
		if err := s.Scan(v); err != nil {
			return zero, &MappingError{From: reflect.TypeOf(v), To: to, Cause: err}
		}
		return zero, nil
	}
	from := reflect.TypeOf(v)
	fn, ok := resolveConversion(from, to)
	if !ok {
		return zero, &MappingError{From: from, To: to}
	}
	out, err := fn(v)
	if err != nil {
		return zero, &MappingError{From: from, To: to, Cause: err}
	}
	return out.(D), nil
}

// convertNull produces the value assigned for a NULL. ok is false when D
// cannot represent NULL. A Scanner holds NULL only when it reports it back
// through driver.Valuer, as the sql.Null types do; uuid.UUID accepts a nil
// Scan but would read as uuid.Nil.
func convertNull[D any]() (D, bool) {
	var zero D
	switch reflect.TypeFor[D]().Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map:
		return zero, true
	}
	s, ok := any(&zero).(sql.Scanner)
	if !ok || s.Scan(nil) != nil {
		return zero, false
	}
	vr, ok := any(zero).(driver.Valuer)
	if !ok {
		return zero, false
	}
	v, err := vr.Value()
	return zero, err == nil && v == nil
}

// assign stores v into dst, converting as needed.
func assign[D any](dst *D, v any) error {
	if v == nil {
		d, ok := convertNull[D]()
		if !ok {
			return &MappingError{To: reflect.TypeFor[D]()}
		}
		*dst = d
		return nil
	}
	d, err := convert[D](v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// assignPointer stores v into dst as a freshly allocated *E, or nil for NULL.
func assignPointer[E any](dst **E, v any) error {
	if v == nil {
		*dst = nil
		return nil
	}
	e, err := convert[E](v)
	if err != nil {
		return err
	}
	*dst = &e
	return nil
}

func resolveConversion(from, to reflect.Type) (conversionFunc, bool) {
	if fn, ok := lookupConversion(from, to); ok {
		return fn, true
	}
	if fn, ok := kindConversion(from, to); ok {
		conversions.Store(conversionKey{from: from, to: to}, fn)
		return fn, true
	}
	for _, mid := range intermediates {
		if mid == from || mid == to {
			continue
		}
		first, ok := lookupConversion(from, mid)
		if !ok {
			continue
		}
		second, ok := lookupConversion(mid, to)
		if !ok {
			if second, ok = kindConversion(mid, to); !ok {
				continue
			}
		}
		fn := conversionFunc(func(v any) (any, error) {
			m, err := first(v)
			if err != nil {
				return nil, err
			}
			return second(m)
		})
		conversions.Store(conversionKey{from: from, to: to}, fn)
		return fn, true
	}
	return nil, false
}

// kindConversion covers named types over the same basic kind, e.g.
// `type Status string` loaded from a string column.
func kindConversion(from, to reflect.Type) (conversionFunc, bool) {
	if kindClass(from.Kind()) == 0 || kindClass(from.Kind()) != kindClass(to.Kind()) {
		return nil, false
	}
	if !from.ConvertibleTo(to) {
		return nil, false
	}
	return func(v any) (any, error) {
		rv := reflect.ValueOf(v)
		out := rv.Convert(to)
		if kindClass(from.Kind()) == 2 && (!out.Convert(from).Equal(rv) || negative(out) != negative(rv)) {
			return nil, fmt.Errorf("value %v overflows %s", v, to)
		}
		return out.Interface(), nil
	}, true
}

func negative(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() < 0
	}
	return false
}

func kindClass(k reflect.Kind) int {
	switch k {
	case reflect.String:
		return 1
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return 2
	case reflect.Float32, reflect.Float64:
		return 3
	case reflect.Bool:
		return 4
	}
	return 0
}

type integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// narrow converts between integer types, failing when the value does not fit.
func narrow[S, D integer](s S) (D, error) {
	d := D(s)
	if S(d) != s || (d < 0) != (s < 0) {
		return 0, fmt.Errorf("value %d overflows %T", s, d)
	}
	return d, nil
}

func registerIntegerSource[S integer]() {
	RegisterConversion(narrow[S, int])
	RegisterConversion(narrow[S, int8])
	RegisterConversion(narrow[S, int16])
	RegisterConversion(narrow[S, int32])
	RegisterConversion(narrow[S, int64])
	RegisterConversion(narrow[S, uint])
	RegisterConversion(narrow[S, uint8])
	RegisterConversion(narrow[S, uint16])
	RegisterConversion(narrow[S, uint32])
	RegisterConversion(narrow[S, uint64])
	RegisterConversion(func(s S) (float64, error) { return float64(s), nil })
	RegisterConversion(func(s S) (float32, error) { return float32(s), nil })
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.DateOnly,
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format %q", s)
}

func init() {
	registerIntegerSource[int]()
	registerIntegerSource[int8]()
	registerIntegerSource[int16]()
	registerIntegerSource[int32]()
	registerIntegerSource[int64]()
	registerIntegerSource[uint]()
	registerIntegerSource[uint8]()
	registerIntegerSource[uint16]()
	registerIntegerSource[uint32]()
	registerIntegerSource[uint64]()

	RegisterConversion(func(f float64) (float32, error) { return float32(f), nil })
	RegisterConversion(func(f float32) (float64, error) { return float64(f), nil })

	RegisterConversion(func(b []byte) (string, error) { return string(b), nil })
	RegisterConversion(func(s string) ([]byte, error) { return []byte(s), nil })
	RegisterConversion(func(s string) (int64, error) { return strconv.ParseInt(strings.TrimSpace(s), 10, 64) })
	RegisterConversion(func(s string) (uint64, error) { return strconv.ParseUint(strings.TrimSpace(s), 10, 64) })
	RegisterConversion(func(s string) (float64, error) { return strconv.ParseFloat(strings.TrimSpace(s), 64) })
	RegisterConversion(func(s string) (bool, error) { return strconv.ParseBool(strings.TrimSpace(s)) })
	RegisterConversion(parseTime)

	RegisterConversion(func(i int64) (bool, error) {
		switch i {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return false, fmt.Errorf("value %d is not a boolean", i)
	})
	RegisterConversion(func(b bool) (int64, error) {
		if b {
			return 1, nil
		}
		return 0, nil
	})

	RegisterConversion(uuid.Parse)
	RegisterConversion(func(b []byte) (uuid.UUID, error) {
		if len(b) == 16 {
			return uuid.FromBytes(b)
		}
		return uuid.ParseBytes(b)
	})
	RegisterConversion(func(a [16]byte) (uuid.UUID, error) { return uuid.UUID(a), nil })
	RegisterConversion(func(u uuid.UUID) (string, error) { return u.String(), nil })
}
