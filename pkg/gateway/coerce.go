package gateway

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MapFunc converts a raw stored string into a typed value.
type MapFunc[T any] func(raw string) (T, error)

// Int parses a base-10 integer. Surrounding whitespace is ignored.
func Int(raw string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(raw))
}

func Int64(raw string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
}

func Float64(raw string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(raw), 64)
}

// Bool accepts the forms strconv.ParseBool does (1, t, true, 0, f, false...).
func Bool(raw string) (bool, error) {
	return strconv.ParseBool(strings.TrimSpace(raw))
}

// String returns the raw value unchanged.
func String(raw string) (string, error) {
	return raw, nil
}

// Duration parses Go duration syntax such as "1m30s".
func Duration(raw string) (time.Duration, error) {
	return time.ParseDuration(strings.TrimSpace(raw))
}

func Decimal(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(raw))
}

// Pointer lifts m to a nullable result, so callers can use nil as the default.
func Pointer[T any](m MapFunc[T]) MapFunc[*T] {
	return func(raw string) (*T, error) {
		v, err := m(raw)
		if err != nil {
			return nil, err
		}
		return &v, nil
	}
}

type zeroer interface {
	IsZero() bool
}

// falsy reports whether v counts as "no value": the zero value of its type,
// an empty string, slice or map, a nil pointer or a pointer to a falsy value.
func falsy[T any](v T) bool {
	return falsyValue(reflect.ValueOf(&v).Elem())
}

func falsyValue(rv reflect.Value) bool {
	if !rv.IsValid() {
		return true
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return true
		}
		return falsyValue(rv.Elem())
	}

	if rv.CanInterface() {
		if z, ok := rv.Interface().(zeroer); ok {
			return z.IsZero()
		}
	}

	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map:
		return rv.Len() == 0
	}
	return rv.IsZero()
}
