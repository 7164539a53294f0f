package isolation

import (
	"fmt"
	"reflect"
)

// Shareable marks a value as safe to cross domain boundaries. Implementers
// take on the obligation that the value is immutable after publication or
// internally synchronized.
type Shareable interface {
	ShareableAcrossDomains()
}

var shareableType = reflect.TypeOf((*Shareable)(nil)).Elem()

// EnsureShareable checks that a value may cross a domain boundary: it must
// be immutable (booleans, numbers, strings, and structs/arrays composed of
// those) or explicitly marked via the Shareable interface. Mutable
// indirection — pointers, slices, maps, channels, functions — is rejected
// with an isolation violation so a cross-domain race can never happen
// silently.
func EnsureShareable(v any) error {
	if v == nil {
		return nil
	}
	if _, ok := v.(Shareable); ok {
		return nil
	}
	if err := checkShareable(reflect.ValueOf(v), ""); err != nil {
		return fmt.Errorf("%w: %v", ErrViolation, err)
	}
	return nil
}

func checkShareable(rv reflect.Value, path string) error {
	if rv.Type().Implements(shareableType) {
		return nil
	}

	switch rv.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128,
		reflect.String:
		return nil

	case reflect.Struct:
		for i := 0; i < rv.NumField(); i++ {
			fieldPath := path + "." + rv.Type().Field(i).Name
			if err := checkShareable(rv.Field(i), fieldPath); err != nil {
				return err
			}
		}
		return nil

	case reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := checkShareable(rv.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil

	case reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return checkShareable(rv.Elem(), path)

	default:
		where := path
		if where == "" {
			where = "value"
		}
		return fmt.Errorf("%s of type %s is mutable and not marked shareable", where, rv.Type())
	}
}
