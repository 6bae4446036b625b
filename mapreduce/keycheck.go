package mapreduce

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
)

var (
	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
)

// checkKey rejects keys whose JSON encoding would lose information, so
// that two distinct keys can never share one encoding. Types with their
// own MarshalJSON or MarshalText are trusted to encode what identifies
// them.
func checkKey(key any) error {
	return checkValue(reflect.ValueOf(key), make(map[uintptr]bool))
}

func checkValue(v reflect.Value, seen map[uintptr]bool) error {
	if !v.IsValid() {
		return nil
	}

	t := v.Type()
	if t.Implements(jsonMarshalerType) || t.Implements(textMarshalerType) {
		return nil
	}

	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return fmt.Errorf("%s has no encoding", t)

	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return checkValue(v.Elem(), seen)

	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		// cycles are reported by the encoder
		if seen[v.Pointer()] {
			return nil
		}
		seen[v.Pointer()] = true
		return checkValue(v.Elem(), seen)

	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			// []byte encodes as base64
			return nil
		}
		for i := range v.Len() {
			if err := checkValue(v.Index(i), seen); err != nil {
				return err
			}
		}

	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return fmt.Errorf("%s: map keys must be strings", t)
		}
		iter := v.MapRange()
		for iter.Next() {
			if err := checkValue(iter.Value(), seen); err != nil {
				return err
			}
		}

	case reflect.Struct:
		return checkStruct(v, seen)
	}

	return nil
}

func checkStruct(v reflect.Value, seen map[uintptr]bool) error {
	t := v.Type()

	for i := range t.NumField() {
		f := t.Field(i)

		if f.Tag.Get("json") == "-" {
			return fmt.Errorf("%s: field %s is excluded from the encoding", t, f.Name)
		}

		if f.Anonymous {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			// exported fields of an embedded struct are promoted, even when
			// the embedded type itself is unexported
			if !f.IsExported() && ft.Kind() != reflect.Struct {
				return fmt.Errorf("%s: embedded field %s is not encoded", t, f.Name)
			}
		} else if !f.IsExported() {
			return fmt.Errorf("%s: unexported field %s is not encoded", t, f.Name)
		}

		if err := checkValue(v.Field(i), seen); err != nil {
			return err
		}
	}

	return nil
}
