package repository

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"servicehub/internal/domain/repository"
)

var timeType = reflect.TypeOf(time.Time{})

// storedName returns the firestore field name of a struct field, or "" when skipped.
func storedName(f reflect.StructField) string {
	if f.PkgPath != "" {
		return ""
	}
	tag := f.Tag.Get("firestore")
	if tag == "-" {
		return ""
	}
	name := strings.Split(tag, ",")[0]
	if name == "" {
		name = f.Name
	}
	return name
}

// fieldValues flattens a document struct into its stored field names.
func fieldValues(doc interface{}) map[string]interface{} {
	v := reflect.Indirect(reflect.ValueOf(doc))
	fields := make(map[string]interface{}, v.NumField())
	for i := 0; i < v.NumField(); i++ {
		name := storedName(v.Type().Field(i))
		if name == "" {
			continue
		}
		fv := v.Field(i)
		if fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				fields[name] = nil
				continue
			}
			fv = fv.Elem()
		}
		fields[name] = fv.Interface()
	}
	return fields
}

// applyPatch writes patch values into doc by stored field name.
func applyPatch(doc interface{}, patch map[string]interface{}) error {
	v := reflect.ValueOf(doc).Elem()
	byName := make(map[string]int, v.NumField())
	for i := 0; i < v.NumField(); i++ {
		if name := storedName(v.Type().Field(i)); name != "" {
			byName[name] = i
		}
	}

	for key, value := range patch {
		idx, ok := byName[key]
		if !ok {
			return fmt.Errorf("unknown field %q", key)
		}
		field := v.Field(idx)

		if value == nil {
			field.Set(reflect.Zero(field.Type()))
			continue
		}

		rv := reflect.ValueOf(value)
		switch {
		case rv.Type().AssignableTo(field.Type()):
			field.Set(rv)
		case field.Kind() == reflect.Ptr && rv.Type().AssignableTo(field.Type().Elem()):
			ptr := reflect.New(field.Type().Elem())
			ptr.Elem().Set(rv)
			field.Set(ptr)
		case rv.Type().ConvertibleTo(field.Type()) && field.Type() != timeType:
			field.Set(rv.Convert(field.Type()))
		default:
			return fmt.Errorf("field %q: cannot use %T as %s", key, value, field.Type())
		}
	}
	return nil
}

func matchesAll(fields map[string]interface{}, filters []repository.Filter) bool {
	for _, f := range filters {
		if !matchesFilter(fields, f) {
			return false
		}
	}
	return true
}

func matchesFilter(fields map[string]interface{}, f repository.Filter) bool {
	switch {
	case len(f.Or) > 0:
		for _, sub := range f.Or {
			if matchesFilter(fields, sub) {
				return true
			}
		}
		return false
	case len(f.And) > 0:
		return matchesAll(fields, f.And)
	}

	cmp, ok := compareValues(fields[f.Field], f.Value)
	switch f.Op {
	case "==":
		return ok && cmp == 0
	case "!=":
		return !ok || cmp != 0
	case "<":
		return ok && cmp < 0
	case "<=":
		return ok && cmp <= 0
	case ">":
		return ok && cmp > 0
	case ">=":
		return ok && cmp >= 0
	}
	return false
}

// compareValues orders two stored values of the same family. ok is false when
// the values cannot be compared.
func compareValues(a, b interface{}) (int, bool) {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		if !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if av == bv {
			return 0, true
		}
		if !av {
			return -1, true
		}
		return 1, true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
