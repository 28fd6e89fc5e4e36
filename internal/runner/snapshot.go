package runner

import "reflect"

// snapshot returns a deep copy of v so values recorded by an assertion do
// not change when the test keeps mutating them. Pointers, slices, maps,
// arrays, interfaces and the exported fields of structs are copied; shared
// pointers stay shared and cycles are preserved. Funcs, channels and
// unexported struct fields are kept by reference. A value the copier
// cannot handle is returned as is.
func snapshot(v any) (out any) {
	if v == nil {
		return nil
	}
	defer func() {
		if recover() != nil {
			out = v
		}
	}()
	c := copier{seen: map[seenKey]reflect.Value{}}
	return c.copy(reflect.ValueOf(v)).Interface()
}

// seenKey includes the type because a struct and its first field share an
// address.
type seenKey struct {
	t reflect.Type
	p uintptr
}

type copier struct {
	seen map[seenKey]reflect.Value
}

func (c *copier) copy(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		key := seenKey{v.Type(), v.Pointer()}
		if p, ok := c.seen[key]; ok {
			return p
		}
		p := reflect.New(v.Elem().Type())
		c.seen[key] = p
		p.Elem().Set(c.copy(v.Elem()))
		return p

	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(c.copy(v.Elem()))
		return out

	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(c.copy(v.Index(i)))
		}
		return out

	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(c.copy(v.Index(i)))
		}
		return out

	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), c.copy(iter.Value()))
		}
		return out

	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := 0; i < v.NumField(); i++ {
			if out.Field(i).CanSet() {
				out.Field(i).Set(c.copy(v.Field(i)))
			}
		}
		return out

	default:
		return v
	}
}
