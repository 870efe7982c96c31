// Package canonical provides deterministic, order-stable serialization of
// structured records. Two logically identical values always encode to the same
// bytes, regardless of how they were constructed, which makes the output safe
// to hash and compare across independent processes.
//
// The encoding is a restricted form of JSON: object keys are sorted
// lexicographically at every nesting level, floating point values must be
// finite, timestamps are normalized to UTC RFC 3339, and cyclic structures are
// rejected. Because the output is valid JSON it can be decoded again with
// encoding/json.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// EncodingError reports a value that cannot be canonically encoded, such as a
// non-finite float, a cycle, or a map with non-string keys.
type EncodingError struct {
	Path   string // dotted path to the offending value, "$" is the root
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("canonical: cannot encode %s: %s", e.Path, e.Reason)
}

// Encode serializes v into canonical bytes. It is a pure function: identical
// logical input always yields identical output. Returns an *EncodingError if
// v contains a non-finite number, a cyclic reference, or an unsupported type.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	e := encoder{buf: &buf, seen: make(map[uintptr]struct{})}
	if err := e.write(reflect.ValueOf(v), "$"); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type encoder struct {
	buf  *bytes.Buffer
	seen map[uintptr]struct{}
}

var timeType = reflect.TypeOf(time.Time{})

func (e *encoder) write(v reflect.Value, path string) error {
	if !v.IsValid() {
		e.buf.WriteString("null")
		return nil
	}

	if v.Type() == timeType {
		t := v.Interface().(time.Time)
		e.writeString(t.UTC().Format(time.RFC3339Nano))
		return nil
	}

	switch v.Kind() {
	case reflect.Bool:
		e.buf.WriteString(strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.buf.WriteString(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		e.buf.WriteString(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return &EncodingError{Path: path, Reason: "non-finite number"}
		}
		e.buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	case reflect.String:
		e.writeString(v.String())
	case reflect.Pointer:
		if v.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		ptr := v.Pointer()
		if _, ok := e.seen[ptr]; ok {
			return &EncodingError{Path: path, Reason: "cyclic structure"}
		}
		e.seen[ptr] = struct{}{}
		defer delete(e.seen, ptr)
		return e.write(v.Elem(), path)
	case reflect.Interface:
		if v.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		return e.write(v.Elem(), path)
	case reflect.Slice, reflect.Array:
		return e.writeSequence(v, path)
	case reflect.Map:
		return e.writeMap(v, path)
	case reflect.Struct:
		return e.writeStruct(v, path)
	default:
		return &EncodingError{Path: path, Reason: "unsupported type " + v.Kind().String()}
	}
	return nil
}

// writeString uses encoding/json for escaping so the output stays valid JSON.
func (e *encoder) writeString(s string) {
	b, _ := json.Marshal(s)
	e.buf.Write(b)
}

func (e *encoder) writeSequence(v reflect.Value, path string) error {
	// []byte follows the encoding/json convention of a base64 string.
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
		b, _ := json.Marshal(v.Bytes())
		e.buf.Write(b)
		return nil
	}
	if v.Kind() == reflect.Slice && !v.IsNil() {
		ptr := v.Pointer()
		if _, ok := e.seen[ptr]; ok {
			return &EncodingError{Path: path, Reason: "cyclic structure"}
		}
		e.seen[ptr] = struct{}{}
		defer delete(e.seen, ptr)
	}
	e.buf.WriteByte('[')
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.write(v.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	e.buf.WriteByte(']')
	return nil
}

func (e *encoder) writeMap(v reflect.Value, path string) error {
	if v.Type().Key().Kind() != reflect.String {
		return &EncodingError{Path: path, Reason: "map keys must be strings"}
	}
	if v.IsNil() {
		e.buf.WriteString("null")
		return nil
	}
	ptr := v.Pointer()
	if _, ok := e.seen[ptr]; ok {
		return &EncodingError{Path: path, Reason: "cyclic structure"}
	}
	e.seen[ptr] = struct{}{}
	defer delete(e.seen, ptr)

	keys := make([]string, 0, v.Len())
	for _, k := range v.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)

	e.buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.writeString(k)
		e.buf.WriteByte(':')
		if err := e.write(v.MapIndex(reflect.ValueOf(k)), path+"."+k); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')
	return nil
}

func (e *encoder) writeStruct(v reflect.Value, path string) error {
	type field struct {
		name string
		val  reflect.Value
	}
	fields := make([]field, 0, v.NumField())
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		fields = append(fields, field{name: name, val: v.Field(i)})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].name < fields[j].name })

	e.buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.writeString(f.name)
		e.buf.WriteByte(':')
		if err := e.write(f.val, path+"."+f.name); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')
	return nil
}
