package configbridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/spf13/cast"
	"go.yaml.in/yaml/v3"
	"gopkg.in/ini.v1"
)

// Format is a supported on-disk serialization.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatINI  Format = "ini"
)

// ErrUnsupportedFormat is returned for extensions outside the codec table.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// extensions in lookup priority order; new files take the first.
var extensions = []struct {
	ext    string
	format Format
}{
	{".yaml", FormatYAML},
	{".yml", FormatYAML},
	{".json", FormatJSON},
	{".ini", FormatINI},
	{".cfg", FormatINI},
}

// Extensions returns the supported extensions in lookup priority order.
func Extensions() []string {
	out := make([]string, 0, len(extensions))
	for _, e := range extensions {
		out = append(out, e.ext)
	}
	return out
}

// FormatOf resolves the format of path by extension.
func FormatOf(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if e.ext == ext {
			return e.format, nil
		}
	}
	return "", fmt.Errorf("%s: %w", ext, ErrUnsupportedFormat)
}

type codec struct {
	decode func([]byte) (map[string]any, error)
	encode func(map[string]any) ([]byte, error)
}

var codecs = map[Format]codec{
	FormatYAML: {decode: decodeYAML, encode: encodeYAML},
	FormatJSON: {decode: decodeJSON, encode: encodeJSON},
	FormatINI:  {decode: decodeINI, encode: encodeINI},
}

// Decode parses data in the given format into a normalized mapping: nested
// maps are map[string]any, sequences []any, integral numbers int.
func Decode(f Format, data []byte) (map[string]any, error) {
	c, ok := codecs[f]
	if !ok {
		return nil, fmt.Errorf("%s: %w", f, ErrUnsupportedFormat)
	}
	return c.decode(data)
}

// Encode serializes m in the given format.
func Encode(f Format, m map[string]any) ([]byte, error) {
	c, ok := codecs[f]
	if !ok {
		return nil, fmt.Errorf("%s: %w", f, ErrUnsupportedFormat)
	}
	return c.encode(m)
}

func decodeYAML(data []byte) (map[string]any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return asMapping(normalize(v))
}

func encodeYAML(m map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeJSON(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return asMapping(normalize(v))
}

func encodeJSON(m map[string]any) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// decodeINI maps sections to nested mappings and keys of the default
// section to top-level entries. All values come back as strings.
func decodeINI(data []byte) (map[string]any, error) {
	f, err := ini.Load(data)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			for _, k := range sec.Keys() {
				out[k.Name()] = k.String()
			}
			continue
		}
		values := map[string]any{}
		for _, k := range sec.Keys() {
			values[k.Name()] = k.String()
		}
		out[sec.Name()] = values
	}
	return out, nil
}

func encodeINI(m map[string]any) ([]byte, error) {
	f := ini.Empty()
	for _, name := range slices.Sorted(maps.Keys(m)) {
		section, ok := m[name].(map[string]any)
		if !ok {
			s, err := iniString(m[name])
			if err != nil {
				return nil, fmt.Errorf("key %s: %w", name, err)
			}
			if _, err := f.Section("").NewKey(name, s); err != nil {
				return nil, err
			}
			continue
		}
		sec, err := f.NewSection(name)
		if err != nil {
			return nil, err
		}
		for _, k := range slices.Sorted(maps.Keys(section)) {
			s, err := iniString(section[k])
			if err != nil {
				return nil, fmt.Errorf("key %s.%s: %w", name, k, err)
			}
			if _, err := sec.NewKey(k, s); err != nil {
				return nil, err
			}
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// iniString coerces a scalar or a flat list to its INI string form.
func iniString(v any) (string, error) {
	if list, ok := asList(v); ok {
		parts, err := cast.ToStringSliceE(list)
		if err != nil {
			return "", err
		}
		return strings.Join(parts, ","), nil
	}
	if _, nested := v.(map[string]any); nested {
		return "", errors.New("ini supports a single level of sections")
	}
	return cast.ToStringE(v)
}

// asList widens any slice except []byte to []any.
func asList(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	list := make([]any, rv.Len())
	for i := range list {
		list[i] = rv.Index(i).Interface()
	}
	return list, true
}

func asMapping(v any) (map[string]any, error) {
	switch m := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return m, nil
	default:
		return nil, fmt.Errorf("top level is %T, not a mapping", v)
	}
}

// normalize converts decoder output to the canonical shapes.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil && i >= math.MinInt && i <= math.MaxInt {
			return int(i)
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}

// deepCopy clones normalized mappings so callers never share cache state.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

func copyMapping(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return deepCopy(m).(map[string]any)
}
