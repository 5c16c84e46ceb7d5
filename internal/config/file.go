package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const redacted = "***"

var secretKeys = map[string]bool{
	"serpapi.api_key":       true,
	"amadeus.client_secret": true,
	"smtp.password":         true,
	"llm.api_key":           true,
	"redis.password":        true,
	"history.dsn":           true,
}

func IsSecret(key string) bool {
	return secretKeys[key]
}

// Redact hides secret values for display.
func Redact(key, value string) string {
	if value != "" && IsSecret(key) {
		return redacted
	}
	return value
}

// File is the on-disk YAML document, edited key by key without disturbing
// keys it does not touch.
type File struct {
	Path string
	doc  map[string]any
}

// OpenFile reads path; a missing file opens empty.
func OpenFile(path string) (*File, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	f := &File{Path: path, doc: map[string]any{}}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(b, &f.doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if f.doc == nil {
		f.doc = map[string]any{}
	}
	return f, nil
}

// Get returns the raw value stored at a dotted key.
func (f *File) Get(key string) (any, bool) {
	var cur any = f.doc
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set stores value at a dotted key. Unknown keys are rejected.
func (f *File) Set(key, value string) error {
	if !Known(key) {
		return fmt.Errorf("unknown key %q", key)
	}
	parts := strings.Split(key, ".")
	m := f.doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = typed(key, value)
	return nil
}

// Raw is the nested document as it will be saved.
func (f *File) Raw() map[string]any {
	return f.doc
}

// Flatten returns every leaf as dotted key -> display string.
func (f *File) Flatten() map[string]string {
	out := map[string]string{}
	flatten("", f.doc, out)
	return out
}

func (f *File) Save() error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(f.doc)
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, b, 0o600)
}

// SortedKeys returns keys of m in order.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func flatten(prefix string, v any, out map[string]string) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, child, out)
		}
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, fmt.Sprint(item))
		}
		out[prefix] = strings.Join(parts, ",")
	default:
		out[prefix] = fmt.Sprint(t)
	}
}

// typed keeps the YAML natural for numbers, booleans and lists so that
// decoding does not depend on weak typing.
func typed(key, value string) any {
	switch defaults[key].(type) {
	case bool:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "yes", "1", "on":
			return true
		case "false", "no", "0", "off":
			return false
		}
	case int:
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err == nil {
			return n
		}
	case []string:
		list := splitList(value)
		out := make([]any, 0, len(list))
		for _, s := range list {
			out = append(out, s)
		}
		return out
	}
	return value
}
