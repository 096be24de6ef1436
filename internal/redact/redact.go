// Package redact turns arbitrary captured values into JSON-safe strings.
//
// Encode is total: every input yields either a Serializable string form or an
// Opaque placeholder naming the value's type. Nothing panics out of it.
package redact

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/failtrack/internal/secrets"
)

// Kind classifies an encoded value.
type Kind int

const (
	// Serializable values carry their string form.
	Serializable Kind = iota
	// Opaque values could not be encoded and carry only a type name.
	Opaque
)

// maxNodes bounds the structural walk done before formatting.
const maxNodes = 100_000

// Value is the result of encoding one captured value.
type Value struct {
	Kind     Kind
	Text     string
	TypeName string
}

// String returns the text for Serializable values and the placeholder
// otherwise.
func (v Value) String() string {
	if v.Kind == Opaque {
		return Placeholder(v.TypeName)
	}
	return v.Text
}

// Placeholder is the substitute for a value that cannot be encoded.
func Placeholder(typeName string) string {
	return "<non-serializable: " + typeName + ">"
}

// Serializer encodes locals, optionally scrubbing secrets from string forms.
type Serializer struct {
	scrubber *secrets.Scrubber
	maxLen   int
}

// Option configures a Serializer.
type Option func(*Serializer)

// WithScrubber redacts secrets from every encoded string.
func WithScrubber(s *secrets.Scrubber) Option {
	return func(sr *Serializer) { sr.scrubber = s }
}

// WithMaxLen truncates string forms longer than n bytes. By default string
// forms are kept whole.
func WithMaxLen(n int) Option {
	return func(sr *Serializer) { sr.maxLen = n }
}

// New creates a Serializer.
func New(opts ...Option) *Serializer {
	s := &Serializer{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var defaultSerializer = New()

// Encode encodes v with the default serializer.
func Encode(v any) Value {
	return defaultSerializer.Encode("value", v)
}

// Locals encodes every entry of vars with the default serializer.
func Locals(vars map[string]any) map[string]string {
	return defaultSerializer.Locals(vars)
}

// Locals encodes every entry of vars. The result is never nil.
func (s *Serializer) Locals(vars map[string]any) map[string]string {
	out := make(map[string]string, len(vars))
	for name, v := range vars {
		key := name
		if !utf8.ValidString(key) {
			key = strings.ToValidUTF8(key, "?")
		}
		out[key] = s.Encode(key, v).String()
	}
	return out
}

// Encode encodes v as the value of the local called name.
func (s *Serializer) Encode(name string, v any) (val Value) {
	typeName := typeOf(v)
	defer func() {
		if r := recover(); r != nil {
			val = Value{Kind: Opaque, TypeName: typeName}
		}
	}()

	if !walkable(reflect.ValueOf(v)) {
		return Value{Kind: Opaque, TypeName: typeName}
	}

	text := format(v)
	if !utf8.ValidString(text) || !utf8.ValidString(name) {
		return Value{Kind: Opaque, TypeName: typeName}
	}
	if s.maxLen > 0 && len(text) > s.maxLen {
		text = truncate(text, s.maxLen)
	}
	if s.scrubber.Enabled() {
		text = s.scrubber.Scrub(text)
	}
	if _, err := json.Marshal(map[string]string{name: text}); err != nil {
		return Value{Kind: Opaque, TypeName: typeName}
	}
	return Value{Kind: Serializable, Text: text, TypeName: typeName}
}

// format renders v as fmt.Sprint does, except that a panic raised by v's own
// Format, Error or String method is not swallowed.
func format(v any) string {
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return fmt.Sprint(v)
	}
	switch x := v.(type) {
	case fmt.Formatter:
		var st state
		x.Format(&st, 'v')
		return st.String()
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// state is the fmt.State handed to a Formatter for the plain %v verb.
type state struct {
	strings.Builder
}

func (*state) Width() (int, bool)     { return 0, false }
func (*state) Precision() (int, bool) { return 0, false }
func (*state) Flag(int) bool          { return false }

func typeOf(v any) (name string) {
	defer func() {
		if recover() != nil {
			name = "unknown"
		}
	}()
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}

func truncate(s string, n int) string {
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s...(%d bytes truncated)", s[:cut], len(s)-cut)
}

// walkable reports whether fmt can print v in bounded time. It rejects
// cyclic maps, slices and interfaces as well as values larger than maxNodes.
// Pointers are only followed at the top level, mirroring fmt.
func walkable(v reflect.Value) bool {
	w := walker{onPath: make(map[uintptr]bool)}
	return w.walk(v, 0)
}

type walker struct {
	nodes  int
	onPath map[uintptr]bool
}

func (w *walker) walk(v reflect.Value, depth int) bool {
	w.nodes++
	if w.nodes > maxNodes {
		return false
	}
	if !v.IsValid() {
		return true
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return true
		}
		return w.walk(v.Elem(), depth)
	case reflect.Pointer:
		if v.IsNil() || depth > 0 {
			return true
		}
		return w.enter(v.Pointer(), func() bool { return w.walk(v.Elem(), depth+1) })
	case reflect.Map:
		if v.IsNil() {
			return true
		}
		return w.enter(v.Pointer(), func() bool {
			iter := v.MapRange()
			for iter.Next() {
				if !w.walk(iter.Key(), depth+1) || !w.walk(iter.Value(), depth+1) {
					return false
				}
			}
			return true
		})
	case reflect.Slice:
		if v.Len() == 0 || scalar(v.Type().Elem()) {
			return true
		}
		return w.enter(v.Pointer(), func() bool { return w.elems(v, depth) })
	case reflect.Array:
		if scalar(v.Type().Elem()) {
			return true
		}
		return w.elems(v, depth)
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if !w.walk(v.Field(i), depth+1) {
				return false
			}
		}
	}
	return true
}

// scalar element types print in linear time and cannot form cycles.
func scalar(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return false
	}
	return true
}

func (w *walker) elems(v reflect.Value, depth int) bool {
	for i := 0; i < v.Len(); i++ {
		if !w.walk(v.Index(i), depth+1) {
			return false
		}
	}
	return true
}

func (w *walker) enter(ptr uintptr, fn func() bool) bool {
	if w.onPath[ptr] {
		return false
	}
	w.onPath[ptr] = true
	ok := fn()
	delete(w.onPath, ptr)
	return ok
}
