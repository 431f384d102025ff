package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/fixedpoint"
)

// moveFields reads typed values out of a Move struct's JSON fields. A
// reader and the readers of its nested structs share one sticky error,
// reported by Err with the failing field's path.
type moveFields struct {
	path string
	m    map[string]json.RawMessage
	errp *error
}

func newMoveFields(raw json.RawMessage, path string) *moveFields {
	f := &moveFields{path: path, errp: new(error)}
	if err := json.Unmarshal(raw, &f.m); err != nil || f.m == nil {
		*f.errp = &domain.ParseError{Path: path, Reason: "not an object"}
	}
	return f
}

func (f *moveFields) Err() error { return *f.errp }

func (f *moveFields) failed() bool { return *f.errp != nil }

func (f *moveFields) fail(name, reason string) {
	if *f.errp == nil {
		*f.errp = &domain.ParseError{Path: f.path + "." + name, Reason: reason}
	}
}

func (f *moveFields) raw(name string) json.RawMessage {
	if f.failed() {
		return nil
	}
	v, ok := f.m[name]
	if !ok || string(v) == "null" {
		f.fail(name, "missing")
		return nil
	}
	return v
}

// Struct descends into name's "fields" object.
func (f *moveFields) Struct(name string) *moveFields {
	child := &moveFields{path: f.path + "." + name + ".fields", errp: f.errp}
	raw := f.raw(name)
	if f.failed() {
		return child
	}
	var s struct {
		Fields json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal(raw, &s); err != nil || len(s.Fields) == 0 {
		f.fail(name+".fields", "missing")
		return child
	}
	if err := json.Unmarshal(s.Fields, &child.m); err != nil {
		f.fail(name+".fields", err.Error())
	}
	return child
}

// Type returns the "type" of the struct stored under name.
func (f *moveFields) Type(name string) string {
	raw := f.raw(name)
	if f.failed() {
		return ""
	}
	var s struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &s); err != nil || s.Type == "" {
		f.fail(name, "missing type")
	}
	return s.Type
}

func (f *moveFields) Str(name string) string {
	raw := f.raw(name)
	if f.failed() {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		f.fail(name, "not a string")
	}
	return s
}

// UID reads an object id, rendered as {"id": "0x.."}.
func (f *moveFields) UID(name string) string {
	raw := f.raw(name)
	if f.failed() {
		return ""
	}
	var u struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &u); err != nil || u.ID == "" {
		f.fail(name, "not a UID")
	}
	return u.ID
}

// OptionalStr returns "" when name is absent or null.
func (f *moveFields) OptionalStr(name string) string {
	if f.failed() {
		return ""
	}
	if v, ok := f.m[name]; !ok || string(v) == "null" {
		return ""
	}
	return f.Str(name)
}

func (f *moveFields) Bool(name string) bool {
	raw := f.raw(name)
	if f.failed() {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		f.fail(name, "not a bool")
	}
	return b
}

func (f *moveFields) U64(name string) uint64 {
	s := f.integer(name)
	if f.failed() {
		return 0
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		f.fail(name, err.Error())
	}
	return v
}

// Decimal reads a raw 18-decimal magnitude, whether stored bare or wrapped
// in a Decimal or Rate struct.
func (f *moveFields) Decimal(name string) fixedpoint.Decimal {
	s := f.integer(name)
	if f.failed() {
		return fixedpoint.Decimal{}
	}
	d, err := fixedpoint.Parse(s)
	if err != nil {
		f.fail(name, err.Error())
	}
	return d
}

// Signed reads an SDecimal or SRate struct.
func (f *moveFields) Signed(name string) fixedpoint.Signed {
	s := f.Struct(name)
	positive := s.Bool("is_positive")
	magnitude := s.Decimal("value")
	if f.failed() {
		return fixedpoint.Signed{}
	}
	return fixedpoint.NewSigned(positive, magnitude)
}

// Time reads a unix timestamp in seconds.
func (f *moveFields) Time(name string) time.Time {
	v := f.U64(name)
	if f.failed() {
		return time.Time{}
	}
	return time.Unix(int64(v), 0).UTC()
}

func (f *moveFields) integer(name string) string {
	raw := f.raw(name)
	if f.failed() {
		return ""
	}
	s, err := integerText(raw, 0)
	if err != nil {
		f.fail(name, err.Error())
	}
	return s
}

// integerText unwraps a JSON number, numeric string or single-value
// struct down to the integer's decimal text.
func integerText(raw json.RawMessage, depth int) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || depth > 4 {
		return "", fmt.Errorf("not an integer")
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{':
		var s struct {
			Fields json.RawMessage `json:"fields"`
			Value  json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		if len(s.Fields) > 0 {
			return integerText(s.Fields, depth+1)
		}
		if len(s.Value) > 0 {
			return integerText(s.Value, depth+1)
		}
		return "", fmt.Errorf("struct without value")
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("not an integer")
		}
		return n.String(), nil
	}
}
