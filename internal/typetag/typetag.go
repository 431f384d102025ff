// Package typetag parses and encodes Move type tags such as
// "0x2::sui::SUI" or "vector<u8>".
package typetag

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/alanyoungcy/sudomarket/internal/bcs"
	"github.com/alanyoungcy/sudomarket/internal/domain"
)

// Kind is the BCS variant index of a TypeTag.
type Kind uint8

const (
	Bool    Kind = 0
	U8      Kind = 1
	U64     Kind = 2
	U128    Kind = 3
	Address Kind = 4
	Signer  Kind = 5
	Vector  Kind = 6
	Struct  Kind = 7
	U16     Kind = 8
	U32     Kind = 9
	U256    Kind = 10
)

var primitives = map[string]Kind{
	"bool":    Bool,
	"u8":      U8,
	"u16":     U16,
	"u32":     U32,
	"u64":     U64,
	"u128":    U128,
	"u256":    U256,
	"address": Address,
	"signer":  Signer,
}

var primitiveNames = func() map[Kind]string {
	m := make(map[Kind]string, len(primitives))
	for name, k := range primitives {
		m[k] = name
	}
	return m
}()

// Tag is a parsed Move type.
type Tag struct {
	Kind   Kind
	Elem   *Tag       // Vector only
	Struct *StructTag // Struct only
}

// StructTag names a struct type with its type parameters.
type StructTag struct {
	Address [32]byte
	Module  string
	Name    string
	Params  []Tag
}

// Parse parses a Move type string.
func Parse(s string) (Tag, error) {
	p := &parser{src: s}
	t, err := p.tag()
	if err != nil {
		return Tag{}, err
	}
	p.space()
	if p.pos != len(p.src) {
		return Tag{}, p.errorf("unexpected %q", p.src[p.pos:])
	}
	return t, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Tag {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseStruct parses s and requires it to be a struct type.
func ParseStruct(s string) (StructTag, error) {
	t, err := Parse(s)
	if err != nil {
		return StructTag{}, err
	}
	if t.Kind != Struct {
		return StructTag{}, &domain.ParseError{Path: "type", Reason: fmt.Sprintf("%q is not a struct type", s)}
	}
	return *t.Struct, nil
}

// String renders the type with 0x-prefixed full-width addresses.
func (t Tag) String() string { return t.render(true) }

// Canonical renders the type the way the ledger's type names do: full-width
// addresses with no 0x prefix.
func (t Tag) Canonical() string { return t.render(false) }

func (t Tag) render(prefix bool) string {
	switch t.Kind {
	case Vector:
		return "vector<" + t.Elem.render(prefix) + ">"
	case Struct:
		return t.Struct.render(prefix)
	default:
		return primitiveNames[t.Kind]
	}
}

func (s StructTag) String() string { return s.render(true) }

func (s StructTag) Canonical() string { return s.render(false) }

func (s StructTag) render(prefix bool) string {
	var b strings.Builder
	if prefix {
		b.WriteString("0x")
	}
	b.WriteString(hex.EncodeToString(s.Address[:]))
	b.WriteString("::")
	b.WriteString(s.Module)
	b.WriteString("::")
	b.WriteString(s.Name)
	if len(s.Params) > 0 {
		b.WriteByte('<')
		for i, p := range s.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.render(prefix))
		}
		b.WriteByte('>')
	}
	return b.String()
}

// Is reports whether s is module::name, ignoring the address and params.
func (s StructTag) Is(module, name string) bool {
	return s.Module == module && s.Name == name
}

// Encode appends the BCS encoding of the tag.
func (t Tag) Encode(w *bcs.Writer) {
	w.U8(uint8(t.Kind))
	switch t.Kind {
	case Vector:
		t.Elem.Encode(w)
	case Struct:
		t.Struct.Encode(w)
	}
}

func (s StructTag) Encode(w *bcs.Writer) {
	w.Address(s.Address).Str(s.Module).Str(s.Name).ULEB128(len(s.Params))
	for _, p := range s.Params {
		p.Encode(w)
	}
}

// Equal compares two type strings by canonical form. Unparseable input is
// never equal to anything.
func Equal(a, b string) bool {
	ta, err := Parse(a)
	if err != nil {
		return false
	}
	tb, err := Parse(b)
	if err != nil {
		return false
	}
	return ta.Canonical() == tb.Canonical()
}

// ParseAddress accepts short ("0x2") or full-width hex with or without 0x.
func ParseAddress(s string) ([32]byte, error) {
	var a [32]byte
	h := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if h == "" || len(h) > 64 {
		return a, &domain.ParseError{Path: "address", Reason: fmt.Sprintf("invalid address %q", s)}
	}
	if len(h)%2 == 1 {
		h = "0" + h
	}
	raw, err := hex.DecodeString(h)
	if err != nil {
		return a, &domain.ParseError{Path: "address", Reason: fmt.Sprintf("invalid address %q: %v", s, err)}
	}
	copy(a[32-len(raw):], raw)
	return a, nil
}

// NormalizeAddress returns the 0x-prefixed full-width lower-case form.
func NormalizeAddress(s string) (string, error) {
	a, err := ParseAddress(s)
	if err != nil {
		return "", err
	}
	return FormatAddress(a), nil
}

func FormatAddress(a [32]byte) string {
	return "0x" + hex.EncodeToString(a[:])
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return &domain.ParseError{
		Path:   "type",
		Reason: fmt.Sprintf("%q at %d: %s", p.src, p.pos, fmt.Sprintf(format, args...)),
	}
}

func (p *parser) space() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) ident() string {
	p.space()
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			p.pos++
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

func (p *parser) accept(tok string) bool {
	p.space()
	if strings.HasPrefix(p.src[p.pos:], tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

func (p *parser) expect(tok string) error {
	if !p.accept(tok) {
		return p.errorf("expected %q", tok)
	}
	return nil
}

func (p *parser) tag() (Tag, error) {
	word := p.ident()
	if word == "" {
		return Tag{}, p.errorf("expected type")
	}
	if word == "vector" {
		if err := p.expect("<"); err != nil {
			return Tag{}, err
		}
		elem, err := p.tag()
		if err != nil {
			return Tag{}, err
		}
		if err := p.expect(">"); err != nil {
			return Tag{}, err
		}
		return Tag{Kind: Vector, Elem: &elem}, nil
	}
	if k, ok := primitives[word]; ok {
		return Tag{Kind: k}, nil
	}

	addr, err := ParseAddress(word)
	if err != nil {
		return Tag{}, p.errorf("bad address %q", word)
	}
	st := &StructTag{Address: addr}
	if err := p.expect("::"); err != nil {
		return Tag{}, err
	}
	if st.Module = p.ident(); st.Module == "" {
		return Tag{}, p.errorf("expected module name")
	}
	if err := p.expect("::"); err != nil {
		return Tag{}, err
	}
	if st.Name = p.ident(); st.Name == "" {
		return Tag{}, p.errorf("expected struct name")
	}
	if p.accept("<") {
		for {
			param, err := p.tag()
			if err != nil {
				return Tag{}, err
			}
			st.Params = append(st.Params, param)
			if p.accept(",") {
				continue
			}
			if err := p.expect(">"); err != nil {
				return Tag{}, err
			}
			break
		}
	}
	return Tag{Kind: Struct, Struct: st}, nil
}
