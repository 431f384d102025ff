// Package schema decodes the fixed binary records returned by the market's
// on-ledger functions. Every decoder is total: a short, malformed or
// over-long buffer yields a *domain.DecodeError and no partial value.
package schema

import (
	"errors"
	"fmt"

	"github.com/alanyoungcy/sudomarket/internal/bcs"
	"github.com/alanyoungcy/sudomarket/internal/domain"
)

// Name identifies a registered schema.
type Name string

const (
	Rate             Name = "Rate"
	Decimal          Name = "Decimal"
	SDecimal         Name = "SDecimal"
	SRate            Name = "SRate"
	AggPrice         Name = "AggPrice"
	VaultsValuation  Name = "VaultsValuation"
	SymbolsValuation Name = "SymbolsValuation"
)

// Schema is one registry entry.
type Schema struct {
	Name    Name
	MinSize int
	decode  func(r *bcs.Reader) (any, error)
}

var registry = map[Name]Schema{
	Rate:             {Rate, 16, func(r *bcs.Reader) (any, error) { return readRate(r), nil }},
	Decimal:          {Decimal, 32, func(r *bcs.Reader) (any, error) { return readDecimal(r), nil }},
	SDecimal:         {SDecimal, 33, func(r *bcs.Reader) (any, error) { return readSDecimal(r), nil }},
	SRate:            {SRate, 17, func(r *bcs.Reader) (any, error) { return readSRate(r), nil }},
	AggPrice:         {AggPrice, 40, func(r *bcs.Reader) (any, error) { return readAggPrice(r), nil }},
	VaultsValuation:  {VaultsValuation, 81, func(r *bcs.Reader) (any, error) { return readVaultsValuation(r) }},
	SymbolsValuation: {SymbolsValuation, 82, func(r *bcs.Reader) (any, error) { return readSymbolsValuation(r) }},
}

// Lookup returns the schema registered under name.
func Lookup(name Name) (Schema, bool) {
	s, ok := registry[name]
	return s, ok
}

// Decode decodes b with the named schema.
func Decode(name Name, b []byte) (any, error) {
	s, ok := registry[name]
	if !ok {
		return nil, &domain.DecodeError{Schema: string(name), Reason: "unknown schema"}
	}
	if len(b) < s.MinSize {
		return nil, &domain.DecodeError{
			Schema: string(name),
			Reason: fmt.Sprintf("buffer of %d bytes is shorter than minimum %d", len(b), s.MinSize),
		}
	}
	r := bcs.NewReader(b)
	v, err := s.decode(r)
	if err == nil {
		err = r.Done()
	}
	if err != nil {
		return nil, wrap(name, err)
	}
	return v, nil
}

// As decodes b with the named schema and asserts the Go type.
func As[T any](name Name, b []byte) (T, error) {
	var zero T
	v, err := Decode(name, b)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, &domain.DecodeError{Schema: string(name), Reason: fmt.Sprintf("schema yields %T, not %T", v, zero)}
	}
	return t, nil
}

func wrap(name Name, err error) error {
	var de *domain.DecodeError
	if errors.As(err, &de) {
		if de.Schema == "" {
			de.Schema = string(name)
		}
		return de
	}
	var be *bcs.Error
	if errors.As(err, &be) {
		return &domain.DecodeError{Schema: string(name), Offset: be.Offset, Reason: be.Reason}
	}
	return &domain.DecodeError{Schema: string(name), Reason: err.Error()}
}
