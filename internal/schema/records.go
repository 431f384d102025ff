package schema

import (
	"fmt"

	"github.com/alanyoungcy/sudomarket/internal/bcs"
	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/fixedpoint"
	"github.com/alanyoungcy/sudomarket/internal/typetag"
)

// Price is an aggregated oracle price. Price is the value of one whole
// token at 18 decimals; Precision is the token's unit multiplier
// (10^decimals) used to value raw coin amounts.
type Price struct {
	Price     fixedpoint.Decimal
	Precision uint64
}

// Display returns the price of one whole token.
func (p Price) Display() float64 { return p.Price.Float64() }

// CoinsValue values a raw coin amount as price*amount/precision.
func (p Price) CoinsValue(amount uint64) (fixedpoint.Decimal, error) {
	if p.Precision == 0 {
		return fixedpoint.Decimal{}, fmt.Errorf("%w: zero precision", fixedpoint.ErrArithmetic)
	}
	v, err := p.Price.Mul(fixedpoint.FromUnits(amount))
	if err != nil {
		return fixedpoint.Decimal{}, err
	}
	return v.Div(fixedpoint.FromUnits(p.Precision))
}

// VaultEntry is one vault's line in a vaults snapshot. Key is the vault
// coin's type name as the ledger renders it.
type VaultEntry struct {
	Key   string
	Price Price
	Value fixedpoint.Decimal
}

// Vaults is the accumulated vaults valuation snapshot.
type Vaults struct {
	Timestamp   uint64
	Num         uint64
	Entries     []VaultEntry
	TotalWeight fixedpoint.Decimal
	Value       fixedpoint.Decimal
}

// Find returns the entry whose key names the given coin type. Keys and
// coin types are compared in canonical form, never by substring.
func (v Vaults) Find(coinType string) (VaultEntry, bool) {
	want, err := typetag.Parse(coinType)
	if err != nil {
		return VaultEntry{}, false
	}
	for _, e := range v.Entries {
		got, err := typetag.Parse(e.Key)
		if err != nil {
			continue
		}
		if got.Canonical() == want.Canonical() {
			return e, true
		}
	}
	return VaultEntry{}, false
}

// Symbols is the accumulated symbols valuation snapshot.
type Symbols struct {
	Timestamp uint64
	Num       uint64
	LPSupply  fixedpoint.Decimal
	Handled   []string
	Value     fixedpoint.Signed
}

func readDecimal(r *bcs.Reader) fixedpoint.Decimal { return fixedpoint.FromRaw(r.U256()) }

func readRate(r *bcs.Reader) fixedpoint.Decimal { return fixedpoint.FromRaw(r.U128()) }

func readSDecimal(r *bcs.Reader) fixedpoint.Signed {
	pos := r.Bool()
	return fixedpoint.NewSigned(pos, readDecimal(r))
}

func readSRate(r *bcs.Reader) fixedpoint.Signed {
	pos := r.Bool()
	return fixedpoint.NewSigned(pos, readRate(r))
}

func readAggPrice(r *bcs.Reader) Price {
	return Price{Price: readDecimal(r), Precision: r.U64()}
}

func readVaultsValuation(r *bcs.Reader) (Vaults, error) {
	var v Vaults
	v.Timestamp = r.U64()
	v.Num = r.U64()
	n := r.ULEB128()
	// each entry needs at least 1+40+32 bytes
	if r.Err() == nil && n > r.Remaining()/73 {
		return Vaults{}, &domain.DecodeError{Offset: r.Offset(), Reason: fmt.Sprintf("%d entries cannot fit in %d bytes", n, r.Remaining())}
	}
	v.Entries = make([]VaultEntry, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		var e VaultEntry
		e.Key = r.Str()
		e.Price = readAggPrice(r)
		e.Value = readDecimal(r)
		v.Entries = append(v.Entries, e)
	}
	v.TotalWeight = readDecimal(r)
	v.Value = readDecimal(r)
	if err := r.Err(); err != nil {
		return Vaults{}, err
	}
	if v.Num != uint64(len(v.Entries)) {
		return Vaults{}, &domain.DecodeError{Offset: r.Offset(), Reason: fmt.Sprintf("count %d does not match %d entries", v.Num, len(v.Entries))}
	}
	return v, nil
}

func readSymbolsValuation(r *bcs.Reader) (Symbols, error) {
	var s Symbols
	s.Timestamp = r.U64()
	s.Num = r.U64()
	s.LPSupply = readDecimal(r)
	n := r.ULEB128()
	if r.Err() == nil && n > r.Remaining() {
		return Symbols{}, &domain.DecodeError{Offset: r.Offset(), Reason: fmt.Sprintf("%d keys cannot fit in %d bytes", n, r.Remaining())}
	}
	s.Handled = make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		off := r.Offset()
		k := r.Str()
		if r.Err() != nil {
			break
		}
		if _, dup := seen[k]; dup {
			return Symbols{}, &domain.DecodeError{Offset: off, Reason: fmt.Sprintf("duplicate key %q", k)}
		}
		seen[k] = struct{}{}
		s.Handled = append(s.Handled, k)
	}
	s.Value = readSDecimal(r)
	if err := r.Err(); err != nil {
		return Symbols{}, err
	}
	if s.Num != uint64(len(s.Handled)) {
		return Symbols{}, &domain.DecodeError{Offset: r.Offset(), Reason: fmt.Sprintf("count %d does not match %d keys", s.Num, len(s.Handled))}
	}
	return s, nil
}

// Convenience decoders used by the valuation pipeline.

func DecodeRate(b []byte) (fixedpoint.Decimal, error) { return As[fixedpoint.Decimal](Rate, b) }

func DecodeDecimal(b []byte) (fixedpoint.Decimal, error) { return As[fixedpoint.Decimal](Decimal, b) }

func DecodeSDecimal(b []byte) (fixedpoint.Signed, error) { return As[fixedpoint.Signed](SDecimal, b) }

func DecodeSRate(b []byte) (fixedpoint.Signed, error) { return As[fixedpoint.Signed](SRate, b) }

func DecodeAggPrice(b []byte) (Price, error) { return As[Price](AggPrice, b) }

func DecodeVaults(b []byte) (Vaults, error) { return As[Vaults](VaultsValuation, b) }

func DecodeSymbols(b []byte) (Symbols, error) { return As[Symbols](SymbolsValuation, b) }
