package schema

import (
	"github.com/alanyoungcy/sudomarket/internal/bcs"
	"github.com/alanyoungcy/sudomarket/internal/fixedpoint"
)

// The encoders below produce the ledger's wire layout. They back test
// fixtures and fake ledgers.

func EncodeRate(d fixedpoint.Decimal) ([]byte, error) {
	return bcs.NewWriter().U128(d.Raw()).Result()
}

func EncodeDecimal(d fixedpoint.Decimal) []byte {
	b, _ := bcs.NewWriter().U256(d.Raw()).Result()
	return b
}

func EncodeSDecimal(s fixedpoint.Signed) []byte {
	b, _ := bcs.NewWriter().Bool(s.Positive).U256(s.Magnitude.Raw()).Result()
	return b
}

func EncodeSRate(s fixedpoint.Signed) ([]byte, error) {
	return bcs.NewWriter().Bool(s.Positive).U128(s.Magnitude.Raw()).Result()
}

func writePrice(w *bcs.Writer, p Price) {
	w.U256(p.Price.Raw()).U64(p.Precision)
}

func EncodeAggPrice(p Price) []byte {
	w := bcs.NewWriter()
	writePrice(w, p)
	b, _ := w.Result()
	return b
}

func EncodeVaults(v Vaults) ([]byte, error) {
	w := bcs.NewWriter().U64(v.Timestamp).U64(v.Num).ULEB128(len(v.Entries))
	for _, e := range v.Entries {
		w.Str(e.Key)
		writePrice(w, e.Price)
		w.U256(e.Value.Raw())
	}
	w.U256(v.TotalWeight.Raw()).U256(v.Value.Raw())
	return w.Result()
}

func EncodeSymbols(s Symbols) ([]byte, error) {
	w := bcs.NewWriter().U64(s.Timestamp).U64(s.Num).U256(s.LPSupply.Raw()).ULEB128(len(s.Handled))
	for _, k := range s.Handled {
		w.Str(k)
	}
	w.Bool(s.Value.Positive).U256(s.Value.Magnitude.Raw())
	return w.Result()
}
