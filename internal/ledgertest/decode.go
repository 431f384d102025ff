package ledgertest

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/sudomarket/internal/bcs"
	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/ptb"
	"github.com/alanyoungcy/sudomarket/internal/typetag"
)

// Input is a decoded transaction input.
type Input struct {
	Pure     []byte
	ObjectID string
	Shared   bool
	Mutable  bool
}

// Call is a decoded command. SplitCoins is reported with Function
// "SplitCoins" and empty Module.
type Call struct {
	Package  string
	Module   string
	Function string
	TypeArgs []string
	Args     []domain.ArgRef
}

// Target returns "module::function".
func (c Call) Target() string { return c.Module + "::" + c.Function }

// Transaction is a decoded programmable transaction.
type Transaction struct {
	Inputs []Input
	Calls  []Call
}

// Index returns the position of the first call to module::function, or -1.
func (t Transaction) Index(target string) int {
	for i, c := range t.Calls {
		if c.Target() == target {
			return i
		}
	}
	return -1
}

// Count returns how many calls go to module::function.
func (t Transaction) Count(target string) int {
	n := 0
	for _, c := range t.Calls {
		if c.Target() == target {
			n++
		}
	}
	return n
}

// Decode parses a BCS TransactionKind::ProgrammableTransaction.
func Decode(b []byte) (Transaction, error) {
	r := bcs.NewReader(b)
	if kind := r.U8(); kind != 0 {
		return Transaction{}, fmt.Errorf("ledgertest: transaction kind %d", kind)
	}
	var tx Transaction
	for i, n := 0, r.ULEB128(); i < n && r.Err() == nil; i++ {
		var in Input
		switch r.U8() {
		case 0:
			in.Pure = r.VecBytes()
		case 1:
			switch r.U8() {
			case 0:
				a := r.Address()
				in.ObjectID = typetag.FormatAddress(a)
				r.U64()
				r.VecBytes()
			case 1:
				a := r.Address()
				in.ObjectID = typetag.FormatAddress(a)
				in.Shared = true
				r.U64()
				in.Mutable = r.Bool()
			default:
				return Transaction{}, fmt.Errorf("ledgertest: object arg kind")
			}
		default:
			return Transaction{}, fmt.Errorf("ledgertest: call arg kind")
		}
		tx.Inputs = append(tx.Inputs, in)
	}
	for i, n := 0, r.ULEB128(); i < n && r.Err() == nil; i++ {
		var c Call
		switch r.U8() {
		case 0:
			a := r.Address()
			c.Package = typetag.FormatAddress(a)
			c.Module = r.Str()
			c.Function = r.Str()
			for j, m := 0, r.ULEB128(); j < m && r.Err() == nil; j++ {
				c.TypeArgs = append(c.TypeArgs, readTag(r))
			}
			for j, m := 0, r.ULEB128(); j < m && r.Err() == nil; j++ {
				c.Args = append(c.Args, readArg(r))
			}
		case 2:
			c.Function = "SplitCoins"
			c.Args = append(c.Args, readArg(r))
			for j, m := 0, r.ULEB128(); j < m && r.Err() == nil; j++ {
				c.Args = append(c.Args, readArg(r))
			}
		default:
			return Transaction{}, fmt.Errorf("ledgertest: unsupported command")
		}
		tx.Calls = append(tx.Calls, c)
	}
	if err := r.Done(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

func readArg(r *bcs.Reader) domain.ArgRef {
	a := domain.ArgRef{Kind: domain.ArgKind(r.U8())}
	switch a.Kind {
	case domain.ArgInput, domain.ArgResult:
		a.Index = r.U16()
	case domain.ArgNestedResult:
		a.Index = r.U16()
		a.Nested = r.U16()
	}
	return a
}

func readTag(r *bcs.Reader) string {
	k := typetag.Kind(r.U8())
	switch k {
	case typetag.Vector:
		return "vector<" + readTag(r) + ">"
	case typetag.Struct:
		a := r.Address()
		s := typetag.FormatAddress(a) + "::" + r.Str() + "::" + r.Str()
		n := r.ULEB128()
		if n == 0 {
			return s
		}
		params := make([]string, 0, n)
		for i := 0; i < n && r.Err() == nil; i++ {
			params = append(params, readTag(r))
		}
		return s + "<" + strings.Join(params, ", ") + ">"
	}
	for name, kind := range map[string]typetag.Kind{
		"bool": typetag.Bool, "u8": typetag.U8, "u16": typetag.U16, "u32": typetag.U32,
		"u64": typetag.U64, "u128": typetag.U128, "u256": typetag.U256,
		"address": typetag.Address, "signer": typetag.Signer,
	} {
		if kind == k {
			return name
		}
	}
	return "?"
}

// Compile builds tx treating every object input as shared and decodes the
// result.
func Compile(tx *ptb.Transaction) (Transaction, error) {
	refs := make(map[string]ptb.ObjectRef)
	for _, id := range tx.ObjectIDs() {
		refs[id] = ptb.ObjectRef{ID: id, Shared: true, InitialSharedVersion: 1}
	}
	b, err := tx.Build(refs)
	if err != nil {
		return Transaction{}, err
	}
	return Decode(b)
}
