// Package ptb assembles programmable transactions: an ordered list of calls
// whose arguments may be inputs or the results of earlier calls. The builder
// is purely structural and performs no I/O.
package ptb

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/sudomarket/internal/bcs"
	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/typetag"
	"github.com/holiman/uint256"
)

// ClockID is the ledger's shared clock object.
const ClockID = "0x0000000000000000000000000000000000000000000000000000000000000006"

// Argument refers to a value inside one Transaction. Arguments are only
// valid in the Transaction that produced them.
type Argument struct {
	tx     *Transaction
	kind   domain.ArgKind
	index  uint16
	nested uint16
}

// GasCoin is the transaction's gas payment coin.
func GasCoin() Argument { return Argument{kind: domain.ArgGasCoin} }

// Ref strips the owning transaction for comparison with ledger outputs.
func (a Argument) Ref() domain.ArgRef {
	return domain.ArgRef{Kind: a.kind, Index: a.index, Nested: a.nested}
}

// Nested selects element i of a multi-value result.
func (a Argument) Nested(i uint16) Argument {
	if a.kind != domain.ArgResult {
		return Argument{tx: a.tx, kind: domain.ArgNestedResult, index: 0xffff, nested: i}
	}
	return Argument{tx: a.tx, kind: domain.ArgNestedResult, index: a.index, nested: i}
}

func (a Argument) String() string {
	switch a.kind {
	case domain.ArgGasCoin:
		return "GasCoin"
	case domain.ArgInput:
		return fmt.Sprintf("Input(%d)", a.index)
	case domain.ArgResult:
		return fmt.Sprintf("Result(%d)", a.index)
	default:
		return fmt.Sprintf("NestedResult(%d,%d)", a.index, a.nested)
	}
}

type input struct {
	pure     []byte
	objectID string
	mutable  bool
}

func (in input) isObject() bool { return in.objectID != "" }

type commandKind uint8

const (
	cmdMoveCall   commandKind = 0
	cmdSplitCoins commandKind = 2
)

type command struct {
	kind     commandKind
	pkg      [32]byte
	module   string
	function string
	typeArgs []typetag.Tag
	args     []Argument
}

// Transaction is a call graph under construction. The first contract
// violation is recorded and returned by Build and Err; later calls still
// return Arguments but the transaction is unusable.
type Transaction struct {
	inputs   []input
	objIndex map[string]uint16
	commands []command
	err      error
}

func New() *Transaction {
	return &Transaction{objIndex: make(map[string]uint16)}
}

// Err returns the first contract violation, if any.
func (tx *Transaction) Err() error { return tx.err }

// Len returns the number of calls.
func (tx *Transaction) Len() int { return len(tx.commands) }

func (tx *Transaction) fail(format string, args ...any) {
	if tx.err == nil {
		tx.err = fmt.Errorf("%w: "+format, append([]any{domain.ErrInvalidCallGraph}, args...)...)
	}
}

func (tx *Transaction) addInput(in input) Argument {
	if len(tx.inputs) >= 1<<16-1 {
		tx.fail("too many inputs")
		return Argument{tx: tx, kind: domain.ArgInput}
	}
	tx.inputs = append(tx.inputs, in)
	return Argument{tx: tx, kind: domain.ArgInput, index: uint16(len(tx.inputs) - 1)}
}

// Pure adds an already BCS-encoded pure value.
func (tx *Transaction) Pure(b []byte) Argument {
	return tx.addInput(input{pure: append([]byte(nil), b...)})
}

func (tx *Transaction) PureU8(v uint8) Argument {
	return tx.Pure([]byte{v})
}

func (tx *Transaction) PureU64(v uint64) Argument {
	b, _ := bcs.NewWriter().U64(v).Result()
	return tx.Pure(b)
}

func (tx *Transaction) PureBool(v bool) Argument {
	b, _ := bcs.NewWriter().Bool(v).Result()
	return tx.Pure(b)
}

func (tx *Transaction) PureU256(v *uint256.Int) Argument {
	b, _ := bcs.NewWriter().U256(v).Result()
	return tx.Pure(b)
}

// PureU128 adds a u128; values wider than 128 bits are a contract violation.
func (tx *Transaction) PureU128(v *uint256.Int) Argument {
	b, err := bcs.NewWriter().U128(v).Result()
	if err != nil {
		tx.fail("%v", err)
	}
	return tx.Pure(b)
}

func (tx *Transaction) PureAddress(addr string) Argument {
	a, err := typetag.ParseAddress(addr)
	if err != nil {
		tx.fail("pure address: %v", err)
	}
	return tx.Pure(a[:])
}

// PureBytes adds a vector<u8>.
func (tx *Transaction) PureBytes(v []byte) Argument {
	b, _ := bcs.NewWriter().VecBytes(v).Result()
	return tx.Pure(b)
}

// Object adds an object input taken mutably when shared. Objects are
// de-duplicated by id; the strongest requested access wins.
func (tx *Transaction) Object(id string) Argument { return tx.object(id, true) }

// ImmutableObject adds an object input taken by immutable reference when
// shared.
func (tx *Transaction) ImmutableObject(id string) Argument { return tx.object(id, false) }

// Clock adds the shared clock, which may only be taken immutably.
func (tx *Transaction) Clock() Argument { return tx.object(ClockID, false) }

func (tx *Transaction) object(id string, mutable bool) Argument {
	norm, err := typetag.NormalizeAddress(id)
	if err != nil {
		tx.fail("object %q: %v", id, err)
		return Argument{tx: tx, kind: domain.ArgInput}
	}
	if norm == ClockID {
		mutable = false
	}
	if idx, ok := tx.objIndex[norm]; ok {
		if mutable {
			tx.inputs[idx].mutable = true
		}
		return Argument{tx: tx, kind: domain.ArgInput, index: idx}
	}
	arg := tx.addInput(input{objectID: norm, mutable: mutable})
	tx.objIndex[norm] = arg.index
	return arg
}

// ObjectIDs lists object inputs in input order.
func (tx *Transaction) ObjectIDs() []string {
	ids := make([]string, 0, len(tx.objIndex))
	for _, in := range tx.inputs {
		if in.isObject() {
			ids = append(ids, in.objectID)
		}
	}
	return ids
}

// check validates that arg belongs to tx and refers to an input that exists
// or to a call that precedes the call being added.
func (tx *Transaction) check(arg Argument, at int) {
	if arg.kind == domain.ArgGasCoin {
		return
	}
	if arg.tx != tx {
		tx.fail("command %d: argument %s belongs to another transaction", at, arg)
		return
	}
	switch arg.kind {
	case domain.ArgInput:
		if int(arg.index) >= len(tx.inputs) {
			tx.fail("command %d: dangling %s", at, arg)
		}
	case domain.ArgResult, domain.ArgNestedResult:
		if int(arg.index) >= at {
			tx.fail("command %d: %s used before its producing call", at, arg)
		}
	}
}

// MoveCall appends a call to target ("package::module::function") and
// returns a handle to its result.
func (tx *Transaction) MoveCall(target string, typeArgs []string, args ...Argument) Argument {
	at := len(tx.commands)
	cmd := command{kind: cmdMoveCall, args: args}

	parts := strings.Split(target, "::")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		tx.fail("command %d: malformed target %q", at, target)
	} else if pkg, err := typetag.ParseAddress(parts[0]); err != nil {
		tx.fail("command %d: target %q: %v", at, target, err)
	} else {
		cmd.pkg, cmd.module, cmd.function = pkg, parts[1], parts[2]
	}
	for _, s := range typeArgs {
		t, err := typetag.Parse(s)
		if err != nil {
			tx.fail("command %d: type argument: %v", at, err)
			continue
		}
		cmd.typeArgs = append(cmd.typeArgs, t)
	}
	for _, a := range args {
		tx.check(a, at)
	}
	return tx.push(cmd)
}

// SplitCoins splits amounts off coin. Element i of the result is the i-th
// new coin.
func (tx *Transaction) SplitCoins(coin Argument, amounts ...Argument) Argument {
	at := len(tx.commands)
	tx.check(coin, at)
	for _, a := range amounts {
		tx.check(a, at)
	}
	return tx.push(command{kind: cmdSplitCoins, args: append([]Argument{coin}, amounts...)})
}

func (tx *Transaction) push(cmd command) Argument {
	if len(tx.commands) >= 1<<16-1 {
		tx.fail("too many commands")
	}
	tx.commands = append(tx.commands, cmd)
	return Argument{tx: tx, kind: domain.ArgResult, index: uint16(len(tx.commands) - 1)}
}
