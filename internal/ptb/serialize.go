package ptb

import (
	"fmt"

	"github.com/alanyoungcy/sudomarket/internal/bcs"
	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/typetag"
	"github.com/mr-tron/base58"
)

// ObjectRef is the resolved on-ledger identity of an object input.
// Shared objects need InitialSharedVersion; owned and immutable objects
// need Version and Digest.
type ObjectRef struct {
	ID                   string
	Shared               bool
	InitialSharedVersion uint64
	Version              uint64
	Digest               [32]byte
}

// RefFromObject derives the input reference of a fetched object.
func RefFromObject(obj domain.LedgerObject) (ObjectRef, error) {
	id, err := typetag.NormalizeAddress(obj.ID)
	if err != nil {
		return ObjectRef{}, err
	}
	if obj.Owner.Kind == domain.OwnerShared {
		return ObjectRef{ID: id, Shared: true, InitialSharedVersion: obj.Owner.InitialSharedVersion}, nil
	}
	raw, err := base58.Decode(obj.Digest)
	if err != nil || len(raw) != 32 {
		return ObjectRef{}, &domain.ParseError{Path: "digest", Reason: fmt.Sprintf("object %s digest %q is not a 32-byte base58 value", obj.ID, obj.Digest)}
	}
	ref := ObjectRef{ID: id, Version: obj.Version}
	copy(ref.Digest[:], raw)
	return ref, nil
}

const (
	callArgPure   = 0
	callArgObject = 1

	objectArgImmOrOwned = 0
	objectArgShared     = 1

	transactionKindProgrammable = 0
)

// Build serialises the transaction as a BCS TransactionKind. refs must
// hold an entry for every id returned by ObjectIDs.
func (tx *Transaction) Build(refs map[string]ObjectRef) ([]byte, error) {
	if tx.err != nil {
		return nil, tx.err
	}
	w := bcs.NewWriter().U8(transactionKindProgrammable).ULEB128(len(tx.inputs))
	for i, in := range tx.inputs {
		if !in.isObject() {
			w.U8(callArgPure).VecBytes(in.pure)
			continue
		}
		ref, ok := refs[in.objectID]
		if !ok {
			return nil, fmt.Errorf("%w: input %d: object %s has no resolved reference", domain.ErrInvalidCallGraph, i, in.objectID)
		}
		id, err := typetag.ParseAddress(in.objectID)
		if err != nil {
			return nil, fmt.Errorf("%w: input %d: %v", domain.ErrInvalidCallGraph, i, err)
		}
		w.U8(callArgObject)
		if ref.Shared {
			w.U8(objectArgShared).Address(id).U64(ref.InitialSharedVersion).Bool(in.mutable)
		} else {
			w.U8(objectArgImmOrOwned).Address(id).U64(ref.Version).VecBytes(ref.Digest[:])
		}
	}

	w.ULEB128(len(tx.commands))
	for _, cmd := range tx.commands {
		w.U8(uint8(cmd.kind))
		switch cmd.kind {
		case cmdMoveCall:
			w.Address(cmd.pkg).Str(cmd.module).Str(cmd.function).ULEB128(len(cmd.typeArgs))
			for _, t := range cmd.typeArgs {
				t.Encode(w)
			}
			w.ULEB128(len(cmd.args))
			for _, a := range cmd.args {
				writeArg(w, a)
			}
		case cmdSplitCoins:
			writeArg(w, cmd.args[0])
			w.ULEB128(len(cmd.args) - 1)
			for _, a := range cmd.args[1:] {
				writeArg(w, a)
			}
		}
	}
	return w.Result()
}

func writeArg(w *bcs.Writer, a Argument) {
	w.U8(uint8(a.kind))
	switch a.kind {
	case domain.ArgInput, domain.ArgResult:
		w.U16(a.index)
	case domain.ArgNestedResult:
		w.U16(a.index).U16(a.nested)
	}
}
