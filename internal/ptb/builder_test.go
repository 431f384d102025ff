package ptb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/typetag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const market = "0xb0b1"

func addr(t *testing.T, s string) []byte {
	t.Helper()
	a, err := typetag.ParseAddress(s)
	require.NoError(t, err)
	return a[:]
}

func u64le(v uint64) []byte { return binary.LittleEndian.AppendUint64(nil, v) }

func TestBuildEncodesProgrammableTransaction(t *testing.T) {
	tx := New()
	clock := tx.Clock()
	m := tx.Object(market)
	r := tx.MoveCall("0x2::m::f", nil, clock, m)
	tx.MoveCall("0x2::m::g", []string{"u64"}, r, tx.PureU64(7))
	require.NoError(t, tx.Err())

	marketID, _ := typetag.NormalizeAddress(market)
	got, err := tx.Build(map[string]ObjectRef{
		ClockID:  {ID: ClockID, Shared: true, InitialSharedVersion: 1},
		marketID: {ID: marketID, Shared: true, InitialSharedVersion: 5},
	})
	require.NoError(t, err)

	var want bytes.Buffer
	want.Write([]byte{0, 3})
	want.Write([]byte{1, 1})
	want.Write(addr(t, ClockID))
	want.Write(u64le(1))
	want.WriteByte(0)
	want.Write([]byte{1, 1})
	want.Write(addr(t, market))
	want.Write(u64le(5))
	want.WriteByte(1)
	want.Write([]byte{0, 8})
	want.Write(u64le(7))
	want.WriteByte(2)
	want.WriteByte(0)
	want.Write(addr(t, "0x2"))
	want.Write([]byte{1, 'm', 1, 'f', 0, 2, 1, 0, 0, 1, 1, 0})
	want.WriteByte(0)
	want.Write(addr(t, "0x2"))
	want.Write([]byte{1, 'm', 1, 'g', 1, byte(typetag.U64), 2, 2, 0, 0, 1, 2, 0})

	assert.Equal(t, want.Bytes(), got)
}

func TestOwnedObjectEncoding(t *testing.T) {
	tx := New()
	tx.MoveCall("0x2::m::f", nil, tx.Object("0xc0ffee"))
	id, _ := typetag.NormalizeAddress("0xc0ffee")
	digest := [32]byte{9, 9, 9}

	got, err := tx.Build(map[string]ObjectRef{id: {ID: id, Version: 42, Digest: digest}})
	require.NoError(t, err)

	var want bytes.Buffer
	want.Write([]byte{0, 1, 1, 0})
	want.Write(addr(t, "0xc0ffee"))
	want.Write(u64le(42))
	want.WriteByte(32)
	want.Write(digest[:])
	assert.Equal(t, want.Bytes(), got[:want.Len()])
}

func TestObjectsAreDeduplicated(t *testing.T) {
	tx := New()
	a := tx.ImmutableObject(market)
	b := tx.Object("0x000000000000000000000000000000000000000000000000000000000000b0b1")
	assert.Equal(t, a.Ref(), b.Ref())
	assert.Len(t, tx.ObjectIDs(), 1)
	// the later mutable request upgrades the input
	assert.True(t, tx.inputs[0].mutable)
}

func TestClockIsAlwaysImmutable(t *testing.T) {
	tx := New()
	tx.Object("0x6")
	assert.False(t, tx.inputs[0].mutable)
	assert.Equal(t, []string{ClockID}, tx.ObjectIDs())
}

func TestHandleUsedBeforeProducer(t *testing.T) {
	tx := New()
	r := tx.MoveCall("0x2::m::f", nil)
	future := Argument{tx: tx, kind: domain.ArgResult, index: 3}
	tx.MoveCall("0x2::m::g", nil, r, future)

	err := tx.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidCallGraph))

	_, err = tx.Build(nil)
	assert.ErrorIs(t, err, domain.ErrInvalidCallGraph)
}

func TestForeignHandleRejected(t *testing.T) {
	other := New()
	h := other.MoveCall("0x2::m::f", nil)

	tx := New()
	tx.MoveCall("0x2::m::f", nil)
	tx.MoveCall("0x2::m::g", nil, h)
	assert.ErrorIs(t, tx.Err(), domain.ErrInvalidCallGraph)
}

func TestMalformedTargetAndTypeArgs(t *testing.T) {
	tx := New()
	tx.MoveCall("0x2::m", nil)
	assert.ErrorIs(t, tx.Err(), domain.ErrInvalidCallGraph)

	tx = New()
	tx.MoveCall("0x2::m::f", []string{"vector<"})
	assert.ErrorIs(t, tx.Err(), domain.ErrInvalidCallGraph)
}

func TestMissingObjectRef(t *testing.T) {
	tx := New()
	tx.MoveCall("0x2::m::f", nil, tx.Object(market))
	_, err := tx.Build(map[string]ObjectRef{})
	assert.ErrorIs(t, err, domain.ErrInvalidCallGraph)
}

func TestSplitCoinsNested(t *testing.T) {
	tx := New()
	fee := tx.PureU64(1)
	coins := tx.SplitCoins(GasCoin(), fee, fee)
	tx.MoveCall("0x2::m::pay", nil, coins.Nested(1))
	require.NoError(t, tx.Err())

	got, err := tx.Build(nil)
	require.NoError(t, err)
	// SplitCoins(GasCoin, [Input(0), Input(0)])
	assert.True(t, bytes.Contains(got, []byte{2, 0, 2, 1, 0, 0, 1, 0, 0}))
	// NestedResult(0, 1)
	assert.True(t, bytes.HasSuffix(got, []byte{1, 3, 0, 0, 1, 0}))
	assert.Equal(t, "NestedResult(0,1)", coins.Nested(1).String())
}

func TestRefFromObject(t *testing.T) {
	shared, err := RefFromObject(domain.LedgerObject{ID: "0x6", Owner: domain.ObjectOwner{Kind: domain.OwnerShared, InitialSharedVersion: 1}})
	require.NoError(t, err)
	assert.True(t, shared.Shared)
	assert.Equal(t, ClockID, shared.ID)

	// base58 of 32 zero bytes
	owned, err := RefFromObject(domain.LedgerObject{ID: "0xabc", Version: 3, Digest: "11111111111111111111111111111111", Owner: domain.ObjectOwner{Kind: domain.OwnerAddress}})
	require.NoError(t, err)
	assert.False(t, owned.Shared)
	assert.Equal(t, uint64(3), owned.Version)
	assert.Equal(t, [32]byte{}, owned.Digest)

	_, err = RefFromObject(domain.LedgerObject{ID: "0xabc", Digest: "0OIl"})
	assert.ErrorIs(t, err, domain.ErrParse)
}
