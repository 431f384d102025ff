package pyth

import (
	"context"
	"errors"
	"testing"

	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/ledgertest"
	"github.com/alanyoungcy/sudomarket/internal/ptb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testContracts = Contracts{
	PythPackage:     "0xf001",
	PythState:       "0xf002",
	WormholePackage: "0xf003",
	WormholeState:   "0xf004",
}

func TestInjectBuildsUpdateChain(t *testing.T) {
	ledger := ledgertest.New()
	ledger.PutShared(testContracts.PythState, `{"base_update_fee":"7"}`)
	in := NewInjector(testContracts, ledger, 0)

	tx := ptb.New()
	update := accumulatorUpdate(nil, []byte{1, 2, 3})
	require.NoError(t, in.Inject(context.Background(), tx, [][]byte{update}, []string{"0x1001", "0x1002"}))
	assert.Equal(t, 4+2, tx.Len())

	decoded, err := ledgertest.Compile(tx)
	require.NoError(t, err)
	calls := decoded.Calls
	assert.Equal(t, "vaa::parse_and_verify", calls[0].Target())
	assert.Equal(t, "pyth::create_authenticated_price_infos_using_accumulator", calls[1].Target())
	assert.Equal(t, "SplitCoins", calls[2].Function)
	assert.Equal(t, 2, decoded.Count("pyth::update_single_price_feed"))
	assert.Equal(t, "hot_potato_vector::destroy", calls[5].Target())
	require.Len(t, calls[5].TypeArgs, 1)
	assert.Contains(t, calls[5].TypeArgs[0], "::price_info::PriceInfo")

	// Each update consumes the previous potato.
	assert.Equal(t, domain.ArgRef{Kind: domain.ArgResult, Index: 1}, calls[3].Args[1])
	assert.Equal(t, domain.ArgRef{Kind: domain.ArgResult, Index: 3}, calls[4].Args[1])
	assert.Equal(t, domain.ArgRef{Kind: domain.ArgNestedResult, Index: 2, Nested: 1}, calls[4].Args[3])
	assert.Equal(t, domain.ArgRef{Kind: domain.ArgResult, Index: 4}, calls[5].Args[0])

	// The split amount is the fee read from the state object.
	amount := decoded.Inputs[calls[2].Args[1].Index].Pure
	assert.Equal(t, []byte{7, 0, 0, 0, 0, 0, 0, 0}, amount)
}

func TestInjectConfiguredFeeSkipsRead(t *testing.T) {
	ledger := ledgertest.New()
	in := NewInjector(testContracts, ledger, 1)

	tx := ptb.New()
	require.NoError(t, in.Inject(context.Background(), tx, [][]byte{accumulatorUpdate(nil, []byte{1})}, []string{"0x1001"}))
	assert.Equal(t, 0, ledger.Reads())
	assert.Equal(t, 5, tx.Len())
}

func TestInjectRequiresEmptyTransaction(t *testing.T) {
	in := NewInjector(testContracts, ledgertest.New(), 1)
	tx := ptb.New()
	tx.MoveCall("0x1::m::f", nil)

	err := in.Inject(context.Background(), tx, [][]byte{accumulatorUpdate(nil, []byte{1})}, []string{"0x1001"})
	assert.True(t, errors.Is(err, domain.ErrInvalidCallGraph))
}

func TestInjectRequiresOneUpdate(t *testing.T) {
	in := NewInjector(testContracts, ledgertest.New(), 1)
	err := in.Inject(context.Background(), ptb.New(), nil, []string{"0x1001"})
	assert.True(t, errors.Is(err, domain.ErrInvalidCallGraph))
}

func TestInjectNoFeedersIsNoop(t *testing.T) {
	in := NewInjector(testContracts, ledgertest.New(), 1)
	tx := ptb.New()
	require.NoError(t, in.Inject(context.Background(), tx, [][]byte{accumulatorUpdate(nil, []byte{1})}, nil))
	assert.Equal(t, 0, tx.Len())
}

func TestUpdateFeeMissingField(t *testing.T) {
	ledger := ledgertest.New()
	ledger.PutShared(testContracts.PythState, `{}`)
	_, err := NewInjector(testContracts, ledger, 0).UpdateFee(context.Background())
	assert.True(t, errors.Is(err, domain.ErrParse))
}
