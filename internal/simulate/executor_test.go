package simulate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/ledgertest"
	"github.com/alanyoungcy/sudomarket/internal/ptb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	pkg    = "0xa11ce"
	market = "0xb0b1"
	sender = "0x5e"
)

func newExecutor(ledger *ledgertest.Ledger) *Executor {
	return NewExecutor(ledger, ledger, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newLedger() *ledgertest.Ledger {
	l := ledgertest.New()
	l.PutShared(ptb.ClockID, `{}`)
	l.PutShared(market, `{}`)
	return l
}

// accumulatorResponder reports every valuate call as mutating its second
// argument, writing the call index into the buffer.
func accumulatorResponder(_ string, tx ledgertest.Transaction) (domain.InspectResult, error) {
	res := ledgertest.Success(len(tx.Calls))
	for i, c := range tx.Calls {
		switch c.Function {
		case "create_vaults_valuation", "create_symbols_valuation":
			res.Steps[i].ReturnValues = []domain.ReturnValue{{Bytes: []byte{0xc0, byte(i)}}}
		case "valuate_vault", "valuate_symbol":
			res.Steps[i].MutableOutputs = []domain.MutableOutput{
				{Arg: c.Args[0], Bytes: []byte("market")},
				{Arg: c.Args[1], Bytes: []byte{byte(i)}},
			}
		}
	}
	return res, nil
}

func TestFromEndLocatesAccumulator(t *testing.T) {
	const vaults = 3
	for _, n := range []int{0, 1, 5} {
		t.Run(fmt.Sprintf("N=%d", n), func(t *testing.T) {
			ledger := newLedger()
			ledger.Respond = accumulatorResponder

			tx := ptb.New()
			acc := tx.MoveCall(pkg+"::market::create_vaults_valuation", nil, tx.Clock(), tx.Object(market))
			for i := 0; i < vaults; i++ {
				tx.MoveCall(pkg+"::market::valuate_vault", nil, tx.Object(market), acc)
			}
			sym := tx.MoveCall(pkg+"::market::create_symbols_valuation", nil, tx.Clock(), tx.Object(market))
			for i := 0; i < n; i++ {
				tx.MoveCall(pkg+"::market::valuate_symbol", nil, tx.Object(market), sym)
			}

			res, err := newExecutor(ledger).Run(context.Background(), sender, tx)
			require.NoError(t, err)
			require.Equal(t, tx.Len(), res.Len())

			lastIndex := res.Len() - 1
			step, err := res.FromEnd(n + 1)
			require.NoError(t, err)
			assert.Equal(t, lastIndex-n-1, step.Index())

			buf, err := step.Handle(acc)
			require.NoError(t, err)
			assert.Equal(t, []byte{byte(vaults)}, buf)

			last, err := res.Last()
			require.NoError(t, err)
			buf, err = last.Handle(sym)
			require.NoError(t, err)
			if n == 0 {
				assert.Equal(t, []byte{0xc0, byte(lastIndex)}, buf)
			} else {
				assert.Equal(t, []byte{byte(lastIndex)}, buf)
			}
		})
	}
}

func TestRunReturnsAbortVerbatim(t *testing.T) {
	ledger := newLedger()
	msg := "MoveAbort(MoveLocation { module: pool, function: 3 }, 7) in command 2"
	ledger.Respond = func(string, ledgertest.Transaction) (domain.InspectResult, error) {
		return ledgertest.Abort(msg), nil
	}
	tx := ptb.New()
	tx.MoveCall(pkg+"::market::create_vaults_valuation", nil, tx.Clock(), tx.Object(market))

	_, err := newExecutor(ledger).Run(context.Background(), sender, tx)
	var simErr *domain.SimulationError
	require.True(t, errors.As(err, &simErr))
	assert.Equal(t, msg, simErr.Message)
	assert.Equal(t, domain.KindSimulationAborted, domain.KindOf(err))
}

func TestRunStepCountMismatchIsDecodeFailure(t *testing.T) {
	ledger := newLedger()
	ledger.Respond = func(string, ledgertest.Transaction) (domain.InspectResult, error) {
		return ledgertest.Success(1), nil
	}
	tx := ptb.New()
	tx.MoveCall(pkg+"::m::a", nil, tx.Clock())
	tx.MoveCall(pkg+"::m::b", nil, tx.Clock())

	_, err := newExecutor(ledger).Run(context.Background(), sender, tx)
	assert.Equal(t, domain.KindDecodeFailure, domain.KindOf(err))
}

func TestRunRejectsInvalidGraphBeforeIO(t *testing.T) {
	ledger := newLedger()
	other := ptb.New()
	foreign := other.MoveCall(pkg+"::m::a", nil)

	tx := ptb.New()
	tx.MoveCall(pkg+"::m::b", nil, foreign)

	_, err := newExecutor(ledger).Run(context.Background(), sender, tx)
	assert.True(t, errors.Is(err, domain.ErrInvalidCallGraph))
	assert.Equal(t, 0, ledger.Reads())
	assert.Empty(t, ledger.Inspected())
}

func TestRunResolvesOwnedObjects(t *testing.T) {
	ledger := newLedger()
	ledger.PutOwned("0xcafe", sender, pkg+"::market::PositionCap", `{}`)

	tx := ptb.New()
	tx.MoveCall(pkg+"::m::a", nil, tx.Object("0xcafe"))

	_, err := newExecutor(ledger).Run(context.Background(), sender, tx)
	require.NoError(t, err)
	inspected := ledger.Inspected()
	require.Len(t, inspected, 1)
	assert.False(t, inspected[0].Inputs[0].Shared)
}

func TestRunMissingObject(t *testing.T) {
	tx := ptb.New()
	tx.MoveCall(pkg+"::m::a", nil, tx.Object("0xdead"))

	_, err := newExecutor(newLedger()).Run(context.Background(), sender, tx)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStepAccessorsReportMissingOutputs(t *testing.T) {
	res := newResult([]domain.InspectStep{{}})
	_, err := res.FromEnd(1)
	assert.True(t, errors.Is(err, domain.ErrDecode))

	step, err := res.Last()
	require.NoError(t, err)
	_, err = step.Return(0)
	assert.True(t, errors.Is(err, domain.ErrDecode))
}
