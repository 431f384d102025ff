package service

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sudomarket/internal/deploy"
	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/fixedpoint"
	"github.com/alanyoungcy/sudomarket/internal/ledgertest"
	"github.com/alanyoungcy/sudomarket/internal/ptb"
	"github.com/alanyoungcy/sudomarket/internal/schema"
	"github.com/alanyoungcy/sudomarket/internal/simulate"
	"github.com/alanyoungcy/sudomarket/internal/typetag"
)

const (
	testSender = "0x5e4d"
	testOwner  = "0x0000000000000000000000000000000000000000000000000000000000000a0a"
	suiType    = "0x0000000000000000000000000000000000000000000000000000000000000002::sui::SUI"
	usdcType   = "0x00000000000000000000000000000000000000000000000000000000000000ab::usdc::USDC"
	btcType    = "0x00000000000000000000000000000000000000000000000000000000000000bc::btc::BTC"
)

type recordingRefresher struct {
	mu   sync.Mutex
	keys [][]string
	err  error
}

func (r *recordingRefresher) Prepare(_ context.Context, _ *ptb.Transaction, keys []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, keys)
	return r.err
}

type fixture struct {
	dep       *deploy.Deployment
	ids       *deploy.Identifiers
	ledger    *ledgertest.Ledger
	refresher *recordingRefresher
	vs        *ValuationService
	market    *MarketReader
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dep, ids, err := deploy.Load("../deploy/testdata", deploy.Testnet)
	require.NoError(t, err)

	ledger := ledgertest.New()
	core := dep.Core
	shared := []string{ptb.ClockID, core.Market, core.RebaseFeeModel}
	for _, v := range core.Vaults {
		shared = append(shared, v.ReservingFeeModel)
	}
	for _, s := range core.Symbols {
		shared = append(shared, s.FundingFeeModel)
	}
	for _, id := range dep.Pyth.Feeder {
		shared = append(shared, id)
	}
	for _, id := range shared {
		ledger.PutShared(id, `{}`)
	}

	f := &fixture{dep: dep, ids: ids, ledger: ledger, refresher: &recordingRefresher{}}
	sim := simulate.NewExecutor(ledger, ledger, discardLogger())
	f.vs = NewValuationService(dep, ids, ledger, f.refresher, sim, testSender, discardLogger())
	f.market = NewMarketReader(dep, ids, ledger, f.vs, discardLogger())
	return f
}

// stepFunc answers one call. A non-empty abort fails the whole simulation.
type stepFunc func(c ledgertest.Call, tx ledgertest.Transaction) (step domain.InspectStep, abort string)

// answer builds a responder that dispatches on function name. Calls
// without a handler produce an empty step.
func answer(handlers map[string]stepFunc) ledgertest.Responder {
	return func(_ string, tx ledgertest.Transaction) (domain.InspectResult, error) {
		res := ledgertest.Success(len(tx.Calls))
		for i, c := range tx.Calls {
			h, ok := handlers[c.Function]
			if !ok {
				continue
			}
			step, abort := h(c, tx)
			if abort != "" {
				return ledgertest.Abort(abort), nil
			}
			res.Steps[i] = step
		}
		return res, nil
	}
}

func returns(b []byte) stepFunc {
	return func(ledgertest.Call, ledgertest.Transaction) (domain.InspectStep, string) {
		return domain.InspectStep{ReturnValues: []domain.ReturnValue{{Bytes: b}}}, ""
	}
}

// mutates reports the accumulator argument at index acc as holding b.
func mutates(acc int, b []byte) stepFunc {
	return func(c ledgertest.Call, _ ledgertest.Transaction) (domain.InspectStep, string) {
		return domain.InspectStep{MutableOutputs: []domain.MutableOutput{
			{Arg: c.Args[0], Bytes: []byte("market")},
			{Arg: c.Args[acc], Bytes: b},
		}}, ""
	}
}

func units(n uint64) fixedpoint.Decimal { return fixedpoint.FromUnits(n) }

func canonical(coinType string) string { return typetag.MustParse(coinType).Canonical() }

func vaultsSnapshot(t *testing.T) []byte {
	t.Helper()
	b, err := schema.EncodeVaults(schema.Vaults{
		Timestamp: 1_700_000_000,
		Num:       2,
		Entries: []schema.VaultEntry{
			{Key: canonical(suiType), Price: schema.Price{Price: units(2), Precision: 1_000_000_000}, Value: units(600_000)},
			{Key: canonical(usdcType), Price: schema.Price{Price: units(1), Precision: 1_000_000}, Value: units(400_000)},
		},
		TotalWeight: units(2),
		Value:       units(1_000_000),
	})
	require.NoError(t, err)
	return b
}

func symbolsSnapshot(t *testing.T) []byte {
	t.Helper()
	b, err := schema.EncodeSymbols(schema.Symbols{
		Timestamp: 1_700_000_000,
		Num:       3,
		LPSupply:  units(1_000_000),
		Handled:   []string{"long_btc", "long_sui", "short_sui"},
		Value:     fixedpoint.NewSigned(false, units(50_000)),
	})
	require.NoError(t, err)
	return b
}

// valuationHandlers answers the vaults and symbols accumulator chains.
func valuationHandlers(t *testing.T) map[string]stepFunc {
	vaults, symbols := vaultsSnapshot(t), symbolsSnapshot(t)
	return map[string]stepFunc{
		"create_vaults_valuation":  returns([]byte{0}),
		"valuate_vault_v1_1":       mutates(3, vaults),
		"create_symbols_valuation": returns([]byte{0}),
		"valuate_symbol_v1_1":      mutates(3, symbols),
	}
}

func pure(tx ledgertest.Transaction, arg domain.ArgRef) []byte {
	return tx.Inputs[arg.Index].Pure
}

func pureU64(tx ledgertest.Transaction, arg domain.ArgRef) uint64 {
	return binary.LittleEndian.Uint64(pure(tx, arg))
}

func objectArg(tx ledgertest.Transaction, arg domain.ArgRef) string {
	return tx.Inputs[arg.Index].ObjectID
}

func moveStruct(typ string, fields string) string {
	return fmt.Sprintf(`{"type":%q,"fields":%s}`, typ, fields)
}

func decimalJSON(raw string) string {
	return moveStruct("0xa11ce::decimal::Decimal", fmt.Sprintf(`{"value":%q}`, raw))
}

func signedJSON(positive bool, raw string) string {
	return moveStruct("0xa11ce::sdecimal::SDecimal", fmt.Sprintf(`{"is_positive":%t,"value":%s}`, positive, decimalJSON(raw)))
}
