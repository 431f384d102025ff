package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/sudomarket/internal/deploy"
	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/fixedpoint"
	"github.com/alanyoungcy/sudomarket/internal/ptb"
	"github.com/alanyoungcy/sudomarket/internal/schema"
	"github.com/alanyoungcy/sudomarket/internal/simulate"
)

// fundingWindow is the period the funding and reserving curves are
// evaluated over, in seconds.
const fundingWindow = 8 * 60 * 60

// Simulator runs a call graph speculatively.
type Simulator interface {
	Run(ctx context.Context, sender string, tx *ptb.Transaction) (*simulate.Result, error)
}

// PriceRefresher prepends price updates for stale feeds to an empty
// transaction.
type PriceRefresher interface {
	Prepare(ctx context.Context, tx *ptb.Transaction, keys []string) error
}

// ValuationService replicates the market's valuation and fee formulas by
// composing ledger calls and simulating them.
type ValuationService struct {
	dep    *deploy.Deployment
	ids    *deploy.Identifiers
	reader domain.LedgerReader
	prices PriceRefresher
	sim    Simulator
	sender string
	now    func() time.Time
	logger *slog.Logger
}

// NewValuationService creates a ValuationService. sender is the address
// simulations run as when no position owner is involved.
func NewValuationService(
	dep *deploy.Deployment,
	ids *deploy.Identifiers,
	reader domain.LedgerReader,
	prices PriceRefresher,
	sim Simulator,
	sender string,
	logger *slog.Logger,
) *ValuationService {
	return &ValuationService{
		dep:    dep,
		ids:    ids,
		reader: reader,
		prices: prices,
		sim:    sim,
		sender: sender,
		now:    time.Now,
		logger: logger.With(slog.String("component", "valuation")),
	}
}

func (s *ValuationService) unixNow() uint64 { return uint64(s.now().Unix()) }

func (s *ValuationService) feeder(token string) (string, error) {
	id, ok := s.ids.Feeder(token)
	if !ok {
		return "", domain.Unresolved("feeder", token)
	}
	return id, nil
}

// newTx starts a transaction whose first calls refresh the feeds of keys.
func (s *ValuationService) newTx(ctx context.Context, keys []string) (*ptb.Transaction, error) {
	tx := ptb.New()
	if err := s.prices.Prepare(ctx, tx, keys); err != nil {
		return nil, err
	}
	return tx, nil
}

// valuateVaults appends the vaults accumulator and one call per vault.
func (s *ValuationService) valuateVaults(tx *ptb.Transaction) (ptb.Argument, error) {
	core := s.dep.Core
	acc := tx.MoveCall(s.dep.Target("market", "create_vaults_valuation"),
		[]string{s.dep.SLPType()},
		tx.Clock(), tx.Object(core.Market),
	)
	for _, token := range s.dep.VaultTokens() {
		coin, err := s.dep.CoinType(token)
		if err != nil {
			return ptb.Argument{}, err
		}
		feeder, err := s.feeder(token)
		if err != nil {
			return ptb.Argument{}, err
		}
		tx.MoveCall(s.dep.Target("market", "valuate_vault_v1_1"),
			[]string{s.dep.SLPType(), coin},
			tx.Object(core.Market),
			tx.Object(core.Vaults[token].ReservingFeeModel),
			tx.Object(feeder),
			acc,
		)
	}
	return acc, nil
}

// valuateSymbols appends the symbols accumulator and one call per symbol.
// It returns the handle and the number of per-symbol calls.
func (s *ValuationService) valuateSymbols(tx *ptb.Transaction) (ptb.Argument, int, error) {
	core := s.dep.Core
	acc := tx.MoveCall(s.dep.Target("market", "create_symbols_valuation"),
		[]string{s.dep.SLPType()},
		tx.Clock(), tx.Object(core.Market),
	)
	keys := s.dep.SymbolKeys()
	for _, key := range keys {
		dir, token, err := deploy.ParseSymbolKey(key)
		if err != nil {
			return ptb.Argument{}, 0, err
		}
		coin, err := s.dep.CoinType(token)
		if err != nil {
			return ptb.Argument{}, 0, err
		}
		feeder, err := s.feeder(token)
		if err != nil {
			return ptb.Argument{}, 0, err
		}
		tx.MoveCall(s.dep.Target("market", "valuate_symbol_v1_1"),
			[]string{s.dep.SLPType(), coin, s.dep.DirectionType(dir)},
			tx.Object(core.Market),
			tx.Object(core.Symbols[key].FundingFeeModel),
			tx.Object(feeder),
			acc,
		)
	}
	return acc, len(keys), nil
}

func (s *ValuationService) toVaultValuations(v schema.Vaults) []domain.VaultValuation {
	out := make([]domain.VaultValuation, 0, len(v.Entries))
	for _, e := range v.Entries {
		token, err := s.ids.AssetKeyByCoinType(e.Key)
		if err != nil {
			token = e.Key
		}
		out = append(out, domain.VaultValuation{
			Token: token,
			Price: e.Price.Display(),
			Value: fixedpoint.PositiveOf(e.Value),
		})
	}
	return out
}

// MarketValuation values every vault and every symbol in one simulation.
// The total is the vaults value plus the signed symbols value.
func (s *ValuationService) MarketValuation(ctx context.Context) (domain.MarketValuation, error) {
	tx, err := s.newTx(ctx, s.dep.FeederTokens())
	if err != nil {
		return domain.MarketValuation{}, fmt.Errorf("valuation: market: %w", err)
	}
	vaultsAcc, err := s.valuateVaults(tx)
	if err != nil {
		return domain.MarketValuation{}, fmt.Errorf("valuation: market: %w", err)
	}
	symbolsAcc, nSymbols, err := s.valuateSymbols(tx)
	if err != nil {
		return domain.MarketValuation{}, fmt.Errorf("valuation: market: %w", err)
	}

	res, err := s.sim.Run(ctx, s.sender, tx)
	if err != nil {
		return domain.MarketValuation{}, fmt.Errorf("valuation: market: %w", err)
	}
	// The symbols accumulator and its per-symbol calls follow the last
	// vault call.
	vaults, err := decodeHandle(res, nSymbols+1, vaultsAcc, schema.DecodeVaults)
	if err != nil {
		return domain.MarketValuation{}, fmt.Errorf("valuation: market: %w", err)
	}
	symbols, err := decodeHandle(res, 0, symbolsAcc, schema.DecodeSymbols)
	if err != nil {
		return domain.MarketValuation{}, fmt.Errorf("valuation: market: %w", err)
	}

	vaultsValue := fixedpoint.PositiveOf(vaults.Value)
	total, err := vaultsValue.Add(symbols.Value)
	if err != nil {
		return domain.MarketValuation{}, fmt.Errorf("valuation: market: %w", err)
	}
	return domain.MarketValuation{
		Timestamp:    time.Unix(int64(vaults.Timestamp), 0).UTC(),
		Vaults:       s.toVaultValuations(vaults),
		TotalWeight:  vaults.TotalWeight,
		VaultsValue:  vaultsValue,
		SymbolsValue: symbols.Value,
		LPSupply:     symbols.LPSupply,
		Total:        total,
	}, nil
}

// VaultsValuation values the vaults only. Only vault price feeds are
// refreshed.
func (s *ValuationService) VaultsValuation(ctx context.Context) (domain.MarketValuation, error) {
	vaults, err := s.vaultsSnapshot(ctx)
	if err != nil {
		return domain.MarketValuation{}, fmt.Errorf("valuation: vaults: %w", err)
	}
	value := fixedpoint.PositiveOf(vaults.Value)
	return domain.MarketValuation{
		Timestamp:    time.Unix(int64(vaults.Timestamp), 0).UTC(),
		Vaults:       s.toVaultValuations(vaults),
		TotalWeight:  vaults.TotalWeight,
		VaultsValue:  value,
		SymbolsValue: fixedpoint.PositiveOf(fixedpoint.Zero()),
		Total:        value,
	}, nil
}

func (s *ValuationService) vaultsSnapshot(ctx context.Context) (schema.Vaults, error) {
	tx, err := s.newTx(ctx, s.dep.VaultTokens())
	if err != nil {
		return schema.Vaults{}, err
	}
	acc, err := s.valuateVaults(tx)
	if err != nil {
		return schema.Vaults{}, err
	}
	res, err := s.sim.Run(ctx, s.sender, tx)
	if err != nil {
		return schema.Vaults{}, err
	}
	return decodeHandle(res, 0, acc, schema.DecodeVaults)
}

// FundingFeeRate evaluates the funding curve of a symbol at the current
// price over the 8-hour window.
func (s *ValuationService) FundingFeeRate(ctx context.Context, indexToken string, dir domain.Direction) (fixedpoint.Signed, error) {
	sym, err := s.dep.Symbol(dir, indexToken)
	if err != nil {
		return fixedpoint.Signed{}, fmt.Errorf("valuation: funding rate: %w", err)
	}
	coin, err := s.dep.CoinType(indexToken)
	if err != nil {
		return fixedpoint.Signed{}, fmt.Errorf("valuation: funding rate: %w", err)
	}
	feeder, err := s.feeder(indexToken)
	if err != nil {
		return fixedpoint.Signed{}, fmt.Errorf("valuation: funding rate: %w", err)
	}
	tx, err := s.newTx(ctx, []string{indexToken})
	if err != nil {
		return fixedpoint.Signed{}, fmt.Errorf("valuation: funding rate: %w", err)
	}

	market := tx.Object(s.dep.Core.Market)
	symbol := tx.MoveCall(s.dep.Target("market", "symbol"),
		[]string{s.dep.SLPType(), coin, s.dep.DirectionType(dir)}, market)
	priceConfig := tx.MoveCall(s.dep.Target("pool", "symbol_price_config"), nil, symbol)
	price := tx.MoveCall(s.dep.Target("agg_price", "parse_pyth_feeder_v1_1"), nil,
		priceConfig, tx.Object(feeder), tx.PureU64(s.unixNow()))
	deltaSize := tx.MoveCall(s.dep.Target("pool", "symbol_delta_size"), nil,
		symbol, price, tx.PureBool(dir.IsLong()))
	lpSupply := tx.MoveCall(s.dep.Target("market", "lp_supply_amount"),
		[]string{s.dep.SLPType()}, market)
	pnlPerLP := tx.MoveCall(s.dep.Target("pool", "symbol_pnl_per_lp"), nil,
		symbol, deltaSize, lpSupply)
	tx.MoveCall(s.dep.Target("model", "compute_funding_fee_rate"), nil,
		tx.Object(sym.FundingFeeModel), pnlPerLP, tx.PureU64(fundingWindow))

	rate, err := lastReturn(ctx, s.sim, s.sender, tx, schema.DecodeSRate)
	if err != nil {
		return fixedpoint.Signed{}, fmt.Errorf("valuation: funding rate: %w", err)
	}
	return rate, nil
}

// Utilization returns (reserved+delta) / (liquidity+reserved+unrealised
// reserving fee+delta). An empty vault has zero utilization.
func Utilization(v domain.VaultInfo, delta uint64) (fixedpoint.Decimal, error) {
	reserved, err := fixedpoint.FromUnits(v.ReservedAmount).Add(fixedpoint.FromUnits(delta))
	if err != nil {
		return fixedpoint.Decimal{}, err
	}
	total, err := fixedpoint.FromUnits(v.Liquidity).Add(reserved)
	if err != nil {
		return fixedpoint.Decimal{}, err
	}
	if total, err = total.Add(v.UnrealisedReservingFeeAmount); err != nil {
		return fixedpoint.Decimal{}, err
	}
	if total.IsZero() {
		return fixedpoint.Zero(), nil
	}
	return reserved.Div(total)
}

// ReservingFeeRate evaluates a vault's reserving curve at its utilization
// after reserving delta more tokens.
func (s *ValuationService) ReservingFeeRate(ctx context.Context, collateralToken string, delta uint64) (fixedpoint.Decimal, error) {
	vault, err := s.dep.Vault(collateralToken)
	if err != nil {
		return fixedpoint.Decimal{}, fmt.Errorf("valuation: reserving rate: %w", err)
	}
	info, err := fetchVaultInfo(ctx, s.reader, s.dep, collateralToken)
	if err != nil {
		return fixedpoint.Decimal{}, fmt.Errorf("valuation: reserving rate: %w", err)
	}
	util, err := Utilization(info, delta)
	if err != nil {
		return fixedpoint.Decimal{}, fmt.Errorf("valuation: reserving rate: %w", err)
	}

	tx := ptb.New()
	tx.MoveCall(s.dep.Target("model", "compute_reserving_fee_rate"), nil,
		tx.Object(vault.ReservingFeeModel), tx.PureU128(util.Raw()), tx.PureU64(fundingWindow))

	rate, err := lastReturn(ctx, s.sim, s.sender, tx, schema.DecodeRate)
	if err != nil {
		return fixedpoint.Decimal{}, fmt.Errorf("valuation: reserving rate: %w", err)
	}
	return rate, nil
}

// RebaseFeeRate evaluates the rebase curve for moving delta (a value at 18
// decimals) into or out of one vault. It needs two simulations: a vaults
// snapshot, then the curve itself.
func (s *ValuationService) RebaseFeeRate(ctx context.Context, collateralToken string, increase bool, delta fixedpoint.Decimal) (fixedpoint.Decimal, error) {
	coin, err := s.dep.CoinType(collateralToken)
	if err != nil {
		return fixedpoint.Decimal{}, fmt.Errorf("valuation: rebase rate: %w", err)
	}
	weight, err := s.dep.VaultWeight(collateralToken)
	if err != nil {
		return fixedpoint.Decimal{}, fmt.Errorf("valuation: rebase rate: %w", err)
	}
	vaults, err := s.vaultsSnapshot(ctx)
	if err != nil {
		return fixedpoint.Decimal{}, fmt.Errorf("valuation: rebase rate: %w", err)
	}
	entry, ok := vaults.Find(coin)
	if !ok {
		return fixedpoint.Decimal{}, fmt.Errorf("valuation: rebase rate: %w", domain.Unresolved("vault entry", coin))
	}
	single, err := entry.Value.Add(delta)
	if err != nil {
		return fixedpoint.Decimal{}, fmt.Errorf("valuation: rebase rate: %w", err)
	}
	all, err := vaults.Value.Add(delta)
	if err != nil {
		return fixedpoint.Decimal{}, fmt.Errorf("valuation: rebase rate: %w", err)
	}

	tx := ptb.New()
	tx.MoveCall(s.dep.Target("pool", "compute_rebase_fee_rate"), nil,
		tx.Object(s.dep.Core.RebaseFeeModel),
		tx.PureBool(increase),
		tx.PureU256(single.Raw()),
		tx.PureU256(all.Raw()),
		tx.PureU256(weight.Raw()),
		tx.PureU256(vaults.TotalWeight.Raw()),
	)
	rate, err := lastReturn(ctx, s.sim, s.sender, tx, schema.DecodeRate)
	if err != nil {
		return fixedpoint.Decimal{}, fmt.Errorf("valuation: rebase rate: %w", err)
	}
	return rate, nil
}

// positionCall appends the market::position lookup for pos.
func (s *ValuationService) positionCall(tx *ptb.Transaction, pos domain.PositionRecord, collCoin, indexCoin string) ptb.Argument {
	return tx.MoveCall(s.dep.Target("market", "position"),
		[]string{s.dep.SLPType(), collCoin, indexCoin, s.dep.DirectionType(domain.DirectionOf(pos.Long))},
		tx.Object(s.dep.Core.Market),
		tx.Object(pos.ID),
		tx.PureAddress(pos.Owner),
	)
}

func (s *ValuationService) positionCoins(pos domain.PositionRecord) (string, string, error) {
	collCoin, err := s.dep.CoinType(pos.CollateralToken)
	if err != nil {
		return "", "", err
	}
	indexCoin, err := s.dep.CoinType(pos.IndexToken)
	if err != nil {
		return "", "", err
	}
	return collCoin, indexCoin, nil
}

// PositionReservingFee returns the reserving fee an open position owes as
// of now, simulated as the position's owner.
func (s *ValuationService) PositionReservingFee(ctx context.Context, pos domain.PositionRecord) (fixedpoint.Decimal, error) {
	collCoin, indexCoin, err := s.positionCoins(pos)
	if err != nil {
		return fixedpoint.Decimal{}, fmt.Errorf("valuation: position reserving fee: %w", err)
	}
	vault, err := s.dep.Vault(pos.CollateralToken)
	if err != nil {
		return fixedpoint.Decimal{}, fmt.Errorf("valuation: position reserving fee: %w", err)
	}
	tx, err := s.newTx(ctx, []string{pos.IndexToken, pos.CollateralToken})
	if err != nil {
		return fixedpoint.Decimal{}, fmt.Errorf("valuation: position reserving fee: %w", err)
	}

	vaultRef := tx.MoveCall(s.dep.Target("market", "vault"),
		[]string{s.dep.SLPType(), collCoin}, tx.Object(s.dep.Core.Market))
	position := s.positionCall(tx, pos, collCoin, indexCoin)
	deltaRate := tx.MoveCall(s.dep.Target("pool", "vault_delta_reserving_rate"),
		[]string{collCoin}, vaultRef, tx.Object(vault.ReservingFeeModel), tx.PureU64(s.unixNow()))
	accRate := tx.MoveCall(s.dep.Target("pool", "vault_acc_reserving_rate"),
		[]string{collCoin}, vaultRef, deltaRate)
	tx.MoveCall(s.dep.Target("position", "compute_reserving_fee_amount"),
		[]string{collCoin}, position, accRate)

	fee, err := lastReturn(ctx, s.sim, pos.Owner, tx, schema.DecodeDecimal)
	if err != nil {
		return fixedpoint.Decimal{}, fmt.Errorf("valuation: position reserving fee: %w", err)
	}
	return fee, nil
}

// PositionFundingFee returns the funding fee value of an open position as
// of now, simulated as the position's owner.
func (s *ValuationService) PositionFundingFee(ctx context.Context, pos domain.PositionRecord) (fixedpoint.Signed, error) {
	collCoin, indexCoin, err := s.positionCoins(pos)
	if err != nil {
		return fixedpoint.Signed{}, fmt.Errorf("valuation: position funding fee: %w", err)
	}
	dir := domain.DirectionOf(pos.Long)
	sym, err := s.dep.Symbol(dir, pos.IndexToken)
	if err != nil {
		return fixedpoint.Signed{}, fmt.Errorf("valuation: position funding fee: %w", err)
	}
	feeder, err := s.feeder(pos.IndexToken)
	if err != nil {
		return fixedpoint.Signed{}, fmt.Errorf("valuation: position funding fee: %w", err)
	}
	tx, err := s.newTx(ctx, []string{pos.IndexToken, pos.CollateralToken})
	if err != nil {
		return fixedpoint.Signed{}, fmt.Errorf("valuation: position funding fee: %w", err)
	}

	now := s.unixNow()
	market := tx.Object(s.dep.Core.Market)
	symbol := tx.MoveCall(s.dep.Target("market", "symbol"),
		[]string{s.dep.SLPType(), indexCoin, s.dep.DirectionType(dir)}, market)
	position := s.positionCall(tx, pos, collCoin, indexCoin)
	priceConfig := tx.MoveCall(s.dep.Target("pool", "symbol_price_config"), nil, symbol)
	lpSupply := tx.MoveCall(s.dep.Target("market", "lp_supply_amount"),
		[]string{s.dep.SLPType()}, market)
	price := tx.MoveCall(s.dep.Target("agg_price", "parse_pyth_feeder_v1_1"), nil,
		priceConfig, tx.Object(feeder), tx.PureU64(now))
	deltaSize := tx.MoveCall(s.dep.Target("pool", "symbol_delta_size"), nil,
		symbol, price, tx.PureBool(pos.Long))
	deltaRate := tx.MoveCall(s.dep.Target("pool", "symbol_delta_funding_rate"), nil,
		symbol, tx.Object(sym.FundingFeeModel), deltaSize, lpSupply, tx.PureU64(now))
	accRate := tx.MoveCall(s.dep.Target("pool", "symbol_acc_funding_rate"), nil,
		symbol, deltaRate)
	tx.MoveCall(s.dep.Target("position", "compute_funding_fee_value"),
		[]string{collCoin}, position, accRate)

	value, err := lastReturn(ctx, s.sim, pos.Owner, tx, schema.DecodeSDecimal)
	if err != nil {
		return fixedpoint.Signed{}, fmt.Errorf("valuation: position funding fee: %w", err)
	}
	return value, nil
}

// lastReturn simulates tx and decodes the first return value of its last
// call.
func lastReturn[T any](ctx context.Context, sim Simulator, sender string, tx *ptb.Transaction, decode func([]byte) (T, error)) (T, error) {
	var zero T
	res, err := sim.Run(ctx, sender, tx)
	if err != nil {
		return zero, err
	}
	step, err := res.Last()
	if err != nil {
		return zero, err
	}
	buf, err := step.Return(0)
	if err != nil {
		return zero, err
	}
	return decode(buf)
}

// decodeHandle reads the state of handle at the step offset positions
// before the last.
func decodeHandle[T any](res *simulate.Result, offset int, handle ptb.Argument, decode func([]byte) (T, error)) (T, error) {
	var zero T
	step, err := res.FromEnd(offset)
	if err != nil {
		return zero, err
	}
	buf, err := step.Handle(handle)
	if err != nil {
		return zero, err
	}
	return decode(buf)
}
