package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/sudomarket/internal/deploy"
	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/fixedpoint"
	"github.com/alanyoungcy/sudomarket/internal/typetag"
)

const (
	ownedPageSize  = 50
	fetchWorkers   = 8
	feeTokenSymbol = "sui"
)

// PositionFees computes live fee accruals for one open position.
type PositionFees interface {
	PositionReservingFee(ctx context.Context, pos domain.PositionRecord) (fixedpoint.Decimal, error)
	PositionFundingFee(ctx context.Context, pos domain.PositionRecord) (fixedpoint.Signed, error)
}

// MarketReader reads vault, symbol, position and order state from the
// ledger and parses it into domain records.
type MarketReader struct {
	dep    *deploy.Deployment
	ids    *deploy.Identifiers
	reader domain.LedgerReader
	fees   PositionFees
	logger *slog.Logger
}

func NewMarketReader(dep *deploy.Deployment, ids *deploy.Identifiers, reader domain.LedgerReader, fees PositionFees, logger *slog.Logger) *MarketReader {
	return &MarketReader{
		dep:    dep,
		ids:    ids,
		reader: reader,
		fees:   fees,
		logger: logger.With(slog.String("component", "market_reader")),
	}
}

var noValue = map[string]bool{"dummy_field": false}

func fetchVaultInfo(ctx context.Context, reader domain.LedgerReader, dep *deploy.Deployment, token string) (domain.VaultInfo, error) {
	coin, err := dep.CoinType(token)
	if err != nil {
		return domain.VaultInfo{}, err
	}
	obj, err := reader.GetDynamicFieldObject(ctx, dep.Core.VaultsParent, domain.DynamicFieldName{
		Type:  dep.Core.Package + "::market::VaultName<" + coin + ">",
		Value: noValue,
	})
	if err != nil {
		return domain.VaultInfo{}, err
	}
	f := newMoveFields(obj.Fields, "vault").Struct("value")
	info := domain.VaultInfo{
		Token:                        token,
		Liquidity:                    f.U64("liquidity"),
		ReservedAmount:               f.U64("reserved_amount"),
		UnrealisedReservingFeeAmount: f.Decimal("unrealised_reserving_fee_amount"),
		AccReservingRate:             f.Decimal("acc_reserving_rate"),
		Enabled:                      f.Bool("enabled"),
		Weight:                       f.Decimal("weight"),
		LastUpdate:                   f.Time("last_update"),
	}
	if err := f.Err(); err != nil {
		return domain.VaultInfo{}, err
	}
	return info, nil
}

// VaultInfo returns the state of the vault holding token.
func (r *MarketReader) VaultInfo(ctx context.Context, token string) (domain.VaultInfo, error) {
	info, err := fetchVaultInfo(ctx, r.reader, r.dep, token)
	if err != nil {
		return domain.VaultInfo{}, fmt.Errorf("market: vault info %s: %w", token, err)
	}
	return info, nil
}

// SymbolInfo returns the aggregate state of one symbol.
func (r *MarketReader) SymbolInfo(ctx context.Context, indexToken string, dir domain.Direction) (domain.SymbolInfo, error) {
	coin, err := r.dep.CoinType(indexToken)
	if err != nil {
		return domain.SymbolInfo{}, fmt.Errorf("market: symbol info: %w", err)
	}
	obj, err := r.reader.GetDynamicFieldObject(ctx, r.dep.Core.SymbolsParent, domain.DynamicFieldName{
		Type:  r.dep.Core.Package + "::market::SymbolName<" + coin + ", " + r.dep.DirectionType(dir) + ">",
		Value: noValue,
	})
	if err != nil {
		return domain.SymbolInfo{}, fmt.Errorf("market: symbol info %s: %w", deploy.SymbolKey(dir, indexToken), err)
	}
	f := newMoveFields(obj.Fields, "symbol").Struct("value")
	info := domain.SymbolInfo{
		Token:                     indexToken,
		Direction:                 dir,
		OpeningSize:               f.Decimal("opening_size"),
		OpeningAmount:             f.U64("opening_amount"),
		AccFundingRate:            f.Signed("acc_funding_rate"),
		RealisedPnl:               f.Signed("realised_pnl"),
		UnrealisedFundingFeeValue: f.Signed("unrealised_funding_fee_value"),
		OpenEnabled:               f.Bool("open_enabled"),
		LiquidateEnabled:          f.Bool("liquidate_enabled"),
		DecreaseEnabled:           f.Bool("decrease_enabled"),
		LastUpdate:                f.Time("last_update"),
	}
	if err := f.Err(); err != nil {
		return domain.SymbolInfo{}, fmt.Errorf("market: symbol info %s: %w", deploy.SymbolKey(dir, indexToken), err)
	}
	return info, nil
}

// PositionConfig returns the trading limits of one symbol.
func (r *MarketReader) PositionConfig(ctx context.Context, indexToken string, dir domain.Direction) (domain.PositionConfig, error) {
	sym, err := r.dep.Symbol(dir, indexToken)
	if err != nil {
		return domain.PositionConfig{}, fmt.Errorf("market: position config: %w", err)
	}
	objs, err := r.reader.MultiGetObjects(ctx, []string{sym.PositionConfig})
	if err != nil {
		return domain.PositionConfig{}, fmt.Errorf("market: position config: %w", err)
	}
	f := newMoveFields(objs[0].Fields, "position_config").Struct("inner")
	cfg := domain.PositionConfig{
		MaxLeverage:           f.U64("max_leverage"),
		MinHoldingDuration:    f.U64("min_holding_duration"),
		MaxReservedMultiplier: f.U64("max_reserved_multiplier"),
		MinCollateralValue:    f.Decimal("min_collateral_value"),
		OpenFeeBps:            f.Decimal("open_fee_bps"),
		DecreaseFeeBps:        f.Decimal("decrease_fee_bps"),
		LiquidationThreshold:  f.Decimal("liquidation_threshold"),
		LiquidationBonus:      f.Decimal("liquidation_bonus"),
	}
	if err := f.Err(); err != nil {
		return domain.PositionConfig{}, fmt.Errorf("market: position config: %w", err)
	}
	return cfg, nil
}

// ownedOfType lists every object of structType owned by owner, following
// pagination cursors.
func (r *MarketReader) ownedOfType(ctx context.Context, owner, structType string) ([]domain.LedgerObject, error) {
	var out []domain.LedgerObject
	q := domain.OwnedObjectsQuery{Owner: owner, StructType: structType, Limit: ownedPageSize}
	for {
		page, err := r.reader.GetOwnedObjects(ctx, q)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Objects...)
		if !page.HasNextPage || page.NextCursor == "" {
			return out, nil
		}
		q.Cursor = page.NextCursor
	}
}

// capParams splits a capability type "<C, I, DIR>" into collateral type,
// index type and direction. ok is false for any other shape.
func capParams(typ, name string) (coll, index string, long bool, ok bool) {
	st, err := typetag.ParseStruct(typ)
	if err != nil || !st.Is("market", name) || len(st.Params) < 3 {
		return "", "", false, false
	}
	dir := st.Params[2]
	if dir.Kind != typetag.Struct {
		return "", "", false, false
	}
	return st.Params[0].String(), st.Params[1].String(), dir.Struct.Name == "LONG", true
}

// PositionCaps lists the position capabilities owned by owner.
func (r *MarketReader) PositionCaps(ctx context.Context, owner string) ([]domain.PositionCap, error) {
	objs, err := r.ownedOfType(ctx, owner, r.dep.Core.Package+"::market::PositionCap")
	if err != nil {
		return nil, fmt.Errorf("market: position caps: %w", err)
	}
	caps := make([]domain.PositionCap, 0, len(objs))
	for _, obj := range objs {
		coll, index, long, ok := capParams(obj.Type, "PositionCap")
		if !ok {
			continue
		}
		caps = append(caps, domain.PositionCap{ID: obj.ID, CollateralType: coll, IndexType: index, Long: long})
	}
	return caps, nil
}

// OrderCaps lists the order capabilities owned by owner.
func (r *MarketReader) OrderCaps(ctx context.Context, owner string) ([]domain.OrderCap, error) {
	objs, err := r.ownedOfType(ctx, owner, r.dep.Core.Package+"::market::OrderCap")
	if err != nil {
		return nil, fmt.Errorf("market: order caps: %w", err)
	}
	caps := make([]domain.OrderCap, 0, len(objs))
	for _, obj := range objs {
		coll, index, long, ok := capParams(obj.Type, "OrderCap")
		if !ok {
			continue
		}
		c := domain.OrderCap{ID: obj.ID, CollateralType: coll, IndexType: index, Long: long}
		if len(obj.Fields) > 0 {
			f := newMoveFields(obj.Fields, "order_cap")
			c.PositionID = f.OptionalStr("position_id")
			if err := f.Err(); err != nil {
				return nil, fmt.Errorf("market: order caps: %w", err)
			}
		}
		caps = append(caps, c)
	}
	return caps, nil
}

func (r *MarketReader) directionType(long bool) string {
	return r.dep.DirectionType(domain.DirectionOf(long))
}

func (r *MarketReader) token(coinType string) (string, error) {
	return r.ids.AssetKeyByCoinType(coinType)
}

// Positions lists owner's positions ordered by open time. Open positions
// carry live fee estimates; a position whose estimate fails keeps zero fees
// and is flagged instead of failing the listing.
func (r *MarketReader) Positions(ctx context.Context, owner string) ([]domain.PositionRecord, error) {
	caps, err := r.PositionCaps(ctx, owner)
	if err != nil {
		return nil, err
	}
	records := make([]domain.PositionRecord, len(caps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchWorkers)
	for i, c := range caps {
		g.Go(func() error {
			rec, err := r.position(gctx, owner, c)
			if err != nil {
				return err
			}
			if !rec.Closed {
				if rec, err = r.withLiveFees(gctx, rec); err != nil {
					return err
				}
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("market: positions: %w", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].OpenTimestamp.Before(records[j].OpenTimestamp)
	})
	return records, nil
}

func (r *MarketReader) position(ctx context.Context, owner string, c domain.PositionCap) (domain.PositionRecord, error) {
	obj, err := r.reader.GetDynamicFieldObject(ctx, r.dep.Core.PositionsParent, domain.DynamicFieldName{
		Type:  r.dep.Core.Package + "::market::PositionName<" + c.CollateralType + ", " + c.IndexType + ", " + r.directionType(c.Long) + ">",
		Value: map[string]string{"owner": owner, "id": c.ID},
	})
	if err != nil {
		return domain.PositionRecord{}, fmt.Errorf("position %s: %w", c.ID, err)
	}
	rec, err := r.parsePosition(obj, c.ID)
	if err != nil {
		return domain.PositionRecord{}, fmt.Errorf("position %s: %w", c.ID, err)
	}
	return rec, nil
}

func (r *MarketReader) parsePosition(obj domain.LedgerObject, id string) (domain.PositionRecord, error) {
	root := newMoveFields(obj.Fields, "position")
	nameType := root.Type("name")
	name := root.Struct("name")
	value := root.Struct("value")

	rec := domain.PositionRecord{
		ID:                 id,
		Owner:              name.Str("owner"),
		Version:            obj.Version,
		CollateralAmount:   value.U64("collateral"),
		PositionAmount:     value.U64("position_amount"),
		ReservedAmount:     value.U64("reserved"),
		PositionSize:       value.Decimal("position_size"),
		LastFundingRate:    value.Signed("last_funding_rate"),
		LastReservingRate:  value.Decimal("last_reserving_rate"),
		ReservingFeeAmount: value.Decimal("reserving_fee_amount"),
		FundingFeeValue:    value.Signed("funding_fee_value"),
		Closed:             value.Bool("closed"),
		OpenTimestamp:      value.Time("open_timestamp"),
	}
	if err := root.Err(); err != nil {
		return domain.PositionRecord{}, err
	}

	coll, index, long, ok := capParams(nameType, "PositionName")
	if !ok {
		return domain.PositionRecord{}, &domain.ParseError{Path: "position.name.type", Reason: fmt.Sprintf("unexpected type %q", nameType)}
	}
	var err error
	if rec.CollateralToken, err = r.token(coll); err != nil {
		return domain.PositionRecord{}, err
	}
	if rec.IndexToken, err = r.token(index); err != nil {
		return domain.PositionRecord{}, err
	}
	rec.Long = long
	return rec, nil
}

// withLiveFees replaces the recorded fees of an open position with live
// estimates. Only cancellation of ctx is returned as an error.
func (r *MarketReader) withLiveFees(ctx context.Context, rec domain.PositionRecord) (domain.PositionRecord, error) {
	reserving, err := r.fees.PositionReservingFee(ctx, rec)
	var funding fixedpoint.Signed
	if err == nil {
		funding, err = r.fees.PositionFundingFee(ctx, rec)
	}
	if err == nil {
		rec.ReservingFeeAmount = reserving
		rec.FundingFeeValue = funding
		return rec, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return rec, err
	}
	kind := domain.KindOf(err)
	r.logger.WarnContext(ctx, "position fees degraded",
		slog.String("position_id", rec.ID),
		slog.String("owner", rec.Owner),
		slog.String("error", err.Error()),
		slog.String("kind", string(kind)),
	)
	rec.ReservingFeeAmount = fixedpoint.Zero()
	rec.FundingFeeValue = fixedpoint.PositiveOf(fixedpoint.Zero())
	rec.FeesDegraded = true
	rec.FeesErrorKind = kind
	return rec, nil
}

// Orders lists owner's pending orders ordered by creation time.
func (r *MarketReader) Orders(ctx context.Context, owner string) ([]domain.OrderRecord, error) {
	caps, err := r.OrderCaps(ctx, owner)
	if err != nil {
		return nil, err
	}
	feeCoin, err := r.dep.CoinType(feeTokenSymbol)
	if err != nil {
		return nil, fmt.Errorf("market: orders: %w", err)
	}
	records := make([]domain.OrderRecord, len(caps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchWorkers)
	for i, c := range caps {
		g.Go(func() error {
			positionIDs := []string{}
			if c.PositionID != "" {
				positionIDs = append(positionIDs, c.PositionID)
			}
			obj, err := r.reader.GetDynamicFieldObject(gctx, r.dep.Core.OrdersParent, domain.DynamicFieldName{
				Type: r.dep.Core.Package + "::market::OrderName<" + c.CollateralType + ", " + c.IndexType + ", " +
					r.directionType(c.Long) + ", " + feeCoin + ">",
				Value: map[string]any{
					"owner":       owner,
					"id":          c.ID,
					"position_id": map[string][]string{"vec": positionIDs},
				},
			})
			if err != nil {
				return fmt.Errorf("order %s: %w", c.ID, err)
			}
			rec, err := r.parseOrder(obj, c.ID)
			if err != nil {
				return fmt.Errorf("order %s: %w", c.ID, err)
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("market: orders: %w", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (r *MarketReader) parseOrder(obj domain.LedgerObject, capID string) (domain.OrderRecord, error) {
	outer, err := typetag.ParseStruct(obj.Type)
	if err != nil {
		return domain.OrderRecord{}, err
	}
	if len(outer.Params) < 2 || outer.Params[0].Kind != typetag.Struct || len(outer.Params[0].Struct.Params) < 4 {
		return domain.OrderRecord{}, &domain.ParseError{Path: "order.type", Reason: fmt.Sprintf("unexpected type %q", obj.Type)}
	}
	nameParams := outer.Params[0].Struct.Params
	dir := nameParams[2]

	root := newMoveFields(obj.Fields, "order")
	valueType := root.Type("value")
	value := root.Struct("value")
	rec := domain.OrderRecord{
		ID:                       root.UID("id"),
		CapID:                    capID,
		Owner:                    root.Struct("name").Str("owner"),
		Executed:                 value.Bool("executed"),
		CollateralPriceThreshold: value.Decimal("collateral_price_threshold"),
		FeeAmount:                value.U64("fee"),
		IndexPrice:               value.Decimal("limited_index_price"),
		Long:                     dir.Kind == typetag.Struct && dir.Struct.Name == "LONG",
		CreatedAt:                value.Time("created_at"),
	}

	if err := root.Err(); err != nil {
		return domain.OrderRecord{}, err
	}
	vt, err := typetag.ParseStruct(valueType)
	if err != nil {
		return domain.OrderRecord{}, err
	}
	if vt.Name == "OpenPositionOrder" {
		rec.Type = domain.OrderOpenPosition
		rec.Open = &domain.OpenOrder{
			ReserveAmount:    value.U64("reserve_amount"),
			CollateralAmount: value.U64("collateral"),
			OpenAmount:       value.U64("open_amount"),
		}
	} else {
		rec.Type = domain.OrderDecreasePosition
		rec.Decrease = &domain.DecreaseOrder{
			DecreaseAmount: value.U64("decrease_amount"),
			TakeProfit:     value.Bool("take_profit"),
		}
	}
	if err := root.Err(); err != nil {
		return domain.OrderRecord{}, err
	}

	if rec.CollateralToken, err = r.token(nameParams[0].String()); err != nil {
		return domain.OrderRecord{}, err
	}
	if rec.IndexToken, err = r.token(nameParams[1].String()); err != nil {
		return domain.OrderRecord{}, err
	}
	if rec.FeeToken, err = r.token(nameParams[3].String()); err != nil {
		return domain.OrderRecord{}, err
	}
	return rec, nil
}
