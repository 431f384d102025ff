package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/fixedpoint"
	"github.com/alanyoungcy/sudomarket/internal/ledgertest"
	"github.com/alanyoungcy/sudomarket/internal/schema"
	"github.com/alanyoungcy/sudomarket/internal/typetag"
)

func objID(n int) string { return fmt.Sprintf("0x%064x", n) }

func full(coinType string) string { return typetag.MustParse(coinType).String() }

type testPosition struct {
	cap       int
	coll      string
	index     string
	long      bool
	opened    int64
	closed    bool
	reserving string
}

func putPosition(f *fixture, p testPosition) {
	pkg := f.dep.Core.Package
	dir := f.dep.DirectionType(domain.DirectionOf(p.long))
	params := full(p.coll) + ", " + full(p.index) + ", " + dir

	capObj := f.ledger.PutOwned(objID(p.cap), testOwner, pkg+"::market::PositionCap<"+params+">",
		fmt.Sprintf(`{"id":{"id":%q}}`, objID(p.cap)))
	f.ledger.AddOwned(testOwner, pkg+"::market::PositionCap", capObj)

	nameType := pkg + "::market::PositionName<" + params + ">"
	value := moveStruct(pkg+"::position::Position<"+full(p.coll)+">", fmt.Sprintf(`{
		"closed": %t,
		"collateral": "1000",
		"position_amount": "10",
		"reserved": "100",
		"position_size": %s,
		"last_funding_rate": %s,
		"last_reserving_rate": %s,
		"reserving_fee_amount": %s,
		"funding_fee_value": %s,
		"open_timestamp": "%d"
	}`, p.closed, decimalJSON("2000000000000000000000"), signedJSON(true, "0"), decimalJSON("0"),
		decimalJSON(p.reserving), signedJSON(true, "0"), p.opened))
	fields := fmt.Sprintf(`{"id":{"id":%q},"name":{"type":%q,"fields":{"owner":%q,"id":%q}},"value":%s}`,
		objID(p.cap+0x1000), nameType, testOwner, objID(p.cap), value)
	name := domain.DynamicFieldName{
		Type:  nameType,
		Value: map[string]string{"owner": testOwner, "id": objID(p.cap)},
	}
	f.ledger.PutDynamicField(f.dep.Core.PositionsParent, name,
		domain.LedgerObject{ID: objID(p.cap + 0x1000), Version: 3, Fields: []byte(fields)})
}

// feeHandlers answers the position fee chains and aborts for the position
// whose cap is failing.
func feeHandlers(t *testing.T, failing string, senders *[]string, mu *sync.Mutex) ledgertest.Responder {
	reserving := schema.EncodeDecimal(units(5))
	funding := schema.EncodeSDecimal(fixedpoint.NewSigned(false, units(3)))
	handlers := map[string]stepFunc{
		"position": func(c ledgertest.Call, tx ledgertest.Transaction) (domain.InspectStep, string) {
			if objectArg(tx, c.Args[1]) == failing {
				return domain.InspectStep{}, "MoveAbort(pool, 3)"
			}
			return domain.InspectStep{}, ""
		},
		"compute_reserving_fee_amount": returns(reserving),
		"compute_funding_fee_value":    returns(funding),
	}
	respond := answer(handlers)
	return func(sender string, tx ledgertest.Transaction) (domain.InspectResult, error) {
		mu.Lock()
		*senders = append(*senders, sender)
		mu.Unlock()
		return respond(sender, tx)
	}
}

func TestPositionsDegradeFeesPerPosition(t *testing.T) {
	f := newFixture(t)
	putPosition(f, testPosition{cap: 0xca1, coll: usdcType, index: suiType, long: true, opened: 300, reserving: "0"})
	putPosition(f, testPosition{cap: 0xca2, coll: usdcType, index: suiType, long: false, opened: 100, reserving: "0"})
	putPosition(f, testPosition{cap: 0xca3, coll: suiType, index: btcType, long: true, opened: 200, closed: true, reserving: "7000000000000000000"})

	var mu sync.Mutex
	var senders []string
	f.ledger.Respond = feeHandlers(t, objID(0xca2), &senders, &mu)

	positions, err := f.market.Positions(context.Background(), testOwner)
	require.NoError(t, err)
	require.Len(t, positions, 3)

	assert.Equal(t, objID(0xca2), positions[0].ID)
	assert.Equal(t, objID(0xca3), positions[1].ID)
	assert.Equal(t, objID(0xca1), positions[2].ID)

	degraded := positions[0]
	assert.True(t, degraded.FeesDegraded)
	assert.Equal(t, domain.KindSimulationAborted, degraded.FeesErrorKind)
	assert.True(t, degraded.ReservingFeeAmount.IsZero())
	assert.True(t, degraded.FundingFeeValue.IsZero())
	assert.False(t, degraded.Long)
	assert.Equal(t, "usdc", degraded.CollateralToken)
	assert.Equal(t, "sui", degraded.IndexToken)

	closed := positions[1]
	assert.True(t, closed.Closed)
	assert.False(t, closed.FeesDegraded)
	assert.Equal(t, "7", closed.ReservingFeeAmount.String())
	assert.Equal(t, "btc", closed.IndexToken)

	live := positions[2]
	assert.False(t, live.FeesDegraded)
	assert.Equal(t, domain.KindNone, live.FeesErrorKind)
	assert.Equal(t, "5", live.ReservingFeeAmount.String())
	assert.Equal(t, "-3", live.FundingFeeValue.String())
	assert.Equal(t, testOwner, live.Owner)
	assert.Equal(t, uint64(1000), live.CollateralAmount)
	assert.Equal(t, "2000", live.PositionSize.String())
	assert.Equal(t, int64(300), live.OpenTimestamp.Unix())
	assert.Equal(t, uint64(3), live.Version)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, senders)
	for _, s := range senders {
		assert.Equal(t, testOwner, s)
	}
}

func TestPositionsFailOnUnknownToken(t *testing.T) {
	f := newFixture(t)
	putPosition(f, testPosition{cap: 0xca1, coll: "0xdd::doge::DOGE", index: suiType, long: true, opened: 1, reserving: "0"})

	_, err := f.market.Positions(context.Background(), testOwner)
	assert.Equal(t, domain.KindIdentifierUnresolved, domain.KindOf(err))
}

func TestPositionsMissingEntry(t *testing.T) {
	f := newFixture(t)
	pkg := f.dep.Core.Package
	capObj := f.ledger.PutOwned(objID(0xca9), testOwner,
		pkg+"::market::PositionCap<"+full(usdcType)+", "+full(suiType)+", "+pkg+"::market::LONG>", `{}`)
	f.ledger.AddOwned(testOwner, pkg+"::market::PositionCap", capObj)

	_, err := f.market.Positions(context.Background(), testOwner)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestPositionsEmpty(t *testing.T) {
	f := newFixture(t)
	positions, err := f.market.Positions(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func putOrder(f *fixture, capN int, open bool, created int64, positionID string) {
	pkg := f.dep.Core.Package
	dir := f.dep.DirectionType(domain.Long)
	params := full(usdcType) + ", " + full(suiType) + ", " + dir

	capFields := `{"id":{"id":"` + objID(capN) + `"},"position_id":null}`
	if positionID != "" {
		capFields = `{"id":{"id":"` + objID(capN) + `"},"position_id":"` + positionID + `"}`
	}
	capObj := f.ledger.PutOwned(objID(capN), testOwner, pkg+"::market::OrderCap<"+params+">", capFields)
	f.ledger.AddOwned(testOwner, pkg+"::market::OrderCap", capObj)

	nameType := pkg + "::market::OrderName<" + params + ", 0x2::sui::SUI>"
	var value, valueType string
	if open {
		valueType = pkg + "::order::OpenPositionOrder<" + full(usdcType) + ", 0x2::sui::SUI>"
		value = moveStruct(valueType, fmt.Sprintf(`{
			"executed": false,
			"created_at": "%d",
			"open_amount": "50",
			"reserve_amount": "500",
			"collateral": "100",
			"fee": "9",
			"collateral_price_threshold": %s,
			"limited_index_price": %s
		}`, created, decimalJSON("900000000000000000"), decimalJSON("1500000000000000000")))
	} else {
		valueType = pkg + "::order::DecreasePositionOrder<" + full(usdcType) + ", 0x2::sui::SUI>"
		value = moveStruct(valueType, fmt.Sprintf(`{
			"executed": false,
			"created_at": "%d",
			"take_profit": true,
			"decrease_amount": "25",
			"fee": "9",
			"collateral_price_threshold": %s,
			"limited_index_price": %s
		}`, created, decimalJSON("900000000000000000"), decimalJSON("2500000000000000000")))
	}
	fieldType := "0x2::dynamic_field::Field<" + nameType + ", " + valueType + ">"
	fields := fmt.Sprintf(`{"id":{"id":%q},"name":{"type":%q,"fields":{"owner":%q,"id":%q}},"value":%s}`,
		objID(capN+0x2000), nameType, testOwner, objID(capN), value)
	positionIDs := []string{}
	if positionID != "" {
		positionIDs = append(positionIDs, positionID)
	}
	name := domain.DynamicFieldName{
		Type: nameType,
		Value: map[string]any{
			"owner":       testOwner,
			"id":          objID(capN),
			"position_id": map[string][]string{"vec": positionIDs},
		},
	}
	f.ledger.PutDynamicField(f.dep.Core.OrdersParent, name,
		domain.LedgerObject{ID: objID(capN + 0x2000), Type: fieldType, Fields: []byte(fields)})
}

func TestOrders(t *testing.T) {
	f := newFixture(t)
	putOrder(f, 0xab1, true, 200, "")
	putOrder(f, 0xab2, false, 100, objID(0xca1))

	orders, err := f.market.Orders(context.Background(), testOwner)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	dec := orders[0]
	assert.Equal(t, domain.OrderDecreasePosition, dec.Type)
	require.NotNil(t, dec.Decrease)
	assert.Nil(t, dec.Open)
	assert.Equal(t, uint64(25), dec.Decrease.DecreaseAmount)
	assert.True(t, dec.Decrease.TakeProfit)
	assert.Equal(t, "2.5", dec.IndexPrice.String())
	assert.Equal(t, objID(0xab2+0x2000), dec.ID)
	assert.Equal(t, objID(0xab2), dec.CapID)

	op := orders[1]
	assert.Equal(t, domain.OrderOpenPosition, op.Type)
	require.NotNil(t, op.Open)
	assert.Equal(t, uint64(500), op.Open.ReserveAmount)
	assert.Equal(t, uint64(100), op.Open.CollateralAmount)
	assert.Equal(t, uint64(50), op.Open.OpenAmount)
	assert.Equal(t, "usdc", op.CollateralToken)
	assert.Equal(t, "sui", op.IndexToken)
	assert.Equal(t, "sui", op.FeeToken)
	assert.Equal(t, uint64(9), op.FeeAmount)
	assert.True(t, op.Long)
	assert.Equal(t, testOwner, op.Owner)
	assert.Equal(t, int64(200), op.CreatedAt.Unix())
	assert.Equal(t, objID(0xab1), op.CapID)
}

func TestOrdersAddressEntriesByCap(t *testing.T) {
	f := newFixture(t)
	putOrder(f, 0xab2, false, 100, objID(0xca1))

	_, err := f.market.Orders(context.Background(), testOwner)
	require.NoError(t, err)

	reqs := f.ledger.DynamicFieldRequests()
	require.Len(t, reqs, 1)
	raw, err := json.Marshal(reqs[0].Value)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"owner": "`+testOwner+`",
		"id": "`+objID(0xab2)+`",
		"position_id": {"vec": ["`+objID(0xca1)+`"]}
	}`, string(raw))
}

func TestPositionsAddressEntriesByCap(t *testing.T) {
	f := newFixture(t)
	putPosition(f, testPosition{cap: 0xc1, coll: usdcType, index: suiType, long: true, closed: true, opened: 10, reserving: "0"})

	_, err := f.market.Positions(context.Background(), testOwner)
	require.NoError(t, err)

	var found bool
	for _, req := range f.ledger.DynamicFieldRequests() {
		if !strings.Contains(req.Type, "::market::PositionName<") {
			continue
		}
		raw, err := json.Marshal(req.Value)
		require.NoError(t, err)
		assert.JSONEq(t, `{"owner":"`+testOwner+`","id":"`+objID(0xc1)+`"}`, string(raw))
		found = true
	}
	assert.True(t, found)
}

func TestOrderCapsPositionID(t *testing.T) {
	f := newFixture(t)
	putOrder(f, 0xab1, true, 1, "")
	putOrder(f, 0xab2, false, 2, objID(0xca1))

	caps, err := f.market.OrderCaps(context.Background(), testOwner)
	require.NoError(t, err)
	require.Len(t, caps, 2)
	assert.Empty(t, caps[0].PositionID)
	assert.Equal(t, objID(0xca1), caps[1].PositionID)
	assert.True(t, caps[1].Long)
}

func TestVaultInfo(t *testing.T) {
	f := newFixture(t)
	putVault(f, "600", "200")

	info, err := f.market.VaultInfo(context.Background(), "sui")
	require.NoError(t, err)
	assert.Equal(t, uint64(600), info.Liquidity)
	assert.Equal(t, uint64(200), info.ReservedAmount)
	assert.Equal(t, "1", info.Weight.String())
	assert.Equal(t, "42", info.AccReservingRate.Text())
	assert.True(t, info.Enabled)
	assert.Equal(t, int64(1_700_000_000), info.LastUpdate.Unix())
}

func TestSymbolInfo(t *testing.T) {
	f := newFixture(t)
	pkg := f.dep.Core.Package
	value := moveStruct(pkg+"::pool::Symbol", `{
		"open_enabled": true,
		"liquidate_enabled": true,
		"decrease_enabled": false,
		"opening_size": `+decimalJSON("3000000000000000000")+`,
		"opening_amount": "12",
		"last_update": "1700000001",
		"acc_funding_rate": `+signedJSON(false, "7")+`,
		"realised_pnl": `+signedJSON(true, "1000000000000000000")+`,
		"unrealised_funding_fee_value": `+signedJSON(true, "0")+`
	}`)
	f.ledger.PutDynamicField(f.dep.Core.SymbolsParent, domain.DynamicFieldName{
		Type:  pkg + "::market::SymbolName<0x2::sui::SUI, " + pkg + "::market::SHORT>",
		Value: map[string]bool{"dummy_field": false},
	}, domain.LedgerObject{Fields: []byte(`{"value":` + value + `}`)})

	info, err := f.market.SymbolInfo(context.Background(), "sui", domain.Short)
	require.NoError(t, err)
	assert.Equal(t, domain.Short, info.Direction)
	assert.Equal(t, "3", info.OpeningSize.String())
	assert.Equal(t, uint64(12), info.OpeningAmount)
	assert.False(t, info.AccFundingRate.Positive)
	assert.Equal(t, "1", info.RealisedPnl.String())
	assert.False(t, info.DecreaseEnabled)

	_, err = f.market.SymbolInfo(context.Background(), "sui", domain.Long)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestPositionConfig(t *testing.T) {
	f := newFixture(t)
	inner := moveStruct(f.dep.Core.Package+"::position::PositionConfig", `{
		"max_leverage": "50",
		"min_holding_duration": "20",
		"max_reserved_multiplier": "10",
		"min_collateral_value": `+decimalJSON("10000000000000000000")+`,
		"open_fee_bps": `+decimalJSON("1000000000000000")+`,
		"decrease_fee_bps": `+decimalJSON("1000000000000000")+`,
		"liquidation_threshold": `+decimalJSON("980000000000000000")+`,
		"liquidation_bonus": `+decimalJSON("5000000000000000")+`
	}`)
	f.ledger.PutShared(f.dep.Core.Symbols["long_sui"].PositionConfig, `{"inner":`+inner+`}`)

	cfg, err := f.market.PositionConfig(context.Background(), "sui", domain.Long)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), cfg.MaxLeverage)
	assert.Equal(t, "10", cfg.MinCollateralValue.String())
	assert.Equal(t, "0.98", cfg.LiquidationThreshold.String())

	f.ledger.PutShared(f.dep.Core.Symbols["short_sui"].PositionConfig, `{"inner":{"fields":{}}}`)
	_, err = f.market.PositionConfig(context.Background(), "sui", domain.Short)
	assert.Equal(t, domain.KindParseFailure, domain.KindOf(err))
}
