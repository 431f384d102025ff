package pyth

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/ptb"
)

// Contracts locates the on-ledger oracle packages and their state objects.
type Contracts struct {
	PythPackage     string
	PythState       string
	WormholePackage string
	WormholeState   string
}

// Injector appends price-feed update calls to a transaction.
type Injector struct {
	contracts Contracts
	reader    domain.LedgerReader
	fee       uint64
}

// NewInjector returns an Injector. A zero fee means the per-feed update fee
// is read from the oracle state object on each injection.
func NewInjector(c Contracts, reader domain.LedgerReader, fee uint64) *Injector {
	return &Injector{contracts: c, reader: reader, fee: fee}
}

// UpdateFee returns the fee charged per updated feed.
func (in *Injector) UpdateFee(ctx context.Context) (uint64, error) {
	if in.fee > 0 {
		return in.fee, nil
	}
	objs, err := in.reader.MultiGetObjects(ctx, []string{in.contracts.PythState})
	if err != nil {
		return 0, fmt.Errorf("pyth: read state: %w", err)
	}
	var fields struct {
		BaseUpdateFee json.RawMessage `json:"base_update_fee"`
	}
	if err := json.Unmarshal(objs[0].Fields, &fields); err != nil || len(fields.BaseUpdateFee) == 0 {
		return 0, &domain.ParseError{Path: "pyth_state.base_update_fee", Reason: "missing"}
	}
	var s string
	if err := json.Unmarshal(fields.BaseUpdateFee, &s); err != nil {
		s = string(fields.BaseUpdateFee)
	}
	fee, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, &domain.ParseError{Path: "pyth_state.base_update_fee", Reason: err.Error()}
	}
	return fee, nil
}

// Inject adds the verify, authenticate, per-feed update and destroy calls
// for one accumulator update. tx must not contain calls yet so that every
// later call observes the refreshed feeds. feederIDs are the price info
// objects to update, in the order their fee coins are split.
func (in *Injector) Inject(ctx context.Context, tx *ptb.Transaction, updates [][]byte, feederIDs []string) error {
	if tx.Len() != 0 {
		return fmt.Errorf("%w: price updates must precede every other call, found %d", domain.ErrInvalidCallGraph, tx.Len())
	}
	if len(updates) != 1 {
		return fmt.Errorf("%w: expected one accumulator update, got %d", domain.ErrInvalidCallGraph, len(updates))
	}
	if len(feederIDs) == 0 {
		return nil
	}
	vaa, err := ExtractVAA(updates[0])
	if err != nil {
		return fmt.Errorf("pyth: %w", err)
	}
	fee, err := in.UpdateFee(ctx)
	if err != nil {
		return err
	}

	c := in.contracts
	verified := tx.MoveCall(c.WormholePackage+"::vaa::parse_and_verify", nil,
		tx.Object(c.WormholeState),
		tx.PureBytes(vaa),
		tx.Clock(),
	)
	potato := tx.MoveCall(c.PythPackage+"::pyth::create_authenticated_price_infos_using_accumulator", nil,
		tx.Object(c.PythState),
		tx.PureBytes(updates[0]),
		verified,
		tx.Clock(),
	)

	feeArg := tx.PureU64(fee)
	amounts := make([]ptb.Argument, len(feederIDs))
	for i := range amounts {
		amounts[i] = feeArg
	}
	coins := tx.SplitCoins(ptb.GasCoin(), amounts...)

	for i, id := range feederIDs {
		potato = tx.MoveCall(c.PythPackage+"::pyth::update_single_price_feed", nil,
			tx.Object(c.PythState),
			potato,
			tx.Object(id),
			coins.Nested(uint16(i)),
			tx.Clock(),
		)
	}
	tx.MoveCall(c.PythPackage+"::hot_potato_vector::destroy",
		[]string{c.PythPackage + "::price_info::PriceInfo"},
		potato,
	)
	return tx.Err()
}
