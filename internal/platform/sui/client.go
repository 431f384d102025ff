// Package sui is the ledger's JSON-RPC client. It implements
// domain.LedgerReader and domain.LedgerInspector.
package sui

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	_ domain.LedgerReader    = (*Client)(nil)
	_ domain.LedgerInspector = (*Client)(nil)
)

// Client talks to a full node's JSON-RPC endpoint.
type Client struct {
	rpc    *rpc.Client
	logger *slog.Logger
}

// NewClient dials url. Each HTTP request is bounded by timeout.
func NewClient(ctx context.Context, url string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	c, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, fmt.Errorf("sui: dial %s: %w", url, err)
	}
	return &Client{rpc: c, logger: logger.With(slog.String("component", "sui"))}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() { c.rpc.Close() }

// call invokes method and maps transport and server failures to
// domain.ErrRemoteUnavailable.
func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	start := time.Now()
	err := c.rpc.CallContext(ctx, result, method, args...)
	c.logger.DebugContext(ctx, "rpc call",
		slog.String("method", method),
		slog.Duration("elapsed", time.Since(start)),
		slog.Bool("ok", err == nil),
	)
	if err == nil {
		return nil
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("sui: %s: %w: code %d: %w", method, domain.ErrRemoteUnavailable, rpcErr.ErrorCode(), err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("sui: %s: %w", method, ctx.Err())
	}
	return fmt.Errorf("sui: %s: %w: %v", method, domain.ErrRemoteUnavailable, err)
}

// codeInvalidParams is returned when the node rejects a transaction's
// inputs before executing it.
const codeInvalidParams = -32602

var objectOptions = map[string]bool{
	"showType":    true,
	"showOwner":   true,
	"showContent": true,
}

// MultiGetObjects fetches objects in request order. A missing object is
// reported as domain.ErrNotFound.
func (c *Client) MultiGetObjects(ctx context.Context, ids []string) ([]domain.LedgerObject, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var resp []objectResponse
	if err := c.call(ctx, &resp, "sui_multiGetObjects", ids, objectOptions); err != nil {
		return nil, err
	}
	if len(resp) != len(ids) {
		return nil, fmt.Errorf("sui: sui_multiGetObjects: %w", &domain.ParseError{
			Path:   "result",
			Reason: fmt.Sprintf("%d objects for %d ids", len(resp), len(ids)),
		})
	}
	out := make([]domain.LedgerObject, 0, len(resp))
	for i, r := range resp {
		obj, err := r.toDomain(fmt.Sprintf("result[%d]", i))
		if err != nil {
			return nil, fmt.Errorf("sui: object %s: %w", ids[i], err)
		}
		out = append(out, obj)
	}
	return out, nil
}

// GetObject fetches a single object.
func (c *Client) GetObject(ctx context.Context, id string) (domain.LedgerObject, error) {
	objs, err := c.MultiGetObjects(ctx, []string{id})
	if err != nil {
		return domain.LedgerObject{}, err
	}
	return objs[0], nil
}

// GetDynamicFieldObject fetches one entry of an on-ledger dynamic field map.
func (c *Client) GetDynamicFieldObject(ctx context.Context, parentID string, name domain.DynamicFieldName) (domain.LedgerObject, error) {
	var resp objectResponse
	if err := c.call(ctx, &resp, "suix_getDynamicFieldObject", parentID, name); err != nil {
		return domain.LedgerObject{}, err
	}
	obj, err := resp.toDomain("result")
	if err != nil {
		return domain.LedgerObject{}, fmt.Errorf("sui: dynamic field %s of %s: %w", name.Type, parentID, err)
	}
	return obj, nil
}

// GetOwnedObjects returns one page of objects owned by q.Owner with the
// exact struct type q.StructType.
func (c *Client) GetOwnedObjects(ctx context.Context, q domain.OwnedObjectsQuery) (domain.OwnedObjectsPage, error) {
	query := map[string]any{
		"filter":  map[string]string{"StructType": q.StructType},
		"options": objectOptions,
	}
	var cursor any
	if q.Cursor != "" {
		cursor = q.Cursor
	}
	var limit any
	if q.Limit > 0 {
		limit = q.Limit
	}
	var resp ownedPage
	if err := c.call(ctx, &resp, "suix_getOwnedObjects", q.Owner, query, cursor, limit); err != nil {
		return domain.OwnedObjectsPage{}, err
	}
	page := domain.OwnedObjectsPage{HasNextPage: resp.HasNextPage}
	if resp.NextCursor != nil {
		page.NextCursor = *resp.NextCursor
	}
	for i, r := range resp.Data {
		obj, err := r.toDomain(fmt.Sprintf("data[%d]", i))
		if err != nil {
			return domain.OwnedObjectsPage{}, fmt.Errorf("sui: owned objects of %s: %w", q.Owner, err)
		}
		page.Objects = append(page.Objects, obj)
	}
	return page, nil
}

// DevInspect runs txKind (a BCS TransactionKind) speculatively as sender.
// Transport failures are ErrRemoteUnavailable; ledger-reported aborts are
// returned in the result, not as an error.
func (c *Client) DevInspect(ctx context.Context, sender string, txKind []byte) (domain.InspectResult, error) {
	var resp inspectResponse
	encoded := base64.StdEncoding.EncodeToString(txKind)
	if err := c.call(ctx, &resp, "sui_devInspectTransactionBlock", sender, encoded, nil, nil); err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeInvalidParams {
			return domain.InspectResult{}, &domain.SimulationError{Message: rpcErr.Error()}
		}
		return domain.InspectResult{}, err
	}
	res, err := resp.toDomain()
	if err != nil {
		return domain.InspectResult{}, fmt.Errorf("sui: sui_devInspectTransactionBlock: %w", err)
	}
	return res, nil
}
