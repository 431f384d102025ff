// Package ledgertest provides an in-memory ledger for tests. It decodes
// submitted transaction kinds back into calls so fakes can answer by
// function name.
package ledgertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/typetag"
)

var (
	_ domain.LedgerReader    = (*Ledger)(nil)
	_ domain.LedgerInspector = (*Ledger)(nil)
)

// Responder answers one speculative execution.
type Responder func(sender string, tx Transaction) (domain.InspectResult, error)

// Ledger is a fake ledger. Zero values are not usable; call New.
type Ledger struct {
	mu      sync.Mutex
	objects map[string]domain.LedgerObject
	dynamic map[string]domain.LedgerObject
	owned   map[string][]domain.LedgerObject

	// Respond handles DevInspect. When nil every call succeeds with one
	// empty step per command.
	Respond Responder
	// ReadErr, when set, fails every read.
	ReadErr error

	reads    int
	inspects []Transaction
	names    []domain.DynamicFieldName
}

func New() *Ledger {
	return &Ledger{
		objects: make(map[string]domain.LedgerObject),
		dynamic: make(map[string]domain.LedgerObject),
		owned:   make(map[string][]domain.LedgerObject),
	}
}

func norm(id string) string {
	n, err := typetag.NormalizeAddress(id)
	if err != nil {
		return id
	}
	return n
}

func mustJSON(v any) json.RawMessage {
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	if s, ok := v.(string); ok {
		return json.RawMessage(s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// PutShared stores a shared object with the given Move fields.
func (l *Ledger) PutShared(id string, fields any) {
	l.Put(domain.LedgerObject{
		ID:     norm(id),
		Owner:  domain.ObjectOwner{Kind: domain.OwnerShared, InitialSharedVersion: 1},
		Fields: mustJSON(fields),
	})
}

// PutOwned stores an address-owned object with a zero digest.
func (l *Ledger) PutOwned(id, owner, typ string, fields any) domain.LedgerObject {
	obj := domain.LedgerObject{
		ID:      norm(id),
		Version: 1,
		Digest:  "11111111111111111111111111111111",
		Type:    typ,
		Owner:   domain.ObjectOwner{Kind: domain.OwnerAddress, Address: owner},
		Fields:  mustJSON(fields),
	}
	l.Put(obj)
	return obj
}

func (l *Ledger) Put(obj domain.LedgerObject) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.objects[norm(obj.ID)] = obj
}

// fieldKey addresses a dynamic field by parent, name type and the
// canonical JSON of the name value, so map key order does not matter.
func fieldKey(parentID string, name domain.DynamicFieldName) string {
	raw, err := json.Marshal(name.Value)
	if err != nil {
		panic(err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		panic(err)
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return norm(parentID) + "|" + name.Type + "|" + string(canonical)
}

// PutDynamicField stores the entry addressed by (parent, name).
func (l *Ledger) PutDynamicField(parentID string, name domain.DynamicFieldName, obj domain.LedgerObject) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dynamic[fieldKey(parentID, name)] = obj
}

// DynamicFieldRequests returns every name passed to GetDynamicFieldObject.
func (l *Ledger) DynamicFieldRequests() []domain.DynamicFieldName {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.DynamicFieldName(nil), l.names...)
}

// AddOwned lists obj under (owner, structType).
func (l *Ledger) AddOwned(owner, structType string, obj domain.LedgerObject) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := owner + "|" + structType
	l.owned[k] = append(l.owned[k], obj)
}

// Reads returns how many read calls were served.
func (l *Ledger) Reads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reads
}

// Inspected returns every transaction submitted to DevInspect.
func (l *Ledger) Inspected() []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Transaction(nil), l.inspects...)
}

func (l *Ledger) MultiGetObjects(_ context.Context, ids []string) ([]domain.LedgerObject, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads++
	if l.ReadErr != nil {
		return nil, l.ReadErr
	}
	out := make([]domain.LedgerObject, 0, len(ids))
	for _, id := range ids {
		obj, ok := l.objects[norm(id)]
		if !ok {
			return nil, fmt.Errorf("%w: object %s", domain.ErrNotFound, id)
		}
		out = append(out, obj)
	}
	return out, nil
}

func (l *Ledger) GetDynamicFieldObject(_ context.Context, parentID string, name domain.DynamicFieldName) (domain.LedgerObject, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads++
	if l.ReadErr != nil {
		return domain.LedgerObject{}, l.ReadErr
	}
	l.names = append(l.names, name)
	key := fieldKey(parentID, name)
	obj, ok := l.dynamic[key]
	if !ok {
		return domain.LedgerObject{}, fmt.Errorf("%w: dynamic field %s", domain.ErrNotFound, key)
	}
	return obj, nil
}

// GetOwnedObjects pages through owned objects one at a time when Limit is
// 1, otherwise returns everything in one page.
func (l *Ledger) GetOwnedObjects(_ context.Context, q domain.OwnedObjectsQuery) (domain.OwnedObjectsPage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads++
	if l.ReadErr != nil {
		return domain.OwnedObjectsPage{}, l.ReadErr
	}
	all := l.owned[q.Owner+"|"+q.StructType]
	start := 0
	if q.Cursor != "" {
		fmt.Sscanf(q.Cursor, "%d", &start)
	}
	if start > len(all) {
		start = len(all)
	}
	end := len(all)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	page := domain.OwnedObjectsPage{Objects: append([]domain.LedgerObject(nil), all[start:end]...)}
	if end < len(all) {
		page.HasNextPage = true
		page.NextCursor = fmt.Sprint(end)
	}
	return page, nil
}

func (l *Ledger) DevInspect(_ context.Context, sender string, txKind []byte) (domain.InspectResult, error) {
	tx, err := Decode(txKind)
	if err != nil {
		return domain.InspectResult{}, err
	}
	l.mu.Lock()
	l.inspects = append(l.inspects, tx)
	respond := l.Respond
	l.mu.Unlock()

	if respond == nil {
		return Success(len(tx.Calls)), nil
	}
	return respond(sender, tx)
}

// Success returns a successful result with n empty steps.
func Success(n int) domain.InspectResult {
	return domain.InspectResult{Status: "success", Steps: make([]domain.InspectStep, n)}
}

// Abort returns a failed result carrying msg.
func Abort(msg string) domain.InspectResult {
	return domain.InspectResult{Status: "failure", Error: msg}
}
