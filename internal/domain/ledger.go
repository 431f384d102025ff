package domain

import (
	"context"
	"encoding/json"
)

// OwnerKind is the ownership class of a ledger object.
type OwnerKind string

const (
	OwnerAddress   OwnerKind = "AddressOwner"
	OwnerObject    OwnerKind = "ObjectOwner"
	OwnerShared    OwnerKind = "Shared"
	OwnerImmutable OwnerKind = "Immutable"
)

// ObjectOwner describes who owns a ledger object. InitialSharedVersion is
// only set for shared objects.
type ObjectOwner struct {
	Kind                 OwnerKind
	Address              string
	InitialSharedVersion uint64
}

// LedgerObject is one object as returned by the ledger's read API.
// Fields holds the raw Move struct fields (content.fields).
type LedgerObject struct {
	ID      string
	Version uint64
	Digest  string
	Type    string
	Owner   ObjectOwner
	Fields  json.RawMessage
}

// DynamicFieldName addresses an entry of an on-ledger dynamic field map.
type DynamicFieldName struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// OwnedObjectsQuery filters owned objects by exact Move struct type.
type OwnedObjectsQuery struct {
	Owner      string
	StructType string
	Cursor     string
	Limit      int
}

// OwnedObjectsPage is one page of an owned-object listing.
type OwnedObjectsPage struct {
	Objects     []LedgerObject
	NextCursor  string
	HasNextPage bool
}

// ArgKind enumerates the ways a call argument can refer to a value.
type ArgKind uint8

const (
	ArgGasCoin ArgKind = iota
	ArgInput
	ArgResult
	ArgNestedResult
)

// ArgRef identifies a call argument inside one execution: an input slot,
// the result of an earlier call, or one element of a multi-value result.
type ArgRef struct {
	Kind   ArgKind
	Index  uint16
	Nested uint16
}

// MutableOutput is the final state of a handle that a call took by mutable
// reference.
type MutableOutput struct {
	Arg   ArgRef
	Bytes []byte
	Type  string
}

// ReturnValue is one value returned by a call.
type ReturnValue struct {
	Bytes []byte
	Type  string
}

// InspectStep holds the raw outputs of one call step.
type InspectStep struct {
	MutableOutputs []MutableOutput
	ReturnValues   []ReturnValue
}

// InspectResult is the outcome of a speculative execution. Status is
// "success" or "failure"; Error carries the ledger's message verbatim.
type InspectResult struct {
	Status string
	Error  string
	Steps  []InspectStep
}

// LedgerReader reads objects from the ledger.
type LedgerReader interface {
	MultiGetObjects(ctx context.Context, ids []string) ([]LedgerObject, error)
	GetDynamicFieldObject(ctx context.Context, parentID string, name DynamicFieldName) (LedgerObject, error)
	GetOwnedObjects(ctx context.Context, q OwnedObjectsQuery) (OwnedObjectsPage, error)
}

// LedgerInspector runs an unsigned transaction kind speculatively.
type LedgerInspector interface {
	DevInspect(ctx context.Context, sender string, txKind []byte) (InspectResult, error)
}
