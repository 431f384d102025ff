package domain

import (
	"errors"
	"fmt"

	"github.com/alanyoungcy/sudomarket/internal/fixedpoint"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrRemoteUnavailable    = errors.New("remote unavailable")
	ErrSimulationAborted    = errors.New("simulation aborted")
	ErrDecode               = errors.New("decode failure")
	ErrIdentifierUnresolved = errors.New("identifier unresolved")
	ErrParse                = errors.New("parse failure")
	ErrInvalidCallGraph     = errors.New("invalid call graph")
	ErrArithmetic           = fixedpoint.ErrArithmetic
)

// ErrorKind classifies an error for diagnostics. Every pipeline failure maps
// to exactly one kind.
type ErrorKind string

const (
	KindNone                 ErrorKind = ""
	KindRemoteUnavailable    ErrorKind = "remote_unavailable"
	KindSimulationAborted    ErrorKind = "simulation_aborted"
	KindDecodeFailure        ErrorKind = "decode_failure"
	KindIdentifierUnresolved ErrorKind = "identifier_unresolved"
	KindParseFailure         ErrorKind = "parse_failure"
	KindInvalidCallGraph     ErrorKind = "invalid_call_graph"
	KindArithmetic           ErrorKind = "arithmetic"
	KindNotFound             ErrorKind = "not_found"
	KindUnknown              ErrorKind = "unknown"
)

var kindOrder = []struct {
	sentinel error
	kind     ErrorKind
}{
	{ErrSimulationAborted, KindSimulationAborted},
	{ErrDecode, KindDecodeFailure},
	{ErrParse, KindParseFailure},
	{ErrIdentifierUnresolved, KindIdentifierUnresolved},
	{ErrInvalidCallGraph, KindInvalidCallGraph},
	{ErrArithmetic, KindArithmetic},
	{ErrNotFound, KindNotFound},
	{ErrRemoteUnavailable, KindRemoteUnavailable},
}

// KindOf returns the kind of err. A nil error has KindNone.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindUnknown
}

// SimulationError carries the ledger's failure message verbatim.
type SimulationError struct {
	Message string
}

func (e *SimulationError) Error() string {
	return "simulation aborted: " + e.Message
}

func (e *SimulationError) Is(target error) bool {
	return target == ErrSimulationAborted
}

// DecodeError reports a binary buffer that does not match its schema.
type DecodeError struct {
	Schema string
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s at offset %d: %s", e.Schema, e.Offset, e.Reason)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// ParseError reports a remote JSON payload whose structure is not the one
// expected. Path is a dotted field path into the payload.
type ParseError struct {
	Path   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Path, e.Reason)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// Unresolved builds an ErrIdentifierUnresolved for the given keyspace and key.
func Unresolved(keyspace, key string) error {
	return fmt.Errorf("%w: %s %q", ErrIdentifierUnresolved, keyspace, key)
}
