package sui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/alanyoungcy/sudomarket/internal/domain"
)

// u64 accepts a JSON number or a decimal string.
type u64 uint64

func (v *u64) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid u64 %s", b)
	}
	*v = u64(n)
	return nil
}

// byteArray decodes the node's JSON arrays of numbers into bytes.
type byteArray []byte

func (a *byteArray) UnmarshalJSON(b []byte) error {
	var nums []int
	if err := json.Unmarshal(b, &nums); err != nil {
		return err
	}
	out := make([]byte, len(nums))
	for i, n := range nums {
		if n < 0 || n > 255 {
			return fmt.Errorf("byte %d out of range: %d", i, n)
		}
		out[i] = byte(n)
	}
	*a = out
	return nil
}

type objectError struct {
	Code     string `json:"code"`
	ObjectID string `json:"object_id"`
}

type moveContent struct {
	DataType string          `json:"dataType"`
	Type     string          `json:"type"`
	Fields   json.RawMessage `json:"fields"`
}

type objectData struct {
	ObjectID string          `json:"objectId"`
	Version  u64             `json:"version"`
	Digest   string          `json:"digest"`
	Type     string          `json:"type"`
	Owner    json.RawMessage `json:"owner"`
	Content  *moveContent    `json:"content"`
}

type objectResponse struct {
	Data  *objectData  `json:"data"`
	Error *objectError `json:"error"`
}

type ownedPage struct {
	Data        []objectResponse `json:"data"`
	NextCursor  *string          `json:"nextCursor"`
	HasNextPage bool             `json:"hasNextPage"`
}

func (r objectResponse) toDomain(path string) (domain.LedgerObject, error) {
	if r.Error != nil {
		if r.Error.Code == "notExists" || r.Error.Code == "deleted" || r.Error.Code == "dynamicFieldNotFound" {
			return domain.LedgerObject{}, fmt.Errorf("%w: %s %s", domain.ErrNotFound, r.Error.Code, r.Error.ObjectID)
		}
		return domain.LedgerObject{}, fmt.Errorf("%w: object error %s", domain.ErrRemoteUnavailable, r.Error.Code)
	}
	if r.Data == nil {
		return domain.LedgerObject{}, &domain.ParseError{Path: path + ".data", Reason: "missing"}
	}
	d := r.Data
	if d.ObjectID == "" {
		return domain.LedgerObject{}, &domain.ParseError{Path: path + ".data.objectId", Reason: "missing"}
	}
	owner, err := parseOwner(d.Owner, path+".data.owner")
	if err != nil {
		return domain.LedgerObject{}, err
	}
	obj := domain.LedgerObject{
		ID:      d.ObjectID,
		Version: uint64(d.Version),
		Digest:  d.Digest,
		Type:    d.Type,
		Owner:   owner,
	}
	if d.Content != nil {
		if obj.Type == "" {
			obj.Type = d.Content.Type
		}
		obj.Fields = d.Content.Fields
	}
	return obj, nil
}

func parseOwner(raw json.RawMessage, path string) (domain.ObjectOwner, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return domain.ObjectOwner{}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == string(domain.OwnerImmutable) {
			return domain.ObjectOwner{Kind: domain.OwnerImmutable}, nil
		}
		return domain.ObjectOwner{}, &domain.ParseError{Path: path, Reason: fmt.Sprintf("unknown owner %q", s)}
	}
	var o struct {
		AddressOwner *string `json:"AddressOwner"`
		ObjectOwner  *string `json:"ObjectOwner"`
		Shared       *struct {
			InitialSharedVersion u64 `json:"initial_shared_version"`
		} `json:"Shared"`
	}
	if err := json.Unmarshal(raw, &o); err != nil {
		return domain.ObjectOwner{}, &domain.ParseError{Path: path, Reason: err.Error()}
	}
	switch {
	case o.AddressOwner != nil:
		return domain.ObjectOwner{Kind: domain.OwnerAddress, Address: *o.AddressOwner}, nil
	case o.ObjectOwner != nil:
		return domain.ObjectOwner{Kind: domain.OwnerObject, Address: *o.ObjectOwner}, nil
	case o.Shared != nil:
		return domain.ObjectOwner{Kind: domain.OwnerShared, InitialSharedVersion: uint64(o.Shared.InitialSharedVersion)}, nil
	}
	return domain.ObjectOwner{}, &domain.ParseError{Path: path, Reason: "unrecognised owner " + string(raw)}
}

// argument decodes "GasCoin", {"Input":n}, {"Result":n} and
// {"NestedResult":[n,m]}.
type argument domain.ArgRef

func (a *argument) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s != "GasCoin" {
			return fmt.Errorf("unknown argument %q", s)
		}
		*a = argument{Kind: domain.ArgGasCoin}
		return nil
	}
	var m struct {
		Input        *uint16   `json:"Input"`
		Result       *uint16   `json:"Result"`
		NestedResult *[]uint16 `json:"NestedResult"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	switch {
	case m.Input != nil:
		*a = argument{Kind: domain.ArgInput, Index: *m.Input}
	case m.Result != nil:
		*a = argument{Kind: domain.ArgResult, Index: *m.Result}
	case m.NestedResult != nil && len(*m.NestedResult) == 2:
		n := *m.NestedResult
		*a = argument{Kind: domain.ArgNestedResult, Index: n[0], Nested: n[1]}
	default:
		return fmt.Errorf("unknown argument %s", b)
	}
	return nil
}

// mutableOutput is the tuple [argument, bytes, type].
type mutableOutput struct {
	Arg   argument
	Bytes byteArray
	Type  string
}

func (m *mutableOutput) UnmarshalJSON(b []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(b, &tuple); err != nil {
		return err
	}
	if len(tuple) != 3 {
		return fmt.Errorf("mutable output has %d elements, want 3", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &m.Arg); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[1], &m.Bytes); err != nil {
		return err
	}
	return json.Unmarshal(tuple[2], &m.Type)
}

// returnValue is the tuple [bytes, type].
type returnValue struct {
	Bytes byteArray
	Type  string
}

func (r *returnValue) UnmarshalJSON(b []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(b, &tuple); err != nil {
		return err
	}
	if len(tuple) != 2 {
		return fmt.Errorf("return value has %d elements, want 2", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &r.Bytes); err != nil {
		return err
	}
	return json.Unmarshal(tuple[1], &r.Type)
}

type inspectResponse struct {
	Effects struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"status"`
	} `json:"effects"`
	Error   *string           `json:"error"`
	Results []json.RawMessage `json:"results"`
}

type execResult struct {
	MutableReferenceOutputs []mutableOutput `json:"mutableReferenceOutputs"`
	ReturnValues            []returnValue   `json:"returnValues"`
}

func (r inspectResponse) toDomain() (domain.InspectResult, error) {
	res := domain.InspectResult{Status: r.Effects.Status.Status, Error: r.Effects.Status.Error}
	if r.Error != nil && *r.Error != "" {
		res.Status = "failure"
		if res.Error == "" {
			res.Error = *r.Error
		}
	}
	if res.Status == "" {
		return domain.InspectResult{}, &domain.ParseError{Path: "effects.status.status", Reason: "missing"}
	}
	for i, raw := range r.Results {
		var er execResult
		if err := json.Unmarshal(raw, &er); err != nil {
			return domain.InspectResult{}, &domain.ParseError{Path: fmt.Sprintf("results[%d]", i), Reason: err.Error()}
		}
		step := domain.InspectStep{}
		for _, m := range er.MutableReferenceOutputs {
			step.MutableOutputs = append(step.MutableOutputs, domain.MutableOutput{Arg: domain.ArgRef(m.Arg), Bytes: m.Bytes, Type: m.Type})
		}
		for _, v := range er.ReturnValues {
			step.ReturnValues = append(step.ReturnValues, domain.ReturnValue{Bytes: v.Bytes, Type: v.Type})
		}
		res.Steps = append(res.Steps, step)
	}
	return res, nil
}
