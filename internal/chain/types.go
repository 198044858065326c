package chain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// RPCError is the error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NotFound reports whether the node rejected the call because the requested
// object or dynamic field does not exist. Nodes phrase this a few ways, so
// the match is on the message rather than the code.
func (e *RPCError) NotFound() bool {
	msg := strings.ToLower(e.Message)
	for _, marker := range []string{"not found", "cannot find", "could not find", "does not exist"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// ObjectRef identifies one on-chain object unambiguously. The version and
// digest must match the object's current state or the chain rejects any
// transaction referencing it.
type ObjectRef struct {
	ObjectID string `json:"objectId"`
	Version  uint64 `json:"version"`
	Digest   string `json:"digest"`
}

// Coin is one native-currency payment object owned by an address.
type Coin struct {
	CoinObjectID string `json:"coinObjectId"`
	Version      uint64 `json:"version"`
	Digest       string `json:"digest"`
	Balance      string `json:"balance"`
}

// Ref converts a coin to its object reference.
func (c Coin) Ref() ObjectRef {
	return ObjectRef{ObjectID: c.CoinObjectID, Version: c.Version, Digest: c.Digest}
}

// CoinPage is one page of a coin listing.
type CoinPage struct {
	Data        []Coin  `json:"data"`
	NextCursor  *string `json:"nextCursor"`
	HasNextPage bool    `json:"hasNextPage"`
}

// ObjectContent carries the decoded move-object content when requested.
type ObjectContent struct {
	DataType string                     `json:"dataType"`
	Type     string                     `json:"type"`
	Fields   map[string]json.RawMessage `json:"fields"`
}

// ObjectData describes one owned or dynamic-field object.
type ObjectData struct {
	ObjectID string         `json:"objectId"`
	Version  uint64         `json:"version"`
	Digest   string         `json:"digest"`
	Type     string         `json:"type,omitempty"`
	Content  *ObjectContent `json:"content,omitempty"`
}

// OwnedObject wraps ObjectData the way the node nests it in listings.
type OwnedObject struct {
	Data *ObjectData `json:"data"`
}

// ObjectPage is one page of an owned-object listing.
type ObjectPage struct {
	Data        []OwnedObject `json:"data"`
	NextCursor  *string       `json:"nextCursor"`
	HasNextPage bool          `json:"hasNextPage"`
}

// ExecuteOptions selects which result payloads the node should return.
type ExecuteOptions struct {
	ShowEffects       bool `json:"showEffects,omitempty"`
	ShowEvents        bool `json:"showEvents,omitempty"`
	ShowObjectChanges bool `json:"showObjectChanges,omitempty"`
}

// TransactionResult is the node's response to an executed transaction block.
// Effects and events are chain-defined payloads the social layer treats as
// opaque apart from the few fields extracted below.
type TransactionResult struct {
	Digest        string          `json:"digest"`
	Effects       json.RawMessage `json:"effects,omitempty"`
	Events        json.RawMessage `json:"events,omitempty"`
	ObjectChanges json.RawMessage `json:"objectChanges,omitempty"`
}

// ExecutionError returns the failure message from the effects status, if the
// transaction executed but aborted on chain.
func (r *TransactionResult) ExecutionError() (string, bool) {
	status := gjson.GetBytes(r.Effects, "status.status")
	if status.Exists() && status.String() != "success" {
		msg := gjson.GetBytes(r.Effects, "status.error").String()
		if msg == "" {
			msg = "transaction failed"
		}
		return msg, true
	}
	return "", false
}

// GasObjectRef extracts the post-execution reference of the fee object. The
// chain consumes the attached gas coin and hands back its change under this
// reference.
func (r *TransactionResult) GasObjectRef() (ObjectRef, bool) {
	ref := gjson.GetBytes(r.Effects, "gasObject.reference")
	if !ref.Exists() {
		return ObjectRef{}, false
	}
	return ObjectRef{
		ObjectID: ref.Get("objectId").String(),
		Version:  ref.Get("version").Uint(),
		Digest:   ref.Get("digest").String(),
	}, true
}

// CreatedObjects returns references for every object the transaction created.
func (r *TransactionResult) CreatedObjects() []ObjectRef {
	var refs []ObjectRef
	gjson.GetBytes(r.ObjectChanges, "@this").ForEach(func(_, change gjson.Result) bool {
		if change.Get("type").String() != "created" {
			return true
		}
		refs = append(refs, ObjectRef{
			ObjectID: change.Get("objectId").String(),
			Version:  change.Get("version").Uint(),
			Digest:   change.Get("digest").String(),
		})
		return true
	})
	return refs
}
