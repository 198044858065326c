package chain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ClockObjectID is the shared clock object passed to time-stamped entry
// points.
const ClockObjectID = "0x6"

// CallArg is one positional argument of a move call: either a reference to an
// on-chain object or a pure value serialized by the node.
type CallArg struct {
	Object string      `json:"object,omitempty"`
	Pure   interface{} `json:"pure,omitempty"`
}

// ObjectArg references an on-chain object by id.
func ObjectArg(id string) CallArg { return CallArg{Object: id} }

// PureArg passes a plain value.
func PureArg(v interface{}) CallArg { return CallArg{Pure: v} }

// MoveCall invokes one entry point of a deployed package.
type MoveCall struct {
	Target    string    `json:"target"`
	TypeArgs  []string  `json:"typeArguments,omitempty"`
	Arguments []CallArg `json:"arguments"`
}

// SplitCoins splits the attached gas coin into fixed-size amounts. Results
// are addressable by index from later commands.
type SplitCoins struct {
	Coin    string   `json:"coin"`
	Amounts []uint64 `json:"amounts"`
}

// TransferObjects transfers command results or objects to a recipient.
type TransferObjects struct {
	Objects   []string `json:"objects"`
	Recipient string   `json:"recipient"`
}

// Command is one step of a transaction block. Exactly one field is set.
type Command struct {
	MoveCall        *MoveCall        `json:"moveCall,omitempty"`
	SplitCoins      *SplitCoins      `json:"splitCoins,omitempty"`
	TransferObjects *TransferObjects `json:"transferObjects,omitempty"`
}

// TransactionBlock accumulates commands plus exactly one gas payment. All
// commands in a block share the attached fee object.
type TransactionBlock struct {
	Sender     string      `json:"sender,omitempty"`
	GasPayment []ObjectRef `json:"gasPayment,omitempty"`
	Commands   []Command   `json:"commands"`
}

// NewTransactionBlock creates an empty block.
func NewTransactionBlock() *TransactionBlock {
	return &TransactionBlock{}
}

// SetGasPayment attaches the fee objects paying for the whole block.
func (b *TransactionBlock) SetGasPayment(refs ...ObjectRef) {
	b.GasPayment = refs
}

// AddMoveCall appends one entry-point invocation.
func (b *TransactionBlock) AddMoveCall(target string, args ...CallArg) {
	if args == nil {
		args = []CallArg{}
	}
	b.Commands = append(b.Commands, Command{MoveCall: &MoveCall{Target: target, Arguments: args}})
}

// SplitGas splits the gas coin into len(amounts) new coins and returns the
// result names usable in a later transfer.
func (b *TransactionBlock) SplitGas(amounts []uint64) []string {
	idx := len(b.Commands)
	b.Commands = append(b.Commands, Command{SplitCoins: &SplitCoins{Coin: "gas", Amounts: amounts}})

	results := make([]string, len(amounts))
	for i := range amounts {
		results[i] = fmt.Sprintf("result-%d-%d", idx, i)
	}
	return results
}

// Transfer appends a transfer of the named objects to the recipient.
func (b *TransactionBlock) Transfer(objects []string, recipient string) {
	b.Commands = append(b.Commands, Command{TransferObjects: &TransferObjects{Objects: objects, Recipient: recipient}})
}

// Encode serializes the block to the base64 payload submitted to the node.
func (b *TransactionBlock) Encode() (string, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encode transaction block: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
