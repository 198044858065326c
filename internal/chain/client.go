// Package chain provides the JSON-RPC client, transaction construction, and
// custodial signing used to execute delegated social actions on chain.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// NativeCoinType is the fully qualified type of the fee-payment coin.
const NativeCoinType = "0x2::sui::SUI"

// MistPerCoin is the number of base units in one whole native coin.
const MistPerCoin = 1_000_000_000

// Client talks JSON-RPC 2.0 to a single full node.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	nextID     atomic.Int64
}

// Config holds client configuration.
type Config struct {
	RPCURL  string
	Timeout time.Duration
}

// NewClient creates a full-node RPC client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		rpcURL: cfg.RPCURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Call makes an RPC call to the full node.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      int(c.nextID.Add(1)),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// GetCoins returns one page of native coins owned by the address.
func (c *Client) GetCoins(ctx context.Context, owner string, cursor *string) (*CoinPage, error) {
	params := []interface{}{owner, NativeCoinType, cursor, nil}
	result, err := c.Call(ctx, "suix_getCoins", params)
	if err != nil {
		return nil, err
	}

	var page CoinPage
	if err := json.Unmarshal(result, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetAllCoins drains every page of the owner's native coins. Partial
// pagination would silently lose coins, so the cursor is always followed to
// the end.
func (c *Client) GetAllCoins(ctx context.Context, owner string) ([]ObjectRef, error) {
	var refs []ObjectRef
	var cursor *string
	for {
		page, err := c.GetCoins(ctx, owner, cursor)
		if err != nil {
			return nil, err
		}
		for _, coin := range page.Data {
			refs = append(refs, coin.Ref())
		}
		if !page.HasNextPage {
			return refs, nil
		}
		cursor = page.NextCursor
	}
}

// GetOwnedObjects returns one page of objects owned by the address, with type
// and content included.
func (c *Client) GetOwnedObjects(ctx context.Context, owner string, cursor *string) (*ObjectPage, error) {
	query := map[string]interface{}{
		"options": map[string]bool{"showType": true, "showContent": true},
	}
	result, err := c.Call(ctx, "suix_getOwnedObjects", []interface{}{owner, query, cursor, nil})
	if err != nil {
		return nil, err
	}

	var page ObjectPage
	if err := json.Unmarshal(result, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetAllOwnedObjects drains every page of the owner's objects.
func (c *Client) GetAllOwnedObjects(ctx context.Context, owner string) ([]OwnedObject, error) {
	var objects []OwnedObject
	var cursor *string
	for {
		page, err := c.GetOwnedObjects(ctx, owner, cursor)
		if err != nil {
			return nil, err
		}
		objects = append(objects, page.Data...)
		if !page.HasNextPage {
			return objects, nil
		}
		cursor = page.NextCursor
	}
}

// GetDynamicFieldObject looks up a named dynamic field under a parent object,
// used to resolve profile names against the on-chain profile table.
func (c *Client) GetDynamicFieldObject(ctx context.Context, parentID, name string) (*ObjectData, error) {
	fieldName := map[string]interface{}{
		"type":  "0x1::string::String",
		"value": name,
	}
	result, err := c.Call(ctx, "suix_getDynamicFieldObject", []interface{}{parentID, fieldName})
	if err != nil {
		return nil, err
	}

	var wrapped OwnedObject
	if err := json.Unmarshal(result, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Data, nil
}

// ExecuteTransactionBlock submits a signed transaction and waits for the
// node's execution result.
func (c *Client) ExecuteTransactionBlock(ctx context.Context, txBytes, signature string, opts ExecuteOptions) (*TransactionResult, error) {
	result, err := c.Call(ctx, "sui_executeTransactionBlock", []interface{}{txBytes, []string{signature}, opts})
	if err != nil {
		return nil, err
	}

	var txResult TransactionResult
	if err := json.Unmarshal(result, &txResult); err != nil {
		return nil, err
	}
	return &txResult, nil
}
