package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"credex/internal/cursor"
)

// RPCClient talks JSON-RPC 2.0 to the ledger node. It implements both the
// submission Client and the cursor's event Stream so one connection serves
// the write path and the read path.
type RPCClient struct {
	url        string
	httpClient *http.Client
	nextID     atomic.Uint64
}

func NewRPCClient(url string, httpClient *http.Client) *RPCClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RPCClient{url: url, httpClient: httpClient}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *RPCClient) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc call %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc call %s: unexpected status %d", method, resp.StatusCode)
	}

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decode rpc result: %w", err)
		}
	}
	return nil
}

// Submit sends a signed transaction and waits for the node's receipt.
func (c *RPCClient) Submit(ctx context.Context, signedTx []byte) (*Receipt, error) {
	var receipt Receipt
	params := []any{base64.StdEncoding.EncodeToString(signedTx)}
	if err := c.call(ctx, "ledger_submitTransaction", params, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

type eventPage struct {
	Events []struct {
		Name        string `json:"name"`
		BlockNumber uint64 `json:"blockNumber"`
		TxHash      string `json:"txHash"`
		Payload     []byte `json:"payload"`
	} `json:"events"`
	LatestBlock uint64 `json:"latestBlock"`
}

// PullEvents pages named events from fromBlock onward.
func (c *RPCClient) PullEvents(ctx context.Context, eventName string, fromBlock uint64) (cursor.Batch, error) {
	var page eventPage
	params := map[string]any{"event": eventName, "fromBlock": fromBlock}
	if err := c.call(ctx, "ledger_getEvents", []any{params}, &page); err != nil {
		return cursor.Batch{}, err
	}

	batch := cursor.Batch{LatestBlock: page.LatestBlock}
	for _, ev := range page.Events {
		batch.Events = append(batch.Events, cursor.Event{
			Name:        ev.Name,
			BlockNumber: ev.BlockNumber,
			TxHash:      ev.TxHash,
			Payload:     ev.Payload,
		})
	}
	return batch, nil
}

var (
	_ Client        = (*RPCClient)(nil)
	_ cursor.Stream = (*RPCClient)(nil)
)
