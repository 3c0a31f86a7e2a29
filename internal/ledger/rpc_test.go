package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func rpcServer(t *testing.T, handler func(method string, params json.RawMessage) (any, *rpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64          `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestRPCSubmit(t *testing.T) {
	srv := rpcServer(t, func(method string, _ json.RawMessage) (any, *rpcError) {
		require.Equal(t, "ledger_submitTransaction", method)
		return Receipt{TxHash: "0xabc", BlockNumber: 12}, nil
	})
	defer srv.Close()

	client := NewRPCClient(srv.URL, srv.Client())
	receipt, err := client.Submit(context.Background(), []byte("signed"))
	require.NoError(t, err)
	require.Equal(t, "0xabc", receipt.TxHash)
	require.Equal(t, uint64(12), receipt.BlockNumber)
}

func TestRPCSubmitNodeError(t *testing.T) {
	srv := rpcServer(t, func(string, json.RawMessage) (any, *rpcError) {
		return nil, &rpcError{Code: -32000, Message: "nonce too low"}
	})
	defer srv.Close()

	client := NewRPCClient(srv.URL, srv.Client())
	_, err := client.Submit(context.Background(), []byte("signed"))
	require.ErrorContains(t, err, "nonce too low")
}

func TestRPCPullEvents(t *testing.T) {
	srv := rpcServer(t, func(method string, params json.RawMessage) (any, *rpcError) {
		require.Equal(t, "ledger_getEvents", method)

		var args []struct {
			Event     string `json:"event"`
			FromBlock uint64 `json:"fromBlock"`
		}
		require.NoError(t, json.Unmarshal(params, &args))
		require.Len(t, args, 1)
		require.Equal(t, "CredentialIssued", args[0].Event)
		require.Equal(t, uint64(100), args[0].FromBlock)

		return map[string]any{
			"events": []map[string]any{
				{"name": "CredentialIssued", "blockNumber": 101, "txHash": "0x1", "payload": []byte(`{}`)},
			},
			"latestBlock": 105,
		}, nil
	})
	defer srv.Close()

	client := NewRPCClient(srv.URL, srv.Client())
	batch, err := client.PullEvents(context.Background(), "CredentialIssued", 100)
	require.NoError(t, err)
	require.Len(t, batch.Events, 1)
	require.Equal(t, uint64(105), batch.LatestBlock)
	require.Equal(t, uint64(101), batch.Events[0].BlockNumber)
}
