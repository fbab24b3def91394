package mwa

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"
)

// Wallet-side JSON-RPC error codes.
const (
	codeAuthorizationFailed = -1
	codeInvalidPayloads     = -2
	codeNotSigned           = -3
)

// RPCFault is a JSON-RPC error returned by the wallet. It satisfies
// walleterr.RPCError so the classifier maps it to WalletRejected.
type RPCFault struct {
	Code    int64
	Message string
}

func (e *RPCFault) Error() string {
	return fmt.Sprintf("wallet rpc error %d: %s", e.Code, e.Message)
}

// RPCCode returns the wallet's JSON-RPC error code.
func (e *RPCFault) RPCCode() int64 { return e.Code }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcErrorBody   `json:"error,omitempty"`
}

type rpcErrorBody struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

// rpcConn frames JSON-RPC 2.0 calls over the association socket. Each
// association handle owns exactly one rpcConn; calls are issued strictly in
// protocol order, so replies are matched in order too.
type rpcConn struct {
	ws     *websocket.Conn
	nextID uint64
}

func newRPCConn(ws *websocket.Conn) *rpcConn {
	return &rpcConn{ws: ws}
}

// call issues one request and decodes the matching reply into result.
// A wallet-side error surfaces as *RPCFault.
func (c *rpcConn) call(ctx context.Context, method string, params, result any) error {
	c.nextID++
	req := rpcRequest{JSONRPC: "2.0", ID: c.nextID, Method: method, Params: params}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}
	if err := c.ws.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("write %s request: %w", method, err)
	}

	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read %s response: %w", method, err)
		}

		var resp rpcResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("decode %s response: %w", method, err)
		}
		if resp.ID != req.ID {
			// Unsolicited frame (wallet-side notification); skip it.
			continue
		}

		if resp.Error != nil {
			return &RPCFault{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		if result != nil {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	}
}
