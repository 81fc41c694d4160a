// Package lnnode calls a local Lightning node's JSON-RPC interface over a
// Unix-domain socket, analogous to Core Lightning's lightning-rpc pipe.
package lnnode

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/zappool/paycalc/internal/ledger"
	"github.com/zappool/paycalc/internal/outcome"
)

// SocketPath returns the conventional RPC socket path for the given
// node home directory.
func SocketPath(homeDir, user string) (string, error) {
	p := filepath.Join(homeDir, ".lightning", user, "lightning-rpc")
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("lightning RPC socket not found at %q (node not running or not accessible): %w", p, err)
	}
	return p, nil
}

type rpcRequest struct {
	JSONRpc string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client is a minimal RPC client over the node's Unix socket.
type Client struct {
	socketPath string
}

// NewClient dials nothing yet; each call opens and closes its own
// connection, matching the one-shot request/response nature of CLN's rpc
// pipe protocol.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

func (c *Client) call(method string, params any, out any) error {
	conn, err := net.DialTimeout("unix", c.socketPath, 10*time.Second)
	if err != nil {
		return fmt.Errorf("dial lightning rpc socket: %w", err)
	}
	defer conn.Close()

	req := rpcRequest{JSONRpc: "2.0", ID: 1, Method: method, Params: params}
	enc := json.NewEncoder(conn)
	if err := enc.Encode(req); err != nil {
		return fmt.Errorf("encode rpc request: %w", err)
	}

	dec := json.NewDecoder(bufio.NewReader(conn))
	var resp rpcResponse
	if err := dec.Decode(&resp); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("rpc error: %s", resp.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("unmarshal rpc result: %w", err)
		}
	}
	return nil
}

// GetInfo calls getinfo.
func (c *Client) GetInfo() (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.call("getinfo", struct{}{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// payResponse mirrors CLN's pay RPC response fields used here.
type payResponse struct {
	Status          string `json:"status"`
	AmountMsat      uint64 `json:"amount_msat"`
	AmountSentMsat  uint64 `json:"amount_sent_msat"`
	PaymentHash     string `json:"payment_hash"`
	PaymentPreimage string `json:"payment_preimage"`
}

// PayResult is the outcome of a successful node payment.
type PayResult struct {
	PaidAmountMsat int64
	PaidFeeMsat    int64
	PayRef         string
}

// Pay calls pay(bolt11, label) and classifies the result: any status
// other than COMPLETE, or a transport failure, is non-final (the node
// may retry on its own; our caller's retry cadence governs re-attempts).
func Pay(c *Client, bolt11, label string) outcome.Outcome[PayResult] {
	var resp payResponse
	err := c.call("pay", map[string]any{"bolt11": bolt11, "label": label}, &resp)
	if err != nil {
		return outcome.NonFinal[PayResult](ledger.ErrLnBolt11InvoiceNonfinalFailure, err.Error())
	}
	if resp.Status != "complete" && resp.Status != "COMPLETE" {
		return outcome.NonFinal[PayResult](ledger.ErrLnBolt11InvoiceNonfinalFailure,
			fmt.Sprintf("non-complete pay status %q", resp.Status))
	}

	fee := int64(resp.AmountSentMsat) - int64(resp.AmountMsat)
	if fee < 0 {
		fee = 0
	}
	return outcome.Success(PayResult{
		PaidAmountMsat: int64(resp.AmountSentMsat),
		PaidFeeMsat:    fee,
		PayRef:         fmt.Sprintf("%s %s", resp.PaymentPreimage, resp.PaymentHash),
	})
}
