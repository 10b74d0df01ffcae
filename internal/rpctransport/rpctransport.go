// Package rpctransport provides the engine's concrete JSON-RPC transport
// to the chain, satisfying backend.RPCClient. The chain's exact program
// and account layout are out of scope for this engine; the connection
// itself is dialed with go-ethereum's rpc.Dial against a configured URL
// and wrapped in an ethclient for receipt polling.
package rpctransport

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Client dials a single JSON-RPC endpoint and exposes the generic
// call/confirm shape backend.Client needs. Everything method-specific
// (which program, which accounts) is encoded in the method name and args
// the caller passes through — this layer only owns the wire transport.
type Client struct {
	eth *ethclient.Client
	raw *gethrpc.Client
}

// Dial connects to url, keeping both the high-level ethclient (for
// receipt polling) and the raw RPC client (for arbitrary method calls)
// alive on the same underlying connection.
func Dial(url string) (*Client, error) {
	raw, err := gethrpc.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rpctransport: dial %s: %w", url, err)
	}
	return &Client{eth: ethclient.NewClient(raw), raw: raw}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.raw.Close()
}

// Call issues one raw JSON-RPC method call and returns the decoded
// result. Every backend.Client operation (add_liquidity, reserves, ...)
// maps to a specific method name here; the mapping itself lives in the
// concrete AMM program's ABI, which is out of scope for this engine.
func (c *Client) Call(ctx context.Context, method string, args ...any) (any, error) {
	var result any
	if err := c.raw.CallContext(ctx, &result, method, args...); err != nil {
		return nil, err
	}
	return result, nil
}

// Confirm polls for a transaction receipt until it lands or ctx expires.
// It returns the receipt status as the program log, and ok=true only when
// the receipt reports success; a reverted transaction comes back as
// ok=false, which backend.Client classifies as a BackendExecError.
func (c *Client) Confirm(ctx context.Context, signature string) (string, bool, error) {
	if len(signature) != 66 {
		return "", false, fmt.Errorf("rpctransport: malformed signature %q", signature)
	}
	hash := common.HexToHash(signature)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-ticker.C:
			receipt, err := c.eth.TransactionReceipt(ctx, hash)
			if err != nil {
				continue
			}
			return fmt.Sprintf("status=%d", receipt.Status), receipt.Status == gethtypes.ReceiptStatusSuccessful, nil
		}
	}
}
