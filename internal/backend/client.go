package backend

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jpillora/backoff"

	"lp-agent/internal/errs"
)

// RPCClient is the out-of-scope JSON-RPC client to the chain. Client wraps
// it with the retry/backoff and receipt-confirmation discipline the
// backend contract requires; the RPC transport itself is a thin wrapper
// around go-ethereum's raw JSON-RPC client.
type RPCClient interface {
	Call(ctx context.Context, method string, args ...any) (any, error)
	Confirm(ctx context.Context, signature string) (programLog string, ok bool, err error)
}

// Client is the engine's concrete stand-in for the execution backend: it
// retries NetworkTransient failures with exponential backoff and classifies
// every RPC failure into the error taxonomy before it reaches a worker.
type Client struct {
	rpc        RPCClient
	maxRetries int
	timeout    time.Duration
}

// NewClient wraps rpc with retry/backoff and a per-call timeout.
func NewClient(rpc RPCClient, maxRetries int, timeout time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{rpc: rpc, maxRetries: maxRetries, timeout: timeout}
}

// withRetry retries fn while it returns a NetworkTransient error, using
// jpillora/backoff's exponential-with-jitter shape.
func (c *Client) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := &backoff.Backoff{
		Min:    200 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}

		var transient *errs.NetworkTransient
		if !isTransient(err, &transient) {
			return err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return &errs.NetworkTransient{Op: op, Err: lastErr}
}

func isTransient(err error, target **errs.NetworkTransient) bool {
	t, ok := err.(*errs.NetworkTransient)
	if ok {
		*target = t
	}
	return ok
}

// AddLiquidity submits an add-liquidity transaction and waits for
// confirmation, surfacing the intermediate signature even on failure per
// the contract's no-silent-partial-success requirement.
func (c *Client) AddLiquidity(ctx context.Context, poolID string, slippagePct float64) (Result, string, error) {
	var sig string
	var lpMint string
	err := c.withRetry(ctx, "add_liquidity", func(callCtx context.Context) error {
		raw, err := c.rpc.Call(callCtx, "addLiquidity", poolID, slippagePct)
		if err != nil {
			return classify("add_liquidity", err)
		}
		resp, ok := raw.(map[string]any)
		if !ok {
			return &errs.NetworkPermanent{Op: "add_liquidity", Err: fmt.Errorf("malformed response")}
		}
		sig, _ = resp["signature"].(string)
		lpMint, _ = resp["lp_mint"].(string)
		if lpMint == "" {
			if recovered, lerr := lpMintFromTransferLog(resp["transfer_log"]); lerr == nil {
				lpMint = recovered
			}
		}

		programLog, confirmed, cerr := c.rpc.Confirm(callCtx, sig)
		if cerr != nil {
			return classify("add_liquidity confirm", cerr)
		}
		if !confirmed {
			return &errs.BackendExecError{Op: "add_liquidity", Signatures: []string{sig}, ProgramLog: programLog, Err: fmt.Errorf("transaction failed on chain")}
		}
		return nil
	})
	if err != nil {
		return Result{Success: false, Signatures: []string{sig}}, lpMint, err
	}
	return Result{Success: true, Signatures: []string{sig}}, lpMint, nil
}

// RemoveLiquidity sells 100% of the on-chain LP balance for poolID — the
// contract forbids passing a caller-supplied amount.
func (c *Client) RemoveLiquidity(ctx context.Context, poolID string, slippagePct float64) (Result, error) {
	var sig string
	err := c.withRetry(ctx, "remove_liquidity", func(callCtx context.Context) error {
		raw, err := c.rpc.Call(callCtx, "removeLiquidity", poolID, slippagePct)
		if err != nil {
			return classify("remove_liquidity", err)
		}
		resp, _ := raw.(map[string]any)
		sig, _ = resp["signature"].(string)

		programLog, confirmed, cerr := c.rpc.Confirm(callCtx, sig)
		if cerr != nil {
			return classify("remove_liquidity confirm", cerr)
		}
		if !confirmed {
			return &errs.BackendExecError{Op: "remove_liquidity", Signatures: []string{sig}, ProgramLog: programLog, Err: fmt.Errorf("transaction failed on chain")}
		}
		return nil
	})
	return Result{Success: err == nil, Signatures: []string{sig}}, err
}

// Swap executes a buy or sell. amountIn == nil means "sell all."
func (c *Client) Swap(ctx context.Context, poolID string, amountIn *big.Int, slippagePct float64, dir Direction) (Result, error) {
	var sig string
	amt := "0"
	if amountIn != nil {
		amt = amountIn.String()
	}
	err := c.withRetry(ctx, "swap", func(callCtx context.Context) error {
		raw, err := c.rpc.Call(callCtx, "swap", poolID, amt, slippagePct, string(dir))
		if err != nil {
			return classify("swap", err)
		}
		resp, _ := raw.(map[string]any)
		sig, _ = resp["signature"].(string)

		programLog, confirmed, cerr := c.rpc.Confirm(callCtx, sig)
		if cerr != nil {
			return classify("swap confirm", cerr)
		}
		if !confirmed {
			return &errs.BackendExecError{Op: "swap", Signatures: []string{sig}, ProgramLog: programLog, Err: fmt.Errorf("transaction failed on chain")}
		}
		return nil
	})
	return Result{Success: err == nil, Signatures: []string{sig}}, err
}

// LPValue values a single position.
func (c *Client) LPValue(ctx context.Context, poolID, lpMint string) (LPValue, error) {
	batch, err := c.LPValueBatch(ctx, []PoolLPKey{{PoolID: poolID, LPMint: lpMint}})
	if err != nil {
		return LPValue{}, err
	}
	v, ok := batch[poolID]
	if !ok {
		return LPValue{}, &errs.NetworkPermanent{Op: "lp_value", Err: fmt.Errorf("pool %s missing from batch response", poolID)}
	}
	return v, nil
}

// LPValueBatch implements the engine's O(1)-per-tick RPC discipline: N
// positions collapse into at most two bulk reads regardless of N.
func (c *Client) LPValueBatch(ctx context.Context, keys []PoolLPKey) (map[string]LPValue, error) {
	if len(keys) == 0 {
		return map[string]LPValue{}, nil
	}
	out := make(map[string]LPValue, len(keys))
	err := c.withRetry(ctx, "lp_value_batch", func(callCtx context.Context) error {
		raw, err := c.rpc.Call(callCtx, "lpValueBatch", keys)
		if err != nil {
			return classify("lp_value_batch", err)
		}
		rows, ok := raw.(map[string]map[string]any)
		if !ok {
			return &errs.NetworkPermanent{Op: "lp_value_batch", Err: fmt.Errorf("malformed batch response")}
		}
		for poolID, row := range rows {
			valueSOL := ratFromString(row["value_sol"])
			priceRatio := ratFromString(row["price_ratio"])
			lpRaw := bigIntFromString(row["lp_balance_raw"])
			out[poolID] = LPValue{ValueSOL: valueSOL, PriceRatio: priceRatio, LPBalanceRaw: lpRaw}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Balance returns the raw integer balance of tokenMint.
func (c *Client) Balance(ctx context.Context, tokenMint string) (*big.Int, error) {
	var balance *big.Int
	err := c.withRetry(ctx, "balance", func(callCtx context.Context) error {
		raw, err := c.rpc.Call(callCtx, "balance", tokenMint)
		if err != nil {
			return classify("balance", err)
		}
		balance = bigIntFromString(raw)
		return nil
	})
	return balance, err
}

// ListTokens lists every non-zero token holding in the wallet.
func (c *Client) ListTokens(ctx context.Context) (map[string]*big.Int, error) {
	out := make(map[string]*big.Int)
	err := c.withRetry(ctx, "list_tokens", func(callCtx context.Context) error {
		raw, err := c.rpc.Call(callCtx, "listTokens")
		if err != nil {
			return classify("list_tokens", err)
		}
		rows, ok := raw.(map[string]any)
		if !ok {
			return &errs.NetworkPermanent{Op: "list_tokens", Err: fmt.Errorf("malformed response")}
		}
		for mint, bal := range rows {
			out[mint] = bigIntFromString(bal)
		}
		return nil
	})
	return out, err
}

// CloseEmptyAccounts asks the backend to close every empty token account
// whose mint is not in keep, in a single closeEmptyAccounts RPC call. This
// client does not split the work into per-transaction batches.
func (c *Client) CloseEmptyAccounts(ctx context.Context, keep []string) (int, *big.Int, error) {
	var closed int
	var rent *big.Int = big.NewInt(0)
	err := c.withRetry(ctx, "close_empty_accounts", func(callCtx context.Context) error {
		raw, err := c.rpc.Call(callCtx, "closeEmptyAccounts", keep)
		if err != nil {
			return classify("close_empty_accounts", err)
		}
		resp, _ := raw.(map[string]any)
		if n, ok := resp["closed"].(int); ok {
			closed = n
		}
		if r, ok := resp["rent_reclaimed"]; ok {
			rent = bigIntFromString(r)
		}
		return nil
	})
	return closed, rent, err
}

// UnwrapNative unwraps any native-wrapped balance back to native asset.
func (c *Client) UnwrapNative(ctx context.Context) (*big.Int, error) {
	var amt *big.Int
	err := c.withRetry(ctx, "unwrap_native", func(callCtx context.Context) error {
		raw, err := c.rpc.Call(callCtx, "unwrapNative")
		if err != nil {
			return classify("unwrap_native", err)
		}
		amt = bigIntFromString(raw)
		return nil
	})
	return amt, err
}

// TopLPHolders returns the top `limit` holders of lpMint and the total
// supply, used by the safety screen's LP-lock layer.
func (c *Client) TopLPHolders(ctx context.Context, lpMint string, limit int) ([]LPHolder, *big.Int, error) {
	var holders []LPHolder
	var supply *big.Int
	err := c.withRetry(ctx, "top_lp_holders", func(callCtx context.Context) error {
		raw, err := c.rpc.Call(callCtx, "topLPHolders", lpMint, limit)
		if err != nil {
			return classify("top_lp_holders", err)
		}
		resp, ok := raw.(map[string]any)
		if !ok {
			return &errs.NetworkPermanent{Op: "top_lp_holders", Err: fmt.Errorf("malformed response")}
		}
		supply = bigIntFromString(resp["total_supply"])
		rows, _ := resp["holders"].([]map[string]any)
		holders = make([]LPHolder, 0, len(rows))
		for _, row := range rows {
			addrStr, _ := row["address"].(string)
			if strings.HasPrefix(addrStr, "0x") && !common.IsHexAddress(addrStr) {
				// Looks like it was meant to be an EVM-shaped bridged/wrapped
				// registry entry but doesn't parse as one -- drop the row
				// rather than classify a corrupt address as UNLOCKED.
				log.Printf("top_lp_holders: dropping malformed holder address %q", addrStr)
				continue
			}
			holders = append(holders, LPHolder{Address: addrStr, Balance: bigIntFromString(row["balance"])})
		}
		return nil
	})
	return holders, supply, err
}

// Reserves fetches the raw vault/open-orders/pnl-offset figures behind the
// effective-reserve formula.
func (c *Client) Reserves(ctx context.Context, poolID string) (RawReserves, error) {
	var rr RawReserves
	err := c.withRetry(ctx, "reserves", func(callCtx context.Context) error {
		raw, err := c.rpc.Call(callCtx, "reserves", poolID)
		if err != nil {
			return classify("reserves", err)
		}
		resp, ok := raw.(map[string]any)
		if !ok {
			return &errs.NetworkPermanent{Op: "reserves", Err: fmt.Errorf("malformed response")}
		}
		rr = RawReserves{
			VaultBase:        bigIntFromString(resp["vault_base"]),
			VaultQuote:       bigIntFromString(resp["vault_quote"]),
			OpenOrdersBase:   bigIntFromString(resp["open_orders_base"]),
			OpenOrdersQuote:  bigIntFromString(resp["open_orders_quote"]),
			NeedTakePnlBase:  bigIntFromString(resp["need_take_pnl_base"]),
			NeedTakePnlQuote: bigIntFromString(resp["need_take_pnl_quote"]),
			LPCirculating:    bigIntFromString(resp["lp_circulating"]),
		}
		if bd, ok := resp["base_decimals"].(int); ok {
			rr.BaseDecimals = bd
		}
		if qd, ok := resp["quote_decimals"].(int); ok {
			rr.QuoteDecimals = qd
		}
		return nil
	})
	return rr, err
}

// classify turns a raw RPC error into the engine's taxonomy. Real
// transports (HTTP status codes, socket errors) would inspect err's
// concrete type here; this default conservatively treats unrecognized
// errors as transient rather than giving up on the first odd error.
func classify(op string, err error) error {
	switch err.(type) {
	case *errs.NetworkTransient, *errs.NetworkPermanent, *errs.BackendExecError:
		return err
	default:
		return &errs.NetworkTransient{Op: op, Err: err}
	}
}

func bigIntFromString(v any) *big.Int {
	s, _ := v.(string)
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return n
}

func ratFromString(v any) *big.Rat {
	s, _ := v.(string)
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return new(big.Rat)
	}
	return r
}

// transferEventABI describes a standard Transfer(address,address,uint256)
// event. Some backend implementations (e.g. ones bridging through an
// EVM-compatible side-chain for LP-token accounting) echo a raw transfer
// log instead of a pre-parsed lp_mint; parseLPMintFromLog recovers the
// minted token's identity from such a log by decoding the Transfer event
// out of the transaction's receipt.
var transferEventABI = mustParseTransferABI()

func mustParseTransferABI() abi.Arguments {
	addrTy, _ := abi.NewType("address", "", nil)
	amtTy, _ := abi.NewType("uint256", "", nil)
	return abi.Arguments{
		{Name: "from", Type: addrTy, Indexed: true},
		{Name: "to", Type: addrTy, Indexed: true},
		{Name: "value", Type: amtTy},
	}
}

// parseLPMintFromLog decodes the "to" address of a Transfer event log,
// returning it as the minted LP token's identity. topics[1] and topics[2]
// are the indexed from/to addresses; data carries the non-indexed value,
// unpacked here only to validate the log is well-formed before trusting
// its indexed fields.
func parseLPMintFromLog(topics []common.Hash, data []byte) (string, error) {
	if len(topics) < 3 {
		return "", fmt.Errorf("transfer log missing indexed topics")
	}
	if _, err := transferEventABI.NonIndexed().UnpackValues(data); err != nil {
		return "", fmt.Errorf("decode transfer value: %w", err)
	}
	to := common.HexToAddress(topics[2].Hex())
	return to.Hex(), nil
}

// lpMintFromTransferLog pulls the raw "transfer_log" field some backend
// responses substitute for a direct lp_mint — {"topics": [...], "data":
// "0x..."} — and recovers the lp_mint through parseLPMintFromLog.
func lpMintFromTransferLog(raw any) (string, error) {
	logMap, ok := raw.(map[string]any)
	if !ok {
		return "", fmt.Errorf("no transfer log present")
	}
	topicsRaw, _ := logMap["topics"].([]any)
	topics := make([]common.Hash, 0, len(topicsRaw))
	for _, t := range topicsRaw {
		s, ok := t.(string)
		if !ok {
			continue
		}
		topics = append(topics, common.HexToHash(s))
	}
	dataStr, _ := logMap["data"].(string)
	return parseLPMintFromLog(topics, common.FromHex(dataStr))
}
