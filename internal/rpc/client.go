// Package rpc is the HTTP JSON-RPC query client: transaction history,
// transaction fetch, confirmed block range and vote account listing.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"vote-monitoring/internal/chain"
)

// Client issues JSON-RPC calls against a single node endpoint.
type Client struct {
	url  string
	http *http.Client
}

// NewClient returns a client for the given RPC URL.
func NewClient(url string) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return errors.Wrapf(err, "marshal %s request", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "build %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s", method)
	}
	defer resp.Body.Close()

	var payload rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return errors.Wrapf(err, "decode %s response", method)
	}
	if payload.Error != nil {
		return errors.Errorf("%s: rpc error %d: %s", method, payload.Error.Code, payload.Error.Message)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(payload.Result, result); err != nil {
		return errors.Wrapf(err, "decode %s result", method)
	}
	return nil
}

// SignatureInfo is one historical transaction descriptor for an account.
type SignatureInfo struct {
	Signature string          `json:"signature"`
	Slot      chain.Slot      `json:"slot"`
	Err       json.RawMessage `json:"err"` // null when the transaction succeeded
}

// Succeeded reports whether the transaction executed without error.
func (si SignatureInfo) Succeeded() bool {
	return len(si.Err) == 0 || string(si.Err) == "null"
}

// GetSignaturesForAddress lists up to limit transaction descriptors for
// account, newest first, optionally strictly before the given signature.
func (c *Client) GetSignaturesForAddress(ctx context.Context, account chain.Pubkey, limit int, before string) ([]SignatureInfo, error) {
	opts := map[string]interface{}{
		"limit":      limit,
		"commitment": "confirmed",
	}
	if before != "" {
		opts["before"] = before
	}
	var infos []SignatureInfo
	if err := c.call(ctx, "getSignaturesForAddress", []interface{}{account.String(), opts}, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// Instruction is one compiled instruction in a transaction message.
type Instruction struct {
	ProgramIDIndex int    `json:"programIdIndex"`
	Accounts       []int  `json:"accounts"`
	Data           string `json:"data"` // base58
}

// Message is a compiled transaction message.
type Message struct {
	AccountKeys  []string      `json:"accountKeys"`
	Instructions []Instruction `json:"instructions"`
}

// ProgramID resolves the program address of ix through the account key table.
func (m Message) ProgramID(ix Instruction) (string, bool) {
	if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(m.AccountKeys) {
		return "", false
	}
	return m.AccountKeys[ix.ProgramIDIndex], true
}

// Transaction is a decoded transaction.
type Transaction struct {
	Signatures []string `json:"signatures"`
	Message    Message  `json:"message"`
}

// TransactionDetail is a confirmed transaction with its landing slot.
type TransactionDetail struct {
	Slot        chain.Slot  `json:"slot"`
	Transaction Transaction `json:"transaction"`
}

// GetTransaction fetches and decodes the transaction for signature.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*TransactionDetail, error) {
	opts := map[string]interface{}{
		"encoding":   "json",
		"commitment": "confirmed",
	}
	var detail TransactionDetail
	if err := c.call(ctx, "getTransaction", []interface{}{signature, opts}, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// GetBlocks returns the confirmed slots in [start, end] inclusive.
func (c *Client) GetBlocks(ctx context.Context, start, end chain.Slot) ([]chain.Slot, error) {
	var slots []chain.Slot
	if err := c.call(ctx, "getBlocks", []interface{}{start, end}, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// VoteAccount pairs a vote account with the node identity running it.
type VoteAccount struct {
	VotePubkey     string `json:"votePubkey"`
	NodePubkey     string `json:"nodePubkey"`
	ActivatedStake uint64 `json:"activatedStake"`
	Commission     int    `json:"commission"`
}

// VoteAccountsResult splits vote accounts by liveness.
type VoteAccountsResult struct {
	Current    []VoteAccount `json:"current"`
	Delinquent []VoteAccount `json:"delinquent"`
}

// GetVoteAccounts lists the cluster's vote accounts.
func (c *Client) GetVoteAccounts(ctx context.Context) (*VoteAccountsResult, error) {
	var result VoteAccountsResult
	if err := c.call(ctx, "getVoteAccounts", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
