// Package rpc implements chainclient.Client against a live Gnosis Chain
// JSON-RPC endpoint via go-ethereum's ethclient, following the same
// transport-error classification pattern the teacher uses for its own
// outbound network calls (wrap everything that looks transient as
// errs.KindTransport, everything else passes through unclassified and is
// therefore treated as fatal by the retry policy).
package rpc

import (
	"context"
	"errors"
	"math/big"
	"net"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"swarm-indexer/internal/chainclient"
	"swarm-indexer/internal/errs"
	swarmtypes "swarm-indexer/internal/types"
)

// Client is a chainclient.Client backed by a single ethclient connection.
type Client struct {
	eth *ethclient.Client

	priceABI   abi.ABI
	balanceABI abi.ABI
}

// Dial connects to the JSON-RPC endpoint at url. url may be http(s):// or
// ws(s):// per go-ethereum's rpc.DialContext convention.
func Dial(ctx context.Context, url string) (*Client, error) {
	rc, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, classify(err)
	}
	priceABI, err := abi.JSON(strings.NewReader(priceOracleABIJSON))
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, err, "parse price oracle abi")
	}
	balanceABI, err := abi.JSON(strings.NewReader(postageStampABIJSON))
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, err, "parse postage stamp abi")
	}
	return &Client{eth: ethclient.NewClient(rc), priceABI: priceABI, balanceABI: balanceABI}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() { c.eth.Close() }

func (c *Client) BlockNumber(ctx context.Context) (swarmtypes.BlockNumber, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, classify(err)
	}
	return swarmtypes.BlockNumber(n), nil
}

func (c *Client) BlockTimestamp(ctx context.Context, block swarmtypes.BlockNumber) (time.Time, error) {
	h, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(uint64(block)))
	if err != nil {
		return time.Time{}, classify(err)
	}
	return time.Unix(int64(h.Time), 0).UTC(), nil
}

func (c *Client) Logs(ctx context.Context, address swarmtypes.Address, from, to swarmtypes.BlockNumber) ([]chainclient.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(uint64(from)),
		ToBlock:   new(big.Int).SetUint64(uint64(to)),
		Addresses: []common.Address{address.Common()},
	}
	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]chainclient.Log, len(logs))
	for i, l := range logs {
		out[i] = fromGethLog(l)
	}
	return out, nil
}

func fromGethLog(l types.Log) chainclient.Log {
	return chainclient.Log{
		Address:     l.Address,
		Topics:      l.Topics,
		Data:        l.Data,
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
		LogIndex:    uint(l.Index),
	}
}

func (c *Client) Transaction(ctx context.Context, hash common.Hash) (chainclient.Transaction, error) {
	tx, _, err := c.eth.TransactionByHash(ctx, hash)
	if err != nil {
		return chainclient.Transaction{}, classify(err)
	}

	var from common.Address
	signer := types.LatestSignerForChainID(tx.ChainId())
	if sender, serr := types.Sender(signer, tx); serr == nil {
		from = sender
	}

	return chainclient.Transaction{
		From:       from,
		To:         tx.To(),
		Value:      tx.Value(),
		GasPrice:   tx.GasPrice(),
		Input:      tx.Data(),
		IsCreation: tx.To() == nil,
	}, nil
}

func (c *Client) Code(ctx context.Context, address common.Address) ([]byte, error) {
	code, err := c.eth.CodeAt(ctx, address, nil)
	if err != nil {
		return nil, classify(err)
	}
	return code, nil
}

func (c *Client) CurrentPrice(ctx context.Context, oracle swarmtypes.Address) (swarmtypes.BigUnsigned, error) {
	price, err := c.callUint256(ctx, c.priceABI, oracle.Common(), "currentPrice")
	if err != nil {
		return swarmtypes.BigUnsigned{}, err
	}
	return swarmtypes.FromBigInt(price), nil
}

func (c *Client) RemainingBalance(ctx context.Context, postageStamp swarmtypes.Address, batchID common.Hash) (swarmtypes.BigUnsigned, error) {
	balance, err := c.callUint256(ctx, c.balanceABI, postageStamp.Common(), "remainingBalance", batchID)
	if err != nil {
		return swarmtypes.BigUnsigned{}, err
	}
	return swarmtypes.FromBigInt(balance), nil
}

func (c *Client) callUint256(ctx context.Context, contractABI abi.ABI, to common.Address, method string, args ...any) (*big.Int, error) {
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, err, "pack "+method+" call")
	}
	msg := ethereum.CallMsg{To: &to, Data: input}
	out, err := c.eth.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, classify(err)
	}
	values, err := contractABI.Unpack(method, out)
	if err != nil {
		return nil, errs.Wrap(errs.KindDecode, err, "unpack "+method+" result")
	}
	if len(values) != 1 {
		return nil, errs.New(errs.KindDecode, method+" returned unexpected arity")
	}
	result, ok := values[0].(*big.Int)
	if !ok {
		return nil, errs.New(errs.KindDecode, method+" returned non-numeric result")
	}
	return result, nil
}

// priceOracleABIJSON and postageStampABIJSON are the minimal view-function
// fragments the indexer calls; the rest of each contract's surface is
// irrelevant to analytics and is intentionally not modelled.
const priceOracleABIJSON = `[{"constant":true,"inputs":[],"name":"currentPrice","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

const postageStampABIJSON = `[{"constant":true,"inputs":[{"name":"batchId","type":"bytes32"}],"name":"remainingBalance","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

// classify maps a raw transport failure to errs.KindTransport when it looks
// retryable (timeouts, connection resets, rate limiting, gateway errors) and
// leaves everything else unwrapped so the retry policy treats it as fatal.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errs.Wrap(errs.KindTransport, err, "network error")
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"rate limit", "too many requests", "timeout", "timed out",
		"connection reset", "connection refused", "eof",
		"bad gateway", "gateway timeout", "service unavailable",
		"exceed", "temporarily unavailable",
	} {
		if strings.Contains(msg, needle) {
			return errs.Wrap(errs.KindTransport, err, "transient rpc failure")
		}
	}
	return err
}
