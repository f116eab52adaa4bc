// internal/blockchain/solbc/client.go
package solbc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// ErrAccountNotFound is returned when the RPC node has no such account.
var ErrAccountNotFound = errors.New("account not found")

// AccountSnapshot is an account as fetched from a cluster.
type AccountSnapshot struct {
	Address solana.PublicKey
	Owner   solana.PublicKey
	Data    []byte
	Slot    uint64
}

// Client is a thin read-only adapter over the solana-go RPC client, used to
// mirror external accounts such as price feeds into the local ledger.
type Client struct {
	rpc     *rpc.Client
	logger  *zap.Logger
	retries uint
	delay   time.Duration
}

// NewClient creates a client for rpcURL. retries bounds the attempts of
// FetchAccount.
func NewClient(rpcURL string, retries int, logger *zap.Logger) *Client {
	if retries <= 0 {
		retries = 1
	}
	return &Client{
		rpc:     rpc.New(rpcURL),
		logger:  logger.Named("solbc-client"),
		retries: uint(retries),
		delay:   200 * time.Millisecond,
	}
}

// GetAccountInfo fetches a single account with base64 encoding.
func (c *Client) GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	result, err := c.rpc.GetAccountInfoWithOpts(ctx, pubkey, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, pubkey)
		}
		c.logger.Debug("GetAccountInfo error",
			zap.String("pubkey", pubkey.String()),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

// FetchAccount reads pubkey, retrying transport failures with exponential
// backoff. A missing account is not retried.
func (c *Client) FetchAccount(ctx context.Context, pubkey solana.PublicKey) (*AccountSnapshot, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.delay
	policy.MaxInterval = c.delay * 10

	notify := func(err error, d time.Duration) {
		c.logger.Info("Retrying account fetch",
			zap.String("pubkey", pubkey.String()),
			zap.Duration("backoff", d),
			zap.Error(err))
	}

	operation := func() (*AccountSnapshot, error) {
		result, err := c.GetAccountInfo(ctx, pubkey)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		snap, err := snapshotFromResult(pubkey, result)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return snap, nil
	}

	snap, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.retries),
		backoff.WithNotify(notify))
	if err != nil {
		c.logger.Error("Failed to fetch account",
			zap.String("pubkey", pubkey.String()),
			zap.Error(err))
		return nil, err
	}
	return snap, nil
}

func snapshotFromResult(pubkey solana.PublicKey, result *rpc.GetAccountInfoResult) (*AccountSnapshot, error) {
	if result == nil || result.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, pubkey)
	}
	snap := &AccountSnapshot{
		Address: pubkey,
		Owner:   result.Value.Owner,
		Slot:    result.Context.Slot,
	}
	if result.Value.Data != nil {
		snap.Data = result.Value.Data.GetBinary()
	}
	return snap, nil
}
