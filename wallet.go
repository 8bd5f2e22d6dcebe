package minter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// WalletConnector is the capability set of a connected wallet. Every call may
// block indefinitely. Implementations should return once ctx is done; callers
// stop waiting at the deadline either way, so a call that ignores ctx keeps
// its goroutine until it returns on its own.
type WalletConnector interface {
	NetworkId(ctx context.Context) (int, error)
	UsedAddresses(ctx context.Context) ([]string, error)
	Utxos(ctx context.Context) ([]Utxo, error)
	ChangeAddress(ctx context.Context) (string, error)
	SignTx(ctx context.Context, tx *Transaction) (*Transaction, error)
	SubmitTx(ctx context.Context, tx *Transaction) (string, error)
}

type WalletOp string

const (
	WalletOpNetworkId     WalletOp = "getNetworkId"
	WalletOpUsedAddresses WalletOp = "getUsedAddresses"
	WalletOpUtxos         WalletOp = "getUtxos"
	WalletOpChangeAddress WalletOp = "getChangeAddress"
	WalletOpSignTx        WalletOp = "signTx"
	WalletOpSubmitTx      WalletOp = "submitTx"
)

type WalletErrorKind int

const (
	WalletErrorFailed WalletErrorKind = iota
	WalletErrorTimeout
	WalletErrorDeclined
)

func (k WalletErrorKind) String() string {
	switch k {
	case WalletErrorTimeout:
		return "timeout"
	case WalletErrorDeclined:
		return "declined"
	default:
		return "failed"
	}
}

// WalletError is the classified failure of one wallet call.
type WalletError struct {
	Op   WalletOp
	Kind WalletErrorKind
	Err  error
}

func (e *WalletError) Error() string {
	return fmt.Sprintf("wallet %s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *WalletError) Unwrap() error {
	return e.Err
}

// Message is the wallet's own text for the failure.
func (e *WalletError) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

var declinedKeywords = []string{"declined", "denied", "rejected", "cancelled", "canceled"}

// ClassifyWalletError turns a raw connector failure into a WalletError.
// Connectors that already return a WalletError keep their classification.
func ClassifyWalletError(op WalletOp, err error) *WalletError {
	if err == nil {
		return nil
	}

	var walletErr *WalletError
	if errors.As(err, &walletErr) {
		if walletErr.Op == "" {
			walletErr.Op = op
		}
		return walletErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &WalletError{Op: op, Kind: WalletErrorTimeout, Err: err}
	}

	if errors.Is(err, context.Canceled) {
		return &WalletError{Op: op, Kind: WalletErrorFailed, Err: err}
	}

	message := strings.ToLower(err.Error())
	for _, keyword := range declinedKeywords {
		if strings.Contains(message, keyword) {
			return &WalletError{Op: op, Kind: WalletErrorDeclined, Err: err}
		}
	}

	return &WalletError{Op: op, Kind: WalletErrorFailed, Err: err}
}

// walletAdapter bounds and classifies every call into a WalletConnector.
type walletAdapter struct {
	wallet  WalletConnector
	metrics *Metrics
}

func newWalletAdapter(wallet WalletConnector, metrics *Metrics) *walletAdapter {
	return &walletAdapter{wallet: wallet, metrics: metrics}
}

type callResult[T any] struct {
	value T
	err   error
}

// race runs fn under ctx and returns when fn does or ctx is done, whichever
// is first. A late fn result is dropped.
func race[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (value T, err error) {
	done := make(chan callResult[T], 1)
	go func() {
		v, e := fn(ctx)
		done <- callResult[T]{value: v, err: e}
	}()

	select {
	case result := <-done:
		return result.value, result.err
	case <-ctx.Done():
		return value, errors.WithStack(ctx.Err())
	}
}

func callWallet[T any](ctx context.Context, a *walletAdapter, op WalletOp, timeout time.Duration, fn func(ctx context.Context) (T, error)) (value T, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	value, err = race(ctx, fn)
	walletErr := ClassifyWalletError(op, err)

	a.metrics.observeWalletCall(op, walletErr, time.Since(started))

	if walletErr != nil {
		log.Debug().Msgf("%s after %s", walletErr, time.Since(started))
		return value, walletErr
	}
	return value, nil
}

func (a *walletAdapter) NetworkId(ctx context.Context, timeout time.Duration) (int, error) {
	return callWallet(ctx, a, WalletOpNetworkId, timeout, a.wallet.NetworkId)
}

func (a *walletAdapter) UsedAddresses(ctx context.Context, timeout time.Duration) ([]string, error) {
	return callWallet(ctx, a, WalletOpUsedAddresses, timeout, a.wallet.UsedAddresses)
}

func (a *walletAdapter) Utxos(ctx context.Context, timeout time.Duration) ([]Utxo, error) {
	return callWallet(ctx, a, WalletOpUtxos, timeout, a.wallet.Utxos)
}

func (a *walletAdapter) ChangeAddress(ctx context.Context, timeout time.Duration) (string, error) {
	return callWallet(ctx, a, WalletOpChangeAddress, timeout, a.wallet.ChangeAddress)
}

func (a *walletAdapter) SignTx(ctx context.Context, timeout time.Duration, tx *Transaction) (*Transaction, error) {
	return callWallet(ctx, a, WalletOpSignTx, timeout, func(ctx context.Context) (*Transaction, error) {
		return a.wallet.SignTx(ctx, tx.Clone())
	})
}

func (a *walletAdapter) SubmitTx(ctx context.Context, timeout time.Duration, tx *Transaction) (string, error) {
	return callWallet(ctx, a, WalletOpSubmitTx, timeout, func(ctx context.Context) (string, error) {
		return a.wallet.SubmitTx(ctx, tx)
	})
}
