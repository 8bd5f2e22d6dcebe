package minter

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotEnoughFunds        = fmt.Errorf("not enough funds")
	ErrInvalidPublicKeyType  = fmt.Errorf("invalid public key type")
	ErrInvalidSigningKey     = fmt.Errorf("invalid signing key")
	ErrNetworkInvalid        = fmt.Errorf("invalid network")
	ErrNoPaymentKeyHash      = fmt.Errorf("address has no payment key hash")
	ErrByronAddress          = fmt.Errorf("byron addresses are not supported")
	ErrTokenNameTooLong      = fmt.Errorf("token name longer than 32 bytes")
	ErrMintInProgress        = fmt.Errorf("a mint attempt is already in progress")
	ErrSessionNotFound       = fmt.Errorf("session not found")
	ErrAttemptNotFound       = fmt.Errorf("attempt not found")
	ErrTransactionNotFound   = fmt.Errorf("transaction not found")
	ErrNoPendingTransaction  = fmt.Errorf("attempt has no pending transaction")
	ErrProviderRequestFailed = fmt.Errorf("provider request failed")
	ErrNotFound              = fmt.Errorf("not found")
	ErrRpcFailed             = fmt.Errorf("rpc request failed")
	ErrBridgeNotAllowed      = fmt.Errorf("wallet bridge url is not allowed")
)

// AllErrors lists the sentinels that survive a round trip through the http
// api by their message.
var AllErrors = []error{
	ErrNotEnoughFunds,
	ErrInvalidSigningKey,
	ErrNetworkInvalid,
	ErrNoPaymentKeyHash,
	ErrByronAddress,
	ErrTokenNameTooLong,
	ErrMintInProgress,
	ErrSessionNotFound,
	ErrAttemptNotFound,
	ErrTransactionNotFound,
	ErrNoPendingTransaction,
	ErrProviderRequestFailed,
	ErrNotFound,
	ErrBridgeNotAllowed,
}

// ErrorKind classifies the terminal failure of a mint attempt.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindNoWallet
	KindInvalidRequest
	KindNetworkMismatch
	KindWalletTimeout
	KindNoAddresses
	KindNoFunds
	KindNoChangeAddress
	KindBuildFailed
	KindUserCancelled
	KindSignFailed
	KindSubmitFailed
	KindTimeout
	KindNetworkDetection
	KindMissingCredential
	KindAborted
	KindWalletFailed
)

var errorKindNames = map[ErrorKind]string{
	KindNone:              "none",
	KindNoWallet:          "no_wallet",
	KindInvalidRequest:    "invalid_request",
	KindNetworkMismatch:   "network_mismatch",
	KindWalletTimeout:     "wallet_timeout",
	KindNoAddresses:       "no_addresses",
	KindNoFunds:           "no_funds",
	KindNoChangeAddress:   "no_change_address",
	KindBuildFailed:       "build_failed",
	KindUserCancelled:     "user_cancelled",
	KindSignFailed:        "sign_failed",
	KindSubmitFailed:      "submit_failed",
	KindTimeout:           "timeout",
	KindNetworkDetection:  "network_detection",
	KindMissingCredential: "missing_credential",
	KindAborted:           "aborted",
	KindWalletFailed:      "wallet_failed",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return "unknown"
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ErrorKind) UnmarshalText(text []byte) error {
	for kind, name := range errorKindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return errors.Errorf("unknown error kind: '%s'", text)
}

const (
	MsgNoWallet          = "Please connect your wallet first."
	MsgNoAddresses       = "No used addresses found in the wallet."
	MsgNoFunds           = "No UTXOs found. Please make sure you have enough ADA in your wallet."
	MsgNoChangeAddress   = "Failed to get change address."
	MsgUserCancelled     = "Transaction signing was cancelled by the user."
	MsgSignFailed        = "Failed to sign transaction."
	MsgSubmitFailed      = "Failed to submit transaction."
	MsgBuildFailed       = "Failed to create minting transaction."
	MsgWalletTimeout     = "Operation timed out"
	MsgTimeout           = "Transaction timed out. Please try again."
	MsgNetworkDetection  = "Network detection failed. Please check your wallet connection."
	MsgMissingCredential = "Missing Blockfrost API key for the selected network. Please configure environment variables."
	MsgAborted           = "Minting was aborted."
	MsgWalletFailed      = "Failed to load wallet data."
	MsgUnexpected        = "An unexpected error occurred. Please try again."
)

// MintError is the single user-visible outcome of a failed attempt. Message is
// safe to display; Err keeps the underlying cause for logs.
type MintError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func NewMintError(kind ErrorKind, message string, cause error) *MintError {
	return &MintError{Kind: kind, Message: message, Err: cause}
}

func (e *MintError) Error() string {
	return e.Message
}

func (e *MintError) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind carried by err, KindNone for nil and
// KindAborted for anything that is not a MintError.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var mintErr *MintError
	if errors.As(err, &mintErr) {
		return mintErr.Kind
	}
	return KindAborted
}
