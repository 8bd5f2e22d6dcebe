package minter

import (
	"time"

	"github.com/pkg/errors"
)

type Status int

const (
	StatusIdle Status = iota
	StatusValidating
	StatusFetchingWalletData
	StatusBuilding
	StatusSigning
	StatusSubmitting
	StatusSucceeded
	StatusCancelled
	StatusFailed
)

var statusNames = map[Status]string{
	StatusIdle:               "idle",
	StatusValidating:         "validating",
	StatusFetchingWalletData: "fetching_wallet_data",
	StatusBuilding:           "building",
	StatusSigning:            "signing",
	StatusSubmitting:         "submitting",
	StatusSucceeded:          "succeeded",
	StatusCancelled:          "cancelled",
	StatusFailed:             "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return errors.Errorf("unknown status: '%s'", text)
}

func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusCancelled || s == StatusFailed
}

// Progress messages shown while an attempt runs.
const (
	MsgCheckingNetwork   = "Checking network..."
	MsgLoadingWallet     = "Loading wallet data..."
	MsgCreatingTx        = "Creating minting transaction..."
	MsgWaitingSignature  = "Waiting for transaction signature..."
	MsgSubmittingTx      = "Submitting transaction to network..."
	MsgMintSucceeded     = "NFT minted successfully."
	MsgDefaultInProgress = "Minting..."
)

// Attempt is the state of one mint invocation. Exactly one of TxID and Error
// is set once Status is terminal.
type Attempt struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"sessionId"`
	Status      Status      `json:"status"`
	Message     string      `json:"message,omitempty"`
	Error       string      `json:"error,omitempty"`
	Kind        ErrorKind   `json:"kind"`
	TxID        string      `json:"txId,omitempty"`
	PendingTxID string      `json:"pendingTxId,omitempty"`
	PolicyID    string      `json:"policyId,omitempty"`
	Network     Network     `json:"network"`
	Request     MintRequest `json:"request"`
	StartedAt   time.Time   `json:"startedAt"`
	FinishedAt  time.Time   `json:"finishedAt,omitempty"`
}

func (a *Attempt) advance(status Status, message string) {
	a.Status = status
	a.Message = message
}

func (a *Attempt) fail(err error) {
	var mintErr *MintError
	if !errors.As(err, &mintErr) {
		mintErr = NewMintError(KindAborted, MsgUnexpected, err)
	}

	a.Status = StatusFailed
	if mintErr.Kind == KindUserCancelled {
		a.Status = StatusCancelled
	}
	a.Kind = mintErr.Kind
	a.Error = mintErr.Message
	a.Message = ""
	a.TxID = ""
}

func (a *Attempt) succeed(txID string) {
	a.Status = StatusSucceeded
	a.Kind = KindNone
	a.TxID = txID
	a.Error = ""
	a.Message = MsgMintSucceeded
}

func (a *Attempt) Duration() time.Duration {
	if a.FinishedAt.IsZero() {
		return time.Since(a.StartedAt)
	}
	return a.FinishedAt.Sub(a.StartedAt)
}
