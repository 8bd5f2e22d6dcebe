package minter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttempt_Fail(t *testing.T) {
	a := &Attempt{Status: StatusSigning, Message: MsgWaitingSignature, TxID: "stale"}
	a.fail(NewMintError(KindUserCancelled, MsgUserCancelled, nil))
	assert.Equal(t, StatusCancelled, a.Status)
	assert.Equal(t, KindUserCancelled, a.Kind)
	assert.Equal(t, MsgUserCancelled, a.Error)
	assert.Empty(t, a.Message)
	assert.Empty(t, a.TxID)

	b := &Attempt{Status: StatusBuilding}
	b.fail(errors.New("boom"))
	assert.Equal(t, StatusFailed, b.Status)
	assert.Equal(t, KindAborted, b.Kind)
	assert.Equal(t, MsgUnexpected, b.Error)

	c := &Attempt{Status: StatusSubmitting}
	c.fail(errors.Wrap(NewMintError(KindSubmitFailed, "rejected", nil), "submit"))
	assert.Equal(t, KindSubmitFailed, c.Kind)
	assert.Equal(t, "rejected", c.Error)
}

func TestAttempt_Succeed(t *testing.T) {
	a := &Attempt{Status: StatusSubmitting, Error: "old", Kind: KindNoFunds}
	a.succeed(testTxHash)
	assert.Equal(t, StatusSucceeded, a.Status)
	assert.Equal(t, KindNone, a.Kind)
	assert.Equal(t, testTxHash, a.TxID)
	assert.Empty(t, a.Error)
	assert.Equal(t, MsgMintSucceeded, a.Message)
}

func TestAttempt_JSON(t *testing.T) {
	a := Attempt{
		ID:        "a1",
		Status:    StatusFetchingWalletData,
		Kind:      KindWalletTimeout,
		Network:   NetworkPreProd,
		StartedAt: time.Unix(1700000000, 0).UTC(),
	}

	raw, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"status":"fetching_wallet_data"`)
	assert.Contains(t, string(raw), `"kind":"wallet_timeout"`)

	var decoded Attempt
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, StatusFetchingWalletData, decoded.Status)
	assert.Equal(t, KindWalletTimeout, decoded.Kind)

	assert.Error(t, json.Unmarshal([]byte(`{"status":"exploded"}`), &decoded))
}

func TestStatus_Terminal(t *testing.T) {
	for _, s := range []Status{StatusSucceeded, StatusCancelled, StatusFailed} {
		assert.True(t, s.Terminal(), s.String())
	}
	for _, s := range []Status{StatusIdle, StatusValidating, StatusFetchingWalletData, StatusBuilding, StatusSigning, StatusSubmitting} {
		assert.False(t, s.Terminal(), s.String())
	}
	assert.Equal(t, "unknown", Status(99).String())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNone, KindOf(nil))
	assert.Equal(t, KindAborted, KindOf(errors.New("plain")))
	assert.Equal(t, KindNoFunds, KindOf(errors.WithStack(NewMintError(KindNoFunds, MsgNoFunds, nil))))
}

func TestTimeouts_WithDefaults(t *testing.T) {
	assert.Equal(t, DefaultTimeouts, Timeouts{}.WithDefaults())
	assert.Equal(t, 10*time.Second, DefaultTimeouts.WalletOperation)
	assert.Equal(t, 2*time.Minute, DefaultTimeouts.Transaction)
	assert.Equal(t, 5*time.Second, DefaultTimeouts.NetworkDetection)

	custom := Timeouts{WalletOperation: time.Second}.WithDefaults()
	assert.Equal(t, time.Second, custom.WalletOperation)
	assert.Equal(t, DefaultTimeouts.Transaction, custom.Transaction)
}
