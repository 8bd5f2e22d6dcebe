package minter

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Minter drives mint attempts from request to a terminal outcome. Every
// started attempt ends Succeeded, Cancelled or Failed with a displayable
// message.
type Minter struct {
	BuilderFactory BuilderFactory
	Journal        Journal
	Metrics        *Metrics
	Timeouts       Timeouts

	// Sessions, when set, is told about attempts settled by Reconcile.
	Sessions *Sessions

	mu      sync.Mutex
	running map[string]bool
}

func NewMinter(builders BuilderFactory, journal Journal, metrics *Metrics, timeouts Timeouts) *Minter {
	return &Minter{
		BuilderFactory: builders,
		Journal:        journal,
		Metrics:        metrics,
		Timeouts:       timeouts.WithDefaults(),
		running:        map[string]bool{},
	}
}

// Mint runs one attempt on s and blocks until it finishes. The only error
// returned is ErrMintInProgress; failures of the attempt itself are reported
// on the returned Attempt.
func (m *Minter) Mint(ctx context.Context, s *Session, req MintRequest) (*Attempt, error) {
	_, done, err := m.Start(ctx, s, req)
	if err != nil {
		return nil, err
	}
	attempt := <-done
	return &attempt, nil
}

// Start reserves s for a new attempt and runs it in the background. done
// receives the final attempt once.
func (m *Minter) Start(ctx context.Context, s *Session, req MintRequest) (attempt Attempt, done <-chan Attempt, err error) {
	attempt, mc, err := s.beginAttempt(req)
	if err != nil {
		return
	}

	m.track(attempt.ID, true)
	m.Metrics.attemptStarted()
	m.record(ctx, &attempt)

	result := make(chan Attempt, 1)
	go func() {
		result <- m.run(ctx, s, attempt.ID, mc, req)
	}()

	return attempt, result, nil
}

func (m *Minter) run(ctx context.Context, s *Session, id string, mc mintContext, req MintRequest) Attempt {
	defer m.track(id, false)

	timeouts := m.Timeouts.WithDefaults()

	txID, err := m.execute(ctx, s, mc, req, timeouts)
	if err != nil {
		if settled := m.settledTxID(ctx, id); settled != "" {
			log.Info().Msgf("attempt %s was settled as %s while running", id, settled)
			txID, err = settled, nil
		}
	}

	final := s.finishAttempt(func(a *Attempt) {
		if err != nil {
			a.fail(err)
			return
		}
		a.succeed(txID)
	})

	if err != nil {
		log.Warn().Msgf("session %s attempt %s %s: %+v", s.ID, final.ID, final.Status, err)
	} else {
		log.Info().Msgf("session %s attempt %s minted %s in %s", s.ID, final.ID, final.TxID, final.Duration())
	}

	m.record(ctx, &final)
	m.Metrics.attemptFinished(&final)
	return final
}

func (m *Minter) execute(ctx context.Context, s *Session, mc mintContext, req MintRequest, timeouts Timeouts) (txID string, err error) {
	advance := func(status Status, message string) {
		s.update(func(a *Attempt) { a.advance(status, message) })
	}

	// Validating

	advance(StatusValidating, MsgCheckingNetwork)

	if mc.wallet == nil {
		return "", NewMintError(KindNoWallet, MsgNoWallet, nil)
	}

	if err = req.Validate(); err != nil {
		return "", NewMintError(KindInvalidRequest, invalidRequestMessage(err), err)
	}

	quantity, _ := req.Amount()

	target := mc.network
	if req.Network != "" && req.Network != mc.network {
		return "", NewMintError(
			KindNetworkMismatch,
			fmt.Sprintf("Session is set to %s but trying to mint on %s. Please select the network first.", mc.network, req.Network),
			nil)
	}

	if mc.bindErr != nil {
		var mintErr *MintError
		if errors.As(mc.bindErr, &mintErr) {
			return "", mintErr
		}
		return "", NewMintError(KindMissingCredential, MsgMissingCredential, mc.bindErr)
	}
	if mc.binding == nil || mc.binding.Network != target {
		return "", NewMintError(KindMissingCredential, MsgMissingCredential,
			errors.Errorf("no provider bound for %s", target))
	}

	wallet := newWalletAdapter(mc.wallet, m.Metrics)

	networkID, err := wallet.NetworkId(ctx, timeouts.NetworkDetection)
	if err != nil {
		return "", m.classify(ctx, nil, err, KindNetworkDetection, MsgNetworkDetection)
	}

	if walletNetwork := NetworkFromWalletId(networkID); walletNetwork != target {
		return "", NewMintError(
			KindNetworkMismatch,
			fmt.Sprintf("Wallet is connected to %s but trying to mint on %s. Please switch your wallet network.", walletNetworkLabel(networkID), target),
			nil)
	}

	// FetchingWalletData

	advance(StatusFetchingWalletData, MsgLoadingWallet)

	var (
		addresses     []string
		utxos         []Utxo
		changeAddress string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		addresses, err = wallet.UsedAddresses(gctx, timeouts.WalletOperation)
		return
	})
	g.Go(func() (err error) {
		utxos, err = wallet.Utxos(gctx, timeouts.WalletOperation)
		return
	})
	g.Go(func() (err error) {
		changeAddress, err = wallet.ChangeAddress(gctx, timeouts.WalletOperation)
		return
	})
	if err = g.Wait(); err != nil {
		return "", m.classify(ctx, nil, err, KindWalletFailed, MsgWalletFailed)
	}

	if len(addresses) == 0 {
		return "", NewMintError(KindNoAddresses, MsgNoAddresses, nil)
	}
	if len(utxos) == 0 {
		return "", NewMintError(KindNoFunds, MsgNoFunds, nil)
	}
	if strings.TrimSpace(changeAddress) == "" {
		return "", NewMintError(KindNoChangeAddress, MsgNoChangeAddress, nil)
	}

	// Building, Signing and Submitting share one deadline.

	txCtx, cancel := context.WithTimeout(ctx, timeouts.Transaction)
	defer cancel()

	advance(StatusBuilding, MsgCreatingTx)

	script, err := NewForgeScript(changeAddress, target)
	if err != nil {
		return "", NewMintError(KindBuildFailed, MsgBuildFailed, errors.Wrap(err, "unable to derive minting policy"))
	}
	policyID := script.PolicyID()

	s.update(func(a *Attempt) { a.PolicyID = policyID.String() })

	if m.BuilderFactory == nil {
		return "", NewMintError(KindBuildFailed, MsgBuildFailed, errors.New("no transaction builder configured"))
	}
	builder := m.BuilderFactory(mc.binding.Provider)
	unsigned, err := race(txCtx, func(ctx context.Context) (*Transaction, error) {
		return builder.BuildMint(ctx, MintParams{
			Script:        script,
			PolicyID:      policyID,
			TokenNameHex:  TokenNameHex(req.Metadata.Name),
			Quantity:      quantity,
			Metadata:      NewNFTMetadata(policyID, req.Metadata),
			ChangeAddress: changeAddress,
			Network:       target,
			Utxos:         utxos,
		})
	})
	if err != nil {
		return "", m.classify(ctx, txCtx, err, KindBuildFailed, MsgBuildFailed)
	}

	// Signing

	advance(StatusSigning, MsgWaitingSignature)

	signed, err := wallet.SignTx(txCtx, 0, unsigned)
	if err != nil {
		return "", m.classify(ctx, txCtx, err, KindSignFailed, MsgSignFailed)
	}
	if signed == nil {
		return "", NewMintError(KindSignFailed, MsgSignFailed, errors.New("wallet returned no transaction"))
	}

	// Submitting

	pending := signed.ID()
	pendingSnapshot := s.update(func(a *Attempt) {
		a.PendingTxID = pending
		a.advance(StatusSubmitting, MsgSubmittingTx)
	})
	m.record(ctx, &pendingSnapshot)

	txID, err = wallet.SubmitTx(txCtx, 0, signed)
	if err != nil {
		return "", m.classify(ctx, txCtx, err, KindSubmitFailed, MsgSubmitFailed)
	}

	txID = strings.ToLower(strings.TrimSpace(txID))
	if txID == "" {
		txID = pending
	} else if txID != pending {
		log.Warn().Msgf("wallet returned tx id %s, expected %s", txID, pending)
	}

	return txID, nil
}

// classify maps a failure during one phase to the attempt's MintError. txCtx
// is the whole transaction context, nil before building starts.
func (m *Minter) classify(ctx, txCtx context.Context, err error, kind ErrorKind, fallback string) *MintError {
	var mintErr *MintError
	if errors.As(err, &mintErr) {
		return mintErr
	}

	if ctx.Err() != nil {
		return NewMintError(KindAborted, MsgAborted, err)
	}

	if txCtx != nil && errors.Is(txCtx.Err(), context.DeadlineExceeded) {
		return NewMintError(KindTimeout, MsgTimeout, err)
	}

	var walletErr *WalletError
	if !errors.As(err, &walletErr) {
		return NewMintError(kind, fallback, err)
	}

	switch walletErr.Kind {
	case WalletErrorTimeout:
		return NewMintError(KindWalletTimeout, MsgWalletTimeout, err)
	case WalletErrorDeclined:
		if kind == KindSignFailed {
			return NewMintError(KindUserCancelled, MsgUserCancelled, err)
		}
	}

	if kind == KindNetworkDetection {
		return NewMintError(kind, fallback, err)
	}

	message := walletErr.Message()
	if message == "" {
		message = fallback
	}
	return NewMintError(kind, message, err)
}

func (m *Minter) track(id string, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running == nil {
		m.running = map[string]bool{}
	}
	if running {
		m.running[id] = true
	} else {
		delete(m.running, id)
	}
}

func (m *Minter) isRunning(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[id]
}

// settledTxID returns the tx id of an attempt the journal already holds as
// succeeded, or "" when there is none.
func (m *Minter) settledTxID(ctx context.Context, id string) string {
	if m.Journal == nil {
		return ""
	}
	journaled, err := m.Journal.GetAttempt(context.WithoutCancel(ctx), id)
	if err != nil || journaled.Status != StatusSucceeded {
		return ""
	}
	return journaled.TxID
}

func (m *Minter) record(ctx context.Context, attempt *Attempt) {
	if m.Journal == nil {
		return
	}
	if err := m.Journal.RecordAttempt(context.WithoutCancel(ctx), attempt); err != nil {
		log.Error().Msgf("failed to record attempt %s: %+v", attempt.ID, err)
	}
}

// ProviderSource returns a chain data provider for a network.
type ProviderSource interface {
	Provider(network Network) (ChainDataProvider, error)
}

// Reconcile checks whether the pending transaction of a journaled attempt
// reached the chain. Attempts whose submit response was lost are marked
// Succeeded when their transaction is found. An attempt still running in this
// minter is refused with ErrMintInProgress.
func (m *Minter) Reconcile(ctx context.Context, providers ProviderSource, attemptID string) (attempt *Attempt, onChain bool, err error) {
	if m.Journal == nil {
		return nil, false, errors.Wrap(ErrAttemptNotFound, "no journal configured")
	}

	if m.isRunning(attemptID) {
		return nil, false, errors.Wrapf(ErrMintInProgress, "attempt %s", attemptID)
	}

	attempt, err = m.Journal.GetAttempt(ctx, attemptID)
	if err != nil {
		return
	}

	if attempt.Status == StatusSucceeded && attempt.TxID != "" {
		return attempt, true, nil
	}

	if attempt.PendingTxID == "" {
		return attempt, false, errors.Wrapf(ErrNoPendingTransaction, "attempt %s", attemptID)
	}

	provider, err := providers.Provider(attempt.Network)
	if err != nil {
		return
	}

	onChain, err = provider.TxExists(ctx, attempt.PendingTxID)
	if err != nil {
		err = errors.Wrapf(err, "unable to look up tx %s", attempt.PendingTxID)
		return
	}

	if !onChain {
		return
	}

	log.Info().Msgf("attempt %s: pending tx %s found on chain", attempt.ID, attempt.PendingTxID)
	attempt.succeed(attempt.PendingTxID)
	m.record(ctx, attempt)

	if m.Sessions != nil {
		if s, err2 := m.Sessions.Get(attempt.SessionID); err2 == nil {
			s.settle(attempt)
		}
	}

	return
}

func walletNetworkLabel(networkID int) string {
	if networkID == WalletNetworkIdMainNet {
		return string(NetworkMainNet)
	}
	return "testnet"
}

func invalidRequestMessage(err error) string {
	message := err.Error()
	if message == "" {
		return MsgUnexpected
	}
	return "Invalid mint request: " + message + "."
}
