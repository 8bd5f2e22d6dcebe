package minter

import (
	"context"

	"github.com/pkg/errors"
)

// NetworkResolver keeps a session's network in step with its wallet and
// rebinds the chain data provider whenever that network changes.
type NetworkResolver struct {
	Credentials Credentials
	Factory     ProviderFactory
	Timeouts    Timeouts
	Metrics     *Metrics
}

func NewNetworkResolver(credentials Credentials, factory ProviderFactory, timeouts Timeouts) *NetworkResolver {
	return &NetworkResolver{
		Credentials: credentials,
		Factory:     factory,
		Timeouts:    timeouts.WithDefaults(),
	}
}

// NewSession returns a disconnected session bound to the default network.
func (r *NetworkResolver) NewSession() *Session {
	s := NewSession()
	s.mu.Lock()
	r.bind(s, s.network)
	s.mu.Unlock()
	return s
}

// Connect attaches wallet to the session and follows the wallet's network.
// When the network cannot be detected the wallet stays attached, the previous
// network is kept and the session notice reports the failure.
func (r *NetworkResolver) Connect(ctx context.Context, s *Session, wallet WalletConnector) (network Network, err error) {
	if wallet == nil {
		return s.Network(), errors.New("wallet is required")
	}

	s.setWallet(wallet)

	adapter := newWalletAdapter(wallet, r.Metrics)
	id, err := adapter.NetworkId(ctx, r.Timeouts.WithDefaults().NetworkDetection)
	if err != nil {
		log.Warn().Msgf("session %s: network detection failed: %v", s.ID, err)
		s.setNotice(MsgNetworkDetection)
		return s.Network(), NewMintError(KindNetworkDetection, MsgNetworkDetection, err)
	}

	network = NetworkFromWalletId(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.wallet != wallet {
		// Replaced or disconnected while detecting.
		return s.network, nil
	}

	detected := network
	s.walletNetwork = &detected
	if s.notice == MsgNetworkDetection {
		s.notice = ""
	}

	if network != s.network || s.binding == nil {
		log.Info().Msgf("session %s: wallet is on %s", s.ID, network)
		r.bind(s, network)
	}

	return s.network, nil
}

// Disconnect detaches the wallet. The selected network and binding are kept.
func (r *NetworkResolver) Disconnect(s *Session) {
	s.setWallet(nil)
}

// SelectNetwork changes the session network, with or without a connected
// wallet, and rebinds the provider.
func (r *NetworkResolver) SelectNetwork(s *Session, network Network) (err error) {
	if err = network.Validate(); err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if network == s.network && s.binding != nil && s.bindErr == nil {
		return
	}

	r.bind(s, network)
	return s.bindErr
}

// bind must be called with s.mu held.
func (r *NetworkResolver) bind(s *Session, network Network) {
	s.network = network

	binding, err := NewProviderBinding(network, r.Credentials, r.Factory)
	if err != nil {
		log.Error().Msgf("session %s: unable to bind provider for %s: %v", s.ID, network, err)
		s.binding = nil
		s.bindErr = err

		var mintErr *MintError
		if errors.As(err, &mintErr) {
			s.notice = mintErr.Message
		} else {
			s.notice = MsgUnexpected
		}
		return
	}

	if s.bindErr != nil && s.notice != MsgNetworkDetection {
		s.notice = ""
	}
	s.binding = binding
	s.bindErr = nil
}

// Provider binds a fresh provider for network, independent of any session.
func (r *NetworkResolver) Provider(network Network) (ChainDataProvider, error) {
	binding, err := NewProviderBinding(network, r.Credentials, r.Factory)
	if err != nil {
		return nil, err
	}
	return binding.Provider, nil
}

var _ ProviderSource = &NetworkResolver{}
