package minter

import (
	"context"

	"github.com/pkg/errors"
)

type ProtocolParams struct {
	MinFeeA          uint64 `json:"minFeeA"`
	MinFeeB          uint64 `json:"minFeeB"`
	MaxTxSize        uint64 `json:"maxTxSize"`
	CoinsPerUtxoByte uint64 `json:"coinsPerUtxoByte"`
}

// ChainDataProvider supplies on-chain data to the transaction builder and,
// for wallets without their own node access, submission.
type ChainDataProvider interface {
	ProtocolParams(ctx context.Context) (*ProtocolParams, error)
	Utxos(ctx context.Context, address string) ([]Utxo, error)
	SubmitTx(ctx context.Context, tx []byte) (txID string, err error)
	TxExists(ctx context.Context, txID string) (bool, error)
}

// ProviderFactory creates a provider for a network and its credential.
type ProviderFactory func(network Network, credential string) (ChainDataProvider, error)

// ProviderBinding is a provider bound to one network. It is replaced, never
// mutated, when the network changes.
type ProviderBinding struct {
	Network    Network
	Credential string
	Provider   ChainDataProvider
}

// Credentials holds one provider access key per network.
type Credentials map[Network]string

func (c Credentials) For(network Network) (credential string, err error) {
	if err = network.Validate(); err != nil {
		return
	}

	credential = c[network]
	if credential == "" {
		err = NewMintError(
			KindMissingCredential,
			MsgMissingCredential,
			errors.Errorf("no provider credential configured for %s", network))
	}
	return
}

func NewProviderBinding(network Network, credentials Credentials, factory ProviderFactory) (binding *ProviderBinding, err error) {
	credential, err := credentials.For(network)
	if err != nil {
		return
	}

	provider, err := factory(network, credential)
	if err != nil {
		err = errors.Wrapf(err, "unable to create provider for %s", network)
		return
	}

	binding = &ProviderBinding{
		Network:    network,
		Credential: credential,
		Provider:   provider,
	}
	return
}
