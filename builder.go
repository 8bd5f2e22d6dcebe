package minter

import (
	"context"
	"encoding/hex"

	"github.com/pkg/errors"
)

// MintParams is everything needed to build a single-asset minting
// transaction. The minted tokens and all change go to ChangeAddress.
type MintParams struct {
	Script        *ForgeScript
	PolicyID      PolicyID
	TokenNameHex  string
	Quantity      int64
	Metadata      Metadata
	ChangeAddress string
	Network       Network
	Utxos         []Utxo
}

// TokenName validates the parameters a builder cannot work without and
// returns the raw asset name.
func (p MintParams) TokenName() (name []byte, err error) {
	if p.Script == nil {
		return nil, errors.New("minting script is required")
	}

	if p.Quantity <= 0 {
		return nil, errors.Errorf("invalid mint quantity %d", p.Quantity)
	}

	name, err = hex.DecodeString(p.TokenNameHex)
	if err != nil {
		return nil, errors.Wrap(err, "token name is not valid hex")
	}
	if len(name) > MaxAssetNameSize {
		return nil, errors.Wrapf(ErrTokenNameTooLong, "%d bytes", len(name))
	}

	if len(p.Utxos) == 0 {
		return nil, errors.WithStack(ErrNotEnoughFunds)
	}

	if _, err = DecodeAddress(p.ChangeAddress, p.Network); err != nil {
		return nil, errors.Wrap(err, "invalid change address")
	}

	return
}

type TransactionBuilder interface {
	BuildMint(ctx context.Context, params MintParams) (*Transaction, error)
}

// BuilderFactory creates a builder that reads protocol parameters and chain
// state from provider.
type BuilderFactory func(provider ChainDataProvider) TransactionBuilder
