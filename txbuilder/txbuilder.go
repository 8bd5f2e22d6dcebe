// Package txbuilder builds minting transactions with apollo.
package txbuilder

import (
	"context"

	"github.com/Salvionied/apollo"
	"github.com/Salvionied/apollo/serialization/Address"
	"github.com/Salvionied/apollo/serialization/Metadata"
	"github.com/Salvionied/apollo/serialization/NativeScript"
	"github.com/Salvionied/apollo/serialization/UTxO"
	"github.com/Salvionied/apollo/txBuilding/Backend/Base"
	minter "github.com/alexdcox/cardano-minter"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// minOutputLovelace is sent along with the minted asset. apollo raises it
// when the output needs more.
const minOutputLovelace = 2_000_000

var log = minter.Log()

var encoder, _ = cbor.CoreDetEncOptions().EncMode()

// ChainContextSource is a provider that can hand apollo a chain context.
type ChainContextSource interface {
	ChainContext() (Base.ChainContext, error)
}

var _ minter.BuilderFactory = New

func New(provider minter.ChainDataProvider) minter.TransactionBuilder {
	return &Builder{Provider: provider}
}

// Builder selects inputs and balances with apollo. Fees come from the
// provider's chain context when it has one and from apollo's fixed parameters
// otherwise.
type Builder struct {
	Provider minter.ChainDataProvider
}

var _ minter.TransactionBuilder = &Builder{}

func (b *Builder) BuildMint(ctx context.Context, params minter.MintParams) (tx *minter.Transaction, err error) {
	tokenName, err := params.TokenName()
	if err != nil {
		return
	}

	pp, err := b.Provider.ProtocolParams(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load protocol parameters")
	}

	var total uint64
	for _, utxo := range params.Utxos {
		total += utxo.Amount
	}
	if total < minOutputLovelace+pp.MinFeeB {
		return nil, errors.Wrapf(minter.ErrNotEnoughFunds, "%d lovelace cannot cover fee and min ada", total)
	}

	changeAddress, err := Address.DecodeAddress(params.ChangeAddress)
	if err != nil {
		return nil, errors.Wrap(err, "invalid change address")
	}

	utxos, err := loadUtxos(params.Utxos)
	if err != nil {
		return
	}

	script := NativeScript.NativeScript{}
	if err = cbor.Unmarshal(params.Script.Cbor(), &script); err != nil {
		return nil, errors.Wrap(err, "unable to decode minting script")
	}

	metadata, err := shelleyMetadata(params.Metadata)
	if err != nil {
		return
	}

	cc, err := b.chainContext()
	if err != nil {
		return
	}

	if err = ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	unit := apollo.NewUnit(params.PolicyID.String(), string(tokenName), int(params.Quantity))

	builder := apollo.New(cc).
		AddLoadedUTxOs(utxos...).
		AttachNativeScript(script).
		MintAssets(unit).
		PayToAddress(changeAddress, minOutputLovelace, unit).
		SetChangeAddress(changeAddress)
	if metadata != nil {
		builder = builder.SetShelleyMetadata(*metadata)
	}

	built, err := builder.Complete()
	if err != nil {
		return nil, errors.Wrap(err, "unable to balance mint transaction")
	}

	raw, err := cbor.Marshal(built.GetTx())
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode mint transaction")
	}

	if pp.MaxTxSize > 0 && uint64(len(raw)) > pp.MaxTxSize {
		return nil, errors.Errorf("transaction size %d exceeds max %d", len(raw), pp.MaxTxSize)
	}

	tx, err = minter.DecodeTransaction(raw)
	if err != nil {
		return
	}

	log.Debug().Msgf("built mint tx %s from %d utxo(s)", tx.ID(), len(utxos))
	return
}

func (b *Builder) chainContext() (Base.ChainContext, error) {
	if source, ok := b.Provider.(ChainContextSource); ok {
		cc, err := source.ChainContext()
		if err != nil {
			return nil, errors.Wrap(err, "unable to open chain context")
		}
		return cc, nil
	}

	backend := apollo.NewEmptyBackend()
	return &backend, nil
}

func loadUtxos(utxos []minter.Utxo) (loaded []UTxO.UTxO, err error) {
	for _, utxo := range utxos {
		raw, err2 := utxo.UnspentOutput()
		if err2 != nil {
			return nil, err2
		}

		item := UTxO.UTxO{}
		if err2 = cbor.Unmarshal(raw, &item); err2 != nil {
			return nil, errors.Wrapf(err2, "unable to load utxo %s", utxo)
		}
		loaded = append(loaded, item)
	}
	return
}

// shelleyMetadata hands apollo each label's value as pre-encoded cbor.
func shelleyMetadata(metadata minter.Metadata) (*Metadata.ShelleyMaryMetadata, error) {
	if len(metadata) == 0 {
		return nil, nil
	}

	labels := Metadata.Metadata{}
	for label, value := range metadata {
		if label != minter.MetadataLabelNFT {
			return nil, errors.Errorf("unsupported metadata label %d", label)
		}

		raw, err := encoder.Marshal(value)
		if err != nil {
			return nil, errors.Wrap(err, "unable to encode transaction metadata")
		}
		labels[minter.MetadataLabelNFT] = cbor.RawMessage(raw)
	}

	return &Metadata.ShelleyMaryMetadata{Metadata: labels}, nil
}
