package minter

import (
	"encoding/hex"
	"fmt"

	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// Utxo is a spendable output owned by the wallet. Assets maps policy id hex
// to asset name hex to quantity.
type Utxo struct {
	TxHash  string                       `json:"txHash"`
	Index   uint32                       `json:"index"`
	Address string                       `json:"address"`
	Amount  uint64                       `json:"amount"`
	Assets  map[string]map[string]uint64 `json:"assets,omitempty"`
}

func (u Utxo) Input() (input TxInput, err error) {
	hash, err := hex.DecodeString(u.TxHash)
	if err != nil || len(hash) != 32 {
		err = errors.Errorf("invalid utxo tx hash '%s'", u.TxHash)
		return
	}
	input = TxInput{TxHash: hash, Index: u.Index}
	return
}

func (u Utxo) MultiAsset() (assets MultiAsset, err error) {
	assets = MultiAsset{}
	for policyHex, names := range u.Assets {
		policy, err2 := hex.DecodeString(policyHex)
		if err2 != nil || len(policy) != KeyHashSize {
			err = errors.Errorf("invalid policy id '%s' in utxo %s#%d", policyHex, u.TxHash, u.Index)
			return
		}
		for nameHex, quantity := range names {
			name, err2 := hex.DecodeString(nameHex)
			if err2 != nil {
				err = errors.Errorf("invalid asset name '%s' in utxo %s#%d", nameHex, u.TxHash, u.Index)
				return
			}
			if _, ok := assets[cbor.ByteString(policy)]; !ok {
				assets[cbor.ByteString(policy)] = map[cbor.ByteString]uint64{}
			}
			assets[cbor.ByteString(policy)][cbor.ByteString(name)] += quantity
		}
	}
	return
}

func (u Utxo) String() string {
	return fmt.Sprintf("%s#%d", u.TxHash, u.Index)
}

// UnspentOutput encodes u as a cbor TransactionUnspentOutput, the
// [input, output] pair CIP-30 getUtxos returns.
func (u Utxo) UnspentOutput() (raw []byte, err error) {
	input, err := u.Input()
	if err != nil {
		return
	}

	assets, err := u.MultiAsset()
	if err != nil {
		return
	}

	address, err := common.NewAddress(u.Address)
	if err != nil {
		err = errors.Wrapf(err, "invalid utxo address '%s'", u.Address)
		return
	}

	addressBytes, err := address.Bytes()
	if err != nil {
		err = errors.Wrapf(err, "invalid utxo address '%s'", u.Address)
		return
	}

	raw, err = cborEncoder.Marshal([]any{
		input,
		TxOutput{Address: addressBytes, Amount: Value{Coin: u.Amount, Assets: assets}},
	})
	if err != nil {
		err = errors.Wrapf(err, "unable to encode utxo %s", u)
	}
	return
}

// DecodeUnspentOutput decodes a cbor TransactionUnspentOutput. Both legacy
// and post-alonzo outputs are accepted.
func DecodeUnspentOutput(raw []byte) (utxo Utxo, err error) {
	var pair []cbor.RawMessage
	if err = cborDecoder.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
		err = errors.Errorf("utxo is not an [input, output] pair: %x", raw)
		return
	}

	input := TxInput{}
	if err = cborDecoder.Unmarshal(pair[0], &input); err != nil {
		err = errors.Wrap(err, "unable to decode utxo input")
		return
	}

	output := TxOutput{}
	if err = cborDecoder.Unmarshal(pair[1], &output); err != nil {
		err = errors.Wrap(err, "unable to decode utxo output")
		return
	}

	if len(output.Address) == 0 {
		err = errors.New("utxo has no address")
		return
	}

	address, err := common.NewAddressFromBytes(output.Address)
	if err != nil {
		err = errors.Wrap(err, "invalid utxo address")
		return
	}

	utxo = Utxo{
		TxHash:  hex.EncodeToString(input.TxHash),
		Index:   input.Index,
		Address: address.String(),
		Amount:  output.Amount.Coin,
	}

	if len(output.Amount.Assets) > 0 {
		utxo.Assets = map[string]map[string]uint64{}
		for policy, names := range output.Amount.Assets {
			policyHex := hex.EncodeToString([]byte(policy))
			utxo.Assets[policyHex] = map[string]uint64{}
			for name, quantity := range names {
				utxo.Assets[policyHex][hex.EncodeToString([]byte(name))] = quantity
			}
		}
	}

	return
}

func DecodeUnspentOutputHex(h string) (utxo Utxo, err error) {
	raw, err := hex.DecodeString(h)
	if err != nil {
		err = errors.Wrap(err, "utxo is not valid hex")
		return
	}
	return DecodeUnspentOutput(raw)
}
