package minter

import (
	"encoding/hex"

	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

var cborEncoder, _ = cbor.CoreDetEncOptions().EncMode()

var cborDecoder, _ = cbor.DecOptions{
	UTF8: cbor.UTF8DecodeInvalid,
}.DecMode()

// MultiAsset maps policy id -> asset name -> quantity, both keys raw bytes.
type MultiAsset map[cbor.ByteString]map[cbor.ByteString]uint64

// Add merges other into m.
func (m MultiAsset) Add(other MultiAsset) {
	for policy, assets := range other {
		if _, ok := m[policy]; !ok {
			m[policy] = map[cbor.ByteString]uint64{}
		}
		for name, quantity := range assets {
			m[policy][name] += quantity
		}
	}
}

type MintAssets map[cbor.ByteString]map[cbor.ByteString]int64

// Value is either a bare coin amount or [coin, multiasset].
type Value struct {
	Coin   uint64
	Assets MultiAsset
}

type valueWithAssets struct {
	_      struct{} `cbor:",toarray"`
	Coin   uint64
	Assets MultiAsset
}

func (v Value) MarshalCBOR() ([]byte, error) {
	if len(v.Assets) == 0 {
		return cborEncoder.Marshal(v.Coin)
	}
	return cborEncoder.Marshal(valueWithAssets{Coin: v.Coin, Assets: v.Assets})
}

func (v *Value) UnmarshalCBOR(data []byte) error {
	var coin uint64
	if err := cborDecoder.Unmarshal(data, &coin); err == nil {
		*v = Value{Coin: coin}
		return nil
	}

	tmp := valueWithAssets{}
	if err := cborDecoder.Unmarshal(data, &tmp); err != nil {
		return errors.Wrap(err, "unable to decode value")
	}
	*v = Value{Coin: tmp.Coin, Assets: tmp.Assets}
	return nil
}

type TxInput struct {
	_      struct{} `cbor:",toarray"`
	TxHash []byte
	Index  uint32
}

// TxOutput encodes in the legacy [address, amount] form and decodes from
// either that or the post-alonzo map.
type TxOutput struct {
	_       struct{} `cbor:",toarray"`
	Address []byte
	Amount  Value
}

type postAlonzoOutput struct {
	Address []byte `cbor:"0,keyasint"`
	Amount  Value  `cbor:"1,keyasint"`
}

func (o *TxOutput) UnmarshalCBOR(data []byte) (err error) {
	var legacy []cbor.RawMessage
	if err = cborDecoder.Unmarshal(data, &legacy); err == nil {
		if len(legacy) < 2 {
			return errors.Errorf("output has %d fields", len(legacy))
		}
		*o = TxOutput{}
		if err = cborDecoder.Unmarshal(legacy[0], &o.Address); err != nil {
			return errors.Wrap(err, "unable to decode output address")
		}
		return errors.Wrap(cborDecoder.Unmarshal(legacy[1], &o.Amount), "unable to decode output amount")
	}

	current := postAlonzoOutput{}
	if err = cborDecoder.Unmarshal(data, &current); err != nil {
		return errors.Wrap(err, "unable to decode output")
	}
	*o = TxOutput{Address: current.Address, Amount: current.Amount}
	return nil
}

type TxBody struct {
	Inputs            []TxInput  `cbor:"0,keyasint"`
	Outputs           []TxOutput `cbor:"1,keyasint"`
	Fee               uint64     `cbor:"2,keyasint"`
	Ttl               uint64     `cbor:"3,keyasint,omitempty"`
	AuxiliaryDataHash []byte     `cbor:"7,keyasint,omitempty"`
	Mint              MintAssets `cbor:"9,keyasint,omitempty"`
}

type VKeyWitness struct {
	_         struct{} `cbor:",toarray"`
	VKey      []byte
	Signature []byte
}

type WitnessSet struct {
	VKeys         []VKeyWitness     `cbor:"0,keyasint,omitempty"`
	NativeScripts []cbor.RawMessage `cbor:"1,keyasint,omitempty"`
}

// AddVKeys appends witnesses, skipping keys that already signed.
func (w *WitnessSet) AddVKeys(witnesses ...VKeyWitness) {
	for _, witness := range witnesses {
		duplicate := false
		for _, existing := range w.VKeys {
			if string(existing.VKey) == string(witness.VKey) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			w.VKeys = append(w.VKeys, witness)
		}
	}
}

// Transaction is a full conway-era transaction. Body is kept as the exact
// bytes that were hashed so re-encoding never changes the transaction id.
type Transaction struct {
	_             struct{} `cbor:",toarray"`
	Body          cbor.RawMessage
	Witnesses     WitnessSet
	Valid         bool
	AuxiliaryData cbor.RawMessage
}

func NewTransaction(body *TxBody, witnesses WitnessSet, aux cbor.RawMessage) (tx *Transaction, err error) {
	rawBody, err := cborEncoder.Marshal(body)
	if err != nil {
		err = errors.Wrap(err, "unable to encode transaction body")
		return
	}

	tx = &Transaction{
		Body:          rawBody,
		Witnesses:     witnesses,
		Valid:         true,
		AuxiliaryData: aux,
	}
	return
}

func DecodeTransaction(raw []byte) (tx *Transaction, err error) {
	tx = &Transaction{}
	if err = cborDecoder.Unmarshal(raw, tx); err != nil {
		err = errors.Wrap(err, "unable to decode transaction")
		tx = nil
	}
	return
}

func DecodeTransactionHex(h string) (tx *Transaction, err error) {
	raw, err := hex.DecodeString(h)
	if err != nil {
		err = errors.Wrap(err, "transaction is not valid hex")
		return
	}
	return DecodeTransaction(raw)
}

func (t *Transaction) DecodeBody() (body *TxBody, err error) {
	body = &TxBody{}
	if err = cborDecoder.Unmarshal(t.Body, body); err != nil {
		err = errors.Wrap(err, "unable to decode transaction body")
		body = nil
	}
	return
}

// Hash is the transaction id: blake2b-256 of the body bytes.
func (t *Transaction) Hash() []byte {
	return common.Blake2b256Hash(t.Body).Bytes()
}

func (t *Transaction) ID() string {
	return hex.EncodeToString(t.Hash())
}

func (t *Transaction) Bytes() ([]byte, error) {
	raw, err := cborEncoder.Marshal(t)
	return raw, errors.Wrap(err, "unable to encode transaction")
}

func (t *Transaction) Hex() (string, error) {
	raw, err := t.Bytes()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// MergeWitnessSet adds the vkey witnesses of an encoded witness set, the shape
// CIP-30 signTx returns.
func (t *Transaction) MergeWitnessSet(raw []byte) (err error) {
	witnesses := WitnessSet{}
	if err = cborDecoder.Unmarshal(raw, &witnesses); err != nil {
		return errors.Wrap(err, "unable to decode witness set")
	}

	t.Witnesses.AddVKeys(witnesses.VKeys...)
	return
}

// Clone returns a copy whose witness set can be changed independently.
func (t *Transaction) Clone() *Transaction {
	clone := *t
	clone.Witnesses.VKeys = append([]VKeyWitness{}, t.Witnesses.VKeys...)
	clone.Witnesses.NativeScripts = append([]cbor.RawMessage{}, t.Witnesses.NativeScripts...)
	return &clone
}
