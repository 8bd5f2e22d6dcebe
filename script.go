package minter

import (
	"encoding/hex"

	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

const (
	nativeScriptPubkey = 0

	// scriptTagNative prefixes native script bytes when hashing them into a
	// policy id.
	scriptTagNative = 0x00

	MaxAssetNameSize = 32
)

type nativeScriptPubkeyCbor struct {
	_       struct{} `cbor:",toarray"`
	Type    uint
	KeyHash []byte
}

// ForgeScript is a single signature native minting policy.
type ForgeScript struct {
	KeyHash []byte
	raw     []byte
}

// NewForgeScript builds a single signature policy for the payment key of
// address.
func NewForgeScript(address string, network Network) (script *ForgeScript, err error) {
	addr, err := DecodeAddress(address, network)
	if err != nil {
		return
	}

	keyHash, err := addr.PaymentKeyHash()
	if err != nil {
		return
	}

	return NewForgeScriptFromKeyHash(keyHash)
}

func NewForgeScriptFromKeyHash(keyHash []byte) (script *ForgeScript, err error) {
	if len(keyHash) != KeyHashSize {
		err = errors.Errorf("expected a %d byte key hash, got %d", KeyHashSize, len(keyHash))
		return
	}

	raw, err := cborEncoder.Marshal(nativeScriptPubkeyCbor{
		Type:    nativeScriptPubkey,
		KeyHash: keyHash,
	})
	if err != nil {
		err = errors.Wrap(err, "unable to encode native script")
		return
	}

	script = &ForgeScript{KeyHash: keyHash, raw: raw}
	return
}

func (s *ForgeScript) Cbor() cbor.RawMessage {
	return s.raw
}

func (s *ForgeScript) PolicyID() PolicyID {
	hash := common.Blake2b224Hash(append([]byte{scriptTagNative}, s.raw...))
	return PolicyID(hash.Bytes())
}

type PolicyID []byte

func (p PolicyID) String() string {
	return hex.EncodeToString(p)
}

// TokenNameHex hex-encodes the utf-8 bytes of name.
func TokenNameHex(name string) string {
	return hex.EncodeToString([]byte(name))
}
