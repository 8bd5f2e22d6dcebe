package minter

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/hex"
	"os"
	"strings"

	"filippo.io/edwards25519"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

const (
	// ExtendedSigningKeySize is a BIP32-Ed25519 kL||kR private key.
	ExtendedSigningKeySize = 64
	// cardano-cli extended keys carry kL||kR||publicKey||chainCode.
	cliExtendedSigningKeySize = 128
)

type signingKey interface {
	PublicKey() []byte
	Sign(message []byte) []byte
}

type seedKey struct {
	key ed25519.PrivateKey
}

func (k seedKey) PublicKey() []byte {
	return k.key.Public().(ed25519.PublicKey)
}

func (k seedKey) Sign(message []byte) []byte {
	return ed25519.Sign(k.key, message)
}

// extendedKey signs with an already expanded scalar, as BIP32-Ed25519 child
// keys have no seed to hash.
type extendedKey struct {
	scalar    *edwards25519.Scalar
	prefix    []byte
	publicKey []byte
}

func newExtendedKey(kL, kR []byte) (key *extendedKey, err error) {
	wide := make([]byte, 64)
	copy(wide, kL)

	scalar, err := edwards25519.NewScalar().SetUniformBytes(wide)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidSigningKey, err.Error())
	}

	key = &extendedKey{
		scalar:    scalar,
		prefix:    append([]byte{}, kR...),
		publicKey: new(edwards25519.Point).ScalarBaseMult(scalar).Bytes(),
	}
	return
}

func (k *extendedKey) PublicKey() []byte {
	return k.publicKey
}

func (k *extendedKey) Sign(message []byte) []byte {
	h := sha512.New()
	h.Write(k.prefix)
	h.Write(message)
	r, _ := edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))

	R := new(edwards25519.Point).ScalarBaseMult(r).Bytes()

	h.Reset()
	h.Write(R)
	h.Write(k.publicKey)
	h.Write(message)
	challenge, _ := edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))

	S := edwards25519.NewScalar().MultiplyAdd(challenge, k.scalar, r)

	return append(R, S.Bytes()...)
}

// ParseSigningKey accepts a cardano-cli key envelope, a hex string or raw key
// bytes. The result is either a 32 byte seed or a 64 byte extended key.
func ParseSigningKey(data []byte) (key []byte, err error) {
	trimmed := bytes.TrimSpace(data)

	if gjson.ValidBytes(trimmed) && gjson.GetBytes(trimmed, "cborHex").Exists() {
		keyType := gjson.GetBytes(trimmed, "type").String()
		if !strings.Contains(keyType, "SigningKey") {
			return nil, errors.Wrapf(ErrInvalidSigningKey, "envelope type '%s'", keyType)
		}

		raw, err2 := hex.DecodeString(gjson.GetBytes(trimmed, "cborHex").String())
		if err2 != nil {
			return nil, errors.Wrap(ErrInvalidSigningKey, "cborHex is not valid hex")
		}

		if err = cborDecoder.Unmarshal(raw, &key); err != nil {
			return nil, errors.Wrap(ErrInvalidSigningKey, "cborHex is not a cbor byte string")
		}
	} else if decoded, err2 := hex.DecodeString(string(trimmed)); err2 == nil {
		key = decoded
	} else {
		key = data
	}

	switch len(key) {
	case ed25519.SeedSize, ExtendedSigningKeySize:
		return key, nil
	case cliExtendedSigningKeySize:
		return key[:ExtendedSigningKeySize], nil
	}

	return nil, errors.Wrapf(ErrInvalidSigningKey, "unexpected key length %d", len(key))
}

func LoadSigningKeyFile(path string) (key []byte, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read signing key '%s'", path)
	}
	return ParseSigningKey(data)
}

// KeyWallet is a WalletConnector backed by a single payment key. Chain data
// and submission go through the provider.
type KeyWallet struct {
	key      signingKey
	network  Network
	address  Address
	provider ChainDataProvider
}

var _ WalletConnector = &KeyWallet{}

func NewKeyWallet(key []byte, network Network, provider ChainDataProvider) (wallet *KeyWallet, err error) {
	var signer signingKey
	switch len(key) {
	case ed25519.SeedSize:
		signer = seedKey{key: ed25519.NewKeyFromSeed(key)}
	case ExtendedSigningKeySize:
		signer, err = newExtendedKey(key[:32], key[32:])
		if err != nil {
			return
		}
	default:
		return nil, errors.Wrapf(ErrInvalidSigningKey, "unexpected key length %d", len(key))
	}

	address, err := EncodeAddress(signer.PublicKey(), network, AddressTypePayment)
	if err != nil {
		return
	}

	wallet = &KeyWallet{
		key:      signer,
		network:  network,
		address:  address,
		provider: provider,
	}
	return
}

func (w *KeyWallet) Address() string {
	encoded, _ := w.address.Bech32String(w.network)
	return encoded
}

func (w *KeyWallet) PublicKey() []byte {
	return w.key.PublicKey()
}

func (w *KeyWallet) NetworkId(_ context.Context) (int, error) {
	params, err := w.network.Params()
	if err != nil {
		return 0, err
	}
	return params.WalletNetworkId, nil
}

func (w *KeyWallet) UsedAddresses(_ context.Context) ([]string, error) {
	return []string{w.Address()}, nil
}

func (w *KeyWallet) Utxos(ctx context.Context) ([]Utxo, error) {
	if w.provider == nil {
		return nil, errors.New("key wallet has no chain data provider")
	}
	return w.provider.Utxos(ctx, w.Address())
}

func (w *KeyWallet) ChangeAddress(_ context.Context) (string, error) {
	return w.Address(), nil
}

func (w *KeyWallet) SignTx(_ context.Context, tx *Transaction) (*Transaction, error) {
	signed := tx.Clone()
	signed.Witnesses.AddVKeys(VKeyWitness{
		VKey:      w.key.PublicKey(),
		Signature: w.key.Sign(tx.Hash()),
	})
	return signed, nil
}

func (w *KeyWallet) SubmitTx(ctx context.Context, tx *Transaction) (string, error) {
	if w.provider == nil {
		return "", errors.New("key wallet has no chain data provider")
	}

	raw, err := tx.Bytes()
	if err != nil {
		return "", err
	}
	return w.provider.SubmitTx(ctx, raw)
}
