package walletbridge

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/alexdcox/cardano-minter"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSeed = bytes.Repeat([]byte{9}, 32)

func testKeyWallet(t *testing.T) *KeyWallet {
	wallet, err := NewKeyWallet(testSeed, NetworkPreProd, nil)
	require.NoError(t, err)
	return wallet
}

func addressHex(t *testing.T, wallet *KeyWallet) string {
	address, err := DecodeAddress(wallet.Address(), NetworkPreProd)
	require.NoError(t, err)
	return hex.EncodeToString(address.Bytes())
}

func newTestBridge(t *testing.T, handler http.HandlerFunc) *BridgeWallet {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	wallet, err := NewBridgeWallet(server.URL + "/")
	require.NoError(t, err)
	wallet.Client = server.Client()
	return wallet
}

func writeJson(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func testTransaction(t *testing.T) *Transaction {
	tx, err := NewTransaction(&TxBody{
		Inputs:  []TxInput{{TxHash: bytes.Repeat([]byte{1}, 32), Index: 0}},
		Outputs: []TxOutput{{Address: []byte{0x60}, Amount: Value{Coin: 2_000_000}}},
		Fee:     170_000,
	}, WitnessSet{}, nil)
	require.NoError(t, err)
	return tx
}

func TestBridgeWallet_NetworkAndAddresses(t *testing.T) {
	key := testKeyWallet(t)
	hexAddress := addressHex(t, key)

	wallet := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PathNetworkId:
			writeJson(w, http.StatusOK, map[string]int{"networkId": 0})
		case PathUsedAddresses:
			writeJson(w, http.StatusOK, []string{hexAddress, key.Address()})
		case PathChangeAddress:
			writeJson(w, http.StatusOK, hexAddress)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()

	id, err := wallet.NetworkId(ctx)
	require.NoError(t, err)
	assert.Equal(t, WalletNetworkIdTestNet, id)

	addresses, err := wallet.UsedAddresses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{key.Address(), key.Address()}, addresses)

	change, err := wallet.ChangeAddress(ctx)
	require.NoError(t, err)
	assert.Equal(t, key.Address(), change)
}

func TestBridgeWallet_Utxos(t *testing.T) {
	key := testKeyWallet(t)
	address, err := DecodeAddress(key.Address(), NetworkPreProd)
	require.NoError(t, err)

	txHash := bytes.Repeat([]byte{0xaa}, 32)
	policy := bytes.Repeat([]byte{0xbb}, KeyHashSize)

	legacy, err := cbor.Marshal([]any{
		[]any{txHash, 0},
		[]any{address.Bytes(), 3_000_000},
	})
	require.NoError(t, err)

	current, err := cbor.Marshal([]any{
		[]any{txHash, 1},
		map[int]any{
			0: address.Bytes(),
			1: Value{Coin: 1_500_000, Assets: MultiAsset{
				cbor.ByteString(policy): {cbor.ByteString("nft"): 1},
			}},
		},
	})
	require.NoError(t, err)

	wallet := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		writeJson(w, http.StatusOK, []string{hex.EncodeToString(legacy), hex.EncodeToString(current)})
	})

	utxos, err := wallet.Utxos(context.Background())
	require.NoError(t, err)
	require.Len(t, utxos, 2)

	assert.Equal(t, hex.EncodeToString(txHash), utxos[0].TxHash)
	assert.Equal(t, uint32(0), utxos[0].Index)
	assert.Equal(t, uint64(3_000_000), utxos[0].Amount)
	assert.Equal(t, key.Address(), utxos[0].Address)
	assert.Empty(t, utxos[0].Assets)

	assert.Equal(t, uint32(1), utxos[1].Index)
	assert.Equal(t, uint64(1_500_000), utxos[1].Amount)
	assert.Equal(t, uint64(1), utxos[1].Assets[hex.EncodeToString(policy)][hex.EncodeToString([]byte("nft"))])
}

func TestBridgeWallet_SignTx(t *testing.T) {
	key := testKeyWallet(t)
	tx := testTransaction(t)

	wallet := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathSignTx, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		in := signTxIn{}
		assert.NoError(t, json.Unmarshal(body, &in))
		assert.True(t, in.PartialSign)

		unsigned, err := DecodeTransactionHex(in.Tx)
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		signed, _ := key.SignTx(r.Context(), unsigned)
		witnesses, err := cbor.Marshal(WitnessSet{VKeys: signed.Witnesses.VKeys})
		assert.NoError(t, err)

		writeJson(w, http.StatusOK, map[string]string{"witnessSet": hex.EncodeToString(witnesses)})
	})

	signed, err := wallet.SignTx(context.Background(), tx)
	require.NoError(t, err)

	assert.Equal(t, tx.ID(), signed.ID())
	require.Len(t, signed.Witnesses.VKeys, 1)
	assert.Equal(t, key.PublicKey(), signed.Witnesses.VKeys[0].VKey)
	assert.Empty(t, tx.Witnesses.VKeys)
}

func TestBridgeWallet_SubmitTx(t *testing.T) {
	tx := testTransaction(t)

	wallet := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		writeJson(w, http.StatusOK, map[string]string{"txId": tx.ID()})
	})

	txID, err := wallet.SubmitTx(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, tx.ID(), txID)
}

func TestBridgeWallet_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   any
		call   func(w *BridgeWallet) error
		kind   WalletErrorKind
	}{
		{
			name:   "sign declined",
			status: http.StatusBadRequest,
			body:   map[string]any{"code": TxSignErrorUserDeclined, "info": "user declined sign tx"},
			call: func(w *BridgeWallet) error {
				_, err := w.SignTx(context.Background(), testTransaction(t))
				return err
			},
			kind: WalletErrorDeclined,
		},
		{
			name:   "proof generation",
			status: http.StatusBadRequest,
			body:   map[string]any{"code": TxSignErrorProofGeneration, "info": "missing key"},
			call: func(w *BridgeWallet) error {
				_, err := w.SignTx(context.Background(), testTransaction(t))
				return err
			},
			kind: WalletErrorFailed,
		},
		{
			name:   "refused",
			status: http.StatusBadRequest,
			body:   map[string]any{"code": APIErrorRefused, "info": "not connected"},
			call: func(w *BridgeWallet) error {
				_, err := w.Utxos(context.Background())
				return err
			},
			kind: WalletErrorDeclined,
		},
		{
			name:   "internal error",
			status: http.StatusInternalServerError,
			body:   map[string]any{"code": APIErrorInternalError, "info": "boom"},
			call: func(w *BridgeWallet) error {
				_, err := w.NetworkId(context.Background())
				return err
			},
			kind: WalletErrorFailed,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			wallet := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
				writeJson(w, testCase.status, testCase.body)
			})

			err := testCase.call(wallet)

			var walletErr *WalletError
			require.True(t, errors.As(err, &walletErr), "got %v", err)
			assert.Equal(t, testCase.kind, walletErr.Kind)

			var bridgeErr *BridgeError
			require.True(t, errors.As(err, &bridgeErr))
			assert.Equal(t, testCase.body.(map[string]any)["info"], bridgeErr.Info)
		})
	}
}

func TestBridgeWallet_UnexpectedResponse(t *testing.T) {
	wallet := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "bad gateway")
	})

	_, err := wallet.NetworkId(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNormalizeAddress(t *testing.T) {
	key := testKeyWallet(t)

	normalized, err := NormalizeAddress(addressHex(t, key))
	require.NoError(t, err)
	assert.Equal(t, key.Address(), normalized)

	normalized, err = NormalizeAddress(" " + key.Address() + " ")
	require.NoError(t, err)
	assert.Equal(t, key.Address(), normalized)

	_, err = NormalizeAddress("6000")
	assert.Error(t, err)

	_, err = NormalizeAddress("")
	assert.Error(t, err)
}

func TestNewBridgeWallet(t *testing.T) {
	_, err := NewBridgeWallet("")
	assert.Error(t, err)

	connector, err := NewConnector("http://localhost:8090/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8090", connector.(*BridgeWallet).BaseUrl)
}
