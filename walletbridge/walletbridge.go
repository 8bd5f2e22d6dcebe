// Package walletbridge connects to a browser wallet through a small http
// bridge that forwards CIP-30 calls to the wallet extension.
//
// The bridge exposes one endpoint per CIP-30 method. Responses carry the
// CIP-30 values unchanged (hex encoded cbor), errors carry the CIP-30 error
// object {"code": n, "info": "..."}.
package walletbridge

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	. "github.com/alexdcox/cardano-minter"
	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

const (
	PathNetworkId     = "/networkId"
	PathUsedAddresses = "/usedAddresses"
	PathUtxos         = "/utxos"
	PathChangeAddress = "/changeAddress"
	PathSignTx        = "/signTx"
	PathSubmitTx      = "/submitTx"
)

// CIP-30 error codes.
const (
	APIErrorInvalidRequest = -1
	APIErrorInternalError  = -2
	APIErrorRefused        = -3
	APIErrorAccountChange  = -4

	TxSignErrorProofGeneration = 1
	TxSignErrorUserDeclined    = 2

	TxSendErrorRefused = 1
	TxSendErrorFailure = 2
)

func NewBridgeWallet(baseUrl string) (wallet *BridgeWallet, err error) {
	baseUrl = strings.TrimRight(baseUrl, "/")
	if baseUrl == "" {
		err = errors.New("bridge url is required")
		return
	}

	wallet = &BridgeWallet{
		BaseUrl: baseUrl,
		Client:  &http.Client{},
	}
	return
}

// BridgeWallet is a WalletConnector talking to a CIP-30 bridge. Calls are
// bound to the caller's context; the http client has no timeout of its own.
type BridgeWallet struct {
	BaseUrl string
	Client  *http.Client
}

var _ WalletConnector = &BridgeWallet{}

// BridgeError is a CIP-30 error object returned by the bridge.
type BridgeError struct {
	Op   WalletOp `json:"-"`
	Code int      `json:"code"`
	Info string   `json:"info"`
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Info, e.Code)
}

// walletError classifies a bridge error by its code. Only signTx has a code
// that unambiguously means the user declined.
func (e *BridgeError) walletError() *WalletError {
	kind := WalletErrorFailed
	if e.Op == WalletOpSignTx && e.Code == TxSignErrorUserDeclined {
		kind = WalletErrorDeclined
	}
	if e.Code == APIErrorRefused {
		kind = WalletErrorDeclined
	}
	return &WalletError{Op: e.Op, Kind: kind, Err: e}
}

func (w *BridgeWallet) req(ctx context.Context, op WalletOp, method string, path string, in any) (out []byte, err error) {
	var body io.Reader
	if in != nil {
		jsn, err2 := json.Marshal(in)
		if err2 != nil {
			return nil, errors.WithStack(err2)
		}
		body = bytes.NewReader(jsn)
	}

	req, err := http.NewRequestWithContext(ctx, method, w.BaseUrl+path, body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}

	rsp, err := client.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rsp.Body.Close()

	out, err = io.ReadAll(rsp.Body)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if rsp.StatusCode < 200 || rsp.StatusCode > 299 {
		if gjson.ValidBytes(out) && gjson.GetBytes(out, "code").Exists() {
			bridgeErr := &BridgeError{
				Op:   op,
				Code: int(gjson.GetBytes(out, "code").Int()),
				Info: gjson.GetBytes(out, "info").String(),
			}
			return nil, bridgeErr.walletError()
		}
		return nil, errors.Errorf("bridge responded %d to %s: %s", rsp.StatusCode, op, string(out))
	}

	return
}

func (w *BridgeWallet) NetworkId(ctx context.Context) (id int, err error) {
	out, err := w.req(ctx, WalletOpNetworkId, http.MethodGet, PathNetworkId, nil)
	if err != nil {
		return
	}

	value := gjson.GetBytes(out, "networkId")
	if !value.Exists() {
		return 0, errors.Errorf("bridge returned no network id: %s", string(out))
	}
	return int(value.Int()), nil
}

func (w *BridgeWallet) UsedAddresses(ctx context.Context) (addresses []string, err error) {
	out, err := w.req(ctx, WalletOpUsedAddresses, http.MethodGet, PathUsedAddresses, nil)
	if err != nil {
		return
	}

	addresses = make([]string, 0)
	for _, item := range gjson.ParseBytes(out).Array() {
		address, err2 := NormalizeAddress(item.String())
		if err2 != nil {
			return nil, err2
		}
		addresses = append(addresses, address)
	}
	return
}

func (w *BridgeWallet) ChangeAddress(ctx context.Context) (address string, err error) {
	out, err := w.req(ctx, WalletOpChangeAddress, http.MethodGet, PathChangeAddress, nil)
	if err != nil {
		return
	}

	raw := gjson.ParseBytes(out).String()
	if raw == "" {
		return "", nil
	}
	return NormalizeAddress(raw)
}

func (w *BridgeWallet) Utxos(ctx context.Context) (utxos []Utxo, err error) {
	out, err := w.req(ctx, WalletOpUtxos, http.MethodGet, PathUtxos, nil)
	if err != nil {
		return
	}

	utxos = make([]Utxo, 0)
	for _, item := range gjson.ParseBytes(out).Array() {
		utxo, err2 := DecodeUnspentOutputHex(item.String())
		if err2 != nil {
			return nil, err2
		}
		utxos = append(utxos, utxo)
	}
	return
}

type signTxIn struct {
	Tx          string `json:"tx"`
	PartialSign bool   `json:"partialSign"`
}

// SignTx asks the wallet for its witnesses and merges them into a copy of tx.
func (w *BridgeWallet) SignTx(ctx context.Context, tx *Transaction) (signed *Transaction, err error) {
	txHex, err := tx.Hex()
	if err != nil {
		return
	}

	out, err := w.req(ctx, WalletOpSignTx, http.MethodPost, PathSignTx, &signTxIn{Tx: txHex, PartialSign: true})
	if err != nil {
		return
	}

	witnessHex := gjson.GetBytes(out, "witnessSet").String()
	if witnessHex == "" {
		witnessHex = gjson.ParseBytes(out).String()
	}

	witnessSet, err := hex.DecodeString(witnessHex)
	if err != nil {
		return nil, errors.Wrap(err, "bridge returned an invalid witness set")
	}

	signed = tx.Clone()
	if err = signed.MergeWitnessSet(witnessSet); err != nil {
		return nil, err
	}
	return
}

type submitTxIn struct {
	Tx string `json:"tx"`
}

func (w *BridgeWallet) SubmitTx(ctx context.Context, tx *Transaction) (txID string, err error) {
	txHex, err := tx.Hex()
	if err != nil {
		return
	}

	out, err := w.req(ctx, WalletOpSubmitTx, http.MethodPost, PathSubmitTx, &submitTxIn{Tx: txHex})
	if err != nil {
		return
	}

	txID = gjson.GetBytes(out, "txId").String()
	if txID == "" {
		txID = gjson.ParseBytes(out).String()
	}
	return
}

// NormalizeAddress returns the bech32 form of a CIP-30 address, which wallets
// may hand out as hex encoded bytes.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)

	raw, err := hex.DecodeString(address)
	if err != nil {
		// Already bech32.
		return address, nil
	}
	if len(raw) == 0 {
		return "", errors.New("empty address")
	}

	decoded, err := common.NewAddressFromBytes(raw)
	if err != nil {
		return "", errors.Wrapf(err, "invalid address bytes '%s'", address)
	}
	if decoded.Type() == common.AddressTypeByron {
		return "", errors.Wrapf(ErrByronAddress, "'%s'", address)
	}

	return decoded.String(), nil
}

// NewConnector opens a bridge wallet as a WalletConnector.
func NewConnector(baseUrl string) (WalletConnector, error) {
	wallet, err := NewBridgeWallet(baseUrl)
	if err != nil {
		return nil, err
	}
	return wallet, nil
}
