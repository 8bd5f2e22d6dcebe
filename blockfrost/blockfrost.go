// Package blockfrost is a chain data provider backed by the hosted Blockfrost
// API. Protocol parameters and utxos are read through apollo's Blockfrost
// chain context, which the transaction builder reuses for fee calculation.
// Submission and transaction lookup call the API directly.
package blockfrost

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Salvionied/apollo/constants"
	"github.com/Salvionied/apollo/serialization/Address"
	"github.com/Salvionied/apollo/txBuilding/Backend/Base"
	"github.com/Salvionied/apollo/txBuilding/Backend/BlockFrostChainContext"
	minter "github.com/alexdcox/cardano-minter"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

const protocolParamsCacheTime = 10 * time.Minute

var log = minter.Log()

var _ minter.ChainDataProvider = &Provider{}

// New is a minter.ProviderFactory for the hosted Blockfrost API.
func New(network minter.Network, projectID string) (minter.ChainDataProvider, error) {
	params, err := network.Params()
	if err != nil {
		return nil, err
	}

	chainUrl, chainNetwork := constants.BLOCKFROST_BASE_URL_PREPROD, constants.PREPROD
	if network == minter.NetworkMainNet {
		chainUrl, chainNetwork = constants.BLOCKFROST_BASE_URL_MAINNET, constants.MAINNET
	}

	return &Provider{
		ChainUrl:     chainUrl,
		ChainNetwork: int(chainNetwork),
		BaseUrl:      params.BlockfrostUrl,
		ProjectID:    projectID,
		Network:      network,
		Client:       &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type Provider struct {
	// ChainUrl and ChainNetwork open apollo's chain context.
	ChainUrl     string
	ChainNetwork int

	// BaseUrl serves the calls made without apollo.
	BaseUrl   string
	ProjectID string
	Network   minter.Network
	Client    *http.Client

	chainMu sync.Mutex
	chain   *BlockFrostChainContext.BlockFrostChainContext

	mu           sync.Mutex
	params       *minter.ProtocolParams
	paramsLoaded time.Time
}

// ChainContext returns apollo's Blockfrost chain context, opening it on first
// use. Opening loads the latest epoch, genesis and protocol parameters; a
// failed open is retried on the next call.
func (p *Provider) ChainContext() (Base.ChainContext, error) {
	p.chainMu.Lock()
	defer p.chainMu.Unlock()

	if p.chain != nil {
		return p.chain, nil
	}

	chain, err := BlockFrostChainContext.NewBlockfrostChainContext(p.ChainUrl, p.ChainNetwork, p.ProjectID)
	if err != nil {
		return nil, errors.Wrapf(minter.ErrProviderRequestFailed, "unable to open %s chain context: %v", p.Network, err)
	}

	log.Debug().Msgf("opened %s chain context at %s", p.Network, p.ChainUrl)
	p.chain = &chain
	return p.chain, nil
}

func (p *Provider) ProtocolParams(ctx context.Context) (params *minter.ProtocolParams, err error) {
	p.mu.Lock()
	if p.params != nil && time.Since(p.paramsLoaded) < protocolParamsCacheTime {
		params = p.params
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if err = ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	chain, err := p.ChainContext()
	if err != nil {
		return
	}

	latest, err := chain.GetProtocolParams()
	if err != nil {
		return nil, errors.Wrapf(minter.ErrProviderRequestFailed, "unable to load protocol parameters: %v", err)
	}

	out, err := json.Marshal(latest)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	params = protocolParams(gjson.ParseBytes(out))
	if params.MinFeeA == 0 || params.MinFeeB == 0 {
		return nil, errors.Wrapf(minter.ErrProviderRequestFailed, "incomplete protocol parameters: %s", string(out))
	}

	p.mu.Lock()
	p.params = params
	p.paramsLoaded = time.Now()
	p.mu.Unlock()

	log.Debug().Msgf("loaded %s protocol parameters: %+v", p.Network, *params)

	return
}

// protocolParams reads apollo's parameters by their Blockfrost names, then by
// the go field names apollo leaves untagged.
func protocolParams(json gjson.Result) *minter.ProtocolParams {
	coinsPerUtxoByte := firstUint(json, "coins_per_utxo_size", "coins_per_utxo_byte", "CoinsPerUtxoByte")
	if coinsPerUtxoByte == 0 {
		coinsPerUtxoByte = firstUint(json, "coins_per_utxo_word", "CoinsPerUtxoWord") / 8
	}

	return &minter.ProtocolParams{
		MinFeeA:          firstUint(json, "min_fee_a", "MinFeeCoefficient"),
		MinFeeB:          firstUint(json, "min_fee_b", "MinFeeConstant"),
		MaxTxSize:        firstUint(json, "max_tx_size", "MaxTxSize"),
		CoinsPerUtxoByte: coinsPerUtxoByte,
	}
}

func firstUint(json gjson.Result, paths ...string) uint64 {
	for _, path := range paths {
		if value := json.Get(path).Uint(); value > 0 {
			return value
		}
	}
	return 0
}

func (p *Provider) Utxos(ctx context.Context, address string) (utxos []minter.Utxo, err error) {
	if err = ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	decoded, err := Address.DecodeAddress(address)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid address '%s'", address)
	}

	chain, err := p.ChainContext()
	if err != nil {
		return
	}

	loaded, err := chain.Utxos(decoded)
	if err != nil {
		// unused addresses are reported as 404
		if _, lookupErr := p.get(ctx, "/addresses/"+address); errors.Is(lookupErr, minter.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(minter.ErrProviderRequestFailed, "unable to load utxos of %s: %v", address, err)
	}

	for _, item := range loaded {
		raw, err2 := cbor.Marshal(item)
		if err2 != nil {
			return nil, errors.Wrap(err2, "unable to encode utxo")
		}

		utxo, err2 := minter.DecodeUnspentOutput(raw)
		if err2 != nil {
			return nil, err2
		}
		utxos = append(utxos, utxo)
	}

	return
}

type blockfrostError struct {
	StatusCode int
	Body       string
}

func (e *blockfrostError) Error() string {
	message := gjson.Get(e.Body, "message").String()
	if message == "" {
		message = e.Body
	}
	return fmt.Sprintf("blockfrost responded %d: %s", e.StatusCode, message)
}

func (p *Provider) req(ctx context.Context, method string, path string, contentType string, body io.Reader) (out []byte, err error) {
	req, err := http.NewRequestWithContext(ctx, method, p.BaseUrl+path, body)
	if err != nil {
		err = errors.WithStack(err)
		return
	}

	req.Header.Set("project_id", p.ProjectID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	rsp, err := client.Do(req)
	if err != nil {
		err = errors.WithStack(err)
		return
	}
	defer rsp.Body.Close()

	out, err = io.ReadAll(rsp.Body)
	if err != nil {
		err = errors.WithStack(err)
		return
	}

	if rsp.StatusCode < 200 || rsp.StatusCode > 299 {
		err = errors.Wrap(
			minter.ErrProviderRequestFailed,
			(&blockfrostError{StatusCode: rsp.StatusCode, Body: string(out)}).Error())
		if rsp.StatusCode == http.StatusNotFound {
			err = errors.Wrapf(minter.ErrNotFound, "%s %s", method, path)
		}
		return
	}

	return
}

func (p *Provider) get(ctx context.Context, path string) (out []byte, err error) {
	return p.req(ctx, http.MethodGet, path, "", nil)
}

// SubmitTx posts the signed bytes unchanged so the id the wallet signed is the
// id that lands on chain.
func (p *Provider) SubmitTx(ctx context.Context, tx []byte) (txID string, err error) {
	out, err := p.req(ctx, http.MethodPost, "/tx/submit", "application/cbor", bytes.NewReader(tx))
	if err != nil {
		return
	}

	txID = gjson.ParseBytes(out).String()
	if _, decodeErr := hex.DecodeString(txID); decodeErr != nil || txID == "" {
		err = errors.Wrapf(minter.ErrProviderRequestFailed, "unexpected submit response: %s", string(out))
	}

	return
}

func (p *Provider) TxExists(ctx context.Context, txID string) (exists bool, err error) {
	_, err = p.get(ctx, "/txs/"+txID)
	if errors.Is(err, minter.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
