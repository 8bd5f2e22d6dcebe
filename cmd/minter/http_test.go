package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/alexdcox/cardano-minter"
	"github.com/alexdcox/cardano-minter/rpcclient"
	"github.com/alexdcox/cardano-minter/txbuilder"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	mu        sync.Mutex
	utxos     []Utxo
	submitted map[string]bool
}

func (p *stubProvider) ProtocolParams(_ context.Context) (*ProtocolParams, error) {
	return &ProtocolParams{MinFeeA: 44, MinFeeB: 155381, MaxTxSize: 16384, CoinsPerUtxoByte: 4310}, nil
}

func (p *stubProvider) Utxos(_ context.Context, _ string) ([]Utxo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.utxos, nil
}

func (p *stubProvider) SubmitTx(_ context.Context, raw []byte) (string, error) {
	tx, err := DecodeTransaction(raw)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitted[tx.ID()] = true
	return tx.ID(), nil
}

func (p *stubProvider) TxExists(_ context.Context, txID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submitted[txID], nil
}

type testServer struct {
	client   *rpcclient.RpcClient
	url      string
	provider *stubProvider
	wallet   *KeyWallet
}

func newTestServer(t *testing.T, credentials Credentials) *testServer {
	provider := &stubProvider{submitted: map[string]bool{}}

	wallet, err := NewKeyWallet(bytes.Repeat([]byte{3}, 32), NetworkPreProd, provider)
	require.NoError(t, err)
	provider.utxos = []Utxo{{
		TxHash:  strings.Repeat("42", 32),
		Index:   0,
		Address: wallet.Address(),
		Amount:  20_000_000,
	}}

	config := &Config{
		Blockfrost: BlockfrostConfig{MainNet: credentials[NetworkMainNet], PreProd: credentials[NetworkPreProd]},
		Timeouts:   DefaultTimeouts,
	}

	factory := func(network Network, credential string) (ChainDataProvider, error) {
		return provider, nil
	}

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	journal := NewInMemoryJournal()

	resolver := NewNetworkResolver(config.Credentials(), factory, config.Timeouts)
	resolver.Metrics = metrics

	server := NewHttpServer(config, resolver, NewMinter(txbuilder.New, journal, metrics, config.Timeouts), journal, registry)
	server.Connect = func(url string) (WalletConnector, error) {
		if url == "" {
			return nil, errors.New("bridge url is required")
		}
		return wallet, nil
	}

	httpServer := httptest.NewServer(adaptor.FiberApp(server.app))
	t.Cleanup(func() {
		httpServer.Close()
		_ = server.Stop()
	})

	client, err := rpcclient.NewRpcClient(httpServer.URL)
	require.NoError(t, err)

	return &testServer{
		client:   client,
		url:      httpServer.URL,
		provider: provider,
		wallet:   wallet,
	}
}

var allCredentials = Credentials{
	NetworkMainNet: "mainnet-project",
	NetworkPreProd: "preprod-project",
}

func testRequest() *MintRequest {
	return &MintRequest{
		Quantity: "1",
		Metadata: TokenMetadata{
			Name:      "Http Token",
			Image:     "ipfs://QmPdXB6Zo2pBcALUJGgmJxWd1mK8ivBo6ZkA2hTNjZDiCJ",
			MediaType: "image/png",
		},
	}
}

func TestHttpServer_MintFlow(t *testing.T) {
	ts := newTestServer(t, allCredentials)
	ctx := context.Background()

	session, err := ts.client.CreateSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, NetworkPreProd, session.Network)
	assert.True(t, session.Bound)
	assert.False(t, session.Connected)

	session, err = ts.client.ConnectWallet(ctx, session.ID, &rpcclient.ConnectWalletIn{BridgeUrl: "http://localhost:8090"})
	require.NoError(t, err)
	assert.True(t, session.Connected)
	require.NotNil(t, session.WalletNetwork)
	assert.Equal(t, NetworkPreProd, *session.WalletNetwork)

	attempt, err := ts.client.MintAndWait(ctx, session.ID, testRequest(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, attempt.Status)
	assert.Equal(t, MsgMintSucceeded, attempt.Message)
	assert.Len(t, attempt.TxID, 64)

	onChain, err := ts.provider.TxExists(ctx, attempt.TxID)
	require.NoError(t, err)
	assert.True(t, onChain)

	current, err := ts.client.GetCurrentAttempt(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, attempt.ID, current.ID)

	attempts, err := ts.client.ListAttempts(ctx, &rpcclient.ListAttemptsIn{SessionID: session.ID})
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, attempt.TxID, attempts[0].TxID)

	reconciled, err := ts.client.Reconcile(ctx, attempt.ID)
	require.NoError(t, err)
	assert.True(t, reconciled.OnChain)

	session, err = ts.client.DisconnectWallet(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, session.Connected)

	require.NoError(t, ts.client.DeleteSession(ctx, session.ID))
	_, err = ts.client.GetSession(ctx, session.ID)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestHttpServer_MintWithoutWallet(t *testing.T) {
	ts := newTestServer(t, allCredentials)
	ctx := context.Background()

	session, err := ts.client.CreateSession(ctx)
	require.NoError(t, err)

	attempt, err := ts.client.MintAndWait(ctx, session.ID, testRequest(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, attempt.Status)
	assert.Equal(t, KindNoWallet, attempt.Kind)
	assert.Equal(t, MsgNoWallet, attempt.Error)
}

func TestHttpServer_SelectNetwork(t *testing.T) {
	ts := newTestServer(t, Credentials{NetworkPreProd: "preprod-project"})
	ctx := context.Background()

	session, err := ts.client.CreateSession(ctx)
	require.NoError(t, err)

	session, err = ts.client.SelectNetwork(ctx, session.ID, NetworkMainNet)
	require.NoError(t, err)
	assert.Equal(t, NetworkMainNet, session.Network)
	assert.False(t, session.Bound)
	assert.Equal(t, MsgMissingCredential, session.Notice)

	_, err = ts.client.SelectNetwork(ctx, session.ID, Network("testnet"))
	assert.True(t, errors.Is(err, ErrNetworkInvalid))

	session, err = ts.client.SelectNetwork(ctx, session.ID, NetworkPreProd)
	require.NoError(t, err)
	assert.True(t, session.Bound)
	assert.Empty(t, session.Notice)
}

func TestHttpServer_NotFound(t *testing.T) {
	ts := newTestServer(t, allCredentials)
	ctx := context.Background()

	_, err := ts.client.GetSession(ctx, "missing")
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	_, err = ts.client.GetAttempt(ctx, "missing")
	assert.True(t, errors.Is(err, ErrAttemptNotFound))

	session, err := ts.client.CreateSession(ctx)
	require.NoError(t, err)
	_, err = ts.client.GetCurrentAttempt(ctx, session.ID)
	assert.True(t, errors.Is(err, ErrAttemptNotFound))
}

func TestHttpServer_BridgeNotAllowed(t *testing.T) {
	ts := newTestServer(t, allCredentials)
	ctx := context.Background()

	session, err := ts.client.CreateSession(ctx)
	require.NoError(t, err)

	for _, bridgeUrl := range []string{"http://10.0.0.5:8090", "http://169.254.169.254/latest", ""} {
		_, err = ts.client.ConnectWallet(ctx, session.ID, &rpcclient.ConnectWalletIn{BridgeUrl: bridgeUrl})
		assert.True(t, errors.Is(err, ErrBridgeNotAllowed), "%q: %v", bridgeUrl, err)
	}

	view, err := ts.client.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, view.Connected)
}

func TestHttpServer_InvalidBody(t *testing.T) {
	ts := newTestServer(t, allCredentials)

	session, err := ts.client.CreateSession(context.Background())
	require.NoError(t, err)

	rsp, err := http.Post(ts.url+"/session/"+session.ID+"/mint", "text/plain", strings.NewReader("quantity=1"))
	require.NoError(t, err)
	defer rsp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, rsp.StatusCode)

	body, err := io.ReadAll(rsp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "invalid request body")
}

func TestHttpServer_Policy(t *testing.T) {
	ts := newTestServer(t, allCredentials)

	out, err := ts.client.Policy(context.Background(), &rpcclient.PolicyIn{
		Address: ts.wallet.Address(),
		Network: NetworkPreProd,
		Name:    "Http Token",
	})
	require.NoError(t, err)

	script, err := NewForgeScript(ts.wallet.Address(), NetworkPreProd)
	require.NoError(t, err)
	assert.Equal(t, script.PolicyID().String(), out.PolicyID)
	assert.True(t, strings.HasPrefix(out.ScriptHex, "8200581c"))
	assert.Equal(t, TokenNameHex("Http Token"), out.TokenNameHex)
	assert.True(t, strings.HasPrefix(out.Fingerprint, "asset1"))

	_, err = ts.client.Policy(context.Background(), &rpcclient.PolicyIn{Address: "addr1nope", Network: NetworkPreProd})
	assert.Error(t, err)
}

func TestHttpServer_Status(t *testing.T) {
	ts := newTestServer(t, Credentials{NetworkPreProd: "preprod-project"})

	status, err := ts.client.GetStatus(context.Background())
	require.NoError(t, err)

	assert.True(t, status.Networks[NetworkPreProd].Configured)
	assert.False(t, status.Networks[NetworkMainNet].Configured)
	assert.Equal(t, MsgMissingCredential, status.Networks[NetworkMainNet].Error)
	assert.Equal(t, DefaultTimeouts, status.Timeouts)
}

func TestHttpServer_Metrics(t *testing.T) {
	ts := newTestServer(t, allCredentials)

	_, err := ts.client.CreateSession(context.Background())
	require.NoError(t, err)

	rsp, err := http.Get(ts.url + "/metrics")
	require.NoError(t, err)
	defer rsp.Body.Close()
	assert.Equal(t, http.StatusOK, rsp.StatusCode)

	body, err := io.ReadAll(rsp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "minter_attempts_in_flight")
}
