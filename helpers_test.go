package minter

import (
	"bytes"
	"context"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var testSeed = bytes.Repeat([]byte{7}, 32)

const testTxHash = "6e6a6b1f0d5a9e1de4bd0e8c7a2b7b7f6f52b3c1f0a9d8c7b6a5f4e3d2c1b0a9"

var testProtocolParams = ProtocolParams{
	MinFeeA:          44,
	MinFeeB:          155381,
	MaxTxSize:        16384,
	CoinsPerUtxoByte: 4310,
}

var testTimeouts = Timeouts{
	WalletOperation:  200 * time.Millisecond,
	Transaction:      400 * time.Millisecond,
	NetworkDetection: 200 * time.Millisecond,
}

func testUtxo(address string, index uint32, amount uint64) Utxo {
	return Utxo{
		TxHash:  hex.EncodeToString(bytes.Repeat([]byte{byte(index + 1)}, 32)),
		Index:   index,
		Address: address,
		Amount:  amount,
	}
}

type fakeProvider struct {
	mu          sync.Mutex
	utxos       []Utxo
	submitted   [][]byte
	existing    map[string]bool
	paramsCalls int
	paramsErr   error
}

var _ ChainDataProvider = &fakeProvider{}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{existing: map[string]bool{}}
}

func (p *fakeProvider) ProtocolParams(_ context.Context) (*ProtocolParams, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paramsCalls++
	if p.paramsErr != nil {
		return nil, p.paramsErr
	}
	params := testProtocolParams
	return &params, nil
}

func (p *fakeProvider) Utxos(_ context.Context, _ string) ([]Utxo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Utxo{}, p.utxos...), nil
}

func (p *fakeProvider) SubmitTx(_ context.Context, tx []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitted = append(p.submitted, tx)
	decoded, err := DecodeTransaction(tx)
	if err != nil {
		return "", err
	}
	return decoded.ID(), nil
}

func (p *fakeProvider) TxExists(_ context.Context, txID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.existing[txID], nil
}

func (p *fakeProvider) ParamsCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paramsCalls
}

// testBuilder spends every utxo into one change output carrying the minted
// asset and pays a flat fee from the provider's parameters.
type testBuilder struct {
	provider ChainDataProvider
}

var _ TransactionBuilder = &testBuilder{}

func newTestBuilder(provider ChainDataProvider) TransactionBuilder {
	return &testBuilder{provider: provider}
}

func (b *testBuilder) BuildMint(ctx context.Context, params MintParams) (*Transaction, error) {
	name, err := params.TokenName()
	if err != nil {
		return nil, err
	}

	pp, err := b.provider.ProtocolParams(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load protocol parameters")
	}

	change, err := DecodeAddress(params.ChangeAddress, params.Network)
	if err != nil {
		return nil, err
	}

	aux, err := params.Metadata.AuxiliaryData()
	if err != nil {
		return nil, err
	}

	policy := cbor.ByteString(params.PolicyID)
	assets := MultiAsset{policy: {cbor.ByteString(name): uint64(params.Quantity)}}

	var (
		inputs []TxInput
		total  uint64
	)
	for _, utxo := range params.Utxos {
		input, err := utxo.Input()
		if err != nil {
			return nil, err
		}
		carried, err := utxo.MultiAsset()
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, input)
		assets.Add(carried)
		total += utxo.Amount
	}

	fee := pp.MinFeeA*1024 + pp.MinFeeB
	if total < fee+2_000_000 {
		return nil, errors.Wrapf(ErrNotEnoughFunds, "%d lovelace", total)
	}

	body := &TxBody{
		Inputs:  inputs,
		Outputs: []TxOutput{{Address: change.Bytes(), Amount: Value{Coin: total - fee, Assets: assets}}},
		Fee:     fee,
		Mint:    MintAssets{policy: {cbor.ByteString(name): params.Quantity}},
	}
	if len(aux) > 0 {
		body.AuxiliaryDataHash = common.Blake2b256Hash(aux).Bytes()
	}

	return NewTransaction(body, WitnessSet{NativeScripts: []cbor.RawMessage{params.Script.Cbor()}}, aux)
}

type hangMode int

const (
	noHang hangMode = iota
	hangUntilCancelled
	hangIgnoringContext
)

// fakeWallet signs with a real key and lets tests script failures and hangs
// per wallet operation.
type fakeWallet struct {
	key *KeyWallet

	networkID int
	addresses []string
	utxos     []Utxo
	change    string
	failures  map[WalletOp]error
	hang      map[WalletOp]hangMode
	release   chan struct{}

	mu        sync.Mutex
	calls     []WalletOp
	submitted []*Transaction
}

var _ WalletConnector = &fakeWallet{}

func newFakeWallet(t *testing.T, network Network) *fakeWallet {
	key, err := NewKeyWallet(testSeed, network, nil)
	require.NoError(t, err)

	params, err := network.Params()
	require.NoError(t, err)

	w := &fakeWallet{
		key:       key,
		networkID: params.WalletNetworkId,
		addresses: []string{key.Address()},
		utxos:     []Utxo{testUtxo(key.Address(), 0, 10_000_000)},
		change:    key.Address(),
		failures:  map[WalletOp]error{},
		hang:      map[WalletOp]hangMode{},
		release:   make(chan struct{}),
	}
	t.Cleanup(func() { close(w.release) })
	return w
}

func (w *fakeWallet) enter(ctx context.Context, op WalletOp) error {
	w.mu.Lock()
	w.calls = append(w.calls, op)
	hang := w.hang[op]
	failure := w.failures[op]
	w.mu.Unlock()

	switch hang {
	case hangUntilCancelled:
		<-ctx.Done()
		return ctx.Err()
	case hangIgnoringContext:
		<-w.release
		return errors.New("released")
	}

	return failure
}

func (w *fakeWallet) Calls() []WalletOp {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]WalletOp{}, w.calls...)
}

func (w *fakeWallet) Called(op WalletOp) bool {
	for _, call := range w.Calls() {
		if call == op {
			return true
		}
	}
	return false
}

func (w *fakeWallet) NetworkId(ctx context.Context) (int, error) {
	if err := w.enter(ctx, WalletOpNetworkId); err != nil {
		return 0, err
	}
	return w.networkID, nil
}

func (w *fakeWallet) UsedAddresses(ctx context.Context) ([]string, error) {
	if err := w.enter(ctx, WalletOpUsedAddresses); err != nil {
		return nil, err
	}
	return w.addresses, nil
}

func (w *fakeWallet) Utxos(ctx context.Context) ([]Utxo, error) {
	if err := w.enter(ctx, WalletOpUtxos); err != nil {
		return nil, err
	}
	return w.utxos, nil
}

func (w *fakeWallet) ChangeAddress(ctx context.Context) (string, error) {
	if err := w.enter(ctx, WalletOpChangeAddress); err != nil {
		return "", err
	}
	return w.change, nil
}

func (w *fakeWallet) SignTx(ctx context.Context, tx *Transaction) (*Transaction, error) {
	if err := w.enter(ctx, WalletOpSignTx); err != nil {
		return nil, err
	}
	return w.key.SignTx(ctx, tx)
}

func (w *fakeWallet) SubmitTx(ctx context.Context, tx *Transaction) (string, error) {
	if err := w.enter(ctx, WalletOpSubmitTx); err != nil {
		return "", err
	}
	w.mu.Lock()
	w.submitted = append(w.submitted, tx)
	w.mu.Unlock()
	return tx.ID(), nil
}

type boundProvider struct {
	Network    Network
	Credential string
}

type testEnv struct {
	provider *fakeProvider
	journal  *InMemoryJournal
	metrics  *Metrics
	resolver *NetworkResolver
	minter   *Minter

	mu    sync.Mutex
	bound []boundProvider
}

func newTestEnv(t *testing.T, credentials Credentials) *testEnv {
	env := &testEnv{
		provider: newFakeProvider(),
		journal:  NewInMemoryJournal(),
		metrics:  NewMetrics(nil),
	}

	factory := func(network Network, credential string) (ChainDataProvider, error) {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.bound = append(env.bound, boundProvider{Network: network, Credential: credential})
		return env.provider, nil
	}

	env.resolver = NewNetworkResolver(credentials, factory, testTimeouts)
	env.resolver.Metrics = env.metrics
	env.minter = NewMinter(newTestBuilder, env.journal, env.metrics, testTimeouts)
	return env
}

func (e *testEnv) Bound() []boundProvider {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]boundProvider{}, e.bound...)
}

var testCredentials = Credentials{
	NetworkMainNet: "mainnet-project",
	NetworkPreProd: "preprod-project",
}

func testMintRequest() MintRequest {
	return MintRequest{
		Quantity: "1",
		Metadata: TokenMetadata{
			Name:        "TEX Token",
			Image:       "ipfs://Qma7xj3oKJ2rghLSDVb5csGzMC5StGGzzYNLYzYwSA4WfN",
			MediaType:   "image/jpg",
			Description: "This NFT was minted by TEX",
		},
	}
}

func (w *fakeWallet) setHang(op WalletOp, mode hangMode) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hang[op] = mode
}

func (w *fakeWallet) setFailure(op WalletOp, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures[op] = err
}

// awaitStatus collects distinct consecutive statuses from updates until a
// terminal one arrives.
func awaitStatus(t *testing.T, updates <-chan Attempt) (statuses []Status) {
	timeout := time.After(5 * time.Second)
	for {
		select {
		case a := <-updates:
			if len(statuses) == 0 || statuses[len(statuses)-1] != a.Status {
				statuses = append(statuses, a.Status)
			}
			if a.Status.Terminal() {
				return
			}
		case <-timeout:
			t.Fatalf("no terminal status after %v", statuses)
			return
		}
	}
}
