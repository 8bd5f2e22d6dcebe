package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	. "github.com/alexdcox/cardano-minter"
	"github.com/pkg/errors"
)

const DefaultPollInterval = time.Second

func NewRpcClient(hostPort string) (client *RpcClient, err error) {
	if hostPort == "" {
		err = errors.New("host/port is required")
		return
	}

	client = &RpcClient{
		HostPort: hostPort,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
	return
}

type RpcClient struct {
	HostPort string
	Client   *http.Client
}

func (c *RpcClient) req(ctx context.Context, method string, path string, body io.Reader) (rsp *http.Response, out []byte, err error) {
	req, err := http.NewRequestWithContext(ctx, method, c.HostPort+path, body)
	if err != nil {
		err = errors.WithStack(err)
		return
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	rsp, err = client.Do(req)
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
		errRsp := &RpcError{}
		if decodeErr := json.Unmarshal(out, errRsp); decodeErr == nil && errRsp.Err != "" {
			err = errRsp

			if stdErr := errRsp.StdErr(); stdErr != nil {
				err = stdErr
			}

			return
		}

		err = errors.Wrapf(ErrRpcFailed, "rpc response code %d with body %s", rsp.StatusCode, string(out))
		return
	}

	return
}

func (c *RpcClient) reqUnmarshal(ctx context.Context, method string, path string, body io.Reader, target any) (err error) {
	_, rspBody, err := c.req(ctx, method, path, body)
	if err != nil {
		return
	}

	if target == nil {
		return
	}

	err = json.Unmarshal(rspBody, target)
	if err != nil {
		err = errors.Wrapf(err, "unable to unmarshal body: %s", string(rspBody))
		return
	}

	return
}

func (c *RpcClient) get(ctx context.Context, path string, target any) (err error) {
	return c.reqUnmarshal(ctx, http.MethodGet, path, nil, target)
}

func (c *RpcClient) send(ctx context.Context, method string, path string, in any, target any) (err error) {
	var body io.Reader
	if in != nil {
		jsn, err2 := json.Marshal(in)
		if err2 != nil {
			return errors.WithStack(err2)
		}
		body = bytes.NewReader(jsn)
	}

	return c.reqUnmarshal(ctx, method, path, body, target)
}

func (c *RpcClient) CreateSession(ctx context.Context) (out *SessionView, err error) {
	out = &SessionView{}
	err = c.send(ctx, http.MethodPost, "/session", nil, out)
	return
}

func (c *RpcClient) GetSession(ctx context.Context, sessionID string) (out *SessionView, err error) {
	out = &SessionView{}
	err = c.get(ctx, fmt.Sprintf("/session/%s", sessionID), out)
	return
}

func (c *RpcClient) DeleteSession(ctx context.Context, sessionID string) (err error) {
	return c.send(ctx, http.MethodDelete, fmt.Sprintf("/session/%s", sessionID), nil, nil)
}

type ConnectWalletIn struct {
	BridgeUrl string `json:"bridgeUrl"`
}

// ConnectWallet attaches a CIP-30 bridge to the session. A failed network
// detection is not an error; it shows up as the session notice.
func (c *RpcClient) ConnectWallet(ctx context.Context, sessionID string, in *ConnectWalletIn) (out *SessionView, err error) {
	out = &SessionView{}
	err = c.send(ctx, http.MethodPost, fmt.Sprintf("/session/%s/wallet", sessionID), in, out)
	return
}

func (c *RpcClient) DisconnectWallet(ctx context.Context, sessionID string) (out *SessionView, err error) {
	out = &SessionView{}
	err = c.send(ctx, http.MethodDelete, fmt.Sprintf("/session/%s/wallet", sessionID), nil, out)
	return
}

type SelectNetworkIn struct {
	Network Network `json:"network"`
}

func (c *RpcClient) SelectNetwork(ctx context.Context, sessionID string, network Network) (out *SessionView, err error) {
	out = &SessionView{}
	err = c.send(ctx, http.MethodPut, fmt.Sprintf("/session/%s/network", sessionID), &SelectNetworkIn{Network: network}, out)
	return
}

// Mint starts an attempt and returns immediately with its initial state.
func (c *RpcClient) Mint(ctx context.Context, sessionID string, in *MintRequest) (out *Attempt, err error) {
	out = &Attempt{}
	err = c.send(ctx, http.MethodPost, fmt.Sprintf("/session/%s/mint", sessionID), in, out)
	return
}

func (c *RpcClient) GetCurrentAttempt(ctx context.Context, sessionID string) (out *Attempt, err error) {
	out = &Attempt{}
	err = c.get(ctx, fmt.Sprintf("/session/%s/attempt", sessionID), out)
	return
}

// MintAndWait starts an attempt and polls until it reaches a terminal status.
func (c *RpcClient) MintAndWait(ctx context.Context, sessionID string, in *MintRequest, interval time.Duration) (out *Attempt, err error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	started, err := c.Mint(ctx, sessionID, in)
	if err != nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, errors.WithStack(ctx.Err())
		case <-ticker.C:
		}

		out, err = c.GetAttempt(ctx, started.ID)
		if err != nil {
			return
		}
		if out.Status.Terminal() {
			return
		}
	}
}

type ListAttemptsIn struct {
	SessionID string
	Pending   bool
	Limit     int
}

func (c *RpcClient) ListAttempts(ctx context.Context, in *ListAttemptsIn) (out []*Attempt, err error) {
	query := url.Values{}
	if in != nil {
		if in.SessionID != "" {
			query.Set("session", in.SessionID)
		}
		if in.Pending {
			query.Set("pending", "true")
		}
		if in.Limit > 0 {
			query.Set("limit", fmt.Sprint(in.Limit))
		}
	}

	path := "/attempts"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	out = []*Attempt{}
	err = c.get(ctx, path, &out)
	return
}

func (c *RpcClient) GetAttempt(ctx context.Context, attemptID string) (out *Attempt, err error) {
	out = &Attempt{}
	err = c.get(ctx, fmt.Sprintf("/attempts/%s", attemptID), out)
	return
}

type ReconcileOut struct {
	Attempt *Attempt `json:"attempt"`
	OnChain bool     `json:"onChain"`
}

func (c *RpcClient) Reconcile(ctx context.Context, attemptID string) (out *ReconcileOut, err error) {
	out = &ReconcileOut{}
	err = c.send(ctx, http.MethodPost, fmt.Sprintf("/attempts/%s/reconcile", attemptID), nil, out)
	return
}

type PolicyIn struct {
	Address string  `json:"address"`
	Network Network `json:"network"`
	Name    string  `json:"name,omitempty"`
}

type PolicyOut struct {
	PolicyID     string `json:"policyId"`
	ScriptHex    string `json:"scriptHex"`
	KeyHash      string `json:"keyHash"`
	TokenNameHex string `json:"tokenNameHex,omitempty"`
	Fingerprint  string `json:"fingerprint,omitempty"`
}

func (c *RpcClient) Policy(ctx context.Context, in *PolicyIn) (out *PolicyOut, err error) {
	out = &PolicyOut{}
	err = c.send(ctx, http.MethodPost, "/tools/policy", in, out)
	return
}

type StatusOut struct {
	Networks map[Network]NetworkStatus `json:"networks"`
	Sessions int                       `json:"sessions"`
	Timeouts Timeouts                  `json:"timeouts"`
}

type NetworkStatus struct {
	Configured bool            `json:"configured"`
	Params     *ProtocolParams `json:"protocolParams,omitempty"`
	Error      string          `json:"error,omitempty"`
}

func (c *RpcClient) GetStatus(ctx context.Context) (out *StatusOut, err error) {
	out = &StatusOut{}
	err = c.get(ctx, "/status", out)
	return
}

type RpcError struct {
	Err     string `json:"error"`
	Details string `json:"details"`
}

func (r *RpcError) Error() string {
	return r.Err
}

func (r *RpcError) StdErr() error {
	for _, a := range AllErrors {
		if r.Err == a.Error() {
			return errors.Wrap(a, r.Details)
		}
	}
	return nil
}
