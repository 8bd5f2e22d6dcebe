package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	. "github.com/alexdcox/cardano-minter"
	"github.com/alexdcox/cardano-minter/rpcclient"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
)

const (
	eventHeartbeat      = 15 * time.Second
	statusParamsTimeout = 5 * time.Second
)

var errInvalidBody = errors.New("invalid request body")

// WalletConnectFunc opens a wallet connector from the url a client supplies.
type WalletConnectFunc func(url string) (WalletConnector, error)

func NewHttpServer(config *Config, resolver *NetworkResolver, minter *Minter, journal Journal, gatherer prometheus.Gatherer) (server *HttpServer) {
	ctx, cancel := context.WithCancel(context.Background())

	server = &HttpServer{
		config:   config,
		resolver: resolver,
		minter:   minter,
		journal:  journal,
		sessions: NewSessions(),
		ctx:      ctx,
		cancel:   cancel,
	}
	if minter != nil {
		minter.Sessions = server.sessions
	}

	server.app = fiber.New(fiber.Config{
		ReadTimeout:           30 * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
	})
	server.app.Use(recover.New())
	server.app.Use(func(c *fiber.Ctx) error {
		rsp := c.Next()
		log.Info().Msgf("http response: [%d] %s - %s %s", c.Response().StatusCode(), c.IP(), c.Method(), c.Path())
		return rsp
	})

	server.app.Post("/session", server.postSession)
	server.app.Get("/session/:id", server.getSession)
	server.app.Delete("/session/:id", server.deleteSession)
	server.app.Post("/session/:id/wallet", server.postWallet)
	server.app.Delete("/session/:id/wallet", server.deleteWallet)
	server.app.Put("/session/:id/network", server.putNetwork)
	server.app.Post("/session/:id/mint", server.postMint)
	server.app.Get("/session/:id/attempt", server.getSessionAttempt)
	server.app.Get("/session/:id/events", server.getSessionEvents)
	server.app.Get("/attempts", server.getAttempts)
	server.app.Get("/attempts/:id", server.getAttempt)
	server.app.Post("/attempts/:id/reconcile", server.postReconcile)
	server.app.Post("/tools/policy", server.postPolicy)
	server.app.Get("/status", server.getStatus)

	if gatherer != nil {
		server.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return
}

type HttpServer struct {
	app      *fiber.App
	config   *Config
	resolver *NetworkResolver
	minter   *Minter
	journal  Journal
	sessions *Sessions

	// Connect opens the wallet for POST /session/:id/wallet.
	Connect WalletConnectFunc

	ctx    context.Context
	cancel context.CancelFunc
}

func (s *HttpServer) Start() (err error) {
	log.Info().Msgf("http server listening on %s", s.config.Listen)
	return errors.WithStack(s.app.Listen(s.config.Listen))
}

func (s *HttpServer) Stop() (err error) {
	s.cancel()
	s.sessions.Close()
	return errors.WithStack(s.app.Shutdown())
}

func (s *HttpServer) errorResponse(c *fiber.Ctx, err error) error {
	statusCode := http.StatusInternalServerError
	reportedErr := err

	for match, code := range map[error]int{
		ErrSessionNotFound:      http.StatusNotFound,
		ErrAttemptNotFound:      http.StatusNotFound,
		ErrNotFound:             http.StatusNotFound,
		ErrMintInProgress:       http.StatusConflict,
		ErrNoPendingTransaction: http.StatusConflict,
		ErrNetworkInvalid:       http.StatusBadRequest,
		ErrByronAddress:         http.StatusBadRequest,
		ErrNoPaymentKeyHash:     http.StatusBadRequest,
		ErrTokenNameTooLong:     http.StatusBadRequest,
		ErrBridgeNotAllowed:     http.StatusForbidden,
		errInvalidBody:          http.StatusBadRequest,
	} {
		if errors.Is(err, match) {
			reportedErr = match
			statusCode = code
			break
		}
	}

	var mintErr *MintError
	if errors.As(err, &mintErr) {
		reportedErr = mintErr
		statusCode = http.StatusBadRequest
		if mintErr.Kind == KindMissingCredential {
			statusCode = http.StatusServiceUnavailable
		}
	}

	if statusCode == http.StatusInternalServerError {
		log.Error().Msgf("%+v", err)
	}

	return c.Status(statusCode).JSON(rpcclient.RpcError{
		Err:     reportedErr.Error(),
		Details: fmt.Sprintf("%+v", err),
	})
}

func (s *HttpServer) unmarshalJson(c *fiber.Ctx, target any) (err error) {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		return errors.Wrap(errInvalidBody, "expected application/json")
	}

	if err = json.Unmarshal(c.Body(), target); err != nil {
		return errors.Wrap(errInvalidBody, err.Error())
	}
	return
}

func (s *HttpServer) session(c *fiber.Ctx) (*Session, error) {
	return s.sessions.Get(c.Params("id"))
}

func (s *HttpServer) postSession(c *fiber.Ctx) error {
	session := s.resolver.NewSession()
	s.sessions.Add(session)

	log.Debug().Msgf("created session %s on %s", session.ID, session.Network())

	return c.Status(http.StatusCreated).JSON(session.View())
}

func (s *HttpServer) getSession(c *fiber.Ctx) error {
	session, err := s.session(c)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(session.View())
}

func (s *HttpServer) deleteSession(c *fiber.Ctx) error {
	if err := s.sessions.Remove(c.Params("id")); err != nil {
		return s.errorResponse(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (s *HttpServer) postWallet(c *fiber.Ctx) error {
	session, err := s.session(c)
	if err != nil {
		return s.errorResponse(c, err)
	}

	var req rpcclient.ConnectWalletIn
	if err = s.unmarshalJson(c, &req); err != nil {
		return s.errorResponse(c, err)
	}

	if s.Connect == nil {
		return s.errorResponse(c, errors.New("wallet connections are not enabled"))
	}

	if err = s.config.BridgeAllowed(req.BridgeUrl); err != nil {
		return s.errorResponse(c, err)
	}

	wallet, err := s.Connect(req.BridgeUrl)
	if err != nil {
		return s.errorResponse(c, errors.Wrap(errInvalidBody, err.Error()))
	}

	// Detection failures are reported through the session notice.
	if _, err = s.resolver.Connect(c.UserContext(), session, wallet); err != nil {
		log.Debug().Msgf("session %s: %v", session.ID, err)
	}

	return c.JSON(session.View())
}

func (s *HttpServer) deleteWallet(c *fiber.Ctx) error {
	session, err := s.session(c)
	if err != nil {
		return s.errorResponse(c, err)
	}

	s.resolver.Disconnect(session)
	return c.JSON(session.View())
}

func (s *HttpServer) putNetwork(c *fiber.Ctx) error {
	session, err := s.session(c)
	if err != nil {
		return s.errorResponse(c, err)
	}

	var req rpcclient.SelectNetworkIn
	if err = s.unmarshalJson(c, &req); err != nil {
		return s.errorResponse(c, err)
	}

	if err = s.resolver.SelectNetwork(session, req.Network); err != nil {
		if KindOf(err) != KindMissingCredential {
			return s.errorResponse(c, err)
		}
	}

	return c.JSON(session.View())
}

func (s *HttpServer) postMint(c *fiber.Ctx) error {
	session, err := s.session(c)
	if err != nil {
		return s.errorResponse(c, err)
	}

	var req MintRequest
	if err = s.unmarshalJson(c, &req); err != nil {
		return s.errorResponse(c, err)
	}

	attempt, _, err := s.minter.Start(s.ctx, session, req)
	if err != nil {
		return s.errorResponse(c, err)
	}

	return c.Status(http.StatusAccepted).JSON(attempt)
}

func (s *HttpServer) getSessionAttempt(c *fiber.Ctx) error {
	session, err := s.session(c)
	if err != nil {
		return s.errorResponse(c, err)
	}

	attempt := session.Attempt()
	if attempt == nil {
		return s.errorResponse(c, errors.Wrapf(ErrAttemptNotFound, "session %s has not minted", session.ID))
	}
	return c.JSON(attempt)
}

// getSessionEvents streams attempt updates as server-sent events until the
// client goes away or the server stops.
func (s *HttpServer) getSessionEvents(c *fiber.Ctx) error {
	session, err := s.session(c)
	if err != nil {
		return s.errorResponse(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	updates := make(chan Attempt, 16)
	cleanup := session.Subscribe(func(attempt Attempt) {
		select {
		case updates <- attempt:
		default:
		}
	})

	ctx := s.ctx
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cleanup()

		writeEvent := func(event string, value any) bool {
			data, err := json.Marshal(value)
			if err != nil {
				return false
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
			return w.Flush() == nil
		}

		if !writeEvent("session", session.View()) {
			return
		}

		heartbeat := time.NewTicker(eventHeartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case attempt := <-updates:
				if !writeEvent("attempt", attempt) {
					return
				}
			case <-heartbeat.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil || w.Flush() != nil {
					return
				}
			}
		}
	}))

	return nil
}

func (s *HttpServer) getAttempts(c *fiber.Ctx) error {
	filter := AttemptFilter{
		SessionID: c.Query("session"),
		Pending:   c.QueryBool("pending", false),
		Limit:     c.QueryInt("limit", 0),
	}

	attempts, err := s.journal.ListAttempts(c.UserContext(), filter)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(attempts)
}

func (s *HttpServer) getAttempt(c *fiber.Ctx) error {
	attempt, err := s.journal.GetAttempt(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(attempt)
}

func (s *HttpServer) postReconcile(c *fiber.Ctx) error {
	attempt, onChain, err := s.minter.Reconcile(c.UserContext(), s.resolver, c.Params("id"))
	if err != nil {
		return s.errorResponse(c, err)
	}

	return c.JSON(rpcclient.ReconcileOut{
		Attempt: attempt,
		OnChain: onChain,
	})
}

func (s *HttpServer) postPolicy(c *fiber.Ctx) error {
	var req rpcclient.PolicyIn
	if err := s.unmarshalJson(c, &req); err != nil {
		return s.errorResponse(c, err)
	}

	if req.Network == "" {
		req.Network = DefaultNetwork
	}

	log.Debug().Msgf("deriving policy | network '%s' | address '%s'", req.Network, req.Address)

	script, err := NewForgeScript(req.Address, req.Network)
	if err != nil {
		return s.errorResponse(c, err)
	}

	out := rpcclient.PolicyOut{
		PolicyID:  script.PolicyID().String(),
		ScriptHex: hex.EncodeToString(script.Cbor()),
		KeyHash:   hex.EncodeToString(script.KeyHash),
	}
	if req.Name != "" {
		out.TokenNameHex = TokenNameHex(req.Name)
		if out.Fingerprint, err = AssetFingerprint(script.PolicyID(), out.TokenNameHex); err != nil {
			return s.errorResponse(c, err)
		}
	}

	return c.JSON(out)
}

func (s *HttpServer) getStatus(c *fiber.Ctx) error {
	out := rpcclient.StatusOut{
		Networks: map[Network]rpcclient.NetworkStatus{},
		Sessions: len(s.sessions.List()),
		Timeouts: s.minter.Timeouts,
	}

	for _, network := range []Network{NetworkMainNet, NetworkPreProd} {
		status := rpcclient.NetworkStatus{}

		provider, err := s.resolver.Provider(network)
		if err != nil {
			status.Error = err.Error()
			out.Networks[network] = status
			continue
		}
		status.Configured = true

		if c.QueryBool("params", false) {
			ctx, cancel := context.WithTimeout(c.UserContext(), statusParamsTimeout)
			params, err := provider.ProtocolParams(ctx)
			cancel()
			if err != nil {
				status.Error = err.Error()
			} else {
				status.Params = params
			}
		}

		out.Networks[network] = status
	}

	return c.JSON(out)
}
