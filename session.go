package minter

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Session holds the wallet, network and provider binding of one user. Sessions
// are independent of each other and safe for concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu            sync.Mutex
	wallet        WalletConnector
	walletNetwork *Network
	network       Network
	binding       *ProviderBinding
	bindErr       error
	notice        string
	inFlight      bool
	attempt       *Attempt
	feed          Feed[Attempt]
}

func NewSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		network:   DefaultNetwork,
		feed:      NewFeed[Attempt](),
	}
}

// SessionView is a point in time copy of a session.
type SessionView struct {
	ID            string   `json:"id"`
	Connected     bool     `json:"connected"`
	Network       Network  `json:"network"`
	WalletNetwork *Network `json:"walletNetwork,omitempty"`
	Bound         bool     `json:"bound"`
	Notice        string   `json:"notice,omitempty"`
	Loading       bool     `json:"loading"`
	Attempt       *Attempt `json:"attempt,omitempty"`
}

func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := SessionView{
		ID:        s.ID,
		Connected: s.wallet != nil,
		Network:   s.network,
		Bound:     s.binding != nil && s.bindErr == nil,
		Notice:    s.notice,
		Loading:   s.inFlight,
	}
	if s.walletNetwork != nil {
		n := *s.walletNetwork
		view.WalletNetwork = &n
	}
	if s.attempt != nil {
		a := *s.attempt
		view.Attempt = &a
	}
	return view
}

func (s *Session) Network() Network {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.network
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallet != nil
}

// Binding returns the current provider binding, or the error that prevented
// binding the selected network.
func (s *Session) Binding() (*ProviderBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bindErr != nil {
		return nil, s.bindErr
	}
	if s.binding == nil {
		return nil, errors.Errorf("no provider bound for %s", s.network)
	}
	return s.binding, nil
}

// Attempt returns a copy of the latest attempt, or nil before the first mint.
func (s *Session) Attempt() *Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt == nil {
		return nil
	}
	a := *s.attempt
	return &a
}

// Subscribe calls fn with a copy of the attempt on every state change until
// cleanup is called.
func (s *Session) Subscribe(fn func(Attempt)) (cleanup func()) {
	return s.feed.On(fn)
}

func (s *Session) Close() {
	s.feed.Close()
}

func (s *Session) setWallet(wallet WalletConnector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallet = wallet
	s.walletNetwork = nil
}

func (s *Session) setNotice(notice string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = notice
}

type mintContext struct {
	wallet  WalletConnector
	network Network
	binding *ProviderBinding
	bindErr error
}

// beginAttempt reserves the session for a new attempt. The previous attempt's
// outcome and the session notice are cleared.
func (s *Session) beginAttempt(req MintRequest) (attempt Attempt, mc mintContext, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight {
		err = errors.WithStack(ErrMintInProgress)
		return
	}

	s.inFlight = true
	s.notice = ""
	s.attempt = &Attempt{
		ID:        uuid.NewString(),
		SessionID: s.ID,
		Status:    StatusIdle,
		Network:   s.network,
		Request:   req,
		StartedAt: time.Now(),
	}

	mc = mintContext{
		wallet:  s.wallet,
		network: s.network,
		binding: s.binding,
		bindErr: s.bindErr,
	}
	attempt = *s.attempt
	return
}

// update applies fn to the current attempt and publishes the result.
func (s *Session) update(fn func(a *Attempt)) Attempt {
	s.mu.Lock()
	fn(s.attempt)
	snapshot := *s.attempt
	s.mu.Unlock()

	s.feed.Broadcast(snapshot)
	return snapshot
}

func (s *Session) finishAttempt(fn func(a *Attempt)) Attempt {
	s.mu.Lock()
	fn(s.attempt)
	s.attempt.FinishedAt = time.Now()
	s.inFlight = false
	snapshot := *s.attempt
	s.mu.Unlock()

	s.feed.Broadcast(snapshot)
	return snapshot
}

// settle marks the current attempt succeeded when it is the reconciled attempt
// and no longer running.
func (s *Session) settle(reconciled *Attempt) {
	s.mu.Lock()
	if s.attempt == nil || s.attempt.ID != reconciled.ID || s.inFlight {
		s.mu.Unlock()
		return
	}
	s.attempt.succeed(reconciled.TxID)
	snapshot := *s.attempt
	s.mu.Unlock()

	s.feed.Broadcast(snapshot)
}

// Sessions is a registry of live sessions keyed by id.
type Sessions struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[string]*Session)}
}

func (r *Sessions) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *Sessions) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, errors.Wrapf(ErrSessionNotFound, "session %s", id)
	}
	return s, nil
}

func (r *Sessions) Remove(id string) (err error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return errors.Wrapf(ErrSessionNotFound, "session %s", id)
	}
	s.Close()
	return
}

func (r *Sessions) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

func (r *Sessions) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		s.Close()
		delete(r.sessions, id)
	}
}
