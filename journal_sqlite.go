package minter

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SqliteJournal struct {
	db *sql.DB
	mu sync.Mutex
}

var _ Journal = &SqliteJournal{}

func NewSqliteJournal(path string) (journal *SqliteJournal, err error) {
	log.Info().Msgf("opening sqlite journal at: '%s'", path)

	sqldb, err := sql.Open("sqlite3", path)
	if err != nil {
		err = errors.Wrap(err, "failed to open database")
		return
	}

	if err = sqldb.Ping(); err != nil {
		_ = sqldb.Close()
		err = errors.Wrap(err, "failed to ping database")
		return
	}

	journal = &SqliteJournal{db: sqldb}
	if err = journal.initTables(); err != nil {
		_ = sqldb.Close()
		err = errors.Wrap(err, "failed to init tables")
		return
	}

	return
}

func (s *SqliteJournal) initTables() (err error) {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS attempt (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			network TEXT NOT NULL,
			status TEXT NOT NULL,
			kind TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			tx_id TEXT NOT NULL DEFAULT '',
			pending_tx_id TEXT NOT NULL DEFAULT '',
			policy_id TEXT NOT NULL DEFAULT '',
			request TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempt_session ON attempt(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attempt_started ON attempt(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_attempt_pending ON attempt(pending_tx_id)`,
	}

	for i, query := range queries {
		_, err = s.db.Exec(query)
		if err != nil {
			err = errors.Wrapf(err, "failed to execute query: %d", i)
			return
		}
	}

	return
}

func (s *SqliteJournal) RecordAttempt(ctx context.Context, attempt *Attempt) (err error) {
	if attempt == nil || attempt.ID == "" {
		return errors.New("attempt id is required")
	}

	request, err := json.Marshal(attempt.Request)
	if err != nil {
		return errors.Wrap(err, "failed to encode attempt request")
	}

	var finishedAt int64
	if !attempt.FinishedAt.IsZero() {
		finishedAt = attempt.FinishedAt.UnixNano()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO attempt (
			id, session_id, network, status, kind, message, error,
			tx_id, pending_tx_id, policy_id, request, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID,
		attempt.SessionID,
		string(attempt.Network),
		attempt.Status.String(),
		attempt.Kind.String(),
		attempt.Message,
		attempt.Error,
		attempt.TxID,
		attempt.PendingTxID,
		attempt.PolicyID,
		string(request),
		attempt.StartedAt.UnixNano(),
		finishedAt,
	)

	return errors.WithStack(err)
}

const attemptColumns = `id, session_id, network, status, kind, message, error,
	tx_id, pending_tx_id, policy_id, request, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (attempt *Attempt, err error) {
	var (
		network, status, kind, request string
		startedAt, finishedAt          int64
	)

	attempt = &Attempt{}
	err = row.Scan(
		&attempt.ID,
		&attempt.SessionID,
		&network,
		&status,
		&kind,
		&attempt.Message,
		&attempt.Error,
		&attempt.TxID,
		&attempt.PendingTxID,
		&attempt.PolicyID,
		&request,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	attempt.Network = Network(network)
	if err = attempt.Status.UnmarshalText([]byte(status)); err != nil {
		return nil, err
	}
	if err = attempt.Kind.UnmarshalText([]byte(kind)); err != nil {
		return nil, err
	}
	if err = json.Unmarshal([]byte(request), &attempt.Request); err != nil {
		return nil, errors.Wrapf(err, "failed to decode request for attempt %s", attempt.ID)
	}

	attempt.StartedAt = time.Unix(0, startedAt)
	if finishedAt > 0 {
		attempt.FinishedAt = time.Unix(0, finishedAt)
	}

	return
}

func (s *SqliteJournal) GetAttempt(ctx context.Context, id string) (attempt *Attempt, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, err = scanAttempt(s.db.QueryRowContext(ctx,
		"SELECT "+attemptColumns+" FROM attempt WHERE id = ?", id))

	if errors.Is(err, sql.ErrNoRows) {
		err = errors.Wrapf(ErrAttemptNotFound, "attempt %s", id)
		return
	}
	err = errors.WithStack(err)

	return
}

func (s *SqliteJournal) ListAttempts(ctx context.Context, filter AttemptFilter) (attempts []*Attempt, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		where []string
		args  []any
	)
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Pending {
		where = append(where, "pending_tx_id != '' AND tx_id = ''")
	}

	query := "SELECT " + attemptColumns + " FROM attempt"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, filter.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query attempts")
	}
	defer rows.Close()

	attempts = make([]*Attempt, 0)
	for rows.Next() {
		attempt, err2 := scanAttempt(rows)
		if err2 != nil {
			return nil, errors.Wrap(err2, "failed to scan row")
		}
		attempts = append(attempts, attempt)
	}

	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error during row iteration")
	}

	return
}

func (s *SqliteJournal) Close() error {
	return errors.WithStack(s.db.Close())
}
