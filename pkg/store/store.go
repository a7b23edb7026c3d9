package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var (
	// ErrNASNotFound is returned when no NAS device matches an address.
	ErrNASNotFound = errors.New("nas device not found")

	// ErrNoRouterConfig is returned when no router configuration has
	// been saved yet.
	ErrNoRouterConfig = errors.New("no active router config")
)

// Store is the directory and accounting store backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (and if necessary creates) the database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %s: %w", p, err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS nas (
			address   TEXT PRIMARY KEY,
			secret    TEXT NOT NULL,
			shortname TEXT NOT NULL DEFAULT '',
			type      TEXT NOT NULL DEFAULT 'other'
		)`,
		`CREATE TABLE IF NOT EXISTS radacct (
			acctsessionid      TEXT NOT NULL,
			username           TEXT NOT NULL,
			nasipaddress       TEXT NOT NULL,
			framedipaddress    TEXT NOT NULL DEFAULT '',
			callingstationid   TEXT NOT NULL DEFAULT '',
			acctstarttime      INTEGER NOT NULL,
			acctstoptime       INTEGER,
			acctinputoctets    TEXT NOT NULL DEFAULT '0',
			acctoutputoctets   TEXT NOT NULL DEFAULT '0',
			acctterminatecause TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_radacct_session
			ON radacct(acctsessionid, username)`,
		`CREATE INDEX IF NOT EXISTS idx_radacct_open
			ON radacct(acctstoptime) WHERE acctstoptime IS NULL`,
		`CREATE TABLE IF NOT EXISTS router_config (
			id       INTEGER PRIMARY KEY CHECK (id = 1),
			host     TEXT NOT NULL,
			port     INTEGER NOT NULL DEFAULT 8728,
			username TEXT NOT NULL,
			password TEXT NOT NULL,
			use_tls  INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// FindNAS looks up a NAS device by its network address.
func (s *Store) FindNAS(ctx context.Context, address string) (*NAS, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT address, secret, shortname, type FROM nas WHERE address = ?
	`, address)

	var n NAS
	if err := row.Scan(&n.Address, &n.Secret, &n.ShortName, &n.Type); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNASNotFound
		}
		return nil, fmt.Errorf("failed to query nas: %w", err)
	}
	return &n, nil
}

// SaveNAS inserts or replaces a NAS device.
func (s *Store) SaveNAS(ctx context.Context, n *NAS) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nas (address, secret, shortname, type)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			secret = excluded.secret,
			shortname = excluded.shortname,
			type = excluded.type
	`, n.Address, n.Secret, n.ShortName, n.Type)
	if err != nil {
		return fmt.Errorf("failed to save nas: %w", err)
	}
	return nil
}

// OpenSession records an accounting start. The NAS normally drives this
// through its accounting feed; it is exposed for seeding and tests.
func (s *Store) OpenSession(ctx context.Context, sess *Session) error {
	in := sess.InputOctets
	if in == "" {
		in = "0"
	}
	out := sess.OutputOctets
	if out == "" {
		out = "0"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO radacct (acctsessionid, username, nasipaddress,
			framedipaddress, callingstationid, acctstarttime,
			acctinputoctets, acctoutputoctets)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.SessionID, sess.Username, sess.NASAddress, sess.FramedIP,
		sess.CallingStation, sess.Start.UTC().Unix(), in, out)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	return nil
}

// CloseSession closes the open accounting row matching session id and
// username. Closing an already-closed session matches zero rows and is
// a no-op; the returned count lets callers observe which happened.
func (s *Store) CloseSession(ctx context.Context, sessionID, username, cause string, stop time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE radacct
		SET acctstoptime = ?, acctterminatecause = ?
		WHERE acctsessionid = ? AND username = ? AND acctstoptime IS NULL
	`, stop.UTC().Unix(), cause, sessionID, username)
	if err != nil {
		return 0, fmt.Errorf("failed to close session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

// SweepStale closes every open session that started more than maxAge
// before now, marking it Admin-Reset. One set-based update; no per-row
// iteration and no protocol I/O.
func (s *Store) SweepStale(ctx context.Context, maxAge time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-maxAge).UTC().Unix()
	res, err := s.db.ExecContext(ctx, `
		UPDATE radacct
		SET acctstoptime = ?, acctterminatecause = ?
		WHERE acctstoptime IS NULL AND acctstarttime < ?
	`, now.UTC().Unix(), CauseAdminReset, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Info("Closed stale accounting sessions",
			zap.Int64("count", n),
			zap.Duration("max_age", maxAge),
		)
	}
	return n, nil
}

// ListOpenSessions returns every session without a stop record.
func (s *Store) ListOpenSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT acctsessionid, username, nasipaddress, framedipaddress,
			callingstationid, acctstarttime, acctstoptime,
			acctinputoctets, acctoutputoctets, acctterminatecause
		FROM radacct
		WHERE acctstoptime IS NULL
		ORDER BY acctstarttime
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list open sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// GetSession returns the most recent accounting row for a session id
// and username, open or closed.
func (s *Store) GetSession(ctx context.Context, sessionID, username string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT acctsessionid, username, nasipaddress, framedipaddress,
			callingstationid, acctstarttime, acctstoptime,
			acctinputoctets, acctoutputoctets, acctterminatecause
		FROM radacct
		WHERE acctsessionid = ? AND username = ?
		ORDER BY acctstarttime DESC
		LIMIT 1
	`, sessionID, username)
	sess, err := scanSession(row)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (*Session, error) {
	var (
		sess  Session
		start int64
		stop  sql.NullInt64
	)
	err := r.Scan(&sess.SessionID, &sess.Username, &sess.NASAddress,
		&sess.FramedIP, &sess.CallingStation, &start, &stop,
		&sess.InputOctets, &sess.OutputOctets, &sess.TerminateCause)
	if err != nil {
		return nil, err
	}
	sess.Start = time.Unix(start, 0).UTC()
	if stop.Valid {
		t := time.Unix(stop.Int64, 0).UTC()
		sess.Stop = &t
	}
	return &sess, nil
}

// ActiveRouterConfig returns the single active router configuration.
func (s *Store) ActiveRouterConfig(ctx context.Context) (*RouterConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT host, port, username, password, use_tls
		FROM router_config WHERE id = 1
	`)
	var cfg RouterConfig
	if err := row.Scan(&cfg.Host, &cfg.Port, &cfg.Username, &cfg.Password, &cfg.UseTLS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRouterConfig
		}
		return nil, fmt.Errorf("failed to query router config: %w", err)
	}
	return &cfg, nil
}

// SaveRouterConfig creates or replaces the active router configuration.
// At most one row exists.
func (s *Store) SaveRouterConfig(ctx context.Context, cfg *RouterConfig) error {
	port := cfg.Port
	if port == 0 {
		port = 8728
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO router_config (id, host, port, username, password, use_tls)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			host = excluded.host,
			port = excluded.port,
			username = excluded.username,
			password = excluded.password,
			use_tls = excluded.use_tls
	`, cfg.Host, port, cfg.Username, cfg.Password, cfg.UseTLS)
	if err != nil {
		return fmt.Errorf("failed to save router config: %w", err)
	}
	return nil
}
