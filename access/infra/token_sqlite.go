package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"content-gateway/access/domain"

	_ "modernc.org/sqlite" // driver SQLite
)

// SQLiteTokenStore guarda o RateToken num SQLite embutido.
//
// A seção crítica é uma transação BEGIN IMMEDIATE (_txlock=immediate): o SQLite serializa
// escritores entre processos e o SO solta o lock quando um processo morre, então não há
// lock abandonado. busy_timeout limita a espera pelo lock.
type SQLiteTokenStore struct {
	db        *sql.DB
	name      string
	closeOnce sync.Once
}

// SQLiteTokenConfig configura o SQLiteTokenStore.
type SQLiteTokenConfig struct {
	// DBPath é o arquivo do banco, compartilhado pelos processos cooperantes.
	DBPath string

	// Name identifica o token dentro do banco (vários limiters podem dividir o arquivo).
	// Default: "upstream"
	Name string

	// BusyTimeout é quanto esperar pelo lock antes de falhar.
	// Default: 2 segundos
	BusyTimeout time.Duration
}

func NewSQLiteTokenStore(cfg SQLiteTokenConfig) (*SQLiteTokenStore, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.Name == "" {
		cfg.Name = "upstream"
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 2 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		cfg.DBPath, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteTokenStore{db: db, name: cfg.Name}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteTokenStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS rate_token (
		name TEXT PRIMARY KEY,
		last_dispatch_ms INTEGER NOT NULL
	);`)
	return err
}

func (s *SQLiteTokenStore) Advance(ctx context.Context, minInterval time.Duration) (time.Duration, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("token.sqlite", err)
	}
	defer func() { _ = tx.Rollback() }()

	var lastMs int64
	err = tx.QueryRowContext(ctx, `SELECT last_dispatch_ms FROM rate_token WHERE name = ?`, s.name).Scan(&lastMs)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, unavailable("token.sqlite", err)
	}

	now := time.Now()
	tok := domain.RateToken{LastDispatchMillis: lastMs}
	if wait, ok := decide(tok.Last(), now, minInterval); !ok {
		return wait, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rate_token (name, last_dispatch_ms) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET last_dispatch_ms = excluded.last_dispatch_ms`,
		s.name, now.UnixMilli())
	if err != nil {
		return 0, unavailable("token.sqlite", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("token.sqlite", err)
	}
	return 0, nil
}

func (s *SQLiteTokenStore) Load(ctx context.Context) (domain.RateToken, error) {
	var lastMs int64
	err := s.db.QueryRowContext(ctx, `SELECT last_dispatch_ms FROM rate_token WHERE name = ?`, s.name).Scan(&lastMs)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RateToken{}, nil
	}
	if err != nil {
		return domain.RateToken{}, unavailable("token.sqlite", err)
	}
	return domain.RateToken{LastDispatchMillis: lastMs}, nil
}

func (s *SQLiteTokenStore) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.db.Close() })
	return err
}
