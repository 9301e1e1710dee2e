package storage

// sqlite.go: ledger de whales, mercados y posiciones.
//
// Estrategia:
//   - `whales`: una fila por wallet. win_count/loss_count solo se tocan al
//     resolver una posición, dentro de la misma transacción.
//   - `markets`: una fila por condition_id. resolved pasa de 0 a 1 una sola vez.
//   - `positions`: UNIQUE(whale_address, market_id, side). resolved/result/pnl
//     se escriben con un UPDATE guardado por `resolved = 0`: el que no afecta
//     filas no incrementa contadores.
//   - `seen_markets`: mercados nuevos con checkpoints de precio, aparte del ledger.
//   - Tiempos en TEXT con ancho fijo (ver timeLayout) para comparar por string.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/polywhale/internal/domain"
	_ "modernc.org/sqlite"
)

const schemaVersion = 2

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS whales (
    address      TEXT PRIMARY KEY,
    first_seen   TEXT    NOT NULL,
    total_volume REAL    NOT NULL DEFAULT 0,
    win_count    INTEGER NOT NULL DEFAULT 0,
    loss_count   INTEGER NOT NULL DEFAULT 0,
    notes        TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS markets (
    condition_id TEXT PRIMARY KEY,
    question     TEXT    NOT NULL DEFAULT '',
    resolved     INTEGER NOT NULL DEFAULT 0,
    winner       TEXT,
    resolved_at  TEXT,
    created_at   TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    whale_address   TEXT    NOT NULL REFERENCES whales(address),
    market_id       TEXT    NOT NULL REFERENCES markets(condition_id),
    market_question TEXT    NOT NULL DEFAULT '',
    side            TEXT    NOT NULL,
    size            REAL    NOT NULL,
    entry_price     REAL    NOT NULL,
    entry_time      TEXT    NOT NULL,
    resolved        INTEGER NOT NULL DEFAULT 0,
    result          TEXT,
    pnl             REAL,
    resolved_at     TEXT,
    UNIQUE (whale_address, market_id, side)
);

CREATE TABLE IF NOT EXISTS seen_markets (
    condition_id  TEXT PRIMARY KEY,
    slug          TEXT NOT NULL DEFAULT '',
    question      TEXT NOT NULL DEFAULT '',
    first_seen    TEXT NOT NULL,
    volume        REAL NOT NULL DEFAULT 0,
    liquidity     REAL NOT NULL DEFAULT 0,
    initial_yes   REAL,
    initial_no    REAL,
    price_1h_yes  REAL,
    price_24h_yes REAL,
    price_7d_yes  REAL,
    checked_1h    INTEGER NOT NULL DEFAULT 0,
    checked_24h   INTEGER NOT NULL DEFAULT 0,
    checked_7d    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_positions_unresolved ON positions(resolved, entry_time);
CREATE INDEX IF NOT EXISTS idx_positions_whale      ON positions(whale_address);
CREATE INDEX IF NOT EXISTS idx_positions_market     ON positions(market_id, resolved);
CREATE INDEX IF NOT EXISTS idx_markets_resolved     ON markets(resolved);
CREATE INDEX IF NOT EXISTS idx_seen_first           ON seen_markets(first_seen);
`

// migrations añade columnas de versiones anteriores del schema.
// Fallan si la columna ya existe, lo que es esperado.
var migrations = []string{
	"ALTER TABLE positions ADD COLUMN resolved_at TEXT",
	"ALTER TABLE markets ADD COLUMN created_at TEXT NOT NULL DEFAULT ''",
}

// timeLayout tiene ancho fijo y siempre termina en Z, así que el orden de
// strings coincide con el orden temporal.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// SQLiteStorage implementa ports.Ledger y ports.SeenMarketStore usando SQLite
// (pure Go, sin CGo).
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica
// el schema y las migraciones.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage.NewSQLiteStorage: %s: %w", pragma, err)
		}
	}

	s := &SQLiteStorage{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrate aplica el schema. Es idempotente.
func (s *SQLiteStorage) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("storage.migrate: apply schema: %w", err)
	}
	for _, stmt := range migrations {
		s.db.ExecContext(ctx, stmt) // ignore errors (column already exists)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)`,
		schemaVersion, formatTime(s.now()),
	); err != nil {
		return fmt.Errorf("storage.migrate: record version: %w", err)
	}
	return nil
}

// SchemaVersion devuelve la versión más alta aplicada.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("storage.SchemaVersion: %w", err)
	}
	return v, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- whales ---

// UpsertWhale inserta el whale si no existe. Si ya existe no lo modifica:
// el volumen se refresca con UpdateWhaleVolume.
func (s *SQLiteStorage) UpsertWhale(ctx context.Context, address string, volume float64, notes string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO whales (address, first_seen, total_volume, notes)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO NOTHING`,
		domain.NormalizeAddress(address), formatTime(s.now()), volume, notes,
	)
	if err != nil {
		return false, fmt.Errorf("storage.UpsertWhale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage.UpsertWhale: rows affected: %w", err)
	}
	return n == 1, nil
}

// UpdateWhaleVolume refresca el volumen de un whale existente.
func (s *SQLiteStorage) UpdateWhaleVolume(ctx context.Context, address string, volume float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE whales SET total_volume = ? WHERE address = ?`,
		volume, domain.NormalizeAddress(address),
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateWhaleVolume: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.UpdateWhaleVolume: %s: %w", address, domain.ErrNotFound)
	}
	return nil
}

const whaleColumns = `address, first_seen, total_volume, win_count, loss_count, notes`

// GetWhale devuelve domain.ErrNotFound si el whale no existe.
func (s *SQLiteStorage) GetWhale(ctx context.Context, address string) (*domain.Whale, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+whaleColumns+` FROM whales WHERE address = ?`,
		domain.NormalizeAddress(address),
	)
	w, err := scanWhale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("storage.GetWhale: %s: %w", address, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage.GetWhale: %w", err)
	}
	return &w, nil
}

// ListWhales devuelve todos los whales por volumen descendente.
func (s *SQLiteStorage) ListWhales(ctx context.Context) ([]domain.Whale, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+whaleColumns+` FROM whales ORDER BY total_volume DESC, address`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.ListWhales: query: %w", err)
	}
	defer rows.Close()

	var whales []domain.Whale
	for rows.Next() {
		w, err := scanWhale(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListWhales: scan row: %w", err)
		}
		whales = append(whales, w)
	}
	return whales, rows.Err()
}

// --- markets ---

// EnsureMarket crea el mercado si no existe. No toca uno existente.
func (s *SQLiteStorage) EnsureMarket(ctx context.Context, marketID, question string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO markets (condition_id, question, created_at) VALUES (?, ?, ?)
		ON CONFLICT(condition_id) DO NOTHING`,
		marketID, question, formatTime(s.now()),
	)
	if err != nil {
		return false, fmt.Errorf("storage.EnsureMarket: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// GetMarket devuelve domain.ErrNotFound si el mercado no existe.
func (s *SQLiteStorage) GetMarket(ctx context.Context, marketID string) (*domain.Market, error) {
	var (
		m          domain.Market
		resolved   int
		winner     sql.NullString
		resolvedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT condition_id, question, resolved, winner, resolved_at FROM markets WHERE condition_id = ?`,
		marketID,
	).Scan(&m.ConditionID, &m.Question, &resolved, &winner, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("storage.GetMarket: %s: %w", marketID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage.GetMarket: %w", err)
	}
	m.Resolved = resolved == 1
	m.Winner = domain.Outcome(winner.String)
	m.ResolvedAt = parseNullTime(resolvedAt)
	return &m, nil
}

// ResolveMarket marca el mercado como resuelto exactamente una vez.
// El mismo ganador otra vez es un no-op (applied = false); otro ganador
// devuelve domain.ErrOutcomeConflict y no modifica nada.
func (s *SQLiteStorage) ResolveMarket(ctx context.Context, marketID string, winner domain.Outcome) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("storage.ResolveMarket: begin tx: %w", err)
	}
	defer tx.Rollback()

	applied, err := resolveMarketTx(ctx, tx, marketID, "", winner, s.now())
	if err != nil {
		return false, fmt.Errorf("storage.ResolveMarket: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("storage.ResolveMarket: commit: %w", err)
	}
	return applied, nil
}

func resolveMarketTx(ctx context.Context, tx *sql.Tx, marketID, question string, winner domain.Outcome, at time.Time) (bool, error) {
	if !winner.Valid() {
		return false, fmt.Errorf("market %s: %w: %q", marketID, domain.ErrInvalidOutcome, winner)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO markets (condition_id, question, created_at) VALUES (?, ?, ?)
		ON CONFLICT(condition_id) DO NOTHING`,
		marketID, question, formatTime(at),
	); err != nil {
		return false, fmt.Errorf("ensure market: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE markets SET resolved = 1, winner = ?, resolved_at = ? WHERE condition_id = ? AND resolved = 0`,
		string(winner), formatTime(at), marketID,
	)
	if err != nil {
		return false, fmt.Errorf("mark resolved: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}

	var existing sql.NullString
	if err := tx.QueryRowContext(ctx,
		`SELECT winner FROM markets WHERE condition_id = ?`, marketID,
	).Scan(&existing); err != nil {
		return false, fmt.Errorf("read winner: %w", err)
	}
	if domain.Outcome(existing.String) != winner {
		return false, fmt.Errorf("market %s: recorded %s, oracle says %s: %w",
			marketID, existing.String, winner, domain.ErrOutcomeConflict)
	}
	return false, nil
}

// LedgerStats resume el estado global del ledger.
func (s *SQLiteStorage) LedgerStats(ctx context.Context) (domain.LedgerStats, error) {
	var st domain.LedgerStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM whales),
			(SELECT COUNT(*) FROM markets),
			(SELECT COUNT(*) FROM markets WHERE resolved = 1),
			COUNT(*),
			COALESCE(SUM(CASE WHEN resolved = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN resolved = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN result = 'WIN' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN result = 'LOSS' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN resolved = 1 THEN pnl ELSE 0 END), 0)
		FROM positions`,
	).Scan(&st.Whales, &st.Markets, &st.ResolvedMarkets, &st.Positions,
		&st.Resolved, &st.Unresolved, &st.Wins, &st.Losses, &st.TotalPnL)
	if err != nil {
		return st, fmt.Errorf("storage.LedgerStats: %w", err)
	}
	return st, nil
}

// --- helpers internos ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWhale(r rowScanner) (domain.Whale, error) {
	var w domain.Whale
	var firstSeen string
	if err := r.Scan(&w.Address, &firstSeen, &w.TotalVolume, &w.WinCount, &w.LossCount, &w.Notes); err != nil {
		return w, err
	}
	w.FirstSeen = parseTime(firstSeen)
	return w, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseNullTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	return parseTime(ns.String)
}
