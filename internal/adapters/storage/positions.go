package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/polywhale/internal/domain"
)

const positionColumns = `id, whale_address, market_id, market_question, side, size,
	entry_price, entry_time, resolved, result, pnl`

// validIDClause descarta en SQL los ids que no pueden ser condition ids.
// El chequeo hexadecimal exacto se hace después con domain.IsValidConditionID.
const validIDClause = `market_id LIKE '0x%' AND length(market_id) = 66`

// RecordPosition registra una posición nueva. Comprueba primero si ya existe
// la tripleta (whale, market, side) y devuelve domain.ErrDuplicatePosition;
// el índice UNIQUE cubre la carrera entre el chequeo y el insert.
// El whale debe existir; el mercado se crea si hace falta.
func (s *SQLiteStorage) RecordPosition(ctx context.Context, p domain.NewPosition) (int64, error) {
	whale := domain.NormalizeAddress(p.WhaleAddress)
	side := strings.ToUpper(strings.TrimSpace(p.Side))
	if p.EntryTime.IsZero() {
		p.EntryTime = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage.RecordPosition: begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM positions WHERE whale_address = ? AND market_id = ? AND side = ?`,
		whale, p.MarketID, side,
	).Scan(&exists); err != nil {
		return 0, fmt.Errorf("storage.RecordPosition: check existing: %w", err)
	}
	if exists > 0 {
		return 0, fmt.Errorf("storage.RecordPosition: %s/%s/%s: %w", whale, p.MarketID, side, domain.ErrDuplicatePosition)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO markets (condition_id, question, created_at) VALUES (?, ?, ?)
		ON CONFLICT(condition_id) DO NOTHING`,
		p.MarketID, p.MarketQuestion, formatTime(s.now()),
	); err != nil {
		return 0, fmt.Errorf("storage.RecordPosition: ensure market: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO positions (whale_address, market_id, market_question, side, size, entry_price, entry_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		whale, p.MarketID, p.MarketQuestion, side, p.Size, p.EntryPrice, formatTime(p.EntryTime),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("storage.RecordPosition: %s/%s/%s: %w", whale, p.MarketID, side, domain.ErrDuplicatePosition)
		}
		return 0, fmt.Errorf("storage.RecordPosition: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage.RecordPosition: last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage.RecordPosition: commit: %w", err)
	}
	return id, nil
}

// PositionExists devuelve true si ya hay una posición para la tripleta.
func (s *SQLiteStorage) PositionExists(ctx context.Context, whale, marketID, side string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM positions WHERE whale_address = ? AND market_id = ? AND side = ?`,
		domain.NormalizeAddress(whale), marketID, strings.ToUpper(strings.TrimSpace(side)),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("storage.PositionExists: %w", err)
	}
	return n > 0, nil
}

// GetPosition devuelve domain.ErrNotFound si no existe.
func (s *SQLiteStorage) GetPosition(ctx context.Context, id int64) (*domain.Position, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = ?`, id)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("storage.GetPosition: %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage.GetPosition: %w", err)
	}
	return &p, nil
}

// UnresolvedPositions devuelve las posiciones abiertas que cumplen el filtro,
// de la más antigua a la más reciente.
func (s *SQLiteStorage) UnresolvedPositions(ctx context.Context, f domain.PositionFilter) ([]domain.Position, error) {
	where, args := unresolvedWhere(f)
	q := `SELECT ` + positionColumns + ` FROM positions WHERE ` + where + ` ORDER BY entry_time, id`
	if f.Limit > 0 && !f.ValidIDsOnly {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	positions, err := s.queryPositions(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.UnresolvedPositions: %w", err)
	}
	if !f.ValidIDsOnly {
		return positions, nil
	}
	// el límite se aplica después del filtro exacto
	valid := positions[:0]
	for _, p := range positions {
		if f.Limit > 0 && len(valid) == f.Limit {
			break
		}
		if domain.IsValidConditionID(p.MarketID) {
			valid = append(valid, p)
		}
	}
	return valid, nil
}

// UnresolvedMarketIDs devuelve los mercados distintos con posiciones abiertas,
// los de actividad más reciente primero. Limit aplica a mercados.
func (s *SQLiteStorage) UnresolvedMarketIDs(ctx context.Context, f domain.PositionFilter) ([]string, error) {
	where, args := unresolvedWhere(f)
	q := `SELECT market_id FROM positions WHERE ` + where +
		` GROUP BY market_id ORDER BY MAX(entry_time) DESC, market_id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.UnresolvedMarketIDs: query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage.UnresolvedMarketIDs: scan row: %w", err)
		}
		if f.ValidIDsOnly && !domain.IsValidConditionID(id) {
			continue
		}
		ids = append(ids, id)
		if f.Limit > 0 && len(ids) == f.Limit {
			break
		}
	}
	return ids, rows.Err()
}

// ResolvedPositions devuelve las posiciones resueltas en orden cronológico.
// address vacío devuelve las de todos los whales.
func (s *SQLiteStorage) ResolvedPositions(ctx context.Context, address string) ([]domain.Position, error) {
	q := `SELECT ` + positionColumns + ` FROM positions WHERE resolved = 1`
	var args []any
	if address != "" {
		q += ` AND whale_address = ?`
		args = append(args, domain.NormalizeAddress(address))
	}
	q += ` ORDER BY entry_time, id`

	positions, err := s.queryPositions(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.ResolvedPositions: %w", err)
	}
	return positions, nil
}

// OpenPositionsSince devuelve las posiciones abiertas de un whale con entrada
// posterior a since, la más reciente primero.
func (s *SQLiteStorage) OpenPositionsSince(ctx context.Context, address string, since time.Time) ([]domain.Position, error) {
	positions, err := s.queryPositions(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE resolved = 0 AND whale_address = ? AND entry_time >= ?
		 ORDER BY entry_time DESC, id DESC`,
		domain.NormalizeAddress(address), formatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.OpenPositionsSince: %w", err)
	}
	return positions, nil
}

// ResolvePosition fija resultado y PnL de una posición e incrementa una vez
// el contador del whale, en una transacción. Si la posición ya estaba
// resuelta no cambia nada y devuelve applied = false.
func (s *SQLiteStorage) ResolvePosition(ctx context.Context, id int64, result domain.PositionResult, pnl float64) (bool, error) {
	if result != domain.ResultWin && result != domain.ResultLoss {
		return false, fmt.Errorf("storage.ResolvePosition: position %d: invalid result %q", id, result)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("storage.ResolvePosition: begin tx: %w", err)
	}
	defer tx.Rollback()

	applied, whale, err := resolvePositionTx(ctx, tx, id, "", result, pnl, s.now())
	if err != nil {
		return false, fmt.Errorf("storage.ResolvePosition: %w", err)
	}
	if !applied {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM positions WHERE id = ?`, id).Scan(&n); err != nil {
			return false, fmt.Errorf("storage.ResolvePosition: check existing: %w", err)
		}
		if n == 0 {
			return false, fmt.Errorf("storage.ResolvePosition: %d: %w", id, domain.ErrNotFound)
		}
		return false, nil
	}

	wins, losses := 0, 0
	if result == domain.ResultWin {
		wins = 1
	} else {
		losses = 1
	}
	if err := incrementWhale(ctx, tx, whale, wins, losses); err != nil {
		return false, fmt.Errorf("storage.ResolvePosition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("storage.ResolvePosition: commit: %w", err)
	}
	return true, nil
}

// SettleMarket aplica la resolución de un mercado en una única transacción:
// marca el mercado (con chequeo de conflicto), resuelve cada posición con el
// UPDATE guardado y suma los contadores una sola vez por whale.
// Si algo falla no se escribe nada.
func (s *SQLiteStorage) SettleMarket(ctx context.Context, ms domain.MarketSettlement) (domain.SettleResult, error) {
	var out domain.SettleResult

	at := ms.ResolvedAt
	if at.IsZero() {
		at = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return out, fmt.Errorf("storage.SettleMarket: begin tx: %w", err)
	}
	defer tx.Rollback()

	out.MarketApplied, err = resolveMarketTx(ctx, tx, ms.MarketID, ms.Question, ms.Winner, at)
	if err != nil {
		return domain.SettleResult{}, fmt.Errorf("storage.SettleMarket: %w", err)
	}

	type counters struct{ wins, losses int }
	perWhale := make(map[string]*counters)

	for _, st := range ms.Settlements {
		if st.Result != domain.ResultWin && st.Result != domain.ResultLoss {
			return domain.SettleResult{}, fmt.Errorf("storage.SettleMarket: position %d: invalid result %q", st.PositionID, st.Result)
		}
		applied, whale, err := resolvePositionTx(ctx, tx, st.PositionID, ms.MarketID, st.Result, st.PnL, at)
		if err != nil {
			return domain.SettleResult{}, fmt.Errorf("storage.SettleMarket: %w", err)
		}
		if !applied {
			out.Skipped++
			continue
		}
		st.WhaleAddress = whale
		out.Applied = append(out.Applied, st)

		c, ok := perWhale[whale]
		if !ok {
			c = &counters{}
			perWhale[whale] = c
		}
		if st.Result == domain.ResultWin {
			c.wins++
		} else {
			c.losses++
		}
	}

	addrs := make([]string, 0, len(perWhale))
	for a := range perWhale {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	for _, a := range addrs {
		if err := incrementWhale(ctx, tx, a, perWhale[a].wins, perWhale[a].losses); err != nil {
			return domain.SettleResult{}, fmt.Errorf("storage.SettleMarket: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.SettleResult{}, fmt.Errorf("storage.SettleMarket: commit: %w", err)
	}
	return out, nil
}

// WhaleStats agrega las posiciones resueltas por whale. Solo devuelve los
// whales con al menos minResolved posiciones resueltas.
func (s *SQLiteStorage) WhaleStats(ctx context.Context, minResolved int) ([]domain.WhaleStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT whale_address,
		       COUNT(*),
		       SUM(CASE WHEN result = 'WIN' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN result = 'LOSS' THEN 1 ELSE 0 END),
		       COALESCE(SUM(pnl), 0),
		       COALESCE(SUM(ABS(size)), 0)
		FROM positions
		WHERE resolved = 1
		GROUP BY whale_address
		HAVING COUNT(*) >= ?
		ORDER BY whale_address`,
		minResolved,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.WhaleStats: query: %w", err)
	}
	defer rows.Close()

	var stats []domain.WhaleStats
	for rows.Next() {
		var st domain.WhaleStats
		if err := rows.Scan(&st.Address, &st.ResolvedTrades, &st.Wins, &st.Losses, &st.TotalPnL, &st.TotalWagered); err != nil {
			return nil, fmt.Errorf("storage.WhaleStats: scan row: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// --- helpers internos ---

// resolvePositionTx aplica el UPDATE guardado por resolved = 0. Si marketID no
// es vacío, la posición además tiene que pertenecer a ese mercado.
func resolvePositionTx(ctx context.Context, tx *sql.Tx, id int64, marketID string, result domain.PositionResult, pnl float64, at time.Time) (bool, string, error) {
	q := `UPDATE positions SET resolved = 1, result = ?, pnl = ?, resolved_at = ?
	      WHERE id = ? AND resolved = 0`
	args := []any{string(result), pnl, formatTime(at), id}
	if marketID != "" {
		q += ` AND market_id = ?`
		args = append(args, marketID)
	}

	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return false, "", fmt.Errorf("resolve position %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, "", fmt.Errorf("resolve position %d: rows affected: %w", id, err)
	}
	if n == 0 {
		return false, "", nil
	}

	var whale string
	if err := tx.QueryRowContext(ctx, `SELECT whale_address FROM positions WHERE id = ?`, id).Scan(&whale); err != nil {
		return false, "", fmt.Errorf("resolve position %d: read owner: %w", id, err)
	}
	return true, whale, nil
}

func incrementWhale(ctx context.Context, tx *sql.Tx, address string, wins, losses int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE whales SET win_count = win_count + ?, loss_count = loss_count + ? WHERE address = ?`,
		wins, losses, address,
	)
	if err != nil {
		return fmt.Errorf("increment whale %s: %w", address, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("increment whale %s: %w", address, domain.ErrNotFound)
	}
	return nil
}

func unresolvedWhere(f domain.PositionFilter) (string, []any) {
	clauses := []string{"resolved = 0"}
	var args []any
	if f.ValidIDsOnly {
		clauses = append(clauses, validIDClause)
	}
	if f.MarketID != "" {
		clauses = append(clauses, "market_id = ?")
		args = append(args, f.MarketID)
	}
	if f.Whale != "" {
		clauses = append(clauses, "whale_address = ?")
		args = append(args, domain.NormalizeAddress(f.Whale))
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "entry_time >= ?")
		args = append(args, formatTime(f.Since))
	}
	return strings.Join(clauses, " AND "), args
}

func (s *SQLiteStorage) queryPositions(ctx context.Context, q string, args ...any) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func scanPosition(r rowScanner) (domain.Position, error) {
	var (
		p         domain.Position
		entryTime string
		resolved  int
		result    sql.NullString
		pnl       sql.NullFloat64
	)
	if err := r.Scan(&p.ID, &p.WhaleAddress, &p.MarketID, &p.MarketQuestion, &p.Side,
		&p.Size, &p.EntryPrice, &entryTime, &resolved, &result, &pnl); err != nil {
		return p, err
	}
	p.EntryTime = parseTime(entryTime)
	p.Resolved = resolved == 1
	if result.Valid {
		res := domain.PositionResult(result.String)
		p.Result = &res
	}
	if pnl.Valid {
		v := pnl.Float64
		p.PnL = &v
	}
	return p, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
