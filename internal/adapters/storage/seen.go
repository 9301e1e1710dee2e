package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/polywhale/internal/domain"
)

// columnas de precio y flag por checkpoint
var checkpointColumns = map[domain.Checkpoint][2]string{
	domain.Checkpoint1h:  {"price_1h_yes", "checked_1h"},
	domain.Checkpoint24h: {"price_24h_yes", "checked_24h"},
	domain.Checkpoint7d:  {"price_7d_yes", "checked_7d"},
}

const seenColumns = `condition_id, slug, question, first_seen, volume, liquidity,
	initial_yes, initial_no, price_1h_yes, price_24h_yes, price_7d_yes,
	checked_1h, checked_24h, checked_7d`

// AddSeenMarket registra un mercado descubierto. Devuelve false si ya existía.
func (s *SQLiteStorage) AddSeenMarket(ctx context.Context, m domain.SeenMarket) (bool, error) {
	if m.FirstSeen.IsZero() {
		m.FirstSeen = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO seen_markets (condition_id, slug, question, first_seen, volume, liquidity, initial_yes, initial_no)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(condition_id) DO NOTHING`,
		m.ConditionID, m.Slug, m.Question, formatTime(m.FirstSeen),
		m.Volume, m.Liquidity, nullFloat(m.InitialYes), nullFloat(m.InitialNo),
	)
	if err != nil {
		return false, fmt.Errorf("storage.AddSeenMarket: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// IsMarketSeen devuelve true si el mercado ya fue registrado.
func (s *SQLiteStorage) IsMarketSeen(ctx context.Context, conditionID string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seen_markets WHERE condition_id = ?`, conditionID,
	).Scan(&n); err != nil {
		return false, fmt.Errorf("storage.IsMarketSeen: %w", err)
	}
	return n > 0, nil
}

// MarketsNeedingCheckpoint devuelve los mercados con precio inicial cuyo
// checkpoint ya venció y no se ha tomado todavía, los más antiguos primero.
func (s *SQLiteStorage) MarketsNeedingCheckpoint(ctx context.Context, cp domain.Checkpoint, now time.Time, limit int) ([]domain.SeenMarket, error) {
	cols, ok := checkpointColumns[cp]
	if !ok {
		return nil, fmt.Errorf("storage.MarketsNeedingCheckpoint: unknown checkpoint %q", cp)
	}
	q := `SELECT ` + seenColumns + ` FROM seen_markets
		WHERE ` + cols[1] + ` = 0 AND initial_yes IS NOT NULL AND first_seen < ?
		ORDER BY first_seen`
	args := []any{formatTime(now.Add(-cp.Age()))}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.MarketsNeedingCheckpoint: query: %w", err)
	}
	defer rows.Close()

	var markets []domain.SeenMarket
	for rows.Next() {
		m, err := scanSeenMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.MarketsNeedingCheckpoint: scan row: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// UpdateCheckpoint guarda el precio YES del checkpoint y lo marca como tomado.
func (s *SQLiteStorage) UpdateCheckpoint(ctx context.Context, conditionID string, cp domain.Checkpoint, yesPrice float64) error {
	cols, ok := checkpointColumns[cp]
	if !ok {
		return fmt.Errorf("storage.UpdateCheckpoint: unknown checkpoint %q", cp)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE seen_markets SET `+cols[0]+` = ?, `+cols[1]+` = 1 WHERE condition_id = ?`,
		yesPrice, conditionID,
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateCheckpoint: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.UpdateCheckpoint: %s: %w", conditionID, domain.ErrNotFound)
	}
	return nil
}

// SeenMarketCount devuelve el número de mercados indexados.
func (s *SQLiteStorage) SeenMarketCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM seen_markets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage.SeenMarketCount: %w", err)
	}
	return n, nil
}

// NewMarketStats resume el movimiento de precio de los mercados nuevos
// respecto a su precio inicial. Las medias solo cuentan subidas.
func (s *SQLiteStorage) NewMarketStats(ctx context.Context) (domain.NewMarketStats, error) {
	var (
		st             domain.NewMarketStats
		gain1h, gain24 sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       AVG(CASE WHEN price_1h_yes > initial_yes
		           THEN (price_1h_yes - initial_yes) / initial_yes * 100 END),
		       AVG(CASE WHEN price_24h_yes > initial_yes
		           THEN (price_24h_yes - initial_yes) / initial_yes * 100 END),
		       COALESCE(SUM(CASE WHEN price_24h_yes > initial_yes THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(checked_24h), 0)
		FROM seen_markets
		WHERE initial_yes IS NOT NULL AND initial_yes > 0`,
	).Scan(&st.Total, &gain1h, &gain24, &st.Winners24h, &st.Checked24h)
	if err != nil {
		return st, fmt.Errorf("storage.NewMarketStats: %w", err)
	}
	st.AvgGain1h = gain1h.Float64
	st.AvgGain24h = gain24.Float64
	return st, nil
}

func scanSeenMarket(r rowScanner) (domain.SeenMarket, error) {
	var (
		m              domain.SeenMarket
		firstSeen      string
		iniYes, iniNo  sql.NullFloat64
		p1h, p24h, p7d sql.NullFloat64
		c1h, c24h, c7d int
	)
	if err := r.Scan(&m.ConditionID, &m.Slug, &m.Question, &firstSeen, &m.Volume, &m.Liquidity,
		&iniYes, &iniNo, &p1h, &p24h, &p7d, &c1h, &c24h, &c7d); err != nil {
		return m, err
	}
	m.FirstSeen = parseTime(firstSeen)
	m.InitialYes = floatPtr(iniYes)
	m.InitialNo = floatPtr(iniNo)
	m.Price1h = floatPtr(p1h)
	m.Price24h = floatPtr(p24h)
	m.Price7d = floatPtr(p7d)
	m.Checked1h = c1h == 1
	m.Checked24h = c24h == 1
	m.Checked7d = c7d == 1
	return m, nil
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}
