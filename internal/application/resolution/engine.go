// Package resolution resuelve las posiciones abiertas contra el oráculo de
// mercados y mantiene los contadores de los whales.
//
// Cada mercado se procesa así: consulta al oráculo (red) → cálculo de
// liquidaciones en memoria → SettleMarket (una transacción local). La llamada
// de red termina antes de empezar la escritura, así que una cancelación nunca
// deja el ledger a medias.
package resolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polywhale/internal/application/schedule"
	"github.com/alejandrodnm/polywhale/internal/domain"
	"github.com/alejandrodnm/polywhale/internal/ports"
)

const (
	DefaultQuickWindow   = 48 * time.Hour
	DefaultQuickLimit    = 100
	DefaultDelay         = 300 * time.Millisecond
	DefaultPauseEvery    = 10
	DefaultPause         = time.Second
	DefaultProgressEvery = 100
)

// Config contiene la configuración del engine.
type Config struct {
	QuickWindow   time.Duration // ventana de entradas recientes en ModeQuick
	QuickLimit    int           // máximo de mercados por pasada rápida
	Delay         time.Duration // entre consultas al oráculo
	PauseEvery    int
	Pause         time.Duration
	ProgressEvery int // mercados entre snapshots de progreso
	Logger        *slog.Logger
}

func (c *Config) setDefaults() {
	if c.QuickWindow <= 0 {
		c.QuickWindow = DefaultQuickWindow
	}
	if c.QuickLimit <= 0 {
		c.QuickLimit = DefaultQuickLimit
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	if c.PauseEvery <= 0 {
		c.PauseEvery = DefaultPauseEvery
	}
	if c.Pause <= 0 {
		c.Pause = DefaultPause
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = DefaultProgressEvery
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine orquesta la resolución de posiciones abiertas.
type Engine struct {
	cfg      Config
	ledger   ports.Ledger
	oracle   ports.ResolutionOracle
	progress ports.ProgressSink
	throttle *schedule.Throttle
	locks    *keyedLock
	log      *slog.Logger
	now      func() time.Time
}

// New crea un Engine. progress puede ser nil.
func New(cfg Config, ledger ports.Ledger, oracle ports.ResolutionOracle, progress ports.ProgressSink) *Engine {
	cfg.setDefaults()
	return &Engine{
		cfg:      cfg,
		ledger:   ledger,
		oracle:   oracle,
		progress: progress,
		throttle: schedule.NewThrottle(cfg.Delay, cfg.PauseEvery, cfg.Pause),
		locks:    newKeyedLock(),
		log:      cfg.Logger.With("component", "resolution"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithThrottle sustituye el throttle (tests).
func (e *Engine) WithThrottle(t *schedule.Throttle) *Engine {
	e.throttle = t
	return e
}

// WithClock sustituye el reloj (tests).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CheckAllUnresolved revisa los mercados con posiciones abiertas y liquida los
// que el oráculo da por resueltos. El resumen se devuelve siempre; el error
// solo indica que no se pudo leer el conjunto de mercados.
func (e *Engine) CheckAllUnresolved(ctx context.Context, mode domain.RunMode) (domain.RunSummary, error) {
	start := e.now()
	sum := domain.RunSummary{RunID: uuid.NewString(), Mode: mode, StartedAt: start}
	log := e.log.With("run", sum.RunID, "mode", mode)

	filter := domain.PositionFilter{ValidIDsOnly: true}
	if mode == domain.ModeQuick {
		filter.Since = start.Add(-e.cfg.QuickWindow)
		filter.Limit = e.cfg.QuickLimit
	}

	ids, err := e.ledger.UnresolvedMarketIDs(ctx, filter)
	if err != nil {
		sum.Duration = e.now().Sub(start)
		return sum, fmt.Errorf("resolution.CheckAllUnresolved: %w", err)
	}
	sum.MarketsTotal = len(ids)
	log.Info("resolution run starting", "markets", len(ids))

	for i, id := range ids {
		if ctx.Err() != nil {
			sum.Cancelled = true
			break
		}
		if i > 0 {
			if err := e.throttle.Wait(ctx); err != nil {
				sum.Cancelled = true
				break
			}
		}

		sum.Add(e.CheckMarket(ctx, id))

		if (i+1)%e.cfg.ProgressEvery == 0 {
			e.writeProgress(ctx, sum, false)
			log.Info("resolution progress",
				"checked", i+1,
				"total", len(ids),
				"resolved", sum.MarketsResolved,
				"trades", sum.TradesResolved,
			)
		}
	}

	sum.Duration = e.now().Sub(start)
	e.writeProgress(ctx, sum, true)

	log.Info("resolution run complete",
		"checked", sum.MarketsChecked,
		"resolved", sum.MarketsResolved,
		"pending", sum.MarketsPending,
		"inconclusive", sum.Inconclusive,
		"failed", sum.MarketsFailed,
		"skipped", sum.MarketsSkipped,
		"trades", sum.TradesResolved,
		"wins", sum.Wins,
		"losses", sum.Losses,
		"pnl", fmt.Sprintf("%.2f", sum.PnLDelta),
		"cancelled", sum.Cancelled,
		"duration", sum.Duration.Round(time.Millisecond),
	)
	return sum, nil
}

// CheckMarket consulta y, si procede, liquida un único mercado. Si otro
// goroutine del proceso ya está con ese mercado devuelve MarketSkipped.
func (e *Engine) CheckMarket(ctx context.Context, marketID string) domain.MarketOutcome {
	out := domain.MarketOutcome{MarketID: marketID}
	if !e.locks.TryLock(marketID) {
		out.Status = domain.MarketSkipped
		return out
	}
	defer e.locks.Unlock(marketID)

	res := e.oracle.CheckResolution(ctx, marketID)
	out.Question = res.Question
	switch {
	case res.Status == domain.ResolutionPending:
		out.Status = domain.MarketPending
		return out
	case !res.IsResolved():
		out.Status = domain.MarketInconclusive
		e.log.Debug("resolution inconclusive", "market", marketID, "reason", res.Reason)
		return out
	}

	out.Winner = res.Winner
	if err := e.settle(ctx, res, &out); err != nil {
		out.Status = domain.MarketFailed
		out.Err = err.Error()
		if errors.Is(err, domain.ErrOutcomeConflict) {
			e.log.Error("oracle outcome conflicts with ledger", "market", marketID, "winner", res.Winner, "err", err)
		} else {
			e.log.Error("settle market failed", "market", marketID, "err", err)
		}
		return out
	}
	out.Status = domain.MarketSettled
	return out
}

// settle calcula las liquidaciones de las posiciones abiertas del mercado y
// las aplica en una sola transacción.
func (e *Engine) settle(ctx context.Context, res domain.Resolution, out *domain.MarketOutcome) error {
	positions, err := e.ledger.UnresolvedPositions(ctx, domain.PositionFilter{MarketID: res.MarketID})
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	if out.Question == "" && len(positions) > 0 {
		out.Question = positions[0].MarketQuestion
	}

	ms := domain.MarketSettlement{
		MarketID:    res.MarketID,
		Question:    out.Question,
		Winner:      res.Winner,
		ResolvedAt:  e.now(),
		Settlements: make([]domain.Settlement, 0, len(positions)),
	}
	dataErrors := 0
	for _, p := range positions {
		st, err := domain.SettlePosition(p, res.Winner)
		if err != nil {
			dataErrors++
			e.log.Error("position left unresolved",
				"market", res.MarketID,
				"position", p.ID,
				"whale", domain.ShortAddress(p.WhaleAddress),
				"err", err,
			)
			continue
		}
		ms.Settlements = append(ms.Settlements, st)
	}

	result, err := e.ledger.SettleMarket(ctx, ms)
	if err != nil {
		return err
	}

	for _, st := range result.Applied {
		if st.Result == domain.ResultWin {
			out.Wins++
		} else {
			out.Losses++
		}
	}
	out.TradesResolved = len(result.Applied)
	out.PnL = result.PnL()
	if dataErrors > 0 {
		out.Err = fmt.Sprintf("%d positions left unresolved: %v", dataErrors, domain.ErrZeroEntryPrice)
	}

	e.log.Info("market settled",
		"market", res.MarketID,
		"winner", res.Winner,
		"trades", out.TradesResolved,
		"skipped", result.Skipped,
		"pnl", fmt.Sprintf("%.2f", out.PnL),
	)
	return nil
}

// Stats devuelve el estado global del ledger.
func (e *Engine) Stats(ctx context.Context) (domain.LedgerStats, error) {
	st, err := e.ledger.LedgerStats(ctx)
	if err != nil {
		return st, fmt.Errorf("resolution.Stats: %w", err)
	}
	return st, nil
}

func (e *Engine) writeProgress(ctx context.Context, s domain.RunSummary, done bool) {
	if e.progress == nil {
		return
	}
	checked := len(s.Markets)
	pct := 100.0
	if s.MarketsTotal > 0 {
		pct = domain.RoundTo(float64(checked)/float64(s.MarketsTotal)*100, 1)
	}
	p := domain.Progress{
		RunID:           s.RunID,
		Mode:            string(s.Mode),
		Checked:         checked,
		Total:           s.MarketsTotal,
		Percent:         pct,
		MarketsResolved: s.MarketsResolved,
		TradesResolved:  s.TradesResolved,
		Failed:          s.MarketsFailed,
		Done:            done,
		UpdatedAt:       e.now(),
	}
	// el progreso es best effort: sin contexto cancelado para el snapshot final
	if err := e.progress.WriteProgress(context.WithoutCancel(ctx), p); err != nil {
		e.log.Warn("progress write failed", "err", err)
	}
}
