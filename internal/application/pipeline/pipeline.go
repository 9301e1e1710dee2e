// Package pipeline encadena una actualización completa: resolución,
// ranking, señales, alertas y exportación del snapshot.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/alejandrodnm/polywhale/internal/application/alerts"
	"github.com/alejandrodnm/polywhale/internal/application/signals"
	"github.com/alejandrodnm/polywhale/internal/domain"
	"github.com/alejandrodnm/polywhale/internal/ports"
)

const (
	DefaultMinConsensusAlert = 3
	DefaultSnapshotOpen      = 200
	DefaultSnapshotResolved  = 200
)

// Nombres de los pasos de RunUpdate, en orden.
const (
	StepResolution  = "resolution"
	StepPerformance = "performance"
	StepSignals     = "signals"
	StepAlerts      = "alerts"
	StepSnapshot    = "snapshot"
)

// Resolver es lo que el pipeline necesita del engine de resolución.
type Resolver interface {
	CheckAllUnresolved(ctx context.Context, mode domain.RunMode) (domain.RunSummary, error)
}

// Ranker genera el informe de rendimiento.
type Ranker interface {
	Report(ctx context.Context) (domain.PerformanceReport, error)
}

// SignalSource genera las señales del momento.
type SignalSource interface {
	GenerateSignals(ctx context.Context) ([]domain.Signal, error)
}

// Config contiene los umbrales de alerta y el tamaño del snapshot.
type Config struct {
	MinConsensusAlert int  // whales mínimos para alertar de un consenso
	ResolutionAlerts  bool // avisar de cada mercado liquidado
	SnapshotOpen      int  // posiciones abiertas en el snapshot
	SnapshotResolved  int  // posiciones resueltas (las más recientes)
	Destination       string
	Logger            *slog.Logger
}

func (c *Config) setDefaults() {
	if c.MinConsensusAlert < 2 {
		c.MinConsensusAlert = DefaultMinConsensusAlert
	}
	if c.SnapshotOpen <= 0 {
		c.SnapshotOpen = DefaultSnapshotOpen
	}
	if c.SnapshotResolved <= 0 {
		c.SnapshotResolved = DefaultSnapshotResolved
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Deps son los componentes que encadena el pipeline. Notifier y Report
// pueden ser nil.
type Deps struct {
	Resolver Resolver
	Ranker   Ranker
	Signals  SignalSource
	Ledger   ports.Ledger
	Notifier ports.Notifier
	Report   ports.ReportSink
}

// StepResult es el resultado de un paso.
type StepResult struct {
	Name     string
	Err      string // vacío si completó
	Duration time.Duration
}

// OK reports whether the step completed.
func (s StepResult) OK() bool {
	return s.Err == ""
}

// UpdateResult resume una actualización.
type UpdateResult struct {
	Mode       domain.RunMode
	StartedAt  time.Time
	Duration   time.Duration
	Steps      []StepResult
	Summary    domain.RunSummary
	Report     domain.PerformanceReport
	Signals    []domain.Signal
	Consensus  []domain.ConsensusSignal
	AlertsSent int
	Success    bool // todos los pasos completaron
}

// Pipeline ejecuta actualizaciones. Recuerda en memoria qué alertas ya envió
// para no repetirlas entre ejecuciones del mismo proceso.
type Pipeline struct {
	cfg  Config
	deps Deps
	log  *slog.Logger
	now  func() time.Time

	mu      sync.Mutex
	alerted map[string]bool
}

// New crea un Pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	cfg.setDefaults()
	return &Pipeline{
		cfg:     cfg,
		deps:    deps,
		log:     cfg.Logger.With("component", "pipeline"),
		now:     func() time.Time { return time.Now().UTC() },
		alerted: make(map[string]bool),
	}
}

// WithClock sustituye el reloj (tests).
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// RunUpdate ejecuta todos los pasos. Un paso que falla queda registrado en
// Steps y los siguientes se ejecutan igual con lo que haya disponible.
// El error solo se devuelve si el contexto se canceló.
func (p *Pipeline) RunUpdate(ctx context.Context, quick bool) (UpdateResult, error) {
	res := UpdateResult{Mode: domain.ModeFull, StartedAt: p.now()}
	if quick {
		res.Mode = domain.ModeQuick
	}
	log := p.log.With("mode", res.Mode)
	log.Info("update starting")

	p.step(ctx, &res, StepResolution, func(ctx context.Context) error {
		sum, err := p.deps.Resolver.CheckAllUnresolved(ctx, res.Mode)
		res.Summary = sum
		return err
	})

	p.step(ctx, &res, StepPerformance, func(ctx context.Context) error {
		rep, err := p.deps.Ranker.Report(ctx)
		res.Report = rep
		return err
	})

	p.step(ctx, &res, StepSignals, func(ctx context.Context) error {
		sigs, err := p.deps.Signals.GenerateSignals(ctx)
		res.Signals = sigs
		res.Consensus = signals.DetectConsensus(sigs)
		return err
	})

	p.step(ctx, &res, StepAlerts, func(ctx context.Context) error {
		n, err := p.sendAlerts(ctx, res)
		res.AlertsSent = n
		return err
	})

	p.step(ctx, &res, StepSnapshot, func(ctx context.Context) error {
		if p.deps.Report == nil {
			return nil
		}
		snap, err := p.BuildSnapshot(ctx, res.Report, res.Signals, res.Consensus)
		if err != nil {
			return err
		}
		return p.deps.Report.Export(ctx, snap)
	})

	res.Duration = p.now().Sub(res.StartedAt)
	res.Success = true
	failed := 0
	for _, s := range res.Steps {
		if !s.OK() {
			res.Success = false
			failed++
		}
	}
	log.Info("update complete",
		"success", res.Success,
		"failed_steps", failed,
		"resolved", res.Summary.TradesResolved,
		"qualified", res.Report.Summary.QualifiedWhales,
		"signals", len(res.Signals),
		"consensus", len(res.Consensus),
		"alerts", res.AlertsSent,
		"duration", res.Duration.Round(time.Millisecond),
	)
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("pipeline.RunUpdate: %w", err)
	}
	return res, nil
}

func (p *Pipeline) step(ctx context.Context, res *UpdateResult, name string, fn func(context.Context) error) {
	start := p.now()
	sr := StepResult{Name: name}
	if err := ctx.Err(); err != nil {
		sr.Err = err.Error()
	} else if err := fn(ctx); err != nil {
		sr.Err = err.Error()
		p.log.Error("update step failed", "step", name, "err", err)
	}
	sr.Duration = p.now().Sub(start)
	res.Steps = append(res.Steps, sr)
}

// sendAlerts envía las señales HIGH, los consensos grandes y, si está
// activado, las liquidaciones de esta pasada. Cada alerta sale una sola vez.
func (p *Pipeline) sendAlerts(ctx context.Context, res UpdateResult) (int, error) {
	if p.deps.Notifier == nil {
		return 0, nil
	}

	type alert struct {
		key  string
		text string
	}
	var pending []alert

	if p.cfg.ResolutionAlerts {
		for _, o := range res.Summary.Markets {
			if o.Status == domain.MarketSettled && o.TradesResolved > 0 {
				pending = append(pending, alert{"resolved|" + o.MarketID, alerts.FormatResolution(o)})
			}
		}
	}
	for _, s := range res.Signals {
		if s.Confidence == domain.ConfidenceHigh {
			pending = append(pending, alert{"signal|" + s.Key() + "|" + s.Whale.Address, alerts.FormatSignal(s)})
		}
	}
	for _, c := range res.Consensus {
		if c.WhaleCount() >= p.cfg.MinConsensusAlert {
			key := "consensus|" + c.MarketID + "|" + string(c.Direction) + "|" + strconv.Itoa(c.WhaleCount())
			pending = append(pending, alert{key, alerts.FormatConsensus(c)})
		}
	}

	sent, failed := 0, 0
	for _, a := range pending {
		if !p.markAlerted(a.key) {
			continue
		}
		if err := p.deps.Notifier.Send(ctx, p.cfg.Destination, a.text); err != nil {
			// sin reintento: se libera la clave para la siguiente pasada
			p.unmarkAlerted(a.key)
			failed++
			p.log.Warn("alert failed", "key", a.key, "err", err)
			continue
		}
		sent++
	}
	if failed > 0 {
		return sent, fmt.Errorf("pipeline.sendAlerts: %d of %d alerts failed", failed, sent+failed)
	}
	return sent, nil
}

func (p *Pipeline) markAlerted(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.alerted[key] {
		return false
	}
	p.alerted[key] = true
	return true
}

func (p *Pipeline) unmarkAlerted(key string) {
	p.mu.Lock()
	delete(p.alerted, key)
	p.mu.Unlock()
}

// BuildSnapshot arma el documento del dashboard desde el ledger y los
// resultados de esta pasada.
func (p *Pipeline) BuildSnapshot(ctx context.Context, rep domain.PerformanceReport, sigs []domain.Signal, cons []domain.ConsensusSignal) (domain.Snapshot, error) {
	snap := domain.Snapshot{GeneratedAt: p.now()}

	stats, err := p.deps.Ledger.LedgerStats(ctx)
	if err != nil {
		return snap, fmt.Errorf("pipeline.BuildSnapshot: %w", err)
	}
	snap.Stats = stats

	whales, err := p.deps.Ledger.ListWhales(ctx)
	if err != nil {
		return snap, fmt.Errorf("pipeline.BuildSnapshot: %w", err)
	}
	ranked := make(map[string]domain.Performance, len(rep.Ranked))
	for _, perf := range rep.Ranked {
		ranked[perf.Address] = perf
	}
	for _, w := range whales {
		sw := domain.SnapshotWhale{
			Address:     w.Address,
			TotalVolume: w.TotalVolume,
			Wins:        w.WinCount,
			Losses:      w.LossCount,
			WinRate:     domain.RoundTo(w.WinRate(), 1),
		}
		if perf, ok := ranked[w.Address]; ok {
			sw.ROI = domain.RoundTo(perf.ROI, 1)
			sw.TotalPnL = domain.RoundTo(perf.TotalPnL, 2)
			sw.Score = perf.Score
			sw.Rank = perf.Rank
		}
		snap.Whales = append(snap.Whales, sw)
	}

	open, err := p.deps.Ledger.UnresolvedPositions(ctx, domain.PositionFilter{})
	if err != nil {
		return snap, fmt.Errorf("pipeline.BuildSnapshot: %w", err)
	}
	snap.OpenPositions = newestFirst(open, p.cfg.SnapshotOpen)

	resolved, err := p.deps.Ledger.ResolvedPositions(ctx, "")
	if err != nil {
		return snap, fmt.Errorf("pipeline.BuildSnapshot: %w", err)
	}
	snap.Resolved = newestFirst(resolved, p.cfg.SnapshotResolved)

	for _, s := range sigs {
		snap.Signals = append(snap.Signals, domain.SnapshotSignal{
			MarketID:   s.MarketID,
			Question:   s.MarketQuestion,
			Direction:  string(s.Direction),
			Whales:     []string{s.Whale.Address},
			Edge:       s.Edge,
			WinRate:    s.Whale.WinRate,
			Price:      s.MarketPrice,
			Confidence: string(s.Confidence),
		})
	}
	for _, c := range cons {
		addrs := make([]string, len(c.Whales))
		for i, m := range c.Whales {
			addrs[i] = m.Address
		}
		snap.Consensus = append(snap.Consensus, domain.SnapshotSignal{
			MarketID:   c.MarketID,
			Question:   c.MarketQuestion,
			Direction:  string(c.Direction),
			Whales:     addrs,
			Edge:       c.AvgEdge,
			WinRate:    c.AvgWinRate,
			Confidence: string(c.Confidence),
		})
	}
	return snap, nil
}

// newestFirst toma las n últimas posiciones de una lista cronológica, la más
// reciente primero.
func newestFirst(ps []domain.Position, n int) []domain.SnapshotPosition {
	if len(ps) > n {
		ps = ps[len(ps)-n:]
	}
	out := make([]domain.SnapshotPosition, 0, len(ps))
	for i := len(ps) - 1; i >= 0; i-- {
		out = append(out, snapshotPosition(ps[i]))
	}
	return out
}

func snapshotPosition(p domain.Position) domain.SnapshotPosition {
	sp := domain.SnapshotPosition{
		ID:         p.ID,
		Whale:      p.WhaleAddress,
		MarketID:   p.MarketID,
		Question:   p.MarketQuestion,
		Side:       p.Side,
		Size:       p.Size,
		EntryPrice: p.EntryPrice,
		EntryTime:  p.EntryTime,
		PnL:        p.PnL,
	}
	if p.Result != nil {
		sp.Result = string(*p.Result)
	}
	return sp
}
