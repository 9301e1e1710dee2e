// Package performance calcula métricas de habilidad de los whales sobre su
// historial de posiciones resueltas y los ordena en un ranking.
package performance

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/alejandrodnm/polywhale/internal/domain"
)

const (
	DefaultMinResolved    = 10
	DefaultActivityWindow = 7 * 24 * time.Hour
	DefaultActivityTop    = 10
)

// PositionSource es el subconjunto del ledger que usa el Analyzer.
type PositionSource interface {
	ResolvedPositions(ctx context.Context, address string) ([]domain.Position, error)
	WhaleStats(ctx context.Context, minResolved int) ([]domain.WhaleStats, error)
	OpenPositionsSince(ctx context.Context, address string, since time.Time) ([]domain.Position, error)
}

// Config contiene los umbrales del analizador.
type Config struct {
	MinResolved    int           // trades resueltos mínimos para calificar
	ActivityWindow time.Duration // ventana de actividad reciente del informe
	ActivityTop    int           // whales del ranking con actividad en el informe
	Logger         *slog.Logger
}

func (c *Config) setDefaults() {
	if c.MinResolved <= 0 {
		c.MinResolved = DefaultMinResolved
	}
	if c.ActivityWindow <= 0 {
		c.ActivityWindow = DefaultActivityWindow
	}
	if c.ActivityTop <= 0 {
		c.ActivityTop = DefaultActivityTop
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Analyzer calcula el rendimiento de los whales a partir del ledger.
type Analyzer struct {
	cfg    Config
	source PositionSource
	log    *slog.Logger
	now    func() time.Time
}

// NewAnalyzer crea un Analyzer.
func NewAnalyzer(cfg Config, source PositionSource) *Analyzer {
	cfg.setDefaults()
	return &Analyzer{
		cfg:    cfg,
		source: source,
		log:    cfg.Logger.With("component", "performance"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sustituye el reloj (tests).
func (a *Analyzer) WithClock(now func() time.Time) *Analyzer {
	a.now = now
	return a
}

// MinResolved devuelve el umbral de calificación configurado.
func (a *Analyzer) MinResolved() int {
	return a.cfg.MinResolved
}

// WhalePerformance calcula las métricas de un whale. Devuelve nil (sin error)
// si tiene menos de minResolved posiciones resueltas.
func (a *Analyzer) WhalePerformance(ctx context.Context, address string, minResolved int) (*domain.Performance, error) {
	positions, err := a.source.ResolvedPositions(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("performance.WhalePerformance: %w", err)
	}
	if len(positions) == 0 || len(positions) < minResolved {
		return nil, nil
	}
	p := Compute(domain.NormalizeAddress(address), positions)
	return &p, nil
}

// Compute calcula las métricas sobre posiciones resueltas en orden cronológico.
// Las posiciones sin PnL o sin resultado se ignoran.
func Compute(address string, positions []domain.Position) domain.Performance {
	perf := domain.Performance{Address: address}

	var grossWins, grossLosses float64
	pnls := make([]float64, 0, len(positions))
	returns := make([]float64, 0, len(positions))

	for _, p := range positions {
		if p.Result == nil || p.PnL == nil {
			continue
		}
		pnl := *p.PnL
		stake := math.Abs(p.Size)

		perf.TotalTrades++
		perf.TotalWagered += stake
		perf.TotalPnL += pnl
		pnls = append(pnls, pnl)
		if stake > 0 {
			returns = append(returns, pnl/stake)
		}

		if *p.Result == domain.ResultWin {
			perf.Wins++
			grossWins += pnl
		} else {
			perf.Losses++
			grossLosses += pnl
		}
		if p.EntryTime.After(perf.LastTrade) {
			perf.LastTrade = p.EntryTime
		}
	}
	if perf.TotalTrades == 0 {
		return perf
	}

	n := float64(perf.TotalTrades)
	perf.WinRate = float64(perf.Wins) / n * 100
	perf.ROI = domain.ROI(perf.TotalPnL, perf.TotalWagered)
	perf.AvgBet = perf.TotalWagered / n
	if perf.Wins > 0 {
		perf.AvgWin = grossWins / float64(perf.Wins)
	}
	if perf.Losses > 0 {
		perf.AvgLoss = math.Abs(grossLosses) / float64(perf.Losses)
	}
	perf.ProfitFactor = domain.ProfitFactor(grossWins, grossLosses)
	perf.MaxDrawdown = domain.MaxDrawdown(pnls)
	perf.Consistency = domain.Consistency(returns)
	perf.SampleConfidence = domain.SampleConfidence(perf.TotalTrades)
	perf.Profitable = perf.TotalPnL > 0
	return perf
}

// QualifiedWhales calcula el rendimiento de todos los whales con al menos
// minResolved posiciones resueltas.
func (a *Analyzer) QualifiedWhales(ctx context.Context, minResolved int) ([]domain.Performance, error) {
	stats, err := a.source.WhaleStats(ctx, minResolved)
	if err != nil {
		return nil, fmt.Errorf("performance.QualifiedWhales: %w", err)
	}

	out := make([]domain.Performance, 0, len(stats))
	for _, st := range stats {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("performance.QualifiedWhales: %w", err)
		}
		p, err := a.WhalePerformance(ctx, st.Address, minResolved)
		if err != nil {
			return nil, fmt.Errorf("performance.QualifiedWhales: %w", err)
		}
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

// Rank ordena por score descendente (estable: empates conservan el orden de
// entrada) y asigna Rank desde 1 y Score. Modifica y devuelve el mismo slice.
func Rank(perfs []domain.Performance) []domain.Performance {
	for i := range perfs {
		p := &perfs[i]
		p.Score = domain.RoundTo(domain.RankingScore(p.ROI, p.SampleConfidence, p.WinRate, p.ProfitFactor), 2)
	}
	sort.SliceStable(perfs, func(i, j int) bool {
		return perfs[i].Score > perfs[j].Score
	})
	for i := range perfs {
		perfs[i].Rank = i + 1
	}
	return perfs
}

// RecentActivity resume las posiciones abiertas del whale con entrada en la
// ventana.
func (a *Analyzer) RecentActivity(ctx context.Context, address string, window time.Duration) (domain.RecentActivity, error) {
	act := domain.RecentActivity{Address: domain.NormalizeAddress(address), Window: window}
	open, err := a.source.OpenPositionsSince(ctx, address, a.now().Add(-window))
	if err != nil {
		return act, fmt.Errorf("performance.RecentActivity: %w", err)
	}
	for _, p := range open {
		act.OpenTrades++
		act.OpenVolume += math.Abs(p.Size)
		if p.EntryTime.After(act.LastEntryAt) {
			act.LastEntryAt = p.EntryTime
		}
	}
	return act, nil
}

// Report genera el ranking completo, el resumen y la actividad reciente del top.
func (a *Analyzer) Report(ctx context.Context) (domain.PerformanceReport, error) {
	rep := domain.PerformanceReport{GeneratedAt: a.now(), MinResolved: a.cfg.MinResolved}

	perfs, err := a.QualifiedWhales(ctx, a.cfg.MinResolved)
	if err != nil {
		return rep, err
	}
	rep.Ranked = Rank(perfs)
	rep.Summary = Summarize(rep.Ranked)

	for i, p := range rep.Ranked {
		if i >= a.cfg.ActivityTop {
			break
		}
		act, err := a.RecentActivity(ctx, p.Address, a.cfg.ActivityWindow)
		if err != nil {
			// la actividad es informativa: el ranking sigue siendo válido
			a.log.Warn("recent activity failed", "whale", domain.ShortAddress(p.Address), "err", err)
			continue
		}
		rep.Activity = append(rep.Activity, act)
	}

	a.log.Info("performance report",
		"qualified", rep.Summary.QualifiedWhales,
		"profitable", rep.Summary.ProfitableWhales,
		"resolved", rep.Summary.TotalResolved,
		"pnl", fmt.Sprintf("%.2f", rep.Summary.TotalPnL),
	)
	return rep, nil
}

// Summarize agrega el conjunto de whales calificados.
func Summarize(perfs []domain.Performance) domain.PerformanceSummary {
	s := domain.PerformanceSummary{QualifiedWhales: len(perfs)}
	for _, p := range perfs {
		s.TotalResolved += p.TotalTrades
		s.TotalPnL += p.TotalPnL
		if p.Profitable {
			s.ProfitableWhales++
		}
	}
	if s.QualifiedWhales > 0 {
		s.ProfitabilityRate = domain.RoundTo(float64(s.ProfitableWhales)/float64(s.QualifiedWhales)*100, 1)
	}
	return s
}
