// Package signals detecta posiciones recientes de whales probados cuyo
// historial implica una probabilidad de acierto mayor que la del mercado.
package signals

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/polywhale/internal/application/schedule"
	"github.com/alejandrodnm/polywhale/internal/domain"
	"github.com/alejandrodnm/polywhale/internal/ports"
)

const (
	DefaultMinWinRate        = 60.0
	DefaultMinResolvedTrades = 20
	DefaultMinROI            = 10.0
	DefaultRecentWindow      = 24 * time.Hour
	DefaultMinEdge           = 5.0
	DefaultMaxImpliedProb    = 0.95
	DefaultMaxROIMultiplier  = 1.5
	DefaultPriceDelay        = 300 * time.Millisecond
)

// Config contiene los umbrales de señal. Los umbrales en % son punteros:
// nil toma el default y 0 es un valor válido.
type Config struct {
	MinWinRate        *float64      // % mínimo de aciertos
	MinResolvedTrades int           // historial mínimo
	MinROI            *float64      // % mínimo de ROI
	RecentWindow      time.Duration // antigüedad máxima de la entrada
	MinEdge           *float64      // edge estrictamente mayor que esto
	MaxImpliedProb    float64
	MaxROIMultiplier  float64
	PriceDelay        time.Duration // entre consultas de precio
	Logger            *slog.Logger
}

func (c *Config) setDefaults() {
	if c.MinWinRate == nil {
		c.MinWinRate = Threshold(DefaultMinWinRate)
	}
	if c.MinResolvedTrades <= 0 {
		c.MinResolvedTrades = DefaultMinResolvedTrades
	}
	if c.MinROI == nil {
		c.MinROI = Threshold(DefaultMinROI)
	}
	if c.RecentWindow <= 0 {
		c.RecentWindow = DefaultRecentWindow
	}
	if c.MinEdge == nil {
		c.MinEdge = Threshold(DefaultMinEdge)
	}
	if c.MaxImpliedProb <= 0 || c.MaxImpliedProb > 1 {
		c.MaxImpliedProb = DefaultMaxImpliedProb
	}
	if c.MaxROIMultiplier <= 0 {
		c.MaxROIMultiplier = DefaultMaxROIMultiplier
	}
	if c.PriceDelay < 0 {
		c.PriceDelay = 0
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Threshold devuelve un puntero a v para los umbrales de Config.
func Threshold(v float64) *float64 {
	return &v
}

// WhaleSource es el subconjunto del ledger que usa el Engine.
type WhaleSource interface {
	WhaleStats(ctx context.Context, minResolved int) ([]domain.WhaleStats, error)
	OpenPositionsSince(ctx context.Context, address string, since time.Time) ([]domain.Position, error)
}

// Engine genera señales y consensos.
type Engine struct {
	cfg      Config
	source   WhaleSource
	prices   ports.PriceProvider
	throttle *schedule.Throttle
	log      *slog.Logger
	now      func() time.Time
}

// New crea un Engine.
func New(cfg Config, source WhaleSource, prices ports.PriceProvider) *Engine {
	cfg.setDefaults()
	return &Engine{
		cfg:      cfg,
		source:   source,
		prices:   prices,
		throttle: schedule.NewThrottle(cfg.PriceDelay, 0, 0),
		log:      cfg.Logger.With("component", "signals"),
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

// ProvenWhales devuelve los whales que superan los tres umbrales, ordenados
// por ROI descendente.
func (e *Engine) ProvenWhales(ctx context.Context) ([]domain.ProvenWhale, error) {
	stats, err := e.source.WhaleStats(ctx, e.cfg.MinResolvedTrades)
	if err != nil {
		return nil, fmt.Errorf("signals.ProvenWhales: %w", err)
	}

	var out []domain.ProvenWhale
	for _, st := range stats {
		pw := domain.ProvenWhale{
			Address:        st.Address,
			ResolvedTrades: st.ResolvedTrades,
			Wins:           st.Wins,
			Losses:         st.Losses,
			WinRate:        domain.RoundTo(st.WinRate(), 1),
			ROI:            domain.RoundTo(st.ROI(), 1),
			TotalPnL:       domain.RoundTo(st.TotalPnL, 2),
		}
		if pw.ResolvedTrades < e.cfg.MinResolvedTrades || pw.WinRate < *e.cfg.MinWinRate || pw.ROI < *e.cfg.MinROI {
			continue
		}
		out = append(out, pw)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ROI > out[j].ROI })
	return out, nil
}

// GenerateSignals evalúa las posiciones abiertas recientes de los whales
// probados contra el precio actual. Los mercados sin precio, inactivos o
// cerrados se saltan. Resultado ordenado por edge descendente.
func (e *Engine) GenerateSignals(ctx context.Context) ([]domain.Signal, error) {
	whales, err := e.ProvenWhales(ctx)
	if err != nil {
		return nil, err
	}
	if len(whales) == 0 {
		e.log.Info("no proven whales")
		return nil, nil
	}

	now := e.now()
	since := now.Add(-e.cfg.RecentWindow)
	cache := make(map[string]*domain.MarketPrices)
	fetched := 0

	var out []domain.Signal
	for _, w := range whales {
		positions, err := e.source.OpenPositionsSince(ctx, w.Address, since)
		if err != nil {
			return out, fmt.Errorf("signals.GenerateSignals: %w", err)
		}
		implied := domain.ImpliedWinProbability(w.WinRate, w.ROI, e.cfg.MaxROIMultiplier, e.cfg.MaxImpliedProb)

		for _, p := range positions {
			dir, err := domain.ParseOutcome(p.Side)
			if err != nil {
				continue
			}

			prices, seen := cache[p.MarketID]
			if !seen {
				if fetched > 0 {
					if err := e.throttle.Wait(ctx); err != nil {
						return out, fmt.Errorf("signals.GenerateSignals: %w", err)
					}
				}
				fetched++
				mp, err := e.prices.MarketPrices(ctx, p.MarketID)
				if err != nil {
					e.log.Debug("market prices unavailable", "market", p.MarketID, "err", err)
				} else {
					prices = &mp
				}
				cache[p.MarketID] = prices
			}
			if prices == nil || !prices.Active || prices.Closed {
				continue
			}

			edge, ok := domain.Edge(implied, prices.ImpliedProbability(dir))
			if !ok || edge <= *e.cfg.MinEdge {
				continue
			}

			out = append(out, domain.Signal{
				Whale:          w,
				MarketID:       p.MarketID,
				MarketQuestion: p.MarketQuestion,
				Direction:      dir,
				WhaleEntry:     p.EntryPrice,
				CurrentYes:     prices.Yes,
				CurrentNo:      prices.No,
				MarketPrice:    recommendedPrice(*prices, dir),
				Edge:           edge,
				Confidence:     domain.SignalConfidence(w.WinRate, w.ResolvedTrades, edge),
				TradeTime:      p.EntryTime,
				GeneratedAt:    now,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Edge > out[j].Edge })
	e.log.Info("signals generated", "whales", len(whales), "markets", fetched, "signals", len(out))
	return out, nil
}

func recommendedPrice(p domain.MarketPrices, dir domain.Outcome) float64 {
	if dir == domain.OutcomeYes {
		return p.Yes
	}
	if p.No > 0 {
		return p.No
	}
	return 1 - p.Yes
}

// DetectConsensus agrupa las señales por (mercado, dirección) y devuelve los
// grupos con al menos dos whales distintos, mejor edge medio primero.
func DetectConsensus(signals []domain.Signal) []domain.ConsensusSignal {
	type group struct {
		first   domain.Signal
		members []domain.ConsensusMember
		seen    map[string]bool
	}
	groups := make(map[string]*group)
	var order []string

	for _, s := range signals {
		key := s.Key()
		g, ok := groups[key]
		if !ok {
			g = &group{first: s, seen: make(map[string]bool)}
			groups[key] = g
			order = append(order, key)
		}
		addr := domain.NormalizeAddress(s.Whale.Address)
		if g.seen[addr] {
			continue
		}
		g.seen[addr] = true
		g.members = append(g.members, domain.ConsensusMember{
			Address: addr,
			WinRate: s.Whale.WinRate,
			Edge:    s.Edge,
			Trades:  s.Whale.ResolvedTrades,
		})
	}

	var out []domain.ConsensusSignal
	for _, key := range order {
		g := groups[key]
		if len(g.members) < 2 {
			continue
		}
		var wr, edge float64
		total := 0
		for _, m := range g.members {
			wr += m.WinRate
			edge += m.Edge
			total += m.Trades
		}
		n := float64(len(g.members))
		c := domain.ConsensusSignal{
			MarketID:       g.first.MarketID,
			MarketQuestion: g.first.MarketQuestion,
			Direction:      g.first.Direction,
			Whales:         g.members,
			AvgWinRate:     domain.RoundTo(wr/n, 1),
			AvgEdge:        domain.RoundTo(edge/n, 1),
			TotalTrades:    total,
		}
		c.Confidence = domain.ConsensusConfidence(len(g.members), c.AvgWinRate, c.AvgEdge, total)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AvgEdge != out[j].AvgEdge {
			return out[i].AvgEdge > out[j].AvgEdge
		}
		return out[i].AvgWinRate > out[j].AvgWinRate
	})
	return out
}
