// Package tracker descubre whales en el tape público, registra sus posiciones
// grandes en el ledger y sigue los mercados recién listados.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/polywhale/internal/application/alerts"
	"github.com/alejandrodnm/polywhale/internal/application/schedule"
	"github.com/alejandrodnm/polywhale/internal/domain"
	"github.com/alejandrodnm/polywhale/internal/ports"
)

const (
	DefaultMinWhaleVolume  = 50000.0
	DefaultMinPositionSize = 5000.0
	DefaultTapePages       = 4
	DefaultTapePageSize    = 500
	DefaultEnrichTop       = 50
	DefaultMaxWhales       = 50
	DefaultMarketListLimit = 200
	DefaultIndexLimit      = 500
	DefaultCheckpointBatch = 10
	DefaultPriceMoveAlert  = 20.0
	DefaultDelay           = 500 * time.Millisecond
	DefaultCheckpointEvery = 5
	DefaultDiscoveryEvery  = 10
)

// Config contiene los umbrales y la cadencia del tracker.
type Config struct {
	MinWhaleVolume  float64 // volumen mínimo (tape + posiciones abiertas) para seguir un wallet
	MinPositionSize float64 // tamaño mínimo de posición a registrar
	TapePages       int
	TapePageSize    int
	EnrichTop       int // candidatos a los que se suma el valor de sus posiciones abiertas
	MaxWhales       int // whales por descubrimiento
	MarketListLimit int
	IndexLimit      int     // mercados indexados al arrancar
	CheckpointBatch int     // mercados por checkpoint y pasada
	PriceMoveAlert  float64 // % de movimiento a 1h que dispara alerta
	Delay           time.Duration
	CheckpointEvery int // cada cuántos ciclos se actualizan checkpoints
	DiscoveryEvery  int // cada cuántos ciclos se redescubren whales
	Destination     string
	Logger          *slog.Logger
}

func (c *Config) setDefaults() {
	if c.MinWhaleVolume <= 0 {
		c.MinWhaleVolume = DefaultMinWhaleVolume
	}
	if c.MinPositionSize <= 0 {
		c.MinPositionSize = DefaultMinPositionSize
	}
	if c.TapePages <= 0 {
		c.TapePages = DefaultTapePages
	}
	if c.TapePageSize <= 0 {
		c.TapePageSize = DefaultTapePageSize
	}
	if c.EnrichTop < 0 {
		c.EnrichTop = 0
	} else if c.EnrichTop == 0 {
		c.EnrichTop = DefaultEnrichTop
	}
	if c.MaxWhales <= 0 {
		c.MaxWhales = DefaultMaxWhales
	}
	if c.MarketListLimit <= 0 {
		c.MarketListLimit = DefaultMarketListLimit
	}
	if c.IndexLimit <= 0 {
		c.IndexLimit = DefaultIndexLimit
	}
	if c.CheckpointBatch <= 0 {
		c.CheckpointBatch = DefaultCheckpointBatch
	}
	if c.PriceMoveAlert <= 0 {
		c.PriceMoveAlert = DefaultPriceMoveAlert
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = DefaultCheckpointEvery
	}
	if c.DiscoveryEvery <= 0 {
		c.DiscoveryEvery = DefaultDiscoveryEvery
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Deps son los puertos que usa el Tracker. Notifier puede ser nil.
type Deps struct {
	Ledger    ports.Ledger
	Seen      ports.SeenMarketStore
	Trades    ports.TradeProvider
	Positions ports.PositionProvider
	Markets   ports.MarketProvider
	Notifier  ports.Notifier
}

// Tracker alimenta el ledger con whales y posiciones nuevas.
type Tracker struct {
	cfg      Config
	deps     Deps
	throttle *schedule.Throttle
	log      *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	cycles int
}

// New crea un Tracker.
func New(cfg Config, deps Deps) *Tracker {
	cfg.setDefaults()
	return &Tracker{
		cfg:      cfg,
		deps:     deps,
		throttle: schedule.NewThrottle(cfg.Delay, 0, 0),
		log:      cfg.Logger.With("component", "tracker"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithThrottle sustituye el throttle (tests).
func (t *Tracker) WithThrottle(th *schedule.Throttle) *Tracker {
	t.throttle = th
	return t
}

// WithClock sustituye el reloj (tests).
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// CycleResult resume un ciclo del tracker.
type CycleResult struct {
	Cycle        int
	WhalesPolled int
	NewPositions int
	NewMarkets   int
	Checkpoints  int
	NewWhales    int
	Discovered   bool
}

// RunCycle revisa las posiciones de todos los whales y los mercados nuevos.
// Cada CheckpointEvery ciclos actualiza checkpoints y cada DiscoveryEvery
// redescubre whales (también cuando todavía no hay ninguno).
// Los fallos de un paso se loguean y el ciclo sigue.
func (t *Tracker) RunCycle(ctx context.Context) (CycleResult, error) {
	t.mu.Lock()
	t.cycles++
	res := CycleResult{Cycle: t.cycles}
	t.mu.Unlock()

	start := t.now()
	whales, err := t.deps.Ledger.ListWhales(ctx)
	if err != nil {
		return res, fmt.Errorf("tracker.RunCycle: %w", err)
	}

	if len(whales) == 0 || res.Cycle%t.cfg.DiscoveryEvery == 0 {
		res.Discovered = true
		n, err := t.DiscoverWhales(ctx)
		if err != nil {
			t.log.Error("whale discovery failed", "err", err)
		}
		res.NewWhales = n
		if len(whales) == 0 && n > 0 {
			if whales, err = t.deps.Ledger.ListWhales(ctx); err != nil {
				return res, fmt.Errorf("tracker.RunCycle: %w", err)
			}
		}
	}

	for i, w := range whales {
		if i > 0 {
			if err := t.throttle.Wait(ctx); err != nil {
				return res, fmt.Errorf("tracker.RunCycle: %w", err)
			}
		}
		n, err := t.CheckWhalePositions(ctx, w.Address)
		if err != nil {
			t.log.Warn("whale positions failed", "whale", domain.ShortAddress(w.Address), "err", err)
			continue
		}
		res.WhalesPolled++
		res.NewPositions += n
	}

	if n, err := t.ScanNewMarkets(ctx); err != nil {
		t.log.Warn("new market scan failed", "err", err)
	} else {
		res.NewMarkets = n
	}

	if res.Cycle%t.cfg.CheckpointEvery == 0 {
		n, err := t.UpdateCheckpoints(ctx)
		if err != nil {
			t.log.Warn("checkpoint update failed", "err", err)
		}
		res.Checkpoints = n
	}

	t.log.Info("tracker cycle complete",
		"cycle", res.Cycle,
		"whales", res.WhalesPolled,
		"new_positions", res.NewPositions,
		"new_markets", res.NewMarkets,
		"checkpoints", res.Checkpoints,
		"new_whales", res.NewWhales,
		"duration", t.now().Sub(start).Round(time.Millisecond),
	)
	return res, ctx.Err()
}

type candidate struct {
	address   string
	pseudonym string
	volume    float64
	trades    int
}

// DiscoverWhales agrega el volumen del tape por wallet, suma el valor de las
// posiciones abiertas a los mayores y registra los que superan el mínimo.
// Devuelve cuántos whales son nuevos.
func (t *Tracker) DiscoverWhales(ctx context.Context) (int, error) {
	byWallet := make(map[string]*candidate)
	tradesSeen := 0

	for page := range t.cfg.TapePages {
		if page > 0 {
			if err := t.throttle.Wait(ctx); err != nil {
				return 0, fmt.Errorf("tracker.DiscoverWhales: %w", err)
			}
		}
		trades, err := t.deps.Trades.RecentTrades(ctx, t.cfg.TapePageSize, page*t.cfg.TapePageSize)
		if err != nil {
			if page == 0 {
				return 0, fmt.Errorf("tracker.DiscoverWhales: %w", err)
			}
			t.log.Warn("trade tape page failed", "page", page, "err", err)
			break
		}
		for _, tr := range trades {
			c, ok := byWallet[tr.Wallet]
			if !ok {
				c = &candidate{address: tr.Wallet}
				byWallet[tr.Wallet] = c
			}
			if c.pseudonym == "" {
				c.pseudonym = tr.Pseudonym
			}
			c.volume += tr.Value()
			c.trades++
		}
		tradesSeen += len(trades)
		if len(trades) < t.cfg.TapePageSize {
			break
		}
	}

	cands := make([]*candidate, 0, len(byWallet))
	for _, c := range byWallet {
		cands = append(cands, c)
	}
	sortCandidates(cands)

	for i, c := range cands {
		if i >= t.cfg.EnrichTop {
			break
		}
		if err := t.throttle.Wait(ctx); err != nil {
			return 0, fmt.Errorf("tracker.DiscoverWhales: %w", err)
		}
		positions, err := t.deps.Positions.WalletPositions(ctx, c.address)
		if err != nil {
			t.log.Debug("wallet positions unavailable", "whale", domain.ShortAddress(c.address), "err", err)
			continue
		}
		for _, p := range positions {
			c.volume += p.CurrentValue
		}
	}
	sortCandidates(cands)

	created := 0
	kept := 0
	for _, c := range cands {
		if kept >= t.cfg.MaxWhales || c.volume < t.cfg.MinWhaleVolume {
			break
		}
		kept++
		volume := math.Round(c.volume*100) / 100

		isNew, err := t.deps.Ledger.UpsertWhale(ctx, c.address, volume, c.pseudonym)
		if err != nil {
			return created, fmt.Errorf("tracker.DiscoverWhales: %w", err)
		}
		if !isNew {
			if err := t.deps.Ledger.UpdateWhaleVolume(ctx, c.address, volume); err != nil {
				return created, fmt.Errorf("tracker.DiscoverWhales: %w", err)
			}
			continue
		}
		created++
		t.log.Info("new whale", "whale", domain.ShortAddress(c.address), "volume", volume, "trades", c.trades)
		t.alert(ctx, alerts.FormatNewWhale(c.address, c.pseudonym, volume))
	}

	t.log.Info("whale discovery complete", "trades", tradesSeen, "wallets", len(byWallet), "kept", kept, "new", created)
	return created, nil
}

// sortCandidates ordena por volumen descendente, desempate por dirección.
func sortCandidates(cs []*candidate) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].volume != cs[j].volume {
			return cs[i].volume > cs[j].volume
		}
		return cs[i].address < cs[j].address
	})
}

// CheckWhalePositions registra las posiciones abiertas del whale que superan
// el tamaño mínimo y todavía no están en el ledger. Devuelve cuántas son nuevas.
func (t *Tracker) CheckWhalePositions(ctx context.Context, address string) (int, error) {
	address = domain.NormalizeAddress(address)
	whale, err := t.deps.Ledger.GetWhale(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("tracker.CheckWhalePositions: %w", err)
	}
	positions, err := t.deps.Positions.WalletPositions(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("tracker.CheckWhalePositions: %w", err)
	}

	recorded := 0
	for _, wp := range positions {
		size := wp.Exposure()
		side := strings.ToUpper(strings.TrimSpace(wp.Outcome))
		if size < t.cfg.MinPositionSize || side == "" || wp.ConditionID == "" {
			continue
		}

		exists, err := t.deps.Ledger.PositionExists(ctx, address, wp.ConditionID, side)
		if err != nil {
			return recorded, fmt.Errorf("tracker.CheckWhalePositions: %w", err)
		}
		if exists {
			continue
		}

		if _, err := t.deps.Ledger.EnsureMarket(ctx, wp.ConditionID, wp.Title); err != nil {
			return recorded, fmt.Errorf("tracker.CheckWhalePositions: %w", err)
		}
		np := domain.NewPosition{
			WhaleAddress:   address,
			MarketID:       wp.ConditionID,
			MarketQuestion: wp.Title,
			Side:           side,
			Size:           size,
			EntryPrice:     wp.AvgPrice,
			EntryTime:      t.now(),
		}
		if _, err := t.deps.Ledger.RecordPosition(ctx, np); err != nil {
			if errors.Is(err, domain.ErrDuplicatePosition) {
				continue
			}
			return recorded, fmt.Errorf("tracker.CheckWhalePositions: %w", err)
		}
		recorded++
		t.log.Info("new whale position",
			"whale", domain.ShortAddress(address),
			"market", wp.ConditionID,
			"side", side,
			"size", size,
			"entry", wp.AvgPrice,
		)
		t.alert(ctx, alerts.FormatNewPosition(np, *whale))
	}
	return recorded, nil
}

// ScanNewMarkets registra los mercados activos que no se habían visto y avisa
// de cada uno. Devuelve cuántos son nuevos.
func (t *Tracker) ScanNewMarkets(ctx context.Context) (int, error) {
	return t.indexMarkets(ctx, true)
}

// IndexExistingMarkets registra los mercados activos sin alertar y sin precio
// inicial (no entran en los checkpoints). Se usa al arrancar para que el
// primer ScanNewMarkets no avise del catálogo entero.
func (t *Tracker) IndexExistingMarkets(ctx context.Context) (int, error) {
	return t.indexMarkets(ctx, false)
}

func (t *Tracker) indexMarkets(ctx context.Context, alert bool) (int, error) {
	limit := t.cfg.MarketListLimit
	if !alert {
		limit = t.cfg.IndexLimit
	}
	markets, err := t.deps.Markets.ListActiveMarkets(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("tracker.indexMarkets: %w", err)
	}

	added := 0
	for _, m := range markets {
		seen, err := t.deps.Seen.IsMarketSeen(ctx, m.ConditionID)
		if err != nil {
			return added, fmt.Errorf("tracker.indexMarkets: %w", err)
		}
		if seen {
			continue
		}

		sm := domain.SeenMarket{
			ConditionID: m.ConditionID,
			Slug:        m.Slug,
			Question:    m.Question,
			FirstSeen:   t.now(),
			Volume:      m.Volume,
			Liquidity:   m.Liquidity,
		}
		if alert && m.HasPrices {
			yes, no := m.YesPrice, m.NoPrice
			sm.InitialYes, sm.InitialNo = &yes, &no
		}
		ok, err := t.deps.Seen.AddSeenMarket(ctx, sm)
		if err != nil {
			return added, fmt.Errorf("tracker.indexMarkets: %w", err)
		}
		if !ok {
			continue
		}
		added++
		if alert {
			t.log.Info("new market", "market", m.ConditionID, "question", m.Question)
			t.alert(ctx, alerts.FormatNewMarket(m))
		}
	}
	if !alert {
		t.log.Info("markets indexed", "listed", len(markets), "added", added)
	}
	return added, nil
}

// UpdateCheckpoints toma el precio actual de los mercados cuyo checkpoint
// venció. A 1h avisa si el precio se movió más de PriceMoveAlert %.
func (t *Tracker) UpdateCheckpoints(ctx context.Context) (int, error) {
	now := t.now()
	updated := 0

	for _, cp := range domain.Checkpoints {
		due, err := t.deps.Seen.MarketsNeedingCheckpoint(ctx, cp, now, t.cfg.CheckpointBatch)
		if err != nil {
			return updated, fmt.Errorf("tracker.UpdateCheckpoints: %w", err)
		}
		if len(due) == 0 {
			continue
		}

		ids := make([]string, len(due))
		for i, m := range due {
			ids[i] = m.ConditionID
		}
		infos, err := t.deps.Markets.MarketsByCondition(ctx, ids)
		if err != nil {
			t.log.Warn("checkpoint prices unavailable", "checkpoint", cp, "err", err)
			continue
		}

		for _, m := range due {
			info, ok := infos[m.ConditionID]
			if !ok || !info.HasPrices {
				continue
			}
			if err := t.deps.Seen.UpdateCheckpoint(ctx, m.ConditionID, cp, info.YesPrice); err != nil {
				return updated, fmt.Errorf("tracker.UpdateCheckpoints: %w", err)
			}
			updated++

			if cp != domain.Checkpoint1h {
				continue
			}
			if pct, ok := m.MoveSince(info.YesPrice); ok && math.Abs(pct) > t.cfg.PriceMoveAlert {
				t.log.Info("price move", "market", m.ConditionID, "checkpoint", cp, "pct", domain.RoundTo(pct, 1))
				t.alert(ctx, alerts.FormatPriceMove(m, cp, info.YesPrice, pct))
			}
		}
	}
	return updated, nil
}

func (t *Tracker) alert(ctx context.Context, text string) {
	if t.deps.Notifier == nil {
		return
	}
	if err := t.deps.Notifier.Send(ctx, t.cfg.Destination, text); err != nil {
		t.log.Warn("alert failed", "err", err)
	}
}
