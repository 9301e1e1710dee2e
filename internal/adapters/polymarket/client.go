package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultCLOBBase  = "https://clob.polymarket.com"
	defaultGammaBase = "https://gamma-api.polymarket.com"
	defaultDataBase  = "https://data-api.polymarket.com"

	// Rate limits al 60% de los límites reales documentados.
	// Gamma /markets: 300/10s → 180/10s → 18/s
	gammaRatePerSec = 18
	// CLOB /markets/{id}: 9000/10s → 5400/10s; el oráculo no necesita tanto.
	clobRatePerSec = 50
	// Data API /trades, /positions: sin límite documentado, conservador.
	dataRatePerSec = 10

	defaultTimeout       = 15 * time.Second
	defaultMaxRetries    = 3
	defaultBaseRetryWait = 500 * time.Millisecond
)

// Config parametriza el Client. Los campos vacíos usan los valores de producción.
type Config struct {
	CLOBBase      string
	GammaBase     string
	DataBase      string
	Timeout       time.Duration // por request
	MaxRetries    int
	BaseRetryWait time.Duration
	Logger        *slog.Logger
}

// Client es el HTTP client de Polymarket con rate limiting y retries.
// Implementa ports.ResolutionOracle, ports.PriceProvider, ports.MarketProvider,
// ports.TradeProvider y ports.PositionProvider.
type Client struct {
	http          *http.Client
	clobBase      string
	gammaBase     string
	dataBase      string
	maxRetries    int
	baseRetryWait time.Duration
	log           *slog.Logger
	clobLimiter   *rate.Limiter
	gammaLimiter  *rate.Limiter
	dataLimiter   *rate.Limiter
}

// NewClient crea un Client. Si algún base URL está vacío usa el de producción.
func NewClient(cfg Config) *Client {
	if cfg.CLOBBase == "" {
		cfg.CLOBBase = defaultCLOBBase
	}
	if cfg.GammaBase == "" {
		cfg.GammaBase = defaultGammaBase
	}
	if cfg.DataBase == "" {
		cfg.DataBase = defaultDataBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BaseRetryWait <= 0 {
		cfg.BaseRetryWait = defaultBaseRetryWait
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		http:          &http.Client{Timeout: cfg.Timeout},
		clobBase:      cfg.CLOBBase,
		gammaBase:     cfg.GammaBase,
		dataBase:      cfg.DataBase,
		maxRetries:    cfg.MaxRetries,
		baseRetryWait: cfg.BaseRetryWait,
		log:           cfg.Logger.With("component", "polymarket"),
		clobLimiter:   rate.NewLimiter(clobRatePerSec, 10),
		gammaLimiter:  rate.NewLimiter(gammaRatePerSec, 10),
		dataLimiter:   rate.NewLimiter(dataRatePerSec, 5),
	}
}

// StatusError es una respuesta HTTP no reintentable (4xx distinto de 429).
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("client error %d: %s", e.Code, e.Body)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial. 429, 5xx y errores
// de red se reintentan hasta maxRetries; el resto de 4xx falla enseguida.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, fn func() (*http.Response, error), out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return fmt.Errorf("request cancelled: %w", ctx.Err())
			}
			if attempt < c.maxRetries {
				c.sleep(ctx, attempt)
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = fmt.Errorf("rate limited (429)")
			c.log.Warn("rate limited by API", "attempt", attempt+1)
			if attempt < c.maxRetries {
				c.sleep(ctx, attempt)
			}
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error %d", resp.StatusCode)
			if attempt < c.maxRetries {
				c.sleep(ctx, attempt)
			}
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return &StatusError{Code: resp.StatusCode, Body: string(body)}
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries: %w", c.maxRetries, lastErr)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
