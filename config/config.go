package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// JobDisabled desactiva un job del scheduler cuando se usa como spec.
const JobDisabled = "off"

// Config es la configuración completa de polywhale.
type Config struct {
	API        APIConfig        `yaml:"api"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
	Resolution ResolutionConfig `yaml:"resolution"`
	Analyzer   AnalyzerConfig   `yaml:"analyzer"`
	Signals    SignalsConfig    `yaml:"signals"`
	Tracker    TrackerConfig    `yaml:"tracker"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Notify     NotifyConfig     `yaml:"notify"`
	Report     ReportConfig     `yaml:"report"`
}

// APIConfig contiene los base URLs de las APIs y la política de reintentos.
type APIConfig struct {
	CLOBBase       string `yaml:"clob_base"`
	GammaBase      string `yaml:"gamma_base"`
	DataBase       string `yaml:"data_base"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// ResolutionConfig controla las pasadas de resolución.
// Los ceros toman el default del engine.
type ResolutionConfig struct {
	QuickWindowHours int `yaml:"quick_window_hours"`
	QuickLimit       int `yaml:"quick_limit"`
	DelayMS          int `yaml:"delay_ms"`
	PauseEvery       int `yaml:"pause_every"`
	PauseMS          int `yaml:"pause_ms"`
	ProgressEvery    int `yaml:"progress_every"`
}

// AnalyzerConfig controla el ranking de rendimiento.
type AnalyzerConfig struct {
	MinResolved  int `yaml:"min_resolved"`
	ActivityDays int `yaml:"activity_days"`
	ActivityTop  int `yaml:"activity_top"`
}

// SignalsConfig contiene los umbrales de señal. Los umbrales en % son
// punteros para distinguir "ausente" (default) de un 0 explícito.
type SignalsConfig struct {
	MinWinRate        *float64 `yaml:"min_win_rate"`
	MinResolvedTrades int      `yaml:"min_resolved_trades"`
	MinROI            *float64 `yaml:"min_roi"`
	RecentHours       int      `yaml:"recent_hours"`
	MinEdge           *float64 `yaml:"min_edge"`
	MaxImpliedProb    float64  `yaml:"max_implied_prob"`
	MaxROIMultiplier  float64  `yaml:"max_roi_multiplier"`
	PriceDelayMS      int      `yaml:"price_delay_ms"`
}

// TrackerConfig controla el descubrimiento de whales y mercados nuevos.
type TrackerConfig struct {
	MinWhaleVolume  float64 `yaml:"min_whale_volume"`
	MinPositionSize float64 `yaml:"min_position_size"`
	TapePages       int     `yaml:"tape_pages"`
	TapePageSize    int     `yaml:"tape_page_size"`
	EnrichTop       int     `yaml:"enrich_top"`
	MaxWhales       int     `yaml:"max_whales"`
	MarketListLimit int     `yaml:"market_list_limit"`
	IndexLimit      int     `yaml:"index_limit"`
	CheckpointBatch int     `yaml:"checkpoint_batch"`
	PriceMoveAlert  float64 `yaml:"price_move_alert"` // % a 1h
	DelayMS         int     `yaml:"delay_ms"`
	CheckpointEvery int     `yaml:"checkpoint_every"`
	DiscoveryEvery  int     `yaml:"discovery_every"`
}

// ScheduleConfig contiene los specs de cron (con segundos o @every).
// "off" desactiva el job.
type ScheduleConfig struct {
	QuickUpdate  string `yaml:"quick_update"`
	FullUpdate   string `yaml:"full_update"`
	TrackerCycle string `yaml:"tracker_cycle"`
}

// NotifyConfig controla las alertas de Telegram. Sin token solo se loguean.
type NotifyConfig struct {
	TelegramToken     string `yaml:"telegram_token"`
	ChatID            string `yaml:"chat_id"`
	APIServer         string `yaml:"api_server"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	MinConsensusAlert int    `yaml:"min_consensus_alert"`
	ResolutionAlerts  bool   `yaml:"resolution_alerts"`
}

// ReportConfig controla los ficheros exportados para el dashboard.
// Una ruta vacía desactiva esa salida.
type ReportConfig struct {
	SnapshotPath     string `yaml:"snapshot_path"`
	ProgressPath     string `yaml:"progress_path"`
	SnapshotOpen     int    `yaml:"snapshot_open"`
	SnapshotResolved int    `yaml:"snapshot_resolved"`
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// HTTPTimeout devuelve el timeout por llamada a las APIs.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// QuickWindow devuelve la ventana de la pasada rápida.
func (r ResolutionConfig) QuickWindow() time.Duration {
	return time.Duration(r.QuickWindowHours) * time.Hour
}

func (r ResolutionConfig) Delay() time.Duration {
	return time.Duration(r.DelayMS) * time.Millisecond
}

func (r ResolutionConfig) Pause() time.Duration {
	return time.Duration(r.PauseMS) * time.Millisecond
}

func (a AnalyzerConfig) ActivityWindow() time.Duration {
	return time.Duration(a.ActivityDays) * 24 * time.Hour
}

func (s SignalsConfig) RecentWindow() time.Duration {
	return time.Duration(s.RecentHours) * time.Hour
}

func (s SignalsConfig) PriceDelay() time.Duration {
	return time.Duration(s.PriceDelayMS) * time.Millisecond
}

func (t TrackerConfig) Delay() time.Duration {
	return time.Duration(t.DelayMS) * time.Millisecond
}

func (n NotifyConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notify.TelegramToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notify.ChatID = v
	}
	if v := os.Getenv("POLYWHALE_DB"); v != "" {
		cfg.Storage.DSN = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
// Los umbrales de dominio que quedan a cero los completa cada componente.
func setDefaults(cfg *Config) {
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = "https://data-api.polymarket.com"
	}
	if cfg.API.TimeoutSeconds <= 0 {
		cfg.API.TimeoutSeconds = 15
	}
	if cfg.API.MaxRetries <= 0 {
		cfg.API.MaxRetries = 3
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polywhale.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Schedule.QuickUpdate == "" {
		cfg.Schedule.QuickUpdate = "@every 5m"
	}
	if cfg.Schedule.FullUpdate == "" {
		cfg.Schedule.FullUpdate = "@every 6h"
	}
	if cfg.Schedule.TrackerCycle == "" {
		cfg.Schedule.TrackerCycle = "@every 60s"
	}
	if cfg.Notify.TimeoutSeconds <= 0 {
		cfg.Notify.TimeoutSeconds = 10
	}
}
