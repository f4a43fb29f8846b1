package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is built once in main and handed to every component constructor.
// Nothing reads configuration from globals.
type Config struct {
	RPC      RPCConfig      `mapstructure:"rpc"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Position PositionConfig `mapstructure:"position"`
	State    StateConfig    `mapstructure:"state"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Log      LogConfig      `mapstructure:"log"`
}

type RPCConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	WebsocketURL   string        `mapstructure:"websocket_url"`
	MinCallSpacing time.Duration `mapstructure:"min_call_spacing"`
	MaxInFlight    int64         `mapstructure:"max_in_flight"`
	MaxRetries     uint          `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`
}

type ScannerConfig struct {
	ProgramID   string        `mapstructure:"program_id"`
	Commitment  string        `mapstructure:"commitment"`
	DedupeTTL   time.Duration `mapstructure:"dedupe_ttl"`
	QueueSize   int           `mapstructure:"queue_size"`
	MintSuffix  string        `mapstructure:"mint_suffix"`
	SampleSlice int           `mapstructure:"sample_slice"`
}

type PipelineConfig struct {
	Workers          int           `mapstructure:"workers"`
	QueueSize        int           `mapstructure:"queue_size"`
	ValidationTTL    time.Duration `mapstructure:"validation_ttl"`
	VolumeWeight     float64       `mapstructure:"volume_weight"`
	HolderWeight     float64       `mapstructure:"holder_weight"`
	CurveWeight      float64       `mapstructure:"curve_weight"`
	MinScore         float64       `mapstructure:"min_score"`
	MinProgress      float64       `mapstructure:"min_progress"`
	GraduatedAt      float64       `mapstructure:"graduated_at"`
	MinLiquiditySOL  float64       `mapstructure:"min_liquidity_sol"`
	MinHolders       int           `mapstructure:"min_holders"`
	MinVolumeSOL     float64       `mapstructure:"min_volume_sol"`
	MinInitialBuySOL float64       `mapstructure:"min_initial_buy_sol"`
	FreshMaxProgress float64       `mapstructure:"fresh_max_progress"`
	MintFetchRetries uint          `mapstructure:"mint_fetch_retries"`
}

type PositionConfig struct {
	MonitorInterval   time.Duration `mapstructure:"monitor_interval"`
	MaxPositions      int           `mapstructure:"max_positions"`
	DailyLossLimitSOL float64       `mapstructure:"daily_loss_limit_sol"`
	Tier1MinPct       float64       `mapstructure:"tier1_min_pct"`
	Tier1MaxPct       float64       `mapstructure:"tier1_max_pct"`
	Tier1SellFraction float64       `mapstructure:"tier1_sell_fraction"`
	Tier2MinPct       float64       `mapstructure:"tier2_min_pct"`
	Tier2AccelPct     float64       `mapstructure:"tier2_accel_pct"`
	StopLossPct       float64       `mapstructure:"stop_loss_pct"`
	MaxHoldSlots      uint64        `mapstructure:"max_hold_slots"`
	DecayNeedsProfit  bool          `mapstructure:"decay_needs_profit"`
}

type StateConfig struct {
	DataDir          string        `mapstructure:"data_dir"`
	WALFlushSize     int           `mapstructure:"wal_flush_size"`
	WALFlushInterval time.Duration `mapstructure:"wal_flush_interval"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	SnapshotKeep     int           `mapstructure:"snapshot_keep"`
}

type TradingConfig struct {
	DryRun        bool    `mapstructure:"dry_run"`
	BuyAmountSOL  float64 `mapstructure:"buy_amount_sol"`
	PrivateKeyEnv string  `mapstructure:"private_key_env"`
}

type LogConfig struct {
	File        string `mapstructure:"file"`
	Development bool   `mapstructure:"development"`
}

// DefaultProgramID is the pump.fun program on mainnet.
const DefaultProgramID = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("SNIPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, Validate(&cfg)
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]interface{}{
		"rpc.min_call_spacing":          100 * time.Millisecond,
		"rpc.max_in_flight":             4,
		"rpc.max_retries":               5,
		"rpc.retry_base_delay":          250 * time.Millisecond,
		"rpc.retry_max_delay":           5 * time.Second,
		"scanner.program_id":            DefaultProgramID,
		"scanner.commitment":            "processed",
		"scanner.dedupe_ttl":            60 * time.Second,
		"scanner.queue_size":            256,
		"scanner.mint_suffix":           "pump",
		"scanner.sample_slice":          4,
		"pipeline.workers":              3,
		"pipeline.queue_size":           128,
		"pipeline.validation_ttl":       5 * time.Minute,
		"pipeline.volume_weight":        0.4,
		"pipeline.holder_weight":        0.2,
		"pipeline.curve_weight":         0.4,
		"pipeline.min_score":            40.0,
		"pipeline.min_progress":         5.0,
		"pipeline.graduated_at":         99.0,
		"pipeline.min_liquidity_sol":    0.5,
		"pipeline.min_holders":          10,
		"pipeline.min_volume_sol":       0.5,
		"pipeline.min_initial_buy_sol":  0.1,
		"pipeline.fresh_max_progress":   30.0,
		"pipeline.mint_fetch_retries":   3,
		"position.monitor_interval":     3 * time.Second,
		"position.max_positions":        5,
		"position.daily_loss_limit_sol": 1.0,
		"position.tier1_min_pct":        50.0,
		"position.tier1_max_pct":        100.0,
		"position.tier1_sell_fraction":  0.5,
		"position.tier2_min_pct":        100.0,
		"position.tier2_accel_pct":      5.0,
		"position.stop_loss_pct":        -15.0,
		"position.max_hold_slots":       9000,
		"position.decay_needs_profit":   false,
		"state.data_dir":                "data",
		"state.wal_flush_size":          100,
		"state.wal_flush_interval":      5 * time.Second,
		"state.snapshot_interval":       5 * time.Minute,
		"state.snapshot_keep":           5,
		"trading.dry_run":               true,
		"trading.buy_amount_sol":        0.1,
		"trading.private_key_env":       "SNIPER_PRIVATE_KEY",
		"log.file":                      "sniper.log",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Validate checks cross-field constraints before any component is built.
func Validate(cfg *Config) error {
	if cfg.RPC.Endpoint == "" {
		return errors.New("rpc.endpoint is required")
	}
	if err := validateURL(cfg.RPC.Endpoint, "http"); err != nil {
		return fmt.Errorf("invalid rpc.endpoint: %w", err)
	}
	if cfg.RPC.WebsocketURL == "" {
		return errors.New("rpc.websocket_url is required")
	}
	if err := validateURL(cfg.RPC.WebsocketURL, "ws"); err != nil {
		return fmt.Errorf("invalid rpc.websocket_url: %w", err)
	}
	if cfg.RPC.MaxInFlight <= 0 {
		return errors.New("rpc.max_in_flight must be positive")
	}
	if cfg.RPC.MinCallSpacing <= 0 {
		return errors.New("rpc.min_call_spacing must be positive")
	}
	if cfg.Scanner.ProgramID == "" {
		return errors.New("scanner.program_id is required")
	}
	if cfg.Scanner.DedupeTTL <= 0 {
		return errors.New("scanner.dedupe_ttl must be positive")
	}
	if cfg.Pipeline.Workers <= 0 {
		return errors.New("pipeline.workers must be positive")
	}
	weightSum := cfg.Pipeline.VolumeWeight + cfg.Pipeline.HolderWeight + cfg.Pipeline.CurveWeight
	if math.Abs(weightSum-1.0) > 1e-9 {
		return fmt.Errorf("pipeline score weights must sum to 1, got %.4f", weightSum)
	}
	if cfg.Pipeline.MinProgress < 0 || cfg.Pipeline.GraduatedAt > 100 ||
		cfg.Pipeline.MinProgress >= cfg.Pipeline.GraduatedAt {
		return errors.New("pipeline progress band is invalid")
	}
	if cfg.Position.MonitorInterval <= 0 {
		return errors.New("position.monitor_interval must be positive")
	}
	if cfg.Position.MaxPositions <= 0 {
		return errors.New("position.max_positions must be positive")
	}
	if cfg.Position.Tier1SellFraction <= 0 || cfg.Position.Tier1SellFraction > 1 {
		return errors.New("position.tier1_sell_fraction must be in (0, 1]")
	}
	if cfg.Position.StopLossPct >= 0 {
		return errors.New("position.stop_loss_pct must be negative")
	}
	if cfg.State.WALFlushSize <= 0 || cfg.State.SnapshotKeep <= 0 {
		return errors.New("state flush size and snapshot retention must be positive")
	}
	if !cfg.Trading.DryRun && os.Getenv(cfg.Trading.PrivateKeyEnv) == "" {
		return fmt.Errorf("live trading requires %s to be set", cfg.Trading.PrivateKeyEnv)
	}
	return nil
}

func validateURL(raw, scheme string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(u.Scheme, scheme) {
		return fmt.Errorf("expected %s(s) scheme, got %q", scheme, u.Scheme)
	}
	return nil
}
