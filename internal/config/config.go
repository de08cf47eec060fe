package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration for a backfiller instance.
type Config struct {
	LogLevel string   `yaml:"log_level"`
	Symbols  []string `yaml:"symbols"` // seed symbols registered at startup

	Provider  ProviderConfig  `yaml:"provider"`
	Database  DBConfig        `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Engine    EngineConfig    `yaml:"engine"`
	Writer    WriterConfig    `yaml:"writer"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Ops       OpsConfig       `yaml:"ops"`
}

// ProviderConfig holds upstream API settings.
type ProviderConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// DBConfig holds the Postgres connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ConnString builds a PostgreSQL connection string.
func (db DBConfig) ConnString() string {
	// URL-encode password to handle special characters
	escapedPassword := url.QueryEscape(db.Password)

	sslMode := db.SSLMode
	if sslMode == "" {
		sslMode = DefaultDBSSLMode
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.User,
		escapedPassword,
		db.Host,
		db.Port,
		db.Name,
		sslMode,
	)
}

// SchedulerConfig holds rate-limiter settings.
type SchedulerConfig struct {
	PerMinute     int           `yaml:"per_minute"`
	PerSecond     int           `yaml:"per_second"` // 0 disables the sub-window
	BatchCap      int           `yaml:"batch_cap"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	MinSleep      time.Duration `yaml:"min_sleep"`
	PruneInterval time.Duration `yaml:"prune_interval"`
	MaxPriority   int           `yaml:"max_priority"`
}

// EngineConfig holds reconciliation settings.
type EngineConfig struct {
	SettlementHour   int `yaml:"settlement_hour"`
	FetchBatchSize   int `yaml:"fetch_batch_size"`
	Priority         int `yaml:"priority"`
	RealtimePriority int `yaml:"realtime_priority"`
}

// WriterConfig holds background quote writer settings.
type WriterConfig struct {
	QueueSize  int           `yaml:"queue_size"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// SnapshotConfig holds periodic job settings.
type SnapshotConfig struct {
	Enabled          bool          `yaml:"enabled"`
	EODTime          string        `yaml:"eod_at"`
	IntradayEvery    time.Duration `yaml:"intraday_every"`
	BackfillDays     int           `yaml:"backfill_days"`
	JobTimeout       time.Duration `yaml:"job_timeout"`
	ReconcileOptions bool          `yaml:"reconcile_options"`
}

// OpsConfig holds the health/stats HTTP listener settings.
type OpsConfig struct {
	Port int `yaml:"port"`
}
