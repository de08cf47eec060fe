package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultLogLevel         = "info"
	DefaultBaseURL          = "https://www.alphavantage.co/query"
	DefaultAPITimeout       = 30 * time.Second
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultPerMinute        = 600
	DefaultPerSecond        = 20
	DefaultBatchCap         = 20
	DefaultMaxRetries       = 10
	DefaultRetryDelay       = 50 * time.Millisecond
	DefaultMinSleep         = 10 * time.Millisecond
	DefaultPruneInterval    = 50 * time.Millisecond
	DefaultMaxPriority      = 10
	DefaultSettlementHour   = 21
	DefaultFetchBatchSize   = 35
	DefaultPriority         = 10
	DefaultRealtimePriority = 1
	DefaultWriterQueueSize  = 256
	DefaultWriterRetries    = 3
	DefaultWriterRetryDelay = time.Second
	DefaultEODTime          = "21:05"
	DefaultIntradayEvery    = 15 * time.Minute
	DefaultBackfillDays     = 30
	DefaultJobTimeout       = 10 * time.Minute
	DefaultOpsPort          = 8080
)

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	// Provider defaults
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = DefaultBaseURL
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = DefaultAPITimeout
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Scheduler defaults
	if c.Scheduler.PerMinute == 0 {
		c.Scheduler.PerMinute = DefaultPerMinute
	}
	if c.Scheduler.PerSecond == 0 {
		c.Scheduler.PerSecond = DefaultPerSecond
	}
	if c.Scheduler.BatchCap == 0 {
		c.Scheduler.BatchCap = DefaultBatchCap
	}
	if c.Scheduler.MaxRetries == 0 {
		c.Scheduler.MaxRetries = DefaultMaxRetries
	}
	if c.Scheduler.RetryDelay == 0 {
		c.Scheduler.RetryDelay = DefaultRetryDelay
	}
	if c.Scheduler.MinSleep == 0 {
		c.Scheduler.MinSleep = DefaultMinSleep
	}
	if c.Scheduler.PruneInterval == 0 {
		c.Scheduler.PruneInterval = DefaultPruneInterval
	}
	if c.Scheduler.MaxPriority == 0 {
		c.Scheduler.MaxPriority = DefaultMaxPriority
	}

	// Engine defaults
	if c.Engine.SettlementHour == 0 {
		c.Engine.SettlementHour = DefaultSettlementHour
	}
	if c.Engine.FetchBatchSize == 0 {
		c.Engine.FetchBatchSize = DefaultFetchBatchSize
	}
	if c.Engine.Priority == 0 {
		c.Engine.Priority = DefaultPriority
	}
	if c.Engine.RealtimePriority == 0 {
		c.Engine.RealtimePriority = DefaultRealtimePriority
	}

	// Writer defaults
	if c.Writer.QueueSize == 0 {
		c.Writer.QueueSize = DefaultWriterQueueSize
	}
	if c.Writer.MaxRetries == 0 {
		c.Writer.MaxRetries = DefaultWriterRetries
	}
	if c.Writer.RetryDelay == 0 {
		c.Writer.RetryDelay = DefaultWriterRetryDelay
	}

	// Snapshot defaults
	if c.Snapshot.EODTime == "" {
		c.Snapshot.EODTime = DefaultEODTime
	}
	if c.Snapshot.IntradayEvery == 0 {
		c.Snapshot.IntradayEvery = DefaultIntradayEvery
	}
	if c.Snapshot.BackfillDays == 0 {
		c.Snapshot.BackfillDays = DefaultBackfillDays
	}
	if c.Snapshot.JobTimeout == 0 {
		c.Snapshot.JobTimeout = DefaultJobTimeout
	}

	// Ops defaults
	if c.Ops.Port == 0 {
		c.Ops.Port = DefaultOpsPort
	}
}
