package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Provider.APIKey == "" {
		return errors.New("provider.api_key is required")
	}

	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Name == "" {
		return errors.New("database.name is required")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}

	if c.Scheduler.PerMinute < 1 {
		return errors.New("scheduler.per_minute must be >= 1")
	}
	if c.Scheduler.PerSecond < 0 {
		return errors.New("scheduler.per_second must be >= 0")
	}
	if c.Scheduler.BatchCap < 1 {
		return errors.New("scheduler.batch_cap must be >= 1")
	}
	if c.Scheduler.MaxPriority < 0 {
		return errors.New("scheduler.max_priority must be >= 0")
	}

	if c.Engine.SettlementHour < 0 || c.Engine.SettlementHour > 23 {
		return fmt.Errorf("engine.settlement_hour must be between 0 and 23, got %d", c.Engine.SettlementHour)
	}
	if c.Engine.FetchBatchSize < 1 {
		return errors.New("engine.fetch_batch_size must be >= 1")
	}

	if c.Writer.QueueSize < 1 {
		return errors.New("writer.queue_size must be >= 1")
	}

	if _, err := time.Parse("15:04", c.Snapshot.EODTime); err != nil {
		return fmt.Errorf("snapshot.eod_at must be HH:MM, got %q", c.Snapshot.EODTime)
	}
	if c.Snapshot.IntradayEvery < time.Minute {
		return errors.New("snapshot.intraday_every must be >= 1m")
	}

	if c.Ops.Port < 1 || c.Ops.Port > 65535 {
		return fmt.Errorf("ops.port must be between 1 and 65535, got %d", c.Ops.Port)
	}

	return nil
}
