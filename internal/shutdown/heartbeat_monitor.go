package shutdown

import (
	"context"
	"time"
)

// HeartbeatMonitorConfig configures the optional background watcher.
type HeartbeatMonitorConfig struct {
	CheckInterval        time.Duration // default 30s
	TimeoutThreshold     time.Duration // default 300s
	AutoShutdownOnMissed bool          // default false: warn-only
}

func DefaultHeartbeatMonitorConfig() HeartbeatMonitorConfig {
	return HeartbeatMonitorConfig{
		CheckInterval:    30 * time.Second,
		TimeoutThreshold: 300 * time.Second,
	}
}

// RunHeartbeatMonitor polls the last beat every CheckInterval; when it's
// older than TimeoutThreshold it logs HEARTBEAT_LATE and, if configured,
// files a shutdown request with reason HEARTBEAT_TIMEOUT. Returns when ctx
// is done or shutdown has already been requested.
func (c *Coordinator) RunHeartbeatMonitor(ctx context.Context, cfg HeartbeatMonitorConfig) {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.TimeoutThreshold <= 0 {
		cfg.TimeoutThreshold = 300 * time.Second
	}

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdownCh:
			return
		case <-ticker.C:
			if !c.IsHealthy() {
				c.log.Warn("registered component unhealthy", "event_type", "HEALTH_CHECK_FAILED", "status", c.HealthStatus())
			}

			label, ts, ok := c.LastBeat()
			if !ok {
				continue
			}
			if time.Since(ts) > cfg.TimeoutThreshold {
				c.log.Warn("heartbeat late", "event_type", "HEARTBEAT_LATE", "last_label", label, "age_s", time.Since(ts).Seconds())
				if cfg.AutoShutdownOnMissed {
					c.RequestShutdown(Request{Reason: "HEARTBEAT_TIMEOUT", Initiator: "heartbeat_monitor"})
					return
				}
			}
		}
	}
}
