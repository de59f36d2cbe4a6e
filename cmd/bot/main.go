// Command bot is the single trading-engine entrypoint: it loads
// configuration, wires an exchange client (mock or live HTTP), and runs
// the engine until SIGINT/SIGTERM. One process, no gRPC surface, no
// separate stream server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/bootstrap"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/engine"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/eventlog"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/exchange"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/shutdown"
	"github.com/Strauch27/trading-bot-professional-sub000/pkg/telemetry"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	runDate := time.Now().UTC().Format("2006-01-02")

	app, err := bootstrap.NewApp(*configPath, runDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}

	client := buildExchangeClient(app)
	events := eventlog.New(app.Logger)
	coord := shutdown.New(app.Logger)

	tel, err := telemetry.Setup("trading-bot")
	if err != nil {
		app.Logger.Error("telemetry setup failed, running without metrics", "error", err.Error())
	} else {
		coord.RegisterComponent("telemetry", telemetryStopper{tel})
	}

	events.ConfigSnapshot(app.Cfg.String(), "dev", "startup")

	go coord.RunHeartbeatMonitor(context.Background(), shutdown.DefaultHeartbeatMonitorConfig())

	eng := engine.New(app.Cfg, client, app.Logger, events, coord)

	if err := app.Run(eng); err != nil {
		app.Logger.Error("engine exited with error", "error", err.Error())
		app.Shutdown(10 * time.Second)
		os.Exit(2)
	}

	app.Shutdown(10 * time.Second)
}

// buildExchangeClient selects the mock in-memory client (dry runs, local
// testing) or a generic HMAC-signed REST client over the configured base
// URL. A concrete venue adapter (Binance/OKX/Bybit-specific path and
// param shapes) is out of scope; HTTPClient carries the resilience
// contract (retry, rate limit, clock-skew resync) against a
// venue-neutral REST shape. It has no circuit breaker.
func buildExchangeClient(app *bootstrap.App) exchange.Client {
	cfg := app.Cfg
	if cfg.Exchange.Name == "mock" || cfg.Exchange.Name == "" {
		app.Logger.Info("using mock exchange client", "exchange", cfg.Exchange.Name)
		return exchange.NewMockClient()
	}

	signer := exchange.HMACSigner{
		APIKey:    string(cfg.Exchange.APIKey),
		SecretKey: string(cfg.Exchange.SecretKey),
	}
	httpClient := exchange.NewHTTPClient(cfg.Exchange.BaseURL, signer, app.Logger)
	app.Logger.Info("using live exchange client", "exchange", cfg.Exchange.Name, "base_url", cfg.Exchange.BaseURL)
	return exchange.NewLiveClient(httpClient)
}

// telemetryStopper adapts telemetry.Telemetry's context-taking Shutdown to
// the shutdown coordinator's Stoppable interface.
type telemetryStopper struct{ t *telemetry.Telemetry }

func (s telemetryStopper) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.t.Shutdown(ctx)
}
