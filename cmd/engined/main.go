// engined is the betting decision engine daemon: wave scheduler, agents,
// fanout broker, and document store in one process.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/betflow/betflow/internal/config"
	"github.com/betflow/betflow/internal/orchestrator"
	"github.com/betflow/betflow/internal/store"
	"github.com/betflow/betflow/internal/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		telemetry.Errorf("engined: open store: %v", err)
		os.Exit(1)
	}

	rt, err := orchestrator.New(cfg, st, orchestrator.Deps{})
	if err != nil {
		telemetry.Errorf("engined: build runtime: %v", err)
		st.Close()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt.Start(ctx)
	telemetry.Plainf("engined: running (store %s, fanout :%d)", cfg.StorePath, cfg.FanoutPort)

	<-ctx.Done()
	telemetry.Infof("engined: shutdown signal received")
	if err := rt.Shutdown(); err != nil {
		telemetry.Errorf("engined: shutdown: %v", err)
		os.Exit(1)
	}
}
