package main

import (
	"os"
	"os/signal"
	"syscall"

	// Embedded zone database so the quota timezone resolves in minimal images
	_ "time/tzdata"

	"voicebroker/internal/bootstrap"
)

func main() {
	container := bootstrap.NewContainer()
	container.MustInit()

	if err := container.Start(); err != nil {
		container.Log.Errorw("Failed to start", "error", err)
		container.Shutdown()
		os.Exit(1)
	}

	waitForShutdown(container)
	container.Shutdown()
}

// waitForShutdown blocks until a termination signal arrives or a component cancels the root context
func waitForShutdown(c *bootstrap.Container) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		c.Log.Infow("Received shutdown signal", "signal", sig.String())
	case <-c.Context.Done():
		c.Log.Warn("Root context cancelled, shutting down")
	}
}
