package main

import (
	"log/slog"
	"os"

	"hive-auth/internal/app"
	"hive-auth/internal/logger"
)

func main() {
	// Until config is loaded the level is fixed at info.
	logger.Setup(os.Stdout, "info", "pretty")

	application, err := app.New()
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}
