// Command parityarb runs the cross-venue parity arbitrage engine. It loads
// configuration, validates it, sets up signal handling, and starts the
// application in the configured mode.
//
//	parityarb -config config.toml
//	parityarb encrypt-key -in kalshi.pem -out kalshi.pem.enc
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/parityarb/internal/app"
	"github.com/alanyoungcy/parityarb/internal/config"
	"github.com/alanyoungcy/parityarb/internal/crypto"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "encrypt-key" {
		if err := encryptKey(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt-key: %v\n", err)
			os.Exit(1)
		}
		return
	}

	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.Parse()

	logger := newLogger("info")
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger = newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("parityarb starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Bool("live_trading", cfg.LiveTrading()),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		application.Close()
		os.Exit(1)
	}

	logger.Info("parityarb stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// encryptKey seals a venue private key so it can be referenced by a
// private_key_path ending in ".enc". The password is read from the
// environment to keep it out of shell history.
func encryptKey(args []string) error {
	fs := flag.NewFlagSet("encrypt-key", flag.ContinueOnError)
	in := fs.String("in", "", "plaintext key file")
	out := fs.String("out", "", "sealed output file (default <in>.enc)")
	passwordEnv := fs.String("password-env", config.EnvPrefix+"KEY_PASSWORD", "environment variable holding the password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("-in is required")
	}
	if *out == "" {
		*out = *in + ".enc"
	}
	password := os.Getenv(*passwordEnv)
	if password == "" {
		return fmt.Errorf("%s is not set", *passwordEnv)
	}

	secret, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	sealed, err := crypto.Seal(secret, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, sealed, 0o600); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", *out)
	return nil
}
