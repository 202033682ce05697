package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"github.com/sadbox/keybot/pkg/keepalive"
	"github.com/sadbox/keybot/pkg/keybot"
)

func main() {
	os.Exit(run())
}

func run() int {
	// A missing .env is normal in production.
	envErr := godotenv.Load()

	cfg, err := keybot.LoadConfig(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		switch {
		case errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp:
			fmt.Println(err)
			return 0
		case errors.Is(err, keybot.ErrMissingToken):
			slog.Error("DISCORD_BOT_TOKEN environment variable is not set!")
			fmt.Println("Error: Please set the DISCORD_BOT_TOKEN environment variable.")
		default:
			slog.Error("Invalid configuration", "error", err)
			fmt.Printf("Error: %v\n", err)
		}
		return 1
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)
	if envErr != nil {
		log.Debug("No .env file loaded", "error", envErr)
	}

	b, err := keybot.New(cfg, log)
	if err != nil {
		log.Error("Failed to login - invalid bot token", "error", err)
		fmt.Println("Error: Invalid bot token. Please check your DISCORD_BOT_TOKEN.")
		return 1
	}

	if !cfg.NoKeepAlive {
		ka := keepalive.New(cfg.ListenAddr(), b.Ready.Load, log)
		if err := ka.Start(); err != nil {
			log.Error("Failed to start keep-alive server", "error", err)
			return 1
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := ka.Shutdown(ctx); err != nil {
				log.Error("Keep-alive shutdown failed", "error", err)
			}
		}()
	}

	log.Info("Starting Discord bot...")
	if err := b.Run(context.Background()); err != nil {
		log.Error("Failed to start bot", "error", err)
		fmt.Printf("Error starting bot: %v\n", err)
		return 1
	}
	return 0
}
