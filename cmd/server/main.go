// Package main starts the local Codex auth proxy: a loopback HTTP server
// that lets plain OpenAI-style clients call the ChatGPT Codex backend with
// automatically managed OAuth credentials.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/sumeet/opencode-openai-codex-auth/internal/api"
	"github.com/sumeet/opencode-openai-codex-auth/internal/auth"
	"github.com/sumeet/opencode-openai-codex-auth/internal/config"
	"github.com/sumeet/opencode-openai-codex-auth/internal/errlog"
	"github.com/sumeet/opencode-openai-codex-auth/internal/instructions"
	log "github.com/sumeet/opencode-openai-codex-auth/internal/logging"
	"github.com/sumeet/opencode-openai-codex-auth/internal/upstream"
)

func main() {
	var login bool
	var noBrowser bool
	var printToken bool
	var port int

	flag.BoolVar(&login, "login", false, "Run the interactive OAuth login and exit")
	flag.BoolVar(&noBrowser, "no-browser", false, "Don't open the browser automatically for OAuth")
	flag.BoolVar(&printToken, "print-token", false, "Print a fresh access token and exit")
	flag.IntVar(&port, "port", 0, "Listen port (overrides CODEX_PROXY_PORT)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("failed to load .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if port != 0 {
		cfg.Port = port
	}
	if cfg.Verbose {
		log.SetLevel(slog.LevelDebug)
	}

	exchanger := auth.NewOpenAIExchanger()
	browser := auth.NewBrowserLogin(exchanger)
	browser.NoBrowser = noBrowser
	store := auth.NewFileStore(cfg.AuthFile)
	manager := auth.NewManager(store, exchanger, browser)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if login {
		runLogin(ctx, manager, store)
		return
	}
	if printToken {
		creds, err := manager.EnsureFresh(ctx)
		if err != nil {
			log.Fatalf("no usable credentials: %v", err)
		}
		fmt.Println(creds.AccessToken)
		return
	}

	server := api.NewServer(
		cfg,
		manager,
		upstream.NewClient(cfg),
		instructions.NewProvider(cfg.InstructionsFile),
		errlog.New(cfg.ErrorLogFile),
	)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("shutdown did not complete cleanly")
		}
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
	log.Info("proxy stopped")
}

// runLogin forces a fresh interactive login regardless of cached state.
func runLogin(ctx context.Context, manager *auth.Manager, store *auth.FileStore) {
	creds, err := manager.Login(ctx)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}
	log.WithField("account", creds.AccountID).Info("login complete")
	fmt.Printf("Credentials saved to %s\n", store.Path())
}
