package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ccrelay/ccrelay/internal/config"
	"github.com/ccrelay/ccrelay/internal/dispatch"
	"github.com/ccrelay/ccrelay/internal/httpapi"
	"github.com/ccrelay/ccrelay/internal/infrastructure/logger"
	"github.com/ccrelay/ccrelay/internal/oauthclient"
	"github.com/ccrelay/ccrelay/internal/pool"
	"github.com/ccrelay/ccrelay/internal/transport"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "start the HTTP relay server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	opts, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logLevel := "info"
	if opts.DevMode {
		logLevel = "debug"
	}
	log, err := logger.NewLogger(logger.Config{Level: logLevel, Format: "json", OutputPath: "stdout"})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	orch := dispatch.New(log)
	models := map[dispatch.Family][]string{}

	for _, b := range opts.Backends {
		family := dispatch.Family(b.Name)
		p := pool.New(accountsFilePath(b.AccountsFile, b.Name), log)
		if err := p.Initialize(); err != nil {
			return fmt.Errorf("load accounts for %s: %w", b.Name, err)
		}

		backend, err := buildBackend(family, b, p, log)
		if err != nil {
			return fmt.Errorf("build backend %s: %w", b.Name, err)
		}
		if backend == nil {
			log.Warn("skipping unrecognized backend family, no transport wired", zap.String("backend", b.Name))
			continue
		}

		orch.Register(family, backend, p)
		models[family] = b.Models
	}

	server := httpapi.NewServer(httpapi.Config{
		Host:    opts.Host,
		Port:    opts.Port,
		DevMode: opts.DevMode,
		APIKey:  opts.APIKey,
	}, orch, models, log)

	if err := server.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildBackend wires one family's dispatch.Backend from its declared
// options, per spec §6's fixed per-family transport shapes. Returns a nil
// backend (not an error) for a configured family name this build doesn't
// recognize, so a typo'd config entry degrades to "unavailable" rather than
// refusing to start the whole server.
func buildBackend(family dispatch.Family, b config.BackendOptions, p *pool.Pool, log *zap.Logger) (dispatch.Backend, error) {
	switch family {
	case dispatch.FamilyResponses:
		oauth := oauthclient.New(oauthclient.Config{
			ClientID:        b.OAuthClientID,
			Scope:           b.OAuthScope,
			AuthURL:         b.OAuthAuthURL,
			TokenURL:        b.OAuthTokenURL,
			ExtraAuthParams: b.ExtraAuthParams,
		}, log)
		return transport.NewResponsesBackend(transport.NewClient(), p, oauth, log), nil

	case dispatch.FamilyCloudCode:
		oauth := oauthclient.New(oauthclient.Config{
			ClientID:        b.OAuthClientID,
			Scope:           b.OAuthScope,
			AuthURL:         b.OAuthAuthURL,
			TokenURL:        b.OAuthTokenURL,
			ExtraAuthParams: b.ExtraAuthParams,
		}, log)
		return transport.NewCloudCodeBackend(transport.NewClient(), p, oauth, log), nil

	case dispatch.FamilyChatCompletions:
		minter := transport.NewCopilotMinter(transport.NewClient())
		return transport.NewChatCompletionsBackend(transport.NewClient(), p, minter, log), nil

	case dispatch.FamilyCursorBinary:
		return transport.NewCursorBinaryBackend(transport.NewH2Client(), p, log), nil

	default:
		return nil, nil
	}
}

func accountsFilePath(configured, backendName string) string {
	if configured != "" {
		return configured
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ccrelay", backendName+"-accounts.json")
}
