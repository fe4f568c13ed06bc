// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/expression-learner/internal/agent"
	"github.com/pdiddy/expression-learner/internal/feeds"
	"github.com/pdiddy/expression-learner/internal/llm"
	"github.com/pdiddy/expression-learner/internal/server"
	"github.com/pdiddy/expression-learner/internal/sessions"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the conversational HTTP API",
	Long: `Serve starts the HTTP API: session creation, streamed chat turns with
live expression extraction, topic suggestions, expression search and an
LLM smoke check. It runs until interrupted, then drains open requests.

The server starts without Azure OpenAI credentials; chat and smoke
requests then fail with a configuration error.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8000)")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := sessions.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()
	if !store.FullText() {
		logger.Warn("sqlite built without FTS5; expression search uses substring matching")
	}

	var model interface {
		agent.ChatBackend
		server.Completer
	}
	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		logger.Warn("LLM disabled", "error", err)
		model = llm.Unconfigured{Err: err}
	} else {
		model = client
	}

	topics := feeds.NewClient(cfg.Feeds, logger)
	h := &server.Handler{
		Store:   store,
		Agent:   agent.New(model, store, topics, logger),
		LLM:     model,
		Topics:  topics,
		Version: version,
		Logger:  logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.New(cfg.Server, h, logger).Run(ctx)
}
