// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the expression-learner CLI. It
// extracts [[phrase::meaning]] markers from text, lists news topics, serves
// the conversational API and inspects stored sessions.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/expression-learner/internal/logs"
	"github.com/pdiddy/expression-learner/internal/secrets"
	"github.com/pdiddy/expression-learner/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets secrets.Secrets

var rootCmd = &cobra.Command{
	Use:   "expression-learner",
	Short: "Learn English idioms from conversations with a language model",
	Long: `expression-learner runs a conversational tutor that speaks a chosen
variant of English and marks the idioms it uses as [[phrase::meaning]].
The markers are extracted while the reply streams and saved per session.

Use extract to pull markers out of any text, topics to browse the news
feeds used as conversation starters, serve to run the HTTP API, and
sessions to search and export what has been learned.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(dir, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		loadedSecrets = s
		if keys := s.Keys(); len(keys) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./expression-learner.yaml or ~/.config/expression-learner/config.yaml)")
	rootCmd.PersistentFlags().String("secrets-dir", ".secrets", "directory holding one secret per file")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("expression-learner")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "expression-learner"))
		}
	}

	setDefaults(viper.GetViper())

	viper.SetEnvPrefix("EXPRESSION_LEARNER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// The Azure variables keep their conventional names.
	viper.BindEnv("llm.endpoint", "EXPRESSION_LEARNER_LLM_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
	viper.BindEnv("llm.deployment", "EXPRESSION_LEARNER_LLM_DEPLOYMENT", "AZURE_OPENAI_DEPLOYMENT_NAME")
	viper.BindEnv("llm.api_version", "EXPRESSION_LEARNER_LLM_API_VERSION", "AZURE_OPENAI_API_VERSION")
	viper.BindEnv("llm.api_key", "EXPRESSION_LEARNER_LLM_API_KEY", "AZURE_OPENAI_API_KEY")

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("feeds.timeout", "30s")
	v.SetDefault("feeds.user_agent", "expression-learner/0.1")
	v.SetDefault("feeds.max_retries", 0)
	v.SetDefault("feeds.cache_ttl", "5m")
	v.SetDefault("feeds.limit", 10)
	v.SetDefault("feeds.fetches_per_second", 2)

	v.SetDefault("llm.timeout", "2m")
	v.SetDefault("llm.user_agent", "expression-learner/0.1")
	v.SetDefault("llm.max_retries", 0)
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.deployment", "")
	v.SetDefault("llm.api_version", "2024-02-15-preview")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.temperature", 0.7)

	v.SetDefault("store.path", "data/sessions.db")
	v.SetDefault("store.max_results", 20)

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// loadConfig decodes the merged flag, env, file and default settings.
// Secrets fill the Azure endpoint and key when no other source sets them.
func loadConfig() (types.AppConfig, error) {
	var cfg types.AppConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return types.AppConfig{}, fmt.Errorf("decoding configuration: %w", err)
	}
	cfg.LLM.APIKey = loadedSecrets.Get(secrets.AzureOpenAIKey, cfg.LLM.APIKey)
	cfg.LLM.Endpoint = loadedSecrets.Get(secrets.AzureOpenAIEndpoint, cfg.LLM.Endpoint)
	return cfg, nil
}

// newLogger builds the process logger and installs it as the slog default.
func newLogger(cfg types.LogConfig) (*slog.Logger, func() error, error) {
	logger, closeFn, err := logs.New(cfg, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return logger, closeFn, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
