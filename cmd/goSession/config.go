package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	goSession "github.com/MrEthical07/goSession"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	envBackendURL      = "GOSESSION_BACKEND_URL"
	envSignatureSecret = "GOSESSION_SIGNATURE_SECRET"
	envRedisAddr       = "REDIS_ADDR"
)

// loadConfig reads a YAML file over the defaults and applies environment
// overrides. An empty path skips the file.
func loadConfig(path string) (goSession.Config, error) {
	cfg := goSession.DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := strings.TrimSpace(os.Getenv(envBackendURL)); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv(envSignatureSecret); v != "" {
		cfg.Signature.Secret = v
	}

	return cfg, cfg.Validate()
}

func redisAddr(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(envRedisAddr)
}

// newLogger creates a JSON structured logger at the given level and installs
// it as the slog default.
func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo

	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(log)
	return log
}

func lintCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Validate a configuration file and report risky settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			ws := cfg.Lint()
			if len(ws) == 0 {
				fmt.Fprintln(out, "no findings")
				return nil
			}
			for _, w := range ws {
				fmt.Fprintf(out, "%-5s %-28s %s\n", w.Severity, w.Code, w.Message)
			}
			if len(ws.AtLeast(goSession.LintWarn)) > 0 {
				return fmt.Errorf("%d warning(s)", len(ws.AtLeast(goSession.LintWarn)))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	return cmd
}
