// Command nebulauth is a small operator CLI over the SDK: it verifies,
// redeems, and resets license keys and queries the dashboard, using the same
// configuration surface as the library.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"nebulauth"
	"nebulauth/config"
	"nebulauth/dashboard"
	"nebulauth/observability/logging"
	"nebulauth/observability/otel"

	"nebulauth/cmd/internal/prompt"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to a YAML or TOML config file")
		op         = flag.String("op", "verify", "operation: verify, redeem, reset-hwid, dashboard-me")
		key        = flag.String("key", "", "license key")
		hwid       = flag.String("hwid", "", "hardware id to bind")
		requestID  = flag.String("request-id", "", "explicit request id (nonce)")
		discordID  = flag.String("discord-id", "", "discord id for redeem/reset")
		slug       = flag.String("slug", "", "service slug override")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	var sink *logging.FileSink
	if cfg.Log.File != "" {
		sink = &logging.FileSink{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		}
	}
	logger := logging.Setup("nebulauth-cli", cfg.Log.Env, sink)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "nebulauth-cli",
			Environment: cfg.Log.Env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err.Error())
			}
		}()
	}

	if *op == "dashboard-me" {
		return runDashboardMe(ctx, cfg)
	}

	if cfg.BearerToken == "" {
		token, err := prompt.NewSource("bearer token", config.EnvBearerToken).Get()
		if err != nil {
			return err
		}
		cfg.BearerToken = token
	}

	opts, err := cfg.ClientOptions()
	if err != nil {
		return err
	}
	if *slug != "" {
		opts.ServiceSlug = *slug
	}
	client, err := nebulauth.NewClient(opts, nebulauth.WithLogger(logger))
	if err != nil {
		return err
	}

	var resp *nebulauth.Response
	switch *op {
	case "verify":
		resp, err = client.VerifyKey(ctx, nebulauth.VerifyKeyInput{
			Key:       *key,
			RequestID: *requestID,
			HWID:      *hwid,
		})
	case "redeem":
		resp, err = client.RedeemKey(ctx, nebulauth.RedeemKeyInput{
			Key:       *key,
			DiscordID: *discordID,
			RequestID: *requestID,
		})
	case "reset-hwid":
		resp, err = client.ResetHWID(ctx, nebulauth.ResetHWIDInput{
			Key:       *key,
			DiscordID: *discordID,
			RequestID: *requestID,
		})
	default:
		return fmt.Errorf("unknown operation %q", *op)
	}
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runDashboardMe(ctx context.Context, cfg config.Config) error {
	token := cfg.Dashboard.BearerToken
	if token == "" {
		resolved, err := prompt.NewSource("dashboard bearer token", config.EnvDashboardBearerToken).Get()
		if err != nil {
			return err
		}
		token = resolved
	}
	client, err := dashboard.New(dashboard.Options{
		BaseURL: cfg.Dashboard.BaseURL,
		Auth:    dashboard.BearerAuth{Token: nebulauth.Secret(token)},
	})
	if err != nil {
		return err
	}
	resp, err := client.Me(ctx, dashboard.RequestOptions{})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func printJSON(resp *nebulauth.Response) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(map[string]any{
		"statusCode": resp.StatusCode,
		"ok":         resp.OK,
		"data":       resp.Data,
	})
}
