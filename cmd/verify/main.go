package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bot-panel/internal/api"
	"bot-panel/internal/config"
	"bot-panel/internal/fees"
	"bot-panel/internal/logging"
	"bot-panel/internal/state"
	"bot-panel/internal/state/sqlite"

	"go.uber.org/zap"
)

const (
	defaultVerifyEnvFile = ".env"
	defaultBaseURL       = "http://127.0.0.1:5000"
	defaultTimeout       = 10 * time.Second
)

// verify checks a running bot backend: it reads status and config, shows the
// fee figures the panel would render, and optionally exercises the
// credential check, the log download and the local audit trail.
func main() {
	configPath := flag.String("config", "", "optional config path for api settings")
	testKey := flag.Bool("test-key", false, "validate BOT_API_KEY/BOT_API_SECRET/BOT_API_PASSPHRASE against the backend")
	logsOut := flag.String("logs", "", "download the backend log archive to this path")
	auditLimit := flag.Int("audit", 0, "print the newest N operator audit events from the state store")
	flag.Parse()

	if err := config.LoadEnv(defaultVerifyEnvFile); err != nil {
		fatal(err)
	}

	logCfg := config.LoggingConfig{Level: "info"}
	baseURL := defaultBaseURL
	timeout := defaultTimeout
	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
		logCfg = cfg.Log
		baseURL = cfg.API.BaseURL
		timeout = cfg.API.Timeout
	}
	if env := strings.TrimSpace(os.Getenv("BOT_API_BASE_URL")); env != "" {
		baseURL = strings.TrimRight(env, "/")
	}
	log := logging.New(logCfg)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 4*timeout)
	defer cancel()
	client := api.New(baseURL, timeout, log)

	if *auditLimit > 0 {
		if cfg == nil {
			fatal(errors.New("-audit requires -config"))
		}
		printAudit(ctx, cfg.State.SQLitePath, *auditLimit)
		return
	}
	if *testKey {
		runTestKey(ctx, client)
		return
	}
	if *logsOut != "" {
		runDownloadLogs(ctx, client, *logsOut)
		return
	}

	status, err := client.Status(ctx)
	if err != nil {
		fatal(err)
	}
	backendCfg, err := client.Config(ctx)
	if err != nil {
		log.Warn("config fetch failed, using defaults", zap.Error(err))
	}
	live := fees.ParseLiveConfig(backendCfg)
	figures := fees.Compute(status.Account, live)

	running := "unknown"
	if status.HasRunning {
		running = fmt.Sprintf("%t", status.Running)
	}
	fmt.Printf("backend: %s running=%s open_trades=%d\n", baseURL, running, len(status.Trades))
	fmt.Printf("account: used=%.4f size=%.4f remaining=%.4f\n", status.Account.UsedAmount, status.Account.SizeAmount, status.Account.RemainingAmount)
	pretty, err := json.MarshalIndent(figures, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Printf("fees (rate %.4f%%):\n%s\n", live.FeeRate, string(pretty))
}

func runTestKey(ctx context.Context, client *api.Client) {
	creds := api.Credentials{
		APIKey:     strings.TrimSpace(os.Getenv("BOT_API_KEY")),
		APISecret:  strings.TrimSpace(os.Getenv("BOT_API_SECRET")),
		Passphrase: strings.TrimSpace(os.Getenv("BOT_API_PASSPHRASE")),
		UseTestnet: strings.EqualFold(strings.TrimSpace(os.Getenv("BOT_API_TESTNET")), "true"),
	}
	if creds.APIKey == "" || creds.APISecret == "" {
		fatal(errors.New("BOT_API_KEY and BOT_API_SECRET are required"))
	}
	res, err := client.TestAPIKey(ctx, creds)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("credential check: success=%t message=%s\n", res.Success, res.Message)
	if !res.Success {
		os.Exit(2)
	}
}

func runDownloadLogs(ctx context.Context, client *api.Client, path string) {
	f, err := os.Create(path)
	if err != nil {
		fatal(err)
	}
	n, err := client.DownloadLogs(ctx, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		fatal(err)
	}
	fmt.Printf("wrote %d bytes to %s\n", n, path)
}

func printAudit(ctx context.Context, path string, limit int) {
	store, err := sqlite.New(path)
	if err != nil {
		fatal(err)
	}
	defer store.Close()
	events, err := state.RecentAudit(ctx, store, limit)
	if err != nil {
		fatal(err)
	}
	for _, e := range events {
		line := fmt.Sprintf("%s %-8s %-14s %s", e.Time.UTC().Format(time.RFC3339), e.Source, e.Action, e.Command)
		if e.Error != "" {
			line += " error=" + e.Error
		}
		fmt.Println(line)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "verify failed: %v\n", err)
	os.Exit(1)
}
