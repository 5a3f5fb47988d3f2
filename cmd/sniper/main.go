// Command sniper is the entry point for the Solana sniper. It loads and
// validates configuration, sets up logging and signal handling, and runs one
// of its subcommands:
//
//	sniper [-config path] serve                 take triggers over HTTP and/or Redis
//	sniper [-config path] buy -mint M [-count N] [-amount SOL] [-max]
//	sniper [-config path] balances              print the wallet pool
//	sniper keygen [-n N] [-out dir]             generate wallets
//	sniper encrypt-key -out dir                 encrypt a key read from SNIPER_KEY
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kpizzy812/solana-sniper-sub000/internal/app"
	"github.com/kpizzy812/solana-sniper-sub000/internal/config"
	"github.com/kpizzy812/solana-sniper-sub000/internal/crypto"
	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file (empty for env only)")
	flag.Usage = usage
	flag.Parse()

	cmd := "serve"
	args := flag.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(*configPath)
	case "buy":
		err = runBuy(*configPath, args)
	case "balances":
		err = runBalances(*configPath)
	case "keygen":
		err = runKeygen(args)
	case "encrypt-key":
		err = runEncryptKey(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: sniper [-config path] <serve|buy|balances|keygen|encrypt-key> [flags]\n")
	flag.PrintDefaults()
}

// setup loads and validates configuration and builds the logger.
func setup(configPath string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", configPath, err)
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger.Debug("configuration loaded", slog.Any("config", config.RedactedConfig(cfg)))
	return cfg, logger, nil
}

func runServe(configPath string) error {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}
	logger.Info("sniper starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("sniper stopped")
	return nil
}

func runBuy(configPath string, args []string) error {
	fs := flag.NewFlagSet("buy", flag.ExitOnError)
	mint := fs.String("mint", "", "target token mint (required)")
	count := fs.Int("count", 0, "number of trades (0 for the configured default)")
	amount := fs.Float64("amount", 0, "SOL per trade (0 for the configured default)")
	useMax := fs.Bool("max", false, "spend the maximum available balance")
	fs.Parse(args)
	if *mint == "" {
		fs.Usage()
		return errors.New("buy: -mint is required")
	}

	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}
	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sum, err := application.Buy(ctx, domain.Trigger{
		TargetMint:     *mint,
		Source:         map[string]string{"origin": "cli"},
		TradeCount:     *count,
		AmountPerTrade: domain.SOLFloatToLamports(*amount),
		UseMaxBalance:  *useMax,
	})
	if sum != nil {
		printJSON(sum)
	}
	if err != nil {
		return err
	}
	if sum.Outcome == domain.OutcomeAllFailed {
		return errors.New("buy: every trade failed")
	}
	return nil
}

func runBalances(configPath string) error {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}
	application := app.New(cfg, logger)
	defer application.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	st, err := application.Balances(ctx)
	printJSON(st)
	return err
}

func runKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	n := fs.Int("n", 1, "number of wallets to generate")
	out := fs.String("out", "", "write password-encrypted key files here instead of printing secrets")
	passwordEnv := fs.String("password-env", "SNIPER_WALLET_KEY_PASSWORD", "environment variable holding the key file password")
	fs.Parse(args)

	password := os.Getenv(*passwordEnv)
	if *out != "" && password == "" {
		return fmt.Errorf("keygen: %s is empty", *passwordEnv)
	}

	type generated struct {
		Address    string `json:"address"`
		PrivateKey string `json:"private_key,omitempty"`
		File       string `json:"file,omitempty"`
	}
	var keys []generated
	for i := 0; i < *n; i++ {
		key, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		g := generated{Address: key.PublicKey().String()}
		if *out != "" {
			if g.File, err = crypto.WriteKeyFile(*out, key, password); err != nil {
				return err
			}
		} else {
			g.PrivateKey = crypto.EncodePrivateKey(key)
		}
		keys = append(keys, g)
	}
	printJSON(keys)
	return nil
}

func runEncryptKey(args []string) error {
	fs := flag.NewFlagSet("encrypt-key", flag.ExitOnError)
	out := fs.String("out", ".", "directory for the encrypted key file")
	keyEnv := fs.String("key-env", "SNIPER_KEY", "environment variable holding the base58 or JSON-array key")
	passwordEnv := fs.String("password-env", "SNIPER_WALLET_KEY_PASSWORD", "environment variable holding the key file password")
	fs.Parse(args)

	key, err := crypto.ParsePrivateKey(os.Getenv(*keyEnv))
	if err != nil {
		return fmt.Errorf("encrypt-key: %s: %w", *keyEnv, err)
	}
	password := os.Getenv(*passwordEnv)
	if password == "" {
		return fmt.Errorf("encrypt-key: %s is empty", *passwordEnv)
	}
	path, err := crypto.WriteKeyFile(*out, key, password)
	if err != nil {
		return err
	}
	printJSON(map[string]string{"address": key.PublicKey().String(), "file": path})
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
