package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/bcxlabs/buybackd/internal/amount"
	"github.com/bcxlabs/buybackd/internal/api"
	"github.com/bcxlabs/buybackd/internal/bot"
	"github.com/bcxlabs/buybackd/internal/config"
	"github.com/bcxlabs/buybackd/internal/db"
	"github.com/bcxlabs/buybackd/internal/engine"
	"github.com/bcxlabs/buybackd/internal/logging"
	"github.com/bcxlabs/buybackd/internal/payout"
	"github.com/bcxlabs/buybackd/internal/registry"
	"github.com/bcxlabs/buybackd/internal/watcher"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("buybackd %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: buybackd <command>

Commands:
  serve     Start the buyback settlement service
  version   Print version information
`)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logCloser.Close()

	slog.Info("starting buybackd",
		"version", version,
		"chainId", cfg.ChainID,
		"port", cfg.Port,
		"dbPath", cfg.DBPath,
		"logLevel", cfg.LogLevel,
	)

	database, err := db.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if err := database.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("database ready", "path", cfg.DBPath)

	// Surface payouts that were in flight when the process last stopped.
	unresolved, err := database.ListUnresolvedPayouts()
	if err != nil {
		return fmt.Errorf("failed to check payout journal: %w", err)
	}
	for _, p := range unresolved {
		slog.Warn("unresolved payout from previous run, reconcile against chain",
			"id", p.ID,
			"depositKey", p.DepositKey,
			"destination", p.Destination,
			"amountOut", p.AmountOut,
			"createdAt", p.CreatedAt,
		)
	}

	signer, err := payout.LoadSigner(cfg.PrivateKeyFile)
	if err != nil {
		return fmt.Errorf("failed to load payout signer: %w", err)
	}
	if err := signer.VerifyCustodialAddress(cfg.CustodialAddr); err != nil {
		return err
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	ethClient, err := ethclient.DialContext(rootCtx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("dial RPC %s: %w", cfg.RPCURL, err)
	}
	defer ethClient.Close()

	slog.Info("RPC connected", "url", cfg.RPCURL)

	executor := payout.NewExecutor(
		ethClient,
		signer,
		common.HexToAddress(cfg.PayoutToken),
		big.NewInt(cfg.ChainID),
	)

	store := registry.New(database, cfg.MaxSettlementsPerAddress)

	tg, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	slog.Info("telegram bot authorized", "username", tg.Self.UserName)

	chatBot := bot.New(tg, store, database, bot.Terms{
		PricePerUnit:     cfg.PricePerUnit,
		FeePercent:       cfg.Fee().Mul(decimal.NewFromInt(100)).String(),
		MinSwapSize:      cfg.MinSwapSize,
		MaxSwapSize:      cfg.MaxSwapSize,
		TotalLimit:       cfg.TotalLimit,
		CustodialAddress: cfg.CustodialAddr,
	})

	eng := engine.New(
		engine.Config{
			Pricing:              engine.NewPricing(cfg.Price(), cfg.Fee()),
			MinSwap:              amount.FromTokens(cfg.MinSwapSize),
			MaxSwap:              amount.FromTokens(cfg.MaxSwapSize),
			MaxPerAddress:        cfg.MaxSettlementsPerAddress,
			CustodialAddress:     cfg.CustodialAddr,
			PayoutConfirmTimeout: time.Duration(cfg.PayoutConfirmTimeoutSec) * time.Second,
			MaxAttempts:          config.SettlementMaxAttempts,
			RetryBackoff:         config.SettlementRetryBackoff,
		},
		database,
		database,
		store,
		executor,
		chatBot,
	)

	watch := watcher.New(
		ethClient,
		common.HexToAddress(cfg.DepositToken),
		common.HexToAddress(cfg.CustodialAddr),
	)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := watch.Run(rootCtx); err != nil {
			slog.Error("watcher stopped with error", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Run(rootCtx, watch.Events())
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		chatBot.Run(rootCtx)
	}()

	router := api.NewRouter(cfg, database, store)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("initiating graceful shutdown", "timeout", config.ShutdownTimeout)

	// Stop the watcher and bot; the engine drains once the event channel
	// closes, letting in-flight settlements finish.
	rootCancel()

	waited := make(chan struct{})
	go func() {
		wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		slog.Info("pipeline drained cleanly")
	case <-time.After(config.ShutdownTimeout):
		slog.Warn("shutdown timed out, settlements may be unresolved",
			"timeout", config.ShutdownTimeout,
		)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
