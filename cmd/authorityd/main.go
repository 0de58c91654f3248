package main

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"croupier/internal/authority"
	"croupier/internal/cache"
	"croupier/internal/config"
	"croupier/internal/database"
	"croupier/internal/game"
	"croupier/internal/logger"
)

func main() {
	cfg := config.Load()

	log, err := logger.New("authorityd", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cacheSvc, err := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	if err != nil {
		log.Fatal("redis is required for wallet truth", zap.Error(err))
	}

	var history database.Service
	if h, err := database.New(cfg.PostgresDSN, log); err != nil {
		log.Warn("running without round history", zap.Error(err))
	} else {
		history = h
	}

	metrics := authority.NewMetrics()
	authority.ServeMetrics(cfg.MetricsPort, log)

	mode := game.ModeRoulette
	if os.Getenv("CROUPIER_MODE") == string(game.ModeCrash) {
		mode = game.ModeCrash
	}

	engine := authority.NewEngine(authority.Config{
		Mode:            mode,
		MinBet:          cfg.MinBet,
		MaxBet:          cfg.MaxBet,
		BettingTime:     cfg.BettingDuration,
		TickInterval:    cfg.TickInterval,
		InterRoundPause: cfg.InterRoundPause,
	}, authority.NewWalletStore(cacheSvc.GetClient(), log), history, metrics, log)

	hub := authority.NewHub(log)
	server := authority.NewServer(engine, hub, cacheSvc, history, log)

	engine.Start()

	go func() {
		if err := server.Listen(":" + cfg.HTTPPort); err != nil {
			log.Fatal("http server stopped", zap.Error(err))
		}
	}()
	log.Info("authority listening",
		zap.String("port", cfg.HTTPPort),
		zap.String("mode", string(mode)))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	engine.Stop()
	server.Shutdown()
	cacheSvc.Close()
	if history != nil {
		history.Close()
	}
}
