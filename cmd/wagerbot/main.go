package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"croupier/internal/config"
	"croupier/internal/game"
	"croupier/internal/logger"
	"croupier/internal/transport"
)

func main() {
	strategy := flag.String("strategy", "", "auto-bet strategy: martingale or fibonacci (empty runs passively)")
	base := flag.Int64("base", 0, "base stake for the auto-bet session")
	rounds := flag.Int("rounds", 10, "maximum rounds for the auto-bet session")
	target := flag.Int64("target", 0, "stop once session profit reaches this (0 disables)")
	stopLoss := flag.Int64("stop-loss", 0, "stop once session loss reaches this (0 disables)")
	betType := flag.String("bet-type", string(game.BetRedBlack), "wager type for auto-bet stakes")
	betValue := flag.String("bet-value", "red", "wager value for auto-bet stakes")
	mode := flag.String("mode", string(game.ModeRoulette), "game mode: roulette or crash")
	flag.Parse()

	cfg := config.Load()

	log, err := logger.New("wagerbot", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := transport.NewWSChannel(cfg.AuthorityWSURL, cfg.ReconnectStep, cfg.ReconnectMax, log)
	if err := ch.Connect(ctx); err != nil {
		log.Fatal("authority unreachable", zap.String("url", cfg.AuthorityWSURL), zap.Error(err))
	}
	defer ch.Close()

	ctrl := game.NewController(game.Config{
		Mode:            game.Mode(*mode),
		MinBet:          cfg.MinBet,
		MaxBet:          cfg.MaxBet,
		CapFraction:     cfg.CapFraction,
		BettingDuration: cfg.BettingDuration,
		TickInterval:    cfg.TickInterval,
		InterRoundPause: cfg.InterRoundPause,
		ConfirmPolicy:   game.ConfirmPolicy(cfg.ConfirmPolicy),
		ConfirmDelay:    cfg.ConfirmDelay,
		ConfirmTimeout:  cfg.ConfirmTimeout,
		ResyncInterval:  cfg.ResyncInterval,
	}, ch, log)
	ctrl.Start(ctx)
	defer ctrl.Stop()

	if *strategy != "" {
		stake := *base
		if stake == 0 {
			stake = cfg.MinBet
		}
		err := ctrl.StartAutoBet(game.SessionParams{
			Strategy:     game.Strategy(*strategy),
			BaseAmount:   stake,
			Rounds:       *rounds,
			ProfitTarget: *target,
			StopLoss:     *stopLoss,
			BetType:      game.BetType(*betType),
			BetValue:     *betValue,
		})
		if err != nil {
			log.Fatal("auto-bet rejected", zap.Error(err))
		}
		log.Info("auto-bet session started",
			zap.String("strategy", *strategy),
			zap.Int64("base", stake),
			zap.Int("rounds", *rounds))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case ev := <-ctrl.Events():
			switch v := ev.(type) {
			case game.PhaseChanged:
				log.Info("phase",
					zap.String("round", v.RoundID),
					zap.String("phase", string(v.Phase)),
					zap.Int64("remaining_ms", v.RemainingMs))
			case game.BalanceChanged:
				log.Info("balance",
					zap.Int64("balance", v.Value),
					zap.Int64("available", v.Available),
					zap.String("source", v.Source.String()))
			case game.RoundSettled:
				log.Info("round settled",
					zap.String("round", v.RoundID),
					zap.Int64("net", v.Net),
					zap.Int("bets", len(v.Bets)))
			case game.Notice:
				log.Info("notice", zap.String("kind", string(v.Kind)), zap.String("message", v.Message))
			case game.SessionSummary:
				log.Info("auto-bet session finished",
					zap.String("reason", string(v.Reason)),
					zap.Int("rounds", v.RoundsPlayed),
					zap.Int64("net", v.Net))
				if *strategy != "" {
					return
				}
			}
		case <-quit:
			log.Info("shutting down")
			if s := ctrl.StopAutoBet(); s != nil {
				log.Info("auto-bet session aborted",
					zap.Int("rounds", s.RoundsPlayed),
					zap.Int64("net", s.Net))
			}
			return
		}
	}
}
