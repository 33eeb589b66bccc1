package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/richardliu001/wallet-ledger/internal/config"
	"github.com/richardliu001/wallet-ledger/internal/logger"
	"github.com/richardliu001/wallet-ledger/internal/repo"
	"github.com/richardliu001/wallet-ledger/internal/service"
	httptransport "github.com/richardliu001/wallet-ledger/internal/transport/http"
	"github.com/richardliu001/wallet-ledger/internal/transport/queue"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.Hash{},
	}
	pub := queue.NewKafkaPublisher(kw)
	defer pub.Close()

	repository := repo.NewRepository(gdb, rdb, log)
	recovery := service.NewRecoveryScheduler(repository, pub, repository, service.RecoveryConfig{
		Interval:   cfg.Recovery.Interval,
		StaleAfter: cfg.Recovery.StaleAfter,
		BatchSize:  cfg.Recovery.BatchSize,
	}, log)
	wallets := service.NewWalletService(repository, service.RetryPolicy{
		MaxAttempts: cfg.Transfer.MaxAttempts,
		BaseDelay:   cfg.Transfer.BaseDelay,
		MaxDelay:    cfg.Transfer.MaxDelay,
	}, log)

	log.Info("wallet-poller started")
	g, gctx := errgroup.WithContext(ctx)
	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: httptransport.NewMetricsRouter()}
	g.Go(func() error { return httptransport.Serve(gctx, metricsSrv) })
	g.Go(func() error { return recovery.Run(gctx) })
	g.Go(func() error { return resetLoop(gctx, wallets, repository, cfg.Reset.Interval, log) })
	if err := g.Wait(); err != nil {
		log.Fatalf("poller: %v", err)
	}
	log.Info("wallet-poller stopped")
}

// resetLoop clears daily spending every interval; one poller wins each tick.
func resetLoop(ctx context.Context, wallets *service.WalletService, locker service.Locker, interval time.Duration, log *zap.SugaredLogger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			ok, err := locker.TryLock(ctx, "spending-reset", interval-interval/10)
			if err != nil {
				log.Warnf("reset lock unavailable: %v", err)
				continue
			}
			if !ok {
				continue
			}
			if _, err := wallets.ResetAllSpending(ctx, now); err != nil {
				log.Errorf("reset spending: %v", err)
			}
		}
	}
}
