package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"deriv.com/pkg/config"
	"deriv.com/pkg/kafka"
	"deriv.com/pkg/logger"
	"deriv.com/pkg/market"
	"deriv.com/pkg/nats"
	"deriv.com/pkg/quote"
	"deriv.com/pkg/quoter"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the live quoting service",
	Long:  `Consumes spot ticks, re-prices the configured book, stores quotes and publishes quotes and book risk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}
		envFiles, err := cmd.Flags().GetStringSlice("env-file")
		if err != nil {
			return err
		}
		cfg, err := config.Load(path, envFiles...)
		if err != nil {
			return err
		}
		if err := logger.Init(cfg.Log); err != nil {
			return err
		}
		return serve(cfg)
	},
}

// closers 按注册的逆序关闭
type closers []func()

func (c *closers) add(f func()) { *c = append(*c, f) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func serve(cfg config.Config) error {
	var cleanup closers
	defer cleanup.run()

	if err := quote.InitSnowflake(cfg.NodeID); err != nil {
		return fmt.Errorf("init snowflake: %w", err)
	}

	// 1. 存储
	// -------------------------------------------------------------------------
	repo, err := openRepository(cfg, &cleanup)
	if err != nil {
		return err
	}

	// 2. 推送
	// -------------------------------------------------------------------------
	var pubs []quoter.Publisher
	if cfg.NATS.URL != "" {
		np, err := nats.NewPublisher(cfg.NATS.URL)
		if err != nil {
			return err
		}
		cleanup.add(np.Close)
		pubs = append(pubs, np)
		log.WithField("url", cfg.NATS.URL).Info("✅ NATS publisher connected")
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := kafka.NewProducer(kafka.DefaultProducerConfig(cfg.Kafka.Brokers))
		if err != nil {
			return err
		}
		cleanup.add(func() {
			if err := kp.Close(); err != nil {
				log.WithError(err).Warn("[Kafka] close producer")
			}
		})
		pubs = append(pubs, kafka.NewPublisher(kp, cfg.Kafka.Book))
		log.WithField("brokers", cfg.Kafka.Brokers).Info("✅ Kafka producer started")
	}

	// 3. 报价服务
	// -------------------------------------------------------------------------
	svc, err := quoter.NewService(cfg.QuoterConfig(), cfg.Markets, cfg.Instruments, repo, pubs...)
	if err != nil {
		return err
	}

	if len(cfg.Kafka.Brokers) > 0 {
		consumer, err := kafka.NewConsumer(
			kafka.DefaultConsumerConfig(cfg.Kafka.Brokers, cfg.Kafka.GroupID, []string{kafka.TopicRequests}),
			svc.HandleMessage,
		)
		if err != nil {
			return err
		}
		consumer.Start()
		cleanup.add(func() {
			if err := consumer.Stop(); err != nil {
				log.WithError(err).Warn("[Kafka] stop consumer")
			}
		})
		log.WithField("topic", kafka.TopicRequests).Info("✅ Pricing request consumer started")
	}

	// 4. 行情
	// -------------------------------------------------------------------------
	broadcaster := market.NewBroadcaster()
	ticks := broadcaster.Subscribe()
	sources, err := openFeeds(cfg)
	if err != nil {
		return err
	}

	var pipes sync.WaitGroup
	for _, src := range sources {
		pipes.Add(1)
		go func(in <-chan market.SpotTick) {
			defer pipes.Done()
			broadcaster.Pipe(in)
		}(src.ticks)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx, ticks) }()
	log.WithFields(log.Fields{
		"feed":        cfg.Feed.Source,
		"underlyings": cfg.Underlyings(),
		"instruments": len(cfg.Instruments),
	}).Info("✅ Quoting service started")

	// 等待信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	awaitShutdown(sigCh, done, cancel)

	for _, src := range sources {
		src.stop()
	}
	pipes.Wait()
	broadcaster.Close()
	return nil
}

// awaitShutdown 收到信号或服务退出后返回; 返回时服务循环一定已经结束
// 在途的重新定价退出之后才能关闭存储和推送
func awaitShutdown(sigCh <-chan os.Signal, done <-chan error, cancel context.CancelFunc) {
	var err error
	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("🛑 Shutting down...")
		cancel()
		err = <-done
	case err = <-done:
		cancel()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("quoting service stopped")
	}
}

func openRepository(cfg config.Config, cleanup *closers) (quote.Repository, error) {
	var repo quote.Repository = quote.NewMemoryRepository(0)
	if cfg.MySQL.DSN != "" {
		db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{Logger: logger.NewGormLogger()})
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		mr := quote.NewMySQLRepository(db)
		if err := mr.AutoMigrate(); err != nil {
			return nil, fmt.Errorf("migrate quotes: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			cleanup.add(func() { _ = sqlDB.Close() })
		}
		repo = mr
		log.Info("✅ MySQL quote repository ready")
	}

	if cfg.Redis.Addr != "" {
		rds := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rds.Ping(context.Background()).Err(); err != nil {
			_ = rds.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		cleanup.add(func() { _ = rds.Close() })
		repo = quote.NewCachedRepository(repo, rds)
		log.WithField("addr", cfg.Redis.Addr).Info("✅ Redis quote cache ready")
	}
	return repo, nil
}

type feed struct {
	ticks <-chan market.SpotTick
	stop  func()
}

// openFeeds 模拟行情每个标的一个 Ticker; NATS 行情一个订阅覆盖全部标的
func openFeeds(cfg config.Config) ([]feed, error) {
	switch cfg.Feed.Source {
	case config.FeedNATS:
		sf, err := nats.NewSpotFeed(cfg.NATS.URL, cfg.Underlyings()...)
		if err != nil {
			return nil, err
		}
		return []feed{{
			ticks: sf.Ticks(),
			stop: func() {
				if err := sf.Close(); err != nil {
					log.WithError(err).Warn("[NATS] close spot feed")
				}
			},
		}}, nil
	}

	feeds := make([]feed, 0, len(cfg.Markets))
	for _, name := range cfg.Underlyings() {
		t := market.NewTicker(name, cfg.Markets[name], cfg.Feed.Interval)
		feeds = append(feeds, feed{ticks: t.Start(), stop: t.Stop})
	}
	return feeds, nil
}
