// cmd/order-hub/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/redis"
	"storefront/internal/service/order/application"
	"storefront/internal/service/order/hub"
	"storefront/internal/service/order/infrastructure"
	"storefront/internal/service/order/infrastructure/adapter"
	"storefront/internal/service/order/infrastructure/catalogue"
	"storefront/internal/service/order/infrastructure/ledger"
	"storefront/internal/service/order/infrastructure/sequence"
	"storefront/internal/service/order/interfaces"
	"storefront/internal/service/order/port"
	"storefront/internal/zookeeper"
)

const (
	serviceName      = "order-hub"
	sequenceLockName = "order-sequence"
)

// main 函数是应用的"组装根" (Composition Root)
func main() {
	cfg, err := bootstrap.LoadConfig(getEnv("ORDERHUB_CONFIG", "configs/order-hub.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		Config:           cfg,
		RegisterHandlers: wire,
	})
	if err != nil {
		os.Exit(1)
	}
}

// cleanups 按注册的逆序执行
type cleanups []func(ctx context.Context)

func (c *cleanups) add(fn func(ctx context.Context)) { *c = append(*c, fn) }

func (c cleanups) run(ctx context.Context) {
	for i := len(c) - 1; i >= 0; i-- {
		c[i](ctx)
	}
}

// wire 组装所有依赖：发号器 → 库存/目录 → Hub → 结账链 → Kafka 适配器 → HTTP/websocket
func wire(app bootstrap.AppCtx) (func(context.Context), error) {
	cfg := app.Config
	tracer := otel.Tracer(serviceName)
	var done cleanups

	// 1. 发号器
	ids, err := newSequence(cfg, &done)
	if err != nil {
		done.run(context.Background())
		return nil, err
	}

	// 2. 库存账本和商品目录
	stock, products, err := newStockAndCatalogue(app.Ctx, cfg, &done)
	if err != nil {
		done.run(context.Background())
		return nil, err
	}

	// 3. Hub 和结账用例
	orderHub := hub.New(hub.WithQueueSize(cfg.Hub.QueueSize), hub.WithTracer(tracer))
	done.add(func(context.Context) { orderHub.Close() })
	checkout := application.NewCheckoutService(tracer, products, stock, ids, orderHub)

	// 4. Kafka：状态变化对外发布，拣货指令从外部流入
	if brokers := cfg.KafkaBrokers(); len(brokers) > 0 {
		writer := mq.NewKafkaWriter(brokers, adapter.StateTopic)
		sub, err := orderHub.Subscribe(adapter.NewStateKafkaAdapter(writer))
		if err != nil {
			done.run(context.Background())
			return nil, err
		}
		done.add(func(context.Context) {
			sub.Unsubscribe()
			if err := writer.Close(); err != nil {
				logger.L().Error().Err(err).Msg("failed to close state writer")
			}
		})

		reader := mq.NewKafkaReader(brokers, interfaces.PickerCommandTopic, cfg.Infra.Kafka.GroupID)
		dltWriter := mq.NewKafkaWriter(brokers, mq.DeadLetterTopic(interfaces.PickerCommandTopic))
		consumer := interfaces.NewPickerCommandConsumer(reader, orderHub).
			WithDeadLetter(interfaces.NewDeadLetterPublisher(dltWriter))
		app.Go(consumer.Run)
		done.add(func(context.Context) {
			if err := consumer.Stop(); err != nil {
				logger.L().Error().Err(err).Msg("failed to stop picker command consumer")
			}
			_ = dltWriter.Close()
		})
	}

	// 5. HTTP 和 websocket
	gateway := interfaces.NewPushGateway(orderHub)
	interfaces.NewOrderHandler(checkout, orderHub, stock, gateway).RegisterRoutes(app.Mux)

	logger.L().Info().
		Str("sequence", ids.Path()).
		Str("ledger", cfg.Ledger.Driver).
		Str("catalogue", cfg.Catalogue.Driver).
		Str("node", gateway.NodeID()).
		Msg("order hub wired")
	return done.run, nil
}

func newSequence(cfg bootstrap.Config, done *cleanups) (*sequence.FileStore, error) {
	opts := []sequence.Option{sequence.WithLockTimeout(cfg.Sequence.LockTimeout)}

	switch cfg.Sequence.Locker {
	case "zookeeper":
		conn, err := zookeeper.Connect(cfg.ZookeeperServers(), cfg.Infra.Zookeeper.SessionTimeout)
		if err != nil {
			return nil, fmt.Errorf("connect zookeeper: %w", err)
		}
		done.add(func(context.Context) { conn.Close() })
		lock, err := zookeeper.NewDistributedLock(conn, sequenceLockName)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sequence.WithLocker(lock))
	default:
		opts = append(opts, sequence.WithLocker(sequence.NewFileLocker(cfg.Sequence.Path+".lock", cfg.Sequence.RetryDelay)))
	}
	return sequence.NewFileStore(cfg.Sequence.Path, opts...)
}

func newStockAndCatalogue(ctx context.Context, cfg bootstrap.Config, done *cleanups) (port.StockLedger, port.Catalogue, error) {
	seedProducts, err := parseProducts(cfg.Catalogue.Products)
	if err != nil {
		return nil, nil, err
	}

	var db *gorm.DB
	if cfg.Ledger.Driver == "mysql" || cfg.Catalogue.Driver == "mysql" {
		db, err = infrastructure.OpenDB(infrastructure.DriverMySQL, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, err
		}
		done.add(func(context.Context) {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
	}

	var stock port.StockLedger
	switch cfg.Ledger.Driver {
	case "mysql":
		l := ledger.NewGormLedger(db)
		for id, q := range cfg.Ledger.Seed {
			if err := l.Set(ctx, id, q); err != nil {
				return nil, nil, err
			}
		}
		stock = l
	case "redis":
		rc, err := redis.NewClient(cfg.Infra.Redis.Addrs)
		if err != nil {
			return nil, nil, err
		}
		done.add(func(context.Context) { _ = rc.Close() })
		l, err := ledger.NewRedisLedger(rc)
		if err != nil {
			return nil, nil, err
		}
		for id, q := range cfg.Ledger.Seed {
			if err := l.Set(ctx, id, q); err != nil {
				return nil, nil, err
			}
		}
		stock = l
	default:
		stock = ledger.NewMemoryLedger(cfg.Ledger.Seed)
	}

	var products port.Catalogue
	switch cfg.Catalogue.Driver {
	case "mysql":
		c := catalogue.NewGormCatalogue(db)
		for _, p := range seedProducts {
			if err := c.Save(ctx, p); err != nil {
				return nil, nil, err
			}
		}
		products = c
	default:
		products = catalogue.NewMemoryCatalogue(seedProducts...)
	}
	return stock, products, nil
}

func parseProducts(seeds []bootstrap.ProductSeed) ([]port.Product, error) {
	out := make([]port.Product, 0, len(seeds))
	for _, s := range seeds {
		price, err := decimal.NewFromString(s.Price)
		if err != nil {
			return nil, fmt.Errorf("product %d: invalid price %q: %w", s.ID, s.Price, err)
		}
		out = append(out, port.Product{ID: s.ID, Name: s.Name, Price: price, ImageRef: s.ImageRef})
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
