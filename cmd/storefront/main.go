package main

import (
	"context"
	"flag"
	"time"

	"go.opentelemetry.io/otel"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/config"
	"storefront/internal/pkg/httpclient"
	"storefront/internal/pkg/lock"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/redis"
	"storefront/internal/service/commerce/application"
	"storefront/internal/service/commerce/infrastructure"
	"storefront/internal/service/commerce/infrastructure/adapter"
	"storefront/internal/service/commerce/interfaces"
	"storefront/internal/service/commerce/pricing"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.Logger()

	// 持久化层
	db, err := infrastructure.OpenDB(cfg.Infra.MySQL.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	inventoryRepo := infrastructure.NewGormInventoryRepository(db)
	cartRepo := infrastructure.NewGormCartRepository(db)
	orderRepo := infrastructure.NewGormOrderRepository(db)
	uow := infrastructure.NewGormUnitOfWork(db)

	// Redis: 咨询性库存缓存 + 结算幂等守卫
	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	stockCache := adapter.NewStockCacheRedisAdapter(redisClient)

	// Kafka: 领域事件
	kafkaWriter := mq.NewWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.Topic)
	events := adapter.NewEventKafkaAdapter(kafkaWriter)

	// 商品锁: 单实例部署用本地信号量，多实例部署切到 ZooKeeper。
	var locker lock.KeyedLocker
	switch cfg.App.LockMode {
	case "zookeeper":
		zkLocker, err := lock.NewZKLocker(cfg.Infra.Zookeeper.Servers, 5*time.Second)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to zookeeper")
		}
		defer zkLocker.Close()
		locker = zkLocker
	default:
		locker = lock.NewLocalLocker()
	}

	// 定价策略（CEL 表达式，可在配置里替换）
	pricingPolicy, err := pricing.NewCELPolicy(cfg.App.Pricing.ShippingExpr, cfg.App.Pricing.TaxExpr)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid pricing expression")
	}

	tracer := otel.Tracer(cfg.App.ServiceName)
	httpClient := httpclient.NewClient(tracer)
	catalog := adapter.NewCatalogHTTPAdapter(httpClient, cfg.Infra.Catalog.BaseURL)
	addresses := adapter.NewAddressHTTPAdapter(httpClient, cfg.Infra.Address.BaseURL)

	// 应用服务
	ledger := application.NewLedger(inventoryRepo, locker, stockCache, events, cfg.App.LockWaitTimeout.Std(), tracer)
	cartService := application.NewCartService(cartRepo, inventoryRepo, catalog, stockCache, tracer)
	checkout := application.NewCheckoutOrchestrator(
		uow, cartRepo, ledger, catalog, addresses, stockCache, events,
		pricingPolicy, tracer, cfg.App.CheckoutTimeout.Std(),
	)
	orderService := application.NewOrderService(uow, orderRepo, ledger, events, tracer)

	handler := interfaces.NewCommerceHandler(cartService, checkout, orderService, ledger)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:    cfg.App.ServiceName,
		Port:           cfg.App.Port,
		JaegerEndpoint: cfg.Infra.Jaeger.Endpoint,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		Cleanup: func(ctx context.Context) {
			if err := kafkaWriter.Close(); err != nil {
				log.Error().Err(err).Msg("error closing kafka writer")
			}
			if err := redisClient.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis client")
			}
		},
	})
}
