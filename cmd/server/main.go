package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"tkgateway/internal/api/router"
	"tkgateway/internal/cache"
	"tkgateway/internal/config"
	"tkgateway/internal/core/repository"
	"tkgateway/internal/core/service"
	"tkgateway/internal/forward"
	"tkgateway/internal/logger"
	"tkgateway/internal/metrics"
	"tkgateway/internal/protocol"
	"tkgateway/internal/protocol/server"
	"tkgateway/internal/protocol/tk10x"
)

type stores struct {
	devices  repository.DeviceRepository
	events   repository.EventRepository
	geozones repository.GeozoneRepository
	client   *mongo.Client
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("gateway stopped", zap.Error(err))
		stop()
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	if st.client != nil {
		defer st.client.Disconnect(context.Background())
	}

	cache.Initialize(cfg.RedisURL, log)
	defer cache.Close()
	if cache.Enabled() {
		st.devices = repository.NewCachedDeviceRepository(st.devices, log)
	}

	devices := service.NewDeviceService(st.devices, log)
	if n, err := devices.Seed(ctx, cfg.SeedDevices()); err != nil {
		return err
	} else if n > 0 {
		log.Info("seeded devices", zap.Int("count", n))
	}
	if st.client != nil {
		for _, z := range cfg.Geozones {
			if err := st.geozones.Create(ctx, z); err != nil {
				log.Debug("geozone not seeded", zap.String("id", z.ID), zap.Error(err))
			}
		}
	}

	dispatcher := forward.NewDispatcher(cfg.ForwardQueueSize, log, buildPublishers(ctx, cfg, log)...)
	dispatcher.Start(context.Background())

	events := service.NewEventService(st.devices, st.events, st.geozones, service.EventConfig{
		EstimateOdometer:      cfg.EstimateOdometer,
		SimulateGeozones:      cfg.SimulateGeozones,
		SimulateDigitalInputs: cfg.SimulateDigitalInputs,
		LocationInMotion:      cfg.LocationInMotion,
		MinimumMovedMeters:    cfg.MinimumMovedMeters,
		ServerID:              cfg.ServerID,
	}, log)
	events.SetPublisher(dispatcher)

	handler := tk10x.NewHandler(protocol.Options{
		MinSpeedKPH: cfg.MinSpeedKPH,
		Codes:       protocol.StatusMap(cfg.EventCodes),
	}, events, log)

	tcp := server.NewTCPServer(server.Config{
		Port:            cfg.TCPPort,
		IdleTimeout:     cfg.IdleTimeout,
		MaxPacketLength: cfg.MaxPacketLength,
		EndOfStream:     cfg.PacketLenEndOfStream,
		Terminators:     cfg.LineTerminators,
	}, handler, log)
	if err := tcp.Start(ctx); err != nil {
		return err
	}

	metricsSrv := metrics.NewServer(fmt.Sprintf(":%d", cfg.MetricsPort), router.NewRouter(devices, st.events, log))
	go func() {
		log.Info("metrics listening", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := tcp.Stop(shutdownCtx); err != nil {
		log.Warn("connections still open at shutdown", zap.Error(err))
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Warn("forwarders closed with error", zap.Error(err))
	}
	if err := metrics.Shutdown(metricsSrv); err != nil {
		log.Warn("metrics server shutdown", zap.Error(err))
	}
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*stores, error) {
	if !cfg.Mongo.Enabled() {
		log.Warn("MONGODB_URI not set, using in-memory storage")
		return &stores{
			devices:  repository.NewInMemoryDeviceRepository(),
			events:   repository.NewInMemoryEventRepository(),
			geozones: repository.NewInMemoryGeozoneRepository(cfg.Geozones...),
		}, nil
	}

	db, err := config.ConnectMongoDB(ctx, cfg.Mongo)
	if err != nil {
		return nil, err
	}
	log.Info("connected to MongoDB", zap.String("database", cfg.Mongo.Database))

	deviceRepo := repository.NewMongoDeviceRepository(db)
	eventRepo := repository.NewMongoEventRepository(db)
	if err := deviceRepo.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	if err := eventRepo.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return &stores{
		devices:  deviceRepo,
		events:   eventRepo,
		geozones: repository.NewMongoGeozoneRepository(db),
		client:   db.Client(),
	}, nil
}

func buildPublishers(ctx context.Context, cfg *config.Config, log *zap.Logger) []forward.Publisher {
	var pubs []forward.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		pubs = append(pubs, forward.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic))
		log.Info("forwarding events to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	if cfg.MQTTBrokerURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		p, err := forward.NewMQTTPublisher(connectCtx, cfg.MQTTBrokerURL, cfg.MQTTClientID, cfg.MQTTTopic, log)
		cancel()
		if err != nil {
			log.Error("mqtt forwarding disabled", zap.Error(err))
		} else {
			pubs = append(pubs, p)
			log.Info("forwarding events to mqtt", zap.String("broker", cfg.MQTTBrokerURL), zap.String("topic", cfg.MQTTTopic))
		}
	}
	if cfg.InfluxURL != "" {
		pubs = append(pubs, forward.NewInfluxPublisher(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket))
		log.Info("forwarding events to influxdb", zap.String("url", cfg.InfluxURL), zap.String("bucket", cfg.InfluxBucket))
	}
	return pubs
}
