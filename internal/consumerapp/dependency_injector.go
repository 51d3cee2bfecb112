package consumerapp

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/you-humble/imagepipe/internal/consumer"
	"github.com/you-humble/imagepipe/internal/domain"
	"github.com/you-humble/imagepipe/internal/infra/config"
	blobstore "github.com/you-humble/imagepipe/internal/infra/store/blob"
	taskstore "github.com/you-humble/imagepipe/internal/infra/store/task"
	mio "github.com/you-humble/imagepipe/internal/libs/minio"
	natsq "github.com/you-humble/imagepipe/internal/libs/nats"
	rediscli "github.com/you-humble/imagepipe/internal/libs/redis"
	"github.com/you-humble/imagepipe/internal/processor"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const cfgPath = "./configs/consumer.yaml"

type Consumer interface {
	Run(ctx context.Context) error
	Stop(ctx context.Context)
}

type dependencyInjector struct {
	cfg    *config.Config
	logger *slog.Logger

	redis     *redis.Client
	taskStore consumer.TaskStore

	blobStore processor.BlobStore

	natsConn *nats.Conn
	js       nats.JetStreamContext

	workers  *processor.Set
	consumer Consumer
}

func newDI() *dependencyInjector {
	return &dependencyInjector{}
}

func (di *dependencyInjector) Config() *config.Config {
	if di.cfg == nil {
		di.cfg = config.MustLoad(cfgPath)
	}

	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		di.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	slog.SetDefault(di.logger)
	return di.logger
}

func (di *dependencyInjector) RedisClient(ctx context.Context) *redis.Client {
	if di.redis == nil {
		cfg := di.Config().Redis
		client, err := rediscli.NewClient(ctx, rediscli.Config{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err != nil {
			log.Fatalf("redis client: %+v", err)
		}

		di.redis = client
		di.Logger().Info("connected to redis", slog.String("addr", cfg.Addr))
	}
	return di.redis
}

func (di *dependencyInjector) TaskStore(ctx context.Context) consumer.TaskStore {
	if di.taskStore == nil {
		di.taskStore = taskstore.NewRedisTaskStore(di.RedisClient(ctx))
	}
	return di.taskStore
}

func (di *dependencyInjector) BlobStore(ctx context.Context) processor.BlobStore {
	if di.blobStore == nil {
		cfg := di.Config().MinIO

		store, err := blobstore.NewMinIOStore(ctx, mio.Config{
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			UseSSL:          cfg.UseSSL,
			Bucket:          cfg.Bucket,
		})
		if err != nil {
			log.Fatalf("blob store: %+v", err)
		}

		di.blobStore = store
		di.Logger().Info(
			"initialized MinIO blob store",
			slog.String("endpoint", cfg.Endpoint),
			slog.String("bucket", cfg.Bucket),
		)
	}

	return di.blobStore
}

func (di *dependencyInjector) NATSConn(ctx context.Context) *nats.Conn {
	if di.natsConn == nil {
		cfg := di.Config().NATS
		nc, err := natsq.NewConnect(cfg.URL, natsq.Config{
			Name:          cfg.Name,
			MaxReconnects: cfg.MaxReconnects,
		})
		if err != nil {
			log.Fatalf("NATS connect: %+v", err)
		}
		di.natsConn = nc
	}
	return di.natsConn
}

func (di *dependencyInjector) JetStream(ctx context.Context) nats.JetStreamContext {
	if di.js == nil {
		cfg := di.Config().NATS
		js, err := natsq.NewJetStream(di.NATSConn(ctx), &nats.StreamConfig{
			Name:     cfg.Stream,
			Subjects: []string{cfg.Subject, cfg.DeadLetterSubject},
			Storage:  nats.FileStorage,
			Replicas: 1,
		})
		if err != nil {
			log.Fatalf("DI JetStream: %+v", err)
		}

		di.js = js
	}
	return di.js
}

func (di *dependencyInjector) Workers(ctx context.Context) *processor.Set {
	if di.workers == nil {
		blob := di.BlobStore(ctx)
		engine := newLazyTextEngine(di.Config().Gemini)

		di.workers = processor.NewSet().
			Register(domain.TypeCompress, processor.NewCompressor(blob)).
			Register(domain.TypeExtractText, processor.NewTextExtractor(blob, engine))
	}

	return di.workers
}

func (di *dependencyInjector) Consumer(ctx context.Context) Consumer {
	if di.consumer == nil {
		cfg := di.Config()
		di.consumer = consumer.New(
			consumer.Config{
				Stream:            cfg.NATS.Stream,
				Subject:           cfg.NATS.Subject,
				DeadLetterSubject: cfg.NATS.DeadLetterSubject,
				Durable:           cfg.Consumer.Durable,
				Workers:           cfg.Consumer.Workers,
				MaxDeliver:        cfg.Consumer.MaxDeliver,
				AckWait:           cfg.Consumer.AckWait,
				ProcessTimeout:    cfg.Consumer.ProcessTimeout,
			},
			di.JetStream(ctx),
			di.TaskStore(ctx),
			di.Workers(ctx),
		)
	}
	return di.consumer
}
