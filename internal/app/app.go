// Package app builds the long-lived clients a command needs from configuration
// and hands them to the discovery controller.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	pubsubapi "cloud.google.com/go/pubsub/v2"
	gcsapi "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/grant-discovery/internal/clock/system"
	"github.com/JakeFAU/grant-discovery/internal/config"
	"github.com/JakeFAU/grant-discovery/internal/crawler"
	"github.com/JakeFAU/grant-discovery/internal/discovery"
	"github.com/JakeFAU/grant-discovery/internal/embedding/openai"
	collyfetcher "github.com/JakeFAU/grant-discovery/internal/fetcher/colly"
	"github.com/JakeFAU/grant-discovery/internal/grant"
	"github.com/JakeFAU/grant-discovery/internal/hash/sha256"
	"github.com/JakeFAU/grant-discovery/internal/id/uuid"
	"github.com/JakeFAU/grant-discovery/internal/index/elasticsearch"
	memoryindex "github.com/JakeFAU/grant-discovery/internal/index/memory"
	"github.com/JakeFAU/grant-discovery/internal/metrics"
	"github.com/JakeFAU/grant-discovery/internal/normalize"
	"github.com/JakeFAU/grant-discovery/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/grant-discovery/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/grant-discovery/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/grant-discovery/internal/storage/gcs"
	localstorage "github.com/JakeFAU/grant-discovery/internal/storage/local"
	memorystorage "github.com/JakeFAU/grant-discovery/internal/storage/memory"
	memorystore "github.com/JakeFAU/grant-discovery/internal/store/memory"
	"github.com/JakeFAU/grant-discovery/internal/store/postgres"
	"github.com/JakeFAU/grant-discovery/internal/store/sqlite"
)

// App holds the clients built for one process. It is constructed once and
// passed to the commands and the API server.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Controller *discovery.Controller
	Store      grant.Store
	Blobs      grant.BlobStore

	closers []func() error
}

// New builds every configured client. Clients are connected eagerly so that a
// bad DSN or bucket fails before any crawling starts.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	a := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	defaultStatus, err := cfg.DefaultStatus()
	if err != nil {
		return nil, err
	}
	clock := system.New()

	fetcher := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.RateLimit.RPS,
		DefaultBurst: cfg.RateLimit.Burst,
	}).Wrap(collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Fetcher.UserAgent,
		RespectRobots: cfg.Fetcher.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
	}, logger.Named("fetcher")))

	c, err := crawler.New(cfg.CrawlerConfig(), fetcher, logger.Named("crawler"))
	if err != nil {
		return nil, fmt.Errorf("build crawler: %w", err)
	}

	if a.Store, err = a.buildStore(ctx); err != nil {
		return nil, err
	}
	if a.Blobs, err = a.buildBlobs(ctx); err != nil {
		return nil, err
	}
	index, err := a.buildIndex(ctx)
	if err != nil {
		return nil, err
	}
	embedder, err := a.buildEmbedder()
	if err != nil {
		return nil, err
	}
	publisher, err := a.buildPublisher(ctx)
	if err != nil {
		return nil, err
	}

	a.Controller, err = discovery.New(discovery.Config{
		Source:         cfg.Source.Name,
		SnapshotPrefix: cfg.Storage.SnapshotPrefix,
		SummaryPrefix:  cfg.Storage.SummaryPrefix,
	}, discovery.Deps{
		Crawler: c,
		Fetcher: fetcher,
		Normalizer: normalize.New(normalize.Config{
			Source:        cfg.Source.Name,
			SourceTag:     cfg.Source.Tag,
			DefaultStatus: defaultStatus,
		}, clock, logger.Named("normalize")),
		Store:     a.Store,
		Embedder:  embedder,
		Index:     index,
		Publisher: publisher,
		Blobs:     a.Blobs,
		Hasher:    sha256.New(),
		Clock:     clock,
		IDs:       uuid.New(),
	}, logger.Named("discovery"))
	if err != nil {
		return nil, fmt.Errorf("build discovery controller: %w", err)
	}

	logger.Info("application services initialized",
		zap.String("store", cfg.Store.Provider),
		zap.String("index", cfg.Index.Provider),
		zap.String("embedding", cfg.Embedding.Provider),
		zap.String("publisher", cfg.Publisher.Provider),
		zap.String("storage", cfg.Storage.Provider),
	)
	ok = true
	return a, nil
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *App) buildStore(ctx context.Context) (grant.Store, error) {
	cfg := a.Config.Store
	switch cfg.Provider {
	case config.ProviderMemory:
		return memorystore.New(), nil
	case config.ProviderPostgres:
		s, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.Postgres.DSN,
			Table:    cfg.Table,
			MaxConns: cfg.Postgres.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres store: %w", err)
		}
		a.onClose(func() error {
			s.Close()
			return nil
		})
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case config.ProviderSQLite:
		s, err := sqlite.Open(sqlite.Config{Path: cfg.SQLite.Path, Table: cfg.Table})
		if err != nil {
			return nil, err
		}
		a.onClose(s.Close)
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown store provider %q", config.ErrConfiguration, cfg.Provider)
	}
}

func (a *App) buildBlobs(ctx context.Context) (grant.BlobStore, error) {
	cfg := a.Config.Storage
	switch cfg.Provider {
	case config.ProviderMemory:
		return memorystorage.NewBlobStore(), nil
	case config.ProviderLocal:
		s, err := localstorage.New(localstorage.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("build local storage: %w", err)
		}
		return s, nil
	case config.ProviderGCS:
		client, err := gcsapi.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.onClose(client.Close)
		s, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.GCS.Bucket, Prefix: cfg.GCS.Prefix})
		if err != nil {
			return nil, fmt.Errorf("build gcs storage: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown storage provider %q", config.ErrConfiguration, cfg.Provider)
	}
}

func (a *App) buildIndex(ctx context.Context) (grant.VectorIndex, error) {
	cfg := a.Config.Index
	switch cfg.Provider {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderMemory:
		return memoryindex.New(), nil
	case config.ProviderElasticsearch:
		es := cfg.Elasticsearch
		x, err := elasticsearch.New(elasticsearch.Config{
			Addresses:  es.Addresses,
			Username:   es.Username,
			Password:   es.Password,
			APIKey:     es.APIKey,
			Index:      es.Index,
			Dimensions: es.Dimensions,
			Similarity: es.Similarity,
		})
		if err != nil {
			return nil, err
		}
		if err := x.EnsureIndex(ctx); err != nil {
			return nil, err
		}
		return x, nil
	default:
		return nil, fmt.Errorf("%w: unknown index provider %q", config.ErrConfiguration, cfg.Provider)
	}
}

func (a *App) buildEmbedder() (grant.Embedder, error) {
	cfg := a.Config.Embedding
	switch cfg.Provider {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderOpenAI:
		o := cfg.OpenAI
		e, err := openai.New(openai.Config{
			BaseURL:    o.BaseURL,
			APIKey:     o.APIKey,
			Model:      o.Model,
			Dimensions: o.Dimensions,
			Timeout:    time.Duration(o.TimeoutSeconds) * time.Second,
		}, http.DefaultClient)
		if err != nil {
			return nil, fmt.Errorf("build openai embedder: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", config.ErrConfiguration, cfg.Provider)
	}
}

func (a *App) buildPublisher(ctx context.Context) (grant.Publisher, error) {
	cfg := a.Config.Publisher
	switch cfg.Provider {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderMemory:
		return memorypublisher.New(), nil
	case config.ProviderPubSub:
		client, err := pubsubapi.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		a.onClose(client.Close)
		p := pubsubpublisher.New(client.Publisher(cfg.PubSub.Topic))
		a.onClose(func() error {
			p.Stop()
			return nil
		})
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown publisher provider %q", config.ErrConfiguration, cfg.Provider)
	}
}

// Close releases clients in reverse order of construction.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		a.Logger.Warn("error closing application services", zap.Error(errors.Join(errs...)))
	}
	return errors.Join(errs...)
}
