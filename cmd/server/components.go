package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dfryer1193/cropfeed/feed/application"
	"github.com/dfryer1193/cropfeed/feed/domain"
	"github.com/dfryer1193/cropfeed/feed/persistence"
	"github.com/dfryer1193/cropfeed/internal/config"
	"github.com/dfryer1193/cropfeed/internal/rest"
	"github.com/dfryer1193/cropfeed/shared/auth"
	"github.com/dfryer1193/cropfeed/shared/db/postgres"
	"github.com/dfryer1193/cropfeed/shared/db/sqlite"
	"github.com/dfryer1193/cropfeed/shared/messaging"
	"github.com/rs/zerolog/log"
)

// components is everything built from the configuration. Close releases
// them in reverse order of creation.
type components struct {
	store    domain.PostStore
	feed     *application.FeedManager
	images   *persistence.SQLiteImageRepository
	identity auth.IdentityProvider
	verifier auth.TokenVerifier

	closers []func() error
}

type buildOptions struct {
	// notifications connects the contact notifier; maintenance commands skip it.
	notifications bool
}

func buildComponents(ctx context.Context, cfg *config.Config, opts buildOptions) (_ *components, err error) {
	c := &components{}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	// SQLite always backs the image index, and the posts too unless another
	// driver is chosen.
	sqliteCfg := sqlite.NewSQLiteConfig(cfg.Storage.SQLitePath)
	if cfg.Storage.Driver == config.StorageMemory {
		sqliteCfg = &sqlite.SQLiteConfig{Path: ":memory:"}
	}
	sqliteDB := sqlite.NewSQLiteDB(sqliteCfg)
	if err := sqliteDB.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}
	c.closers = append(c.closers, sqliteDB.Close)
	c.images = persistence.NewImageRepository(sqliteDB.DB(), cfg.Server.ImageDir)

	var kv domain.KVStore
	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		kv = persistence.NewSQLiteKVStore(sqliteDB.DB())
	case config.StoragePostgres:
		pool, err := postgres.NewPool(ctx, postgres.NewPostgresConfig(cfg.Storage.PostgresDSN))
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() error { pool.Close(); return nil })
		kv = persistence.NewPostgresKVStore(pool)
	case config.StorageMemory:
		kv = persistence.NewMemoryKVStore()
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	c.store = persistence.NewPostStorage(kv,
		persistence.WithKey(cfg.Storage.Key),
		persistence.WithQuota(cfg.Storage.QuotaBytes),
	)

	feedOpts := []application.FeedManagerOption{
		application.WithFormatter(application.NewFormatter(application.NewDescriptionRenderer(), cfg.Server.UploadURL)),
	}
	if opts.notifications {
		notifier, err := c.buildNotifier(ctx, cfg.Contact)
		if err != nil {
			return nil, err
		}
		feedOpts = append(feedOpts, application.WithNotifier(notifier))
	}
	c.feed = application.NewFeedManager(c.store, feedOpts...)

	if err := c.buildAuth(cfg.Auth); err != nil {
		return nil, err
	}

	log.Info().
		Str("storage", cfg.Storage.Driver).
		Str("contact", cfg.Contact.Driver).
		Bool("auth", c.verifier != nil).
		Msg("Components ready")
	return c, nil
}

func (c *components) buildNotifier(ctx context.Context, cfg config.ContactConfig) (domain.ContactNotifier, error) {
	if cfg.Driver != config.ContactMQTT {
		return application.LogNotifier{}, nil
	}

	publisher := messaging.NewMQTTPublisher(messaging.MQTTConfig{
		Broker:      cfg.Broker,
		Username:    cfg.Username,
		Password:    cfg.Password,
		UseTLS:      cfg.UseTLS,
		TopicPrefix: cfg.TopicPrefix,
		QoS:         cfg.QoS,
	})
	c.closers = append(c.closers, publisher.Close)
	if err := publisher.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect contact notifier: %w", err)
	}
	return publisher, nil
}

func (c *components) buildAuth(cfg config.AuthConfig) error {
	if cfg.URL != "" && cfg.AnonKey != "" {
		identity, err := auth.NewGoTrueClient(cfg.URL, cfg.AnonKey)
		if err != nil {
			return err
		}
		c.identity = identity
	}

	if cfg.Enabled() {
		verifier, err := auth.NewJWTVerifier(cfg.JWTSecret, auth.WithLeeway(cfg.Leeway))
		if err != nil {
			return err
		}
		c.verifier = verifier
	} else {
		log.Warn().Msg("No JWT secret configured, uploads are open and posts are unattributed")
	}
	return nil
}

func (c *components) restDependencies(cfg *config.Config) rest.Dependencies {
	return rest.Dependencies{
		Feed:             c.feed,
		Images:           c.images,
		ImageDir:         c.images.Dir(),
		Identity:         c.identity,
		Verifier:         c.verifier,
		ResetRedirectURL: cfg.Auth.ResetRedirectURL,
		UploadURL:        cfg.Server.UploadURL,
		MaxUploadBytes:   cfg.Server.MaxUploadBytes,
	}
}

func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
