package main

import (
	"github.com/MarcoPoloResearchLab/feedsync/internal/config"
	"github.com/MarcoPoloResearchLab/feedsync/internal/database"
	"github.com/MarcoPoloResearchLab/feedsync/internal/events"
	"github.com/MarcoPoloResearchLab/feedsync/internal/fetcher"
	"github.com/MarcoPoloResearchLab/feedsync/internal/identity"
	"github.com/MarcoPoloResearchLab/feedsync/internal/materialize"
	"github.com/MarcoPoloResearchLab/feedsync/internal/metrics"
	"github.com/MarcoPoloResearchLab/feedsync/internal/poller"
	"github.com/MarcoPoloResearchLab/feedsync/internal/server"
	"github.com/MarcoPoloResearchLab/feedsync/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// application holds the wired components shared by serve and sync.
type application struct {
	materializer *materialize.Service
	identity     *identity.Service
	poller       *poller.Poller
	realtime     *server.RealtimeDispatcher
	registry     *prometheus.Registry
	closers      []func() error
}

func buildApplication(appConfig config.AppConfig, logger *zap.Logger) (*application, error) {
	app := &application{registry: prometheus.NewRegistry()}
	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, sqlDB.Close)

	localStore, err := store.New(db)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.identity, err = identity.NewService(identity.ServiceConfig{
		Database:  db,
		Publisher: appConfig.Publisher,
		Logger:    logger,
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	client, err := fetcher.NewClient(fetcher.Config{
		BaseURL:           appConfig.NodeBaseURL,
		Token:             appConfig.NodeToken,
		RequestsPerSecond: appConfig.RequestsPerSecond,
		Timeout:           appConfig.NodeTimeout,
		Logger:            logger,
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	app.realtime = server.NewRealtimeDispatcher()
	observers := []materialize.CycleObserver{app.realtime}
	if appConfig.RedisAddress != "" {
		redisClient := events.NewRedisClient(appConfig.RedisAddress)
		app.closers = append(app.closers, redisClient.Close)
		publisher, err := newEventPublisher(redisClient, appConfig, logger)
		if err != nil {
			app.Close()
			return nil, err
		}
		observers = append(observers, publisher)
	}

	app.materializer, err = materialize.NewService(materialize.ServiceConfig{
		Store:         localStore,
		Identity:      app.identity,
		Fetcher:       client,
		IDProvider:    materialize.NewUUIDProvider(),
		Logger:        logger,
		PageSize:      appConfig.PageSize,
		PendingPolicy: materialize.PendingPolicy{MaxAttempts: appConfig.PendingMaxAttempts},
		Recorder:      metrics.NewCollector(app.registry),
		Observers:     observers,
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	app.poller, err = poller.New(poller.Config{
		Runner:   app.materializer,
		Groups:   appConfig.Groups,
		Interval: appConfig.SyncInterval,
		Logger:   logger,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func newEventPublisher(client *redis.Client, appConfig config.AppConfig, logger *zap.Logger) (*events.Publisher, error) {
	return events.NewPublisher(events.Config{
		Client:        client,
		ChannelPrefix: appConfig.RedisChannelPrefix,
		Logger:        logger,
	})
}

// Close releases resources in reverse acquisition order.
func (a *application) Close() {
	for index := len(a.closers) - 1; index >= 0; index-- {
		_ = a.closers[index]()
	}
	a.closers = nil
}
