package cmd

import (
	"fmt"

	"CreativeStudio-server/config"
	"CreativeStudio-server/framegen"
	"CreativeStudio-server/logger"
	"CreativeStudio-server/models"
	"CreativeStudio-server/provider"
	"CreativeStudio-server/service"

	"go.uber.org/zap"
)

// app 组装所有命令共用的依赖
type app struct {
	cfg        *config.Config
	log        *zap.Logger
	repo       *models.Repository
	objects    *service.ObjectStore
	registry   *provider.Registry
	clients    []*provider.KieClient
	starter    *framegen.Starter
	reconciler *framegen.Reconciler
}

func newApp(cfg *config.Config) (*app, error) {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := models.InitDB(cfg.MySQL.DSN)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	log.Info("database initialized")

	objects, err := service.NewObjectStore(cfg.MinIO, log.Named("oss"))
	if err != nil {
		return nil, err
	}

	g := cfg.Generation
	signer := provider.NewCachedSigner(objects, g.SignedURLTTL())
	registry := provider.NewRegistry(g.DefaultProvider)
	a := &app{
		cfg:      cfg,
		log:      log,
		repo:     models.NewRepository(db),
		objects:  objects,
		registry: registry,
	}
	for _, p := range cfg.Providers {
		client := provider.NewKieClient(provider.KieOptions{
			ID:         p.ID,
			BaseURL:    p.BaseURL,
			APIKey:     p.APIKey,
			Model:      p.Model,
			CreatePath: p.CreatePath,
			StatusPath: p.StatusPath,
			LiveMode:   g.LiveMode,
			Timeout:    g.HTTPTimeout(),
			Signer:     signer,
			Logger:     log.Named("provider"),
		})
		registry.Register(p.ID, client)
		a.clients = append(a.clients, client)
	}
	if !g.LiveMode {
		log.Warn("live mode disabled, frame generation requests will be refused")
	}

	a.starter = framegen.NewStarter(registry, log.Named("starter"))
	poller := framegen.NewPoller(registry, g.PollConcurrency, log.Named("poller"))
	a.reconciler = framegen.NewReconciler(a.repo, poller, objects, service.NewHTTPFetcher(g.HTTPTimeout()), framegen.ReconcilerOptions{
		MaxRuntime:          g.MaxJobRuntime(),
		PersistenceRequired: g.PersistenceRequired,
	}, log.Named("reconciler"))
	return a, nil
}

func (a *app) Close() {
	for _, c := range a.clients {
		c.Close()
	}
	_ = a.log.Sync()
}
