package app

import (
	"context"
	"fmt"

	"github.com/MoveSocial/social_layer/internal/app/services/sponsor"
	"github.com/MoveSocial/social_layer/internal/app/storage"
	"github.com/MoveSocial/social_layer/internal/app/storage/memory"
	"github.com/MoveSocial/social_layer/internal/app/system"
	"github.com/MoveSocial/social_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Leases      storage.GasLeaseStore
	Tasks       storage.TaskStore
	ProfileCaps storage.ProfileCapStore

	// Notifier wakes the worker when a task arrives. Optional; the worker
	// polls regardless.
	Notifier storage.TaskNotifier
}

// Config carries the application-level wiring options.
type Config struct {
	Sponsor           sponsor.Config
	RebalanceSchedule string
	WorkerOptions     []sponsor.WorkerOption
	SweeperOptions    []sponsor.SweeperOption
}

// Application ties the sponsor service together and manages its lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Sponsor    *sponsor.Service
	Rebalancer *sponsor.Rebalancer
}

// New builds a fully initialised application with the provided stores and
// chain access.
func New(stores Stores, submitter sponsor.Submitter, reader sponsor.ObjectReader, cfg Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Leases == nil {
		stores.Leases = mem
	}
	if stores.Tasks == nil {
		stores.Tasks = mem
		if stores.Notifier == nil {
			stores.Notifier = mem
		}
	}
	if stores.ProfileCaps == nil {
		stores.ProfileCaps = mem
	}

	manager := system.NewManager()

	sponsorService := sponsor.New(stores.Tasks, stores.Leases, stores.ProfileCaps, submitter, reader, cfg.Sponsor, log)
	worker := sponsor.NewWorker(sponsorService, stores.Tasks, stores.Notifier, log, cfg.WorkerOptions...)
	rebalancer := sponsor.NewRebalancer(sponsorService, cfg.RebalanceSchedule, log)

	services := []system.Service{worker, rebalancer}
	if janitor, ok := stores.Tasks.(storage.TaskJanitor); ok {
		services = append(services, sponsor.NewSweeper(janitor, log, cfg.SweeperOptions...))
	}

	for _, svc := range services {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:    manager,
		log:        log,
		Sponsor:    sponsorService,
		Rebalancer: rebalancer,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
