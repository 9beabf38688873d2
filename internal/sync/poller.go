package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/taskbrain/internal/intelligence"
	shared "github.com/felixgeelhaar/taskbrain/internal/shared/domain"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/application"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/domain"
	"github.com/sony/gobreaker/v2"
)

// DefaultPollInterval is how often providers are polled.
const DefaultPollInterval = 5 * time.Minute

// Poller periodically pulls provider task lists, reconciles them onto the
// local store, and refreshes intelligence patterns. Each provider fetch
// runs through its own circuit breaker. Per-iteration errors are logged
// and swallowed; the loop exits only on context cancellation.
type Poller struct {
	store     *application.Store
	engine    *intelligence.Engine
	providers []TaskProviderClient
	breakers  map[string]*gobreaker.CircuitBreaker[[]ProviderTask]
	interval  time.Duration
	logger    *slog.Logger
}

func NewPoller(store *application.Store, engine *intelligence.Engine, providers []TaskProviderClient, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	breakers := make(map[string]*gobreaker.CircuitBreaker[[]ProviderTask], len(providers))
	for _, provider := range providers {
		name := provider.Name()
		breakers[name] = gobreaker.NewCircuitBreaker[[]ProviderTask](gobreaker.Settings{
			Name:    "poller:" + name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("provider circuit state change", "breaker", name,
					"from", from.String(), "to", to.String())
			},
		})
	}

	return &Poller{
		store:     store,
		engine:    engine,
		providers: providers,
		breakers:  breakers,
		interval:  interval,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("sync poller started", "interval", p.interval, "providers", len(p.providers))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("sync poller stopped")
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

// runOnce executes a single poll iteration.
func (p *Poller) runOnce(ctx context.Context) {
	for _, provider := range p.providers {
		if err := p.syncProvider(ctx, provider); err != nil {
			p.logger.Error("provider sync failed", "provider", provider.Name(), "error", err)
		}
	}
	if err := p.engine.UpdatePatterns(ctx); err != nil {
		p.logger.Error("pattern update failed", "error", err)
	}
}

func (p *Poller) syncProvider(ctx context.Context, provider TaskProviderClient) error {
	tasks, err := p.breakers[provider.Name()].Execute(func() ([]ProviderTask, error) {
		return provider.FetchTasks(ctx)
	})
	if err != nil {
		return shared.NewIntegrationError(provider.Name(), err)
	}

	source := domain.Source(provider.Name())
	synced := 0
	for _, pt := range tasks {
		if err := p.reconcile(ctx, source, pt); err != nil {
			p.logger.Warn("failed to reconcile provider task",
				"provider", provider.Name(), "external_id", pt.ExternalID, "error", err)
			continue
		}
		synced++
	}

	p.logger.Info("provider sync complete", "provider", provider.Name(), "tasks", synced)
	return nil
}

// reconcile maps one provider task onto the local store: create when the
// external id is unknown, otherwise apply the minimal update. Completion
// flows through Complete so the pattern log stays accurate.
func (p *Poller) reconcile(ctx context.Context, source domain.Source, pt ProviderTask) error {
	existing, err := p.store.GetByExternalID(ctx, source, pt.ExternalID)
	if shared.IsNotFound(err) {
		if pt.Completed {
			return nil
		}
		in := domain.CreateTaskInput{
			Content:     pt.Content,
			Description: pt.Description,
			ProjectID:   pt.ProjectID,
			Labels:      pt.Labels,
			Source:      source,
			ExternalID:  pt.ExternalID,
		}
		if pt.Priority >= domain.PriorityMin && pt.Priority <= domain.PriorityMax {
			priority := pt.Priority
			in.Priority = &priority
		}
		if pt.DueDate != nil {
			in.DueDate = pt.DueDate.Format(time.RFC3339)
		}
		_, err := p.store.Create(ctx, in)
		return err
	}
	if err != nil {
		return err
	}

	if pt.Completed {
		if existing.Completed {
			return nil
		}
		_, err := p.store.Complete(ctx, existing.ID, nil)
		return err
	}

	in := domain.UpdateTaskInput{}
	if pt.Content != "" && pt.Content != existing.Content {
		in.Content = &pt.Content
	}
	if pt.Description != "" && pt.Description != existing.Description {
		in.Description = &pt.Description
	}
	if pt.Priority >= domain.PriorityMin && pt.Priority <= domain.PriorityMax && pt.Priority != existing.Priority {
		in.Priority = &pt.Priority
	}
	if pt.DueDate != nil {
		due := pt.DueDate.Format(time.RFC3339)
		in.DueDate = &due
	}
	if isEmptyUpdate(in) {
		return nil
	}
	_, err = p.store.Update(ctx, existing.ID, in)
	return err
}

func isEmptyUpdate(in domain.UpdateTaskInput) bool {
	return in.Content == nil && in.Description == nil && in.Priority == nil &&
		in.DueDate == nil && in.Completed == nil && in.EstimatedDuration == nil &&
		in.EnergyLevel == nil && in.ContextTags == nil && in.Labels == nil
}
