package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/taskbrain/internal/intelligence"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/application"
	"github.com/sony/gobreaker/v2"
)

// notificationContext is the aggregate snapshot attached to every outward
// notification.
type notificationContext struct {
	TotalTasks        int     `json:"total_tasks"`
	OverdueTasks      int     `json:"overdue_tasks"`
	ProductivityScore float64 `json:"productivity_score"`
}

type notification struct {
	Timestamp int64               `json:"timestamp"`
	EventType string              `json:"event_type"`
	EventData json.RawMessage     `json:"event_data"`
	Context   notificationContext `json:"context"`
}

type queuedEvent struct {
	eventType string
	eventData json.RawMessage
}

// NotifierConfig tunes the outward notification dispatcher.
type NotifierConfig struct {
	URL            string
	AuthHeader     string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	QueueSize      int
	Workers        int
}

func (c *NotifierConfig) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
}

// Notifier posts event notifications to a configured endpoint from a
// supervised worker pool. Dispatch is fire-and-forget: failures are
// logged, never retried, and never block webhook ingestion. A circuit
// breaker stops hammering a dead endpoint.
type Notifier struct {
	cfg     NotifierConfig
	store   *application.Store
	engine  *intelligence.Engine
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[any]
	logger  *slog.Logger

	queue chan queuedEvent
	wg    sync.WaitGroup
}

// NewNotifier builds a notifier for cfg.URL. Returns nil when no URL is
// configured; callers treat a nil notifier as "notifications disabled".
func NewNotifier(cfg NotifierConfig, store *application.Store, engine *intelligence.Engine, logger *slog.Logger) *Notifier {
	if cfg.URL == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	settings := gobreaker.Settings{
		Name:    "notifier",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				"name", name, "from", from.String(), "to", to.String())
		},
	}

	return &Notifier{
		cfg:    cfg,
		store:  store,
		engine: engine,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
			},
		},
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		logger:  logger,
		queue:   make(chan queuedEvent, cfg.QueueSize),
	}
}

// Start launches the worker pool. Workers drain the queue until ctx is
// cancelled, then exit; Wait blocks until they are done.
func (n *Notifier) Start(ctx context.Context) {
	for i := 0; i < n.cfg.Workers; i++ {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-n.queue:
					n.dispatch(ctx, ev)
				}
			}
		}()
	}
}

// Wait blocks until all workers have stopped.
func (n *Notifier) Wait() { n.wg.Wait() }

// Enqueue queues a notification without blocking. When the queue is full
// the event is dropped and logged; ingestion always wins over delivery.
func (n *Notifier) Enqueue(eventType string, eventData json.RawMessage) {
	select {
	case n.queue <- queuedEvent{eventType: eventType, eventData: eventData}:
	default:
		n.logger.Warn("notification queue full, dropping event", "event_type", eventType)
	}
}

func (n *Notifier) dispatch(ctx context.Context, ev queuedEvent) {
	payload, err := json.Marshal(notification{
		Timestamp: n.store.Now().Unix(),
		EventType: ev.eventType,
		EventData: ev.eventData,
		Context:   n.buildContext(ctx),
	})
	if err != nil {
		n.logger.Error("failed to encode notification", "event_type", ev.eventType, "error", err)
		return
	}

	_, err = n.breaker.Execute(func() (any, error) {
		return nil, n.post(ctx, payload)
	})
	if err != nil {
		n.logger.Warn("notification dispatch failed", "event_type", ev.eventType, "error", err)
		return
	}
	n.logger.Debug("notification delivered", "event_type", ev.eventType)
}

func (n *Notifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.cfg.AuthHeader != "" {
		req.Header.Set("Authorization", n.cfg.AuthHeader)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// buildContext assembles the snapshot at dispatch time. Lookup failures
// degrade to zero values rather than dropping the notification.
func (n *Notifier) buildContext(ctx context.Context) notificationContext {
	nc := notificationContext{}
	if total, err := n.store.CountActive(ctx); err == nil {
		nc.TotalTasks = total
	}
	if overdue, err := n.store.CountOverdue(ctx); err == nil {
		nc.OverdueTasks = overdue
	}
	if score, err := n.engine.ProductivityScore(ctx); err == nil {
		nc.ProductivityScore = score
	}
	return nc
}
