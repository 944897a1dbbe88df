package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Source delivers raw messages from the queue
type Source interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Dispatcher sends the notifications for one event
type Dispatcher interface {
	Dispatch(ctx context.Context, event domain.Event) error
}

// Sweeper announces pending bookings whose offer window passed
type Sweeper interface {
	NotifyExpired(ctx context.Context) (int, error)
}

// Deduper guards against dispatching a redelivered event twice
type Deduper interface {
	Claim(ctx context.Context, id uuid.UUID, owner string) (bool, error)
	Release(ctx context.Context, id uuid.UUID) error
}

// Metrics counts worker outcomes
type Metrics interface {
	EventStarted()
	EventDone()
	EventHandled(result string)
	DuplicateEvent()
	ExpiredSwept(n int)
}

type nopMetrics struct{}

func (nopMetrics) EventStarted()       {}
func (nopMetrics) EventDone()          {}
func (nopMetrics) EventHandled(string) {}
func (nopMetrics) DuplicateEvent()     {}
func (nopMetrics) ExpiredSwept(int)    {}

// Event outcomes
const (
	ResultOK        = "ok"
	ResultFailed    = "failed"
	ResultRequeued  = "requeued"
	ResultInvalid   = "invalid"
	ResultDuplicate = "duplicate"
)

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Source        Source
	Dispatcher    Dispatcher
	Dedupe        Deduper
	Sweeper       Sweeper
	Metrics       Metrics
	Concurrency   int
	EventTimeout  time.Duration
	SweepInterval time.Duration
}

// Worker consumes booking events, dispatches their notifications and sweeps
// expired bookings
type Worker struct {
	logger        *slog.Logger
	source        Source
	dispatcher    Dispatcher
	dedupe        Deduper
	sweeper       Sweeper
	metrics       Metrics
	workerID      string
	concurrency   int
	eventTimeout  time.Duration
	sweepInterval time.Duration
	eventsChan    chan *eventMessage
	wg            sync.WaitGroup
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:        cfg.Logger,
		source:        cfg.Source,
		dispatcher:    cfg.Dispatcher,
		dedupe:        cfg.Dedupe,
		sweeper:       cfg.Sweeper,
		metrics:       cfg.Metrics,
		workerID:      "worker-" + uuid.NewString(),
		concurrency:   cfg.Concurrency,
		eventTimeout:  cfg.EventTimeout,
		sweepInterval: cfg.SweepInterval,
		stopChan:      make(chan struct{}),
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.metrics == nil {
		w.metrics = nopMetrics{}
	}
	if w.concurrency <= 0 {
		w.concurrency = 1
	}
	if w.eventTimeout <= 0 {
		w.eventTimeout = time.Minute
	}
	w.eventsChan = make(chan *eventMessage, w.concurrency)
	return w
}

// ID returns the consumer tag of this worker
func (w *Worker) ID() string {
	return w.workerID
}

// Start consumes until ctx is cancelled or the delivery channel closes
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("event_timeout", w.eventTimeout),
		slog.Duration("sweep_interval", w.sweepInterval),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)

	if w.sweeper != nil && w.sweepInterval > 0 {
		w.wg.Add(1)
		go w.sweepLoop(ctx)
	}

	w.startMessageDispatcher(ctx, deliveries)
	return nil
}

// Stop signals every goroutine to finish and waits for in-flight events
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
