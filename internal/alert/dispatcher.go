package alert

import (
	"context"
	"errors"
	"sync"
	"time"

	"credwatch/internal/metrics"
	"credwatch/internal/model"
	"credwatch/internal/store"

	"github.com/sirupsen/logrus"
)

// Dispatcher fans alerts out to their channels on a worker pool. Enqueueing
// never blocks; a full queue drops the job and counts it.
type Dispatcher struct {
	store   store.Store
	metrics *metrics.Metrics
	logger  *logrus.Logger

	queue         chan model.Alert
	workers       int
	retryAttempts int
	retryDelay    time.Duration
	grace         time.Duration

	wg       sync.WaitGroup
	stopOnce sync.Once
}

type DispatcherOptions struct {
	Workers       int
	QueueSize     int
	RetryAttempts int
	RetryDelay    time.Duration
	ShutdownGrace time.Duration
}

func NewDispatcher(st store.Store, opts DispatcherOptions, m *metrics.Metrics, logger *logrus.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1000
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 10 * time.Second
	}
	return &Dispatcher{
		store:         st,
		metrics:       m,
		logger:        logger,
		queue:         make(chan model.Alert, opts.QueueSize),
		workers:       opts.Workers,
		retryAttempts: opts.RetryAttempts,
		retryDelay:    opts.RetryDelay,
		grace:         opts.ShutdownGrace,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	d.logger.Infof("Notification dispatcher started with %d workers", d.workers)
}

// Dispatch enqueues an alert for delivery and returns immediately.
func (d *Dispatcher) Dispatch(alert model.Alert) {
	select {
	case d.queue <- alert:
		d.metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
	default:
		d.metrics.DispatchDropped.Inc()
		d.logger.Errorf("Dispatch queue full, dropping alert %s", alert.ID)
	}
}

// Shutdown stops accepting work and gives in-flight sends a grace period.
func (d *Dispatcher) Shutdown() {
	d.stopOnce.Do(func() {
		close(d.queue)
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Notification dispatcher drained")
	case <-time.After(d.grace):
		d.logger.Warn("Notification dispatcher shutdown grace expired, abandoning in-flight sends")
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for alert := range d.queue {
		d.metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
		d.deliver(ctx, alert)
	}
	d.logger.Debugf("Dispatcher worker %d stopped", id)
}

// deliver routes one alert to every enabled channel whose minimum severity
// is met. Channels fail independently; one channel's error never touches
// the others.
func (d *Dispatcher) deliver(ctx context.Context, alert model.Alert) {
	for _, channelID := range alert.NotificationChannelIDs {
		channel, err := d.store.GetChannel(channelID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				d.logger.Warnf("Alert %s references unknown channel %s", alert.ID, channelID)
			} else {
				d.logger.Errorf("Failed to load channel %s: %v", channelID, err)
			}
			continue
		}
		if !channel.Enabled {
			continue
		}
		if channel.MinSeverity != "" && !alert.Severity.AtLeast(channel.MinSeverity) {
			continue
		}

		notifier, err := NewNotifier(*channel, d.logger)
		if err != nil {
			d.logger.Errorf("Channel %s: %v", channelID, err)
			continue
		}

		d.sendWithRetry(ctx, notifier, *channel, alert)
	}
}

// sendWithRetry attempts delivery with bounded exponential backoff and logs
// the final failure instead of raising it.
func (d *Dispatcher) sendWithRetry(ctx context.Context, notifier Notifier, channel model.NotificationChannel, alert model.Alert) {
	delay := d.retryDelay
	for attempt := 1; attempt <= d.retryAttempts; attempt++ {
		err := notifier.Send(ctx, alert)
		if err == nil {
			d.metrics.NotificationsSent.WithLabelValues(string(channel.Type)).Inc()
			return
		}

		d.logger.Warnf("Failed to send alert %s to channel %s (attempt %d/%d): %v",
			alert.ID, channel.ID, attempt, d.retryAttempts, err)

		if attempt == d.retryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			d.logger.Warnf("Delivery of alert %s to channel %s abandoned: %v", alert.ID, channel.ID, ctx.Err())
			return
		case <-time.After(delay):
		}
		delay *= 2
	}

	d.metrics.NotificationsFailed.WithLabelValues(string(channel.Type)).Inc()
	d.logger.Errorf("Giving up on alert %s for channel %s after %d attempts", alert.ID, channel.ID, d.retryAttempts)
}
