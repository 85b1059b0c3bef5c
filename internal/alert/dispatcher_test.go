package alert

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"credwatch/internal/metrics"
	"credwatch/internal/model"
	"credwatch/internal/store"

	"github.com/prometheus/client_golang/prometheus"
)

type hookServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits int
}

func newHookServer(status int) *hookServer {
	hs := &hookServer{}
	hs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hs.mu.Lock()
		hs.hits++
		hs.mu.Unlock()
		w.WriteHeader(status)
	}))
	return hs
}

func (hs *hookServer) count() int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.hits
}

func webhookChannel(id, url string, minSeverity model.Severity, enabled bool) model.NotificationChannel {
	return model.NotificationChannel{
		ID:            id,
		Type:          model.ChannelWebhook,
		Enabled:       enabled,
		MinSeverity:   minSeverity,
		Configuration: map[string]string{"url": url},
	}
}

func dispatchAlert(channelIDs ...string) model.Alert {
	return model.Alert{
		ID:                     "a1",
		RuleID:                 "r1",
		GroupKey:               "0xabc",
		Title:                  "test alert",
		Severity:               model.SeverityMedium,
		Type:                   "brute_force",
		Status:                 model.AlertStatusOpen,
		NotificationChannelIDs: channelIDs,
	}
}

func newTestDispatcher(t *testing.T, st store.Store, opts DispatcherOptions) *Dispatcher {
	t.Helper()
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Millisecond
	}
	if opts.ShutdownGrace == 0 {
		opts.ShutdownGrace = 5 * time.Second
	}
	return NewDispatcher(st, opts, metrics.New(prometheus.NewRegistry()), testLogger())
}

func TestDispatchRoutesBySeverity(t *testing.T) {
	st := store.NewMemoryStore(testLogger())
	reached := newHookServer(http.StatusOK)
	defer reached.Close()
	filtered := newHookServer(http.StatusOK)
	defer filtered.Close()

	// medium alert: meets a medium threshold, not a critical one
	st.PutChannel(webhookChannel("wants-medium", reached.URL, model.SeverityMedium, true))
	st.PutChannel(webhookChannel("wants-critical", filtered.URL, model.SeverityCritical, true))

	d := newTestDispatcher(t, st, DispatcherOptions{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Dispatch(dispatchAlert("wants-medium", "wants-critical"))
	d.Shutdown()

	if reached.count() != 1 {
		t.Errorf("medium channel hits = %d, want 1", reached.count())
	}
	if filtered.count() != 0 {
		t.Errorf("critical channel hits = %d, want 0", filtered.count())
	}
}

func TestDispatchSkipsDisabledAndUnknownChannels(t *testing.T) {
	st := store.NewMemoryStore(testLogger())
	hs := newHookServer(http.StatusOK)
	defer hs.Close()

	st.PutChannel(webhookChannel("disabled", hs.URL, "", false))
	st.PutChannel(webhookChannel("live", hs.URL, "", true))

	d := newTestDispatcher(t, st, DispatcherOptions{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Dispatch(dispatchAlert("disabled", "never-configured", "live"))
	d.Shutdown()

	if hs.count() != 1 {
		t.Errorf("hits = %d, want 1 (live channel only)", hs.count())
	}
}

func TestDispatchRetriesUntilSuccess(t *testing.T) {
	st := store.NewMemoryStore(testLogger())

	hs := &hookServer{}
	hs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hs.mu.Lock()
		hs.hits++
		attempt := hs.hits
		hs.mu.Unlock()
		if attempt < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer hs.Close()

	st.PutChannel(webhookChannel("flaky", hs.URL, "", true))

	d := newTestDispatcher(t, st, DispatcherOptions{Workers: 1, RetryAttempts: 3})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Dispatch(dispatchAlert("flaky"))
	d.Shutdown()

	if hs.count() != 3 {
		t.Errorf("attempts = %d, want 3", hs.count())
	}
}

func TestDispatchBoundedRetries(t *testing.T) {
	st := store.NewMemoryStore(testLogger())
	hs := newHookServer(http.StatusInternalServerError)
	defer hs.Close()

	st.PutChannel(webhookChannel("dead", hs.URL, "", true))

	d := newTestDispatcher(t, st, DispatcherOptions{Workers: 1, RetryAttempts: 2})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Dispatch(dispatchAlert("dead"))
	d.Shutdown()

	if hs.count() != 2 {
		t.Errorf("attempts = %d, want 2", hs.count())
	}
}

func TestChannelFailureDoesNotBlockOthers(t *testing.T) {
	st := store.NewMemoryStore(testLogger())
	dead := newHookServer(http.StatusInternalServerError)
	defer dead.Close()
	live := newHookServer(http.StatusOK)
	defer live.Close()

	st.PutChannel(webhookChannel("dead", dead.URL, "", true))
	st.PutChannel(webhookChannel("live", live.URL, "", true))

	d := newTestDispatcher(t, st, DispatcherOptions{Workers: 1, RetryAttempts: 2})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Dispatch(dispatchAlert("dead", "live"))
	d.Shutdown()

	if live.count() != 1 {
		t.Errorf("live channel hits = %d, want 1: a failing sibling must not block delivery", live.count())
	}
}

func TestDispatchFullQueueDropsWithoutBlocking(t *testing.T) {
	st := store.NewMemoryStore(testLogger())
	d := newTestDispatcher(t, st, DispatcherOptions{Workers: 1, QueueSize: 1})
	// Workers never started: the queue fills and stays full.

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Dispatch(dispatchAlert("nowhere"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a full queue")
	}
}
