package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Notifier speaks a catalog message to the person at the kiosk.
type Notifier interface {
	Announce(ctx context.Context, key MessageKey) error
	Say(ctx context.Context, text string) error
}

// HTTPNotifier posts speech requests to an external text-to-speech service.
type HTTPNotifier struct {
	baseURL string
	catalog Catalog
	client  *http.Client
}

// NewHTTPNotifier creates a notifier backed by a TTS service.
func NewHTTPNotifier(baseURL string, catalog Catalog) *HTTPNotifier {
	return &HTTPNotifier{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		catalog: catalog,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Announce speaks the catalog entry for key.
func (n *HTTPNotifier) Announce(ctx context.Context, key MessageKey) error {
	return n.Say(ctx, n.catalog.Text(key))
}

// Say speaks arbitrary text.
func (n *HTTPNotifier) Say(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to marshal speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/speak", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("speech service error (status %d)", resp.StatusCode)
	}
	return nil
}

// NopNotifier discards announcements. Used when no TTS service is configured.
type NopNotifier struct{}

func (NopNotifier) Announce(ctx context.Context, key MessageKey) error { return nil }
func (NopNotifier) Say(ctx context.Context, text string) error        { return nil }

// AsyncNotifier wraps another notifier and speaks in the background so the
// check-in response never waits on audio playback. Announcements are dropped
// when the queue is full.
type AsyncNotifier struct {
	inner Notifier
	queue chan MessageKey
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewAsyncNotifier starts a background speaker over inner.
func NewAsyncNotifier(inner Notifier, queueSize int) *AsyncNotifier {
	if queueSize <= 0 {
		queueSize = 16
	}
	a := &AsyncNotifier{
		inner: inner,
		queue: make(chan MessageKey, queueSize),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *AsyncNotifier) run() {
	for key := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := a.inner.Announce(ctx, key); err != nil {
			log.Printf("voice announcement failed: %v", err)
		}
		cancel()
	}
	close(a.done)
}

// Announce queues the message without blocking the caller. Announcements
// arriving after Close are dropped instead of sent on the closed queue.
func (a *AsyncNotifier) Announce(ctx context.Context, key MessageKey) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("voice notifier closed, dropping %q", key)
	}
	select {
	case a.queue <- key:
		return nil
	default:
		return fmt.Errorf("voice queue full, dropping %q", key)
	}
}

// Say delegates synchronously; free-form text is rare enough not to queue.
func (a *AsyncNotifier) Say(ctx context.Context, text string) error {
	return a.inner.Say(ctx, text)
}

// Close drains the queue and stops the background speaker. Safe to call
// more than once.
func (a *AsyncNotifier) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	close(a.queue)
	<-a.done
}
