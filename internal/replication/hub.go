package replication

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/udisondev/abilitysystem/internal/cue"
	"github.com/udisondev/abilitysystem/internal/tag"
)

var (
	errSlowObserver = errors.New("observer too slow")
	errHubClosed    = errors.New("hub closed")
)

// HubConfig configures a Hub.
type HubConfig struct {
	// Fingerprint identifies the effect catalog; observers with another
	// catalog refuse the stream.
	Fingerprint string
	// Local receives every cue before it is broadcast. Optional.
	Local        cue.Dispatcher
	SendQueue    int
	WriteTimeout time.Duration
}

// Hub fans records out to websocket observers. Each observer has its own
// bounded queue; an observer that falls behind is disconnected.
//
// Observers joining late receive the latest record per entry and attribute
// before the live stream.
type Hub struct {
	fingerprint  string
	local        cue.Dispatcher
	queueSize    int
	writeTimeout time.Duration

	mu        sync.Mutex
	seq       uint64
	closed    bool
	observers map[*observer]struct{}
	state     map[string]Record
}

type observer struct {
	remote string
	queue  chan Record
	reason error
}

// NewHub creates a hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Hub{
		fingerprint:  cfg.Fingerprint,
		local:        cfg.Local,
		queueSize:    cfg.SendQueue,
		writeTimeout: cfg.WriteTimeout,
		observers:    make(map[*observer]struct{}),
		state:        make(map[string]Record),
	}
}

// Broadcast stamps rec with the next sequence number and queues it for
// every observer.
func (h *Hub) Broadcast(rec Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	rec.Seq = h.seq
	h.remember(rec)

	for o := range h.observers {
		select {
		case o.queue <- rec:
		default:
			slog.Warn("dropping slow replication observer",
				"remote", o.remote,
				"queue", cap(o.queue),
				"seq", rec.Seq)
			h.drop(o, errSlowObserver)
		}
	}
}

func (h *Hub) remember(rec Record) {
	key := rec.cacheKey()
	if key == "" {
		return
	}
	if rec.Kind == KindRemove {
		delete(h.state, key)
		return
	}
	h.state[key] = rec
}

// InvokeCue implements cue.Dispatcher: the cue fires locally, then goes to
// every observer.
func (h *Hub) InvokeCue(target string, cueTag tag.Tag, event cue.Event, params cue.Params) {
	if h.local != nil {
		h.local.InvokeCue(target, cueTag, event, params)
	}
	h.Broadcast(Record{
		Kind:  KindCue,
		Owner: target,
		Cue:   &CueRecord{Tag: cueTag, Event: event, Params: params},
	})
}

// InvokeAddedAndWhileActive implements cue.Multicaster.
func (h *Hub) InvokeAddedAndWhileActive(target string, cueTags tag.Container, params cue.Params) {
	cue.LocalMulticaster{Dispatcher: h}.InvokeAddedAndWhileActive(target, cueTags, params)
}

// ObserverCount returns the number of connected observers.
func (h *Hub) ObserverCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Close disconnects every observer and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for o := range h.observers {
		h.drop(o, errHubClosed)
	}
}

// ServeHTTP upgrades the request and streams records until the observer
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.CloseNow()

	o := &observer{remote: r.RemoteAddr, queue: make(chan Record, h.queueSize)}
	initial, ok := h.register(o)
	if !ok {
		conn.Close(websocket.StatusGoingAway, errHubClosed.Error())
		return
	}
	defer h.unregister(o)

	slog.Info("replication observer connected", "remote", o.remote, "records", len(initial))

	ctx := conn.CloseRead(r.Context())
	err = h.serve(ctx, conn, o, initial)
	switch {
	case errors.Is(err, errSlowObserver):
		conn.Close(websocket.StatusPolicyViolation, err.Error())
	case errors.Is(err, errHubClosed):
		conn.Close(websocket.StatusGoingAway, err.Error())
	}
	slog.Info("replication observer disconnected", "remote", o.remote, "reason", err)
}

func (h *Hub) serve(ctx context.Context, conn *websocket.Conn, o *observer, initial []Record) error {
	for _, rec := range initial {
		if err := h.write(ctx, conn, rec); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-o.queue:
			if !ok {
				return o.reason
			}
			if err := h.write(ctx, conn, rec); err != nil {
				return err
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, rec)
}

// register adds o and returns the hello record followed by the cached
// state in sequence order.
func (h *Hub) register(o *observer) ([]Record, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}

	initial := make([]Record, 0, len(h.state)+1)
	initial = append(initial, Record{Kind: KindHello, Seq: h.seq, Fingerprint: h.fingerprint})
	start := len(initial)
	for _, rec := range h.state {
		initial = append(initial, rec)
	}
	slices.SortFunc(initial[start:], func(a, b Record) int {
		return cmp.Compare(a.Seq, b.Seq)
	})

	h.observers[o] = struct{}{}
	return initial, true
}

func (h *Hub) unregister(o *observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.observers[o]; ok {
		delete(h.observers, o)
		close(o.queue)
	}
}

// drop must be called with mu held.
func (h *Hub) drop(o *observer, reason error) {
	o.reason = reason
	delete(h.observers, o)
	close(o.queue)
}
