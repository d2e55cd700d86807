package fanout

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rickgao/discord-data/internal/discord"
)

const defaultBufferSize = 256

// Listener is one subscription to the event stream.
type Listener struct {
	id   uint64
	mask discord.EventMask

	registry *Registry
	events   chan discord.Event
	dropped  atomic.Uint64
	once     sync.Once
}

// ID returns the listener's registry id.
func (l *Listener) ID() uint64 { return l.id }

// Events returns the listener's channel. It is closed when the listener is
// closed or the registry is cleared, so ranging over it is safe.
func (l *Listener) Events() <-chan discord.Event { return l.events }

// Dropped returns how many matching events were discarded because the
// listener's buffer was full.
func (l *Listener) Dropped() uint64 { return l.dropped.Load() }

// Close unsubscribes the listener and closes its channel. Events already
// buffered remain readable. Safe to call more than once.
func (l *Listener) Close() {
	l.once.Do(func() { l.registry.remove(l) })
}

// Stats is a snapshot of registry activity.
type Stats struct {
	Listeners int
	Published uint64
	Dropped   uint64
}

// Registry fans events out to subscribed listeners.
type Registry struct {
	logger  *slog.Logger
	bufSize int

	mu        sync.RWMutex
	listeners map[uint64]*Listener
	nextID    uint64

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewRegistry builds an empty registry. bufSize is the per-listener channel
// capacity; zero or negative selects the default.
func NewRegistry(bufSize int, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	return &Registry{
		logger:    logger,
		bufSize:   bufSize,
		listeners: make(map[uint64]*Listener),
	}
}

// Subscribe registers a listener for every event type the mask matches.
func (r *Registry) Subscribe(mask discord.EventMask) *Listener {
	return r.SubscribeBuffered(mask, r.bufSize)
}

// SubscribeBuffered is Subscribe with a listener-specific buffer size, for
// consumers that need more slack than the registry default.
func (r *Registry) SubscribeBuffered(mask discord.EventMask, bufSize int) *Listener {
	if bufSize < 1 {
		bufSize = r.bufSize
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	l := &Listener{
		id:       r.nextID,
		mask:     mask,
		registry: r,
		events:   make(chan discord.Event, bufSize),
	}
	r.listeners[l.id] = l
	return l
}

// Unsubscribe closes the listener with the given id, if it exists.
func (r *Registry) Unsubscribe(id uint64) {
	r.mu.RLock()
	l := r.listeners[id]
	r.mu.RUnlock()
	if l != nil {
		l.Close()
	}
}

// Publish delivers the event to every listener whose mask matches its type.
// Delivery never blocks: listeners with a full buffer miss this event.
func (r *Registry) Publish(ev discord.Event) {
	r.published.Add(1)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.listeners {
		if !l.mask.Contains(ev.Type) {
			continue
		}
		select {
		case l.events <- ev:
		default:
			l.dropped.Add(1)
			r.dropped.Add(1)
			r.logger.Warn("listener buffer full, dropping event",
				"listener", l.id,
				"type", ev.Type.String(),
				"shard", ev.Shard.Index,
			)
		}
	}
}

// Clear closes every listener.
func (r *Registry) Clear() {
	r.mu.RLock()
	ls := make([]*Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		ls = append(ls, l)
	}
	r.mu.RUnlock()

	for _, l := range ls {
		l.Close()
	}
}

// Len returns the number of live listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// Stats returns a snapshot of registry counters.
func (r *Registry) Stats() Stats {
	return Stats{
		Listeners: r.Len(),
		Published: r.published.Load(),
		Dropped:   r.dropped.Load(),
	}
}

// remove deletes the listener and closes its channel. The write lock
// excludes in-flight publishes, so the close cannot race a send.
func (r *Registry) remove(l *Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, l.id)
	close(l.events)
}
