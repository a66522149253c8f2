package registry

import (
	"sync"
	"sync/atomic"
)

// Entry pairs a provider with the options it was registered with.
type Entry[O any, P any] struct {
	RegistrationOptions O
	Provider            P
}

// Disposer revokes a registration. Calling it more than once is a no-op.
type Disposer func()

// entry is the registry's identity-bearing record of an Entry. Two
// registrations of equal values are still two entries.
type entry[O any, P any] struct {
	value    Entry[O, P]
	disposed atomic.Bool
}

// ProviderRegistry holds the ordered set of providers registered for one
// feature. It is safe for concurrent use.
//
// Notifications are delivered one at a time, in mutation order, each with
// the complete list as of its mutation. A mutation or subscription made from
// inside an observer callback is queued and delivered once that callback
// returns. The same happens to a mutation made by another goroutine while a
// delivery is running: the delivering goroutine hands it out before
// returning.
type ProviderRegistry[O any, P any] struct {
	// entries is replaced wholesale on every mutation and never modified in place.
	entries atomic.Pointer[[]*entry[O, P]]

	// mu guards everything below and the writes to entries.
	mu sync.Mutex
	// observers is copy-on-write: deliveries iterate an old slice unlocked.
	observers []*observer[O, P]
	pending   []delivery[O, P]
	draining  bool
}

// delivery is a queued notification. With add set, it subscribes add and
// replays entries to it alone.
type delivery[O any, P any] struct {
	entries []*entry[O, P]
	add     *observer[O, P]
}

// New creates a registry, optionally pre-seeded with initial entries. Seeded
// entries have no disposer and stay registered for the registry's lifetime.
func New[O any, P any](initial ...Entry[O, P]) *ProviderRegistry[O, P] {
	r := &ProviderRegistry[O, P]{}
	seeded := make([]*entry[O, P], 0, len(initial))
	for _, e := range initial {
		seeded = append(seeded, &entry[O, P]{value: e})
	}
	r.entries.Store(&seeded)
	return r
}

// NewNoop returns a registry that nothing is expected to register into. It is
// mainly useful in tests and example code.
func NewNoop() *ProviderRegistry[any, any] {
	return New[any, any]()
}

// Register appends a provider and notifies every observer with the new list.
// The returned Disposer removes exactly this registration.
func (r *ProviderRegistry[O, P]) Register(registrationOptions O, provider P) Disposer {
	e := &entry[O, P]{value: Entry[O, P]{RegistrationOptions: registrationOptions, Provider: provider}}

	r.mu.Lock()
	current := r.load()
	next := make([]*entry[O, P], len(current), len(current)+1)
	copy(next, current)
	next = append(next, e)
	r.entries.Store(&next)
	r.pending = append(r.pending, delivery[O, P]{entries: next})
	r.mu.Unlock()

	r.drain()
	return func() { r.remove(e) }
}

func (r *ProviderRegistry[O, P]) remove(e *entry[O, P]) {
	if !e.disposed.CompareAndSwap(false, true) {
		return
	}

	r.mu.Lock()
	current := r.load()
	next := make([]*entry[O, P], 0, len(current))
	for _, existing := range current {
		if existing != e {
			next = append(next, existing)
		}
	}
	if len(next) == len(current) {
		r.mu.Unlock()
		return
	}
	r.entries.Store(&next)
	r.pending = append(r.pending, delivery[O, P]{entries: next})
	r.mu.Unlock()

	r.drain()
}

// drain delivers queued notifications until none are left. Only one
// goroutine drains at a time; a call made while another drain runs, including
// one from inside a callback, returns at once and leaves its work queued.
func (r *ProviderRegistry[O, P]) drain() {
	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		return
	}
	r.draining = true
	r.mu.Unlock()

	completed := false
	defer func() {
		if !completed {
			// a callback panicked; let the next mutation resume delivery
			r.mu.Lock()
			r.draining = false
			r.mu.Unlock()
		}
	}()

	for {
		r.mu.Lock()
		if len(r.pending) == 0 {
			r.draining = false
			r.mu.Unlock()
			completed = true
			return
		}
		d := r.pending[0]
		r.pending[0] = delivery[O, P]{}
		r.pending = r.pending[1:]

		targets := r.observers
		if d.add != nil {
			if d.add.closed.Load() {
				r.mu.Unlock()
				continue
			}
			r.observers = append(r.observers[:len(r.observers):len(r.observers)], d.add)
			targets = []*observer[O, P]{d.add}
		}
		r.mu.Unlock()

		for _, obs := range targets {
			obs.deliver(d.entries)
		}
	}
}

// ProvidersSnapshot returns the providers registered at the moment of the
// call, in registration order.
//
// Prefer Providers even when live updates seem unnecessary. Providers are
// often registered asynchronously, after a client connects or reconnects to
// its extension host, so the snapshot may be empty simply because
// registration has not happened yet. Subscribing yields the expected result
// once the providers arrive.
func (r *ProviderRegistry[O, P]) ProvidersSnapshot() []P {
	return providersOf(r.load())
}

// Entries returns the registered entries, options included, at the moment of
// the call. The same staleness caveat as ProvidersSnapshot applies.
func (r *ProviderRegistry[O, P]) Entries() []Entry[O, P] {
	return valuesOf(r.load())
}

// Len returns the number of registered entries.
func (r *ProviderRegistry[O, P]) Len() int {
	return len(r.load())
}

// Providers returns the live provider list. Every subscription first receives
// the current list, then the full list again after each registration or
// disposal.
func (r *ProviderRegistry[O, P]) Providers() Observable[[]P] {
	return ObservableFunc[[]P](func(fn func([]P)) Subscription {
		return r.subscribe(func(entries []*entry[O, P]) { fn(providersOf(entries)) })
	})
}

// Subscribe is shorthand for Providers().Subscribe(fn).
func (r *ProviderRegistry[O, P]) Subscribe(fn func([]P)) Subscription {
	return r.Providers().Subscribe(fn)
}

// SubscribeEntries behaves like Subscribe but delivers the entries with their
// registration options.
func (r *ProviderRegistry[O, P]) SubscribeEntries(fn func([]Entry[O, P])) Subscription {
	return r.subscribe(func(entries []*entry[O, P]) { fn(valuesOf(entries)) })
}

func (r *ProviderRegistry[O, P]) subscribe(fn func([]*entry[O, P])) Subscription {
	obs := &observer[O, P]{fn: fn}
	obs.unsubscribe = func() { r.removeObserver(obs) }

	r.mu.Lock()
	r.pending = append(r.pending, delivery[O, P]{entries: r.load(), add: obs})
	r.mu.Unlock()

	r.drain()
	return obs
}

func (r *ProviderRegistry[O, P]) removeObserver(obs *observer[O, P]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, o := range r.observers {
		if o == obs {
			r.observers = append(r.observers[:i:i], r.observers[i+1:]...)
			return
		}
	}
}

func (r *ProviderRegistry[O, P]) load() []*entry[O, P] {
	if p := r.entries.Load(); p != nil {
		return *p
	}
	return nil
}

func providersOf[O any, P any](entries []*entry[O, P]) []P {
	providers := make([]P, len(entries))
	for i, e := range entries {
		providers[i] = e.value.Provider
	}
	return providers
}

func valuesOf[O any, P any](entries []*entry[O, P]) []Entry[O, P] {
	values := make([]Entry[O, P], len(entries))
	for i, e := range entries {
		values[i] = e.value
	}
	return values
}

type observer[O any, P any] struct {
	fn          func([]*entry[O, P])
	closed      atomic.Bool
	unsubscribe func()
}

func (o *observer[O, P]) deliver(entries []*entry[O, P]) {
	if o.closed.Load() {
		return
	}
	o.fn(entries)
}

// Unsubscribe stops further deliveries. It is idempotent.
func (o *observer[O, P]) Unsubscribe() {
	if o.closed.CompareAndSwap(false, true) {
		o.unsubscribe()
	}
}
