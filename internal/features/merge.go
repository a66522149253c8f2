package features

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/docfeat/internal/document"
	"github.com/conneroisu/docfeat/internal/registry"
)

// ErrorFunc is told about every provider that failed while answering a
// request. Failed providers are skipped; they never fail the request.
type ErrorFunc func(ctx context.Context, feature Feature, opts RegistrationOptions, err error)

// Merger answers requests by asking every applicable provider and merging
// their results.
type Merger struct {
	regs        *Registries
	onError     ErrorFunc
	concurrency int
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithErrorFunc sets the callback for provider failures.
func WithErrorFunc(fn ErrorFunc) MergerOption {
	return func(m *Merger) { m.onError = fn }
}

// WithConcurrency bounds how many providers are queried at once. Values
// below one mean one.
func WithConcurrency(n int) MergerOption {
	return func(m *Merger) {
		if n < 1 {
			n = 1
		}
		m.concurrency = n
	}
}

// NewMerger creates a Merger over regs.
func NewMerger(regs *Registries, opts ...MergerOption) *Merger {
	m := &Merger{regs: regs, concurrency: 8}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// query calls call for every entry concurrently and returns the successful
// results in entry order.
func query[P any, R any](
	ctx context.Context,
	m *Merger,
	feature Feature,
	entries []registry.Entry[RegistrationOptions, P],
	call func(context.Context, P) (R, error),
) ([]R, error) {
	results := make([]R, len(entries))
	ok := make([]bool, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, e := range entries {
		g.Go(func() error {
			r, err := call(gctx, e.Provider)
			if err != nil {
				if m.onError != nil && ctx.Err() == nil {
					m.onError(ctx, feature, e.RegistrationOptions, err)
				}
				return nil
			}
			results[i] = r
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]R, 0, len(entries))
	for i, r := range results {
		if ok[i] {
			out = append(out, r)
		}
	}
	return out, nil
}

// Hover merges the hover results of every provider that applies to the
// document. It returns nil when no provider answered. The only error is the
// context's.
func (m *Merger) Hover(ctx context.Context, params HoverParams) (*Hover, error) {
	return m.hover(ctx, m.regs.Hover.Entries(), params)
}

func (m *Merger) hover(ctx context.Context, entries []registry.Entry[RegistrationOptions, HoverProvider], params HoverParams) (*Hover, error) {
	results, err := query(ctx, m, FeatureHover, applicable(entries, params.TextDocument),
		func(ctx context.Context, p HoverProvider) (*Hover, error) {
			return p.ProvideHover(ctx, params)
		})
	if err != nil {
		return nil, err
	}
	return MergeHovers(results), nil
}

// MergeHovers concatenates the contents of hovers in order. The range is the
// first range any hover carries. Nil and empty hovers are ignored; nil is
// returned when nothing remains.
func MergeHovers(hovers []*Hover) *Hover {
	var merged *Hover
	for _, h := range hovers {
		if h == nil || len(h.Contents) == 0 {
			continue
		}
		if merged == nil {
			merged = &Hover{}
		}
		merged.Contents = append(merged.Contents, h.Contents...)
		if merged.Range == nil && h.Range != nil {
			r := *h.Range
			merged.Range = &r
		}
	}
	return merged
}

// Definition merges the locations of every applicable definition provider,
// dropping duplicates.
func (m *Merger) Definition(ctx context.Context, params DefinitionParams) ([]document.Location, error) {
	entries := applicable(m.regs.Definition.Entries(), params.TextDocument)
	results, err := query(ctx, m, FeatureDefinition, entries,
		func(ctx context.Context, p DefinitionProvider) ([]document.Location, error) {
			return p.ProvideDefinition(ctx, params)
		})
	if err != nil {
		return nil, err
	}
	return dedup(results), nil
}

// Diagnostics merges the diagnostics of every applicable provider, dropping
// duplicates.
func (m *Merger) Diagnostics(ctx context.Context, params DiagnosticsParams) ([]Diagnostic, error) {
	entries := applicable(m.regs.Diagnostics.Entries(), params.TextDocument)
	results, err := query(ctx, m, FeatureDiagnostics, entries,
		func(ctx context.Context, p DiagnosticsProvider) ([]Diagnostic, error) {
			return p.ProvideDiagnostics(ctx, params)
		})
	if err != nil {
		return nil, err
	}
	return dedup(results), nil
}

func dedup[T comparable](groups [][]T) []T {
	seen := make(map[T]struct{})
	out := make([]T, 0)
	for _, group := range groups {
		for _, v := range group {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// WatchHover recomputes the merged hover for params every time the set of
// hover providers changes, and passes each result to fn. fn is called from a
// goroutine owned by the watch, never from inside a registry notification,
// so providers may take their time. Only the latest provider set is
// computed; stale pending sets are skipped.
//
// The watch ends when ctx is done or the returned subscription is
// unsubscribed.
func (m *Merger) WatchHover(ctx context.Context, params HoverParams, fn func(*Hover)) registry.Subscription {
	ctx, cancel := context.WithCancel(ctx)
	pending := make(chan []registry.Entry[RegistrationOptions, HoverProvider], 1)

	var mu sync.Mutex
	sub := m.regs.Hover.SubscribeEntries(func(entries []registry.Entry[RegistrationOptions, HoverProvider]) {
		mu.Lock()
		defer mu.Unlock()
		select {
		case <-pending:
		default:
		}
		pending <- entries
	})

	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case entries := <-pending:
				h, err := m.hover(ctx, entries, params)
				if err != nil {
					return
				}
				fn(h)
			}
		}
	}()

	return registry.SubscriptionFunc(cancel)
}
