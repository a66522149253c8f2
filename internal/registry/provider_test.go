package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testOptions struct {
	Language string
}

func TestNew(t *testing.T) {
	reg := New[testOptions, string]()

	assert.NotNil(t, reg)
	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, reg.ProvidersSnapshot())
	assert.Empty(t, reg.Entries())
}

func TestNew_Seeded(t *testing.T) {
	reg := New(
		Entry[testOptions, string]{RegistrationOptions: testOptions{Language: "go"}, Provider: "a"},
		Entry[testOptions, string]{RegistrationOptions: testOptions{Language: "rust"}, Provider: "b"},
	)

	assert.Equal(t, []string{"a", "b"}, reg.ProvidersSnapshot())

	var first []string
	sub := reg.Subscribe(func(p []string) {
		if first == nil {
			first = p
		}
	})
	defer sub.Unsubscribe()
	assert.Equal(t, []string{"a", "b"}, first)

	entries := reg.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "rust", entries[1].RegistrationOptions.Language)
}

func TestProviderRegistry_Scenario(t *testing.T) {
	reg := New[string, string]()

	d1 := reg.Register("optsX", "providerX")
	assert.Equal(t, []string{"providerX"}, reg.ProvidersSnapshot())

	d2 := reg.Register("optsY", "providerY")
	assert.Equal(t, []string{"providerX", "providerY"}, reg.ProvidersSnapshot())

	d1()
	assert.Equal(t, []string{"providerY"}, reg.ProvidersSnapshot())

	d1()
	assert.Equal(t, []string{"providerY"}, reg.ProvidersSnapshot())

	d2()
	assert.Equal(t, []string{}, reg.ProvidersSnapshot())
}

func TestProviderRegistry_Order(t *testing.T) {
	reg := New[string, string]()

	reg.Register("", "A")
	disposeB := reg.Register("", "B")
	reg.Register("", "C")
	assert.Equal(t, []string{"A", "B", "C"}, reg.ProvidersSnapshot())

	disposeB()
	assert.Equal(t, []string{"A", "C"}, reg.ProvidersSnapshot())

	reg.Register("", "B")
	assert.Equal(t, []string{"A", "C", "B"}, reg.ProvidersSnapshot())
}

func TestProviderRegistry_DisposeByIdentity(t *testing.T) {
	reg := New[string, string]()

	dispose := reg.Register("same", "same")
	reg.Register("same", "same")
	require.Equal(t, 2, reg.Len())

	dispose()
	assert.Equal(t, []string{"same"}, reg.ProvidersSnapshot())
}

func TestProviderRegistry_SubscribeReplaysCurrent(t *testing.T) {
	reg := New[string, string]()
	reg.Register("", "A")

	var emissions [][]string
	sub := reg.Subscribe(func(p []string) { emissions = append(emissions, p) })
	defer sub.Unsubscribe()

	require.Len(t, emissions, 1)
	assert.Equal(t, []string{"A"}, emissions[0])
}

func TestProviderRegistry_SubscribeEmitsEveryChange(t *testing.T) {
	reg := New[string, string]()

	var emissions [][]string
	sub := reg.Providers().Subscribe(func(p []string) { emissions = append(emissions, p) })
	defer sub.Unsubscribe()

	d1 := reg.Register("", "A")
	d2 := reg.Register("", "B")
	d1()
	d1()
	d2()

	assert.Equal(t, [][]string{
		{},
		{"A"},
		{"A", "B"},
		{"B"},
		{},
	}, emissions)
}

func TestProviderRegistry_IndependentSubscriptions(t *testing.T) {
	reg := New[string, string]()

	var first, second [][]string
	sub1 := reg.Subscribe(func(p []string) { first = append(first, p) })
	reg.Register("", "A")
	sub2 := reg.Subscribe(func(p []string) { second = append(second, p) })
	reg.Register("", "B")

	sub1.Unsubscribe()
	sub1.Unsubscribe()
	reg.Register("", "C")
	sub2.Unsubscribe()

	assert.Equal(t, [][]string{{}, {"A"}, {"A", "B"}}, first)
	assert.Equal(t, [][]string{{"A"}, {"A", "B"}, {"A", "B", "C"}}, second)
}

func TestProviderRegistry_UnsubscribeFromCallback(t *testing.T) {
	reg := New[string, string]()

	calls := 0
	var sub Subscription
	sub = reg.Subscribe(func(p []string) {
		calls++
		if len(p) == 1 {
			sub.Unsubscribe()
		}
	})

	reg.Register("", "A")
	reg.Register("", "B")

	assert.Equal(t, 2, calls)
}

func TestProviderRegistry_SnapshotFromCallback(t *testing.T) {
	reg := New[string, string]()

	var seen [][]string
	sub := reg.Subscribe(func([]string) { seen = append(seen, reg.ProvidersSnapshot()) })
	defer sub.Unsubscribe()

	reg.Register("", "A")

	assert.Equal(t, [][]string{{}, {"A"}}, seen)
}

// withinDeadline fails the test if fn does not return promptly.
func withinDeadline(t *testing.T, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("call from observer callback did not return")
	}
}

func TestProviderRegistry_RegisterFromCallback(t *testing.T) {
	reg := New[string, string]()

	var emissions [][]string
	sub := reg.Subscribe(func(p []string) {
		emissions = append(emissions, p)
		if len(p) == 1 && p[0] == "A" {
			reg.Register("", "follow-up")
		}
	})
	defer sub.Unsubscribe()

	withinDeadline(t, func() { reg.Register("", "A") })

	assert.Equal(t, [][]string{{}, {"A"}, {"A", "follow-up"}}, emissions)
	assert.Equal(t, []string{"A", "follow-up"}, reg.ProvidersSnapshot())
}

func TestProviderRegistry_DisposeFromCallback(t *testing.T) {
	reg := New[string, string]()
	dispose := reg.Register("", "A")
	reg.Register("", "B")

	var emissions [][]string
	var sub Subscription
	withinDeadline(t, func() {
		sub = reg.Subscribe(func(p []string) {
			emissions = append(emissions, p)
			if len(p) == 2 {
				dispose()
			}
		})
	})
	defer sub.Unsubscribe()

	assert.Equal(t, [][]string{{"A", "B"}, {"B"}}, emissions)
	assert.Equal(t, []string{"B"}, reg.ProvidersSnapshot())
}

func TestProviderRegistry_SubscribeFromCallback(t *testing.T) {
	reg := New[string, string]()

	var inner [][]string
	var innerSub Subscription
	outer := reg.Subscribe(func(p []string) {
		if len(p) == 1 && innerSub == nil {
			innerSub = reg.Subscribe(func(p []string) { inner = append(inner, p) })
		}
	})
	defer outer.Unsubscribe()

	withinDeadline(t, func() {
		reg.Register("", "A")
		reg.Register("", "B")
	})
	require.NotNil(t, innerSub)
	defer innerSub.Unsubscribe()

	// replay of the list current when subscribing, then every later change
	assert.Equal(t, [][]string{{"A"}, {"A", "B"}}, inner)
}

func TestProviderRegistry_SubscribeEntries(t *testing.T) {
	reg := New[testOptions, string]()
	reg.Register(testOptions{Language: "go"}, "gopls")

	var got []Entry[testOptions, string]
	sub := reg.SubscribeEntries(func(e []Entry[testOptions, string]) { got = e })
	defer sub.Unsubscribe()

	require.Len(t, got, 1)
	assert.Equal(t, "go", got[0].RegistrationOptions.Language)
	assert.Equal(t, "gopls", got[0].Provider)
}

func TestProviderRegistry_SnapshotIsolation(t *testing.T) {
	reg := New[string, string]()
	reg.Register("", "A")

	snapshot := reg.ProvidersSnapshot()
	snapshot[0] = "mutated"

	assert.Equal(t, []string{"A"}, reg.ProvidersSnapshot())
}

func TestNewNoop(t *testing.T) {
	reg := NewNoop()

	var emissions [][]any
	sub := reg.Subscribe(func(p []any) { emissions = append(emissions, p) })
	defer sub.Unsubscribe()

	assert.Empty(t, reg.ProvidersSnapshot())
	require.Len(t, emissions, 1)
	assert.Empty(t, emissions[0])
}

func TestMap(t *testing.T) {
	reg := New[string, string]()
	counts := Map(reg.Providers(), func(p []string) int { return len(p) })

	var got []int
	sub := counts.Subscribe(func(n int) { got = append(got, n) })
	reg.Register("", "A")
	sub.Unsubscribe()
	reg.Register("", "B")

	assert.Equal(t, []int{0, 1}, got)
}

func TestProviderRegistry_ConcurrentAccess(t *testing.T) {
	reg := New[int, int]()

	var (
		mu         sync.Mutex
		lastLength = -1
		emissions  int
	)
	sub := reg.Subscribe(func(p []int) {
		mu.Lock()
		defer mu.Unlock()
		emissions++
		lastLength = len(p)
	})
	defer sub.Unsubscribe()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dispose := reg.Register(i, i)
			_ = reg.ProvidersSnapshot()
			if i%2 == 0 {
				dispose()
				dispose()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, reg.Len())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 25, lastLength)
	// one replay, 50 registrations, 25 disposals
	assert.Equal(t, 76, emissions)
}
