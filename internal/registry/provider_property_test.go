//go:build property
// +build property

package registry

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProviderRegistryProperties checks the registry against a plain slice
// model for arbitrary register/dispose sequences.
func TestProviderRegistryProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Each op is either a registration (value >= 0) or a disposal of the
	// registration at index (-op-1) modulo the registrations made so far.
	properties.Property("snapshot equals live registrations in order", prop.ForAll(
		func(ops []int) bool {
			reg := New[int, int]()

			type registration struct {
				provider int
				dispose  Disposer
				live     bool
			}
			var made []*registration

			for _, op := range ops {
				if op >= 0 || len(made) == 0 {
					made = append(made, &registration{provider: op, dispose: reg.Register(op, op), live: true})
					continue
				}
				target := made[(-op-1)%len(made)]
				target.dispose()
				target.live = false
			}

			expected := []int{}
			for _, r := range made {
				if r.live {
					expected = append(expected, r.provider)
				}
			}
			return reflect.DeepEqual(expected, reg.ProvidersSnapshot())
		},
		gen.SliceOf(gen.IntRange(-20, 20)),
	))

	properties.Property("every emission equals the snapshot taken at that moment", prop.ForAll(
		func(ops []int) bool {
			reg := New[int, int]()
			consistent := true
			sub := reg.Subscribe(func(p []int) {
				if !reflect.DeepEqual(p, reg.ProvidersSnapshot()) {
					consistent = false
				}
			})
			defer sub.Unsubscribe()

			var disposers []Disposer
			for _, op := range ops {
				if op >= 0 || len(disposers) == 0 {
					disposers = append(disposers, reg.Register(op, op))
					continue
				}
				disposers[(-op-1)%len(disposers)]()
			}
			return consistent
		},
		gen.SliceOf(gen.IntRange(-10, 10)),
	))

	properties.Property("disposers are idempotent", prop.ForAll(
		func(n int) bool {
			reg := New[int, int]()
			emissions := 0
			sub := reg.Subscribe(func([]int) { emissions++ })
			defer sub.Unsubscribe()

			dispose := reg.Register(n, n)
			for i := 0; i < 3; i++ {
				dispose()
			}
			return emissions == 3 && reg.Len() == 0
		},
		gen.Int(),
	))

	properties.TestingRun(t)
}
