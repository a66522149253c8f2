// Package registry provides ProviderRegistry, a generic container of feature
// providers (hover, definition, diagnostics, ...) that can be registered and
// unregistered at any time and observed as a live list.
//
// Each registration pairs opaque registration options with an opaque
// provider. The registry never interprets either; consumers do.
//
// Typical usage:
//
//	reg := registry.New[Options, HoverProvider]()
//	dispose := reg.Register(opts, provider)
//	defer dispose()
//
//	sub := reg.Providers().Subscribe(func(providers []HoverProvider) {
//	    // called once immediately, then after every change
//	})
//	defer sub.Unsubscribe()
//
// Notifications are delivered in mutation order, and each carries the
// complete provider list after that mutation. Without contention they are
// delivered synchronously on the goroutine that performed the mutation. A
// callback may register, dispose or subscribe; the resulting notification
// follows once the callback returns.
package registry
