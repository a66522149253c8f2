package registry

// Subscription is returned by Subscribe and stops deliveries when
// Unsubscribe is called.
type Subscription interface {
	Unsubscribe()
}

// Observable is a push-based feed of values of type T.
type Observable[T any] interface {
	Subscribe(fn func(T)) Subscription
}

// ObservableFunc adapts a function to the Observable interface.
type ObservableFunc[T any] func(fn func(T)) Subscription

// Subscribe calls f(fn).
func (f ObservableFunc[T]) Subscribe(fn func(T)) Subscription {
	return f(fn)
}

// Map derives an observable whose values are transform applied to the values
// of source.
func Map[T any, U any](source Observable[T], transform func(T) U) Observable[U] {
	return ObservableFunc[U](func(fn func(U)) Subscription {
		return source.Subscribe(func(v T) { fn(transform(v)) })
	})
}

// SubscriptionFunc adapts a function to the Subscription interface.
type SubscriptionFunc func()

// Unsubscribe calls f.
func (f SubscriptionFunc) Unsubscribe() { f() }
