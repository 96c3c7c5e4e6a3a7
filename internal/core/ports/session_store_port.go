package ports

// SessionStore is a concurrency-safe keyed container for in-memory session
// state. Each tracker owns its own store.
type SessionStore[K comparable, V any] interface {
	Get(key K) (V, bool)
	Put(key K, value V)
	Delete(key K)
	Len() int

	// Range calls fn for every entry of a snapshot taken at call time.
	// Iteration stops when fn returns false.
	Range(fn func(key K, value V) bool)

	// Compute runs fn atomically with the current value for key. The
	// returned value is stored when keep is true; otherwise the key is removed.
	Compute(key K, fn func(value V, ok bool) (newValue V, keep bool))

	// DeleteFunc atomically removes every entry for which fn returns true
	// and returns the number removed.
	DeleteFunc(fn func(key K, value V) bool) int
}
