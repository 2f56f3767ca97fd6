package ports

import "context"

// KeyedLocker provides mutual exclusion per natural key so that the
// look-up-then-write sequence of a merge cannot interleave with another
// merge of the same key.
type KeyedLocker interface {
	// Lock blocks until the key is held or ctx is done. The returned
	// function releases the key and is safe to call once.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
