package services

// Result is the outcome of a read path. Value is always usable: when the
// read failed it holds the documented default and Cause holds the reason.
// Read paths never return their failure as an error; callers that care can
// inspect Degraded.
type Result[T any] struct {
	Value T
	Cause error
}

// Ok reports whether the read completed without degradation.
func (r Result[T]) Ok() bool {
	return r.Cause == nil
}

// Degraded reports whether Value is a fallback.
func (r Result[T]) Degraded() bool {
	return r.Cause != nil
}

func ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func degraded[T any](fallback T, cause error) Result[T] {
	return Result[T]{Value: fallback, Cause: cause}
}
