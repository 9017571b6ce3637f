// Package result provides the two-variant success/failure carrier used at
// every component boundary in the ingest pipeline, so that no typed error
// hierarchy has to cross those boundaries.
package result

// Envelope holds either a value or a short human-readable failure message,
// never both. The zero value is a failure with an empty message.
type Envelope[T any] struct {
	value   T
	err     string
	success bool
}

// Ok wraps a successful value.
func Ok[T any](value T) Envelope[T] {
	return Envelope[T]{value: value, success: true}
}

// Err wraps a failure message. Callers should keep the message short and
// operator-scannable; wrap and log the underlying error separately.
func Err[T any](message string) Envelope[T] {
	return Envelope[T]{err: message}
}

// Success reports whether the envelope carries a value.
func (e Envelope[T]) Success() bool {
	return e.success
}

// Failure reports whether the envelope carries an error message.
func (e Envelope[T]) Failure() bool {
	return !e.success
}

// Value returns the carried value. Callers must check Success first; the
// zero value of T is returned for a failure envelope.
func (e Envelope[T]) Value() T {
	return e.value
}

// Error returns the failure message, or "" for a successful envelope.
func (e Envelope[T]) Error() string {
	return e.err
}
