// Package outcome provides a tagged result for work that can partially fail.
package outcome

// Status tags how a piece of work finished.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// Result carries data together with how it was obtained. A Degraded result
// holds usable but incomplete data; a Failed result holds the zero value.
type Result[T any] struct {
	Data   T
	Status Status
	Reason string
}

func OK[T any](data T) Result[T] {
	return Result[T]{Data: data, Status: StatusOK}
}

func Degraded[T any](data T, reason string) Result[T] {
	return Result[T]{Data: data, Status: StatusDegraded, Reason: reason}
}

func Failed[T any](reason string) Result[T] {
	var zero T
	return Result[T]{Data: zero, Status: StatusFailed, Reason: reason}
}

func (r Result[T]) IsOK() bool     { return r.Status == StatusOK }
func (r Result[T]) IsFailed() bool { return r.Status == StatusFailed }

// Usable reports whether Data can be consumed (ok or degraded).
func (r Result[T]) Usable() bool { return r.Status != StatusFailed }
