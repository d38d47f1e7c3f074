package engine

import (
	"context"
	"log/slog"
	"time"
)

// QueryEvent describes one executor call.
type QueryEvent struct {
	SQL string
	// Params is the number of bound parameters; values are not exposed.
	Params   int
	Exec     bool
	Duration time.Duration
	Error    error
	Start    time.Time
	End      time.Time
}

// Middleware intercepts executor calls. It must call next exactly once.
type Middleware func(ctx context.Context, event *QueryEvent, next func() error) error

// chain runs exec through the middlewares in registration order.
func chain(ctx context.Context, middlewares []Middleware, event *QueryEvent, exec func() error) error {
	event.Start = time.Now()
	index := 0

	var next func() error
	next = func() error {
		if index >= len(middlewares) {
			err := exec()
			event.End = time.Now()
			event.Duration = event.End.Sub(event.Start)
			event.Error = err
			return err
		}
		m := middlewares[index]
		index++
		return m(ctx, event, next)
	}
	return next()
}

// LoggingMiddleware logs each call at debug level and failures at warn.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		logger.DebugContext(ctx, "executing", "sql", event.SQL, "params", event.Params)
		err := next()
		if err != nil {
			logger.WarnContext(ctx, "execution failed", "sql", event.SQL, "error", err)
		} else {
			logger.DebugContext(ctx, "executed", "sql", event.SQL, "duration", event.Duration)
		}
		return err
	}
}

// TimingMiddleware reports each call's duration.
func TimingMiddleware(onTiming func(sql string, duration time.Duration)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if onTiming != nil {
			onTiming(event.SQL, event.Duration)
		}
		return err
	}
}

// ErrorMiddleware reports failed calls.
func ErrorMiddleware(onError func(sql string, err error)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if err != nil && onError != nil {
			onError(event.SQL, err)
		}
		return err
	}
}
