// Package command substitutes placeholders into item commands and hands the
// result to the host for execution.
package command

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/coreitems/internal/observability"
	"github.com/pitabwire/coreitems/model"
)

// Placeholders replaced with the acting user's name.
var placeholders = []string{"%player%", "{player}"}

// Substitute replaces every user-name placeholder in command.
func Substitute(command, userName string) string {
	for _, p := range placeholders {
		command = strings.ReplaceAll(command, p, userName)
	}
	return command
}

// Execution is one command the host should run as the console.
type Execution struct {
	ID       string       `json:"id"`
	UserID   string       `json:"user_id"`
	UserName string       `json:"user_name"`
	Item     string       `json:"item"`
	Action   model.Action `json:"action"`
	Command  string       `json:"command"`
	IssuedAt time.Time    `json:"issued_at"`
}

// Dispatcher delivers executions. Delivery is fire-and-forget from the
// caller's point of view: an error is reported but nothing is retried.
type Dispatcher interface {
	Name() string
	Execute(ctx context.Context, exec Execution) error
}

// Dispatch runs exec through d, recording the outcome. Errors are logged and
// returned for the caller to ignore or surface.
func Dispatch(ctx context.Context, d Dispatcher, exec Execution, metrics *observability.Metrics, logger *zap.Logger) error {
	err := d.Execute(ctx, exec)
	status := "ok"
	if err != nil {
		status = "error"
		observability.LoggerFrom(ctx, logger).Error("command dispatch failed",
			zap.String("dispatcher", d.Name()),
			zap.String("item", exec.Item),
			zap.String("user_id", exec.UserID),
			zap.Error(err),
		)
	}
	metrics.RecordCommandDispatch(d.Name(), status)
	return err
}

// LogDispatcher writes executions to the log. It is used when no host
// connection is configured.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a LogDispatcher.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDispatcher{logger: logger}
}

// Name implements Dispatcher.
func (d *LogDispatcher) Name() string { return "log" }

// Execute implements Dispatcher.
func (d *LogDispatcher) Execute(_ context.Context, exec Execution) error {
	d.logger.Info("executing item command",
		zap.String("id", exec.ID),
		zap.String("user_id", exec.UserID),
		zap.String("item", exec.Item),
		zap.String("action", string(exec.Action)),
		zap.String("command", exec.Command),
	)
	return nil
}

// HostSink pushes an execution to the connected host.
type HostSink interface {
	SendExecution(ctx context.Context, exec Execution) error
}

// HostDispatcher forwards executions over the host bridge.
type HostDispatcher struct {
	sink HostSink
}

// NewHostDispatcher creates a HostDispatcher writing to sink.
func NewHostDispatcher(sink HostSink) *HostDispatcher {
	return &HostDispatcher{sink: sink}
}

// Name implements Dispatcher.
func (d *HostDispatcher) Name() string { return "host" }

// ErrNoHostConnected is reported by HostDispatcher.HealthCheck while no host
// is connected.
var ErrNoHostConnected = errors.New("no host connected")

// HealthCheck fails while the sink reports no connected host. Sinks that do
// not count connections are assumed healthy.
func (d *HostDispatcher) HealthCheck(context.Context) error {
	if c, ok := d.sink.(interface{ Connections() int }); ok && c.Connections() == 0 {
		return ErrNoHostConnected
	}
	return nil
}

// Execute implements Dispatcher.
func (d *HostDispatcher) Execute(ctx context.Context, exec Execution) error {
	return d.sink.SendExecution(ctx, exec)
}

// MultiDispatcher fans an execution out to several dispatchers. Every
// dispatcher is tried; the errors are joined.
type MultiDispatcher struct {
	dispatchers []Dispatcher
}

// NewMultiDispatcher creates a MultiDispatcher.
func NewMultiDispatcher(dispatchers ...Dispatcher) *MultiDispatcher {
	return &MultiDispatcher{dispatchers: dispatchers}
}

// Name implements Dispatcher.
func (d *MultiDispatcher) Name() string {
	names := make([]string, 0, len(d.dispatchers))
	for _, sub := range d.dispatchers {
		names = append(names, sub.Name())
	}
	return strings.Join(names, "+")
}

// Execute implements Dispatcher.
func (d *MultiDispatcher) Execute(ctx context.Context, exec Execution) error {
	var errs []error
	for _, sub := range d.dispatchers {
		if err := sub.Execute(ctx, exec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
