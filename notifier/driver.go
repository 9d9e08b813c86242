package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openstack/ironic-prometheus-exporter/collector"
)

// Processor renders a notification into a registry.
type Processor interface {
	Process(ctx context.Context, n collector.Notification) (collector.Result, error)
}

// Writer stores rendered metrics under a key.
type Writer interface {
	Write(ctx context.Context, key string, content []byte) error
}

// FileDriver writes one metrics file per node and event type for every notification it
// is given. Each file is replaced wholesale; a notification which fails to process leaves
// the previous file untouched.
type FileDriver struct {
	processor Processor
	writer    Writer
	metrics   *Metrics
	logger    *slog.Logger
}

// NewFileDriver returns a FileDriver. metrics may be nil.
func NewFileDriver(processor Processor, writer Writer, metrics *Metrics, logger *slog.Logger) *FileDriver {
	return &FileDriver{
		processor: processor,
		writer:    writer,
		metrics:   metrics,
		logger:    logger,
	}
}

// Notify handles one raw message body. Unsupported event types are ignored and not
// reported as errors.
func (d *FileDriver) Notify(ctx context.Context, body []byte) error {
	start := time.Now()
	n, err := DecodeMessage(body)
	if err != nil {
		d.record("", resultError, start)
		return fmt.Errorf("unable to decode notification: %w", err)
	}
	logger := d.logger.With(slog.String("event_type", n.EventType))

	res, err := d.processor.Process(ctx, n)
	if errors.Is(err, collector.ErrUnsupportedEvent) {
		logger.Debug("ignoring notification")
		d.record(n.EventType, resultIgnored, start)
		return nil
	}
	if err != nil {
		d.record(n.EventType, resultError, start)
		return fmt.Errorf("unable to process %s notification: %w", n.EventType, err)
	}

	content, err := res.Registry.Bytes()
	if err != nil {
		d.record(n.EventType, resultError, start)
		return fmt.Errorf("unable to render %s: %w", res.FileKey, err)
	}
	if err := d.writer.Write(ctx, res.FileKey, content); err != nil {
		d.record(n.EventType, resultWriteFailed, start)
		return err
	}
	logger.Debug("metrics file written", slog.String("file", res.FileKey))
	d.record(n.EventType, resultWritten, start)
	return nil
}

func (d *FileDriver) record(eventType, result string, start time.Time) {
	if d.metrics == nil {
		return
	}
	d.metrics.notificationsTotal.WithLabelValues(eventType, result).Inc()
	if result == resultWritten {
		d.metrics.processingDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		d.metrics.lastWrite.WithLabelValues(eventType).SetToCurrentTime()
	}
}
