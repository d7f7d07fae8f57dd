package sink

import (
	"context"
	"errors"
	"fmt"
	"io"

	errs "weibocrawler/pkg/errors"
	"weibocrawler/pkg/logger"
	"weibocrawler/pkg/metrics"
	"weibocrawler/pkg/models"
)

// RecordSink persists ordered batches of posts. The user is sent along
// with every batch so backends can upsert it.
type RecordSink interface {
	Name() string
	Write(ctx context.Context, user models.User, posts []models.Post) error
}

// FanOut dispatches the unwritten tail of a buffer to every sink, in
// configured order.
type FanOut struct {
	sinks   []RecordSink
	metrics *metrics.Metrics
	logger  logger.Logger
}

// NewFanOut creates a fan-out over sinks
func NewFanOut(sinks []RecordSink, m *metrics.Metrics, log logger.Logger) *FanOut {
	return &FanOut{sinks: sinks, metrics: m, logger: logger.OrGlobal(log)}
}

// Sinks returns the configured sinks in dispatch order
func (f *FanOut) Sinks() []RecordSink { return f.sinks }

// Flush writes buffer[watermark:] to every sink and returns the new
// watermark, len(buffer). When any sink fails the error is returned with
// the old watermark and the remaining sinks are not called. With more than
// one sink each receives its own deep copy of the tail.
func (f *FanOut) Flush(ctx context.Context, user models.User, buffer []models.Post, watermark int) (int, error) {
	if watermark < 0 || watermark > len(buffer) {
		return watermark, fmt.Errorf("watermark %d outside buffer of %d", watermark, len(buffer))
	}
	tail := buffer[watermark:]
	if len(tail) == 0 {
		return watermark, nil
	}

	for _, s := range f.sinks {
		batch := tail
		if len(f.sinks) > 1 {
			batch = models.ClonePosts(tail)
		}
		err := s.Write(ctx, user, batch)
		f.metrics.ObserveSink(s.Name(), err)
		if err != nil {
			return watermark, errs.Wrap(errs.ErrorTypeSink, err, s.Name())
		}
		f.logger.DebugWithFields("Sink write completed", map[string]interface{}{
			"sink":  s.Name(),
			"posts": len(batch),
		})
	}
	return len(buffer), nil
}

// Close closes every sink that holds resources
func (f *FanOut) Close() error {
	var closeErrs []error
	for _, s := range f.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				closeErrs = append(closeErrs, fmt.Errorf("close %s: %w", s.Name(), err))
			}
		}
	}
	return errors.Join(closeErrs...)
}
