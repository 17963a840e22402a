package usecase

import (
	"context"

	"FKSEngine/internal/domain/models"
	drepo "FKSEngine/internal/domain/repository"
	mid "FKSEngine/internal/middleware"
	"FKSEngine/pkg/logger"
)

// BarCollector reads bars from the live bridge stream and feeds them to the processor.
type BarCollector struct {
	stream  drepo.BarStream
	proc    *BarProcessor
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
	log     *logger.Logger
}

// NewBarCollector creates a new BarCollector instance. pipe may be nil.
func NewBarCollector(stream drepo.BarStream, proc *BarProcessor, metrics drepo.Metrics, pipe *mid.RealtimePipeline, log *logger.Logger) *BarCollector {
	if log == nil {
		log = logger.Nop()
	}
	return &BarCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe, log: log}
}

// IsConnected returns true if the bar stream is connected.
func (c *BarCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *BarCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	barCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, barCh, errCh)
	return nil
}

func (c *BarCollector) consume(ctx context.Context, barCh <-chan *models.Bar, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				return
			}
			if err != nil {
				c.metrics.RecordError("stream")
				c.log.Warn("bar stream error, reconnecting", logger.Error(err))
				if rerr := c.stream.Reconnect(ctx); rerr != nil {
					c.log.Error("bar stream reconnect failed", logger.Error(rerr))
				}
			}
		case b, ok := <-barCh:
			if !ok {
				return
			}
			if b == nil {
				continue
			}
			var err error
			if c.pipe != nil {
				err = c.pipe.Process(ctx, b)
			} else {
				err = c.proc.Process(ctx, b)
			}
			if err != nil {
				c.log.Debug("bar not processed", logger.String("symbol", b.Symbol), logger.Error(err))
			}
		}
	}
}

// Processor returns the underlying BarProcessor for lifecycle management.
func (c *BarCollector) Processor() *BarProcessor { return c.proc }

// Shutdown closes the stream.
func (c *BarCollector) Shutdown(ctx context.Context) error {
	return c.stream.Close()
}
