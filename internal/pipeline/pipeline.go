// Package pipeline splits a capture into encoded lines, decodes them and
// aggregates the resulting frames and records.
package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/starford/avlog/internal/decoder"
)

// Pipeline decodes captures with a fixed adapter.
type Pipeline struct {
	adapter *decoder.Adapter
	workers int
	logger  *slog.Logger
}

// New returns a Pipeline. workers <= 1 decodes sequentially.
func New(adapter *decoder.Adapter, workers int, logger *slog.Logger) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{adapter: adapter, workers: workers, logger: logger}
}

// Decode produces one outcome per line, indexed like lines. With more than
// one worker lines are decoded concurrently; the result order is the same.
func (p *Pipeline) Decode(ctx context.Context, lines []string) ([]decoder.Outcome, error) {
	outcomes := make([]decoder.Outcome, len(lines))

	if p.workers == 1 {
		for i, line := range lines {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			outcomes[i] = p.adapter.DecodeLine(i, line)
		}
		return outcomes, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, line := range lines {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			outcomes[i] = p.adapter.DecodeLine(i, line)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// Run splits content, decodes every line and aggregates the frames. Lines
// that fail to decode are logged and skipped; only cancellation of ctx
// returns an error.
func (p *Pipeline) Run(ctx context.Context, content string) (*Aggregate, error) {
	lines := SplitLines(content)
	p.logger.Info("capture split",
		slog.Int("frames", len(lines)),
		slog.String("mode", string(p.adapter.Mode())))

	outcomes, err := p.Decode(ctx, lines)
	if err != nil {
		return nil, err
	}

	agg := NewAggregate()
	agg.Lines = len(lines)
	for _, o := range outcomes {
		if o.Decoded() {
			p.logger.Info("frame decoded",
				slog.Int("line", o.Index+1),
				slog.Int("records", len(o.Frame.Records)))
		} else {
			p.logger.Warn("frame skipped",
				slog.Int("line", o.Index+1),
				slog.String("error", o.Err.Error()))
		}
		agg.Add(o)
	}
	return agg, nil
}
