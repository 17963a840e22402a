package usecase

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"FKSEngine/internal/domain/models"
	"FKSEngine/pkg/logger"
)

// ReplayOptions bound a replay to [From, To). Zero values leave that side open.
type ReplayOptions struct {
	From time.Time
	To   time.Time
}

func (o ReplayOptions) includes(t time.Time) bool {
	if !o.From.IsZero() && t.Before(o.From) {
		return false
	}
	if !o.To.IsZero() && !t.Before(o.To) {
		return false
	}
	return true
}

// ReplayStats summarises a replay run.
type ReplayStats struct {
	Lines         int `json:"lines"`
	Bars          int `json:"bars"`
	Skipped       int `json:"skipped"`
	Invalid       int `json:"invalid"`
	RegimeChanges int `json:"regime_changes"`
	Composites    int `json:"composites"`
	Setups        int `json:"setups"`
}

// Replay feeds newline-delimited JSON bars through the processor in file order and
// hands every output to emit. Malformed lines and rejected bars are counted, not fatal.
func Replay(ctx context.Context, r io.Reader, proc *BarProcessor, opts ReplayOptions, emit func(Output), log *logger.Logger) (ReplayStats, error) {
	if log == nil {
		log = logger.Nop()
	}
	var st ReplayStats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		st.Lines++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var b models.Bar
		if err := json.Unmarshal(line, &b); err != nil {
			st.Invalid++
			log.Debug("replay: bad line", logger.Int("line", st.Lines), logger.Error(err))
			continue
		}
		if !opts.includes(b.Time) {
			st.Skipped++
			continue
		}

		out, err := proc.ProcessBar(ctx, &b)
		if err != nil {
			st.Invalid++
			log.Debug("replay: bar rejected", logger.Int("line", st.Lines), logger.Error(err))
			continue
		}
		st.Bars++
		if out.RegimeChanged {
			st.RegimeChanges++
		}
		if out.Composite != nil {
			st.Composites++
		}
		if out.Setup != nil {
			st.Setups++
		}
		if emit != nil {
			emit(out)
		}
	}
	if err := sc.Err(); err != nil {
		return st, fmt.Errorf("read bars: %w", err)
	}
	return st, nil
}
