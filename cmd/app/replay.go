package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"FKSEngine/internal/services/session"
	"FKSEngine/internal/usecase"
	"FKSEngine/pkg/logger"
	"FKSEngine/pkg/metrics"
	"FKSEngine/pkg/util"
)

var (
	replayInput    string
	replayFrom     string
	replayTo       string
	replayAll      bool
	replayLogLevel string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a JSONL bar file through the engines",
	Long: `Replay reads one JSON bar per line and runs it through fresh engines built from the
config. Bar timestamps drive signal ages, so the file replays the same way on any day.
Composites and setups are written to stdout as JSON lines, followed by a summary.

Examples:
  fks replay --input bars.jsonl
  fks replay --input bars.jsonl --from 2025-03-04 --to 2025-03-05
  cat bars.jsonl | fks replay --all`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "-", "bar file, - for stdin")
	replayCmd.Flags().StringVar(&replayFrom, "from", "", "first bar time (RFC3339, date or unix)")
	replayCmd.Flags().StringVar(&replayTo, "to", "", "end of the window, exclusive")
	replayCmd.Flags().BoolVar(&replayAll, "all", false, "emit every bar output, not only composites and setups")
	replayCmd.Flags().StringVar(&replayLogLevel, "log-level", "warn", "log level, logs go to stderr")
}

func runReplay(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logger.New(&logger.Config{Level: replayLogLevel, Format: "console", Output: "stderr"})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	opts, err := replayWindow(cfg.Engine.Timeframe)
	if err != nil {
		return err
	}

	ecfg, err := usecase.EngineConfigFrom(cfg.Engine)
	if err != nil {
		return err
	}
	ecfg.BarClock = true
	loc, err := usecase.SessionLocation(cfg.Engine.SessionTimezone)
	if err != nil {
		return err
	}
	engines := usecase.NewEngines(usecase.NewProfiles(cfg.Markets), session.NewAnalyzer(loc), usecase.LocalComponents(), ecfg, log)
	defer func() { _ = engines.Shutdown(context.Background()) }()
	proc := usecase.NewBarProcessor(engines, nil, nil, nil, metrics.New(nil), log)

	in, closeIn, err := openInput(replayInput)
	if err != nil {
		return err
	}
	defer closeIn()

	enc := json.NewEncoder(cmd.OutOrStdout())
	emit := func(out usecase.Output) {
		if !replayAll && out.Composite == nil && out.Setup == nil {
			return
		}
		if err := enc.Encode(out); err != nil {
			log.Warn("replay: write output", logger.Error(err))
		}
	}

	stats, err := usecase.Replay(cmd.Context(), in, proc, opts, emit, log)
	if err != nil {
		return err
	}
	return json.NewEncoder(cmd.ErrOrStderr()).Encode(map[string]any{"summary": stats})
}

func replayWindow(timeframe string) (usecase.ReplayOptions, error) {
	var from, to time.Time
	if replayFrom != "" {
		t, ok := util.ParseTime(replayFrom)
		if !ok {
			return usecase.ReplayOptions{}, fmt.Errorf("invalid --from %q", replayFrom)
		}
		from = t
	}
	if replayTo != "" {
		t, ok := util.ParseTime(replayTo)
		if !ok {
			return usecase.ReplayOptions{}, fmt.Errorf("invalid --to %q", replayTo)
		}
		to = t
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return usecase.ReplayOptions{}, fmt.Errorf("--from must be before --to")
	}
	from, to = util.AlignFromTo(from, to, timeframe)
	return usecase.ReplayOptions{From: from, To: to}, nil
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
