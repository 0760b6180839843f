package gymrun

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"gbgym.ai/internal/env"
	"gbgym.ai/internal/persistence/indexdb"
	persistlog "gbgym.ai/internal/persistence/log"
)

type RecordOptions struct {
	DataDir string
	// RunID defaults to a timestamp.
	RunID string
	// Transitions enables the per-step log; episode logs are always kept.
	Transitions bool
	// DisableIndex skips the sqlite index.
	DisableIndex bool
	Envs         int
	Logger       *log.Logger
}

// Recording owns a run directory: compressed JSONL logs plus the sqlite
// index over them.
type Recording struct {
	RunID  string
	RunDir string

	transitions *persistlog.TransitionLogger
	episodes    *persistlog.EpisodeLogger
	idx         *indexdb.SQLiteIndex
	logger      *log.Logger

	writeErrors atomic.Uint64
}

func OpenRecording(s *Setup, opts RecordOptions) (*Recording, error) {
	runID := opts.RunID
	if runID == "" {
		runID = "run-" + time.Now().UTC().Format("20060102-150405")
	}
	runDir := filepath.Join(opts.DataDir, "runs", runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, err
	}
	tj, err := json.Marshal(s.Tuning)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(runDir, "tuning.json"), tj, 0o644); err != nil {
		return nil, err
	}

	r := &Recording{
		RunID:    runID,
		RunDir:   runDir,
		episodes: persistlog.NewEpisodeLogger(runDir),
		logger:   opts.Logger,
	}
	if opts.Transitions {
		r.transitions = persistlog.NewTransitionLogger(runDir)
	}
	if !opts.DisableIndex {
		idx, err := indexdb.OpenSQLite(filepath.Join(opts.DataDir, "index.db"), runID)
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("index: %w", err)
		}
		r.idx = idx
		if err := idx.UpsertRun(indexdb.Run{
			ID:           runID,
			ROMTitle:     s.ROM.Title,
			TuningDigest: s.Tuning.Digest(),
			TuningJSON:   tj,
			Envs:         opts.Envs,
		}); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("index: %w", err)
		}
	}
	return r, nil
}

// StateDir is where mid-episode save states go.
func (r *Recording) StateDir() string { return filepath.Join(r.RunDir, "states") }

// Recorder returns the recorder for envID.
func (r *Recording) Recorder(envID int) env.Recorder {
	recs := env.Recorders{persistlog.Recorder{
		EnvID:       envID,
		Transitions: r.transitions,
		Episodes:    r.episodes,
		OnError:     r.onError,
	}}
	if r.idx != nil {
		recs = append(recs, r.idx.Recorder(envID))
	}
	return recs
}

// RecordState indexes a save state written by Setup.SaveState.
func (r *Recording) RecordState(envID, episode, step int, path string) {
	r.idx.RecordState(envID, episode, step, path)
}

func (r *Recording) onError(err error) {
	// Only the first few failures are logged; the rest are counted.
	if n := r.writeErrors.Add(1); n <= 10 && r.logger != nil {
		r.logger.Printf("recording: %v", err)
	}
}

// WriteMetrics emits recording counters in Prometheus text format.
func (r *Recording) WriteMetrics(w io.Writer) {
	fmt.Fprintf(w, "# HELP gbgym_log_lines_total Lines written to the run logs.\n")
	fmt.Fprintf(w, "# TYPE gbgym_log_lines_total counter\n")
	fmt.Fprintf(w, "gbgym_log_lines_total{run=%q,log=%q} %d\n", r.RunID, "episodes", r.episodes.Lines())
	if r.transitions != nil {
		fmt.Fprintf(w, "gbgym_log_lines_total{run=%q,log=%q} %d\n", r.RunID, "transitions", r.transitions.Lines())
	}
	fmt.Fprintf(w, "# HELP gbgym_log_write_errors_total Failed log writes.\n")
	fmt.Fprintf(w, "# TYPE gbgym_log_write_errors_total counter\n")
	fmt.Fprintf(w, "gbgym_log_write_errors_total{run=%q} %d\n", r.RunID, r.writeErrors.Load())
	if r.idx == nil {
		return
	}
	st := r.idx.Stats()
	fmt.Fprintf(w, "# HELP gbgym_index_queue_depth Pending sqlite index writes.\n")
	fmt.Fprintf(w, "# TYPE gbgym_index_queue_depth gauge\n")
	fmt.Fprintf(w, "gbgym_index_queue_depth{run=%q} %d\n", r.RunID, st.QueueDepth)
	fmt.Fprintf(w, "# HELP gbgym_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(w, "# TYPE gbgym_index_dropped_total counter\n")
	fmt.Fprintf(w, "gbgym_index_dropped_total{run=%q,kind=%q} %d\n", r.RunID, "episode", st.DropEpisodeTotal)
	fmt.Fprintf(w, "gbgym_index_dropped_total{run=%q,kind=%q} %d\n", r.RunID, "state", st.DropStateTotal)
}

// Close flushes the logs and the index.
func (r *Recording) Close() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if r.transitions != nil {
		keep(r.transitions.Close())
	}
	keep(r.episodes.Close())
	if r.idx != nil {
		keep(r.idx.Close())
	}
	return first
}
