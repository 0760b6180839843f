package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"gbgym.ai/internal/env"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst. It is safe for concurrent use.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
	lines   uint64
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Lines is the number of lines written since creation.
func (w *JSONLZstdWriter) Lines() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour || w.w == nil {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.lines++
	return nil
}

// Flush pushes buffered lines through the encoder so a reader of the current
// file sees complete frames.
func (w *JSONLZstdWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		err1 = w.w.Flush()
	}
	if w.enc != nil {
		if err := w.enc.Close(); err1 == nil {
			err1 = err
		}
		w.enc = nil
	}
	if w.f != nil {
		if err := w.f.Close(); err1 == nil {
			err1 = err
		}
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// TransitionEntry is one line of the transition log.
type TransitionEntry struct {
	Env int `json:"env"`
	env.Transition
}

// EpisodeEntry is one line of the episode log.
type EpisodeEntry struct {
	Env        int    `json:"env"`
	Episode    int    `json:"episode"`
	RecordedAt string `json:"recorded_at"`
	env.EpisodeInfo
}

// TransitionLogger writes one JSONL entry per step (compressed).
type TransitionLogger struct{ w *JSONLZstdWriter }

func NewTransitionLogger(runDir string) *TransitionLogger {
	return &TransitionLogger{w: NewJSONLZstdWriter(filepath.Join(runDir, "transitions"), "transitions")}
}

func (l *TransitionLogger) WriteTransition(envID int, t env.Transition) error {
	return l.w.Write(TransitionEntry{Env: envID, Transition: t})
}

func (l *TransitionLogger) Lines() uint64 { return l.w.Lines() }

func (l *TransitionLogger) Close() error { return l.w.Close() }

// EpisodeLogger writes one JSONL entry per finished episode (compressed).
type EpisodeLogger struct{ w *JSONLZstdWriter }

func NewEpisodeLogger(runDir string) *EpisodeLogger {
	return &EpisodeLogger{w: NewJSONLZstdWriter(filepath.Join(runDir, "episodes"), "episodes")}
}

func (l *EpisodeLogger) WriteEpisode(envID, episode int, info env.EpisodeInfo) error {
	return l.w.Write(EpisodeEntry{
		Env:         envID,
		Episode:     episode,
		RecordedAt:  l.w.now().UTC().Format(time.RFC3339),
		EpisodeInfo: info,
	})
}

func (l *EpisodeLogger) Lines() uint64 { return l.w.Lines() }

func (l *EpisodeLogger) Close() error { return l.w.Close() }

// Recorder feeds one environment's steps and episodes into the loggers.
// Either logger may be nil.
type Recorder struct {
	EnvID       int
	Transitions *TransitionLogger
	Episodes    *EpisodeLogger
	// OnError receives write failures; the step loop never sees them.
	OnError func(error)
}

var _ env.Recorder = Recorder{}

func (r Recorder) OnStep(t env.Transition) {
	if r.Transitions == nil {
		return
	}
	r.report(r.Transitions.WriteTransition(r.EnvID, t))
}

func (r Recorder) OnEpisodeEnd(episode int, info env.EpisodeInfo) {
	if r.Episodes == nil {
		return
	}
	r.report(r.Episodes.WriteEpisode(r.EnvID, episode, info))
}

func (r Recorder) report(err error) {
	if err != nil && r.OnError != nil {
		r.OnError(err)
	}
}
