package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"gbgym.ai/internal/env"
)

// SQLiteIndex is a queryable secondary index of runs, finished episodes, and
// saved states. Episode and state rows are written by a single background
// goroutine; the JSONL logs remain the source of truth.
type SQLiteIndex struct {
	db    *sql.DB
	runID string

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropEpisode atomic.Uint64
	dropState   atomic.Uint64
}

type reqKind int

const (
	reqEpisode reqKind = iota + 1
	reqState
)

type req struct {
	kind    reqKind
	episode episodeRow
	state   stateRow
}

type episodeRow struct {
	Env        int
	Episode    int
	Info       env.EpisodeInfo
	RecordedAt string
}

type stateRow struct {
	Env        int
	Episode    int
	Step       int
	Path       string
	RecordedAt string
}

// Run describes one training or benchmark process.
type Run struct {
	ID           string
	ROMTitle     string
	TuningDigest string
	TuningJSON   []byte
	Envs         int
	StartedAt    time.Time
}

type Stats struct {
	QueueDepth       int
	QueueCapacity    int
	DropEpisodeTotal uint64
	DropStateTotal   uint64
}

func OpenSQLite(path, runID string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if runID == "" {
		return nil, fmt.Errorf("empty run id")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:    db,
		runID: runID,
		ch:    make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			rom_title TEXT NOT NULL,
			tuning_digest TEXT NOT NULL,
			tuning_json TEXT NOT NULL,
			envs INTEGER NOT NULL,
			started_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS episodes (
			run_id TEXT NOT NULL,
			env INTEGER NOT NULL,
			episode INTEGER NOT NULL,
			steps INTEGER NOT NULL,
			total_reward REAL NOT NULL,
			badges INTEGER NOT NULL,
			party_size INTEGER NOT NULL,
			max_level_sum INTEGER NOT NULL,
			deaths INTEGER NOT NULL,
			seen_coords INTEGER NOT NULL,
			seen_maps INTEGER NOT NULL,
			moves INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (run_id, env, episode)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_run_reward ON episodes(run_id, total_reward);`,
		`CREATE TABLE IF NOT EXISTS states (
			run_id TEXT NOT NULL,
			env INTEGER NOT NULL,
			episode INTEGER NOT NULL,
			step INTEGER NOT NULL,
			path TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (run_id, env, episode, step)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) RunID() string { return s.runID }

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
		DropEpisodeTotal: s.dropEpisode.Load(),
		DropStateTotal:   s.dropState.Load(),
	}
}

// UpsertRun records the run row synchronously, before any episode lands.
func (s *SQLiteIndex) UpsertRun(run Run) error {
	if s == nil {
		return nil
	}
	started := run.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO runs(run_id,rom_title,tuning_digest,tuning_json,envs,started_at) VALUES(?,?,?,?,?,?)`,
		s.runID, run.ROMTitle, run.TuningDigest, string(run.TuningJSON), run.Envs,
		started.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordEpisode queues a finished episode. It never blocks; rows are dropped
// when the writer falls behind.
func (s *SQLiteIndex) RecordEpisode(envID, episode int, info env.EpisodeInfo) {
	if s == nil || s.closed.Load() {
		return
	}
	r := episodeRow{
		Env:        envID,
		Episode:    episode,
		Info:       info,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqEpisode, episode: r}:
	default:
		s.dropEpisode.Add(1)
	}
}

// RecordState queues the location of a save state written mid-episode.
func (s *SQLiteIndex) RecordState(envID, episode, step int, path string) {
	if s == nil || s.closed.Load() || path == "" {
		return
	}
	r := stateRow{
		Env:        envID,
		Episode:    episode,
		Step:       step,
		Path:       path,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqState, state: r}:
	default:
		s.dropState.Add(1)
	}
}

// Recorder returns an env.Recorder that indexes envID's finished episodes.
func (s *SQLiteIndex) Recorder(envID int) env.Recorder {
	return episodeRecorder{idx: s, env: envID}
}

type episodeRecorder struct {
	idx *SQLiteIndex
	env int
}

func (r episodeRecorder) OnStep(env.Transition) {}

func (r episodeRecorder) OnEpisodeEnd(episode int, info env.EpisodeInfo) {
	r.idx.RecordEpisode(r.env, episode, info)
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEpisode, _ := s.db.Prepare(`INSERT OR REPLACE INTO episodes(run_id,env,episode,steps,total_reward,badges,party_size,max_level_sum,deaths,seen_coords,seen_maps,moves,recorded_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertState, _ := s.db.Prepare(`INSERT OR REPLACE INTO states(run_id,env,episode,step,path,recorded_at) VALUES(?,?,?,?,?,?)`)
	defer func() {
		if insertEpisode != nil {
			_ = insertEpisode.Close()
		}
		if insertState != nil {
			_ = insertState.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEpisode:
			e := r.episode
			if insertEpisode == nil {
				continue
			}
			if _, err := tx.Stmt(insertEpisode).Exec(
				s.runID,
				e.Env,
				e.Episode,
				e.Info.Steps,
				e.Info.Return,
				e.Info.Badges,
				e.Info.PartySize,
				e.Info.MaxLevelSum,
				e.Info.Deaths,
				e.Info.SeenCoords,
				e.Info.SeenMaps,
				e.Info.Moves,
				e.RecordedAt,
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqState:
			st := r.state
			if insertState == nil {
				continue
			}
			if _, err := tx.Stmt(insertState).Exec(s.runID, st.Env, st.Episode, st.Step, st.Path, st.RecordedAt); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
