package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gbgym.ai/internal/env"
	"gbgym.ai/internal/gymrun"
	"gbgym.ai/internal/vecenv"
)

func main() {
	var (
		romPath    = flag.String("rom", "", "cartridge image")
		statePath  = flag.String("state", "", "episode start state (optional)")
		tuningPath = flag.String("tuning", "./configs/gym.yaml", "path to gym.yaml")
		envs       = flag.Int("envs", 4, "parallel environments")
		workers    = flag.Int("workers", 0, "max concurrent steps (0 = one per env)")
		steps      = flag.Int("steps", 2048, "pool steps to run")
		seed       = flag.Int64("seed", 1, "random policy seed")
		dataDir    = flag.String("data", "", "record the run under this directory (empty = no recording)")
		logSteps   = flag.Bool("log_transitions", false, "write one log line per step when recording")
		saveEvery  = flag.Int("save_every", 0, "save env 0's state every N steps when recording (0 = never)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bench] ", log.LstdFlags|log.Lmicroseconds)

	setup, err := gymrun.Load(gymrun.Options{ROMPath: *romPath, StatePath: *statePath, TuningPath: *tuningPath})
	if err != nil {
		logger.Fatalf("setup: %v", err)
	}

	var rec *gymrun.Recording
	if *dataDir != "" {
		rec, err = gymrun.OpenRecording(setup, gymrun.RecordOptions{
			DataDir:     *dataDir,
			Transitions: *logSteps,
			Envs:        *envs,
			Logger:      logger,
		})
		if err != nil {
			logger.Fatalf("recording: %v", err)
		}
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Printf("close recording: %v", err)
			}
		}()
	}

	list := make([]*env.Env, 0, *envs)
	for i := 0; i < *envs; i++ {
		e, err := setup.NewEnv()
		if err != nil {
			logger.Fatalf("env %d: %v", i, err)
		}
		if rec != nil {
			e.SetRecorder(rec.Recorder(i))
		}
		list = append(list, e)
	}
	pool, err := vecenv.New(list, vecenv.Options{AutoReset: true, Workers: *workers, Logger: logger})
	if err != nil {
		logger.Fatalf("pool: %v", err)
	}
	defer pool.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if _, err := pool.ResetAll(ctx); err != nil {
		logger.Fatalf("reset: %v", err)
	}
	rng := rand.New(rand.NewSource(*seed))
	actions := make([]env.Action, pool.Len())
	var total float64

	start := time.Now()
	done := 0
	for ; done < *steps; done++ {
		for i := range actions {
			actions[i] = env.Action(rng.Intn(env.NumActions))
		}
		res, err := pool.StepAll(ctx, actions)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Fatalf("step %d: %v", done, err)
		}
		for _, r := range res {
			total += r.Reward
		}
		if rec != nil && *saveEvery > 0 && (done+1)%*saveEvery == 0 {
			e := pool.Env(0)
			path, err := setup.SaveState(rec.StateDir(), 0, e)
			if err != nil {
				logger.Printf("save state: %v", err)
				continue
			}
			rec.RecordState(0, e.Episode(), e.Steps(), path)
		}
	}
	elapsed := time.Since(start).Seconds()
	if elapsed <= 0 {
		elapsed = 1e-9
	}

	envSteps := float64(done * pool.Len())
	frames := envSteps * float64(pool.Spec().FrameSkip)
	logger.Printf("%d envs x %d steps in %.2fs: %.0f steps/s %.0f frames/s reward=%.3f",
		pool.Len(), done, elapsed, envSteps/elapsed, frames/elapsed, total)
}
