package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gbgym.ai/internal/env"
	"gbgym.ai/internal/gymrun"
	"gbgym.ai/internal/protocol"
	"gbgym.ai/internal/transport/ws"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		romPath     = flag.String("rom", "", "cartridge image (.gb/.gbc, or a zip/7z/rar/gz/zst archive holding one)")
		statePath   = flag.String("state", "", "episode start state (optional; default boots the cartridge)")
		tuningPath  = flag.String("tuning", "./configs/gym.yaml", "path to gym.yaml")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		runID       = flag.String("run", "", "run id (default: timestamp)")
		logSteps    = flag.Bool("log_transitions", false, "write one log line per step")
		disableDB   = flag.Bool("disable_db", false, "disable the sqlite run index")
		enablePprof = flag.Bool("pprof", false, "serve /debug/pprof")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[gymserver] ", log.LstdFlags|log.Lmicroseconds)

	setup, err := gymrun.Load(gymrun.Options{
		ROMPath:    *romPath,
		StatePath:  *statePath,
		TuningPath: *tuningPath,
	})
	if err != nil {
		logger.Fatalf("setup: %v", err)
	}
	if !setup.ROM.ChecksumOK {
		logger.Printf("warning: %s header checksum mismatch", setup.ROM.Name)
	}
	digest := setup.Tuning.Digest()
	logger.Printf("cartridge %q (%s) tuning=%s", setup.ROM.Title, setup.ROM.Name, digest[:12])

	rec, err := gymrun.OpenRecording(setup, gymrun.RecordOptions{
		DataDir:      *dataDir,
		RunID:        strings.TrimSpace(*runID),
		Transitions:  *logSteps,
		DisableIndex: *disableDB,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatalf("recording: %v", err)
	}
	defer func() {
		if err := rec.Close(); err != nil {
			logger.Printf("close recording: %v", err)
		}
	}()
	logger.Printf("run %s -> %s", rec.RunID, rec.RunDir)

	wsSrv := ws.NewServer(setup.NewEnv, ws.Options{
		ROMTitle:     setup.ROM.Title,
		TuningDigest: digest,
		Recorder:     func(session int64) env.Recorder { return rec.Recorder(int(session)) },
	}, logger)

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(rw, "# HELP gbgym_sessions Open environment sessions.\n")
		fmt.Fprintf(rw, "# TYPE gbgym_sessions gauge\n")
		fmt.Fprintf(rw, "gbgym_sessions{run=%q} %d\n", rec.RunID, wsSrv.Active())
		rec.WriteMetrics(rw)
	})
	mux.HandleFunc("GET /v1/schemas/{type}", func(rw http.ResponseWriter, r *http.Request) {
		src, err := protocol.SchemaSource(strings.ToUpper(r.PathValue("type")))
		if err != nil {
			http.Error(rw, err.Error(), http.StatusNotFound)
			return
		}
		rw.Header().Set("Content-Type", "application/schema+json")
		_, _ = rw.Write(src)
	})
	if *enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/env", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	// Sessions write into the recording until their envs are closed.
	wsSrv.Close()
	logger.Printf("sessions closed")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
