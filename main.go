package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/openmocap/mocap/internal/api"
	"github.com/openmocap/mocap/internal/calib"
	"github.com/openmocap/mocap/internal/config"
	"github.com/openmocap/mocap/internal/coordinator"
	"github.com/openmocap/mocap/internal/db"
	"github.com/openmocap/mocap/internal/registry"
	"github.com/openmocap/mocap/internal/session"
	"github.com/openmocap/mocap/internal/track"
)

var (
	configFile = flag.String("config", "", "Path to config file (JSON or YAML)")
	listen     = flag.String("listen", "", "HTTP listen address (overrides config)")
	nodeFlags  multiFlag
)

// multiFlag collects repeated -node arguments so a quick session against one
// or two cameras does not need a config file.
type multiFlag []string

func (m *multiFlag) String() string { return "" }
func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func main() {
	flag.Var(&nodeFlags, "node", "Camera node host[:port] (repeatable, overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if len(nodeFlags) > 0 {
		cfg.Nodes = nodeFlags
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if len(cfg.Nodes) == 0 {
		log.Fatal("no camera nodes configured; pass -node or set nodes in the config file")
	}

	nodeIDs := make([]string, 0, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		nodeIDs = append(nodeIDs, cfg.NodeID(n))
	}

	// Missing calibration is not fatal: uncalibrated rigs still capture 2D.
	cameras, err := calib.LoadCameras(cfg.CalibrationDir, cfg.IntrinsicsFile, nodeIDs)
	if err != nil {
		log.Printf("no calibration loaded: %v", err)
	}
	log.Printf("calibration loaded for %d of %d nodes", len(cameras), len(nodeIDs))

	table := track.NewTable(nil)

	var store *track.Store
	if cfg.DBPath != "" {
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()
		if err := database.MigrateUp(); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
		store = track.NewStore(database)
	}

	engine := track.NewEngine(track.EngineConfig{
		Table:             table,
		Cameras:           cameras,
		Interval:          cfg.TriangulationInterval,
		Sink:              sinkOrNil(store),
		MaxObservationAge: cfg.MaxObservationAge,
	})

	reg := registry.New()
	for _, n := range cfg.Nodes {
		id := cfg.NodeID(n)
		_, calibrated := cameras[id]
		reg.Add(id, session.New(session.Config{
			NodeID:        id,
			Addr:          cfg.NodeAddr(n),
			Sink:          table,
			MarkerSetSize: cfg.MarkerSetSize,
		}), calibrated)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if ids := reg.CalibratedIDs(); len(ids) > 0 {
		log.Printf("calibrated nodes: %v", ids)
	}

	connected := reg.ConnectAll(ctx)
	log.Printf("connected to %d of %d nodes", connected, len(cfg.Nodes))

	coord := coordinator.New(reg, engine)

	if cfg.Listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()

			mux := http.NewServeMux()
			api.NewServer(reg, table, engine, store).Routes(mux)

			server := &http.Server{
				Addr:    cfg.Listen,
				Handler: mux,
			}

			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("failed to start server: %v", err)
				}
			}()
			log.Printf("HTTP server listening on %s", cfg.Listen)

			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
			}
			log.Printf("HTTP server routine stopped")
		}()
	}

	// Interactive control loop on stdin; ctrl-D or "quit" ends it.
	if err := coord.Run(ctx, os.Stdin, os.Stdout); err != nil && err != context.Canceled {
		log.Printf("control loop error: %v", err)
	}
	stop()

	wg.Wait()
	log.Printf("shutdown complete")
}

// sinkOrNil avoids handing the engine a typed-nil interface when
// persistence is disabled.
func sinkOrNil(store *track.Store) track.ResultSink {
	if store == nil {
		return nil
	}
	return store
}
