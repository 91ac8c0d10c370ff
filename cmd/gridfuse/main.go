// Command gridfuse runs the cost-layer fusion engine: it listens for
// raster layers and odometry over UDP, fuses them at a fixed cadence and
// forwards the combined cost maps to the planner.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/gridfuse/internal/config"
	"github.com/banshee-data/gridfuse/internal/fusion"
	"github.com/banshee-data/gridfuse/internal/fusion/network"
	storage "github.com/banshee-data/gridfuse/internal/fusion/storage/sqlite"
	"github.com/banshee-data/gridfuse/internal/monitor"
)

var (
	configPath = flag.String("config", "", "Path to fusion config JSON (defaults apply when empty)")
	listen     = flag.String("listen", ":7700", "UDP address for incoming layer and odometry datagrams")
	forward    = flag.String("forward", "127.0.0.1:7710", "UDP address the fused cost maps are sent to")
	dbFile     = flag.String("db", "", "SQLite file to record published output to (disabled when empty)")
	plotDir    = flag.String("plot-dir", "", "Directory for heat map PNGs of published output (disabled when empty)")
)

func main() {
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := fusion.NewLayerStore()
	poses := fusion.NewPoseBuffer(0)
	spec := cfg.GridSpec()

	forwarder, err := network.NewUDPPublisher(*forward, time.Minute)
	if err != nil {
		log.Fatalf("publisher: %v", err)
	}
	forwarder.Start(ctx)

	sinks := fusion.FanoutPublisher{forwarder}
	if *dbFile != "" {
		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			log.Fatalf("marshal config: %v", err)
		}
		recorder, err := storage.NewRecorder(*dbFile, string(cfgJSON))
		if err != nil {
			log.Fatalf("recorder: %v", err)
		}
		defer recorder.Close()
		log.Printf("recording output to %s (run %s)", *dbFile, recorder.RunID())
		sinks = append(sinks, recorder)
	}
	if *plotDir != "" {
		sinks = append(sinks, monitor.SnapshotPublisher{Dir: *plotDir})
	}

	scheduler := fusion.NewScheduler(fusion.SchedulerConfig{
		Store:    store,
		Channels: cfg.Policies(),
		Reprojector: &fusion.Reprojector{
			Spec:                 spec,
			Provider:             poses,
			Timeout:              cfg.GetTransformTimeout(),
			RotationCenterOffset: cfg.GetRotationCenterOffset(),
		},
		Normalizer: &fusion.Normalizer{Spec: spec, Params: cfg.NormalizerParams()},
		Aggregator: &fusion.Aggregator{Spec: spec, Rules: cfg.Rules()},
		Publisher:  sinks,
		Period:     cfg.GetCyclePeriod(),
	})

	listener := network.NewUDPListener(network.UDPListenerConfig{
		Address: *listen,
		Store:   store,
		Poses:   poses,
	})
	go func() {
		if err := listener.Listen(ctx); err != nil {
			log.Printf("listener: %v", err)
			stop()
		}
	}()

	log.Printf("gridfuse: %dx%d @ %.2f m/cell, %d channels, cycle %v",
		spec.Width, spec.Height, spec.Resolution, len(cfg.Channels), cfg.GetCyclePeriod())

	if err := scheduler.Run(ctx); err != nil {
		log.Fatalf("scheduler: %v", err)
	}
}
