package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"strings"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/sourcegraph/conc"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"tradecore/internal/bus"
	"tradecore/internal/core"
	"tradecore/internal/ingest"
	"tradecore/internal/obs"
	"tradecore/internal/ops"
	"tradecore/internal/order"
	"tradecore/internal/order/delegator/rest"
	"tradecore/internal/probe"
	"tradecore/internal/schema"
	"tradecore/internal/state"
	"tradecore/internal/store"
	"tradecore/pkg/conn"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	envFiles := flag.String("env", ".env", "Comma separated dotenv files holding broker credentials")
	flag.Parse()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	creds, err := ops.EnvCredentials{Files: splitList(*envFiles)}.Credentials()
	if err != nil {
		log.Fatalf("credentials load failed: %v", err)
	}

	if cfg.Profiler.ServerAddress != "" {
		name := cfg.Profiler.ApplicationName
		if name == "" {
			name = "tradecore.trader"
		}
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: name,
			ServerAddress:   cfg.Profiler.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	ctx := context.Background()
	metrics := obs.NewMetrics()

	var (
		journal   *store.Journal
		journalWG conc.WaitGroup
	)
	journalCtx, stopJournal := context.WithCancel(ctx)
	defer stopJournal()
	if cfg.StoreDSN != "" {
		pg, err := conn.Open(ctx, conn.Option{ConnString: cfg.StoreDSN}, 0)
		if err != nil {
			log.Fatalf("postgres init failed: %v", err)
		}
		defer func() {
			_ = pg.Close()
		}()
		sink := store.NewGormSink(pg.DB())
		if err := sink.Migrate(ctx); err != nil {
			log.Fatalf("journal migrate failed: %v", err)
		}
		journal = store.NewJournal(sink, cfg.StoreQueueSize, metrics)
		journalWG.Go(func() {
			journal.Run(journalCtx)
		})
	}

	broker := rest.NewDelegator(&http.Client{Timeout: cfg.SubmitTimeout}, cfg.RESTURL, creds)

	var seed []schema.PositionRecord
	if cfg.SeedPositions || cfg.CheckpointPath != "" {
		recoverCfg := state.RecoverConfig{SnapshotPath: cfg.CheckpointPath}
		if cfg.SeedPositions {
			recoverCfg.Broker = broker
		}
		seedCtx, cancel := context.WithTimeout(ctx, cfg.SubmitTimeout)
		res, err := state.RecoverPositions(seedCtx, recoverCfg)
		cancel()
		if err != nil {
			log.Fatalf("position recovery failed: %v", err)
		}
		logs.Infof("recovered %d positions from %s", len(res.Positions), res.Source)
		seed = res.Positions
	}

	events := bus.NewQueue(cfg.EventQueueSize)
	submissions, err := order.NewUsecase(order.Config{
		Workers:         cfg.SubmitWorkers,
		QueueSize:       cfg.SubmitQueueSize,
		Timeout:         cfg.SubmitTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Metrics:         metrics,
	}, broker, events)
	if err != nil {
		log.Fatalf("submission init failed: %v", err)
	}

	var engineJournal core.Journal
	if journal != nil {
		engineJournal = journal
	}
	engine, err := core.NewEngine(core.ConfigFrom(cfg, metrics, engineJournal), newLogStrategy(), events, submissions)
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}
	if err := engine.Seed(seed); err != nil {
		log.Fatalf("engine seed failed: %v", err)
	}

	engineCtx, stopEngine := context.WithCancel(ctx)
	defer stopEngine()
	var engineWG conc.WaitGroup
	engineWG.Go(func() {
		if err := engine.Run(engineCtx); err != nil {
			logs.Errorf("engine stopped, err: %+v", err)
		}
	})

	submitCtx, stopSubmissions := context.WithCancel(ctx)
	defer stopSubmissions()
	var submitWG conc.WaitGroup
	submitWG.Go(func() {
		if err := submissions.Run(submitCtx); err != nil {
			logs.Errorf("submission workers stopped, err: %+v", err)
		}
	})

	stream, err := ingest.Connect(ctx, ingest.ConfigFrom(cfg, creds, metrics), events)
	if err != nil {
		log.Fatalf("stream connect failed: %v", err)
	}

	probeCtx, stopProbe := context.WithCancel(ctx)
	defer stopProbe()
	var probeWG conc.WaitGroup
	if cfg.ProbeAddr != "" {
		server, err := probe.NewServer(engine, stream, metrics)
		if err != nil {
			log.Fatalf("probe init failed: %v", err)
		}
		probeWG.Go(func() {
			if err := server.Run(probeCtx, cfg.ProbeAddr); err != nil {
				logs.Errorf("probe stopped, err: %+v", err)
			}
		})
	}

	streamDone := make(chan error, 1)
	go func() {
		streamDone <- stream.Wait()
	}()

	logs.Infof("trader running, symbols: %v", cfg.Symbols())
	select {
	case <-sys.Shutdown():
		logs.Info("shutdown signal received")
	case err := <-streamDone:
		logs.Errorf("stream stopped, err: %+v", err)
	}

	stopProbe()
	probeWG.Wait()

	stream.Close()
	_ = stream.Wait()

	stopSubmissions()
	submitWG.Wait()

	events.Close()
	select {
	case <-engine.Stopped():
	case <-time.After(cfg.ShutdownTimeout):
		logs.Errorf("engine did not drain the bus within %s, stopping it", cfg.ShutdownTimeout)
		stopEngine()
	}
	engineWG.Wait()

	if cfg.CheckpointPath != "" {
		positions, err := engine.Positions(ctx)
		if err != nil {
			logs.Errorf("read positions for checkpoint failed, err: %+v", err)
		} else if err := state.WriteSnapshot(cfg.CheckpointPath, state.NewSnapshot(positions, time.Now())); err != nil {
			logs.Errorf("write checkpoint %s failed, err: %+v", cfg.CheckpointPath, err)
		} else {
			logs.Infof("checkpoint written to %s with %d positions", cfg.CheckpointPath, len(positions))
		}
	}

	stopJournal()
	journalWG.Wait()
	if journal != nil && journal.Dropped() > 0 {
		logs.Errorf("journal dropped %d entries", journal.Dropped())
	}
	logs.Info("trader stopped")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
