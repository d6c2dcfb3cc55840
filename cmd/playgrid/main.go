package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/playgrid/server/internal/command"
	"github.com/playgrid/server/internal/config"
	"github.com/playgrid/server/internal/data"
	"github.com/playgrid/server/internal/event"
	"github.com/playgrid/server/internal/perform"
	"github.com/playgrid/server/internal/persist"
	"github.com/playgrid/server/internal/queue"
	"github.com/playgrid/server/internal/scripting"
	"github.com/playgrid/server/internal/transport"
	"github.com/playgrid/server/internal/transport/wire"
	"github.com/playgrid/server/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "config/playgrid.toml", "config file path")
	worldName := flag.String("world", "", "world file to run (overrides positional lookup)")
	scriptPath := flag.String("script", "", "learner script (overrides the world's script)")
	learner := flag.String("learner", "", "learner name for run attribution")
	narrate := flag.Bool("narrate", false, "attach the narration component")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		// A missing config falls back to defaults so local runs need no setup.
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		cfg = config.Default()
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	wpath := *worldName
	if wpath == "" {
		if flag.NArg() < 1 {
			return fmt.Errorf("usage: playgrid [-config path] <world.yaml>")
		}
		wpath = flag.Arg(0)
	}
	if !filepath.IsAbs(wpath) && filepath.Dir(wpath) == "." {
		wpath = filepath.Join(cfg.Worlds.Dir, wpath)
	}

	def, err := data.LoadWorld(wpath)
	if err != nil {
		return fmt.Errorf("world: %w", err)
	}
	log.Info("world loaded", zap.String("world", def.Name), zap.String("file", wpath))

	ctx := context.Background()

	// Persistence is optional; headless local runs skip it entirely.
	var runRepo *persist.RunRepo
	var learnerRepo *persist.LearnerRepo
	if cfg.Database.Enabled {
		dbCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		db, err := persist.NewDB(dbCtx, cfg.Database, log)
		cancel()
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		runRepo = persist.NewRunRepo(db)
		learnerRepo = persist.NewLearnerRepo(db)
		log.Info("database ready")
	}

	// Attribution is best-effort: an unknown learner name stores the run
	// unattributed rather than failing it.
	if *learner != "" && learnerRepo != nil {
		row, err := learnerRepo.Load(ctx, *learner)
		if err != nil {
			return fmt.Errorf("load learner: %w", err)
		}
		if row == nil {
			log.Warn("unknown learner, run will be unattributed", zap.String("learner", *learner))
			*learner = ""
		} else if err := learnerRepo.Touch(ctx, row.Name); err != nil {
			log.Warn("touch learner", zap.Error(err))
		}
	}

	bus := event.NewBus()
	w := world.New(def, log, bus)

	// Flow control: the viewer transport is the consumer when attached;
	// otherwise the recorder acknowledges each flush so the producer is
	// never suspended against a consumer that does not exist.
	recorder := &batchRecorder{}
	var viewer *transport.Server
	high := cfg.Playback.HighWatermark
	ctrl := queue.NewController(high, cfg.Playback.LowWatermark(), cfg.Playback.ReadyTimeout.Std(), recorder, log)
	if cfg.Transport.Enabled {
		viewer = transport.NewServer(cfg.Transport, ctrl, log)
		if err := viewer.Start(); err != nil {
			return fmt.Errorf("viewer transport: %w", err)
		}
		defer viewer.Shutdown(ctx)
	}
	recorder.viewer = viewer
	recorder.ctrl = ctrl
	w.Queue().SetOverflow(ctrl)

	if err := w.FinalizeWorldBuilding(); err != nil {
		return err
	}

	ch := w.Character()
	w.AttachComponent(ch, perform.SlotAnimation, perform.NewStepAnimation(cfg.Playback.StepDuration.Std()))
	w.AttachComponent(ch, perform.SlotSound, perform.NewSoundCue(logCues{log}))
	if *narrate {
		w.AttachComponent(ch, perform.SlotNarration, perform.NewNarrator(log))
	}

	finished := make(chan event.PlaybackFinished, 1)
	event.Subscribe(bus, func(ev event.PlaybackFinished) {
		finished <- ev
	})

	// Run the learner script: the model advances immediately, the log fills.
	producer := scripting.NewProducer(w, ctrl)
	engine := scripting.NewEngine(w, producer, log)
	defer engine.Close()

	script := *scriptPath
	if script == "" {
		script = filepath.Join(cfg.Scripts.Dir, def.Script)
	}
	if err := engine.RunFile(script); err != nil {
		// A failed script still plays back what it produced; the failure is
		// part of the log and of the assessment.
		log.Warn("script ended with error", zap.Error(err))
	}

	if err := w.PrepareForReplay(); err != nil {
		return err
	}
	if err := w.StartPlayback(cfg.Playback.SettleDelay.Std()); err != nil {
		return err
	}

	ev := <-finished
	result := w.Assess()

	if viewer != nil {
		viewer.SendFinished(wire.Finish{
			Passed:            result.Passed,
			CriteriaElsewhere: !result.Evaluated,
			Gems:              w.Criteria().Gems,
			Switches:          w.Criteria().Switches,
		})
	}

	if runRepo != nil {
		if err := persistRun(ctx, runRepo, *learner, ev, result, recorder, w); err != nil {
			log.Error("persist run", zap.Error(err))
		}
	}

	if result.Evaluated {
		log.Info("run assessed",
			zap.Bool("passed", result.Passed),
			zap.Int("gems", result.GemsCollected),
			zap.Int("switches", result.SwitchesOpen))
	}
	return nil
}

// persistRun stores the outcome plus the full command log: the batches the
// overflow controller flushed mid-run followed by the final queue contents.
func persistRun(ctx context.Context, repo *persist.RunRepo, learner string, ev event.PlaybackFinished, result world.Result, rec *batchRecorder, w *world.World) error {
	row := &persist.RunRow{
		LearnerName:   learner,
		WorldName:     ev.WorldName,
		Passed:        result.Passed,
		Evaluated:     result.Evaluated,
		GemsCollected: result.GemsCollected,
		SwitchesOpen:  result.SwitchesOpen,
		CommandCount:  ev.Commands,
		Duration:      ev.Duration,
	}
	id, err := repo.Insert(ctx, row)
	if err != nil {
		return err
	}
	seq := 0
	for _, batch := range rec.Batches() {
		if err := repo.InsertCommands(ctx, id, seq, batch); err != nil {
			return err
		}
		seq += len(batch)
	}
	if tail := w.Queue().Snapshot(); len(tail) > 0 {
		if err := repo.InsertCommands(ctx, id, seq, tail); err != nil {
			return err
		}
	}
	return nil
}

// batchRecorder keeps every flushed batch for persistence, forwards it to
// the attached viewer, and acknowledges the flush itself when no viewer is
// there to do so.
type batchRecorder struct {
	viewer  *transport.Server
	ctrl    *queue.Controller
	batches [][]command.Command
}

func (r *batchRecorder) FlushBatch(cmds []command.Command) {
	r.batches = append(r.batches, cmds)
	if r.viewer != nil && r.viewer.Current() != nil {
		r.viewer.FlushBatch(cmds)
		return
	}
	if r.ctrl != nil {
		r.ctrl.SignalReady()
	}
}

func (r *batchRecorder) Batches() [][]command.Command {
	return r.batches
}

// logCues is the headless audio backend: cue names go to the debug log.
type logCues struct {
	log *zap.Logger
}

func (l logCues) Play(cue string) {
	l.log.Debug("sound cue", zap.String("cue", cue))
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
