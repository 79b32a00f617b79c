package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/rs/zerolog"

	"github.com/sicko7947/reelflow"
	"github.com/sicko7947/reelflow/api"
	"github.com/sicko7947/reelflow/engine"
	"github.com/sicko7947/reelflow/example/stubgen"
)

const (
	// Version is the application version (set via ldflags).
	Version = "dev"

	shutdownTimeout = 10 * time.Second
)

// Run runs the main application.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	app := kingpin.New("reelflow", "Resumable media pipeline engine.")
	app.DefaultEnvars()
	cfg := registerFlags(app)

	serveCmd := app.Command("serve", "Serve the HTTP API.")
	listen := serveCmd.Flag("listen", "HTTP listen address.").Default(":3000").String()

	runCmd := app.Command("run", "Create a workflow and run it to completion.")
	job := reelflow.JobSpec{}
	runCmd.Flag("title", "Video title.").StringVar(&job.Title)
	runCmd.Flag("topic", "Video topic.").Required().StringVar(&job.Topic)
	runCmd.Flag("scenes", "Number of scenes.").Default("6").IntVar(&job.SceneCount)
	runCmd.Flag("voice", "Voice id.").StringVar(&job.VoiceID)
	runCmd.Flag("style", "Visual style.").StringVar(&job.Style)

	resumeCmd := app.Command("resume", "Resume a workflow from its checkpoint.")
	resumeID := resumeCmd.Arg("workflow-id", "Workflow id.").Required().String()
	resumeReset := resumeCmd.Flag("reset", "Allow resuming a FAILED workflow.").Bool()

	statusCmd := app.Command("status", "Print the state of a workflow.")
	statusID := statusCmd.Arg("workflow-id", "Workflow id.").Required().String()

	listCmd := app.Command("list", "List workflows.")
	listStatus := listCmd.Flag("status", "Only workflows with this status.").Enum(
		string(reelflow.WorkflowStatusPending), string(reelflow.WorkflowStatusRunning),
		string(reelflow.WorkflowStatusPartiallyFailed), string(reelflow.WorkflowStatusFailed),
		string(reelflow.WorkflowStatusCompleted))
	listLimit := listCmd.Flag("limit", "Maximum number of workflows.").Default("50").Int()

	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	logger, err := newLogger(cfg, stderr)
	if err != nil {
		return err
	}

	checkpoints, closeStore, err := newStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error().Err(err).Msg("Failed to close checkpoint store")
		}
	}()

	tuning, err := loadTuning(cfg)
	if err != nil {
		return fmt.Errorf("failed to load tuning: %w", err)
	}

	pipeline, err := stubgen.NewPipeline(stubgen.PipelineConfig{
		Latency:           cfg.StubLatency,
		FailureRate:       cfg.StubFailureRate,
		ImageParallel:     cfg.ImageParallel,
		AudioSpacing:      cfg.AudioSpacing,
		PrimaryImagesDown: cfg.PrimaryImagesDown,
		Tuning:            tuning,
	})
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	// Background runs stop when baseCtx is cancelled; their workflows stay RUNNING
	baseCtx, cancelRuns := context.WithCancel(ctx)
	defer cancelRuns()

	eng, err := engine.NewEngine(checkpoints, pipeline,
		engine.WithLogger(logger),
		engine.WithBaseContext(baseCtx),
	)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				logger.Debug().Msg("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Execute command.
	switch cmdName {
	case serveCmd.FullCommand():
		server := api.NewServer(eng, logger, Version)
		g.Add(
			func() error {
				return server.Listen(*listen)
			},
			func(_ error) {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Error().Err(err).Msg("Server forced to shutdown")
				}
				cancelRuns()
				eng.Wait()
				logger.Info().Msg("Server stopped")
			},
		)

	default:
		cmdCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				var err error
				switch cmdName {
				case runCmd.FullCommand():
					err = runWorkflow(cmdCtx, eng, job, stdout)
				case resumeCmd.FullCommand():
					err = resumeWorkflow(cmdCtx, eng, *resumeID, *resumeReset, stdout)
				case statusCmd.FullCommand():
					err = printStatus(cmdCtx, eng, *statusID, stdout)
				case listCmd.FullCommand():
					err = listWorkflows(cmdCtx, eng, *listStatus, *listLimit, stdout)
				}
				if err != nil {
					return fmt.Errorf("%q command failed: %w", cmdName, err)
				}
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

func runWorkflow(ctx context.Context, eng *engine.Engine, job reelflow.JobSpec, out io.Writer) error {
	id, err := eng.Start(ctx, job)
	if id == "" {
		return err
	}
	if printErr := printStatus(context.WithoutCancel(ctx), eng, id, out); printErr != nil {
		return errors.Join(err, printErr)
	}
	return err
}

func resumeWorkflow(ctx context.Context, eng *engine.Engine, id string, reset bool, out io.Writer) error {
	var opts []engine.RunOption
	if reset {
		opts = append(opts, engine.WithReset())
	}
	err := eng.Resume(ctx, id, opts...)
	if errors.Is(err, reelflow.ErrNotFound) || errors.Is(err, reelflow.ErrWorkflowFailed) || errors.Is(err, reelflow.ErrCorrupt) {
		return err
	}
	if printErr := printStatus(context.WithoutCancel(ctx), eng, id, out); printErr != nil {
		return errors.Join(err, printErr)
	}
	return err
}

func printStatus(ctx context.Context, eng *engine.Engine, id string, out io.Writer) error {
	state, err := eng.Status(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(out, state)
}

func listWorkflows(ctx context.Context, eng *engine.Engine, status string, limit int, out io.Writer) error {
	filter := reelflow.ListFilter{Limit: limit}
	if status != "" {
		filter.Status = reelflow.ToPtr(reelflow.WorkflowStatus(status))
	}
	summaries, err := eng.List(ctx, filter)
	if err != nil {
		return err
	}
	return printJSON(out, summaries)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx := context.Background()
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if err := Run(ctx, os.Args, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
