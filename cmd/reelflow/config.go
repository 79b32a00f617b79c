package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog"

	"github.com/sicko7947/reelflow"
	"github.com/sicko7947/reelflow/builder"
	"github.com/sicko7947/reelflow/store"
)

// Store backends
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StoreDynamoDB = "dynamodb"
)

// Config is the configuration shared by every command
type Config struct {
	LogLevel  string
	LogJSON   bool
	StoreType string

	FileDir    string
	SQLitePath string

	DynamoDBTable    string
	DynamoDBRegion   string
	DynamoDBEndpoint string

	ImageParallel     int
	AudioSpacing      time.Duration
	StubLatency       time.Duration
	StubFailureRate   float64
	PrimaryImagesDown bool
	TuningFile        string
}

func registerFlags(app *kingpin.Application) *Config {
	c := &Config{}
	app.Flag("log-level", "Log level.").Default("info").EnumVar(&c.LogLevel, "debug", "info", "warn", "error")
	app.Flag("log-json", "Log JSON instead of console output.").BoolVar(&c.LogJSON)
	app.Flag("store", "Checkpoint store backend.").Default(StoreFile).EnumVar(&c.StoreType, StoreMemory, StoreFile, StoreSQLite, StoreDynamoDB)
	app.Flag("file-dir", "Checkpoint directory for the file store.").Default("./data").StringVar(&c.FileDir)
	app.Flag("sqlite-path", "Database path for the sqlite store.").Default("./data/reelflow.db").StringVar(&c.SQLitePath)
	app.Flag("dynamodb-table", "Table for the dynamodb store.").Default("reelflow-checkpoints").StringVar(&c.DynamoDBTable)
	app.Flag("dynamodb-region", "AWS region for the dynamodb store.").StringVar(&c.DynamoDBRegion)
	app.Flag("dynamodb-endpoint", "Endpoint override (e.g. DynamoDB Local).").StringVar(&c.DynamoDBEndpoint)
	app.Flag("image-parallel", "Concurrent image generations per workflow.").Default("4").IntVar(&c.ImageParallel)
	app.Flag("audio-spacing", "Delay between audio generations.").Default("1500ms").DurationVar(&c.AudioSpacing)
	app.Flag("stub-latency", "Simulated provider latency.").Default("200ms").DurationVar(&c.StubLatency)
	app.Flag("stub-failure-rate", "Share of stub provider calls that fail retryably.").Default("0.1").Float64Var(&c.StubFailureRate)
	app.Flag("primary-images-down", "Take the primary image backend offline.").BoolVar(&c.PrimaryImagesDown)
	app.Flag("tuning-file", "YAML file with per-stage overrides.").StringVar(&c.TuningFile)
	return c
}

func newLogger(cfg *Config, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level: %w", err)
	}

	w := out
	if !cfg.LogJSON {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Str("version", Version).Logger().Level(level), nil
}

// loadTuning reads the optional per-stage overrides file
func loadTuning(cfg *Config) ([]builder.PipelineOption, error) {
	if cfg.TuningFile == "" {
		return nil, nil
	}
	dir, name := filepath.Split(cfg.TuningFile)
	if dir == "" {
		dir = "."
	}
	return builder.LoadTuning(os.DirFS(dir), name)
}

// newStore builds the configured backend. The returned close func is never nil.
func newStore(ctx context.Context, cfg *Config, logger zerolog.Logger) (reelflow.CheckpointStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StoreType {
	case StoreMemory:
		return store.NewMemoryStore(), noop, nil

	case StoreFile:
		s, err := store.NewFileStore(cfg.FileDir)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil

	case StoreSQLite:
		s, err := store.NewSQLiteStore(ctx, store.SQLiteConfig{DBPath: cfg.SQLitePath, Logger: &logger})
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil

	case StoreDynamoDB:
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.DynamoDBRegion != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.DynamoDBRegion))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.DynamoDBEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
			}
		})
		return store.NewDynamoDBStore(client, cfg.DynamoDBTable), noop, nil
	}

	return nil, noop, fmt.Errorf("unknown store %q", cfg.StoreType)
}
