// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"vizboard/server/comms"
	"vizboard/server/metrics"
	"vizboard/server/semantic"
	"vizboard/server/session"
	"vizboard/server/snapshots"
	"vizboard/server/store"
	"vizboard/server/util/signals"
	"vizboard/server/web"
	"vizboard/server/web/handler"
)

const (
	STORE_SQLITE = "sqlite"
	STORE_REMOTE = "remote"
)

type Config struct {
	Address         string
	SqlitePath      string
	Store           string
	SemanticURL     string
	SemanticToken   string
	SemanticTimeout time.Duration
	SemanticRPS     float64
	SemanticBurst   int
	OrganizationID  string
	ProjectID       string
	SemanticModelID string
	PollInterval    time.Duration
	MaxPollFailures int
	PollParallelism int
	NatsHost        string
	NatsPort        int
	NatsToken       string
	NatsJSDir       string
	NatsJSKey       string
	NatsMaxStore    int64
	NatsDontListen  bool
	SubjectPrefix   string
	S3Bucket        string
	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	SnapshotTime    string
	RetainResults   int
	EnableSnapshots bool
	EnableRestore   bool
	JWTSecret       []byte
	TLSDomain       string
	TLSEmail        string
	TLSCacheDir     string
	HTTPSHost       string
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
}

func main() {
	config := loadConfig()
	signals.HandleInterrupt(config.ShutdownTimeout, Run(config))
}

func loadConfig() Config {
	flags := ff.NewFlagSet("vizboard")
	help := flags.Bool('h', "help", "show help")
	addr := flags.StringLong("addr", "localhost:5454", "server address")
	sqlitePath := flags.String('d', "sqlite", "vizboard.db", "path to the sqlite database (:memory: for a throwaway database)")
	storeKind := flags.StringLong("store", STORE_SQLITE, "where dashboards are kept: sqlite or remote")
	semanticURL := flags.StringLong("semantic-url", "", "base URL of the semantic query service (required)")
	semanticToken := flags.StringLong("semantic-token", "", "bearer token for the semantic query service")
	semanticTimeout := flags.DurationLong("semantic-timeout", 15*time.Second, "timeout for single requests to the semantic query service")
	semanticRPS := flags.StringLong("semantic-rps", "0", "max requests per second to the semantic query service (0 for unlimited)")
	semanticBurst := flags.IntLong("semantic-burst", 10, "request burst allowed above semantic-rps")
	organizationID := flags.StringLong("organization-id", "", "organization queries run in (required)")
	projectID := flags.StringLong("project-id", "", "project dashboards belong to")
	semanticModelID := flags.StringLong("semantic-model-id", "", "semantic model new dashboards start on")
	pollInterval := flags.DurationLong("poll-interval", session.DEFAULT_POLL_INTERVAL, "interval between job status polls")
	maxPollFailures := flags.IntLong("max-poll-failures", session.DEFAULT_MAX_POLL_FAILURES, "consecutive failed polls before a widget gives up on its job")
	pollParallelism := flags.IntLong("poll-parallelism", session.DEFAULT_POLL_PARALLELISM, "job polls running at once per session")
	natsHost := flags.StringLong("nats-host", "0.0.0.0", "NATS server host")
	natsPort := flags.IntLong("nats-port", 4222, "NATS server port")
	natsToken := flags.StringLong("nats-token", "", "NATS authentication token")
	natsJSDir := flags.String('n', "nats-dir", "", "JetStream storage directory (default: temp dir)")
	natsJSKey := flags.StringLong("nats-js-key", "", "JetStream encryption key")
	natsMaxStore := flags.StringLong("nats-max-store", "0", "Maximum storage in bytes (0 for unlimited)")
	natsDontListen := flags.BoolLong("nats-dont-listen", "Disable NATS from listening on any port")
	subjectPrefix := flags.StringLong("subject-prefix", "vizboard.", "prefix for all NATS subjects")
	s3Bucket := flags.StringLong("s3-bucket", "", "S3 bucket for snapshots and results archive")
	s3Endpoint := flags.StringLong("s3-endpoint", "", "S3 endpoint")
	s3Region := flags.StringLong("s3-region", "", "S3 region")
	s3AccessKey := flags.StringLong("s3-access-key", "", "S3 access key (default: credential chain)")
	s3SecretKey := flags.StringLong("s3-secret-key", "", "S3 secret key (default: credential chain)")
	snapshotTime := flags.StringLong("snapshot-time", "01:00", "time of day to snapshot the database (HH:MM)")
	retainResults := flags.IntLong("retain-results", snapshots.DEFAULT_RETAIN_RESULTS, "archived results snapshots kept per dashboard")
	noSnapshots := flags.BoolLong("no-snapshots", "disable daily database snapshots")
	noRestore := flags.BoolLong("no-restore", "disable restoring the database from the latest snapshot")
	jwtSecret := flags.StringLong("jwtsecret", "", "JWT secret to verify API tokens (default: no auth)")
	tlsDomain := flags.StringLong("tls-domain", "", "domain name for automatic TLS via letsencrypt")
	tlsEmail := flags.StringLong("tls-email", "", "email for letsencrypt notifications")
	tlsCacheDir := flags.StringLong("tls-cache-dir", "", "directory to cache TLS certificates")
	httpsHost := flags.StringLong("https-host", "", "host to bind the HTTPS server to")
	logLevel := flags.StringLong("log-level", "info", "log level: debug, info, warn or error")
	shutdownTimeout := flags.DurationLong("shutdown-timeout", signals.DEFAULT_SHUTDOWN_TIMEOUT, "time to wait for a graceful shutdown")

	err := ff.Parse(flags, os.Args[1:],
		ff.WithEnvVarPrefix("VIZBOARD"),
		ff.WithConfigFileParser(ff.PlainParser),
	)
	if err == nil && *semanticURL == "" {
		err = fmt.Errorf("--semantic-url must be set")
	}
	if err == nil && *organizationID == "" {
		err = fmt.Errorf("--organization-id must be set")
	}
	if err == nil && *storeKind != STORE_SQLITE && *storeKind != STORE_REMOTE {
		err = fmt.Errorf("--store must be %s or %s", STORE_SQLITE, STORE_REMOTE)
	}
	var level slog.Level
	if err == nil {
		if parseErr := level.UnmarshalText([]byte(*logLevel)); parseErr != nil {
			err = fmt.Errorf("invalid --log-level: %w", parseErr)
		}
	}
	var rps float64
	if err == nil {
		if rps, err = strconv.ParseFloat(*semanticRPS, 64); err != nil {
			err = fmt.Errorf("invalid value for semantic-rps: %w", err)
		}
	}
	var maxStore int64
	if err == nil {
		if maxStore, err = strconv.ParseInt(*natsMaxStore, 10, 64); err != nil {
			err = fmt.Errorf("invalid value for nats-max-store: %w", err)
		}
	}
	if err != nil {
		fmt.Printf("%s\n", ffhelp.Flags(flags))
		fmt.Printf("err=%v\n", err)
		os.Exit(1)
	}
	if *help {
		fmt.Printf("%s\n", ffhelp.Flags(flags))
		os.Exit(0)
	}

	return Config{
		Address:         *addr,
		SqlitePath:      *sqlitePath,
		Store:           *storeKind,
		SemanticURL:     *semanticURL,
		SemanticToken:   *semanticToken,
		SemanticTimeout: *semanticTimeout,
		SemanticRPS:     rps,
		SemanticBurst:   *semanticBurst,
		OrganizationID:  *organizationID,
		ProjectID:       *projectID,
		SemanticModelID: *semanticModelID,
		PollInterval:    *pollInterval,
		MaxPollFailures: *maxPollFailures,
		PollParallelism: *pollParallelism,
		NatsHost:        *natsHost,
		NatsPort:        *natsPort,
		NatsToken:       *natsToken,
		NatsJSDir:       *natsJSDir,
		NatsJSKey:       *natsJSKey,
		NatsMaxStore:    maxStore,
		NatsDontListen:  *natsDontListen,
		SubjectPrefix:   *subjectPrefix,
		S3Bucket:        *s3Bucket,
		S3Endpoint:      *s3Endpoint,
		S3Region:        *s3Region,
		S3AccessKey:     *s3AccessKey,
		S3SecretKey:     *s3SecretKey,
		SnapshotTime:    *snapshotTime,
		RetainResults:   *retainResults,
		EnableSnapshots: !*noSnapshots,
		EnableRestore:   !*noRestore,
		JWTSecret:       []byte(*jwtSecret),
		TLSDomain:       *tlsDomain,
		TLSEmail:        *tlsEmail,
		TLSCacheDir:     *tlsCacheDir,
		HTTPSHost:       *httpsHost,
		LogLevel:        level,
		ShutdownTimeout: *shutdownTimeout,
	}
}

func Run(config Config) func(context.Context) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: config.LogLevel}))
	slog.SetDefault(logger)

	snapshotConfig := snapshots.Config{
		Logger:          logger.WithGroup("snapshots"),
		S3Bucket:        config.S3Bucket,
		S3Region:        config.S3Region,
		S3Endpoint:      config.S3Endpoint,
		S3AccessKey:     config.S3AccessKey,
		S3SecretKey:     config.S3SecretKey,
		EnableSnapshots: config.EnableSnapshots,
		EnableRestore:   config.EnableRestore,
		Stream:          "vizboard-snapshots",
		ConsumerName:    "vizboard-snapshot-consumer",
		SubjectPrefix:   config.SubjectPrefix,
		ScheduledTime:   config.SnapshotTime,
		RetainResults:   config.RetainResults,
	}

	restoreCtx, cancelRestore := context.WithTimeout(context.Background(), 5*time.Minute)
	err := snapshots.RestoreLatestSnapshot(restoreCtx, config.SqlitePath, snapshotConfig)
	cancelRestore()
	if err != nil {
		panic(err)
	}

	db, err := store.Open(config.SqlitePath)
	if err != nil {
		panic(err)
	}
	logger.Info("Connected to sqlite", slog.String("path", config.SqlitePath))

	client := semantic.NewClient(semantic.Config{
		BaseURL: config.SemanticURL,
		Token:   config.SemanticToken,
		Timeout: config.SemanticTimeout,
		RPS:     config.SemanticRPS,
		Burst:   config.SemanticBurst,
		Logger:  logger.WithGroup("semantic"),
	})

	var dashboards session.DashboardStore = db
	var results snapshots.ResultsStore = db
	if config.Store == STORE_REMOTE {
		dashboards = client
		results = client
	}
	if snapshots.HasConfig(snapshotConfig) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		archive, err := snapshots.NewArchive(ctx, results, snapshotConfig)
		cancel()
		if err != nil {
			panic(err)
		}
		results = archive
	}

	c, err := comms.New(comms.Config{
		Logger:     logger.WithGroup("nats"),
		Host:       config.NatsHost,
		Port:       config.NatsPort,
		Token:      config.NatsToken,
		JSDir:      config.NatsJSDir,
		JSKey:      config.NatsJSKey,
		MaxStore:   config.NatsMaxStore,
		DontListen: config.NatsDontListen,
	})
	if err != nil {
		panic(err)
	}
	events := comms.NewEventBus(c.Conn, config.SubjectPrefix)

	snapshotConfig.Sqlite = db.DB
	snapshotConfig.Nats = c.Conn
	snapshotService, err := snapshots.Start(snapshotConfig)
	if err != nil {
		panic(err)
	}

	var projectID *string
	if config.ProjectID != "" {
		projectID = &config.ProjectID
	}
	sessions := session.NewManager(session.Config{
		Logger:          logger.WithGroup("session"),
		Jobs:            client,
		Copilot:         client,
		Dashboards:      dashboards,
		Snapshots:       results,
		Events:          events,
		OrganizationID:  config.OrganizationID,
		ProjectID:       projectID,
		SemanticModelID: config.SemanticModelID,
		PollInterval:    config.PollInterval,
		MaxPollFailures: config.MaxPollFailures,
		PollParallelism: config.PollParallelism,
	})

	if err := metrics.Register(sessions, nil); err != nil {
		panic(err)
	}

	e, redirectServer := web.Start(web.Config{
		Name:        "vizboard",
		Addr:        config.Address,
		JWTSecret:   config.JWTSecret,
		TLSDomain:   config.TLSDomain,
		TLSEmail:    config.TLSEmail,
		TLSCacheDir: config.TLSCacheDir,
		HTTPSHost:   config.HTTPSHost,
	}, &handler.App{
		Logger:   logger,
		Sessions: sessions,
		Events:   events,

		LoginRequired: len(config.JWTSecret) > 0,
	})

	return func(ctx context.Context) {
		logger.Info("Initiating shutdown...")
		logger.Info("Stopping web server...")
		if err := e.Shutdown(ctx); err != nil {
			logger.ErrorContext(ctx, "Error stopping server", slog.Any("error", err))
		}
		if redirectServer != nil {
			if err := redirectServer.Shutdown(ctx); err != nil && err != http.ErrServerClosed {
				logger.ErrorContext(ctx, "Error stopping HTTP redirect server", slog.Any("error", err))
			}
		}
		logger.Info("Closing sessions...")
		sessions.CloseAll()
		snapshotService.Stop()
		logger.Info("Stopping NATS...")
		c.Close()
		logger.Info("Closing DB connections...")
		if err := db.Close(); err != nil {
			logger.ErrorContext(ctx, "Error closing database connection", slog.Any("error", err))
		}
	}
}
