// SPDX-License-Identifier: MPL-2.0

// Package snapshots backs up the local database to S3 on a daily schedule
// and archives dashboard results snapshots next to it.
package snapshots

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/nrednav/cuid2"
)

const (
	SNAPSHOT_SUBJECT            = "snapshot"
	SNAPSHOT_PREFIX             = "vizboard-snapshots/"
	SNAPSHOT_SQLITE_FILE_PREFIX = SNAPSHOT_PREFIX + "vizboard-sqlite-"
	RESULTS_PREFIX              = SNAPSHOT_PREFIX + "results/"
	TIMESTAMP_FORMAT            = "2006-01-02_15-04-05"
)

type Config struct {
	Logger          *slog.Logger
	Sqlite          *sqlx.DB
	Nats            *nats.Conn
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string // Optional - if empty, will use credential chain
	S3SecretKey     string // Optional - if empty, will use credential chain
	EnableSnapshots bool
	EnableRestore   bool
	Stream          string
	ConsumerName    string
	SubjectPrefix   string
	ScheduledTime   string // Format: "HH:MM"
	// RetainResults is how many archived results snapshots are kept per
	// dashboard.
	RetainResults int
}

type Service struct {
	config     Config
	store      objectStore
	js         jetstream.JetStream
	consumeCtx jetstream.ConsumeContext
	timer      *time.Timer
	enabled    bool
}

func HasConfig(config Config) bool {
	return config.S3Bucket != ""
}

// Start schedules daily database snapshots. The trigger goes through a
// JetStream work queue with one message per subject so only one instance
// runs a snapshot at a time.
func Start(config Config) (*Service, error) {
	s := &Service{
		config:  config,
		enabled: HasConfig(config) && config.EnableSnapshots,
	}
	if !s.enabled {
		config.Logger.Info("Snapshots disabled")
		return s, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, err := newBucket(ctx, config)
	if err != nil {
		return s, err
	}
	s.store = store

	js, err := jetstream.New(config.Nats)
	if err != nil {
		return s, fmt.Errorf("failed to create JetStream: %w", err)
	}
	s.js = js
	if err := s.setupStreamAndConsumer(ctx); err != nil {
		return s, fmt.Errorf("failed to setup stream and consumer: %w", err)
	}
	s.scheduleNext()
	return s, nil
}

func (s *Service) setupStreamAndConsumer(ctx context.Context) error {
	stream, err := s.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:                 s.config.Stream,
		Subjects:             []string{s.config.SubjectPrefix + SNAPSHOT_SUBJECT},
		Storage:              jetstream.MemoryStorage,
		DiscardNewPerSubject: true,
		Discard:              jetstream.DiscardNew,
		MaxMsgsPerSubject:    1,
		Retention:            jetstream.WorkQueuePolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create snapshot stream: %w", err)
	}
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable: s.config.ConsumerName,
	})
	if err != nil {
		return fmt.Errorf("failed to create snapshot consumer: %w", err)
	}
	consumeCtx, err := consumer.Consume(s.handleSnapshot, jetstream.PullMaxMessages(1))
	if err != nil {
		return fmt.Errorf("failed to consume snapshots: %w", err)
	}
	s.consumeCtx = consumeCtx
	return nil
}

func nextRunAfter(now time.Time, scheduled string) (time.Time, error) {
	at, err := time.Parse("15:04", scheduled)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid snapshot time %q: %w", scheduled, err)
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next, nil
}

func (s *Service) scheduleNext() {
	nextRun, err := nextRunAfter(time.Now(), s.config.ScheduledTime)
	if err != nil {
		s.config.Logger.Error("Invalid snapshot time format", slog.String("time", s.config.ScheduledTime), slog.Any("error", err))
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(time.Until(nextRun), func() {
		s.triggerSnapshot("snapshot-" + nextRun.Format(TIMESTAMP_FORMAT))
	})
	s.config.Logger.Info("Next snapshot scheduled", slog.Time("next_run", nextRun))
}

func (s *Service) triggerSnapshot(id string) {
	subject := s.config.SubjectPrefix + SNAPSHOT_SUBJECT
	s.config.Logger.Info("Triggering snapshot", slog.String("msg_id", id))
	_, err := s.js.Publish(context.Background(), subject, []byte{}, jetstream.WithMsgID(id))
	// A pending snapshot message rejects the duplicate with "maximum messages
	// per subject exceeded"
	if err != nil && !strings.Contains(err.Error(), "err_code=10077") {
		s.config.Logger.Error("Failed to publish snapshot message", slog.Any("error", err))
	}
	s.scheduleNext()
}

func (s *Service) handleSnapshot(msg jetstream.Msg) {
	startTime := time.Now()
	if err := msg.Ack(); err != nil {
		s.config.Logger.Error("Failed to ack snapshot message", slog.Any("error", err))
		return
	}
	s.config.Logger.Info("Processing snapshot")
	err := s.snapshotSQLite(context.Background(), startTime.Format(TIMESTAMP_FORMAT))
	duration := time.Since(startTime)
	metricSnapshotDuration.Observe(duration.Seconds())
	if err != nil {
		metricSnapshotCounter.WithLabelValues("failed").Inc()
		s.config.Logger.Error("Snapshot failed", slog.Duration("duration", duration), slog.Any("error", err))
		return
	}
	metricSnapshotCounter.WithLabelValues("success").Inc()
	s.config.Logger.Info("Snapshot completed successfully", slog.Duration("duration", duration))
}

func (s *Service) snapshotSQLite(ctx context.Context, timestamp string) error {
	tempFile := filepath.Join(os.TempDir(), fmt.Sprintf("vizboard-sqlite-%s-%s.db", timestamp, cuid2.Generate()))
	defer os.Remove(tempFile)
	if _, err := s.config.Sqlite.ExecContext(ctx, "VACUUM INTO ?", tempFile); err != nil {
		return fmt.Errorf("failed to create SQLite snapshot: %w", err)
	}
	key := fmt.Sprintf("%s%s.db", SNAPSHOT_SQLITE_FILE_PREFIX, timestamp)
	if err := s.store.PutFile(ctx, key, tempFile); err != nil {
		return err
	}
	s.config.Logger.Info("SQLite snapshot uploaded", slog.String("s3_key", key))
	return nil
}

func (s *Service) Stop() {
	if !s.enabled {
		return
	}
	s.config.Logger.Info("Stopping snapshots service")
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.consumeCtx != nil {
		s.consumeCtx.Drain()
		<-s.consumeCtx.Closed()
	}
	s.config.Logger.Info("Snapshots service stopped")
}

// latestKey returns the key with the newest timestamp suffix below prefix,
// or "" when there is none.
func latestKey(ctx context.Context, store objectStore, prefix string) (string, error) {
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return "", err
	}
	var latest string
	var latestTimestamp time.Time
	for _, key := range keys {
		timestamp := extractTimestampFromKey(key)
		if timestamp.IsZero() {
			continue
		}
		if latest == "" || timestamp.After(latestTimestamp) {
			latest = key
			latestTimestamp = timestamp
		}
	}
	return latest, nil
}

// extractTimestampFromKey parses the trailing YYYY-MM-DD_HH-MM-SS of a key
// like vizboard-sqlite-2006-01-02_15-04-05.db.
func extractTimestampFromKey(key string) time.Time {
	filename := filepath.Base(strings.TrimSuffix(key, "/"))
	if ext := filepath.Ext(filename); ext != "" {
		filename = strings.TrimSuffix(filename, ext)
	}
	parts := strings.Split(filename, "-")
	if len(parts) < 5 {
		return time.Time{}
	}
	timestamp, err := time.Parse(TIMESTAMP_FORMAT, strings.Join(parts[len(parts)-5:], "-"))
	if err != nil {
		return time.Time{}
	}
	return timestamp
}
