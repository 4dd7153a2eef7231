package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/mazelink/internal/backend"
	"github.com/srg/mazelink/internal/outbox"
	"github.com/srg/mazelink/internal/summary"
	"github.com/srg/mazelink/pkg/config"
)

// resultSink queues game records locally and pushes them to the backend.
type resultSink struct {
	outbox *outbox.Outbox
	client *backend.Client
	logger *logrus.Logger
}

func newBackendClient(cfg *config.Config, logger *logrus.Logger) (*backend.Client, error) {
	return backend.NewClient(backend.Config{
		URL:      cfg.Backend.URL,
		Username: cfg.Backend.Username,
		Password: cfg.Backend.Password,
		Timeout:  cfg.Backend.Timeout,
	}, logger)
}

func openResultSink(cfg *config.Config, logger *logrus.Logger) (*resultSink, error) {
	client, err := newBackendClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	path, err := cfg.OutboxPath()
	if err != nil {
		return nil, err
	}
	box, err := outbox.Open(path, logger)
	if err != nil {
		return nil, err
	}
	return &resultSink{outbox: box, client: client, logger: logger}, nil
}

func (s *resultSink) Close() error {
	return s.outbox.Close()
}

// deliver queues rec and tries to flush the queue. Failing to reach the
// backend is not an error; the record waits for the next flush.
func (s *resultSink) deliver(ctx context.Context, rec summary.Record) {
	if _, err := s.outbox.Enqueue(ctx, rec); err != nil {
		s.logger.WithError(err).Warn("Dropping game record")
		return
	}
	if _, err := s.flush(ctx); err != nil {
		s.logger.WithError(err).Info("Game record queued for later delivery")
	}
}

func (s *resultSink) flush(ctx context.Context) (outbox.FlushResult, error) {
	res, err := s.outbox.Flush(ctx, s.client)
	if err != nil && !errors.Is(err, context.Canceled) {
		return res, fmt.Errorf("backend unavailable, %d record(s) still queued: %w", res.Remaining, err)
	}
	return res, err
}
