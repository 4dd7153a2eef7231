package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/mazelink/internal/groutine"
	"github.com/srg/mazelink/internal/livefeed"
)

// feedServer serves the live feed hub over HTTP.
type feedServer struct {
	hub    *livefeed.Hub
	server *http.Server
	addr   net.Addr
	done   <-chan struct{}
}

// startFeed listens on listen and serves hub at path until Close.
func startFeed(ctx context.Context, listen, path string, hub *livefeed.Hub, logger *logrus.Logger) (*feedServer, error) {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(path, hub)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	f := &feedServer{hub: hub, server: srv, addr: ln.Addr()}

	f.done = groutine.Start(ctx, "livefeed-server", func(ctx context.Context) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Live feed server stopped")
		}
	})

	logger.WithFields(logrus.Fields{
		"addr": f.addr.String(),
		"path": path,
	}).Info("Live feed listening")
	return f, nil
}

// Close disconnects dashboards and stops the server.
func (f *feedServer) Close() error {
	f.hub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := f.server.Shutdown(ctx)
	<-f.done
	return err
}
