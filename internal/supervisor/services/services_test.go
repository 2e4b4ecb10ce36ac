// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

type fakeHTTPServer struct {
	started  chan struct{}
	release  chan struct{}
	shutdown bool
	serveErr error
}

func newFakeHTTPServer() *fakeHTTPServer {
	return &fakeHTTPServer{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (f *fakeHTTPServer) ListenAndServe() error {
	close(f.started)
	if f.serveErr != nil {
		return f.serveErr
	}
	<-f.release
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	f.shutdown = true
	close(f.release)
	return nil
}

func TestHTTPServerServiceGracefulShutdown(t *testing.T) {
	srv := newFakeHTTPServer()
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-srv.started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
	if !srv.shutdown {
		t.Error("server was not shut down")
	}
}

func TestHTTPServerServiceStartupFailure(t *testing.T) {
	srv := newFakeHTTPServer()
	srv.serveErr = errors.New("bind: address already in use")
	svc := NewHTTPServerService(srv, time.Second)

	err := svc.Serve(context.Background())
	if err == nil {
		t.Fatal("Serve() = nil, want startup error")
	}
}

type fakeRunner struct {
	err error
}

func (f *fakeRunner) Run(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestConsumerServicePassesThroughCancellation(t *testing.T) {
	svc := NewConsumerService("actions-consumer", &fakeRunner{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
}

func TestConsumerServiceReportsFailure(t *testing.T) {
	svc := NewConsumerService("actions-consumer", &fakeRunner{err: errors.New("stream gone")})

	if err := svc.Serve(context.Background()); err == nil {
		t.Error("Serve() = nil, want failure to trigger restart")
	}
}

type fakeBroker struct {
	running  bool
	shutdown bool
}

func (f *fakeBroker) IsRunning() bool { return f.running }
func (f *fakeBroker) Shutdown(context.Context) error {
	f.shutdown = true
	return nil
}

func TestNATSServiceShutsBrokerDownOnCancel(t *testing.T) {
	broker := &fakeBroker{running: true}
	svc := NewNATSService(broker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	if !broker.shutdown {
		t.Error("broker was not shut down")
	}
}

func TestNATSServiceDetectsDeadBroker(t *testing.T) {
	broker := &fakeBroker{running: false}
	svc := NewNATSService(broker)
	svc.checkInterval = 10 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- svc.Serve(context.Background()) }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Serve() = nil, want dead-broker error")
		}
	case <-time.After(time.Second):
		t.Fatal("Serve() did not detect dead broker")
	}
}
