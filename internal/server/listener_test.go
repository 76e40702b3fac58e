package server

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"
)

// freePort pre-allocates a listening port for tests. There is a small
// TOCTOU window but this is acceptable in test environments.
func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestNewListener(t *testing.T) {
	cfg := ListenerConfig{
		Address:        ":0",
		IdleTimeout:    5 * time.Minute,
		CommandTimeout: 1 * time.Minute,
		Logger:         slog.Default(),
	}

	l := NewListener(cfg)

	if l == nil {
		t.Fatal("expected listener, got nil")
	}
	if l.Address() != ":0" {
		t.Errorf("expected address :0, got %s", l.Address())
	}
}

func TestListenerStartStop(t *testing.T) {
	cfg := ListenerConfig{
		Address: "127.0.0.1:0",
		Logger:  slog.Default(),
	}

	l := NewListener(cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- l.Start(ctx)
	}()

	// Give the listener time to start
	time.Sleep(50 * time.Millisecond)

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop in time")
	}
}

func TestListenerWithHandler(t *testing.T) {
	handlerCalled := make(chan struct{})

	handler := func(ctx context.Context, conn *Connection) {
		select {
		case <-handlerCalled:
			// Already closed
		default:
			close(handlerCalled)
		}
	}

	addr := freePort(t)

	cfg := ListenerConfig{
		Address:        addr,
		IdleTimeout:    5 * time.Minute,
		CommandTimeout: 1 * time.Minute,
		Logger:         slog.Default(),
		Handler:        handler,
	}

	l := NewListener(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = l.Start(ctx)
	}()

	// Give the listener time to start
	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer func() { _ = conn.Close() }()

	select {
	case <-handlerCalled:
		// Success
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not called")
	}
}

func TestListenerHandlerWritesToClient(t *testing.T) {
	handler := func(ctx context.Context, conn *Connection) {
		if _, err := conn.Writer().WriteString("220 test ready\r\n"); err != nil {
			return
		}
		_ = conn.Flush()
	}

	addr := freePort(t)

	l := NewListener(ListenerConfig{
		Address: addr,
		Logger:  slog.Default(),
		Handler: handler,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = l.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("reading greeting: %v", err)
	}
	if line != "220 test ready\r\n" {
		t.Errorf("greeting = %q", line)
	}
}

func TestListenerClose(t *testing.T) {
	l := NewListener(ListenerConfig{
		Address: "127.0.0.1:0",
		Logger:  slog.Default(),
	})

	// Close before start should be safe
	if err := l.Close(); err != nil {
		t.Fatalf("close before start should not error: %v", err)
	}

	// Double close should be safe
	if err := l.Close(); err != nil {
		t.Fatalf("double close should not error: %v", err)
	}
}

func TestListenerStartOnBusyAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	defer func() { _ = ln.Close() }()

	l := NewListener(ListenerConfig{
		Address: ln.Addr().String(),
		Logger:  slog.Default(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := l.Start(ctx); err == nil {
		t.Error("expected error binding an address already in use")
	}
}
