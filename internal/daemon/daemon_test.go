// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/inductd/internal/config"
)

func reserveListenAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func waitForListen(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			require.NoError(t, conn.Close())
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server on %s did not start listening", addr)
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(config.OpsConfig{}, nil)
	require.ErrorIs(t, err, ErrMissingHandler)

	mgr, err := NewManager(config.OpsConfig{}, http.NotFoundHandler())
	require.NoError(t, err)
	m := mgr.(*manager)
	require.Equal(t, ":8080", m.ops.Listen)
	require.Equal(t, 10*time.Second, m.ops.ReadTimeout)
	require.Equal(t, 30*time.Second, m.ops.WriteTimeout)
}

func TestManagerServesUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	addr := reserveListenAddr(t)
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mgr, err := NewManager(config.OpsConfig{Listen: addr}, handler)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- mgr.Start(ctx) }()
	waitForListen(t, addr)

	tr := &http.Transport{DisableKeepAlives: true}
	defer tr.CloseIdleConnections()
	client := &http.Client{Transport: tr, Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
}

func TestShutdownHooksRunInReverseOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	addr := reserveListenAddr(t)
	mgr, err := NewManager(config.OpsConfig{Listen: addr}, http.NotFoundHandler())
	require.NoError(t, err)

	var order []string
	for _, name := range []string{"stores", "bus", "telemetry"} {
		name := name
		mgr.RegisterShutdownHook(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- mgr.Start(ctx) }()
	waitForListen(t, addr)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return")
	}
	require.Equal(t, []string{"telemetry", "bus", "stores"}, order)
}

func TestShutdownAggregatesHookFailures(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	addr := reserveListenAddr(t)
	mgr, err := NewManager(config.OpsConfig{Listen: addr}, http.NotFoundHandler())
	require.NoError(t, err)

	ran := false
	mgr.RegisterShutdownHook("first", func(context.Context) error {
		ran = true
		return nil
	})
	mgr.RegisterShutdownHook("bad", func(context.Context) error {
		return errors.New("badger close failed")
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- mgr.Start(ctx) }()
	waitForListen(t, addr)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorContains(t, err, "hook bad")
		require.ErrorContains(t, err, "badger close failed")
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return")
	}
	require.True(t, ran, "a failing hook must not stop later hooks")
}

func TestShutdownLifecycleGuards(t *testing.T) {
	mgr, err := NewManager(config.OpsConfig{Listen: reserveListenAddr(t)}, http.NotFoundHandler())
	require.NoError(t, err)

	require.ErrorIs(t, mgr.Shutdown(context.Background()), ErrManagerNotStarted)
}

func TestAppRunRequiresManager(t *testing.T) {
	app := NewApp(nil, nil, nil, nil, nil)
	require.ErrorIs(t, app.Run(context.Background()), ErrMissingManager)
}

func TestAppRunStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	addr := reserveListenAddr(t)
	mgr, err := NewManager(config.OpsConfig{Listen: addr}, http.NotFoundHandler())
	require.NoError(t, err)
	app := NewApp(mgr, nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(ctx) }()
	waitForListen(t, addr)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
