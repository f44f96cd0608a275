// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bureau-foundation/mirror/lib/testutil"
)

func TestServer_ServeAndShutdown(t *testing.T) {
	server := NewServer(ServerConfig{
		Address: "127.0.0.1:0",
		Handler: http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(writer, "ok")
		}),
		Logger: testLogger(),
	})
	if server.Port() != 0 {
		t.Errorf("Port before Serve = %d", server.Port())
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- server.Serve(ctx) }()

	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "server ready")
	if server.Port() == 0 {
		t.Fatal("Port is 0 after Ready")
	}

	response, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/", server.Port()))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Errorf("status = %d", response.StatusCode)
	}

	cancel()
	if err := testutil.RequireReceive(t, served, 15*time.Second, "Serve returning"); err != nil {
		t.Errorf("Serve = %v", err)
	}
}

func TestServer_BindFailure(t *testing.T) {
	server := NewServer(ServerConfig{Address: "127.0.0.1:99999", Handler: http.NotFoundHandler(), Logger: testLogger()})
	if err := server.Serve(context.Background()); err == nil {
		t.Error("Serve on an invalid address succeeded")
	}
}
