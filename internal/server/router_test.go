package server

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/tree-store/tree-store/internal/treecache"
	"github.com/tree-store/tree-store/internal/treesync"
)

func TestNewAppValidatesOptions(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	syncer := newTestSync(t, logger)

	cases := []struct {
		name string
		opts AppOptions
	}{
		{"missing logger", AppOptions{Sync: syncer, ListenPort: 5630}},
		{"missing synchronizer", AppOptions{Logger: logger, ListenPort: 5630}},
		{"invalid port", AppOptions{Logger: logger, Sync: syncer, ListenPort: 0}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewApp(tc.opts); err == nil {
				t.Fatalf("expected option validation error")
			}
		})
	}
}

func TestRequestIDAssignedPerRequest(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app, err := NewApp(AppOptions{
		Logger:     logger,
		Sync:       newTestSync(t, logger),
		ListenPort: 5630,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	var seen string
	app.Get("/probe", func(c fiber.Ctx) error {
		seen = RequestID(c)
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/probe", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" || reqID != seen {
		t.Fatalf("request id mismatch: header=%q locals=%q", reqID, seen)
	}
}

func newTestSync(t *testing.T, logger *logrus.Logger) *treesync.Synchronizer {
	t.Helper()
	s, err := treesync.New(treesync.Options{
		RootPath: t.TempDir(),
		Cache:    treecache.Options{},
	}, logger)
	if err != nil {
		t.Fatalf("failed to create synchronizer: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.WaitReady(ctx); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	return s
}
