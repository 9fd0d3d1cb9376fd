package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/veloramarket/velora-chat/internal/auth"
	"github.com/veloramarket/velora-chat/internal/config"
	"github.com/veloramarket/velora-chat/internal/core"
	logpkg "github.com/veloramarket/velora-chat/internal/log"
	"github.com/veloramarket/velora-chat/internal/store"
	"github.com/veloramarket/velora-chat/internal/store/sqlite"
)

const testSecret = "test-secret-change-me"

type testEnv struct {
	ts     *httptest.Server
	store  store.Store
	jwtCfg *auth.JWTConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := logpkg.Nop()
	hub := core.NewHub(st, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	cfg := &config.ServerConfig{
		Addr:              ":0",
		JWTSecret:         testSecret,
		JWTIssuer:         "test",
		JWTAudience:       "test",
		ReadHeaderTimeout: time.Second,
		HistoryPageSize:   50,
	}

	server := NewServer(hub, st, cfg, logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{
		ts:    ts,
		store: st,
		jwtCfg: &auth.JWTConfig{
			Secret:   []byte(testSecret),
			Issuer:   "test",
			Audience: "test",
		},
	}
}

func (e *testEnv) token(t *testing.T, userID, name string) string {
	t.Helper()

	token, err := auth.SignToken(e.jwtCfg, userID, name)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (e *testEnv) seedUser(t *testing.T, id, name string, roles ...string) {
	t.Helper()

	if err := e.store.UpsertUser(context.Background(), &store.User{ID: id, Name: name, Roles: roles}); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}
