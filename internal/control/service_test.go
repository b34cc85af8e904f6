package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vietddude/triage/internal/classification/engine"
	"github.com/vietddude/triage/internal/core/config"
	"github.com/vietddude/triage/internal/core/domain"
)

func newMemoryService(t *testing.T) *Service {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Server.GRPCPort = 0
	cfg.Database.URL = ""
	cfg.Redis.URL = ""

	s, err := NewService(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestNewService_MemoryFallback(t *testing.T) {
	s := newMemoryService(t)

	assert.True(t, s.Ephemeral())
	assert.Nil(t, s.db)
	assert.Nil(t, s.redisClient)
	assert.Nil(t, s.grpcServer)
	assert.NotNil(t, s.Engine())
}

func TestService_ClassifyFeedsHealth(t *testing.T) {
	s := newMemoryService(t)
	ctx := context.Background()

	sr := tracetest.NewSpanRecorder()
	s.tracer.RegisterSpanProcessor(sr)

	require.NoError(t, s.PutSession(ctx, &domain.Session{ID: "s1", SubjectID: "emp-1"}))
	res, err := s.Engine().Classify(ctx, engine.Request{
		SessionID: "s1",
		Snapshot: &domain.Snapshot{
			SLA: []domain.SLATimer{{Stage: "review", Status: domain.SLABreached, ElapsedMinutes: 90, TargetMinutes: 60}},
		},
	})
	require.NoError(t, err)
	assert.True(t, res.EscalationRequired)

	report := s.healthMon.CheckHealth(ctx)
	assert.Equal(t, 1, report.Classifications)
	assert.InDelta(t, 1.0, report.EscalationRatio, 1e-9)
	assert.Contains(t, report.Components, "memory")

	rec := httptest.NewRecorder()
	s.healthServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.healthServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/audit", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var events []domain.AuditEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, res.ID, events[0].ClassificationID)

	var names []string
	for _, span := range sr.Ended() {
		names = append(names, span.Name())
	}
	assert.Contains(t, names, "classify")
	assert.Contains(t, names, "classify.detect")
}

func TestService_RunStopsOnCancel(t *testing.T) {
	s := newMemoryService(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
