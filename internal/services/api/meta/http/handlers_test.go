package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	phttp "adperf/internal/platform/net/http"

	"github.com/go-chi/chi/v5"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func get(t *testing.T, d Deps, path string, wantStatus int, into any) {
	t.Helper()
	mux := chi.NewRouter()
	Register(phttp.AdaptChi(mux), d)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code != wantStatus {
		t.Fatalf("%s: status %d, want %d body=%s", path, rec.Code, wantStatus, rec.Body.String())
	}
	env := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal(env.Data, into); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestReady(t *testing.T) {
	down := pinger{err: errors.New("dial tcp: refused")}
	cases := []struct {
		name   string
		pg, ch any
		status int
		want   string
	}{
		{"all ok", pinger{}, pinger{}, http.StatusOK, "ok"},
		{"ledger off", nil, pinger{}, http.StatusOK, "ok"},
		{"ledger down", down, pinger{}, http.StatusOK, "degraded"},
		{"unknown seam", struct{}{}, pinger{}, http.StatusOK, "degraded"},
		{"clickhouse down", pinger{}, down, http.StatusServiceUnavailable, "fail"},
		{"clickhouse missing", pinger{}, nil, http.StatusServiceUnavailable, "fail"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got ReadyResponse
			get(t, Deps{ServiceName: "adperf-api", PG: tc.pg, CH: tc.ch}, "/ready", tc.status, &got)
			if got.Status != tc.want || len(got.Checks) != 2 || got.Checks[0].Name != "clickhouse" {
				t.Fatalf("ready = %+v, want %s", got, tc.want)
			}
		})
	}
}

func TestReady_ReportsPingError(t *testing.T) {
	var got ReadyResponse
	get(t, Deps{CH: pinger{err: errors.New("auth failed")}}, "/ready", http.StatusServiceUnavailable, &got)
	if got.Checks[0].Error != "auth failed" || got.Checks[1].Status != "skipped" {
		t.Fatalf("checks = %+v", got.Checks)
	}
}

func TestHealthVersionService(t *testing.T) {
	d := Deps{ServiceName: "adperf-api", StartedAt: time.Now().Add(-time.Minute)}

	var hr HealthResponse
	get(t, d, "/health", http.StatusOK, &hr)
	if !hr.OK || hr.Service != "adperf-api" {
		t.Fatalf("health = %+v", hr)
	}

	var v struct {
		Service string `json:"service"`
		Version string `json:"version"`
	}
	get(t, d, "/version", http.StatusOK, &v)
	if v.Service != "adperf-api" || v.Version == "" {
		t.Fatalf("version = %+v", v)
	}

	var s ServiceResponse
	get(t, d, "/service", http.StatusOK, &s)
	if s.Name != "adperf-api" || s.Uptime < 59 {
		t.Fatalf("service = %+v", s)
	}
}
