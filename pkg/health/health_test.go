package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRunAggregatesWorstStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
	}{
		{"all up", map[string]Check{
			"db": PingCheck(func(context.Context) error { return nil }, StatusDown),
		}, StatusUp},
		{"degraded", map[string]Check{
			"db":    PingCheck(func(context.Context) error { return nil }, StatusDown),
			"redis": PingCheck(func(context.Context) error { return errors.New("refused") }, StatusDegraded),
		}, StatusDegraded},
		{"down wins", map[string]Check{
			"db":    PingCheck(func(context.Context) error { return errors.New("refused") }, StatusDown),
			"redis": PingCheck(func(context.Context) error { return errors.New("refused") }, StatusDegraded),
		}, StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, check := range tt.checks {
				c.Register(name, check)
			}
			report := c.Run(context.Background())
			if report.Status != tt.want {
				t.Errorf("Status = %s, want %s", report.Status, tt.want)
			}
			if len(report.Components) != len(tt.checks) {
				t.Errorf("components = %d, want %d", len(report.Components), len(tt.checks))
			}
		})
	}
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("cache", PingCheck(func(context.Context) error { return errors.New("refused") }, StatusDegraded))

	rec := httptest.NewRecorder()
	c.ReadyHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("degraded ready status = %d, want 200", rec.Code)
	}

	c.Register("db", PingCheck(func(context.Context) error { return errors.New("refused") }, StatusDown))
	rec = httptest.NewRecorder()
	c.ReadyHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("down ready status = %d, want 503", rec.Code)
	}
}
