package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hostelops/warden/pkg/database"
)

// Pinger is the reachability check a dependency must expose. Redis is
// optional, so a nil Pinger skips that check entirely.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Checker struct {
	db        database.DB
	redis     Pinger
	version   string
	startTime time.Time
	ready     atomic.Bool
}

func NewChecker(db database.DB, redis Pinger, version string) *Checker {
	return &Checker{
		db:        db,
		redis:     redis,
		version:   version,
		startTime: time.Now(),
	}
}

// SetReady flips the readiness probe. Set after startup completes and
// cleared at the start of shutdown so load balancers drain traffic.
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/health", c.Health)
	e.GET("/api/v1/health/live", c.Live)
	e.GET("/api/v1/health/ready", c.Ready)
}

type Status struct {
	Status     string           `json:"status"`
	Version    string           `json:"version"`
	Uptime     string           `json:"uptime"`
	Checks     map[string]Check `json:"checks"`
	ReportedAt time.Time        `json:"reported_at"`
}

type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Health pings every configured dependency and reports 503 if any of
// them is unreachable.
func (c *Checker) Health(ec echo.Context) error {
	ctx := ec.Request().Context()

	status := Status{
		Status:     "healthy",
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     map[string]Check{},
		ReportedAt: time.Now().UTC(),
	}

	status.Checks["database"] = runCheck(func() error { return c.db.PingContext(ctx) })
	if c.redis != nil {
		status.Checks["redis"] = runCheck(func() error { return c.redis.Ping(ctx) })
	}

	code := http.StatusOK
	for _, check := range status.Checks {
		if check.Status != "healthy" {
			status.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}
	return ec.JSON(code, status)
}

func runCheck(ping func() error) Check {
	start := time.Now()
	if err := ping(); err != nil {
		return Check{Status: "unhealthy", Message: err.Error()}
	}
	return Check{Status: "healthy", Latency: time.Since(start).String()}
}

func (c *Checker) Live(ec echo.Context) error {
	return ec.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

func (c *Checker) Ready(ec echo.Context) error {
	if c.ready.Load() {
		return ec.JSON(http.StatusOK, map[string]string{"status": "ready"})
	}
	return ec.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
}
