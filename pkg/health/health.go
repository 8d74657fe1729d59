package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"birthday-wall/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates a component is working correctly
	StatusUp Status = "up"
	// StatusDown indicates a component is not working
	StatusDown Status = "down"
	// StatusDegraded indicates a component works with reduced functionality
	StatusDegraded Status = "degraded"
)

// Component is the last observed state of a checked dependency
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Critical    bool      `json:"critical"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check probes one dependency
type Check func(ctx context.Context) (Status, string, error)

type registration struct {
	check    Check
	critical bool
}

// Checker runs registered checks periodically and caches their results
type Checker struct {
	mu          sync.RWMutex
	checks      map[string]registration
	components  map[string]*Component
	checkPeriod time.Duration
	timeout     time.Duration
	version     string
	log         *logger.Logger
	listeners   []func(healthy bool)
}

// NewChecker creates a health checker
func NewChecker(log *logger.Logger, checkPeriod time.Duration, version string) *Checker {
	c := &Checker{
		checks:      make(map[string]registration),
		components:  make(map[string]*Component),
		checkPeriod: checkPeriod,
		timeout:     5 * time.Second,
		version:     version,
		log:         log.WithComponent("health"),
	}
	c.Register("self", false, func(context.Context) (Status, string, error) {
		return StatusUp, "Health checker is running", nil
	})
	return c
}

// Register adds a check. A critical component that is down makes the
// whole system unhealthy.
func (c *Checker) Register(name string, critical bool, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.checks[name] = registration{check: check, critical: critical}
	c.components[name] = &Component{
		Name:        name,
		Status:      StatusDown,
		Critical:    critical,
		Description: "Not checked yet",
	}
}

// OnChange registers fn to be called with the overall health after every
// round of checks
func (c *Checker) OnChange(fn func(healthy bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// RunChecks executes every registered check once
func (c *Checker) RunChecks(ctx context.Context) {
	c.mu.RLock()
	checks := make(map[string]registration, len(c.checks))
	for name, reg := range c.checks {
		checks[name] = reg
	}
	c.mu.RUnlock()

	type result struct {
		name   string
		status Status
		desc   string
		err    error
	}
	results := make([]result, 0, len(checks))
	for name, reg := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		status, desc, err := reg.check(checkCtx)
		cancel()
		results = append(results, result{name, status, desc, err})
	}

	c.mu.Lock()
	now := time.Now()
	for _, r := range results {
		component, ok := c.components[r.name]
		if !ok {
			continue
		}
		component.Status = r.status
		component.Description = r.desc
		component.LastChecked = now
		component.Error = ""
		if r.err != nil {
			component.Error = r.err.Error()
			c.log.Error("Health check failed",
				"component", r.name,
				"status", string(r.status),
				"error", r.err.Error(),
			)
		}
	}
	listeners := append([]func(bool){}, c.listeners...)
	c.mu.Unlock()

	healthy := c.IsSystemHealthy()
	for _, fn := range listeners {
		fn(healthy)
	}
}

// Start runs checks immediately and then every check period until ctx is done
func (c *Checker) Start(ctx context.Context) {
	go func() {
		c.RunChecks(ctx)

		ticker := time.NewTicker(c.checkPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.RunChecks(ctx)
			}
		}
	}()
}

// GetStatus returns a copy of every component, sorted by name
func (c *Checker) GetStatus() []Component {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Component, 0, len(c.components))
	for _, v := range c.components {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// IsSystemHealthy returns false if any critical component is down
func (c *Checker) IsSystemHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, component := range c.components {
		if component.Critical && component.Status == StatusDown {
			return false
		}
	}
	return true
}

// Handler serves the health report
func (c *Checker) Handler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		status, code := "ok", http.StatusOK
		if !c.IsSystemHealthy() {
			status, code = "unavailable", http.StatusServiceUnavailable
		}
		ctx.JSON(code, gin.H{
			"status":     status,
			"version":    c.version,
			"timestamp":  time.Now().UTC(),
			"components": c.GetStatus(),
		})
	}
}

// RegisterPing registers a critical check backed by a ping function, such
// as the blob store's
func (c *Checker) RegisterPing(name string, ping func(ctx context.Context) error) {
	c.Register(name, true, func(ctx context.Context) (Status, string, error) {
		start := time.Now()
		if err := ping(ctx); err != nil {
			return StatusDown, name + " is unreachable", err
		}
		return StatusUp, name + " responded in " + time.Since(start).Round(time.Millisecond).String(), nil
	})
}
