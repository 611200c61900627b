package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckFunc probes one dependency; a nil error means healthy
type CheckFunc func(ctx context.Context) error

// Result is the outcome of one check
type Result struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Critical bool          `json:"critical"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Report aggregates every check of one probe
type Report struct {
	Status    Status        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    time.Duration `json:"uptime"`
	Checks    []Result      `json:"checks"`
}

type check struct {
	name     string
	fn       CheckFunc
	critical bool
}

// Checker runs registered dependency checks on demand. A failing critical
// check makes the report unhealthy, a failing optional one degraded.
type Checker struct {
	logger    *logrus.Logger
	timeout   time.Duration
	startTime time.Time

	mu     sync.RWMutex
	checks map[string]check
}

// NewChecker creates a checker bounding each check by timeout
func NewChecker(timeout time.Duration, logger *logrus.Logger) *Checker {
	if logger == nil {
		logger = logrus.New()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Checker{
		logger:    logger,
		timeout:   timeout,
		startTime: time.Now(),
		checks:    make(map[string]check),
	}
}

// Register adds or replaces the check called name
func (c *Checker) Register(name string, critical bool, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check{name: name, fn: fn, critical: critical}
}

// Check runs every registered check concurrently
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	checks := make([]check, 0, len(c.checks))
	for _, chk := range c.checks {
		checks = append(checks, chk)
	}
	c.mu.RUnlock()

	results := make([]Result, len(checks))
	var wg sync.WaitGroup
	for i, chk := range checks {
		wg.Add(1)
		go func(i int, chk check) {
			defer wg.Done()
			results[i] = c.run(ctx, chk)
		}(i, chk)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	return Report{
		Status:    overall(results),
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(c.startTime),
		Checks:    results,
	}
}

func (c *Checker) run(ctx context.Context, chk check) (result Result) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	result = Result{Name: chk.name, Status: StatusHealthy, Critical: chk.critical}

	defer func() {
		if p := recover(); p != nil {
			result.Status = StatusUnhealthy
			result.Error = fmt.Sprintf("check panicked: %v", p)
		}
		result.Duration = time.Since(start)
		if result.Error != "" {
			c.logger.WithFields(logrus.Fields{
				"check":    chk.name,
				"critical": chk.critical,
				"error":    result.Error,
			}).Warn("Health check failed")
		}
	}()

	if err := chk.fn(ctx); err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
	}
	return result
}

func overall(results []Result) Status {
	status := StatusHealthy
	for _, r := range results {
		if r.Status == StatusHealthy {
			continue
		}
		if r.Critical {
			return StatusUnhealthy
		}
		status = StatusDegraded
	}
	return status
}
