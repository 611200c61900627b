package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("connection refused") }

func TestCheckerStatus(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(c *Checker)
		status Status
	}{
		{name: "no checks", setup: func(c *Checker) {}, status: StatusHealthy},
		{name: "all healthy", setup: func(c *Checker) {
			c.Register("records", true, ok)
			c.Register("artifacts", false, ok)
		}, status: StatusHealthy},
		{name: "optional failure", setup: func(c *Checker) {
			c.Register("records", true, ok)
			c.Register("events", false, failing)
		}, status: StatusDegraded},
		{name: "critical failure", setup: func(c *Checker) {
			c.Register("records", true, failing)
			c.Register("events", false, failing)
		}, status: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(time.Second, nil)
			tt.setup(c)
			assert.Equal(t, tt.status, c.Check(context.Background()).Status)
		})
	}
}

func TestCheckerResultsAreSortedAndDetailed(t *testing.T) {
	c := NewChecker(time.Second, nil)
	c.Register("records", true, ok)
	c.Register("artifacts", false, failing)

	report := c.Check(context.Background())
	require.Len(t, report.Checks, 2)
	assert.Equal(t, "artifacts", report.Checks[0].Name)
	assert.Equal(t, StatusUnhealthy, report.Checks[0].Status)
	assert.Equal(t, "connection refused", report.Checks[0].Error)
	assert.Equal(t, "records", report.Checks[1].Name)
	assert.Empty(t, report.Checks[1].Error)
}

func TestCheckerTimeout(t *testing.T) {
	c := NewChecker(20*time.Millisecond, nil)
	c.Register("slow", true, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	report := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Contains(t, report.Checks[0].Error, "deadline")
}

func TestCheckerRecoversPanics(t *testing.T) {
	c := NewChecker(time.Second, nil)
	c.Register("broken", false, func(context.Context) error { panic("boom") })

	report := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Contains(t, report.Checks[0].Error, "boom")
}

func TestRegisterReplaces(t *testing.T) {
	c := NewChecker(time.Second, nil)
	c.Register("records", true, failing)
	c.Register("records", true, ok)

	report := c.Check(context.Background())
	require.Len(t, report.Checks, 1)
	assert.Equal(t, StatusHealthy, report.Status)
}
