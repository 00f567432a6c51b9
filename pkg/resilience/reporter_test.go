package resilience

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/amirasaad/btcfx/pkg/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporter_BreadcrumbRing(t *testing.T) {
	r := NewReporter(slog.Default(), 3)
	for i := 1; i <= 5; i++ {
		r.AddBreadcrumb("step %d", i)
	}
	crumbs := r.Breadcrumbs()
	require.Len(t, crumbs, 3)
	assert.True(t, strings.HasSuffix(crumbs[0], "step 3"))
	assert.True(t, strings.HasSuffix(crumbs[2], "step 5"))

	crumbs[0] = "mutated"
	assert.NotEqual(t, "mutated", r.Breadcrumbs()[0], "Breadcrumbs returns a copy")

	r.ClearBreadcrumbs()
	assert.Empty(t, r.Breadcrumbs())
}

func TestReporter_DefaultCapacity(t *testing.T) {
	r := NewReporter(nil, 0)
	for i := 0; i < 25; i++ {
		r.AddBreadcrumb("crumb %d", i)
	}
	assert.Len(t, r.Breadcrumbs(), DefaultMaxBreadcrumbs)
}

func TestReporter_Report(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	r := NewReporter(logger, 10)
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	r.AddBreadcrumb("fetching bitcoin prices")
	err := fmt.Errorf("bitcoin feed: %w", domain.Errorf(domain.KindRateLimited, "HTTP 429"))
	report := r.Report(err, map[string]any{"feed": "bitcoin"})

	_, perr := uuid.Parse(report.ID)
	assert.NoError(t, perr)
	assert.Equal(t, "rate_limited", report.Kind)
	assert.Equal(t, "bitcoin feed: HTTP 429", report.Error)
	assert.True(t, report.Recoverable)
	assert.Equal(t, fixed, report.Timestamp)
	assert.Equal(t, []string{"2024-05-01T10:00:00Z fetching bitcoin prices"}, report.Breadcrumbs)
	assert.NotEmpty(t, report.StackTrace)
	assert.Equal(t, "bitcoin", report.Context["feed"])

	assert.Contains(t, buf.String(), `"msg":"Error reported"`)
	assert.Contains(t, buf.String(), report.ID)
}
