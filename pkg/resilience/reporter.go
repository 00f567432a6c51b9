package resilience

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxBreadcrumbs bounds the breadcrumb ring.
const DefaultMaxBreadcrumbs = 10

// ErrorReport is a structured record of a failure and the steps leading to it.
type ErrorReport struct {
	ID          string         `json:"id"`
	Error       string         `json:"error"`
	Kind        string         `json:"kind"`
	UserMessage string         `json:"user_message"`
	Recoverable bool           `json:"recoverable"`
	Context     map[string]any `json:"context,omitempty"`
	Breadcrumbs []string       `json:"breadcrumbs"`
	StackTrace  string         `json:"stack_trace"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Reporter keeps the most recent breadcrumbs and turns errors into reports.
// One Reporter is shared by every component of an App.
type Reporter struct {
	mu     sync.Mutex
	max    int
	crumbs []string
	logger *slog.Logger
	now    func() time.Time
}

// NewReporter creates a reporter that keeps at most maxBreadcrumbs entries.
func NewReporter(logger *slog.Logger, maxBreadcrumbs int) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBreadcrumbs <= 0 {
		maxBreadcrumbs = DefaultMaxBreadcrumbs
	}
	return &Reporter{
		max:    maxBreadcrumbs,
		crumbs: make([]string, 0, maxBreadcrumbs),
		logger: logger.With(slog.String("component", "error_reporter")),
		now:    time.Now,
	}
}

// AddBreadcrumb records a step. The oldest entry is evicted once the ring
// is full.
func (r *Reporter) AddBreadcrumb(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := fmt.Sprintf("%s %s", r.now().UTC().Format(time.RFC3339), msg)
	if len(r.crumbs) == r.max {
		copy(r.crumbs, r.crumbs[1:])
		r.crumbs = r.crumbs[:r.max-1]
	}
	r.crumbs = append(r.crumbs, entry)
}

// Breadcrumbs returns a copy of the recorded breadcrumbs, oldest first.
func (r *Reporter) Breadcrumbs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.crumbs))
	copy(out, r.crumbs)
	return out
}

// ClearBreadcrumbs drops every breadcrumb.
func (r *Reporter) ClearBreadcrumbs() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.crumbs = r.crumbs[:0]
}

// Report builds and logs a report for err.
func (r *Reporter) Report(err error, context map[string]any) ErrorReport {
	report := ErrorReport{
		ID:          uuid.NewString(),
		Kind:        Classify(err).String(),
		UserMessage: UserMessage(err),
		Recoverable: IsRecoverable(err),
		Context:     context,
		Breadcrumbs: r.Breadcrumbs(),
		StackTrace:  string(debug.Stack()),
		Timestamp:   r.now().UTC(),
	}
	if err != nil {
		report.Error = err.Error()
	}

	r.logger.Error("Error reported",
		"report_id", report.ID,
		"kind", report.Kind,
		"error", report.Error,
		"recoverable", report.Recoverable,
		"context", context,
		"breadcrumbs", len(report.Breadcrumbs),
	)
	return report
}
