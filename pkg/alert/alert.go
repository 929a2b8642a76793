// Package alert notifies operators about degraded collector runs and tools
// whose score is climbing.
package alert

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/elonfeng/toolscore/pkg/catalog"
)

// Kind identifies what a notification is about.
type Kind string

const (
	KindRun   Kind = "run"
	KindTrend Kind = "trend"
)

// Line is one entry listed under a notification.
type Line struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// Notification is the data sent to alert destinations.
type Notification struct {
	Kind   Kind              `json:"kind"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Source string            `json:"source,omitempty"`
	Status catalog.RunStatus `json:"status,omitempty"`
	Lines  []Line            `json:"lines,omitempty"`
}

// maxLines bounds how many lines a chat message shows.
const maxLines = 5

func (n *Notification) topLines() []Line {
	if len(n.Lines) > maxLines {
		return n.Lines[:maxLines]
	}
	return n.Lines
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return m != nil && len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers. A nil
// notification is ignored.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	if n == nil || !m.HasNotifiers() {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// FromRun builds a notification for a run that did not fully succeed. It
// returns nil for successful or unconfigured runs.
func FromRun(source string, r catalog.RunResult) *Notification {
	if r.NotConfigured {
		return nil
	}
	status := r.Status()
	if status == catalog.StatusSuccess {
		return nil
	}

	n := &Notification{
		Kind:   KindRun,
		Title:  fmt.Sprintf("%s run %s", source, status),
		Body:   fmt.Sprintf("%d of %d tools updated, %d skipped, %d errors", r.Updated, r.Total, r.Skipped, len(r.Errors)),
		Source: source,
		Status: status,
	}
	for _, e := range r.Errors {
		n.Lines = append(n.Lines, Line{Text: e})
	}
	return n
}

// Rising returns the tools trending up by at least minMagnitude points,
// biggest movers first.
func Rising(tools []catalog.Tool, minMagnitude int) []catalog.Tool {
	var rising []catalog.Tool
	for _, t := range tools {
		if t.TrendDirection == catalog.TrendUp && t.TrendMagnitude >= minMagnitude {
			rising = append(rising, t)
		}
	}
	slices.SortStableFunc(rising, func(a, b catalog.Tool) int {
		return b.TrendMagnitude - a.TrendMagnitude
	})
	return rising
}

// FromTrends builds a notification listing tools trending up by at least
// minMagnitude points, biggest movers first. It returns nil when none
// qualify.
func FromTrends(tools []catalog.Tool, minMagnitude int) *Notification {
	rising := Rising(tools, minMagnitude)
	if len(rising) == 0 {
		return nil
	}

	n := &Notification{
		Kind:  KindTrend,
		Title: fmt.Sprintf("%d tools trending up", len(rising)),
		Body:  fmt.Sprintf("Hybrid score rose by at least %d points since the last weekly snapshot.", minMagnitude),
	}
	for _, t := range rising {
		n.Lines = append(n.Lines, Line{
			Text: fmt.Sprintf("%s +%d (now %.1f)", t.Name, t.TrendMagnitude, t.HybridScore),
			URL:  t.URL,
		})
	}
	return n
}
