package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/toolscore/pkg/catalog"
)

type memStore struct {
	tools    []catalog.Tool
	scores   map[string]catalog.ExternalScore // key: tool|source
	statuses map[string]catalog.RunStatus
	lastErr  map[string]string
	listErr  error
}

func newMemStore(tools ...catalog.Tool) *memStore {
	return &memStore{
		tools:    tools,
		scores:   make(map[string]catalog.ExternalScore),
		statuses: make(map[string]catalog.RunStatus),
		lastErr:  make(map[string]string),
	}
}

func (m *memStore) ListToolsWithExternalIDs(context.Context) ([]catalog.Tool, error) {
	return m.tools, m.listErr
}

func (m *memStore) UpsertExternalScore(_ context.Context, s catalog.ExternalScore) error {
	m.scores[s.ToolID+"|"+s.Source] = s
	return nil
}

func (m *memStore) MarkSourceRunning(_ context.Context, source string) error {
	m.statuses[source] = catalog.StatusRunning
	return nil
}

func (m *memStore) MarkSourceComplete(_ context.Context, source string, status catalog.RunStatus, lastError string) error {
	m.statuses[source] = status
	m.lastErr[source] = lastError
	return nil
}

type stubFetcher struct {
	scores   map[string]float64
	errs     map[string]error
	delay    time.Duration
	calls    int
	calledAt []time.Time
}

func (s *stubFetcher) Source() string       { return "stub" }
func (s *stubFetcher) Delay() time.Duration { return s.delay }

func (s *stubFetcher) Fetch(_ context.Context, id string) (Measurement, error) {
	s.calls++
	s.calledAt = append(s.calledAt, time.Now())
	if err := s.errs[id]; err != nil {
		return Measurement{}, err
	}
	return Measurement{Score: s.scores[id], Raw: map[string]any{"id": id}}, nil
}

func stubTool(id, name, ident string) catalog.Tool {
	t := catalog.Tool{ID: id, Name: name}
	if ident != "" {
		t.ExternalIDs = map[string]string{"stub": ident}
	}
	return t
}

func fixedRunner(st Store) *Runner {
	r := NewRunner(st, nil)
	r.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return r
}

func TestRunner_PartialRun(t *testing.T) {
	st := newMemStore(
		stubTool("t1", "Alpha", "a"),
		stubTool("t2", "Beta", "b"),
		stubTool("t3", "Gamma", "c"),
		stubTool("t4", "Delta", "d"),
		stubTool("t5", "Epsilon", "e"),
	)
	f := &stubFetcher{
		scores: map[string]float64{"a": 91.234, "c": 40, "e": 120},
		errs: map[string]error{
			"b": errors.New("HTTP 500"),
			"d": errors.New("timeout"),
		},
	}

	res := fixedRunner(st).Run(context.Background(), f)

	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 3, res.Updated)
	assert.Len(t, res.Errors, 2)
	assert.Equal(t, "Beta: HTTP 500", res.Errors[0])
	assert.Equal(t, catalog.StatusPartial, res.Status())
	assert.Equal(t, catalog.StatusPartial, st.statuses["stub"])
	assert.Equal(t, "Beta: HTTP 500; Delta: timeout", st.lastErr["stub"])

	require.Len(t, st.scores, 3)
	assert.Equal(t, 91.23, st.scores["t1|stub"].NormalizedScore)
	assert.Equal(t, 100.0, st.scores["t5|stub"].NormalizedScore)
}

func TestRunner_DelaysAfterEveryTool(t *testing.T) {
	const delay = 40 * time.Millisecond
	st := newMemStore(
		stubTool("t1", "Alpha", "a"),
		stubTool("t2", "Beta", "b"),
	)
	f := &stubFetcher{
		scores: map[string]float64{"b": 50},
		errs:   map[string]error{"a": errors.New("HTTP 503")},
		delay:  delay,
	}

	start := time.Now()
	res := fixedRunner(st).Run(context.Background(), f)
	elapsed := time.Since(start)

	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, []string{"Alpha: HTTP 503"}, res.Errors)
	assert.Equal(t, catalog.StatusPartial, res.Status())

	require.Len(t, f.calledAt, 2)
	assert.GreaterOrEqual(t, f.calledAt[1].Sub(f.calledAt[0]), delay, "a failed tool still waits before the next")
	assert.GreaterOrEqual(t, elapsed, 2*delay, "the last tool is followed by a delay too")
}

func TestRunner_CancelDuringDelay(t *testing.T) {
	st := newMemStore(stubTool("t1", "Alpha", "a"), stubTool("t2", "Beta", "b"))
	f := &stubFetcher{scores: map[string]float64{"a": 10, "b": 20}, delay: time.Minute}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := fixedRunner(st).Run(ctx, f)

	assert.Equal(t, 1, f.calls)
	assert.Equal(t, 1, res.Updated)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "run interrupted")
	assert.Equal(t, catalog.StatusPartial, st.statuses["stub"])
}

func TestRunner_Idempotent(t *testing.T) {
	st := newMemStore(stubTool("t1", "Alpha", "a"), stubTool("t2", "Beta", "b"))
	f := &stubFetcher{scores: map[string]float64{"a": 70, "b": 35.5}}
	r := fixedRunner(st)

	first := r.Run(context.Background(), f)
	snapshot := make(map[string]catalog.ExternalScore, len(st.scores))
	for k, v := range st.scores {
		snapshot[k] = v
	}
	second := r.Run(context.Background(), f)

	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, st.scores)
	assert.Equal(t, catalog.StatusSuccess, st.statuses["stub"])
}

func TestRunner_NotListedIsSkipped(t *testing.T) {
	st := newMemStore(stubTool("t1", "Alpha", "a"), stubTool("t2", "Beta", "b"))
	f := &stubFetcher{
		scores: map[string]float64{"a": 50},
		errs:   map[string]error{"b": ErrNotListed},
	}

	res := fixedRunner(st).Run(context.Background(), f)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, res.Errors)
	assert.Equal(t, catalog.StatusSuccess, st.statuses["stub"])
}

func TestRunner_ToolsWithoutIdentifierAreIgnored(t *testing.T) {
	st := newMemStore(stubTool("t1", "Alpha", "a"), stubTool("t2", "Beta", ""))
	f := &stubFetcher{scores: map[string]float64{"a": 50}}

	res := fixedRunner(st).Run(context.Background(), f)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, f.calls)
}

func TestRunner_AllFailIsError(t *testing.T) {
	st := newMemStore(stubTool("t1", "Alpha", "a"))
	f := &stubFetcher{errs: map[string]error{"a": errors.New("boom")}}

	res := fixedRunner(st).Run(context.Background(), f)
	assert.Equal(t, catalog.StatusError, res.Status())
	assert.Equal(t, catalog.StatusError, st.statuses["stub"])
}

func TestRunner_ListFailure(t *testing.T) {
	st := newMemStore()
	st.listErr = errors.New("no such table: tools")

	res := fixedRunner(st).Run(context.Background(), &stubFetcher{})
	assert.Len(t, res.Errors, 1)
	assert.Equal(t, catalog.StatusError, st.statuses["stub"])
}

func TestRunner_NoStore(t *testing.T) {
	f := &stubFetcher{}
	res := NewRunner(nil, nil).Run(context.Background(), f)
	assert.True(t, res.NotConfigured)
	assert.Zero(t, f.calls)
}

func TestRunner_StopsWhenCancelled(t *testing.T) {
	st := newMemStore(stubTool("t1", "Alpha", "a"), stubTool("t2", "Beta", "b"))
	f := &stubFetcher{scores: map[string]float64{"a": 1, "b": 2}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := fixedRunner(st).Run(ctx, f)
	assert.Equal(t, 1, f.calls)
	assert.Len(t, res.Errors, 1)
}

func TestSleep(t *testing.T) {
	assert.NoError(t, sleep(context.Background(), 0))
	assert.NoError(t, sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
}
