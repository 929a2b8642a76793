package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/toolscore/internal/store"
	"github.com/elonfeng/toolscore/pkg/catalog"
	"github.com/elonfeng/toolscore/pkg/recommend"
	"github.com/elonfeng/toolscore/pkg/suggestion"
)

type fakeJobs struct {
	collected  []string
	reconciled int
	run        catalog.RunResult
	merge      suggestion.Result
}

func (f *fakeJobs) Sources() []string { return []string{catalog.SourceTranco} }

func (f *fakeJobs) Collect(_ context.Context, source string) (catalog.RunResult, error) {
	if source != catalog.SourceTranco {
		return catalog.RunResult{}, errors.New("unknown source: " + source)
	}
	f.collected = append(f.collected, source)
	return f.run, nil
}

func (f *fakeJobs) Reconcile(context.Context) catalog.RunResult {
	f.reconciled++
	return f.run
}

func (f *fakeJobs) MergeSuggestions(context.Context) (suggestion.Result, error) {
	return f.merge, nil
}

func newTestServer(t *testing.T, secret string) (*httptest.Server, *store.SQLiteStore, *fakeJobs) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	jobs := &fakeJobs{}
	srv := New(s, jobs, recommend.NewService(s, nil), Config{CronSecret: secret})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, s, jobs
}

func do(t *testing.T, method, url, token string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestCron_Auth(t *testing.T) {
	ts, _, jobs := newTestServer(t, "s3cret")

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/cron/reconcile", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/cron/reconcile", "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, jobs.reconciled)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/cron/reconcile", "s3cret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 1, jobs.reconciled)
}

func TestCron_EmptySecretFailsClosed(t *testing.T) {
	ts, _, jobs := newTestServer(t, "")

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/cron/tranco", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer ")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, jobs.collected)
}

func TestCron_Collect(t *testing.T) {
	ts, _, jobs := newTestServer(t, "s3cret")
	jobs.run = catalog.RunResult{Total: 5, Updated: 3, Skipped: 2, Errors: []string{"a", "b"}}

	resp, body := do(t, http.MethodPost, ts.URL+"/api/cron/tranco", "s3cret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{
		"success": true, "total": 5.0, "updated": 3.0, "skipped": 2.0, "errors": 2.0,
	}, body)
	assert.Equal(t, []string{"tranco"}, jobs.collected)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/cron/myspace", "s3cret")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCron_NotConfigured(t *testing.T) {
	ts, _, jobs := newTestServer(t, "s3cret")
	jobs.run = catalog.RunResult{NotConfigured: true}
	jobs.merge = suggestion.Result{NotConfigured: true}

	_, body := do(t, http.MethodPost, ts.URL+"/api/cron/reconcile", "s3cret")
	assert.Equal(t, map[string]any{"message": "store not configured, skipping"}, body)

	_, body = do(t, http.MethodPost, ts.URL+"/api/cron/merge-suggestions", "s3cret")
	assert.Equal(t, "store not configured, skipping", body["message"])
}

func TestCron_Merge(t *testing.T) {
	ts, _, jobs := newTestServer(t, "s3cret")
	jobs.merge = suggestion.Result{Total: 3, Merged: 2, Failed: 1, Errors: []string{"x"}}

	_, body := do(t, http.MethodPost, ts.URL+"/api/cron/merge-suggestions", "s3cret")
	assert.Equal(t, 2.0, body["updated"])
	assert.Equal(t, 1.0, body["skipped"])
	assert.Equal(t, 1.0, body["errors"])
}

func TestRecommend(t *testing.T) {
	ts, s, _ := newTestServer(t, "")
	ctx := context.Background()

	a := catalog.Tool{Name: "A", Slug: "a", HybridScore: 70, Pricing: catalog.PricingFree}
	b := catalog.Tool{Name: "B", Slug: "b", HybridScore: 90, Pricing: catalog.PricingPaid}
	require.NoError(t, s.InsertTool(ctx, &a))
	require.NoError(t, s.InsertTool(ctx, &b))
	require.NoError(t, s.SetMapping(ctx, catalog.Mapping{Scope: catalog.ScopePurpose, Slug: "blogging", ToolID: a.ID, Level: catalog.LevelEssential}))

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/recommend?purpose=blogging", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2.0, body["total"])
	results := body["results"].([]any)
	first := results[0].(map[string]any)["tool"].(map[string]any)
	assert.Equal(t, "A", first["name"])

	_, body = do(t, http.MethodGet, ts.URL+"/api/v1/recommend?budget=free", "")
	assert.Equal(t, 1.0, body["total"])

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/recommend?budget=cheap", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTools(t *testing.T) {
	ts, s, _ := newTestServer(t, "")
	ctx := context.Background()

	tool := catalog.Tool{Name: "Alpha", Slug: "alpha", HybridScore: 80}
	require.NoError(t, s.InsertTool(ctx, &tool))
	require.NoError(t, s.InsertTool(ctx, &catalog.Tool{Name: "Beta", Slug: "beta", HybridScore: 20}))
	require.NoError(t, s.UpsertExternalScore(ctx, catalog.ExternalScore{ToolID: tool.ID, Source: catalog.SourceTranco, NormalizedScore: 60}))

	_, body := do(t, http.MethodGet, ts.URL+"/api/v1/tools?min_score=50", "")
	assert.Equal(t, 1.0, body["count"])

	resp, _ := do(t, http.MethodGet, ts.URL+"/api/v1/tools?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/v1/tools/alpha", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Alpha", body["tool"].(map[string]any)["name"])
	assert.Len(t, body["external_scores"], 1)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/tools/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTool_History(t *testing.T) {
	ts, s, _ := newTestServer(t, "")
	ctx := context.Background()

	tool := catalog.Tool{Name: "Alpha", Slug: "alpha"}
	require.NoError(t, s.InsertTool(ctx, &tool))
	today := time.Now().UTC()
	for _, snap := range []catalog.Snapshot{
		{ToolID: tool.ID, Date: today.AddDate(0, 0, -40).Format("2006-01-02"), HybridScore: 30},
		{ToolID: tool.ID, Date: today.AddDate(0, 0, -7).Format("2006-01-02"), HybridScore: 50},
		{ToolID: tool.ID, Date: today.Format("2006-01-02"), HybridScore: 55},
	} {
		require.NoError(t, s.UpsertSnapshot(ctx, snap))
	}

	_, body := do(t, http.MethodGet, ts.URL+"/api/v1/tools/alpha", "")
	history := body["history"].([]any)
	require.Len(t, history, 2)
	assert.Equal(t, 50.0, history[0].(map[string]any)["hybrid_score"])
	assert.Equal(t, 55.0, history[1].(map[string]any)["hybrid_score"])
}

func TestTool_FirstPartySignals(t *testing.T) {
	ts, s, _ := newTestServer(t, "")
	ctx := context.Background()
	require.NoError(t, s.InsertTool(ctx, &catalog.Tool{Name: "Alpha", Slug: "alpha"}))

	resp, _ := post(t, ts.URL+"/api/v1/tools/alpha/rating", `{"rating":4}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = post(t, ts.URL+"/api/v1/tools/alpha/rating", `{"rating":5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = post(t, ts.URL+"/api/v1/tools/alpha/visit", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = post(t, ts.URL+"/api/v1/tools/alpha/upvote", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = post(t, ts.URL+"/api/v1/tools/alpha/rating", `{"rating":9}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = post(t, ts.URL+"/api/v1/tools/alpha/rating", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = post(t, ts.URL+"/api/v1/tools/ghost/upvote", `{}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	got, err := s.GetToolBySlug(ctx, "alpha")
	require.NoError(t, err)
	assert.InDelta(t, 4.5, got.RatingAvg, 1e-9)
	assert.Equal(t, 2, got.ReviewCount)
	assert.Equal(t, 1, got.VisitCount)
	assert.Equal(t, 1, got.UpvoteCount)
}

func TestSuggestions(t *testing.T) {
	ts, s, _ := newTestServer(t, "")

	resp, body := post(t, ts.URL+"/api/v1/suggestions", `{"tool_name":"  Quill ","tool_url":"https://quill.dev","category_slug":"writing"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := body["id"].(string)
	assert.NotEmpty(t, id)
	assert.Equal(t, "Quill", body["tool_name"])
	assert.Equal(t, "pending", body["status"])

	resp, body = post(t, ts.URL+"/api/v1/suggestions/"+id+"/vote", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, body["votes"])

	resp, body = do(t, http.MethodGet, ts.URL+"/api/v1/suggestions/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, body["votes"])

	resp, _ = post(t, ts.URL+"/api/v1/suggestions", `{"tool_name":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = post(t, ts.URL+"/api/v1/suggestions/missing/vote", `{}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/suggestions/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// A suggestion submitted over the API is picked up by approval.
	n, err := s.ApproveSuggestions(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, body = do(t, http.MethodGet, ts.URL+"/api/v1/suggestions/"+id, "")
	assert.Equal(t, "approved", body["status"])
}

func TestSources(t *testing.T) {
	ts, s, _ := newTestServer(t, "")
	ctx := context.Background()
	require.NoError(t, s.MarkSourceRunning(ctx, catalog.SourceTranco))
	require.NoError(t, s.MarkSourceComplete(ctx, catalog.SourceTranco, catalog.StatusPartial, "Beta: HTTP 500"))

	_, body := do(t, http.MethodGet, ts.URL+"/api/v1/sources", "")
	require.Equal(t, 1.0, body["count"])
	info := body["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "tranco", info["source"])
	assert.Equal(t, "partial", info["last_status"])
	assert.Equal(t, true, info["enabled"])
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t, "")
	resp, body := do(t, http.MethodGet, ts.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	bare := httptest.NewServer(New(nil, &fakeJobs{}, nil, Config{}).Handler())
	defer bare.Close()
	_, body = do(t, http.MethodGet, bare.URL+"/health", "")
	assert.Equal(t, "not configured", body["store"])
	_, body = do(t, http.MethodGet, bare.URL+"/api/v1/tools", "")
	assert.Equal(t, "store not configured, skipping", body["message"])
}
