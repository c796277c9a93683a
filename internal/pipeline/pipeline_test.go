package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jacklau/distscore/internal/distance"
	"github.com/jacklau/distscore/internal/metrics"
	"github.com/jacklau/distscore/internal/store"
)

// mockStore implements store.Store for testing.
type mockStore struct {
	mu        sync.Mutex
	runs      []string
	scores    []store.Score
	finished  map[string][2]int
	createErr error
	logErr    error
}

func newMockStore() *mockStore {
	return &mockStore{finished: make(map[string][2]int)}
}

func (m *mockStore) CreateRun(script string, _ map[string]any) (*store.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	id := fmt.Sprintf("run-%d", len(m.runs)+1)
	m.runs = append(m.runs, id)
	return &store.Run{ID: id, Script: script}, nil
}

func (m *mockStore) LogScore(s *store.Score) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logErr != nil {
		return m.logErr
	}
	m.scores = append(m.scores, *s)
	return nil
}

func (m *mockStore) FinishRun(runID string, scored, failed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[runID] = [2]int{scored, failed}
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustParams(t *testing.T, raw map[string]any) *distance.Params {
	t.Helper()
	p, err := distance.Parse(raw)
	if err != nil {
		t.Fatalf("parsing params: %v", err)
	}
	return p
}

func testDocuments() []Document {
	return []Document{
		{ID: "a", Fields: distance.Source{"vec": "4,5,6"}},
		{ID: "b", Fields: distance.Source{"vec": "1,2"}},
		{ID: "c", Fields: distance.Source{"other": "1"}},
		{ID: "d", Fields: distance.Source{"vec": "1,2,3"}},
	}
}

func TestRun_PerDocumentErrorsDoNotAbortBatch(t *testing.T) {
	st := newMockStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	p := New(Deps{Store: st, Metrics: m, Logger: quietLogger(), Workers: 2})

	raw := map[string]any{"reference": map[string]any{"vec": "1,2,3"}}
	batch, err := p.Run(context.Background(), Request{
		Script:    "test",
		Raw:       raw,
		Params:    mustParams(t, raw),
		Documents: testDocuments(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if batch.RunID != "run-1" {
		t.Errorf("expected run-1, got %q", batch.RunID)
	}
	if batch.Scored != 2 || batch.Failed != 2 {
		t.Errorf("expected 2 scored and 2 failed, got %d/%d", batch.Scored, batch.Failed)
	}

	want := []struct {
		id    string
		score float64
		code  string
	}{
		{"a", 5.2, "ok"},
		{"b", 0, "dimension_mismatch"},
		{"c", 0, "field_not_found"},
		{"d", 0, "ok"},
	}
	for i, w := range want {
		r := batch.Results[i]
		if r.ID != w.id || r.Score != w.score || r.Code() != w.code {
			t.Errorf("result %d: expected %s/%v/%s, got %s/%v/%s", i, w.id, w.score, w.code, r.ID, r.Score, r.Code())
		}
	}

	if len(st.scores) != 4 {
		t.Fatalf("expected 4 logged scores, got %d", len(st.scores))
	}
	if st.scores[1].Value != nil || st.scores[1].ErrorCode != "dimension_mismatch" {
		t.Errorf("unexpected logged failure: %+v", st.scores[1])
	}
	if st.finished["run-1"] != [2]int{2, 2} {
		t.Errorf("expected run finished with 2/2, got %v", st.finished["run-1"])
	}

	if got := testutil.ToFloat64(m.Evaluations.WithLabelValues("euclidean", "ok")); got != 2 {
		t.Errorf("expected 2 ok evaluations, got %v", got)
	}
	if got := testutil.ToFloat64(m.Batches); got != 1 {
		t.Errorf("expected 1 batch, got %v", got)
	}
}

func TestRun_WithoutStore(t *testing.T) {
	p := New(Deps{Logger: quietLogger()})

	batch, err := p.Run(context.Background(), Request{
		Params:    mustParams(t, map[string]any{"reference": map[string]any{"vec": "1,0"}, "distance_type": "cosine"}),
		Documents: []Document{{ID: "x", Fields: distance.Source{"vec": "0,1"}}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch.RunID != "" {
		t.Errorf("expected no run ID without a store, got %q", batch.RunID)
	}
	if batch.Results[0].Score != 0 || batch.Results[0].Err != nil {
		t.Errorf("unexpected result: %+v", batch.Results[0])
	}
}

func TestRun_CreateRunFailure(t *testing.T) {
	st := newMockStore()
	st.createErr = errors.New("disk full")
	p := New(Deps{Store: st, Logger: quietLogger()})

	_, err := p.Run(context.Background(), Request{
		Params:    mustParams(t, map[string]any{"reference": map[string]any{"vec": "1"}}),
		Documents: testDocuments(),
	})
	if err == nil {
		t.Fatal("expected error when the run cannot be created")
	}
}

func TestRun_LogScoreFailureIsNotFatal(t *testing.T) {
	st := newMockStore()
	st.logErr = errors.New("locked")
	p := New(Deps{Store: st, Logger: quietLogger()})

	batch, err := p.Run(context.Background(), Request{
		Params:    mustParams(t, map[string]any{"reference": map[string]any{"vec": "1,2,3"}}),
		Documents: testDocuments(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch.Scored != 2 {
		t.Errorf("expected 2 scored, got %d", batch.Scored)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	p := New(Deps{Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, Request{
		Params:    mustParams(t, map[string]any{"reference": map[string]any{"vec": "1"}}),
		Documents: testDocuments(),
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRun_CancelledMidBatchFinishesRun(t *testing.T) {
	st := newMockStore()
	p := New(Deps{Store: st, Logger: quietLogger(), Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := p.Run(ctx, Request{
		Params:    mustParams(t, map[string]any{"reference": map[string]any{"vec": "1,2,3"}}),
		Documents: testDocuments(),
		OnProgress: func(done, total int) {
			if done == 1 {
				cancel()
			}
		},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	counts, ok := st.finished["run-1"]
	if !ok {
		t.Fatal("expected the cancelled run to be finished")
	}
	if counts != [2]int{1, 0} {
		t.Errorf("expected partial counts 1/0, got %v", counts)
	}
	if len(st.scores) != 1 || st.scores[0].DocID != "a" {
		t.Errorf("expected only the completed document logged, got %+v", st.scores)
	}
}

func TestRun_RejectsEmptyAndDuplicateIDs(t *testing.T) {
	tests := []struct {
		name string
		docs []Document
	}{
		{"empty id", []Document{{ID: "", Fields: distance.Source{"vec": "1"}}}},
		{"duplicate id", []Document{
			{ID: "a", Fields: distance.Source{"vec": "1"}},
			{ID: "b", Fields: distance.Source{"vec": "2"}},
			{ID: "a", Fields: distance.Source{"vec": "3"}},
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := newMockStore()
			p := New(Deps{Store: st, Logger: quietLogger()})

			_, err := p.Run(context.Background(), Request{
				Params:    mustParams(t, map[string]any{"reference": map[string]any{"vec": "1"}}),
				Documents: tc.docs,
			})
			if !errors.Is(err, ErrInvalidDocument) {
				t.Fatalf("expected ErrInvalidDocument, got %v", err)
			}
			if len(st.runs) != 0 {
				t.Errorf("expected no run created, got %v", st.runs)
			}
		})
	}
}

func TestRun_NilParams(t *testing.T) {
	p := New(Deps{Logger: quietLogger()})
	if _, err := p.Run(context.Background(), Request{}); err == nil {
		t.Error("expected error for nil params")
	}
}

func TestRun_Progress(t *testing.T) {
	p := New(Deps{Logger: quietLogger(), Workers: 3})

	docs := make([]Document, 25)
	for i := range docs {
		docs[i] = Document{ID: fmt.Sprint(i), Fields: distance.Source{"vec": fmt.Sprint(i)}}
	}

	var mu sync.Mutex
	var calls, maxDone int
	_, err := p.Run(context.Background(), Request{
		Params:    mustParams(t, map[string]any{"reference": map[string]any{"vec": "0"}}),
		Documents: docs,
		OnProgress: func(done, total int) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if done > maxDone {
				maxDone = done
			}
			if total != len(docs) {
				t.Errorf("expected total %d, got %d", len(docs), total)
			}
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != len(docs) || maxDone != len(docs) {
		t.Errorf("expected %d progress calls ending at %d, got %d ending at %d", len(docs), len(docs), calls, maxDone)
	}
}

func TestScore(t *testing.T) {
	p := New(Deps{})
	params := mustParams(t, map[string]any{"reference": map[string]any{"vec": "3,4"}})

	r := p.Score(params, Document{ID: "z", Fields: distance.Source{"vec": "0,0"}})
	if r.Err != nil || r.Score != 5 {
		t.Errorf("expected score 5, got %+v", r)
	}
}

func TestFromStore(t *testing.T) {
	docs := FromStore([]store.Document{{ID: "a", Source: map[string]any{"vec": "1"}}})
	if len(docs) != 1 || docs[0].ID != "a" {
		t.Fatalf("unexpected docs: %+v", docs)
	}
	if v, ok := docs[0].Fields.Field("vec"); !ok || v != "1" {
		t.Errorf("expected vec field, got %v %v", v, ok)
	}
}
