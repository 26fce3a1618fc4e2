package validation

import (
	"context"
	"errors"
	"testing"
)

// fakeQuerier scripts query responses by inspecting the generated SQL.
type fakeQuerier struct {
	rowsFn  func(query string) ([]map[string]any, error)
	valueFn func(query string) (any, error)
	queries []string
}

func (f *fakeQuerier) QueryRows(_ context.Context, query string, _ ...any) ([]map[string]any, error) {
	f.queries = append(f.queries, query)
	if f.rowsFn == nil {
		return nil, nil
	}
	return f.rowsFn(query)
}

func (f *fakeQuerier) QueryValue(_ context.Context, query string, _ ...any) (any, error) {
	f.queries = append(f.queries, query)
	if f.valueFn == nil {
		return int64(0), nil
	}
	return f.valueFn(query)
}

func (f *fakeQuerier) Exec(context.Context, string, ...any) error { return nil }

func (f *fakeQuerier) InsertReturningID(context.Context, string, ...any) (int64, error) {
	return 1, nil
}

func (f *fakeQuerier) Ping(context.Context) error { return nil }

func chunkRow(id, code, status string) map[string]any {
	return map[string]any{"K0": id, "K1": code, "CMP_STATUS": status}
}

func TestRunChunkClassifiesRows(t *testing.T) {
	p := newOraclePlan(t, ordersMapping())
	q := &fakeQuerier{rowsFn: func(string) ([]map[string]any, error) {
		return []map[string]any{
			chunkRow("1", "A", "MATCH"),
			chunkRow("2", "B", "MISSING"),
			chunkRow("3", "C", "MISMATCH"),
		}, nil
	}}

	res, err := NewExecutor(q, p).RunChunk(context.Background(), nil, nil, 10)
	if err != nil {
		t.Fatalf("RunChunk: %v", err)
	}
	if res.Processed != 3 || res.Matched != 1 || res.Mismatched != 1 || res.Missing != 1 {
		t.Errorf("counts = %d/%d/%d/%d, want 3/1/1/1",
			res.Processed, res.Matched, res.Mismatched, res.Missing)
	}
	if len(res.LastKey) != 2 || res.LastKey[0] != "3" || res.LastKey[1] != "C" {
		t.Errorf("LastKey = %v, want [3 C]", res.LastKey)
	}
	if len(res.MismatchedKeys) != 1 || res.MismatchedKeys[0][0] != "3" {
		t.Errorf("MismatchedKeys = %v", res.MismatchedKeys)
	}
	if len(res.MissingKeys) != 1 || res.MissingKeys[0][0] != "2" {
		t.Errorf("MissingKeys = %v", res.MissingKeys)
	}
}

func TestRunChunkEmpty(t *testing.T) {
	p := newOraclePlan(t, ordersMapping())
	q := &fakeQuerier{}

	res, err := NewExecutor(q, p).RunChunk(context.Background(), nil, nil, 0)
	if err != nil {
		t.Fatalf("RunChunk: %v", err)
	}
	if res.Processed != 0 || res.LastKey != nil {
		t.Errorf("empty chunk: processed=%d lastKey=%v", res.Processed, res.LastKey)
	}
}

func TestRunChunkKeyCapBoundsCollection(t *testing.T) {
	p := newOraclePlan(t, ordersMapping())
	q := &fakeQuerier{rowsFn: func(string) ([]map[string]any, error) {
		return []map[string]any{
			chunkRow("1", "A", "MISMATCH"),
			chunkRow("2", "B", "MISMATCH"),
			chunkRow("3", "C", "MISMATCH"),
		}, nil
	}}

	res, err := NewExecutor(q, p).RunChunk(context.Background(), nil, nil, 2)
	if err != nil {
		t.Fatalf("RunChunk: %v", err)
	}
	if res.Mismatched != 3 {
		t.Errorf("Mismatched = %d, want 3; counts never depend on the detail cap", res.Mismatched)
	}
	if len(res.MismatchedKeys) != 2 {
		t.Errorf("collected keys = %d, want 2", len(res.MismatchedKeys))
	}
}

func TestRunChunkExecutionErrorWrapped(t *testing.T) {
	p := newOraclePlan(t, ordersMapping())
	q := &fakeQuerier{rowsFn: func(string) ([]map[string]any, error) {
		return nil, errors.New("ORA-02019: connection description for remote database not found")
	}}

	_, err := NewExecutor(q, p).RunChunk(context.Background(), nil, nil, 0)
	if !errors.Is(err, ErrChunkExecution) {
		t.Fatalf("expected ErrChunkExecution, got %v", err)
	}
}

func TestRunChunkUnknownClassification(t *testing.T) {
	p := newOraclePlan(t, ordersMapping())
	q := &fakeQuerier{rowsFn: func(string) ([]map[string]any, error) {
		return []map[string]any{chunkRow("1", "A", "WHAT")}, nil
	}}

	_, err := NewExecutor(q, p).RunChunk(context.Background(), nil, nil, 0)
	if !errors.Is(err, ErrChunkExecution) {
		t.Fatalf("expected ErrChunkExecution, got %v", err)
	}
}
