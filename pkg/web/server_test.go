package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shahcompbio/montage-sub000/pkg/backend"
	"github.com/shahcompbio/montage-sub000/pkg/consistency"
	"github.com/shahcompbio/montage-sub000/pkg/deletion"
	"github.com/shahcompbio/montage-sub000/pkg/editor"
	"github.com/shahcompbio/montage-sub000/pkg/fieldconfig"
	"github.com/shahcompbio/montage-sub000/pkg/model"
	"github.com/shahcompbio/montage-sub000/pkg/portrait"
	"github.com/shahcompbio/montage-sub000/pkg/structure"
)

func newTestServer(t *testing.T, withStore bool) *httptest.Server {
	t.Helper()
	cat, err := fieldconfig.Default()
	if err != nil {
		t.Fatal(err)
	}
	genes := backend.NewGeneIndex([]backend.Gene{{Name: "TP53", Chrom: "17", Start: 7661779, End: 7687550}})
	ed := editor.New(cat, editor.WithEngineOptions(consistency.WithPostProcessor(consistency.GeneLookupName,
		consistency.GeneLookup(genes, "chrom_number", "start", "end"))))

	var store *portrait.Store
	if withStore {
		store, err = portrait.Open(":memory:")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { store.Close() })
	}
	ts := httptest.NewServer(NewServer(ed, nil, store).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expect(t *testing.T, resp *http.Response, status int) {
	t.Helper()
	if resp.StatusCode != status {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s = %d, want %d: %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, status, b)
	}
}

// commitBasic runs the basic wizard over HTTP.
func commitBasic(t *testing.T, ts *httptest.Server) *structure.Result {
	t.Helper()
	expect(t, do(t, ts, "POST", "/api/structures/basic", nil), http.StatusCreated)
	steps := []stepRequest{
		{Values: map[string][]string{
			model.FieldDataTitle: {"run 1"},
			model.FieldDataType:  {"titan"},
			model.FieldSampleID:  {"SA501"},
		}},
		{},
		{Values: map[string][]string{"coordinate": {"chr1:10-20"}}},
		{NodeType: "violin", Values: map[string][]string{model.FieldTitle: {"Copy number"}}},
	}
	for i, s := range steps {
		expect(t, do(t, ts, "POST", "/api/structures/steps/"+strconv.Itoa(i)+"/advance", s), http.StatusOK)
	}
	resp := do(t, ts, "POST", "/api/structures/commit", nil)
	expect(t, resp, http.StatusOK)
	return decode[*structure.Result](t, resp)
}

func TestStructureLifecycle(t *testing.T) {
	ts := newTestServer(t, false)
	res := commitBasic(t, ts)
	if len(res.Nodes) != 4 {
		t.Fatalf("committed %v, want 4 nodes", res.Nodes)
	}

	resp := do(t, ts, "GET", "/api/nodes", nil)
	expect(t, resp, http.StatusOK)
	if nodes := decode[[]*model.Node](t, resp); len(nodes) != 4 {
		t.Errorf("GET /api/nodes returned %d nodes", len(nodes))
	}

	resp = do(t, ts, "GET", "/api/diagram", nil)
	expect(t, resp, http.StatusOK)
	if el := decode[*model.Elements](t, resp); len(el.Edges) != 3 {
		t.Errorf("diagram has %d edges, want 3", len(el.Edges))
	}

	view := res.Nodes[3]
	resp = do(t, ts, "DELETE", "/api/nodes/"+strconv.FormatInt(view, 10)+"?cascade=true", nil)
	expect(t, resp, http.StatusOK)
	del := decode[deletion.Result](t, resp)
	if len(del.Removed) != 4 {
		t.Errorf("cascading delete removed %v, want all 4 nodes", del.Removed)
	}
}

func TestErrorStatuses(t *testing.T) {
	ts := newTestServer(t, false)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"missing node", "GET", "/api/nodes/42", nil, http.StatusNotFound},
		{"unknown structure", "POST", "/api/structures/nope", nil, http.StatusNotFound},
		{"advance without wizard", "POST", "/api/structures/steps/0/advance", stepRequest{}, http.StatusConflict},
		{"bad cascade flag", "DELETE", "/api/nodes/1?cascade=maybe", nil, http.StatusBadRequest},
		{"invalid portrait", "PUT", "/api/portrait", map[string]any{"nodes": nil}, http.StatusBadRequest},
		{"storage disabled", "GET", "/api/portraits", nil, http.StatusServiceUnavailable},
		{"unknown topic", "GET", "/api/subscribe/nope", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expect(t, do(t, ts, tt.method, tt.path, tt.body), tt.want)
		})
	}
}

func TestValidationFailureReturnsFields(t *testing.T) {
	ts := newTestServer(t, false)
	expect(t, do(t, ts, "POST", "/api/structures/basic", nil), http.StatusCreated)

	resp := do(t, ts, "POST", "/api/structures/steps/0/advance",
		stepRequest{Values: map[string][]string{model.FieldDataType: {"titan"}}})
	expect(t, resp, http.StatusUnprocessableEntity)

	body := decode[errorBody](t, resp)
	want := []model.FieldError{
		{FieldID: model.FieldDataTitle, ESID: ""},
		{FieldID: model.FieldSampleID, ESID: "sample_id"},
	}
	if diff := cmp.Diff(want, body.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestEditField(t *testing.T) {
	ts := newTestServer(t, false)
	res := commitBasic(t, ts)

	resp := do(t, ts, "PUT", "/api/nodes/"+strconv.FormatInt(res.Nodes[1], 10)+"/fields/titan-state",
		fieldEdit{Values: []string{"AMP"}})
	expect(t, resp, http.StatusOK)
	edit := decode[editor.EditResult](t, resp)
	if diff := cmp.Diff([]int64{res.Nodes[3]}, edit.Stale); diff != "" {
		t.Errorf("stale mismatch (-want +got):\n%s", diff)
	}
}

func TestNamedPortraits(t *testing.T) {
	ts := newTestServer(t, true)
	commitBasic(t, ts)

	expect(t, do(t, ts, "PUT", "/api/portraits/tp53", nil), http.StatusNoContent)

	resp := do(t, ts, "GET", "/api/portraits", nil)
	expect(t, resp, http.StatusOK)
	if list := decode[[]portrait.Summary](t, resp); len(list) != 1 || list[0].Name != "tp53" {
		t.Errorf("portraits = %v", list)
	}

	// a fresh portrait replaces the current one, then the saved one comes back
	expect(t, do(t, ts, "PUT", "/api/portrait", map[string]any{"nodes": map[string]any{}}), http.StatusOK)
	resp = do(t, ts, "GET", "/api/nodes", nil)
	if nodes := decode[[]*model.Node](t, resp); len(nodes) != 0 {
		t.Fatalf("portrait not replaced, %d nodes left", len(nodes))
	}

	expect(t, do(t, ts, "POST", "/api/portraits/tp53/restore", nil), http.StatusOK)
	resp = do(t, ts, "GET", "/api/nodes", nil)
	if nodes := decode[[]*model.Node](t, resp); len(nodes) != 4 {
		t.Errorf("restored %d nodes, want 4", len(nodes))
	}

	expect(t, do(t, ts, "DELETE", "/api/portraits/tp53", nil), http.StatusNoContent)
	expect(t, do(t, ts, "GET", "/api/portraits/tp53", nil), http.StatusNotFound)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, false)
	expect(t, do(t, ts, "GET", "/api/nodes", nil), http.StatusOK)

	resp := do(t, ts, "GET", "/metrics", nil)
	expect(t, resp, http.StatusOK)
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), `montage_http_requests_total{method="GET",route="/api/nodes",status="200"}`) {
		t.Error("request counter for /api/nodes not exported")
	}
}
