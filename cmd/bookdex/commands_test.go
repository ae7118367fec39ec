package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		httpClient: ts.server.Client(),
	}
}

// withTestClient points the CLI at the test server for one test.
func withTestClient(t *testing.T, ts *testServer) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) {
		return ts.client(), nil
	}
	t.Cleanup(func() { newAPIClient = old })
}

var ctx = context.Background()

func TestAddBookPost(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /books": `{"id":7}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/books", map[string]any{
		"title":       "Dune",
		"author_id":   int64(2),
		"category_id": int64(3),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]int64
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["id"] != 7 {
		t.Errorf("id = %d, want 7", result["id"])
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["title"] != "Dune" {
		t.Errorf("body.title = %v, want Dune", body["title"])
	}
	if body["author_id"].(float64) != 2 {
		t.Errorf("body.author_id = %v, want 2", body["author_id"])
	}
}

func TestSearchCommand_SemanticQuery(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /search": `{"mode":"semantic","results":[{"id":1,"title":"Dune","authors":"Frank Herbert","score":0.87}]}`,
	})
	withTestClient(t, ts)
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"search", "desert", "epics"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	u, err := url.Parse(ts.requests[0].Path)
	if err != nil {
		t.Fatalf("parsing request path: %v", err)
	}
	if got := u.Query().Get("nlp"); got != "desert epics" {
		t.Errorf("nlp = %q, want joined args", got)
	}
}

func TestSearchCommand_StructuredFlags(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /search": `{"mode":"structured","results":[]}`,
	})
	withTestClient(t, ts)
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"search", "--title", "dune", "--author", "3", "--sort", "publisher", "--desc"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	u, err := url.Parse(ts.requests[0].Path)
	if err != nil {
		t.Fatalf("parsing request path: %v", err)
	}
	q := u.Query()
	if q.Get("title") != "dune" || q.Get("author_id") != "3" {
		t.Errorf("query = %v", q)
	}
	if q.Get("sort_by") != "publisher" || q.Get("sort_dir") != "desc" {
		t.Errorf("sort params = %v", q)
	}
	if q.Get("nlp") != "" {
		t.Errorf("nlp = %q, want empty", q.Get("nlp"))
	}
}

func TestAddCommand_RequiresIDs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"add", "Dune"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing --author/--category")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("err = %v, want mention of required flags", err)
	}
}

func TestReindexCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /reindex": `{"status":"scheduled"}`,
	})
	withTestClient(t, ts)
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"reindex"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if len(ts.requests) != 1 || ts.requests[0].Method != "POST" {
		t.Fatalf("requests = %+v", ts.requests)
	}
}

func TestDecodeJSON_ErrorStatus(t *testing.T) {
	ts := newTestServer(t, nil)

	client := ts.client()
	resp, err := client.get(ctx, "/nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var v any
	err = decodeJSON(resp, &v)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("err = %v, want status code in message", err)
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}
