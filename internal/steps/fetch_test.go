package steps

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchExecutor_JSONContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Api-Key"); got != "secret" {
			t.Errorf("header X-Api-Key = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"title": "Bees", "duration": 42}`))
	}))
	defer server.Close()

	executor := NewFetchExecutor()

	resp, err := executor.Execute(context.Background(), &Request{
		Config: map[string]any{
			"url":        server.URL,
			"output_key": "source",
			"headers":    map[string]any{"X-Api-Key": "secret"},
		},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	content, ok := resp.Output["source"].(map[string]any)
	if !ok {
		t.Fatalf("JSON body not parsed: %T", resp.Output["source"])
	}
	if content["title"] != "Bees" {
		t.Errorf("content = %v", content)
	}
	if resp.Output["status_code"] != http.StatusOK {
		t.Errorf("status_code = %v", resp.Output["status_code"])
	}
}

func TestFetchExecutor_TextContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("raw transcript"))
	}))
	defer server.Close()

	executor := NewFetchExecutor()

	resp, err := executor.Execute(context.Background(), &Request{
		Config: map[string]any{"url": server.URL, "output_key": "transcript"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resp.Output["transcript"] != "raw transcript" {
		t.Errorf("output = %v", resp.Output)
	}
}

func TestFetchExecutor_URLFromInput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	executor := NewFetchExecutor()

	resp, err := executor.Execute(context.Background(), &Request{
		Config: map[string]any{
			"url_input":  "source_url",
			"output_key": "content",
		},
		Inputs: map[string]any{"source_url": server.URL},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resp.Output["content"] != "ok" {
		t.Errorf("output = %v", resp.Output)
	}
}

func TestFetchExecutor_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	executor := NewFetchExecutor()

	_, err := executor.Execute(context.Background(), &Request{
		Config: map[string]any{"url": server.URL, "output_key": "content"},
	})
	if err == nil {
		t.Fatal("expected error on HTTP 404")
	}
}

func TestFetchExecutor_ConfigValidation(t *testing.T) {
	executor := NewFetchExecutor()

	_, err := executor.Execute(context.Background(), &Request{
		Config: map[string]any{"url": "http://example.com"},
	})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("missing output_key: expected ErrInvalidConfig, got %v", err)
	}

	_, err = executor.Execute(context.Background(), &Request{
		Config: map[string]any{"output_key": "content"},
	})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("missing url: expected ErrInvalidConfig, got %v", err)
	}
}

func TestManualExecutor_Passthrough(t *testing.T) {
	executor := NewManualExecutor()

	resp, err := executor.Execute(context.Background(), &Request{
		Inputs: map[string]any{"script": "draft", "scenes": []any{"s1"}},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resp.Output["script"] != "draft" {
		t.Errorf("inputs not passed through: %v", resp.Output)
	}
	if len(resp.Output) != 2 {
		t.Errorf("output has %d keys, want 2", len(resp.Output))
	}
}

func TestRegistry(t *testing.T) {
	registry := DefaultRegistry()

	for _, name := range []string{ExecutorPrompt, ExecutorFetch, ExecutorManual} {
		if !registry.Has(name) {
			t.Errorf("default registry missing %s", name)
		}
	}

	if _, err := registry.Get("nonexistent"); !errors.Is(err, ErrExecutorNotFound) {
		t.Errorf("expected ErrExecutorNotFound, got %v", err)
	}

	executor, err := registry.Get(ExecutorManual)
	if err != nil {
		t.Fatalf("get manual: %v", err)
	}
	if executor.Name() != ExecutorManual {
		t.Errorf("name = %s", executor.Name())
	}
}
