package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestProjectStatusTerminal(t *testing.T) {
	// Единственный терминальный статус проекта — COMPLETED.
	// FAILED оставляет оператору retry/skip.
	for _, s := range []ProjectStatus{
		ProjectStatusPending, ProjectStatusQueued, ProjectStatusRunning,
		ProjectStatusPaused, ProjectStatusReview, ProjectStatusFailed,
	} {
		if s.IsTerminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
	if !ProjectStatusCompleted.IsTerminal() {
		t.Error("COMPLETED must be terminal")
	}
}

func TestStepStatusTerminalAndBlocks(t *testing.T) {
	terminal := map[StepStatus]bool{
		StepStatusCompleted: true,
		StepStatusSkipped:   true,
	}
	blocks := map[StepStatus]bool{
		StepStatusReview: true,
		StepStatusFailed: true,
	}

	all := []StepStatus{
		StepStatusPending, StepStatusRunning, StepStatusCompleted,
		StepStatusReview, StepStatusFailed, StepStatusSkipped,
	}
	for _, s := range all {
		if got := s.IsTerminal(); got != terminal[s] {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, got, terminal[s])
		}
		if got := s.Blocks(); got != blocks[s] {
			t.Errorf("%s.Blocks() = %v, want %v", s, got, blocks[s])
		}
	}
}

func TestProjectMarkRunningKeepsFirstStart(t *testing.T) {
	p := &Project{Status: ProjectStatusPending}

	p.MarkRunning()
	if p.StartedAt == nil {
		t.Fatal("StartedAt not set on first run")
	}
	first := *p.StartedAt

	p.MarkPaused()
	p.MarkRunning()
	if !p.StartedAt.Equal(first) {
		t.Error("StartedAt changed on restart")
	}
	if p.Paused {
		t.Error("MarkRunning must clear the pause flag")
	}
}

func TestStepRunRetryCountCumulative(t *testing.T) {
	run := &StepRun{Status: StepStatusPending}

	run.MarkRunning()
	if run.FirstAttemptAt == nil {
		t.Fatal("FirstAttemptAt not set")
	}
	firstAttempt := *run.FirstAttemptAt

	run.MarkFailed("boom")
	if run.RetryCount != 1 {
		t.Errorf("RetryCount = %d after first failure, want 1", run.RetryCount)
	}

	run.ResetForRetry()
	if run.Status != StepStatusPending {
		t.Errorf("status after reset = %s, want PENDING", run.Status)
	}
	if run.RetryCount != 1 {
		t.Errorf("RetryCount = %d after reset, want 1 (cumulative)", run.RetryCount)
	}

	run.MarkRunning()
	if !run.FirstAttemptAt.Equal(firstAttempt) {
		t.Error("FirstAttemptAt changed on retry")
	}

	run.MarkFailed("boom again")
	if run.RetryCount != 2 {
		t.Errorf("RetryCount = %d after second failure, want 2", run.RetryCount)
	}

	run.ResetForRetry()
	run.MarkRunning()
	run.MarkCompleted(map[string]any{"out": "ok"})
	if run.RetryCount != 2 {
		t.Errorf("RetryCount = %d after success, want 2 (never reset)", run.RetryCount)
	}
}

func TestStepRunApprove(t *testing.T) {
	run := &StepRun{Status: StepStatusPending}
	run.MarkRunning()
	run.MarkReview(map[string]any{"script": "draft"})

	if run.Status != StepStatusReview {
		t.Fatalf("status = %s, want REVIEW", run.Status)
	}
	if run.Result["script"] != "draft" {
		t.Errorf("result not kept: %v", run.Result)
	}

	run.MarkApproved()
	if run.Status != StepStatusCompleted {
		t.Errorf("status after approve = %s, want COMPLETED", run.Status)
	}
	// Approve не трогает результат: payload остаётся как был.
	if run.Result["script"] != "draft" {
		t.Errorf("approve modified result: %v", run.Result)
	}
}

func TestNodeTimeout(t *testing.T) {
	node := &PipelineNode{}
	if got := node.Timeout(0); got != 0 {
		t.Errorf("unset timeout = %v", got)
	}
	node.TimeoutSec = 90
	if got := node.Timeout(0).Seconds(); got != 90 {
		t.Errorf("timeout = %vs, want 90s", got)
	}
}

func TestNodeMergedConfig(t *testing.T) {
	node := &PipelineNode{
		Config: map[string]any{"model": "gpt-4o-mini", "extra": true},
		Definition: &StepDefinition{
			DefaultConfig: map[string]any{"model": "gpt-4o", "temperature": 0.5},
		},
	}

	merged := node.MergedConfig()
	if merged["model"] != "gpt-4o-mini" {
		t.Errorf("node override lost: %v", merged["model"])
	}
	if merged["temperature"] != 0.5 {
		t.Errorf("default lost: %v", merged["temperature"])
	}
	if merged["extra"] != true {
		t.Errorf("node-only key lost: %v", merged["extra"])
	}
}

func TestInputDescriptorWirable(t *testing.T) {
	if (InputDescriptor{Key: "transcript"}).Wirable() != true {
		t.Error("step-sourced input must be wirable")
	}
	if (InputDescriptor{Key: "topic", Source: "project"}).Wirable() {
		t.Error("project-sourced input must not be wirable")
	}
}

func TestStepDefinitionValidate(t *testing.T) {
	valid := &StepDefinition{Slug: "script-writer", Name: "Script Writer", Executor: "prompt"}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid definition rejected: %v", err)
	}

	for name, def := range map[string]*StepDefinition{
		"missing slug":     {Name: "X", Executor: "prompt"},
		"missing executor": {Slug: "x", Name: "X"},
	} {
		if err := def.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestAddFeedback(t *testing.T) {
	p := &Project{ID: uuid.New()}
	p.AddFeedback(3, "tighten the intro")
	p.AddFeedback(3, "now add music notes")

	if len(p.FeedbackHistory) != 2 {
		t.Fatalf("history = %d entries, want 2", len(p.FeedbackHistory))
	}
	if p.FeedbackHistory[0].Position != 3 || p.FeedbackHistory[0].Text != "tighten the intro" {
		t.Errorf("first entry = %+v", p.FeedbackHistory[0])
	}
}
