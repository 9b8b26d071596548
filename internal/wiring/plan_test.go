package wiring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/Montage/internal/domain"
)

func makeNode(position int, slug string, outputs []string, inputs []domain.InputDescriptor) domain.PipelineNode {
	def := &domain.StepDefinition{
		Slug:     slug,
		Name:     slug,
		Executor: "manual",
		Inputs:   inputs,
	}
	for _, key := range outputs {
		def.Outputs = append(def.Outputs, domain.OutputDescriptor{Key: key})
	}
	return domain.PipelineNode{
		ID:         uuid.New(),
		Position:   position,
		StepSlug:   slug,
		IsActive:   true,
		Definition: def,
	}
}

func required(key string) domain.InputDescriptor {
	return domain.InputDescriptor{Key: key, Required: true}
}

func TestBuildPlan_SimpleChain(t *testing.T) {
	pipelineID := uuid.New()
	nodes := []domain.PipelineNode{
		makeNode(1, "transcript-fetch", []string{"transcript"}, nil),
		makeNode(2, "script-writer", []string{"script"}, []domain.InputDescriptor{required("transcript")}),
		makeNode(3, "voiceover", nil, []domain.InputDescriptor{required("script")}),
	}

	plan, err := BuildPlan(pipelineID, nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(plan.Connections) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(plan.Connections))
	}
	if len(plan.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", plan.Warnings)
	}

	if plan.Connections[0].SourceNodeID != nodes[0].ID || plan.Connections[0].TargetNodeID != nodes[1].ID {
		t.Error("first connection should be transcript-fetch → script-writer")
	}
	if plan.Connections[1].SourceNodeID != nodes[1].ID || plan.Connections[1].TargetNodeID != nodes[2].ID {
		t.Error("second connection should be script-writer → voiceover")
	}
}

func TestBuildPlan_Acyclicity(t *testing.T) {
	// Every edge must point forward: position(source) < position(target).
	pipelineID := uuid.New()
	nodes := []domain.PipelineNode{
		makeNode(1, "a", []string{"x", "y"}, []domain.InputDescriptor{required("y")}),
		makeNode(2, "b", []string{"y"}, []domain.InputDescriptor{required("x")}),
		makeNode(3, "c", nil, []domain.InputDescriptor{required("x"), required("y")}),
	}

	plan, err := BuildPlan(pipelineID, nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	positionOf := make(map[uuid.UUID]int)
	for _, n := range nodes {
		positionOf[n.ID] = n.Position
	}

	for _, conn := range plan.Connections {
		if positionOf[conn.SourceNodeID] >= positionOf[conn.TargetNodeID] {
			t.Errorf("edge points backward: %d → %d",
				positionOf[conn.SourceNodeID], positionOf[conn.TargetNodeID])
		}
	}
}

func TestBuildPlan_NearestProducerWins(t *testing.T) {
	// Producers of "script" at positions 1 and 3; consumer at 4.
	// The producer at position 3 must be selected.
	pipelineID := uuid.New()
	nodes := []domain.PipelineNode{
		makeNode(1, "draft", []string{"script"}, nil),
		makeNode(2, "unrelated", []string{"audio"}, nil),
		makeNode(3, "rewrite", []string{"script"}, nil),
		makeNode(4, "voiceover", nil, []domain.InputDescriptor{required("script")}),
	}

	plan, err := BuildPlan(pipelineID, nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(plan.Connections) != 1 {
		t.Fatalf("expected 1 connection, got %d", len(plan.Connections))
	}
	if plan.Connections[0].SourceNodeID != nodes[2].ID {
		t.Error("expected the producer at position 3 (nearest), not position 1")
	}
}

func TestBuildPlan_AtMostOneProducerPerInput(t *testing.T) {
	pipelineID := uuid.New()
	nodes := []domain.PipelineNode{
		makeNode(1, "a", []string{"script"}, nil),
		makeNode(2, "b", []string{"script"}, nil),
		makeNode(3, "c", []string{"script"}, nil),
		makeNode(4, "consumer", nil, []domain.InputDescriptor{required("script")}),
	}

	plan, err := BuildPlan(pipelineID, nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	perInput := make(map[string]int)
	for _, conn := range plan.Connections {
		perInput[conn.TargetNodeID.String()+"|"+conn.TargetInputKey]++
	}
	for key, count := range perInput {
		if count > 1 {
			t.Errorf("input %s has %d producers, want at most 1", key, count)
		}
	}
}

func TestBuildPlan_NoProducerLeavesGap(t *testing.T) {
	// Consumer at position 1 requires "x" with no preceding producer:
	// no connection, a warning, and wiring continues for other nodes.
	pipelineID := uuid.New()
	nodes := []domain.PipelineNode{
		makeNode(1, "orphan", []string{"transcript"}, []domain.InputDescriptor{required("x")}),
		makeNode(2, "consumer", nil, []domain.InputDescriptor{required("transcript")}),
	}

	plan, err := BuildPlan(pipelineID, nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(plan.Connections) != 1 {
		t.Fatalf("expected 1 connection for the other node, got %d", len(plan.Connections))
	}
	if len(plan.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(plan.Warnings))
	}
	if plan.Warnings[0].InputKey != "x" || plan.Warnings[0].Position != 1 {
		t.Errorf("unexpected warning: %+v", plan.Warnings[0])
	}
}

func TestBuildPlan_OptionalInputNoWarning(t *testing.T) {
	pipelineID := uuid.New()
	nodes := []domain.PipelineNode{
		makeNode(1, "solo", []string{"out"}, []domain.InputDescriptor{{Key: "maybe", Required: false}}),
	}

	plan, err := BuildPlan(pipelineID, nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Warnings) != 0 {
		t.Errorf("optional input should not warn, got %v", plan.Warnings)
	}
}

func TestBuildPlan_ProjectSourceExcluded(t *testing.T) {
	// Inputs with source="project" come from project data, not from steps.
	pipelineID := uuid.New()
	nodes := []domain.PipelineNode{
		makeNode(1, "a", []string{"project_form"}, nil),
		makeNode(2, "b", nil, []domain.InputDescriptor{
			{Key: "project_form", Required: true, Source: domain.InputSourceProject},
		}),
	}

	plan, err := BuildPlan(pipelineID, nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Connections) != 0 {
		t.Errorf("project-sourced input must not be wired, got %d connections", len(plan.Connections))
	}
	if len(plan.Warnings) != 0 {
		t.Errorf("project-sourced input must not warn, got %v", plan.Warnings)
	}
}

func TestBuildPlan_DeduplicatesRepeatedKeys(t *testing.T) {
	// Two required inputs with the same key collapse into one edge.
	pipelineID := uuid.New()
	nodes := []domain.PipelineNode{
		makeNode(1, "a", []string{"script"}, nil),
		makeNode(2, "b", nil, []domain.InputDescriptor{required("script"), required("script")}),
	}

	plan, err := BuildPlan(pipelineID, nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Connections) != 1 {
		t.Errorf("expected 1 deduplicated connection, got %d", len(plan.Connections))
	}
}

func TestBuildPlan_IdempotentRebuild(t *testing.T) {
	pipelineID := uuid.New()
	nodes := []domain.PipelineNode{
		makeNode(1, "research", []string{"research"}, nil),
		makeNode(2, "script", []string{"script"}, []domain.InputDescriptor{required("research")}),
		makeNode(3, "prompts", []string{"prompts"}, []domain.InputDescriptor{required("script")}),
		makeNode(4, "render", nil, []domain.InputDescriptor{required("prompts"), required("script")}),
	}

	first, err := BuildPlan(pipelineID, nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := BuildPlan(pipelineID, nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(first.Connections) != len(second.Connections) {
		t.Fatalf("rebuild changed cardinality: %d vs %d", len(first.Connections), len(second.Connections))
	}
	for i := range first.Connections {
		a, b := first.Connections[i], second.Connections[i]
		if a.SourceNodeID != b.SourceNodeID || a.TargetNodeID != b.TargetNodeID || a.OutputKey != b.OutputKey {
			t.Errorf("connection %d differs between rebuilds", i)
		}
	}
}

func TestBuildPlan_DuplicatePosition(t *testing.T) {
	pipelineID := uuid.New()
	nodes := []domain.PipelineNode{
		makeNode(1, "a", []string{"x"}, nil),
		makeNode(1, "b", nil, []domain.InputDescriptor{required("x")}),
	}

	_, err := BuildPlan(pipelineID, nodes)
	if !errors.Is(err, ErrDuplicatePosition) {
		t.Errorf("expected ErrDuplicatePosition, got %v", err)
	}
}

func TestBuildPlan_EmptyNodes(t *testing.T) {
	_, err := BuildPlan(uuid.New(), nil)
	if !errors.Is(err, ErrNoNodes) {
		t.Errorf("expected ErrNoNodes, got %v", err)
	}
}

// --- Engine commit tests ---

// fakeConnStore считает вызовы и умеет падать на выбранных ключах.
type fakeConnStore struct {
	deleted   int
	created   []domain.Connection
	failOnKey string
}

func (f *fakeConnStore) DeleteByPipeline(ctx context.Context, pipelineID uuid.UUID) (int, error) {
	f.deleted++
	n := len(f.created)
	f.created = nil
	return n, nil
}

func (f *fakeConnStore) Create(ctx context.Context, conn *domain.Connection) error {
	if conn.OutputKey == f.failOnKey {
		return fmt.Errorf("insert failed for %s", conn.OutputKey)
	}
	f.created = append(f.created, *conn)
	return nil
}

func TestEngine_Rewire_ReplacesConnections(t *testing.T) {
	store := &fakeConnStore{}
	engine := NewEngine(store, slog.Default())

	pipelineID := uuid.New()
	nodes := []domain.PipelineNode{
		makeNode(1, "a", []string{"script"}, nil),
		makeNode(2, "b", nil, []domain.InputDescriptor{required("script")}),
	}

	_, outcomes, err := engine.Rewire(context.Background(), pipelineID, nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.deleted != 1 {
		t.Error("existing connections should be deleted before insert")
	}
	if len(store.created) != 1 {
		t.Errorf("expected 1 created connection, got %d", len(store.created))
	}
	if len(outcomes) != 1 || outcomes[0].Err != nil {
		t.Errorf("unexpected outcomes: %+v", outcomes)
	}
}

func TestEngine_Rewire_PartialCommitContinues(t *testing.T) {
	store := &fakeConnStore{failOnKey: "script"}
	engine := NewEngine(store, slog.Default())

	pipelineID := uuid.New()
	nodes := []domain.PipelineNode{
		makeNode(1, "a", []string{"script", "audio"}, nil),
		makeNode(2, "b", nil, []domain.InputDescriptor{required("script"), required("audio")}),
	}

	_, outcomes, err := engine.Rewire(context.Background(), pipelineID, nodes)
	if err != nil {
		t.Fatalf("partial insert failure must not fail the run: %v", err)
	}

	var failed, ok int
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		} else {
			ok++
		}
	}
	if failed != 1 || ok != 1 {
		t.Errorf("expected 1 failed + 1 ok outcome, got %d failed, %d ok", failed, ok)
	}
}
