package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/JoshPattman/resumestudio/agents"
	"github.com/JoshPattman/resumestudio/datamodels"
	"github.com/JoshPattman/resumestudio/storage"
	"github.com/JoshPattman/resumestudio/studio"
)

type scriptedAgents struct {
	extractions []string
}

func (a *scriptedAgents) Extract(_ context.Context, _, feedback string) (datamodels.Qualifications, error) {
	a.extractions = append(a.extractions, feedback)
	q := datamodels.Qualifications{Required: []string{"Go"}}
	if feedback != "" {
		q.Required = append(q.Required, feedback)
	}
	return q, nil
}

func (a *scriptedAgents) Draft(_ context.Context, req agents.DraftRequest) (string, error) {
	return "draft with " + strings.Join(req.Qualifications.Required, ", "), nil
}

func (a *scriptedAgents) Review(context.Context, string) (string, error) {
	return "add metrics", nil
}

func (a *scriptedAgents) Finalize(_ context.Context, req agents.FinalRequest) (string, error) {
	return "FINAL: " + req.Draft, nil
}

func newTestStudio(t *testing.T, a *scriptedAgents) *studio.Studio {
	t.Helper()
	s, err := studio.New(agents.Agents{
		Extractor: a,
		Drafter:   a,
		Critic:    a,
		APIEditor: agents.APIEditor{},
		Finalizer: a,
	}, storage.NewMemoryStore(), slog.New(slog.NewTextHandler(io.Discard, nil)), studio.Options{})
	if err != nil {
		t.Fatalf("new studio: %v", err)
	}
	return s
}

func TestSessionLoopsUntilApproved(t *testing.T) {
	a := &scriptedAgents{}
	var out bytes.Buffer
	session := NewSession(newTestStudio(t, a), strings.NewReader("Kubernetes\nOK\n"), &out)

	th, err := session.Run(context.Background(), studio.StartRequest{JobPost: "Platform engineer"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !th.Finished() {
		t.Fatalf("expected finished thread, got %s", th.Status)
	}
	if len(a.extractions) != 2 || a.extractions[1] != "Kubernetes" {
		t.Fatalf("unexpected extractions %v", a.extractions)
	}
	printed := out.String()
	if strings.Count(printed, "Required qualifications:") != 2 {
		t.Fatalf("qualifications should be shown twice:\n%s", printed)
	}
	if !strings.Contains(printed, "FINAL: draft with Go, Kubernetes") {
		t.Fatalf("final resume not printed:\n%s", printed)
	}
}

func TestSessionApprovesOnEndOfInput(t *testing.T) {
	a := &scriptedAgents{}
	var out bytes.Buffer
	th, err := NewSession(newTestStudio(t, a), strings.NewReader(""), &out).Run(context.Background(), studio.StartRequest{JobPost: "x"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !th.Finished() || len(a.extractions) != 1 {
		t.Fatalf("expected approval on EOF, status %s extractions %v", th.Status, a.extractions)
	}
}
