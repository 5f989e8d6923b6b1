package agents

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/JoshPattman/resumestudio/datamodels"
	"google.golang.org/genai"
)

type scriptedGenerator struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests [][]*genai.Content
	configs  []*genai.GenerateContentConfig
}

func (g *scriptedGenerator) GenerateContent(_ context.Context, _ string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, slices.Clone(contents))
	g.configs = append(g.configs, config)
	if g.err != nil {
		return nil, g.err
	}
	if len(g.replies) == 0 {
		return nil, errors.New("no scripted reply left")
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: reply}}},
		}},
	}, nil
}

func contentText(c *genai.Content) string {
	var sb strings.Builder
	for _, p := range c.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGeminiExtractorCleansAndUsesFeedback(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		"Here you go:\n```json\n{\"required\": [\" Go \", \"go\", \"AWS\", \"\"], \"preferred\": [\"Power BI\"]}\n```",
	}}
	agents := NewGeminiAgents(gen, "gemini-test", 0, discardLogger())

	q, err := agents.Extractor.Extract(context.Background(), "Backend engineer, Go and AWS", "  also Kubernetes ")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !slices.Equal(q.Required, []string{"Go", "AWS"}) {
		t.Fatalf("unexpected required: %v", q.Required)
	}
	if !slices.Equal(q.Preferred, []string{"Power BI"}) {
		t.Fatalf("unexpected preferred: %v", q.Preferred)
	}
	system := contentText(gen.configs[0].SystemInstruction)
	if !strings.Contains(system, "Backend engineer, Go and AWS") {
		t.Fatalf("job post missing from prompt: %s", system)
	}
	if !strings.Contains(system, "also Kubernetes") {
		t.Fatalf("human feedback missing from prompt: %s", system)
	}
	if gen.configs[0].ResponseMIMEType != "application/json" {
		t.Fatalf("expected JSON response type, got %q", gen.configs[0].ResponseMIMEType)
	}
}

func TestGeminiRetriesInvalidReplies(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		`{"resume": "   "}`,
		`{"resume": "# Jane Doe\n- Cut latency 40%"}`,
	}}
	agents := NewGeminiAgents(gen, "gemini-test", 0, discardLogger())

	draft, err := agents.Drafter.Draft(context.Background(), DraftRequest{
		JobPost:        "SRE",
		Qualifications: datamodels.Qualifications{Required: []string{"Linux"}},
		ResumeInput:    "Jane Doe, SRE",
		Feedback:       []string{"quantify impact"},
	})
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if draft != "# Jane Doe\n- Cut latency 40%" {
		t.Fatalf("unexpected draft %q", draft)
	}
	if len(gen.requests) != 2 {
		t.Fatalf("expected a retry, got %d requests", len(gen.requests))
	}
	retry := gen.requests[1]
	if len(retry) != 3 {
		t.Fatalf("expected original prompt, rejected reply and feedback, got %d contents", len(retry))
	}
	if !strings.Contains(contentText(retry[2]), `"resume" field`) {
		t.Fatalf("retry did not explain the problem: %s", contentText(retry[2]))
	}
	system := contentText(gen.configs[0].SystemInstruction)
	for _, want := range []string{"- Linux", "Jane Doe, SRE", "quantify impact"} {
		if !strings.Contains(system, want) {
			t.Fatalf("draft prompt missing %q:\n%s", want, system)
		}
	}
}

func TestGeminiGivesUpAfterMaxAttempts(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"nope", "still nope", "{}"}}
	agents := NewGeminiAgents(gen, "gemini-test", 0, discardLogger())
	if _, err := agents.Critic.Review(context.Background(), "draft"); err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if len(gen.requests) != geminiMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", geminiMaxAttempts, len(gen.requests))
	}
}

func TestGeminiPropagatesTransportErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	gen := &scriptedGenerator{err: boom}
	agents := NewGeminiAgents(gen, "gemini-test", 0, discardLogger())
	_, err := agents.Finalizer.Finalize(context.Background(), FinalRequest{Draft: "d"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestAPIEditorStub(t *testing.T) {
	fb, err := APIEditor{}.Review(context.Background(), "anything")
	if err != nil || fb != NoAPIFeedback {
		t.Fatalf("unexpected stub result %q, %v", fb, err)
	}
}

func TestExtractJSONObject(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                      `{"a":1}`,
		"```json\n{\"a\":1}\n```":      `{"a":1}`,
		`Sure! {"a":{"b":2}} Thanks.`:  `{"a":{"b":2}}`,
		"":                             "",
		"no json":                      "no json",
	}
	for in, want := range cases {
		if got := extractJSONObject(in); got != want {
			t.Fatalf("extractJSONObject(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateQualifications(t *testing.T) {
	if err := validateQualifications(datamodels.Qualifications{Required: []string{" "}}); err == nil {
		t.Fatalf("expected blank-only qualifications to be rejected")
	}
	if err := validateQualifications(datamodels.Qualifications{Preferred: []string{"Go"}}); err != nil {
		t.Fatalf("expected preferred-only qualifications to pass: %v", err)
	}
}

func TestTemplatesRender(t *testing.T) {
	out, err := renderTemplate("final_system", FinalRequest{
		Draft:          "DRAFT",
		Feedback:       []string{"fb1", "fb2"},
		Qualifications: datamodels.Qualifications{Required: []string{"Go"}, Preferred: []string{"AWS"}},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"DRAFT", "fb1", "fb2", "- Go", "- AWS"} {
		if !strings.Contains(out, want) {
			t.Fatalf("final prompt missing %q:\n%s", want, out)
		}
	}
	out, err = renderTemplate("qualification_system", extractionInput{JobPost: "JP"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "(none)") {
		t.Fatalf("expected placeholder for missing feedback:\n%s", out)
	}
}
