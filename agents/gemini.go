package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JoshPattman/resumestudio/datamodels"
	"google.golang.org/genai"
)

const geminiMaxAttempts = 3

// ContentGenerator is the part of the genai client the Gemini agents use.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewGeminiClient creates a genai client for the Gemini API.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

// NewGeminiAgents builds every role on Gemini. Replies are requested as JSON;
// undecodable or invalid replies are sent back with the error for another
// attempt, mirroring the OpenAI agents.
func NewGeminiAgents(gen ContentGenerator, model string, temperature float64, logger *slog.Logger) Agents {
	g := &geminiAgent{gen: gen, model: model, temperature: float32(temperature), logger: logger}
	return Agents{
		Extractor: &geminiExtractor{g},
		Drafter:   &geminiDrafter{g},
		Critic:    &geminiCritic{g},
		APIEditor: APIEditor{},
		Finalizer: &geminiFinalizer{g},
	}
}

type geminiAgent struct {
	gen         ContentGenerator
	model       string
	temperature float32
	logger      *slog.Logger
}

// call renders the system and user templates for data and decodes the JSON
// reply into out, retrying with feedback when validate rejects it.
func (g *geminiAgent) call(ctx context.Context, role, systemTmpl, userTmpl string, data any, out any, validate func() error) error {
	system, err := renderTemplate(systemTmpl, data)
	if err != nil {
		return fmt.Errorf("render %s: %w", systemTmpl, err)
	}
	user, err := renderTemplate(userTmpl, data)
	if err != nil {
		return fmt.Errorf("render %s: %w", userTmpl, err)
	}
	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(g.temperature),
		ResponseMIMEType:  "application/json",
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}
	contents := []*genai.Content{genai.NewContentFromText(user, genai.RoleUser)}
	logger := g.logger.With("role", role, "model", g.model)

	var errs []error
	for attempt := range geminiMaxAttempts {
		resp, err := g.gen.GenerateContent(ctx, g.model, contents, config)
		if err != nil {
			return err
		}
		text := resp.Text()
		logger.Debug("Model responded", "attempt", attempt, "chars", len(text))
		err = json.Unmarshal([]byte(extractJSONObject(text)), out)
		if err == nil {
			err = validate()
		}
		if err == nil {
			return nil
		}
		logger.Warn("Rejected model response", "attempt", attempt, "err", err)
		errs = append(errs, err)
		contents = append(contents,
			genai.NewContentFromText(text, genai.RoleModel),
			genai.NewContentFromText(fmt.Sprintf("Your response was invalid: %v\nReply again with only the corrected JSON object.", err), genai.RoleUser),
		)
	}
	return errors.Join(fmt.Errorf("%s: no valid response after %d attempts", role, geminiMaxAttempts), errors.Join(errs...))
}

type geminiExtractor struct{ *geminiAgent }

func (e *geminiExtractor) Extract(ctx context.Context, jobPost, humanFeedback string) (datamodels.Qualifications, error) {
	var q datamodels.Qualifications
	in := extractionInput{JobPost: jobPost, HumanFeedback: strings.TrimSpace(humanFeedback)}
	err := e.call(ctx, "extractor", "qualification_system", "qualification_user", in, &q, func() error {
		return validateQualifications(q)
	})
	if err != nil {
		return datamodels.Qualifications{}, err
	}
	return cleanQualifications(q), nil
}

type geminiDrafter struct{ *geminiAgent }

func (d *geminiDrafter) Draft(ctx context.Context, req DraftRequest) (string, error) {
	var r resumeResponse
	err := d.call(ctx, "drafter", "draft_system", "draft_user", req, &r, func() error {
		return validateResume(r)
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(r.Resume), nil
}

type geminiCritic struct{ *geminiAgent }

func (c *geminiCritic) Review(ctx context.Context, draft string) (string, error) {
	var r critiqueResponse
	err := c.call(ctx, "critic", "critique_system", "critique_user", critiqueInput{Draft: draft}, &r, func() error {
		return validateCritique(r)
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(r.Feedback), nil
}

type geminiFinalizer struct{ *geminiAgent }

func (f *geminiFinalizer) Finalize(ctx context.Context, req FinalRequest) (string, error) {
	var r resumeResponse
	err := f.call(ctx, "finalizer", "final_system", "final_user", req, &r, func() error {
		return validateResume(r)
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(r.Resume), nil
}
