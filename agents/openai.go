package agents

import (
	"context"
	"log/slog"
	"strings"

	"github.com/JoshPattman/jpf"
	"github.com/JoshPattman/resumestudio/datamodels"
)

// NewOpenAIAgents builds every role on top of jpf models from modelBuilder.
// Each call is a typed map-func: the reply is decoded as JSON, validated, and
// on failure the error is fed back to the model for up to 10 attempts.
func NewOpenAIAgents(modelBuilder ModelBuilder, logger *slog.Logger) Agents {
	return Agents{
		Extractor: &jpfExtractor{modelBuilder: modelBuilder, logger: logger.With("role", "extractor")},
		Drafter:   &jpfDrafter{modelBuilder: modelBuilder, logger: logger.With("role", "drafter")},
		Critic:    &jpfCritic{modelBuilder: modelBuilder, logger: logger.With("role", "critic")},
		APIEditor: APIEditor{},
		Finalizer: &jpfFinalizer{modelBuilder: modelBuilder, logger: logger.With("role", "finalizer")},
	}
}

type qualificationExtractor jpf.MapFunc[extractionInput, datamodels.Qualifications]

type jpfExtractor struct {
	modelBuilder ModelBuilder
	logger       *slog.Logger
}

func (e *jpfExtractor) Extract(ctx context.Context, jobPost, humanFeedback string) (datamodels.Qualifications, error) {
	mf := buildExtractionMapFunc(e.modelBuilder, e.logger)
	result, _, err := mf.Call(ctx, extractionInput{
		JobPost:       jobPost,
		HumanFeedback: strings.TrimSpace(humanFeedback),
	})
	if err != nil {
		return datamodels.Qualifications{}, err
	}
	return cleanQualifications(result), nil
}

func buildExtractionMapFunc(modelBuilder ModelBuilder, logger *slog.Logger) qualificationExtractor {
	enc := jpf.NewTemplateMessageEncoder[extractionInput](
		qualificationSystemTemplate,
		qualificationUserTemplate,
	)
	dec := jpf.NewJsonResponseDecoder[extractionInput, datamodels.Qualifications]()
	dec = wrapJsonDecoder(dec)
	dec = jpf.NewValidatingResponseDecoder(
		dec,
		func(_ extractionInput, response datamodels.Qualifications) error {
			return validateQualifications(response)
		},
	)
	fed := jpf.NewRawMessageFeedbackGenerator()
	model := modelBuilder.BuildModel(logger)
	return jpf.NewFeedbackMapFunc(enc, dec, fed, model, jpf.UserRole, 10)
}

type resumeDrafter jpf.MapFunc[DraftRequest, resumeResponse]

type jpfDrafter struct {
	modelBuilder ModelBuilder
	logger       *slog.Logger
}

func (d *jpfDrafter) Draft(ctx context.Context, req DraftRequest) (string, error) {
	mf := buildDraftMapFunc(d.modelBuilder, d.logger)
	result, _, err := mf.Call(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Resume), nil
}

func buildDraftMapFunc(modelBuilder ModelBuilder, logger *slog.Logger) resumeDrafter {
	enc := jpf.NewTemplateMessageEncoder[DraftRequest](draftSystemTemplate, draftUserTemplate)
	dec := jpf.NewJsonResponseDecoder[DraftRequest, resumeResponse]()
	dec = wrapJsonDecoder(dec)
	dec = jpf.NewValidatingResponseDecoder(
		dec,
		func(_ DraftRequest, response resumeResponse) error {
			return validateResume(response)
		},
	)
	fed := jpf.NewRawMessageFeedbackGenerator()
	model := modelBuilder.BuildModel(logger)
	return jpf.NewFeedbackMapFunc(enc, dec, fed, model, jpf.UserRole, 10)
}

type resumeCritic jpf.MapFunc[critiqueInput, critiqueResponse]

type jpfCritic struct {
	modelBuilder ModelBuilder
	logger       *slog.Logger
}

func (c *jpfCritic) Review(ctx context.Context, draft string) (string, error) {
	mf := buildCritiqueMapFunc(c.modelBuilder, c.logger)
	result, _, err := mf.Call(ctx, critiqueInput{Draft: draft})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Feedback), nil
}

func buildCritiqueMapFunc(modelBuilder ModelBuilder, logger *slog.Logger) resumeCritic {
	enc := jpf.NewTemplateMessageEncoder[critiqueInput](critiqueSystemTemplate, critiqueUserTemplate)
	dec := jpf.NewJsonResponseDecoder[critiqueInput, critiqueResponse]()
	dec = wrapJsonDecoder(dec)
	dec = jpf.NewValidatingResponseDecoder(
		dec,
		func(_ critiqueInput, response critiqueResponse) error {
			return validateCritique(response)
		},
	)
	fed := jpf.NewRawMessageFeedbackGenerator()
	model := modelBuilder.BuildModel(logger)
	return jpf.NewFeedbackMapFunc(enc, dec, fed, model, jpf.UserRole, 10)
}

type finalWriter jpf.MapFunc[FinalRequest, resumeResponse]

type jpfFinalizer struct {
	modelBuilder ModelBuilder
	logger       *slog.Logger
}

func (f *jpfFinalizer) Finalize(ctx context.Context, req FinalRequest) (string, error) {
	mf := buildFinalMapFunc(f.modelBuilder, f.logger)
	result, _, err := mf.Call(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Resume), nil
}

func buildFinalMapFunc(modelBuilder ModelBuilder, logger *slog.Logger) finalWriter {
	enc := jpf.NewTemplateMessageEncoder[FinalRequest](finalSystemTemplate, finalUserTemplate)
	dec := jpf.NewJsonResponseDecoder[FinalRequest, resumeResponse]()
	dec = wrapJsonDecoder(dec)
	dec = jpf.NewValidatingResponseDecoder(
		dec,
		func(_ FinalRequest, response resumeResponse) error {
			return validateResume(response)
		},
	)
	fed := jpf.NewRawMessageFeedbackGenerator()
	model := modelBuilder.BuildModel(logger)
	return jpf.NewFeedbackMapFunc(enc, dec, fed, model, jpf.UserRole, 10)
}

// wrapJsonDecoder strips anything around the outermost JSON object before decoding.
func wrapJsonDecoder[T, U any](dec jpf.ResponseDecoder[T, U]) jpf.ResponseDecoder[T, U] {
	return jpf.NewSubstringResponseDecoder(
		dec,
		func(s string) (string, error) {
			return extractJSONObject(s), nil
		},
	)
}
