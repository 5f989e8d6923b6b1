package studio

import (
	"context"
	"log/slog"
	"strings"

	"github.com/JoshPattman/resumestudio/agents"
	"github.com/JoshPattman/resumestudio/datamodels"
	"github.com/JoshPattman/resumestudio/graph"
)

// Node names of the resume pipeline.
const (
	NodeExtractQualifications = "extract_qualifications"
	NodeHumanFeedback         = "human_feedback"
	NodeDraftResume           = "draft_resume"
	NodeEditorAPI             = "editor_api"
	NodeEditorCritique        = "editor_critique"
	NodeReviseResume          = "revise_resume"
	NodeWriteFinalDraft       = "write_final_draft"
)

const DefaultMaxRevisions = 2

type pipeline struct {
	agents       agents.Agents
	maxRevisions int
	logger       *slog.Logger
}

// NewQualificationGraph builds the extraction subgraph. It has a single
// node; the human review loop around it lives in the parent graph.
func NewQualificationGraph(extractor agents.QualificationExtractor, logger *slog.Logger) (*graph.Graph[datamodels.JobQualsState], error) {
	extract := func(ctx context.Context, s datamodels.JobQualsState) (graph.Update[datamodels.JobQualsState], error) {
		logger.Info("Extracting qualifications", "has_feedback", strings.TrimSpace(s.HumanFeedback) != "")
		q, err := extractor.Extract(ctx, s.JobPost, s.HumanFeedback)
		if err != nil {
			return nil, err
		}
		logger.Info("Extracted qualifications", "required", len(q.Required), "preferred", len(q.Preferred))
		return func(s *datamodels.JobQualsState) { s.Qualifications = q }, nil
	}
	return graph.NewBuilder[datamodels.JobQualsState]().
		AddNode(NodeExtractQualifications, extract).
		AddEdge(graph.Start, NodeExtractQualifications).
		AddEdge(NodeExtractQualifications, graph.End).
		Compile()
}

// NewPipeline builds the resume graph. It pauses before human_feedback so
// the extracted qualifications can be reviewed; opts should include a
// checkpoint store for that to take effect.
func NewPipeline(a agents.Agents, maxRevisions int, logger *slog.Logger, opts ...graph.Option) (*graph.Graph[datamodels.ResumeState], error) {
	if maxRevisions <= 0 {
		maxRevisions = DefaultMaxRevisions
	}
	quals, err := NewQualificationGraph(a.Extractor, logger.With("node", NodeExtractQualifications))
	if err != nil {
		return nil, err
	}
	p := &pipeline{agents: a, maxRevisions: maxRevisions, logger: logger}

	extract := graph.Subgraph(quals,
		func(s datamodels.ResumeState) datamodels.JobQualsState {
			return datamodels.JobQualsState{
				JobPost:        s.JobPost,
				HumanFeedback:  s.HumanFeedback,
				Qualifications: s.Qualifications.Clone(),
			}
		},
		func(out datamodels.JobQualsState) graph.Update[datamodels.ResumeState] {
			return func(s *datamodels.ResumeState) { s.Qualifications = out.Qualifications }
		},
	)

	opts = append([]graph.Option{graph.WithInterruptBefore(NodeHumanFeedback)}, opts...)
	return graph.NewBuilder[datamodels.ResumeState]().
		AddNode(NodeExtractQualifications, extract).
		AddNode(NodeHumanFeedback, humanFeedback).
		AddNode(NodeDraftResume, p.draftResume).
		AddNode(NodeEditorAPI, p.editor(NodeEditorAPI, a.APIEditor)).
		AddNode(NodeEditorCritique, p.editor(NodeEditorCritique, a.Critic)).
		AddNode(NodeReviseResume, reviseResume).
		AddNode(NodeWriteFinalDraft, p.writeFinalDraft).
		AddEdge(graph.Start, NodeExtractQualifications).
		AddEdge(NodeExtractQualifications, NodeHumanFeedback).
		AddConditionalEdges(NodeHumanFeedback, routeHumanFeedback, NodeExtractQualifications, NodeDraftResume).
		AddEdge(NodeDraftResume, NodeEditorAPI).
		AddEdge(NodeDraftResume, NodeEditorCritique).
		AddEdge(NodeEditorAPI, NodeReviseResume).
		AddEdge(NodeEditorCritique, NodeReviseResume).
		AddConditionalEdges(NodeReviseResume, p.routeRevision, NodeDraftResume, NodeWriteFinalDraft).
		AddEdge(NodeWriteFinalDraft, graph.End).
		Compile(opts...)
}

// Approved reports whether human feedback accepts the qualifications as
// they are. An empty reply counts as approval.
func Approved(feedback string) bool {
	f := strings.TrimSpace(feedback)
	return f == "" || strings.EqualFold(f, "ok")
}

// humanFeedback does nothing: the graph is interrupted before it and the
// reviewer's reply is written into the state on resume.
func humanFeedback(context.Context, datamodels.ResumeState) (graph.Update[datamodels.ResumeState], error) {
	return nil, nil
}

func routeHumanFeedback(s datamodels.ResumeState) string {
	if Approved(s.HumanFeedback) {
		return NodeDraftResume
	}
	return NodeExtractQualifications
}

func (p *pipeline) routeRevision(s datamodels.ResumeState) string {
	if s.Iteration >= p.maxRevisions {
		return NodeWriteFinalDraft
	}
	return NodeDraftResume
}

func (p *pipeline) draftResume(ctx context.Context, s datamodels.ResumeState) (graph.Update[datamodels.ResumeState], error) {
	p.logger.Info("Drafting resume", "node", NodeDraftResume, "iteration", s.Iteration, "feedback_items", len(s.EditorFeedback))
	draft, err := p.agents.Drafter.Draft(ctx, agents.DraftRequest{
		JobPost:        s.JobPost,
		Qualifications: s.Qualifications,
		ResumeInput:    s.ResumeInput,
		PreviousDraft:  s.ResumeDraft,
		Feedback:       s.EditorFeedback,
	})
	if err != nil {
		return nil, err
	}
	return func(s *datamodels.ResumeState) { s.ResumeDraft = draft }, nil
}

func (p *pipeline) editor(name string, e agents.Editor) graph.NodeFunc[datamodels.ResumeState] {
	return func(ctx context.Context, s datamodels.ResumeState) (graph.Update[datamodels.ResumeState], error) {
		feedback, err := e.Review(ctx, s.ResumeDraft)
		if err != nil {
			return nil, err
		}
		p.logger.Debug("Editor reviewed draft", "node", name, "chars", len(feedback))
		return func(s *datamodels.ResumeState) {
			s.EditorFeedback = append(s.EditorFeedback, feedback)
		}, nil
	}
}

func reviseResume(context.Context, datamodels.ResumeState) (graph.Update[datamodels.ResumeState], error) {
	return func(s *datamodels.ResumeState) { s.Iteration++ }, nil
}

func (p *pipeline) writeFinalDraft(ctx context.Context, s datamodels.ResumeState) (graph.Update[datamodels.ResumeState], error) {
	p.logger.Info("Writing final resume", "node", NodeWriteFinalDraft, "feedback_items", len(s.EditorFeedback))
	final, err := p.agents.Finalizer.Finalize(ctx, agents.FinalRequest{
		Draft:          s.ResumeDraft,
		Feedback:       s.EditorFeedback,
		Qualifications: s.Qualifications,
	})
	if err != nil {
		return nil, err
	}
	return func(s *datamodels.ResumeState) { s.ResumeDraft = final }, nil
}
