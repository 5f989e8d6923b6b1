// Package agents holds the LLM roles of the resume pipeline: qualification
// extraction, drafting, editing and final polishing.
package agents

import (
	"context"

	"github.com/JoshPattman/resumestudio/datamodels"
)

// QualificationExtractor turns a job posting into required and preferred
// qualifications, taking the reviewer's corrections into account.
type QualificationExtractor interface {
	Extract(ctx context.Context, jobPost, humanFeedback string) (datamodels.Qualifications, error)
}

// ResumeDrafter tailors the candidate's resume to a job posting.
type ResumeDrafter interface {
	Draft(ctx context.Context, req DraftRequest) (string, error)
}

// Editor critiques a resume draft and returns feedback for the next revision.
type Editor interface {
	Review(ctx context.Context, draft string) (string, error)
}

// FinalWriter produces the polished resume from the last draft.
type FinalWriter interface {
	Finalize(ctx context.Context, req FinalRequest) (string, error)
}

// DraftRequest carries everything the drafter sees. PreviousDraft and
// Feedback are empty on the first round.
type DraftRequest struct {
	JobPost        string
	Qualifications datamodels.Qualifications
	ResumeInput    string
	PreviousDraft  string
	Feedback       []string
}

// FinalRequest carries the last draft and the accumulated editor feedback.
type FinalRequest struct {
	Draft          string
	Feedback       []string
	Qualifications datamodels.Qualifications
}

// Agents bundles one implementation of every role.
type Agents struct {
	Extractor QualificationExtractor
	Drafter   ResumeDrafter
	Critic    Editor
	APIEditor Editor
	Finalizer FinalWriter
}
