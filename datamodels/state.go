package datamodels

// JobQualsState is the state of the qualification extraction subgraph.
type JobQualsState struct {
	JobPost        string         `json:"job_post"`
	HumanFeedback  string         `json:"human_feedback"`
	Qualifications Qualifications `json:"qualifications"`
}

// ResumeState is the state carried through the resume pipeline.
// EditorFeedback accumulates across revision rounds.
type ResumeState struct {
	JobPost        string         `json:"job_post"`
	HumanFeedback  string         `json:"human_feedback"`
	ResumeInput    string         `json:"resume_input"`
	Qualifications Qualifications `json:"qualifications"`
	ResumeDraft    string         `json:"resume_draft"`
	EditorFeedback []string       `json:"editor_feedback"`
	Iteration      int            `json:"iteration"`
}
