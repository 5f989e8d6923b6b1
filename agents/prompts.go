package agents

import (
	"strings"
	"text/template"
)

type extractionInput struct {
	JobPost       string
	HumanFeedback string
}

type critiqueInput struct {
	Draft string
}

const qualificationSystemTemplate = `You are tasked with analyzing a job posting and coming up with an outline for writing a tailored resume.

1. Carefully read the following job post:
{{ .JobPost }}

2. Extract qualifications into two categories, focusing on keywords of technology required, such as Power BI and AWS:
   - Required (must-have skills/credentials/experience)
   - Preferred (nice-to-have or optional)

3. Update the qualifications with similar items based on the human feedback of the user:
{{ if .HumanFeedback }}{{ .HumanFeedback }}{{ else }}(none){{ end }}

4. Return the structured lists as a single JSON object:
{"required": ["..."], "preferred": ["..."]}`

const qualificationUserTemplate = `Extract the qualifications now.`

const draftSystemTemplate = `You are a career coach.
Tailor the candidate's resume to this job post.

Job Post:
{{ .JobPost }}

Required Qualifications:
{{ range .Qualifications.Required }}- {{ . }}
{{ end }}
Preferred Qualifications:
{{ range .Qualifications.Preferred }}- {{ . }}
{{ end }}
Existing Resume:
{{ .ResumeInput }}

Previous Draft (if any):
{{ .PreviousDraft }}

Feedback from reviewers:
{{ range .Feedback }}{{ . }}
{{ end }}
Draft a revised resume highlighting relevant achievements, quantifying impact where possible.
Return a single JSON object {"resume": "<the full resume as markdown>"}.`

const draftUserTemplate = `Write the revised resume now.`

const critiqueSystemTemplate = `You are a strict resume reviewer.
Critique the resume draft for:
- Grammar issues
- Lack of quantified metrics
- Weak descriptions of achievements
Provide actionable suggestions.
Return a single JSON object {"feedback": "<your critique>"}.`

const critiqueUserTemplate = `{{ .Draft }}`

const finalSystemTemplate = `You are a professional career coach.
Produce a final, polished resume based on the following:

Last Draft:
{{ .Draft }}

Feedback from editors (if any):
{{ range .Feedback }}{{ . }}
{{ end }}
Ensure:
- Clear grammar and style
- Achievements quantified
- Strong focus on required and preferred qualifications
{{ range .Qualifications.Required }}  - {{ . }}
{{ end }}{{ range .Qualifications.Preferred }}  - {{ . }}
{{ end }}
Return a single JSON object {"resume": "<the final resume as markdown>"}.`

const finalUserTemplate = `Write the final resume now.`

var parsedTemplates = map[string]*template.Template{}

func init() {
	for name, text := range map[string]string{
		"qualification_system": qualificationSystemTemplate,
		"qualification_user":   qualificationUserTemplate,
		"draft_system":         draftSystemTemplate,
		"draft_user":           draftUserTemplate,
		"critique_system":      critiqueSystemTemplate,
		"critique_user":        critiqueUserTemplate,
		"final_system":         finalSystemTemplate,
		"final_user":           finalUserTemplate,
	} {
		parsedTemplates[name] = template.Must(template.New(name).Parse(text))
	}
}

func renderTemplate(name string, data any) (string, error) {
	var sb strings.Builder
	if err := parsedTemplates[name].Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
