package agents

import (
	"errors"
	"strings"

	"github.com/JoshPattman/resumestudio/datamodels"
)

type resumeResponse struct {
	Resume string `json:"resume"`
}

type critiqueResponse struct {
	Feedback string `json:"feedback"`
}

func validateQualifications(q datamodels.Qualifications) error {
	if len(cleanList(q.Required)) == 0 && len(cleanList(q.Preferred)) == 0 {
		return errors.New("no qualifications were returned; list at least one required or preferred qualification")
	}
	return nil
}

func validateResume(r resumeResponse) error {
	if strings.TrimSpace(r.Resume) == "" {
		return errors.New(`the "resume" field must contain the full resume text`)
	}
	return nil
}

func validateCritique(r critiqueResponse) error {
	if strings.TrimSpace(r.Feedback) == "" {
		return errors.New(`the "feedback" field must contain your critique`)
	}
	return nil
}

// cleanQualifications trims entries and drops blanks and case-insensitive duplicates.
func cleanQualifications(q datamodels.Qualifications) datamodels.Qualifications {
	return datamodels.Qualifications{
		Required:  cleanList(q.Required),
		Preferred: cleanList(q.Preferred),
	}
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key := strings.ToLower(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

// extractJSONObject cuts the outermost {...} out of a model reply that may
// carry prose or code fences around it.
func extractJSONObject(s string) string {
	startIndex := strings.Index(s, "{")
	endIndex := strings.LastIndex(s, "}")
	if startIndex == -1 {
		startIndex = 0
	}
	if endIndex == -1 || endIndex <= startIndex {
		endIndex = len(s) - 1
	}
	if endIndex < startIndex {
		return ""
	}
	return s[startIndex : endIndex+1]
}
