package agents

import "context"

// NoAPIFeedback is what the assessment editor reports until the external
// job-matching and AI-text-detection services are integrated.
const NoAPIFeedback = "[API editor returned no feedback]"

// APIEditor stands in for the external assessment services (Editor B).
type APIEditor struct{}

func (APIEditor) Review(context.Context, string) (string, error) {
	return NoAPIFeedback, nil
}
