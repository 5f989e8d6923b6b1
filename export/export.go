package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/JoshPattman/resumestudio/datamodels"
)

const (
	ResumeFileName         = "final_resume.md"
	QualificationsFileName = "qualifications.csv"
)

// Artifact is the output of a completed thread.
type Artifact struct {
	JobPost        string
	Qualifications datamodels.Qualifications
	Resume         string
}

// A Sink stores the artifacts of completed threads.
type Sink interface {
	Put(ctx context.Context, threadID string, a Artifact) error
}

// MultiSink writes to every sink, collecting all failures.
type MultiSink []Sink

func (m MultiSink) Put(ctx context.Context, threadID string, a Artifact) error {
	var errs []error
	for _, s := range m {
		if err := s.Put(ctx, threadID, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// files renders an artifact to the files written under a thread's prefix.
func files(a Artifact) (map[string][]byte, error) {
	var report bytes.Buffer
	if err := WriteCoverageCSV(&report, a.Qualifications, a.Resume); err != nil {
		return nil, fmt.Errorf("coverage report: %w", err)
	}
	return map[string][]byte{
		ResumeFileName:         []byte(a.Resume),
		QualificationsFileName: report.Bytes(),
	}, nil
}
