package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JoshPattman/resumestudio/datamodels"
	"github.com/JoshPattman/resumestudio/studio"
)

type threadRunner interface {
	Start(ctx context.Context, req studio.StartRequest) (datamodels.Thread, error)
	SubmitFeedback(ctx context.Context, id, feedback string) (datamodels.Thread, error)
}

// Session drives one thread from the terminal: it shows the extracted
// qualifications, reads feedback until they are approved and prints the
// final resume.
type Session struct {
	runner threadRunner
	in     *bufio.Scanner
	out    io.Writer
}

func NewSession(runner threadRunner, in io.Reader, out io.Writer) *Session {
	return &Session{runner: runner, in: bufio.NewScanner(in), out: out}
}

func (s *Session) Run(ctx context.Context, req studio.StartRequest) (datamodels.Thread, error) {
	t, err := s.runner.Start(ctx, req)
	if err != nil {
		return t, err
	}
	for t.AwaitingFeedback() {
		s.printQualifications(t.State.Qualifications)
		feedback, err := s.readFeedback()
		if err != nil {
			return t, err
		}
		if studio.Approved(feedback) {
			fmt.Fprintln(s.out, "Approved. Drafting resume...")
		}
		t, err = s.runner.SubmitFeedback(ctx, t.ID, feedback)
		if err != nil {
			return t, err
		}
	}
	if !t.Finished() {
		return t, fmt.Errorf("thread %s stopped in state %s", t.ID, t.Status)
	}
	fmt.Fprintf(s.out, "\n===== Final resume (thread %s) =====\n\n%s\n", t.ID, t.State.ResumeDraft)
	return t, nil
}

func (s *Session) printQualifications(q datamodels.Qualifications) {
	fmt.Fprintln(s.out, "\nRequired qualifications:")
	for _, item := range q.Required {
		fmt.Fprintf(s.out, "  - %s\n", item)
	}
	fmt.Fprintln(s.out, "Preferred qualifications:")
	for _, item := range q.Preferred {
		fmt.Fprintf(s.out, "  - %s\n", item)
	}
	fmt.Fprint(s.out, "\nFeedback (\"ok\" or empty to approve): ")
}

// readFeedback reads one line. End of input approves.
func (s *Session) readFeedback() (string, error) {
	if s.in.Scan() {
		return strings.TrimSpace(s.in.Text()), nil
	}
	if err := s.in.Err(); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	fmt.Fprintln(s.out)
	return "", nil
}
