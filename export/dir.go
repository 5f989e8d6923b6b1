package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
)

type dirSink struct {
	dir string
}

// NewDirSink writes artifacts to <dir>/<thread id>/.
func NewDirSink(dir string) (Sink, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, errors.Join(errors.New("failed to create output directory"), err)
	}
	return &dirSink{dir: dir}, nil
}

func (s *dirSink) Put(ctx context.Context, threadID string, a Artifact) error {
	out, err := files(a)
	if err != nil {
		return err
	}
	threadDir := filepath.Join(s.dir, filepath.Base(threadID))
	if err := os.MkdirAll(threadDir, os.ModePerm); err != nil {
		return err
	}
	for name, data := range out {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(threadDir, name), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
