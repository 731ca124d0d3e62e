// Package taxonomy serves the category document exposed to tool clients.
package taxonomy

import (
	"context"
	"fmt"
	"os"

	"ledger/internal/core"
)

const MIMEType = "application/json"

// FileReader returns the raw contents of a category document on disk. The file
// is read on every call, so edits are visible without a restart. Contents are
// passed through unvalidated.
type FileReader struct {
	Path string
}

func NewFileReader(path string) *FileReader {
	return &FileReader{Path: path}
}

func (r *FileReader) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(r.Path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", core.OpReadCategories, err)
	}
	return data, nil
}
