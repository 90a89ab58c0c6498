// Package storage provides document locator adapters.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FilesystemLocator resolves document IDs to files under a root directory.
// A document with ID <uuid> is expected at <root>/<uuid>.<ext> for any
// extension.
type FilesystemLocator struct {
	root string
}

// NewFilesystemLocator creates a locator rooted at the given directory.
func NewFilesystemLocator(root string) (*FilesystemLocator, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("document root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("document root %s is not a directory", root)
	}
	return &FilesystemLocator{root: root}, nil
}

// Locate returns the path of the document's file.
func (l *FilesystemLocator) Locate(_ context.Context, documentID uuid.UUID) (string, error) {
	if documentID == uuid.Nil {
		return "", fmt.Errorf("document ID cannot be nil")
	}

	matches, err := filepath.Glob(filepath.Join(l.root, documentID.String()+".*"))
	if err != nil {
		return "", fmt.Errorf("failed to scan document root: %w", err)
	}
	for _, match := range matches {
		base := filepath.Base(match)
		if strings.TrimSuffix(base, filepath.Ext(base)) == documentID.String() {
			return match, nil
		}
	}

	// Extension-less fallback.
	bare := filepath.Join(l.root, documentID.String())
	if _, err := os.Stat(bare); err == nil {
		return bare, nil
	}

	return "", fmt.Errorf("document %s not found under %s", documentID, l.root)
}
