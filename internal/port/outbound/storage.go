package outbound

import (
	"context"

	"github.com/google/uuid"
)

// DocumentLocator resolves a document ID to the storage locator the
// extraction contract understands.
type DocumentLocator interface {
	Locate(ctx context.Context, documentID uuid.UUID) (string, error)
}
