package domain

import (
	"context"
	"net/http"
)

type Service interface {
	// Ingest verifies, decodes, and applies a raw webhook delivery.
	// Ignored event types and unattributable events return nil so the
	// provider stops redelivering them; handler failures propagate.
	Ingest(ctx context.Context, payload []byte, header http.Header) error
}
