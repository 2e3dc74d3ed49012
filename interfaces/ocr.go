package interfaces

import (
	"context"

	"github.com/docrelay/docrelay/internal/models"
)

// OCRService turns attachment bytes into extracted text via the external
// recognition service. Failures are captured inside the result rather than
// returned; the caller decides whether a failed result is worth retrying or
// notifying about.
type OCRService interface {
	ProcessAttachment(ctx context.Context, filename string, data []byte) *models.OCRResult
}
