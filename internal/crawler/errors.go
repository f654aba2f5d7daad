package crawler

import (
	"errors"

	"github.com/nao1215/pagesnap/internal/model"
)

var (
	// ErrInvalidInput is returned for malformed crawl requests.
	ErrInvalidInput = errors.New("invalid crawl request")

	// ErrResourceFailure is returned when the browser cannot be acquired or
	// released.
	ErrResourceFailure = errors.New("browser resource failure")
)

// DeniedError is returned when the compliance gate refuses the seed URL.
// No browser is launched in that case.
type DeniedError struct {
	Decision model.ComplianceDecision
}

func (e *DeniedError) Error() string {
	return "crawl denied: " + e.Decision.Message()
}

// AsDenied returns the denial carried by err, if any.
func AsDenied(err error) (*DeniedError, bool) {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied, true
	}
	return nil, false
}
