package constants

import "time"

// OCR status polling ceiling. Fixed on purpose; not exposed through config.
const (
	OCRPollInterval    = 1 * time.Second
	OCRPollMaxAttempts = 30
)
