package models

// ValidationResult is produced per local file inspection and consumed
// immediately by the caller.
type ValidationResult struct {
	Valid    bool    `json:"valid"`
	Message  string  `json:"message"`
	Duration float64 `json:"duration,omitempty"`
	Size     int64   `json:"size,omitempty"`
	Pages    int     `json:"pages,omitempty"`
	MIMEType string  `json:"mime_type,omitempty"`
}

func Invalid(message string) ValidationResult {
	return ValidationResult{Valid: false, Message: message}
}
