package models

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

type SlotName string

const (
	SlotReport     SlotName = "report"
	SlotStandard   SlotName = "standard"
	SlotJudgeScore SlotName = "judgeScore"
	SlotDoc        SlotName = "doc"
	SlotAudio      SlotName = "audio"
)

// AllSlots lists every slot created at session start, in display order.
func AllSlots() []SlotName {
	return []SlotName{SlotReport, SlotStandard, SlotJudgeScore, SlotDoc, SlotAudio}
}

func ParseSlotName(raw string) (SlotName, error) {
	for _, name := range AllSlots() {
		if strings.EqualFold(raw, string(name)) {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown upload slot: %q", raw)
}

// AcceptedExtensions returns the file extensions the slot's picker offers.
func (s SlotName) AcceptedExtensions() []string {
	switch s {
	case SlotReport:
		return []string{".doc", ".docx"}
	case SlotStandard:
		return []string{".xlsx", ".xls"}
	case SlotJudgeScore:
		return []string{".pdf", ".xlsx"}
	case SlotDoc:
		return []string{".pdf", ".pptx"}
	case SlotAudio:
		return []string{".mp3", ".wav", ".m4a"}
	}
	return nil
}

// Accepts reports whether filename carries one of the slot's extensions.
func (s SlotName) Accepts(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, accepted := range s.AcceptedExtensions() {
		if ext == accepted {
			return true
		}
	}
	return false
}

type SlotStatus string

const (
	SlotEmpty     SlotStatus = "empty"
	SlotUploading SlotStatus = "uploading"
	SlotReady     SlotStatus = "ready"
	SlotError     SlotStatus = "error"
)

// UploadSlot is the registry entry for one named upload destination.
type UploadSlot struct {
	Name        SlotName          `json:"slot"`
	Reference   string            `json:"reference,omitempty"`
	DisplayName string            `json:"display_name,omitempty"`
	Status      SlotStatus        `json:"status"`
	Error       string            `json:"error,omitempty"`
	Validation  *ValidationResult `json:"validation,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (s UploadSlot) Ready() bool {
	return s.Status == SlotReady && s.Reference != ""
}

var extensionPattern = regexp.MustCompile(`\.[^/.]+$`)

// FileStem strips the last extension from a file name.
func FileStem(name string) string {
	return extensionPattern.ReplaceAllString(name, "")
}
