package state

import (
	"fmt"

	"alfredoptarigan/report-console/internal/models"
)

type slotEntry struct {
	slot models.UploadSlot
	// token identifies the latest upload started for the slot.
	token uint64
	// previous is restored when the latest upload fails.
	previous models.UploadSlot
}

func (e *slotEntry) copySlot() models.UploadSlot {
	slot := e.slot
	if slot.Validation != nil {
		validation := *slot.Validation
		slot.Validation = &validation
	}
	return slot
}

// UploadToken ties an upload completion to the upload that started it.
type UploadToken struct {
	Slot models.SlotName
	seq  uint64
}

// BeginUpload marks the slot as uploading and returns the token its
// completion must present.
func (a *App) BeginUpload(name models.SlotName, displayName string) (UploadToken, error) {
	var token UploadToken
	var err error
	a.mutate(func() []Event {
		entry, ok := a.slots[name]
		if !ok {
			err = fmt.Errorf("unknown upload slot: %q", name)
			return nil
		}
		if entry.slot.Status != models.SlotUploading {
			entry.previous = entry.slot
		}
		entry.token++
		token = UploadToken{Slot: name, seq: entry.token}
		entry.slot.Status = models.SlotUploading
		entry.slot.DisplayName = displayName
		entry.slot.Error = ""
		entry.slot.UpdatedAt = a.now()
		return append(a.slotEventLocked(entry), a.applyPreconditionsLocked()...)
	})
	return token, err
}

// CompleteUpload records a successful upload. It returns false and leaves
// the slot untouched when a newer upload to the same slot has started.
func (a *App) CompleteUpload(token UploadToken, reference, displayName string, validation *models.ValidationResult) bool {
	applied := false
	a.mutate(func() []Event {
		entry, ok := a.slots[token.Slot]
		if !ok || entry.token != token.seq {
			return nil
		}
		applied = true
		entry.slot = models.UploadSlot{
			Name:        token.Slot,
			Reference:   reference,
			DisplayName: displayName,
			Status:      models.SlotReady,
			Validation:  validation,
			UpdatedAt:   a.now(),
		}
		entry.previous = entry.slot
		return append(a.slotEventLocked(entry), a.applyPreconditionsLocked()...)
	})
	return applied
}

// FailUpload restores the slot to its state before the upload started and
// records the error on an otherwise empty slot.
func (a *App) FailUpload(token UploadToken, cause error) bool {
	applied := false
	a.mutate(func() []Event {
		entry, ok := a.slots[token.Slot]
		if !ok || entry.token != token.seq {
			return nil
		}
		applied = true
		restored := entry.previous
		restored.Name = token.Slot
		if !restored.Ready() {
			restored.Status = models.SlotError
			restored.Reference = ""
			restored.DisplayName = ""
		}
		if cause != nil {
			restored.Error = cause.Error()
		}
		restored.UpdatedAt = a.now()
		entry.slot = restored
		return append(a.slotEventLocked(entry), a.applyPreconditionsLocked()...)
	})
	return applied
}

// SetSlot marks a slot ready with the given reference without going through
// an upload, and supersedes any upload in flight.
func (a *App) SetSlot(name models.SlotName, reference, displayName string) error {
	token, err := a.BeginUpload(name, displayName)
	if err != nil {
		return err
	}
	a.CompleteUpload(token, reference, displayName, nil)
	return nil
}

// ResetSlot returns a slot to empty.
func (a *App) ResetSlot(name models.SlotName) {
	a.mutate(func() []Event {
		entry, ok := a.slots[name]
		if !ok {
			return nil
		}
		entry.token++
		entry.slot = models.UploadSlot{Name: name, Status: models.SlotEmpty, UpdatedAt: a.now()}
		entry.previous = entry.slot
		return append(a.slotEventLocked(entry), a.applyPreconditionsLocked()...)
	})
}

func (a *App) Slot(name models.SlotName) models.UploadSlot {
	a.mu.Lock()
	defer a.mu.Unlock()
	if entry, ok := a.slots[name]; ok {
		return entry.copySlot()
	}
	return models.UploadSlot{Name: name, Status: models.SlotEmpty}
}

// IsReady reports whether every named slot holds a successful upload.
func (a *App) IsReady(names ...models.SlotName) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.factsLocked().Ready(names...)
}

func (a *App) slotEventLocked(entry *slotEntry) []Event {
	slot := entry.copySlot()
	return []Event{{Kind: EventSlot, Slot: &slot}}
}
