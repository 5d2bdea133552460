// Audit event types: one immutable, content-hashed record per
// pipeline stage.

package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// EventType names one of the nine fixed pipeline stage events.
type EventType string

const (
	EventIntentReceived   EventType = "intent_received"
	EventIntentValidated  EventType = "intent_validated"
	EventTargetLocated    EventType = "target_located"
	EventContextAssembled EventType = "context_assembled"
	EventContentGenerated EventType = "content_generated"
	EventOutputValidated  EventType = "output_validated"
	EventPatchBuilt       EventType = "patch_built"
	EventPatchValidated   EventType = "patch_validated"
	EventPatchReturned    EventType = "patch_returned"
)

// EventStatus marks how the stage ended.
type EventStatus string

const (
	StatusOK        EventStatus = "ok"
	StatusRejected  EventStatus = "rejected"
	StatusCancelled EventStatus = "cancelled"
)

// AuditEvent is an append-only record of one pipeline stage.
// Created during execution, never updated afterwards.
type AuditEvent struct {
	EventID    string            `json:"event_id"`
	Type       EventType         `json:"event_type"`
	IntentID   string            `json:"intent_id"`
	PatchID    string            `json:"patch_id,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	DurationMS int64             `json:"duration_ms"`
	Status     EventStatus       `json:"status"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	PrevHash   string            `json:"prev_hash,omitempty"`
	Hash       string            `json:"hash,omitempty"`
}

// ComputeHash returns the content hash of the event with the Hash field
// zeroed. The logger chains events via PrevHash before hashing.
func (e AuditEvent) ComputeHash() string {
	e.Hash = ""
	// Canonical JSON: struct field order is fixed, map keys are sorted
	// by encoding/json.
	data, err := json.Marshal(e)
	if err != nil {
		// Marshaling a plain struct of strings cannot fail; guard anyway.
		data = []byte(e.EventID + string(e.Type))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashContent returns the sha256 hex digest of arbitrary payload bytes,
// used for content-addressed patch and intent storage.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
