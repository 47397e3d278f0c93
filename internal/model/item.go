package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status drives queue scheduling. Only pending items are picked up by a
// processing pass; in-flight marks the single item currently being worked on;
// failed items wait for an explicit user retry or discard.
type Status string

const (
	StatusPending  Status = "pending"
	StatusInFlight Status = "in-flight"
	StatusFailed   Status = "failed"
)

// QueueItem is the durable record tracking one mutation's submission
// lifecycle. Items are removed on confirmed remote success and otherwise kept
// until the user acts.
type QueueItem struct {
	ID                    string
	Kind                  Kind
	Payload               Payload
	LocalAttachmentPath   string
	UploadedAttachmentURL string
	Status                Status
	RetryCount            int
	CreatedAt             time.Time
	OwnerID               string
}

// NewItemID builds a globally unique id from the kind tag, the current time
// and a random suffix.
func NewItemID(kind Kind) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%d-%s", kind, time.Now().UnixMilli(), suffix)
}

type itemEnvelope struct {
	ID                    string          `json:"id"`
	Kind                  Kind            `json:"kind"`
	Payload               json.RawMessage `json:"payload"`
	LocalAttachmentPath   string          `json:"localAttachmentPath,omitempty"`
	UploadedAttachmentURL string          `json:"uploadedAttachmentUrl,omitempty"`
	Status                Status          `json:"status"`
	RetryCount            int             `json:"retryCount"`
	CreatedAt             time.Time       `json:"createdAt"`
	OwnerID               string          `json:"ownerId"`
}

func (i QueueItem) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(i.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", i.Kind, err)
	}
	return json.Marshal(itemEnvelope{
		ID:                    i.ID,
		Kind:                  i.Kind,
		Payload:               raw,
		LocalAttachmentPath:   i.LocalAttachmentPath,
		UploadedAttachmentURL: i.UploadedAttachmentURL,
		Status:                i.Status,
		RetryCount:            i.RetryCount,
		CreatedAt:             i.CreatedAt,
		OwnerID:               i.OwnerID,
	})
}

func (i *QueueItem) UnmarshalJSON(data []byte) error {
	var env itemEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	payload, err := DecodePayload(env.Kind, env.Payload)
	if err != nil {
		return err
	}
	i.ID = env.ID
	i.Kind = env.Kind
	i.Payload = payload
	i.LocalAttachmentPath = env.LocalAttachmentPath
	i.UploadedAttachmentURL = env.UploadedAttachmentURL
	i.Status = env.Status
	i.RetryCount = env.RetryCount
	i.CreatedAt = env.CreatedAt
	i.OwnerID = env.OwnerID
	return nil
}

// Clone returns a deep copy, safe to hand to readers outside the engine.
func (i *QueueItem) Clone() *QueueItem {
	data, err := json.Marshal(i)
	if err != nil {
		// Payloads are plain structs; encoding them cannot fail at runtime.
		panic(fmt.Sprintf("clone queue item %s: %v", i.ID, err))
	}
	var out QueueItem
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("clone queue item %s: %v", i.ID, err))
	}
	return &out
}
