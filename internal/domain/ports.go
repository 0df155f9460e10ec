package domain

import (
	"context"
	"iter"
)

// Turn is one prior message handed to the generator as history.
type Turn struct {
	Role  Role
	Text  string
	Image *Image
}

type StreamRequest struct {
	Model             string
	SystemInstruction string
	History           []Turn
	Text              string
	Image             *Image
}

type GenerateRequest struct {
	Model             string
	SystemInstruction string
	Text              string
}

// Generator is the hosted LLM collaborator.
type Generator interface {
	// Stream yields text fragments in arrival order. The sequence is finite
	// and cannot be restarted.
	Stream(ctx context.Context, req StreamRequest) iter.Seq2[string, error]
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// CredentialSelector lets the host environment (re)select the API credential.
type CredentialSelector interface {
	HasSelected(ctx context.Context) (bool, error)
	PromptSelection(ctx context.Context) error
}

// Slot is a single named persistence location holding the serialized store.
type Slot interface {
	// Read returns nil data and nil error when the slot has never been written.
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// UpdateKind describes what changed in a SessionUpdate.
type UpdateKind string

const (
	UpdateSessionCreated UpdateKind = "session_created"
	UpdateMessageAdded   UpdateKind = "message_added"
	UpdateMessageChanged UpdateKind = "message_changed"
	UpdateCleared        UpdateKind = "cleared"
)

// SessionUpdate is published after every store mutation.
type SessionUpdate struct {
	Kind      UpdateKind `json:"kind"`
	SessionID SessionID  `json:"sessionId,omitempty"`
	Message   *Message   `json:"message,omitempty"`
	At        Timestamp  `json:"at"`
}

// UpdatePublisher fans out store mutations to live observers.
type UpdatePublisher interface {
	Publish(ctx context.Context, update SessionUpdate) error
}
