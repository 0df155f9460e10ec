package domain

import "time"

type SessionID string
type MessageID string

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Mode selects the model and system instruction a session talks to.
type Mode string

const (
	ModeProChat   Mode = "PRO_CHAT"
	ModeSharkTank Mode = "SHARK_TANK" // Dual mode: Flash and Pro side by side
	ModeHomework  Mode = "HOMEWORK"
	ModeCoding    Mode = "CODING"
	ModeSecurity  Mode = "SECURITY"

	// ModeFastChat is no longer offered; persisted sessions carrying it are
	// rewritten to ModeSharkTank on load.
	ModeFastChat Mode = "FAST_CHAT"
)

// DefaultMode is used when a new session is opened without an explicit mode.
const DefaultMode = ModeProChat

// Normalize maps deprecated tags to their replacement.
func (m Mode) Normalize() Mode {
	if m == ModeFastChat {
		return ModeSharkTank
	}
	return m
}

type Timestamp = time.Time
