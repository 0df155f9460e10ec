package domain

// Image is an inline image attached to a user message.
type Image struct {
	Data     []byte `json:"data"`
	MIMEType string `json:"mimeType"`
}

// Message is one entry of a session timeline (user or model).
type Message struct {
	ID      MessageID `json:"id"`
	Role    Role      `json:"role"`
	Content string    `json:"content"`

	// SecondaryContent is only filled by dual-model turns (the deep answer).
	SecondaryContent string `json:"secondaryContent,omitempty"`
	Image            *Image `json:"image,omitempty"`

	// Pending marks the in-flight placeholder of a turn. Once cleared the
	// message is settled and no longer accepts updates.
	Pending bool `json:"pending,omitempty"`
	Failed  bool `json:"failed,omitempty"`

	CreatedAt Timestamp `json:"createdAt"`
}

// Session is an ordered chat timeline bound to one mode for its lifetime.
type Session struct {
	ID        SessionID `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	Mode      Mode      `json:"mode"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m.Clone()
	}
	return &out
}

// Clone returns a copy of the message that shares no image bytes.
func (m Message) Clone() Message {
	if m.Image != nil {
		img := *m.Image
		img.Data = append([]byte(nil), m.Image.Data...)
		m.Image = &img
	}
	return m
}

// ModeConfig is the static model binding of a mode.
type ModeConfig struct {
	Mode              Mode   `yaml:"mode" json:"mode"`
	Label             string `yaml:"label" json:"label"`
	Description       string `yaml:"description" json:"description"`
	Model             string `yaml:"model" json:"model"`
	SystemInstruction string `yaml:"system_instruction" json:"systemInstruction"`

	// Dual modes issue Primary and Secondary as two single-shot calls
	// instead of streaming Model.
	Dual      bool        `yaml:"dual" json:"dual"`
	Primary   ModelTarget `yaml:"primary,omitempty" json:"primary,omitempty"`
	Secondary ModelTarget `yaml:"secondary,omitempty" json:"secondary,omitempty"`
}

// ModelTarget is a model identifier plus the system instruction sent with it.
type ModelTarget struct {
	Name              string `yaml:"name" json:"name"`
	Model             string `yaml:"model" json:"model"`
	SystemInstruction string `yaml:"system_instruction" json:"systemInstruction"`
}
