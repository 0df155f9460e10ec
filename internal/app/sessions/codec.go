package sessions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PabloGalante/blue-shark/internal/domain"
)

// CurrentVersion is the schema version Encode writes.
const CurrentVersion = 2

type envelope struct {
	Version  int               `json:"version"`
	Sessions []*domain.Session `json:"sessions"`
}

// migrations upgrade a blob from the keyed version to the next one.
var migrations = map[int]func([]byte) ([]byte, error){
	1: migrateV1,
}

// Encode serializes the whole collection at CurrentVersion.
func Encode(sessions []*domain.Session) ([]byte, error) {
	if sessions == nil {
		sessions = []*domain.Session{}
	}
	return json.Marshal(envelope{Version: CurrentVersion, Sessions: sessions})
}

// Decode reads a blob of any known version, migrating it forward.
func Decode(data []byte) ([]*domain.Session, error) {
	version, err := detectVersion(data)
	if err != nil {
		return nil, err
	}
	if version > CurrentVersion {
		return nil, fmt.Errorf("unsupported schema version %d", version)
	}

	for version < CurrentVersion {
		migrate, ok := migrations[version]
		if !ok {
			return nil, fmt.Errorf("no migration from schema version %d", version)
		}
		if data, err = migrate(data); err != nil {
			return nil, fmt.Errorf("migrating schema version %d: %w", version, err)
		}
		if version, err = detectVersion(data); err != nil {
			return nil, err
		}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding sessions: %w", err)
	}

	out := make([]*domain.Session, 0, len(env.Sessions))
	for _, s := range env.Sessions {
		if s == nil || s.ID == "" {
			return nil, fmt.Errorf("decoding sessions: session without id")
		}
		s.Mode = s.Mode.Normalize()
		if s.Messages == nil {
			s.Messages = []domain.Message{}
		}
		out = append(out, s)
	}
	return out, nil
}

// detectVersion treats a bare JSON array as version 1, the format of the
// browser client which never stored a version.
func detectVersion(data []byte) (int, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return 0, fmt.Errorf("empty sessions blob")
	}

	switch trimmed[0] {
	case '[':
		return 1, nil
	case '{':
		var probe struct {
			Version int `json:"version"`
		}
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return 0, fmt.Errorf("probing schema version: %w", err)
		}
		if probe.Version < 1 {
			return 0, fmt.Errorf("missing schema version")
		}
		return probe.Version, nil
	default:
		return 0, fmt.Errorf("unrecognized sessions blob")
	}
}

type legacyMessage struct {
	ID        string        `json:"id"`
	Role      string        `json:"role"`
	Content   string        `json:"content"`
	Timestamp int64         `json:"timestamp"`
	Image     *domain.Image `json:"image,omitempty"`
}

type legacySession struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Messages  []legacyMessage `json:"messages"`
	Mode      string          `json:"mode"`
	Timestamp int64           `json:"timestamp"`
}

func migrateV1(data []byte) ([]byte, error) {
	var legacy []legacySession
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, err
	}

	env := envelope{Version: 2, Sessions: make([]*domain.Session, 0, len(legacy))}
	for _, ls := range legacy {
		created := time.UnixMilli(ls.Timestamp).UTC()
		s := &domain.Session{
			ID:        domain.SessionID(ls.ID),
			Title:     ls.Title,
			Mode:      domain.Mode(ls.Mode).Normalize(),
			CreatedAt: created,
			UpdatedAt: created,
			Messages:  make([]domain.Message, 0, len(ls.Messages)),
		}
		for _, lm := range ls.Messages {
			at := time.UnixMilli(lm.Timestamp).UTC()
			if at.After(s.UpdatedAt) {
				s.UpdatedAt = at
			}
			s.Messages = append(s.Messages, domain.Message{
				ID:        domain.MessageID(lm.ID),
				Role:      domain.Role(lm.Role),
				Content:   lm.Content,
				Image:     lm.Image,
				CreatedAt: at,
			})
		}
		env.Sessions = append(env.Sessions, s)
	}

	return json.Marshal(env)
}
