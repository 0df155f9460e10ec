package llm

import (
	"google.golang.org/genai"

	"github.com/PabloGalante/blue-shark/internal/domain"
)

// BuildContents converts prior turns plus the new user input into the
// genai conversation. Inline images precede the text of their turn.
func BuildContents(history []domain.Turn, text string, image *domain.Image) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, t := range history {
		contents = append(contents, turnContent(t.Role, t.Text, t.Image))
	}
	contents = append(contents, turnContent(domain.RoleUser, text, image))
	return contents
}

func turnContent(role domain.Role, text string, image *domain.Image) *genai.Content {
	var parts []*genai.Part
	if image != nil && len(image.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(image.Data, image.MIMEType))
	}
	if text != "" || len(parts) == 0 {
		parts = append(parts, genai.NewPartFromText(text))
	}

	return genai.NewContentFromParts(parts, toGenaiRole(role))
}

func toGenaiRole(r domain.Role) genai.Role {
	switch r {
	case domain.RoleModel:
		return genai.RoleModel
	case domain.RoleUser:
		return genai.RoleUser
	default:
		return genai.RoleUser
	}
}
