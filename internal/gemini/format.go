package gemini

import "strings"

// Turn is one normalized conversation turn, as loaded from storage. Role is
// the local role ("user" or "assistant"); ImageData, when set, is a
// data:<mime>;base64,<payload> URL.
type Turn struct {
	Role      string
	Content   string
	ImageData string
}

// FormatTurns converts an ordered conversation history into the request
// contents the model expects. Pure and deterministic; no I/O.
//
// The text part is always emitted, even when empty (an assistant turn
// reconstructed from an empty reply is legal). When image data is present its
// inline-data part is emitted before the text part.
func FormatTurns(turns []Turn) []Content {
	contents := make([]Content, 0, len(turns))
	for _, t := range turns {
		parts := make([]Part, 0, 2)

		if t.ImageData != "" {
			header, payload, _ := strings.Cut(t.ImageData, ",")
			mime := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
			parts = append(parts, Part{InlineData: &InlineData{
				MimeType: mime,
				Data:     payload,
			}})
		}

		parts = append(parts, Part{Text: t.Content})

		role := RoleUser
		if t.Role == "assistant" {
			role = RoleModel
		}
		contents = append(contents, Content{Role: role, Parts: parts})
	}
	return contents
}
