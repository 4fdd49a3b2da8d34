package llm

import "strings"

// Role of a chat message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType discriminates the parts of multi-part content
type PartType string

const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
	PartImage    PartType = "image"
)

// ContentPart is one element of multi-part message content.
// PartImageURL carries URL (absolute or data:) and an optional Detail hint;
// PartImage carries inline base64 Data with its MediaType.
type ContentPart struct {
	Type      PartType
	Text      string
	URL       string
	Detail    string
	MediaType string
	Data      string
}

// Message is a provider-neutral chat message. Parts == nil means plain text content in Text.
type Message struct {
	Role  Role
	Name  string
	Text  string
	Parts []ContentPart
}

// TextMessage builds a plain text message
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Text: text}
}

// IsMultipart reports whether the content is a list of parts
func (m Message) IsMultipart() bool {
	return m.Parts != nil
}

// HasImages reports whether any part is an image
func (m Message) HasImages() bool {
	for _, p := range m.Parts {
		if p.IsImage() {
			return true
		}
	}
	return false
}

// IsImage reports whether the part carries an image
func (p ContentPart) IsImage() bool {
	return p.Type == PartImageURL || p.Type == PartImage
}

// HasContent reports whether a message carries anything worth sending: non-blank text,
// or for multi-part content at least one part with non-blank text or an image.
func HasContent(m Message) bool {
	if m.Parts == nil {
		return strings.TrimSpace(m.Text) != ""
	}
	for _, p := range m.Parts {
		if strings.TrimSpace(p.Text) != "" || p.IsImage() {
			return true
		}
	}
	return false
}

// ExtractText returns the text of a message; text parts are joined by a space
func ExtractText(m Message) string {
	if m.Parts == nil {
		return m.Text
	}
	var texts []string
	for _, p := range m.Parts {
		if p.Type == PartText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, " ")
}

// DataURL renders inline image data as a data: URL
func DataURL(mediaType, data string) string {
	return "data:" + mediaType + ";base64," + data
}
