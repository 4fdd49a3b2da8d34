package llm

import "testing"

func TestHasContent(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"empty text", Message{Role: RoleUser, Text: ""}, false},
		{"whitespace text", Message{Role: RoleUser, Text: "  \n\t"}, false},
		{"text", Message{Role: RoleUser, Text: "hi"}, true},
		{"empty part list", Message{Role: RoleUser, Parts: []ContentPart{}}, false},
		{"blank text part", Message{Role: RoleUser, Parts: []ContentPart{{Type: PartText, Text: " "}}}, false},
		{"image url part only", Message{Role: RoleUser, Parts: []ContentPart{{Type: PartImageURL, URL: "https://x/a.png"}}}, true},
		{"inline image part only", Message{Role: RoleUser, Parts: []ContentPart{{Type: PartImage, Data: "AA=="}}}, true},
		{"text part", Message{Role: RoleUser, Parts: []ContentPart{{Type: PartText, Text: "describe"}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasContent(tt.msg); got != tt.want {
				t.Errorf("HasContent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractText(t *testing.T) {
	msg := Message{Role: RoleUser, Parts: []ContentPart{
		{Type: PartText, Text: "first"},
		{Type: PartImageURL, URL: "https://x/a.png"},
		{Type: PartText, Text: "second"},
	}}
	if got := ExtractText(msg); got != "first second" {
		t.Errorf("ExtractText() = %q, want %q", got, "first second")
	}

	if got := ExtractText(TextMessage(RoleAssistant, "plain")); got != "plain" {
		t.Errorf("ExtractText() = %q, want plain", got)
	}
}

func TestDataURL(t *testing.T) {
	if got := DataURL("image/png", "AAAA"); got != "data:image/png;base64,AAAA" {
		t.Errorf("DataURL() = %s", got)
	}
}
