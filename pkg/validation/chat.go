package validation

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MaxFiles bounds the number of file references in one request
const MaxFiles = 20

// GenerateRequest is the validated part of a generation request
type GenerateRequest struct {
	Query     string   `json:"query"`
	Files     []string `json:"files"`
	Model     string   `json:"model"`
	SessionID string   `json:"sessionId"`
	ChatType  int      `json:"chatType"`
}

// ChatRequestValidator validates chat-related requests
type ChatRequestValidator struct{}

// NewChatRequestValidator creates a new ChatRequestValidator
func NewChatRequestValidator() *ChatRequestValidator {
	return &ChatRequestValidator{}
}

// ValidateGenerateRequest checks a request for any of the generation flows.
// A query may be empty only when files are attached.
func (v *ChatRequestValidator) ValidateGenerateRequest(req GenerateRequest) error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Model, validation.Required.Error("model is required")),
		validation.Field(&req.SessionID, validation.Required.Error("sessionId is required")),
		validation.Field(&req.Query,
			validation.When(len(req.Files) == 0, validation.Required.Error("query cannot be empty without files")),
		),
		validation.Field(&req.Files,
			validation.Length(0, MaxFiles).Error("too many files"),
			validation.Each(validation.Required.Error("file reference cannot be empty")),
		),
		validation.Field(&req.ChatType, validation.Min(0).Error("chatType must not be negative")),
	)
}
