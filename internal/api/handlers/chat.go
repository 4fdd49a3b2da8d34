package handlers

import (
	"context"
	"encoding/json"
	"io"
	"irouter/internal/app"
	"irouter/internal/auth"
	"irouter/internal/logger"
	"irouter/internal/repository/db"
	chatService "irouter/internal/service/chat"
	"irouter/internal/service/files"
	"irouter/pkg/validation"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Request/Response types

type GenerateRequest struct {
	Query          string   `json:"query"`
	Files          []string `json:"files,omitempty"`
	Model          string   `json:"model"`
	SessionID      string   `json:"sessionId"`
	ReGenerate     bool     `json:"reGenerate,omitempty"`
	ChatType       int      `json:"chatType"`
	LearningPrompt string   `json:"learningPrompt,omitempty"`
}

type GenerateResponse struct {
	Response string `json:"response"`
}

type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Generator runs the generation flows
type Generator interface {
	StreamResponse(ctx context.Context, req chatService.Request) <-chan string
	TextResponse(ctx context.Context, req chatService.Request) string
	ImageResponse(ctx context.Context, req chatService.Request) string
	AudioResponse(ctx context.Context, req chatService.Request) string
}

// ChatHandlers exposes the generation flows over HTTP
type ChatHandlers struct {
	config      *app.Config
	validator   *validation.ChatRequestValidator
	chatService Generator
}

// NewChatHandlers creates a new ChatHandlers with service layer
func NewChatHandlers(config *app.Config, chatService Generator) *ChatHandlers {
	return &ChatHandlers{
		config:      config,
		validator:   validation.NewChatRequestValidator(),
		chatService: chatService,
	}
}

// ChatStreamHandler streams the answer as chunked plain text ending with the trailers
func (ch *ChatHandlers) ChatStreamHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := ch.buildRequest(w, r, "stream")
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		sendError(w, http.StatusInternalServerError, "Streaming not supported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	pieces := 0
	for piece := range ch.chatService.StreamResponse(r.Context(), req) {
		if _, err := io.WriteString(w, piece); err != nil {
			// The channel is drained by the service once the request context is done
			logger.Log.WithError(err).Debug("Client went away during stream")
			continue
		}
		flusher.Flush()
		pieces++
	}

	logger.Log.WithFields(logrus.Fields{
		"session_id": req.SessionID,
		"pieces":     pieces,
	}).Debug("Stream finished")
}

// ChatHandler returns the full answer with the trailers
func (ch *ChatHandlers) ChatHandler(w http.ResponseWriter, r *http.Request) {
	ch.respond(w, r, "text", ch.chatService.TextResponse)
}

// ImageHandler returns the generated image URL with the trailers
func (ch *ChatHandlers) ImageHandler(w http.ResponseWriter, r *http.Request) {
	ch.respond(w, r, "image", ch.chatService.ImageResponse)
}

// AudioHandler returns the synthesized audio URL with the trailers
func (ch *ChatHandlers) AudioHandler(w http.ResponseWriter, r *http.Request) {
	ch.respond(w, r, "audio", ch.chatService.AudioResponse)
}

func (ch *ChatHandlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// ImageInfoHandler lists the accepted image formats and per-vendor guidance
func (ch *ChatHandlers) ImageInfoHandler(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, files.SupportedImageInfo())
}

func (ch *ChatHandlers) respond(w http.ResponseWriter, r *http.Request, mode string, generate func(context.Context, chatService.Request) string) {
	req, ok := ch.buildRequest(w, r, mode)
	if !ok {
		return
	}

	// Flow failures are reported inside the response body as an error trailer
	response := generate(r.Context(), req)
	sendJSON(w, http.StatusOK, GenerateResponse{Response: response})
}

// buildRequest decodes and validates the body, then attaches the caller and stored history
func (ch *ChatHandlers) buildRequest(w http.ResponseWriter, r *http.Request, mode string) (chatService.Request, bool) {
	if r.Method != http.MethodPost {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
		return chatService.Request{}, false
	}

	email, ok := auth.EmailFromContext(r.Context())
	if !ok {
		sendError(w, http.StatusUnauthorized, "Unauthorized", nil)
		return chatService.Request{}, false
	}

	var body GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", err)
		return chatService.Request{}, false
	}

	if err := ch.validator.ValidateGenerateRequest(validation.GenerateRequest{
		Query:     body.Query,
		Files:     body.Files,
		Model:     body.Model,
		SessionID: body.SessionID,
		ChatType:  body.ChatType,
	}); err != nil {
		sendError(w, http.StatusBadRequest, "Validation failed", err)
		return chatService.Request{}, false
	}

	logger.Log.WithFields(logrus.Fields{
		"mode":       mode,
		"email":      email,
		"session_id": body.SessionID,
		"model":      body.Model,
		"files":      len(body.Files),
	}).Info("Generation request received")

	history, err := ch.history(r.Context(), email, body.SessionID)
	if err != nil {
		logger.Log.WithError(err).Error("Error loading chat history")
		sendError(w, http.StatusInternalServerError, "Error loading chat history", err)
		return chatService.Request{}, false
	}

	req := chatService.Request{
		Query:       body.Query,
		Files:       body.Files,
		ChatHistory: history,
		Model:       body.Model,
		Email:       email,
		SessionID:   body.SessionID,
		ReGenerate:  body.ReGenerate,
		ChatType:    body.ChatType,
	}
	if mode == "stream" {
		req.LearningPrompt = body.LearningPrompt
	}
	return req, true
}

func (ch *ChatHandlers) history(ctx context.Context, email, sessionID string) ([]db.ChatTurn, error) {
	if ch.config == nil || ch.config.DB == nil {
		return nil, nil
	}
	return ch.config.DB.GetChatHistory(ctx, email, sessionID)
}

// Helper methods

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.WithError(err).Error("Error encoding response")
	}
}

// sendError sends a standardized JSON error response
func sendError(w http.ResponseWriter, status int, message string, err error) {
	errResp := ErrorResponse{
		Code:    status,
		Message: message,
	}
	if err != nil {
		errResp.Error = err.Error()
	}
	sendJSON(w, status, errResp)
}
