package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"irouter/internal/auth"
	"irouter/internal/repository/db"
	chatService "irouter/internal/service/chat"
	"irouter/internal/testutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeGenerator struct {
	lastReq chatService.Request
	pieces  []string
	reply   string
}

func (g *fakeGenerator) StreamResponse(ctx context.Context, req chatService.Request) <-chan string {
	g.lastReq = req
	out := make(chan string, len(g.pieces))
	for _, p := range g.pieces {
		out <- p
	}
	close(out)
	return out
}

func (g *fakeGenerator) TextResponse(ctx context.Context, req chatService.Request) string {
	g.lastReq = req
	return "text:" + g.reply
}

func (g *fakeGenerator) ImageResponse(ctx context.Context, req chatService.Request) string {
	g.lastReq = req
	return "image:" + g.reply
}

func (g *fakeGenerator) AudioResponse(ctx context.Context, req chatService.Request) string {
	g.lastReq = req
	return "audio:" + g.reply
}

func newTestHandlers(gen *fakeGenerator, history []db.ChatTurn, historyErr error) *ChatHandlers {
	mockDB := &testutil.MockDatabase{
		GetChatHistoryFunc: func(ctx context.Context, email, sessionID string) ([]db.ChatTurn, error) {
			return history, historyErr
		},
	}
	return NewChatHandlers(testutil.NewMockConfig(mockDB), gen)
}

func authedRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	ctx := context.WithValue(req.Context(), auth.UserContextKey, "a@b.c")
	return req.WithContext(ctx)
}

func TestChatHandlers_JSONFlows(t *testing.T) {
	body := `{"query":"hello","model":"gpt-4o","sessionId":"s1","chatType":1,"reGenerate":true,"learningPrompt":"be brief"}`

	tests := []struct {
		name    string
		handler func(h *ChatHandlers) http.HandlerFunc
		want    string
	}{
		{"text", func(h *ChatHandlers) http.HandlerFunc { return h.ChatHandler }, "text:ok"},
		{"image", func(h *ChatHandlers) http.HandlerFunc { return h.ImageHandler }, "image:ok"},
		{"audio", func(h *ChatHandlers) http.HandlerFunc { return h.AudioHandler }, "audio:ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{reply: "ok"}
			history := []db.ChatTurn{{Prompt: "p", Response: "r"}}
			h := newTestHandlers(gen, history, nil)
			rec := httptest.NewRecorder()

			tt.handler(h)(rec, authedRequest(http.MethodPost, "/api/chat", body))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
			var resp GenerateResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Response != tt.want {
				t.Errorf("response = %q, want %q", resp.Response, tt.want)
			}

			req := gen.lastReq
			if req.Email != "a@b.c" || req.SessionID != "s1" || req.Model != "gpt-4o" {
				t.Errorf("request = %+v", req)
			}
			if !req.ReGenerate || req.ChatType != 1 {
				t.Errorf("flags not forwarded: %+v", req)
			}
			if len(req.ChatHistory) != 1 {
				t.Errorf("history = %d turns, want 1", len(req.ChatHistory))
			}
			if req.LearningPrompt != "" {
				t.Errorf("learning prompt forwarded outside streaming: %q", req.LearningPrompt)
			}
		})
	}
}

func TestChatStreamHandler(t *testing.T) {
	gen := &fakeGenerator{pieces: []string{"Hel", "lo", "[POINTS]1.5"}}
	h := newTestHandlers(gen, nil, nil)
	rec := httptest.NewRecorder()
	body := `{"query":"hi","model":"gpt-4o","sessionId":"s1","learningPrompt":"be brief"}`

	h.ChatStreamHandler(rec, authedRequest(http.MethodPost, "/api/chat/stream", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != "Hello[POINTS]1.5" {
		t.Errorf("body = %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !rec.Flushed {
		t.Error("expected response to be flushed")
	}
	if gen.lastReq.LearningPrompt != "be brief" {
		t.Errorf("learning prompt = %q", gen.lastReq.LearningPrompt)
	}
}

func TestChatHandlers_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		req        *http.Request
		historyErr error
		wantStatus int
	}{
		{
			name:       "wrong method",
			req:        authedRequest(http.MethodGet, "/api/chat", ""),
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "no caller",
			req:        httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{}`)),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed body",
			req:        authedRequest(http.MethodPost, "/api/chat", "{"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing model",
			req:        authedRequest(http.MethodPost, "/api/chat", `{"query":"hi","sessionId":"s1"}`),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty query without files",
			req:        authedRequest(http.MethodPost, "/api/chat", `{"model":"m","sessionId":"s1"}`),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "history failure",
			req:        authedRequest(http.MethodPost, "/api/chat", `{"query":"hi","model":"m","sessionId":"s1"}`),
			historyErr: errors.New("db down"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandlers(&fakeGenerator{}, nil, tt.historyErr)
			rec := httptest.NewRecorder()

			h.ChatHandler(rec, tt.req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Code != tt.wantStatus {
				t.Errorf("code = %d", resp.Code)
			}
		})
	}
}

func TestImageInfoHandler(t *testing.T) {
	h := newTestHandlers(&fakeGenerator{}, nil, nil)
	rec := httptest.NewRecorder()

	h.ImageInfoHandler(rec, httptest.NewRequest(http.MethodGet, "/api/images/info", nil))

	var info map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := info["supported_formats"]; !ok {
		t.Errorf("missing supported_formats: %v", info)
	}
}
