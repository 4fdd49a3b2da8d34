package conversation

import (
	"context"
	"errors"
	"irouter/internal/repository/db"
	"irouter/internal/service/llm"
	"irouter/internal/testutil"
	"strings"
	"testing"
)

func sampleTurns() []db.ChatTurn {
	return []db.ChatTurn{
		{Prompt: "hi", Response: "hello"},
		{Prompt: "how are you?", Response: ""},
		{Prompt: "", Response: "orphan answer"},
	}
}

func roles(messages []llm.Message) []llm.Role {
	out := make([]llm.Role, len(messages))
	for i, m := range messages {
		out[i] = m.Role
	}
	return out
}

func TestSystemPrompt(t *testing.T) {
	mockDB := &testutil.MockDatabase{
		GetSystemPromptFunc: func(ctx context.Context) (string, error) { return "You are Edith.", nil },
	}
	a := NewAssembler(mockDB, &testutil.MockFetcher{})

	got, err := a.SystemPrompt(context.Background(), "EDITH")
	if err != nil || got != "You are Edith." {
		t.Errorf("SystemPrompt(edith) = %q, %v", got, err)
	}

	got, err = a.SystemPrompt(context.Background(), "openai")
	if err != nil || got != "" {
		t.Errorf("SystemPrompt(openai) = %q, %v", got, err)
	}

	mockDB.GetSystemPromptFunc = func(ctx context.Context) (string, error) { return "", errors.New("db down") }
	if _, err := a.SystemPrompt(context.Background(), "edith"); err == nil {
		t.Error("expected error when system prompt cannot be loaded")
	}
}

func TestBuildHistory(t *testing.T) {
	tests := []struct {
		name      string
		turns     []db.ChatTurn
		provider  string
		wantRoles []llm.Role
	}{
		{
			name:      "openai flattens turns",
			turns:     sampleTurns(),
			provider:  "openai",
			wantRoles: []llm.Role{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant, llm.RoleUser, llm.RoleAssistant},
		},
		{
			name:      "anthropic has no system message",
			turns:     sampleTurns(),
			provider:  "Anthropic",
			wantRoles: []llm.Role{llm.RoleUser, llm.RoleAssistant, llm.RoleUser, llm.RoleAssistant},
		},
		{
			name:      "deepseek keeps well formed history",
			turns:     append([]db.ChatTurn{{}}, sampleTurns()...),
			provider:  "deepseek",
			wantRoles: []llm.Role{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant, llm.RoleUser, llm.RoleAssistant},
		},
		{
			name:      "deepseek drops history not opened by user",
			turns:     []db.ChatTurn{{}, {Response: "I spoke first"}, {Prompt: "hi", Response: "hello"}},
			provider:  "deepseek",
			wantRoles: []llm.Role{llm.RoleSystem},
		},
		{
			name:      "deepseek with empty history",
			turns:     []db.ChatTurn{{}},
			provider:  "deepseek",
			wantRoles: []llm.Role{llm.RoleSystem},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roles(BuildHistory(tt.turns, tt.provider, "sys"))
			if len(got) != len(tt.wantRoles) {
				t.Fatalf("roles = %v, want %v", got, tt.wantRoles)
			}
			for i := range got {
				if got[i] != tt.wantRoles[i] {
					t.Errorf("roles = %v, want %v", got, tt.wantRoles)
					break
				}
			}
		})
	}
}

func TestCurrentMessage(t *testing.T) {
	fetcher := &testutil.MockFetcher{
		CDNBase: "https://cdn.example.com",
		FetchFunc: func(ctx context.Context, ref string) ([]byte, error) {
			if strings.Contains(ref, "broken") {
				return nil, errors.New("404")
			}
			return []byte("img"), nil
		},
	}
	a := NewAssembler(&testutil.MockDatabase{}, fetcher)
	ctx := context.Background()

	t.Run("no images", func(t *testing.T) {
		msg, warning := a.CurrentMessage(ctx, "Hello", nil, db.AiConfig{Provider: "openai", ImageSupport: true})
		if msg.IsMultipart() || msg.Text != "Hello" || warning != "" {
			t.Errorf("got %+v, %q", msg, warning)
		}
	})

	t.Run("openai uses url reference", func(t *testing.T) {
		msg, _ := a.CurrentMessage(ctx, "What is in this picture?", []string{"uploads/cat.png"}, db.AiConfig{Provider: "openai", ImageSupport: true})
		if len(msg.Parts) != 2 {
			t.Fatalf("parts = %+v", msg.Parts)
		}
		img := msg.Parts[1]
		if img.Type != llm.PartImageURL || img.URL != "https://cdn.example.com/uploads/cat.png" || img.Detail != "high" {
			t.Errorf("image part = %+v", img)
		}
	})

	t.Run("short query gets default prompt", func(t *testing.T) {
		msg, _ := a.CurrentMessage(ctx, " hi ", []string{"cat.png"}, db.AiConfig{Provider: "openrouter", ImageSupport: true})
		if msg.Parts[0].Text != DefaultImagePrompt {
			t.Errorf("text = %q", msg.Parts[0].Text)
		}
	})

	t.Run("anthropic inlines base64 and skips failures", func(t *testing.T) {
		msg, warning := a.CurrentMessage(ctx, "Describe these", []string{"a.webp", "broken.png"}, db.AiConfig{Provider: "anthropic", ImageSupport: true})
		if warning != "" {
			t.Errorf("warning = %q", warning)
		}
		if len(msg.Parts) != 2 {
			t.Fatalf("parts = %+v", msg.Parts)
		}
		img := msg.Parts[1]
		if img.Type != llm.PartImage || img.MediaType != "image/webp" || img.Data != "aW1n" {
			t.Errorf("image part = %+v", img)
		}
	})

	t.Run("google uses data url", func(t *testing.T) {
		msg, _ := a.CurrentMessage(ctx, "Describe this", []string{"a.gif"}, db.AiConfig{Provider: "google", ImageSupport: true})
		if got := msg.Parts[1].URL; got != "data:image/gif;base64,aW1n" {
			t.Errorf("url = %s", got)
		}
	})

	t.Run("vendor without image encoding", func(t *testing.T) {
		msg, warning := a.CurrentMessage(ctx, "Describe this", []string{"a.png"}, db.AiConfig{Provider: "deepseek", ImageSupport: true})
		if msg.IsMultipart() || msg.Text != "Describe this" || warning == "" {
			t.Errorf("got %+v, %q", msg, warning)
		}
	})

	t.Run("model without image support", func(t *testing.T) {
		msg, warning := a.CurrentMessage(ctx, "Describe this", []string{"a.png"}, db.AiConfig{ID: "gpt-3.5", Provider: "openai"})
		if msg.HasImages() || warning == "" {
			t.Errorf("got %+v, %q", msg, warning)
		}
	})
}

func TestTranscript(t *testing.T) {
	got := Transcript(sampleTurns())
	want := "User: hi\nAssistant: hello\nUser: \nAssistant: orphan answer"
	if got != want {
		t.Errorf("Transcript() = %q, want %q", got, want)
	}
}

func TestSystemContent(t *testing.T) {
	plain := SystemContent("Be brief.", "", "User: a\nAssistant: b", "", false)
	if plain != "Be brief.\n\nPrevious conversation:\nUser: a\nAssistant: b" {
		t.Errorf("plain = %q", plain)
	}

	rag := SystemContent("Be brief.", "[Source: chunk_0]\nfacts", "", "", true)
	if !strings.HasPrefix(rag, "You are a helpful AI assistant.") {
		t.Errorf("rag template missing preamble: %q", rag)
	}
	if !strings.Contains(rag, "Context from documents:\n[Source: chunk_0]\nfacts") {
		t.Errorf("rag template missing context: %q", rag)
	}
	if !strings.HasSuffix(rag, "and the images provided.") {
		t.Errorf("rag template missing image closing: %q", rag)
	}
	if strings.Contains(rag, "Be brief.") {
		t.Error("rag template should not contain the base prompt")
	}

	learning := SystemContent("", "", "", "Explain like a tutor.", false)
	if !strings.HasSuffix(learning, "\n\nExplain like a tutor.") {
		t.Errorf("learning prompt not appended: %q", learning)
	}
}

func TestCompose(t *testing.T) {
	history := []llm.Message{
		llm.TextMessage(llm.RoleSystem, "stale"),
		llm.TextMessage(llm.RoleUser, "   "),
		llm.TextMessage(llm.RoleUser, "earlier question"),
		llm.TextMessage(llm.RoleAssistant, "earlier answer"),
	}

	t.Run("system first for openai", func(t *testing.T) {
		got := Compose("openai", "SYS", history, llm.TextMessage(llm.RoleUser, "now"))
		if len(got) != 4 {
			t.Fatalf("messages = %+v", got)
		}
		if got[0].Role != llm.RoleSystem || got[0].Text != "SYS" {
			t.Errorf("first = %+v", got[0])
		}
		if got[3].Text != "now" {
			t.Errorf("last = %+v", got[3])
		}
	})

	t.Run("anthropic folds system into first user text", func(t *testing.T) {
		got := Compose("anthropic", "SYS", history, llm.TextMessage(llm.RoleUser, "now"))
		for _, m := range got {
			if m.Role == llm.RoleSystem {
				t.Fatal("anthropic messages contain a system role")
			}
		}
		if got[0].Text != "SYS\n\nearlier question" {
			t.Errorf("first = %q", got[0].Text)
		}
	})

	t.Run("anthropic folds system into multipart content", func(t *testing.T) {
		current := llm.Message{Role: llm.RoleUser, Parts: []llm.ContentPart{
			{Type: llm.PartText, Text: "what is this"},
			{Type: llm.PartImage, MediaType: "image/png", Data: "eA=="},
		}}
		got := Compose("anthropic", "SYS", nil, current)
		if len(got) != 1 || len(got[0].Parts) != 3 {
			t.Fatalf("messages = %+v", got)
		}
		if got[0].Parts[0].Text != "SYS" || got[0].Parts[1].Text != "what is this" {
			t.Errorf("parts = %+v", got[0].Parts)
		}
		if len(current.Parts) != 2 {
			t.Error("Compose mutated the caller's parts")
		}
	})

	t.Run("empty current question is dropped", func(t *testing.T) {
		got := Compose("openai", "SYS", nil, llm.TextMessage(llm.RoleUser, ""))
		if len(got) != 1 {
			t.Errorf("messages = %+v", got)
		}
	})
}
