package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"neonmatch-backend/internal/models"
)

func TestGenerateBio(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
		want string
	}{
		{"missing key", nil, BioMissingKey},
		{"call error", &fakeGenerator{err: errors.New("quota")}, BioCallFailed},
		{"empty text", &fakeGenerator{text: "  \n"}, BioEmpty},
		{"success", &fakeGenerator{text: " Reina del techno. \n"}, "Reina del techno."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var svc *GeminiService
			if tt.gen == nil {
				svc = NewGeminiService(nil, "")
			} else {
				svc = NewGeminiService(tt.gen, "")
			}
			if got := svc.GenerateBio(context.Background(), "Lucía", "techno, tacos"); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGenerateBioPrompt(t *testing.T) {
	gen := &fakeGenerator{text: "ok"}
	NewGeminiService(gen, "").GenerateBio(context.Background(), "Lucía", "techno, tacos")

	if len(gen.prompts) != 1 {
		t.Fatalf("prompts = %d", len(gen.prompts))
	}
	p := gen.prompts[0]
	for _, want := range []string{"Lucía", "techno, tacos", "150 caracteres", "Español"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestWingmanSuggestion(t *testing.T) {
	ctx := context.Background()
	history := []ChatLine{{Sender: "Yo", Text: "hola"}, {Sender: "Ella/Él", Text: "¿qué tal?"}}

	if got := NewGeminiService(nil, "").WingmanSuggestion(ctx, "a", "b", history); got != WingmanMissingKey {
		t.Fatalf("missing key = %q", got)
	}
	if got := NewGeminiService(&fakeGenerator{err: errors.New("boom")}, "").WingmanSuggestion(ctx, "a", "b", history); got != WingmanCallFailed {
		t.Fatalf("call error = %q", got)
	}
	if got := NewGeminiService(&fakeGenerator{}, "").WingmanSuggestion(ctx, "a", "b", history); got != WingmanEmpty {
		t.Fatalf("empty = %q", got)
	}

	gen := &fakeGenerator{text: "¿Bailamos la próxima?"}
	if got := NewGeminiService(gen, "").WingmanSuggestion(ctx, "Mi bio", "Su bio", history); got != "¿Bailamos la próxima?" {
		t.Fatalf("success = %q", got)
	}
	if !strings.Contains(gen.prompts[0], "Yo: hola\nElla/Él: ¿qué tal?") {
		t.Fatalf("history not in prompt: %s", gen.prompts[0])
	}
}

func TestHistoryForKeepsLastFive(t *testing.T) {
	var msgs []models.Message
	for i := 1; i <= 7; i++ {
		sender := int64(1)
		if i%2 == 0 {
			sender = 2
		}
		msgs = append(msgs, models.Message{SenderID: sender, Text: string(rune('a' + i - 1))})
	}
	msgs = append(msgs, models.Message{SenderID: 2, Type: models.MessageImage})

	lines := HistoryFor(msgs, 1)
	if len(lines) != 5 {
		t.Fatalf("lines = %d", len(lines))
	}
	if lines[0].Text != "d" || lines[0].Sender != "Ella/Él" {
		t.Fatalf("first line = %+v", lines[0])
	}
	if lines[3].Sender != "Yo" {
		t.Fatalf("own line = %+v", lines[3])
	}
	if lines[4].Text != "[foto]" {
		t.Fatalf("image line = %+v", lines[4])
	}
}

func TestNewGenAIGeneratorWithoutKey(t *testing.T) {
	gen, err := NewGenAIGenerator(context.Background(), " ")
	if err != nil || gen != nil {
		t.Fatalf("gen = %v, err = %v", gen, err)
	}
}
