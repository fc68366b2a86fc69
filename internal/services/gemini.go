package services

import (
	"context"
	"fmt"
	"strings"

	"neonmatch-backend/internal/models"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured
const DefaultGeminiModel = "gemini-2.5-flash"

const wingmanHistory = 5

// Fallback texts returned instead of errors
const (
	BioMissingKey     = "API Key faltante. Me gustan los paseos por la playa."
	BioCallFailed     = "Solo estoy aquí por la música."
	BioEmpty          = "Listo para bailar toda la noche."
	WingmanMissingKey = "¿Hola, qué tal la noche?"
	WingmanCallFailed = "¿Te lo estás pasando bien?"
	WingmanEmpty      = "¿Cuál es tu canción favorita de las que han puesto?"
)

// TextGenerator produces text for a prompt
type TextGenerator interface {
	GenerateText(ctx context.Context, model, prompt string) (string, error)
}

type genaiGenerator struct {
	client *genai.Client
}

// NewGenAIGenerator creates a Gemini API generator. An empty key yields nil.
func NewGenAIGenerator(ctx context.Context, apiKey string) (TextGenerator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &genaiGenerator{client: client}, nil
}

func (g *genaiGenerator) GenerateText(ctx context.Context, model, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// GeminiService writes bios and chat suggestions. It never fails: every
// error path returns a canned text.
type GeminiService struct {
	gen   TextGenerator
	model string
}

// NewGeminiService creates a new gemini service. gen may be nil when no API
// key is configured.
func NewGeminiService(gen TextGenerator, model string) *GeminiService {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiService{gen: gen, model: model}
}

// Enabled reports whether an API key was configured
func (s *GeminiService) Enabled() bool {
	return s.gen != nil
}

// GenerateBio writes a short party bio for name from a list of traits
func (s *GeminiService) GenerateBio(ctx context.Context, name, traits string) string {
	if s.gen == nil {
		return BioMissingKey
	}

	prompt := fmt.Sprintf(
		"Escribe una biografía corta, ingeniosa y misteriosa para una app de citas (máx 150 caracteres) "+
			"para una persona llamada %s. Gustos/Rasgos: %s. "+
			"Tono: Divertido, ambiente de \"Discoteca/Fiesta\", intrigante. Idioma: Español. "+
			"Solo devuelve el texto de la biografía.",
		name, traits,
	)

	text, err := s.gen.GenerateText(ctx, s.model, prompt)
	if err != nil {
		log.Error().Err(err).Str("model", s.model).Msg("Failed to generate bio")
		return BioCallFailed
	}
	if text = strings.TrimSpace(text); text == "" {
		return BioEmpty
	}
	return text
}

// ChatLine is one line of conversation history given to the wingman
type ChatLine struct {
	Sender string
	Text   string
}

// HistoryFor converts the tail of a conversation into wingman lines as seen
// by meID
func HistoryFor(messages []models.Message, meID int64) []ChatLine {
	if len(messages) > wingmanHistory {
		messages = messages[len(messages)-wingmanHistory:]
	}
	lines := make([]ChatLine, 0, len(messages))
	for _, m := range messages {
		sender := "Ella/Él"
		if m.SenderID == meID {
			sender = "Yo"
		}
		text := m.Text
		if text == "" && m.Type == models.MessageImage {
			text = "[foto]"
		}
		lines = append(lines, ChatLine{Sender: sender, Text: text})
	}
	return lines
}

// WingmanSuggestion proposes the next message to send
func (s *GeminiService) WingmanSuggestion(ctx context.Context, myBio, partnerBio string, history []ChatLine) string {
	if s.gen == nil {
		return WingmanMissingKey
	}

	var b strings.Builder
	for i, l := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", l.Sender, l.Text)
	}

	prompt := fmt.Sprintf(
		"Actúa como un \"Wingman\" (Asistente de ligues). Sugiere una respuesta corta y atractiva "+
			"(máx 1 frase) para enviar a continuación.\n\n"+
			"Mi Bio: %s\nSu Bio: %s\n\nHistorial de conversación:\n%s\n\n"+
			"La respuesta debe ser divertida, casual y fomentar que respondan. Idioma: Español. "+
			"Solo devuelve la sugerencia.",
		myBio, partnerBio, b.String(),
	)

	text, err := s.gen.GenerateText(ctx, s.model, prompt)
	if err != nil {
		log.Error().Err(err).Str("model", s.model).Msg("Failed to get wingman suggestion")
		return WingmanCallFailed
	}
	if text = strings.TrimSpace(text); text == "" {
		return WingmanEmpty
	}
	return text
}
