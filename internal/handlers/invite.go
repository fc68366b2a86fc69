package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"neonmatch-backend/internal/connection"
	"neonmatch-backend/internal/services"

	"github.com/rs/zerolog/log"
)

const maxQRSize = 1024

// InviteHandler builds magic links for sharing the current connection
type InviteHandler struct {
	app       *services.App
	publicURL string
}

// NewInviteHandler creates a new invite handler. publicURL is the default
// base for links when the request names none.
func NewInviteHandler(app *services.App, publicURL string) *InviteHandler {
	return &InviteHandler{
		app:       app,
		publicURL: publicURL,
	}
}

// InviteResponse carries a magic link and its share texts
type InviteResponse struct {
	Link        string `json:"link"`
	Text        string `json:"text"`
	WhatsAppURL string `json:"whatsapp_url"`
	QRCodeURL   string `json:"qr_code_url"`
}

func (h *InviteHandler) base(r *http.Request) string {
	if b := strings.TrimSpace(r.URL.Query().Get("base")); b != "" {
		return b
	}
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/"
}

func (h *InviteHandler) link(r *http.Request) (string, bool) {
	p, ok := h.app.Params()
	if !ok {
		return "", false
	}
	return connection.MagicLink(h.base(r), p), true
}

// Invite handles GET /api/v1/invite
func (h *InviteHandler) Invite(w http.ResponseWriter, r *http.Request) {
	link, ok := h.link(r)
	if !ok {
		respondError(w, "server not configured", http.StatusServiceUnavailable)
		return
	}

	qr := "/api/v1/invite/qr.png"
	if b := r.URL.Query().Get("base"); b != "" {
		qr += "?" + url.Values{"base": {b}}.Encode()
	}

	respondJSON(w, InviteResponse{
		Link:        link,
		Text:        connection.InviteText(link),
		WhatsAppURL: connection.WhatsAppURL(link),
		QRCodeURL:   qr,
	}, http.StatusOK)
}

// QRCode handles GET /api/v1/invite/qr.png
func (h *InviteHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	link, ok := h.link(r)
	if !ok {
		respondError(w, "server not configured", http.StatusServiceUnavailable)
		return
	}

	size := 0
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxQRSize {
			respondError(w, "invalid size", http.StatusBadRequest)
			return
		}
		size = n
	}

	png, err := connection.QRCode(link, size)
	if err != nil {
		log.Error().Err(err).Msg("Failed to render invite QR code")
		respondError(w, "Failed to render QR code", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
