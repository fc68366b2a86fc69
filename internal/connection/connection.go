package connection

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

// Query parameters carried by a magic link
const (
	QueryURL = "sbUrl"
	QueryKey = "sbKey"
)

// Local store keys
const (
	storeKeyURL = "neonmatch_sb_url"
	storeKeyKey = "neonmatch_sb_key"
)

// Params holds the backend connection parameters
type Params struct {
	URL string `json:"url" yaml:"url"`
	Key string `json:"key" yaml:"key"`
}

// Valid reports whether both parameters are present and the URL is usable
func (p Params) Valid() bool {
	if p.URL == "" || p.Key == "" {
		return false
	}
	u, err := url.Parse(p.URL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (p Params) trimmed() Params {
	return Params{URL: strings.TrimSpace(p.URL), Key: strings.TrimSpace(p.Key)}
}

// KV is the local persistent storage the manager writes to
type KV interface {
	Get(key string) (string, bool)
	SetMany(pairs map[string]string) error
}

// Manager resolves and persists connection parameters
type Manager struct {
	kv       KV
	defaults Params
}

// NewManager creates a manager. defaults are used when nothing was saved.
func NewManager(kv KV, defaults Params) *Manager {
	return &Manager{kv: kv, defaults: defaults.trimmed()}
}

// FromQuery extracts magic-link parameters. Both must be present.
func FromQuery(q url.Values) (Params, bool) {
	p := Params{URL: q.Get(QueryURL), Key: q.Get(QueryKey)}.trimmed()
	if p.URL == "" || p.Key == "" {
		return Params{}, false
	}
	return p, true
}

// Resolve returns the parameters to connect with. Magic-link query values win
// and are persisted; the second result reports that case so callers can strip
// the URL. Then previously saved values, then defaults. The last result is
// false when nothing is available.
func (m *Manager) Resolve(q url.Values) (Params, bool, bool) {
	if p, ok := FromQuery(q); ok {
		if err := m.Save(p); err != nil {
			log.Error().Err(err).Msg("Failed to persist magic link parameters")
		}
		return p, true, true
	}

	if p, ok := m.Saved(); ok {
		return p, false, true
	}

	if m.defaults.URL != "" && m.defaults.Key != "" {
		return m.defaults, false, true
	}

	return Params{}, false, false
}

// Saved returns the persisted parameters, if any
func (m *Manager) Saved() (Params, bool) {
	u, okURL := m.kv.Get(storeKeyURL)
	k, okKey := m.kv.Get(storeKeyKey)
	if !okURL || !okKey || u == "" || k == "" {
		return Params{}, false
	}
	return Params{URL: u, Key: k}, true
}

// Save replaces the persisted parameters
func (m *Manager) Save(p Params) error {
	p = p.trimmed()
	if err := m.kv.SetMany(map[string]string{
		storeKeyURL: p.URL,
		storeKeyKey: p.Key,
	}); err != nil {
		return fmt.Errorf("failed to save connection params: %w", err)
	}
	return nil
}

// StripQuery returns u without the magic-link parameters
func StripQuery(u *url.URL) string {
	clean := *u
	q := clean.Query()
	q.Del(QueryURL)
	q.Del(QueryKey)
	clean.RawQuery = q.Encode()
	return clean.String()
}

// MagicLink builds an onboarding link for base carrying p
func MagicLink(base string, p Params) string {
	base = strings.TrimSuffix(strings.TrimSpace(base), "/")
	return fmt.Sprintf("%s?%s=%s&%s=%s",
		base, QueryURL, url.QueryEscape(p.URL), QueryKey, url.QueryEscape(p.Key))
}

// InviteText is the message shared alongside a magic link
func InviteText(link string) string {
	return "¡Únete a la fiesta en NeonMatch! Entra aquí para conseguir tu número: " + link
}

// WhatsAppURL returns a share URL for the invite text
func WhatsAppURL(link string) string {
	return "https://wa.me/?text=" + url.QueryEscape(InviteText(link))
}

// QRCode renders link as a PNG QR code of size x size pixels
func QRCode(link string, size int) ([]byte, error) {
	if size <= 0 {
		size = 300
	}
	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}
	return png, nil
}
