package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/mcdev12/huroof/go/internal/models"
	"github.com/mcdev12/huroof/go/internal/token"
)

// DisplayLinkHandler lets a host hand a display screen its own credential,
// as a link or a QR code.
type DisplayLinkHandler struct {
	tokens    Tokens
	publicURL string
	qrSize    int
}

// NewDisplayLinkHandler creates the handler. publicURL is the origin the
// display page is served from.
func NewDisplayLinkHandler(tokens Tokens, publicURL string) *DisplayLinkHandler {
	return &DisplayLinkHandler{
		tokens:    tokens,
		publicURL: strings.TrimRight(publicURL, "/"),
		qrSize:    256,
	}
}

type displayLinkResponse struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// issue verifies the host token on r and issues a display token for the
// same session.
func (h *DisplayLinkHandler) issue(w http.ResponseWriter, r *http.Request) (*displayLinkResponse, bool) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}

	host, err := h.tokens.Verify(r.Context(), r.URL.Query().Get("token"))
	switch {
	case errors.Is(err, token.ErrTokenUnknown), errors.Is(err, token.ErrTokenExpired):
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return nil, false
	case err != nil:
		log.Error().Err(err).Msg("failed to verify host token")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	if host.Role != models.RoleHost {
		http.Error(w, "host token required", http.StatusForbidden)
		return nil, false
	}

	display, err := h.tokens.Issue(r.Context(), host.SessionID, "display", models.RoleDisplay)
	if err != nil {
		log.Error().Err(err).Str("session_id", host.SessionID).Msg("failed to issue display token")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}

	q := url.Values{}
	q.Set("sessionId", host.SessionID)
	q.Set("token", display.Token)
	return &displayLinkResponse{
		URL:   h.publicURL + "/display?" + q.Encode(),
		Token: display.Token,
	}, true
}

// HandleLink returns the display URL and token as JSON.
func (h *DisplayLinkHandler) HandleLink(w http.ResponseWriter, r *http.Request) {
	link, ok := h.issue(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(link); err != nil {
		log.Error().Err(err).Msg("failed to write display link")
	}
}

// HandleQR returns the display URL as a PNG QR code.
func (h *DisplayLinkHandler) HandleQR(w http.ResponseWriter, r *http.Request) {
	link, ok := h.issue(w, r)
	if !ok {
		return
	}
	png, err := qrcode.Encode(link.URL, qrcode.Medium, h.qrSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode display QR code")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

func (h *DisplayLinkHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/display-link", h.HandleLink)
	mux.HandleFunc("/api/display-qr", h.HandleQR)
}
