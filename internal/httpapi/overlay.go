package httpapi

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/lukasbauer/captions/internal/captions"
)

//go:embed static/overlay.html.tmpl static/subtitles.svg
var staticFiles embed.FS

var overlayTemplate = template.Must(template.ParseFS(staticFiles, "static/overlay.html.tmpl"))

type overlayPage struct {
	View      captions.View
	IconURL   string
	ToggleURL string
	FeedURL   string
}

func (r *Router) handleOverlay(w http.ResponseWriter, _ *http.Request) {
	base := strings.TrimRight(r.cfg.BaseURL, "/")
	page := overlayPage{
		View:      r.currentView(),
		IconURL:   base + "/subtitles.svg",
		ToggleURL: base + "/api/captions/toggle",
		FeedURL:   wsURLFromPublicBase(base) + "/captions/ws",
	}

	var buf bytes.Buffer
	if err := overlayTemplate.Execute(&buf, page); err != nil {
		r.logger.Errorf("overlay: render failed: %v", err)
		http.Error(w, "failed to render overlay", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (r *Router) handleSubtitlesIcon(w http.ResponseWriter, _ *http.Request) {
	icon, err := staticFiles.ReadFile("static/subtitles.svg")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(icon)
}

func wsURLFromPublicBase(publicBase string) string {
	// http://x -> ws://x
	// https://x -> wss://x
	if strings.HasPrefix(publicBase, "https://") {
		return "wss://" + strings.TrimPrefix(publicBase, "https://")
	}
	if strings.HasPrefix(publicBase, "http://") {
		return "ws://" + strings.TrimPrefix(publicBase, "http://")
	}
	// assume already host[:port]
	return "wss://" + publicBase
}
