package server

import (
	"html/template"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musiclink/internal/linking"
	"github.com/desertthunder/musiclink/internal/models"
)

// LinkResult is the outcome of one provider redirect.
type LinkResult struct {
	Provider models.Provider
	UserID   string
	Err      error
}

// CallbackHandler completes the authorization code flow for provider redirects.
// Implements the Handler interface for registration with a Router.
type CallbackHandler struct {
	coordinator *linking.Coordinator
	logger      *log.Logger
	results     chan LinkResult
}

// NewCallbackHandler creates a callback handler backed by coordinator.
func NewCallbackHandler(coordinator *linking.Coordinator, logger *log.Logger) *CallbackHandler {
	return &CallbackHandler{
		coordinator: coordinator,
		logger:      logger,
		results:     make(chan LinkResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *CallbackHandler) Routes() []string {
	return []string{"GET /auth/{provider}/callback"}
}

// ServeHTTP redeems the state and code from the redirect and renders a page for the browser.
//
// The outcome is also offered on [CallbackHandler.Results] without blocking.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	provider, err := pathProvider(r)
	if err != nil {
		h.render(w, http.StatusBadRequest, page{Title: "Authorization Failed", Message: err.Error()})
		return
	}

	q := r.URL.Query()
	userID, err := h.coordinator.CompleteLink(r.Context(), linking.Callback{
		Provider:         provider,
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})
	h.send(LinkResult{Provider: provider, UserID: userID, Err: err})

	if err != nil {
		code, _ := ErrorStatus(err)
		h.render(w, code, page{Title: "Authorization Failed", Message: err.Error()})
		return
	}

	h.render(w, http.StatusOK, page{
		Title:   "Authorization Successful",
		Message: provider.DisplayName() + " is linked. You can close this window and return to the terminal.",
		OK:      true,
	})
}

// Results delivers callback outcomes. Outcomes nobody is waiting for are dropped.
func (h *CallbackHandler) Results() <-chan LinkResult {
	return h.results
}

func (h *CallbackHandler) send(res LinkResult) {
	select {
	case h.results <- res:
	default:
	}
}

type page struct {
	Title   string
	Message string
	OK      bool
}

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { margin: 0 0 1rem 0; }
        h1.ok { color: #1DB954; }
        h1.failed { color: #D93025; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1 class="{{if .OK}}ok{{else}}failed{{end}}">{{if .OK}}✓{{else}}✗{{end}} {{.Title}}</h1>
        <p>{{.Message}}</p>
    </div>
</body>
</html>
`))

func (h *CallbackHandler) render(w http.ResponseWriter, code int, p page) {
	noCache(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := callbackPage.Execute(w, p); err != nil {
		h.logger.Warn("failed to render callback page", "error", err)
	}
}
