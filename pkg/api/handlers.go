package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/accfleet/accfleet/pkg/browser"
)

type createRequest struct {
	Key         string                    `json:"key"`
	Cookies     browser.CookieJar         `json:"cookies,omitempty"`
	Credentials *browser.Credentials      `json:"credentials,omitempty"`
	Proxy       *browser.ProxyDescriptor  `json:"proxy,omitempty"`
	Headless    *bool                     `json:"headless,omitempty"`
}

type sessionResponse struct {
	Session browser.SessionSummary `json:"session"`
}

type errorResponse struct {
	Error      string `json:"error"`
	State      string `json:"state,omitempty"`
	Screenshot string `json:"screenshot,omitempty"`
}

type checkResponse struct {
	State       browser.AccountState `json:"state"`
	Message     string               `json:"message"`
	AccountName string               `json:"accountName,omitempty"`
	Screenshot  string               `json:"screenshot,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if req.Key == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "key is required"})
		return
	}

	headless := true
	if req.Headless != nil {
		headless = *req.Headless
	}
	material := browser.AuthMaterial{Cookies: req.Cookies, Credentials: req.Credentials}

	create := s.sessions.Create
	if r.URL.Query().Get("nowait") == "1" {
		create = s.sessions.CreateNoWait
	}

	session, err := create(r.Context(), browser.SessionKey(req.Key), material, req.Proxy, headless)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sessionResponse{Session: session.Summary()})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"sessions": s.sessions.List()})
}

func (s *Server) handleCount(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]int{"count": s.sessions.Count()})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	key := browser.SessionKey(chi.URLParam(r, "key"))
	if err := s.sessions.Close(key); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"closed": true})
}

func (s *Server) handleCloseAll(w http.ResponseWriter, _ *http.Request) {
	if err := s.sessions.CloseAll(); err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"closed": true})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	key := browser.SessionKey(chi.URLParam(r, "key"))
	session, err := s.sessions.ToggleVisibility(r.Context(), key)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse{Session: session.Summary()})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	key := browser.SessionKey(chi.URLParam(r, "key"))
	session, err := s.sessions.Get(key)
	if err != nil {
		s.respondError(w, err)
		return
	}
	report, err := s.prober.Classify(r.Context(), session)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, checkResponse{
		State:       report.State,
		Message:     report.Message,
		AccountName: report.AccountName,
		Screenshot:  encodeScreenshot(report.Screenshot),
	})
}

func (s *Server) handleProxyTest(w http.ResponseWriter, r *http.Request) {
	var desc browser.ProxyDescriptor
	if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, s.proxies.Check(r.Context(), desc))
}

// respondError maps the core's typed errors onto facade status codes.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	var authErr *browser.AuthError
	if errors.As(err, &authErr) {
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:      authErr.Error(),
			State:      string(authErr.Outcome.State),
			Screenshot: encodeScreenshot(authErr.Outcome.Screenshot),
		})
		return
	}

	var proxyErr *browser.ProxyError
	if errors.As(err, &proxyErr) {
		respondJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	var timeoutErr *browser.TimeoutError
	if errors.As(err, &timeoutErr) {
		respondJSON(w, http.StatusGatewayTimeout, errorResponse{Error: err.Error()})
		return
	}

	switch {
	case errors.Is(err, browser.ErrSessionNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, browser.ErrSessionBusy),
		errors.Is(err, browser.ErrConcurrentCreation):
		respondJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, browser.ErrSessionClosed):
		respondJSON(w, http.StatusGone, errorResponse{Error: err.Error()})
	default:
		if s.log != nil {
			s.log.Errorf("request failed: %v", err)
		}
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func encodeScreenshot(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}
