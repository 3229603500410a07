package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/harun/groqchat/internal/observability"
	"github.com/harun/groqchat/pkg/chat"
)

// handleIndex shows the credential form until the session has an agent and
// the transcript afterwards. Rendering never changes session state.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}

	if !sess.HasAgent() {
		s.render(w, http.StatusOK, "credential.html", credentialPage{Title: s.title})
		return
	}

	s.render(w, http.StatusOK, "chat.html", chatPage{
		Title:    s.title,
		Messages: toViews(sess.Messages()),
	})
}

// handleCredential bootstraps the session from the submitted API key
func (s *Server) handleCredential(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	err := s.bootstrapper.Bootstrap(r.Context(), sess, r.PostFormValue("api_key"))
	switch {
	case errors.Is(err, chat.ErrMissingCredential):
		s.render(w, http.StatusBadRequest, "credential.html", credentialPage{
			Title: s.title,
			Error: "An API key is required.",
		})
	case err != nil:
		s.render(w, http.StatusInternalServerError, "credential.html", credentialPage{
			Title: s.title,
			Error: "Could not start the chat session. Please try again.",
		})
	default:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// handleChat runs one turn for the submitted message and redirects back to
// the transcript. The turn outlives a client that navigates away.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	if !sess.HasAgent() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	message := r.PostFormValue("message")
	if strings.TrimSpace(message) != "" {
		if _, err := s.runTurn(r.Context(), sess, "", message); err != nil {
			http.Error(w, "Too many messages. Please wait a moment and try again.", http.StatusTooManyRequests)
			return
		}
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// rateLimited is recorded and returned when a session exceeds its turn budget
func rateLimited(reason string) error {
	observability.RecordRateLimited()
	return &RPCError{Code: RateLimitExceeded, Message: reason}
}
