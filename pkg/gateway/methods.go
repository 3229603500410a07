package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/harun/groqchat/pkg/chat"
	"github.com/harun/groqchat/pkg/session"
)

func (s *Server) registerMethods() {
	s.router.RegisterMethod("chat.send", s.handleChatSend)
	s.router.RegisterMethod("chat.history", s.handleChatHistory)
	s.router.RegisterMethod("session.credential", s.handleSessionCredential)
}

// handleChatSend runs one turn. Without an agent nothing is appended.
func (s *Server) handleChatSend(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	sess := sessionFromContext(ctx)
	if sess == nil {
		return nil, &RPCError{Code: InternalError, Message: "no session"}
	}
	if !sess.HasAgent() {
		return nil, &RPCError{Code: AuthenticationRequired, Message: "API key required"}
	}

	message, ok := params["message"].(string)
	if !ok && params["message"] != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "message must be a string"}
	}
	if strings.TrimSpace(message) == "" {
		return map[string]interface{}{"accepted": false}, nil
	}

	reply, err := s.runTurn(ctx, sess, clientIDFromContext(ctx), message)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"accepted": true,
		"reply":    toView(reply),
	}, nil
}

func (s *Server) handleChatHistory(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	sess := sessionFromContext(ctx)
	if sess == nil {
		return nil, &RPCError{Code: InternalError, Message: "no session"}
	}

	return map[string]interface{}{
		"ready":    sess.HasAgent(),
		"messages": toViews(sess.Messages()),
	}, nil
}

// handleSessionCredential bootstraps the session. The key is never echoed.
func (s *Server) handleSessionCredential(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	sess := sessionFromContext(ctx)
	if sess == nil {
		return nil, &RPCError{Code: InternalError, Message: "no session"}
	}

	apiKey, _ := params["apiKey"].(string)
	err := s.bootstrapper.Bootstrap(ctx, sess, apiKey)
	switch {
	case errors.Is(err, chat.ErrMissingCredential):
		return nil, &RPCError{Code: InvalidParams, Message: "API key is required"}
	case err != nil:
		return nil, &RPCError{Code: InternalError, Message: "failed to start chat session"}
	}

	return map[string]interface{}{"ready": true}, nil
}

// runTurn applies the session's rate limit, runs the turn and pushes the
// exchange to the session's other websocket clients.
func (s *Server) runTurn(ctx context.Context, sess *session.Session, originClientID, input string) (session.Message, error) {
	limiter := s.limiters.forSession(sess.ID)
	if allowed, reason := limiter.Acquire(); !allowed {
		s.logger.Warn().Str("session_id", sess.ID).Str("reason", reason).Msg("Turn rejected by rate limiter")
		return session.Message{}, rateLimited(reason)
	}

	reply, ok := chat.Turn(context.WithoutCancel(ctx), sess, input)
	if ok {
		s.broadcaster.BroadcastToSession(sess.ID, originClientID, "chat.turn", map[string]interface{}{
			"input": MessageView{Role: string(session.RoleUser), Content: input},
			"reply": toView(reply),
		})
	}
	return reply, nil
}

func toView(msg session.Message) MessageView {
	return MessageView{
		Role:    string(msg.Role),
		Content: msg.Content,
		Failed:  msg.Failed,
	}
}

func toViews(msgs []session.Message) []MessageView {
	views := make([]MessageView, 0, len(msgs))
	for _, msg := range msgs {
		views = append(views, toView(msg))
	}
	return views
}
