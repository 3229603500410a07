package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/groqchat/internal/observability"
	"github.com/harun/groqchat/internal/tracing"
	"github.com/harun/groqchat/pkg/session"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// ErrorPrefix starts every assistant message synthesized from a failure
const ErrorPrefix = "Error: "

// ErrNoAgent is reported when a turn reaches a session that was never bootstrapped
var ErrNoAgent = errors.New("no agent configured for this session")

// Turn runs one exchange on sess. It returns the assistant message appended
// for input, or false when input was blank and nothing happened. Turns on the
// same session run one at a time.
func Turn(ctx context.Context, sess *session.Session, input string) (session.Message, bool) {
	if sess == nil || strings.TrimSpace(input) == "" {
		return session.Message{}, false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sess.LockTurn()
	defer sess.UnlockTurn()

	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.NewRequestContext(ctx)
	}
	ctx = tracing.WithSessionID(ctx, sess.ID)
	ctx = tracing.WithTurnID(ctx, tracing.NewTurnID())
	ctx, span := tracing.StartSpan(ctx, "groqchat.chat", "chat.turn",
		attribute.String("session_id", sess.ID),
		attribute.Int("input_length", len(input)),
	)
	logger := tracing.LoggerFromContext(ctx, log.Logger)
	start := time.Now()

	history := sess.Messages()
	sess.Append(session.NewMessage(session.RoleUser, input))

	reply, err := respond(ctx, sess.Agent(), input, history)

	var msg session.Message
	if err != nil {
		msg = session.NewMessage(session.RoleAssistant, ErrorPrefix+err.Error())
		msg.Failed = true
	} else {
		msg = session.NewMessage(session.RoleAssistant, reply)
	}
	sess.Append(msg)
	sess.Touch(time.Now())

	duration := time.Since(start)
	observability.RecordTurn(duration, err == nil)
	tracing.EndSpan(span, err)

	if err != nil {
		logger.Warn().Err(err).Dur("duration", duration).Msg("Turn failed")
	} else {
		logger.Info().
			Dur("duration", duration).
			Int("reply_length", len(reply)).
			Msg("Turn completed")
	}

	return msg, true
}

// respond calls agent and turns a panic into an error
func respond(ctx context.Context, agent session.Responder, input string, history []session.Message) (reply string, err error) {
	if agent == nil {
		return "", ErrNoAgent
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent panicked: %v", r)
		}
	}()

	return agent.Respond(ctx, input, history)
}
