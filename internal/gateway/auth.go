package gateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/kimmyxpow/focus-sub001/internal/apperrors"
	"github.com/kimmyxpow/focus-sub001/internal/auth"
	"github.com/kimmyxpow/focus-sub001/internal/events"
	"github.com/kimmyxpow/focus-sub001/internal/session"
)

// Authorizer gates channel joins before any upgrade happens. The session
// channel requires an authenticated identity; the chat channel additionally
// requires active-participant status on the session.
type Authorizer struct {
	verifier *auth.Verifier
	sessions session.Repository
}

func NewAuthorizer(verifier *auth.Verifier, sessions session.Repository) *Authorizer {
	return &Authorizer{
		verifier: verifier,
		sessions: sessions,
	}
}

// AuthorizeJoin verifies the token and, for the chat channel, the caller's
// participation. Returns the verified identity.
func (a *Authorizer) AuthorizeJoin(ctx context.Context, token string, sessionID uuid.UUID, channel events.Channel) (uuid.UUID, error) {
	userID, err := a.verifier.Verify(token)
	if err != nil {
		return uuid.Nil, err
	}

	if channel == events.ChannelChat {
		sess, err := a.sessions.GetSession(ctx, sessionID)
		if err != nil {
			return uuid.Nil, err
		}
		p := sess.ParticipantByUser(userID)
		if p == nil || !p.IsActive {
			return uuid.Nil, apperrors.Permission("not_a_participant",
				"chat channel requires active participation")
		}
	}

	return userID, nil
}
