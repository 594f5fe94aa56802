package cart

import (
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/assetdrop-backend/pkg/errors"
)

const (
	identityKindUser    = "user"
	identityKindSession = "session"
)

// Identity names the owner of a cart: an authenticated user or an anonymous
// browser session. When both are present the user wins.
type Identity struct {
	UserID    *uuid.UUID
	SessionID string
}

func UserIdentity(userID uuid.UUID) Identity {
	return Identity{UserID: &userID}
}

func SessionIdentity(sessionID string) Identity {
	return Identity{SessionID: sessionID}
}

func (i Identity) normalize() (Identity, error) {
	if i.UserID != nil && *i.UserID != uuid.Nil {
		return Identity{UserID: i.UserID}, nil
	}
	if session := strings.TrimSpace(i.SessionID); session != "" {
		return Identity{SessionID: session}, nil
	}
	return Identity{}, pkgerrors.New(pkgerrors.CodeValidation, "user or session identity required")
}

// key returns the identity kind and its value as used in cache keys.
func (i Identity) key() (string, string) {
	if i.UserID != nil {
		return identityKindUser, i.UserID.String()
	}
	return identityKindSession, i.SessionID
}

func (i Identity) isUser() bool {
	return i.UserID != nil
}

func identityOf(userID *uuid.UUID, sessionID *string) Identity {
	if userID != nil {
		return Identity{UserID: userID}
	}
	if sessionID != nil {
		return Identity{SessionID: *sessionID}
	}
	return Identity{}
}
