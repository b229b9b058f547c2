package domain

import (
	"time"

	"github.com/google/uuid"
)

// InterestEdge is a directed "like" from one user to another.
type InterestEdge struct {
	FromUserID uuid.UUID `json:"from_user_id"`
	ToUserID   uuid.UUID `json:"to_user_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Match is stored once per canonical pair (UserAID < UserBID).
type Match struct {
	ID           uuid.UUID  `json:"id"`
	UserAID      uuid.UUID  `json:"user_a_id"`
	UserBID      uuid.UUID  `json:"user_b_id"`
	FirstLikedAt time.Time  `json:"first_liked_at"`
	MutualAt     *time.Time `json:"mutual_at,omitempty"`
	IsMutual     bool       `json:"is_mutual"`
	// Filled for the viewing user
	OtherUserID uuid.UUID `json:"other_user_id,omitempty"`
}

// HasParticipant reports whether userID is one side of the match.
func (m *Match) HasParticipant(userID uuid.UUID) bool {
	return m.UserAID == userID || m.UserBID == userID
}

// Other returns the participant that is not userID.
func (m *Match) Other(userID uuid.UUID) uuid.UUID {
	if m.UserAID == userID {
		return m.UserBID
	}
	return m.UserAID
}

// InterestResult is what registering an interest reports back to the caller.
type InterestResult struct {
	IsMatch bool       `json:"is_match"`
	MatchID *uuid.UUID `json:"match_id,omitempty"`
	// BecameMutual is true only for the call that performed the false->true flip.
	BecameMutual bool `json:"-"`
}
