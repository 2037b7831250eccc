package models

import (
	"time"

	"github.com/google/uuid"
)

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "PENDING"
	FriendshipAccepted FriendshipStatus = "ACCEPTED"
)

// Friendship is an undirected edge between two accounts. Participants are
// stored ordered (ParticipantA < ParticipantB) so a pair has one row.
type Friendship struct {
	ID           uuid.UUID        `json:"id"`
	ParticipantA uuid.UUID        `json:"participant_a"`
	ParticipantB uuid.UUID        `json:"participant_b"`
	Status       FriendshipStatus `json:"status"`
	RequesterID  uuid.UUID        `json:"requester_id"`
	CreatedAt    time.Time        `json:"created_at"`
	RespondedAt  *time.Time       `json:"responded_at,omitempty"`
}

// NewFriendship builds a pending request from requester to addressee.
func NewFriendship(requester, addressee uuid.UUID) *Friendship {
	a, b := requester, addressee
	if b.String() < a.String() {
		a, b = b, a
	}
	return &Friendship{
		ParticipantA: a,
		ParticipantB: b,
		Status:       FriendshipPending,
		RequesterID:  requester,
	}
}

// Other returns the participant that is not self. ok is false when self
// does not participate in the edge.
func (f *Friendship) Other(self uuid.UUID) (uuid.UUID, bool) {
	switch self {
	case f.ParticipantA:
		return f.ParticipantB, f.ParticipantB != self
	case f.ParticipantB:
		return f.ParticipantA, f.ParticipantA != self
	}
	return uuid.Nil, false
}

func (f *Friendship) Involves(id uuid.UUID) bool {
	return f.ParticipantA == id || f.ParticipantB == id
}
