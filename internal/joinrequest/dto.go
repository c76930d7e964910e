package joinrequest

import "time"

// CreateJoinRequestRequest files an application to join a forming group.
type CreateJoinRequestRequest struct {
	GroupID       int64 `json:"group_id" example:"1"`
	PreferredSlot *int  `json:"preferred_slot,omitempty" example:"4"`
}

// JoinRequestResponse is the client-facing view of a join request.
type JoinRequestResponse struct {
	ID            int64     `json:"id"`
	GroupID       int64     `json:"group_id"`
	UserID        int64     `json:"user_id"`
	PreferredSlot *int      `json:"preferred_slot,omitempty"`
	Status        Status    `json:"status"`
	ExpiresAt     time.Time `json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// ToResponse converts a join request to its client-facing view
func (jr *JoinRequest) ToResponse() JoinRequestResponse {
	return JoinRequestResponse{
		ID:            jr.ID,
		GroupID:       jr.GroupID,
		UserID:        jr.UserID,
		PreferredSlot: jr.PreferredSlot,
		Status:        jr.Status,
		ExpiresAt:     jr.ExpiresAt,
		CreatedAt:     jr.CreatedAt,
	}
}
