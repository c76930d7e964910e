package group

// CreateGroupRequest represents the request to create a new group.
// Amounts are in minor currency units (kobo).
type CreateGroupRequest struct {
	Name               string    `json:"name" validate:"required,min=1,max=100"`
	ContributionAmount int64     `json:"contribution_amount" validate:"required,gt=0"`
	DepositAmount      int64     `json:"deposit_amount" validate:"gte=0"`
	TotalSlots         int       `json:"total_slots" validate:"required,min=2,max=100"`
	Frequency          Frequency `json:"frequency" validate:"required"`
}

// GroupResponse represents the response for a group
type GroupResponse struct {
	ID                 int64             `json:"id"`
	Name               string            `json:"name"`
	CreatorID          int64             `json:"creator_id"`
	ContributionAmount int64             `json:"contribution_amount"`
	DepositAmount      int64             `json:"deposit_amount"`
	TotalSlots         int               `json:"total_slots"`
	Frequency          Frequency         `json:"frequency"`
	CurrentCycle       int               `json:"current_cycle"`
	Status             Status            `json:"status"`
	CreatedAt          string            `json:"created_at"`
	Members            []*MemberResponse `json:"members,omitempty"`
}

// MemberResponse represents a member in a group response
type MemberResponse struct {
	UserID         int64  `json:"user_id"`
	Position       int    `json:"position"`
	Status         string `json:"status"`
	IsCreator      bool   `json:"is_creator"`
	HasPaidDeposit bool   `json:"has_paid_deposit"`
	JoinedAt       string `json:"joined_at"`
}

// ToResponse converts a Group model to a GroupResponse DTO
func (g *Group) ToResponse() *GroupResponse {
	return &GroupResponse{
		ID:                 g.ID,
		Name:               g.Name,
		CreatorID:          g.CreatorID,
		ContributionAmount: g.ContributionAmount,
		DepositAmount:      g.DepositAmount,
		TotalSlots:         g.TotalSlots,
		Frequency:          g.Frequency,
		CurrentCycle:       g.CurrentCycle,
		Status:             g.Status,
		CreatedAt:          g.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// ToResponse converts a Member view to a MemberResponse DTO
func (m *Member) ToResponse() *MemberResponse {
	return &MemberResponse{
		UserID:         m.UserID,
		Position:       m.Position,
		Status:         m.Status,
		IsCreator:      m.IsCreator,
		HasPaidDeposit: m.HasPaidDeposit,
		JoinedAt:       m.JoinedAt.Format("2006-01-02T15:04:05Z"),
	}
}
