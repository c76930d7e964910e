package group

import "time"

// Status represents the lifecycle state of a group
type Status string

const (
	// StatusForming means the group is still filling its slots and accepts
	// join requests.
	StatusForming Status = "forming"
	// StatusActive means every slot is taken and contribution cycles run.
	StatusActive Status = "active"
	// StatusCompleted means every cycle has paid out.
	StatusCompleted Status = "completed"
	// StatusCancelled means the group was abandoned before activation.
	StatusCancelled Status = "cancelled"
)

// Frequency represents the contribution cadence
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Group represents a rotating savings group. Members contribute
// ContributionAmount per cycle and slot k collects the pool in cycle k.
// Amounts are in minor currency units (kobo).
type Group struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	CreatorID          int64     `json:"creator_id"`
	ContributionAmount int64     `json:"contribution_amount"`
	DepositAmount      int64     `json:"deposit_amount"`
	TotalSlots         int       `json:"total_slots"`
	Frequency          Frequency `json:"frequency"`
	CurrentCycle       int       `json:"current_cycle"`
	Status             Status    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
}

// JoinCost is the amount a new member pays on entry: the security deposit
// plus the first contribution.
func (g *Group) JoinCost() int64 {
	return g.DepositAmount + g.ContributionAmount
}

// Member is the roster view of a group member used by group responses.
type Member struct {
	UserID         int64     `json:"user_id"`
	Position       int       `json:"position"`
	Status         string    `json:"status"`
	IsCreator      bool      `json:"is_creator"`
	HasPaidDeposit bool      `json:"has_paid_deposit"`
	JoinedAt       time.Time `json:"joined_at"`
}
