package transfers

import "time"

type Type string

const (
	TypeGive Type = "give"
	TypeTake Type = "take"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Transfer asks to move a patient between salespeople. FromUserID is always
// the requester; ToUserID is the recipient for give and the current owner
// for take.
type Transfer struct {
	ID              string     `bson:"_id,omitempty" json:"id"`
	PatientID       string     `bson:"patientId" json:"patientId"`
	PatientName     string     `bson:"patientName" json:"patientName"`
	FromUserID      string     `bson:"fromUserId" json:"fromUserId"`
	ToUserID        string     `bson:"toUserId" json:"toUserId"`
	Type            Type       `bson:"type" json:"type"`
	Status          Status     `bson:"status" json:"status"`
	Reason          string     `bson:"reason,omitempty" json:"reason,omitempty"`
	Notes           string     `bson:"notes,omitempty" json:"notes,omitempty"`
	ApprovedBy      string     `bson:"approvedBy,omitempty" json:"approvedBy,omitempty"`
	RejectedBy      string     `bson:"rejectedBy,omitempty" json:"rejectedBy,omitempty"`
	RejectionReason string     `bson:"rejectionReason,omitempty" json:"rejectionReason,omitempty"`
	DecidedAt       *time.Time `bson:"decidedAt,omitempty" json:"decidedAt,omitempty"`
	CreatedAt       time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// NewOwner is who holds the patient once the transfer is approved.
func (t Transfer) NewOwner() string {
	if t.Type == TypeTake {
		return t.FromUserID
	}
	return t.ToUserID
}

type CreateRequest struct {
	PatientID string `json:"patientId" validate:"required"`
	ToUserID  string `json:"toUserId"`
	Type      string `json:"type" validate:"required,oneof=give take"`
	Reason    string `json:"reason" validate:"max=500"`
	Notes     string `json:"notes" validate:"max=2000"`
}

type RejectRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type ListFilter struct {
	Status string
}

type Decision struct {
	Status    Status
	DecidedBy string
	Reason    string
	At        time.Time
}
