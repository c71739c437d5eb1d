package notifications

import "time"

type Type string

const (
	TypeTransferRequest  Type = "transfer_request"
	TypeTransferApproved Type = "transfer_approved"
	TypeTransferRejected Type = "transfer_rejected"
)

type Notification struct {
	ID         string    `bson:"_id,omitempty" json:"id"`
	TransferID string    `bson:"transferId,omitempty" json:"transferId,omitempty"`
	UserID     string    `bson:"userId" json:"userId"`
	Type       Type      `bson:"type" json:"type"`
	Message    string    `bson:"message" json:"message"`
	IsRead     bool      `bson:"isRead" json:"isRead"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
}
