package calendar

import "time"

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Event is a personal reminder. Date and Time are wall-clock values in the
// clinic timezone.
type Event struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	OwnerID   string    `bson:"ownerId" json:"ownerId"`
	Title     string    `bson:"title" json:"title"`
	Date      string    `bson:"date" json:"date"`
	Time      string    `bson:"time,omitempty" json:"time,omitempty"`
	Priority  Priority  `bson:"priority" json:"priority"`
	Completed bool      `bson:"completed" json:"completed"`
	Notes     string    `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

type CreateRequest struct {
	Title    string `json:"title" validate:"required,max=200"`
	Date     string `json:"date" validate:"required,date"`
	Time     string `json:"time" validate:"omitempty,clock"`
	Priority string `json:"priority" validate:"omitempty,oneof=low medium high"`
	Notes    string `json:"notes" validate:"max=2000"`
}

type UpdateRequest struct {
	Title     *string `json:"title" validate:"omitempty,max=200"`
	Date      *string `json:"date" validate:"omitempty,date"`
	Time      *string `json:"time" validate:"omitempty,clock|len=0"`
	Priority  *string `json:"priority" validate:"omitempty,oneof=low medium high"`
	Completed *bool   `json:"completed"`
	Notes     *string `json:"notes" validate:"omitempty,max=2000"`
}

// ListFilter selects one day (Date) or an inclusive range (From, To).
// OwnerID is honoured for admins only.
type ListFilter struct {
	Date    string
	From    string
	To      string
	OwnerID string
}
