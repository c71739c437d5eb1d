package activity

type Type string

const (
	TypeLogin        Type = "login"
	TypeStatusUpdate Type = "status_update"
	TypeTabVisit     Type = "tab_visit"
)

func (t Type) Valid() bool {
	switch t {
	case TypeLogin, TypeStatusUpdate, TypeTabVisit:
		return true
	}
	return false
}

// Entry is an append-only audit record. UserName is a snapshot taken when the
// entry is written.
type Entry struct {
	ID        string                 `bson:"_id,omitempty" json:"id"`
	Type      Type                   `bson:"type" json:"type"`
	UserID    string                 `bson:"userId" json:"userId"`
	UserName  string                 `bson:"userName" json:"userName"`
	Timestamp string                 `bson:"timestamp" json:"timestamp"`
	Details   map[string]interface{} `bson:"details,omitempty" json:"details,omitempty"`
}

// StatusChange describes a lead status transition that actually changed value.
type StatusChange struct {
	PatientID   string
	PatientName string
	OldStatus   string
	NewStatus   string
}

type ListFilter struct {
	Type   Type
	UserID string
	From   string
	To     string
}

type TabVisitRequest struct {
	Tab string `json:"tab" validate:"required,max=64"`
}
