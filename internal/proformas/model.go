package proformas

import (
	"time"

	"github.com/shopspring/decimal"
)

type Item struct {
	ID          string          `bson:"id" json:"id"`
	Description string          `bson:"description" json:"description"`
	Amount      decimal.Decimal `bson:"amount" json:"amount"`
}

// Invoice is a proforma issued for a patient. Total and Remaining are
// derived from Items and Deposit on every write.
type Invoice struct {
	ID          string          `bson:"_id,omitempty" json:"id"`
	PatientID   string          `bson:"patientId" json:"patientId"`
	PatientName string          `bson:"patientName" json:"patientName"`
	CreatedBy   string          `bson:"createdBy" json:"createdBy"`
	Number      string          `bson:"number" json:"number"`
	Items       []Item          `bson:"items" json:"items"`
	Deposit     decimal.Decimal `bson:"deposit" json:"deposit"`
	Total       decimal.Decimal `bson:"total" json:"total"`
	Remaining   decimal.Decimal `bson:"remaining" json:"remaining"`
	Currency    string          `bson:"currency" json:"currency"`
	Notes       string          `bson:"notes,omitempty" json:"notes,omitempty"`
	IssueDate   string          `bson:"issueDate" json:"issueDate"`
	CreatedAt   time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time       `bson:"updatedAt" json:"updatedAt"`
}

type ItemRequest struct {
	ID          string          `json:"id"`
	Description string          `json:"description" validate:"required,max=500"`
	Amount      decimal.Decimal `json:"amount"`
}

type CreateRequest struct {
	PatientID string           `json:"patientId" validate:"required"`
	Items     []ItemRequest    `json:"items" validate:"max=100,dive"`
	Deposit   *decimal.Decimal `json:"deposit"`
	Currency  string           `json:"currency" validate:"omitempty,currency"`
	Notes     string           `json:"notes" validate:"max=2000"`
	IssueDate string           `json:"issueDate" validate:"omitempty,date"`
}

// UpdateRequest replaces Items when it is non-nil; an empty array clears them.
type UpdateRequest struct {
	Items     *[]ItemRequest   `json:"items" validate:"omitempty,max=100,dive"`
	Deposit   *decimal.Decimal `json:"deposit"`
	Currency  *string          `json:"currency" validate:"omitempty,currency"`
	Notes     *string          `json:"notes" validate:"omitempty,max=2000"`
	IssueDate *string          `json:"issueDate" validate:"omitempty,date"`
}
