package leads

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const MaxConsultations = 4

type Lead struct {
	ID               string          `bson:"_id,omitempty" json:"id"`
	Name             string          `bson:"name" json:"name"`
	Email            string          `bson:"email,omitempty" json:"email,omitempty"`
	Phone            string          `bson:"phone" json:"phone"`
	Country          string          `bson:"country,omitempty" json:"country,omitempty"`
	Source           string          `bson:"source,omitempty" json:"source,omitempty"`
	Treatment        string          `bson:"treatment,omitempty" json:"treatment,omitempty"`
	Notes            string          `bson:"notes,omitempty" json:"notes,omitempty"`
	Status           Status          `bson:"status" json:"status"`
	AssignedTo       string          `bson:"assignedTo" json:"assignedTo"`
	Price            decimal.Decimal `bson:"price" json:"price"`
	Deposit          decimal.Decimal `bson:"deposit" json:"deposit"`
	Currency         string          `bson:"currency" json:"currency"`
	SaleDate         string          `bson:"saleDate,omitempty" json:"saleDate,omitempty"`
	ArrivalDate      string          `bson:"arrivalDate,omitempty" json:"arrivalDate,omitempty"`
	Consultations    []Consultation  `bson:"consultations,omitempty" json:"consultations"`
	NextFollowUpDate string          `bson:"nextFollowUpDate,omitempty" json:"nextFollowUpDate,omitempty"`
	Files            []FileRef       `bson:"files,omitempty" json:"files"`
	CreatedAt        time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time       `bson:"updatedAt" json:"updatedAt"`
}

// Stage places the lead in the pipeline. Sold leads with an arrival date are
// in treatment.
func (l Lead) Stage() Stage {
	st, _ := l.Status.stage()
	if st == StageSold && strings.TrimSpace(l.ArrivalDate) != "" {
		return StageTreatment
	}
	return st
}

type Consultation struct {
	Index  int    `bson:"index" json:"index"`
	Date   string `bson:"date,omitempty" json:"date,omitempty"`
	Status string `bson:"status,omitempty" json:"status,omitempty"`
	Notes  string `bson:"notes,omitempty" json:"notes,omitempty"`
}

type FileRef struct {
	FileID     string    `bson:"fileId" json:"fileId"`
	Name       string    `bson:"name" json:"name"`
	Type       string    `bson:"type" json:"type"`
	UploadedAt time.Time `bson:"uploadedAt" json:"uploadedAt"`
}

type CreateRequest struct {
	Name        string           `json:"name" validate:"required,max=200"`
	Email       string           `json:"email" validate:"omitempty,email"`
	Phone       string           `json:"phone" validate:"required,phone"`
	Country     string           `json:"country" validate:"max=80"`
	Source      string           `json:"source" validate:"max=80"`
	Treatment   string           `json:"treatment" validate:"max=200"`
	Notes       string           `json:"notes" validate:"max=5000"`
	Status      string           `json:"status"`
	AssignedTo  string           `json:"assignedTo"`
	Price       *decimal.Decimal `json:"price"`
	Deposit     *decimal.Decimal `json:"deposit"`
	Currency    string           `json:"currency" validate:"omitempty,currency"`
	SaleDate    string           `json:"saleDate" validate:"omitempty,date"`
	ArrivalDate string           `json:"arrivalDate" validate:"omitempty,date"`
}

// UpdateRequest is a partial update; nil fields are left unchanged.
type UpdateRequest struct {
	Name             *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Email            *string          `json:"email" validate:"omitempty,email"`
	Phone            *string          `json:"phone" validate:"omitempty,phone"`
	Country          *string          `json:"country" validate:"omitempty,max=80"`
	Source           *string          `json:"source" validate:"omitempty,max=80"`
	Treatment        *string          `json:"treatment" validate:"omitempty,max=200"`
	Notes            *string          `json:"notes" validate:"omitempty,max=5000"`
	Status           *string          `json:"status"`
	AssignedTo       *string          `json:"assignedTo"`
	Price            *decimal.Decimal `json:"price"`
	Deposit          *decimal.Decimal `json:"deposit"`
	Currency         *string          `json:"currency" validate:"omitempty,currency"`
	SaleDate         *string          `json:"saleDate" validate:"omitempty,date"`
	ArrivalDate      *string          `json:"arrivalDate" validate:"omitempty,date"`
	NextFollowUpDate *string          `json:"nextFollowUpDate" validate:"omitempty,date"`
}

type StatusUpdateRequest struct {
	Status string `json:"status" validate:"required"`
}

type ConsultationRequest struct {
	Date   string `json:"date" validate:"omitempty,date"`
	Status string `json:"status" validate:"max=64"`
	Notes  string `json:"notes" validate:"max=2000"`
}

type AttachFileRequest struct {
	FileID string `json:"fileId" validate:"required"`
	Name   string `json:"name" validate:"required,max=255"`
	Type   string `json:"type" validate:"required,max=127"`
}

// ImportRequest is the payload of the lead import webhook. Every field is
// optional.
type ImportRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Country   string `json:"country"`
	Source    string `json:"source"`
	Treatment string `json:"treatment"`
	Notes     string `json:"notes"`
	Currency  string `json:"currency"`
}

type ListFilter struct {
	Status     string
	Stage      string
	AssignedTo string
}

type StatusCount struct {
	Status Status `json:"status"`
	Stage  Stage  `json:"stage"`
	Count  int64  `json:"count"`
}
