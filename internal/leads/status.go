package leads

import (
	"errors"
	"strings"
)

var (
	ErrInvalidStatus = errors.New("invalid status")
	ErrInvalidStage  = errors.New("invalid stage")
)

type Status string

const (
	StatusNew             Status = "new"
	StatusNewLead         Status = "new_lead"
	StatusNoWhatsApp      Status = "no_whatsapp"
	StatusOnFollowUp      Status = "on_follow_up"
	StatusLive            Status = "live"
	StatusPassiveLive     Status = "passive_live"
	StatusCold            Status = "cold"
	StatusHot             Status = "hot"
	StatusDead            Status = "dead"
	StatusNoCommunication Status = "no_communication"
	StatusNoInterest      Status = "no_interest"
	StatusSold            Status = "sold"
	StatusConverted       Status = "converted"
	StatusTreatmentDone   Status = "treatment_done"
)

// Statuses lists every status in pipeline order.
var Statuses = []Status{
	StatusNew,
	StatusNewLead,
	StatusNoWhatsApp,
	StatusOnFollowUp,
	StatusLive,
	StatusPassiveLive,
	StatusCold,
	StatusHot,
	StatusDead,
	StatusNoCommunication,
	StatusNoInterest,
	StatusSold,
	StatusConverted,
	StatusTreatmentDone,
}

type Stage string

const (
	StageNew       Stage = "new"
	StageContacted Stage = "contacted"
	StageSold      Stage = "sold"
	StageTreatment Stage = "treatment"
	StageAftercare Stage = "aftercare"
)

func ParseStatus(value string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := s.stage(); !ok {
		return "", ErrInvalidStatus
	}
	return s, nil
}

func ParseStage(value string) (Stage, error) {
	switch st := Stage(strings.ToLower(strings.TrimSpace(value))); st {
	case StageNew, StageContacted, StageSold, StageTreatment, StageAftercare:
		return st, nil
	}
	return "", ErrInvalidStage
}

// stage is the pipeline stage a status belongs to, ignoring arrival.
func (s Status) stage() (Stage, bool) {
	switch s {
	case StatusNew, StatusNewLead:
		return StageNew, true
	case StatusNoWhatsApp, StatusOnFollowUp, StatusLive, StatusPassiveLive, StatusCold,
		StatusHot, StatusDead, StatusNoCommunication, StatusNoInterest:
		return StageContacted, true
	case StatusSold, StatusConverted:
		return StageSold, true
	case StatusTreatmentDone:
		return StageAftercare, true
	}
	return "", false
}

func (s Status) Valid() bool {
	_, ok := s.stage()
	return ok
}

// statusesIn returns the statuses whose base stage is st. The treatment stage
// shares its statuses with sold.
func statusesIn(st Stage) []Status {
	if st == StageTreatment {
		st = StageSold
	}
	out := make([]Status, 0, 4)
	for _, s := range Statuses {
		if base, _ := s.stage(); base == st {
			out = append(out, s)
		}
	}
	return out
}
