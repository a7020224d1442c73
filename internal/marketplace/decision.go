package marketplace

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotAllowed is wrapped by every GuardError.
var ErrNotAllowed = errors.New("action not allowed")

type ReasonCode string

const (
	ReasonGigNotOpen            ReasonCode = "gig_not_open"
	ReasonGigFinished           ReasonCode = "gig_finished"
	ReasonAlreadyApplied        ReasonCode = "already_applied"
	ReasonOwnGig                ReasonCode = "own_gig"
	ReasonFeeOverBudget         ReasonCode = "fee_over_budget"
	ReasonIncompleteSchedule    ReasonCode = "incomplete_schedule"
	ReasonEmptySelection        ReasonCode = "empty_selection"
	ReasonApplicationNotFound   ReasonCode = "application_not_found"
	ReasonApplicationNotPending ReasonCode = "application_not_pending"
	ReasonApplicationOtherGig   ReasonCode = "application_other_gig"
	ReasonMissingFee            ReasonCode = "missing_fee"
	ReasonOverBudget            ReasonCode = "over_budget"
	ReasonNotParticipant        ReasonCode = "not_participant"
	ReasonEmptyMessage          ReasonCode = "empty_message"
	ReasonMessageTooLong        ReasonCode = "message_too_long"
)

// Reason explains why an action is disabled. ApplicationID is set when the
// reason concerns one application of a selection.
type Reason struct {
	Code          ReasonCode
	ApplicationID int64
}

// Message is the inline text shown next to the disabled action.
func (r Reason) Message() string {
	switch r.Code {
	case ReasonGigNotOpen:
		return "Esta vaga não está mais aceitando candidaturas."
	case ReasonGigFinished:
		return "Esta vaga já foi encerrada ou cancelada."
	case ReasonAlreadyApplied:
		return "Você já se candidatou a esta vaga."
	case ReasonOwnGig:
		return "Você não pode se candidatar à sua própria vaga."
	case ReasonFeeOverBudget:
		return "O cachê proposto ultrapassa o orçamento da vaga."
	case ReasonIncompleteSchedule:
		return "Defina data, horário de início e de término antes de contratar."
	case ReasonEmptySelection:
		return "Selecione ao menos uma candidatura."
	case ReasonApplicationNotFound:
		return "Candidatura não encontrada."
	case ReasonApplicationNotPending:
		return "Esta candidatura já foi respondida."
	case ReasonApplicationOtherGig:
		return "A candidatura não pertence a esta vaga."
	case ReasonMissingFee:
		return "Há candidaturas selecionadas sem cachê informado."
	case ReasonOverBudget:
		return "O total dos cachês selecionados ultrapassa o orçamento."
	case ReasonNotParticipant:
		return "Apenas o contratante e o músico podem conversar neste chat."
	case ReasonEmptyMessage:
		return "A mensagem não pode ficar vazia."
	case ReasonMessageTooLong:
		return "A mensagem é longa demais."
	}
	return string(r.Code)
}

func (r Reason) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Code          ReasonCode `json:"code"`
		Message       string     `json:"message"`
		ApplicationID int64      `json:"application_id,omitempty"`
	}{r.Code, r.Message(), r.ApplicationID})
}

// Decision is the result of a guard. Reasons is empty when Allowed.
type Decision struct {
	Allowed bool     `json:"allowed"`
	Reasons []Reason `json:"reasons"`
}

func decide(reasons []Reason) Decision {
	if reasons == nil {
		reasons = []Reason{}
	}
	return Decision{Allowed: len(reasons) == 0, Reasons: reasons}
}

// Has reports whether the decision carries code.
func (d Decision) Has(code ReasonCode) bool {
	for _, r := range d.Reasons {
		if r.Code == code {
			return true
		}
	}
	return false
}

// Messages returns the inline texts in order.
func (d Decision) Messages() []string {
	out := make([]string, 0, len(d.Reasons))
	for _, r := range d.Reasons {
		out = append(out, r.Message())
	}
	return out
}

// GuardError is returned by a transition whose guard refused it.
type GuardError struct {
	Action   string
	Decision Decision
}

func (e *GuardError) Error() string {
	codes := make([]string, 0, len(e.Decision.Reasons))
	for _, r := range e.Decision.Reasons {
		codes = append(codes, string(r.Code))
	}
	return fmt.Sprintf("%s not allowed: %s", e.Action, strings.Join(codes, ", "))
}

func (e *GuardError) Unwrap() error {
	return ErrNotAllowed
}

func guard(action string, d Decision) error {
	if d.Allowed {
		return nil
	}
	return &GuardError{Action: action, Decision: d}
}
