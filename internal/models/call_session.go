package models

import "time"

// Stage is a state of the Call Session FSM (spec §4.10).
type Stage string

const (
	StageAwaitStart           Stage = "AWAIT_START"
	StageResolveContext       Stage = "RESOLVE_CONTEXT"
	StageSpeakingGreeting     Stage = "SPEAKING_GREETING"
	StageWaitingConfirmation  Stage = "WAITING_CONFIRMATION"
	StageSpeakingRegreeting   Stage = "SPEAKING_REGREETING"
	StageSpeakingEMI1         Stage = "SPEAKING_EMI_1"
	StageSpeakingEMI2         Stage = "SPEAKING_EMI_2"
	StageSpeakingAgentQuest   Stage = "SPEAKING_AGENT_QUESTION"
	StageWaitingAgentResponse Stage = "WAITING_AGENT_RESPONSE"
	StageTransferring         Stage = "TRANSFERRING"
	StageSpeakingDecline      Stage = "SPEAKING_DECLINE_GOODBYE"
	StageEnd                  Stage = "END"
)

// Outcome is the terminal classification of a call, written to CallRecord.
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeTransferred    Outcome = "transferred"
	OutcomeDeclined       Outcome = "declined"
	OutcomeFailed         Outcome = "failed"
	OutcomeTimeout        Outcome = "timeout"
	OutcomeMissingContext Outcome = "missing_context"
)

// Customer is the read-only snapshot handed to the FSM by the Session Store (spec §3).
// The FSM never mutates it.
type Customer struct {
	Name               string  `json:"name"`
	Phone              string  `json:"phone"`
	State              string  `json:"state"`
	LoanID             string  `json:"loan_id"`
	OutstandingAmount  float64 `json:"outstanding_amount"`
	DueDate            string  `json:"due_date"`
	PreferredLanguage  string  `json:"preferred_language,omitempty"`
}

// CallSession is the per-call state owned exclusively by the FSM for its lifetime.
type CallSession struct {
	CallID               string
	StreamSID            string
	Phone                string
	Customer             Customer
	InitialLanguage      string
	CurrentLanguage      string
	Stage                Stage
	ConfirmationAttempts int
	AgentRepeatAttempts  int
	RegreetingUsed       bool
	LanguageChanges      int
	StartedAt            time.Time
	LastInboundAt        time.Time
	EndedAt              *time.Time
}

// CallRecord is the persistence row the engine emits (spec §3, §6); the
// record writer upserts it on call_id, so each call has one evolving row.
type CallRecord struct {
	ID              int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	CallID          string `json:"call_id" gorm:"uniqueIndex;size:128;not null"`
	Stage           string `json:"stage" gorm:"size:40"`
	CurrentLanguage string `json:"current_language" gorm:"size:20"`
	InitialLanguage string `json:"initial_language" gorm:"size:20"`
	StartedAt       time.Time
	EndedAt         *time.Time
	Outcome         string `json:"outcome" gorm:"size:40"`
	Summary         string `json:"summary" gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (CallRecord) TableName() string {
	return "call_records"
}
