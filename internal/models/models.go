package models

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
)

type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusResolved   RequestStatus = "resolved"
	StatusUnresolved RequestStatus = "unresolved"
)

// Terminal reports whether the status permits no further transitions.
func (s RequestStatus) Terminal() bool {
	return s == StatusResolved || s == StatusUnresolved
}

type HelpRequest struct {
	ID               string          `json:"id"`
	Question         string          `json:"question"`
	CustomerID       string          `json:"customer_id"`
	CustomerPhone    *string         `json:"customer_phone,omitempty"`
	Context          json.RawMessage `json:"context,omitempty"`
	Status           RequestStatus   `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
	SupervisorAnswer *string         `json:"supervisor_answer,omitempty"`
	SupervisorID     *string         `json:"supervisor_id,omitempty"`
}

type KnowledgeEntry struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Source     string    `json:"source"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	UsageCount int       `json:"usage_count"`
}

const (
	SpeakerCustomer = "customer"
	SpeakerAgent    = "agent"
)

type ConversationTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// RequestTransition carries the terminal fields applied when a pending
// request is resolved or expired.
type RequestTransition struct {
	Status           RequestStatus
	ResolvedAt       time.Time
	SupervisorAnswer *string
	SupervisorID     *string
}

// AgentResult is what the engine hands back for every question: either a
// direct answer or the deferral message plus the id of the help request
// it opened.
type AgentResult struct {
	Response      string  `json:"response"`
	NeedsHelp     bool    `json:"needs_help"`
	HelpRequestID *string `json:"help_request_id,omitempty"`
	KnowledgeUsed *string `json:"knowledge_used,omitempty"`
}
