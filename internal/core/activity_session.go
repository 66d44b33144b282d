package core

import (
	"encoding/json"
	"fmt"
	"time"
)

type SessionStatus string

const (
	StatusStarting SessionStatus = "STARTING"
	StatusActive   SessionStatus = "ACTIVE"
	StatusEnding   SessionStatus = "ENDING"
	StatusClosed   SessionStatus = "CLOSED"
)

func (s SessionStatus) valid() bool {
	switch s {
	case StatusStarting, StatusActive, StatusEnding, StatusClosed:
		return true
	}
	return false
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message in an activity conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ActivitySession is a reflective conversation about one completed activity.
// Conversation order is insertion order and is never rearranged.
type ActivitySession struct {
	ID           string        `json:"id"`
	Status       SessionStatus `json:"status"`
	ActivityID   string        `json:"activityId"`
	ActivityType string        `json:"activityType"`
	Conversation []Turn        `json:"conversation"`
	StartTime    time.Time     `json:"startTime"`
	LastActivity time.Time     `json:"lastActivity"`
}

// Report is the closing summary of an activity session.
type Report struct {
	Summary         string   `json:"summary"`
	Insights        []string `json:"insights"`
	Effectiveness   int      `json:"effectiveness"`
	Recommendations []string `json:"recommendations"`
}

// Response is what a caller sees after starting a session or sending a message.
type Response struct {
	SessionID  string  `json:"session_id"`
	Message    string  `json:"message"`
	IsComplete bool    `json:"is_complete"`
	Report     *Report `json:"report,omitempty"`
}

const sessionKeyPrefix = "activity_session:"

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

// MarshalSession renders a session as the JSON blob stored in the session store.
// Timestamps are RFC 3339 with nanoseconds in UTC.
func MarshalSession(s *ActivitySession) (string, error) {
	out := *s
	if out.Conversation == nil {
		out.Conversation = []Turn{}
	}
	out.StartTime = out.StartTime.UTC()
	out.LastActivity = out.LastActivity.UTC()
	b, err := json.Marshal(&out)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session %s: %w", s.ID, err)
	}
	return string(b), nil
}

// UnmarshalSession parses a stored blob, rejecting unknown statuses.
func UnmarshalSession(blob string) (*ActivitySession, error) {
	var s ActivitySession
	if err := json.Unmarshal([]byte(blob), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if !s.Status.valid() {
		return nil, fmt.Errorf("failed to unmarshal session %s: unknown status %q", s.ID, s.Status)
	}
	if s.Conversation == nil {
		s.Conversation = []Turn{}
	}
	return &s, nil
}
