package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"portal.health/patient-portal/internal/metrics"
	"portal.health/patient-portal/internal/sessionstore"
)

const (
	// reportThreshold is the conversation length at which the session moves to its report.
	reportThreshold = 6

	DefaultGenerationTimeout = 30 * time.Second
	DefaultSessionMaxAge     = 24 * time.Hour

	housekeepingTimeout = 5 * time.Second
)

// ActivityService drives activity-logging conversations:
//
//	STARTING -> ACTIVE -> (ACTIVE)* -> ENDING -> CLOSED
//	ACTIVE -> CLOSED on EndSession
//
// STARTING and ENDING only exist inside a single call. Calls for the same session id
// are serialized within the process.
type ActivityService struct {
	sessions  sessionstore.Store
	generator TextGenerator
	timeout   time.Duration
	locks     *keyedMutex
	now       func() time.Time
}

func NewActivityService(sessions sessionstore.Store, generator TextGenerator, timeout time.Duration) *ActivityService {
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	return &ActivityService{
		sessions:  sessions,
		generator: generator,
		timeout:   timeout,
		locks:     newKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *ActivityService) load(ctx context.Context, id string) (*ActivitySession, error) {
	blob, err := s.sessions.Get(ctx, sessionKey(id))
	if errors.Is(err, sessionstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return UnmarshalSession(blob)
}

func (s *ActivityService) save(ctx context.Context, sess *ActivitySession) error {
	blob, err := MarshalSession(sess)
	if err != nil {
		return err
	}
	if err := s.sessions.Set(ctx, sessionKey(sess.ID), blob); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

// housekeeping returns a context for writes that must land even when the caller has
// gone away, such as closing a session or removing a failed start.
func housekeeping(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), housekeepingTimeout)
}

func (s *ActivityService) transition(ctx context.Context, sess *ActivitySession, status SessionStatus) error {
	sess.Status = status
	metrics.SessionTransition(string(status))
	return s.save(ctx, sess)
}

func (s *ActivityService) detachedTransition(ctx context.Context, sess *ActivitySession, status SessionStatus) error {
	writeCtx, cancel := housekeeping(ctx)
	defer cancel()
	return s.transition(writeCtx, sess, status)
}

// GetSession returns the stored session or nil when none exists.
func (s *ActivityService) GetSession(ctx context.Context, id string) (*ActivitySession, error) {
	return s.load(ctx, id)
}

func (s *ActivityService) HasActiveSession(ctx context.Context, id string) (bool, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}
	return sess != nil && sess.Status == StatusActive, nil
}

// StartSession opens a session and returns the opening question. A CLOSED session
// under the same id is replaced; an ACTIVE one is not.
func (s *ActivityService) StartSession(ctx context.Context, id, activityID, activityType string) (*Response, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	existing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == StatusActive {
		return nil, ErrSessionExists
	}

	now := s.now()
	sess := &ActivitySession{
		ID:           id,
		ActivityID:   activityID,
		ActivityType: activityType,
		Conversation: []Turn{},
		StartTime:    now,
		LastActivity: now,
	}
	if err := s.transition(ctx, sess, StatusStarting); err != nil {
		return nil, err
	}

	question, err := s.generateQuestion(ctx, "opening", GenerationRequest{
		System: activitySystemInstruction,
		Prompt: openingPrompt(activityType),
	})
	if err == nil {
		sess.Conversation = append(sess.Conversation, Turn{Role: RoleAssistant, Content: question})
		sess.LastActivity = s.now()
		err = s.transition(ctx, sess, StatusActive)
	}
	if err != nil {
		cleanupCtx, cancel := housekeeping(ctx)
		if delErr := s.sessions.Delete(cleanupCtx, sessionKey(id)); delErr != nil {
			slog.Error("Failed to delete session after start failure", "session_id", id, "error", delErr)
		}
		cancel()
		slog.Warn("Activity session start failed", "session_id", id, "activity_type", activityType, "error", err)
		return nil, err
	}

	slog.Info("Activity session started", "session_id", id, "activity_id", activityID, "activity_type", activityType)
	return &Response{SessionID: id, Message: question}, nil
}

// ProcessInput records the user's reply and returns the next question, or the closing
// report once the conversation is long enough. If the follow-up cannot be generated
// the reply is dropped again so the caller can retry the same message.
func (s *ActivityService) ProcessInput(ctx context.Context, id, message string) (*Response, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.Status != StatusActive {
		return nil, ErrNoActiveSession
	}

	prior := len(sess.Conversation)
	sess.Conversation = append(sess.Conversation, Turn{Role: RoleUser, Content: strings.TrimSpace(message)})
	sess.LastActivity = s.now()
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}

	question, err := s.generateQuestion(ctx, "follow_up", GenerationRequest{
		System:  activitySystemInstruction,
		Prompt:  followUpPrompt(sess.ActivityType),
		History: sess.Conversation,
	})
	if err != nil {
		sess.Conversation = sess.Conversation[:prior]
		cleanupCtx, cancel := housekeeping(ctx)
		if saveErr := s.save(cleanupCtx, sess); saveErr != nil {
			slog.Error("Failed to restore session after generation failure", "session_id", id, "error", saveErr)
		}
		cancel()
		return nil, err
	}

	sess.Conversation = append(sess.Conversation, Turn{Role: RoleAssistant, Content: question})
	sess.LastActivity = s.now()
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}

	if len(sess.Conversation) >= reportThreshold {
		return s.finish(ctx, sess), nil
	}
	return &Response{SessionID: id, Message: question}, nil
}

// finish generates the closing report. It never fails: generation or parse errors
// yield FallbackReport, and the session always ends CLOSED. Status writes do not
// depend on the caller's context so a dropped request cannot leave it ENDING.
func (s *ActivityService) finish(ctx context.Context, sess *ActivitySession) *Response {
	if err := s.detachedTransition(ctx, sess, StatusEnding); err != nil {
		slog.Error("Failed to persist ENDING status", "session_id", sess.ID, "error", err)
	}

	report, err := s.generateReport(ctx, sess)
	if err != nil {
		slog.Warn("Report generation failed, using fallback", "session_id", sess.ID, "error", err)
		metrics.ReportFallback()
		fallback := FallbackReport()
		report = &fallback
	}

	sess.LastActivity = s.now()
	if err := s.detachedTransition(ctx, sess, StatusClosed); err != nil {
		slog.Error("Failed to persist CLOSED status", "session_id", sess.ID, "error", err)
	}

	slog.Info("Activity session completed", "session_id", sess.ID, "turns", len(sess.Conversation), "effectiveness", report.Effectiveness)
	return &Response{SessionID: sess.ID, Message: report.Summary, IsComplete: true, Report: report}
}

// EndSession force-closes a session in any status. Unknown ids are ignored.
func (s *ActivityService) EndSession(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	if err := s.transition(ctx, sess, StatusClosed); err != nil {
		return err
	}
	slog.Info("Activity session ended", "session_id", id)
	return nil
}

// Sweep deletes sessions whose last activity is older than maxAge, whatever their
// status. Blobs that cannot be decoded are deleted as well.
func (s *ActivityService) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	keys, err := s.sessions.Keys(ctx, sessionKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		id := strings.TrimPrefix(key, sessionKeyPrefix)
		stale, err := s.sweepOne(ctx, id, cutoff)
		if err != nil {
			slog.Warn("Failed to sweep session", "session_id", id, "error", err)
			continue
		}
		if stale {
			removed++
		}
	}

	metrics.SessionsSwept(removed)
	slog.Info("Session sweep complete", "scanned", len(keys), "removed", removed, "max_age", maxAge)
	return removed, nil
}

func (s *ActivityService) sweepOne(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	blob, err := s.sessions.Get(ctx, sessionKey(id))
	if errors.Is(err, sessionstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	sess, err := UnmarshalSession(blob)
	if err != nil {
		slog.Warn("Deleting unreadable session", "session_id", id, "error", err)
		return true, s.sessions.Delete(ctx, sessionKey(id))
	}
	if !sess.LastActivity.Before(cutoff) {
		return false, nil
	}
	return true, s.sessions.Delete(ctx, sessionKey(id))
}

func (s *ActivityService) generate(ctx context.Context, kind string, req GenerationRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.generator.Generate(ctx, req)
	metrics.ObserveGeneration(s.generator.Name(), kind, start, err)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return text, nil
}

func (s *ActivityService) generateQuestion(ctx context.Context, kind string, req GenerationRequest) (string, error) {
	raw, err := s.generate(ctx, kind, req)
	if err != nil {
		return "", err
	}
	question := CleanQuestion(raw)
	if question == "" {
		return "", fmt.Errorf("%w: empty question", ErrGeneration)
	}
	return question, nil
}

func (s *ActivityService) generateReport(ctx context.Context, sess *ActivitySession) (*Report, error) {
	raw, err := s.generate(ctx, "report", GenerationRequest{
		System: reportSystemInstruction,
		Prompt: reportPrompt(sess),
		JSON:   true,
		Schema: reportSchema,
	})
	if err != nil {
		return nil, err
	}
	return ParseReport(raw)
}
