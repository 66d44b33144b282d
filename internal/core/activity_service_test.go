package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"portal.health/patient-portal/internal/sessionstore"
)

const validReportJSON = `{"summary":"A calming evening walk.","insights":["Walking lowered stress"],"effectiveness":82,"recommendations":["Walk after dinner twice a week"]}`

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockGenerator) Name() string { return "mock" }

func isQuestion(req GenerationRequest) bool { return !req.JSON }
func isReport(req GenerationRequest) bool   { return req.JSON }

// recordingStore keeps every status written for each session key.
type recordingStore struct {
	*sessionstore.MemoryStore
	mu       sync.Mutex
	statuses map[string][]SessionStatus
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: sessionstore.NewMemoryStore(), statuses: map[string][]SessionStatus{}}
}

func (r *recordingStore) Set(ctx context.Context, key, value string) error {
	if sess, err := UnmarshalSession(value); err == nil {
		r.mu.Lock()
		if h := r.statuses[key]; len(h) == 0 || h[len(h)-1] != sess.Status {
			r.statuses[key] = append(h, sess.Status)
		}
		r.mu.Unlock()
	}
	return r.MemoryStore.Set(ctx, key, value)
}

func newActivityFixture(t *testing.T) (*ActivityService, *mockGenerator, *recordingStore) {
	t.Helper()
	gen := &mockGenerator{}
	sessions := newRecordingStore()
	return NewActivityService(sessions, gen, time.Second), gen, sessions
}

func TestActivity_StartSession(t *testing.T) {
	svc, gen, _ := newActivityFixture(t)
	ctx := context.Background()
	gen.On("Generate", mock.Anything, mock.MatchedBy(isQuestion)).Return(`Sure! "How did your evening walk feel?"`, nil)

	resp, err := svc.StartSession(ctx, "s1", "act-1", "Evening walk")
	require.NoError(t, err)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, "How did your evening walk feel?", resp.Message)
	assert.False(t, resp.IsComplete)

	sess, err := svc.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, StatusActive, sess.Status)
	assert.Equal(t, "act-1", sess.ActivityID)
	require.Len(t, sess.Conversation, 1)
	assert.Equal(t, RoleAssistant, sess.Conversation[0].Role)

	active, err := svc.HasActiveSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, active)

	_, err = svc.StartSession(ctx, "s1", "act-2", "Yoga")
	require.ErrorIs(t, err, ErrSessionExists)
}

func TestActivity_StartSession_GenerationFailureLeavesNoSession(t *testing.T) {
	svc, gen, sessions := newActivityFixture(t)
	ctx := context.Background()
	gen.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("provider unavailable"))

	_, err := svc.StartSession(ctx, "s1", "act-1", "Swimming")
	require.ErrorIs(t, err, ErrGeneration)

	sess, err := svc.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Equal(t, []SessionStatus{StatusStarting}, sessions.statuses[sessionKey("s1")])
}

func TestActivity_StartSession_EmptyQuestionIsAFailure(t *testing.T) {
	svc, gen, _ := newActivityFixture(t)
	gen.On("Generate", mock.Anything, mock.Anything).Return("Sure!", nil)

	_, err := svc.StartSession(context.Background(), "s1", "act-1", "Swimming")
	require.ErrorIs(t, err, ErrGeneration)
}

func TestActivity_FullConversationProducesReport(t *testing.T) {
	svc, gen, sessions := newActivityFixture(t)
	ctx := context.Background()
	gen.On("Generate", mock.Anything, mock.MatchedBy(isQuestion)).Return("What stood out to you?", nil)
	gen.On("Generate", mock.Anything, mock.MatchedBy(isReport)).Return("```json\n"+validReportJSON+"\n```", nil)

	_, err := svc.StartSession(ctx, "s1", "act-1", "Evening walk")
	require.NoError(t, err)

	for i, msg := range []string{"It was calm.", "My legs felt light."} {
		resp, err := svc.ProcessInput(ctx, "s1", msg)
		require.NoError(t, err, "message %d", i)
		assert.False(t, resp.IsComplete)
		assert.Equal(t, "What stood out to you?", resp.Message)
	}

	resp, err := svc.ProcessInput(ctx, "s1", "I slept better afterwards.")
	require.NoError(t, err)
	assert.True(t, resp.IsComplete)
	require.NotNil(t, resp.Report)
	assert.Equal(t, "A calming evening walk.", resp.Report.Summary)
	assert.Equal(t, 82, resp.Report.Effectiveness)
	assert.Equal(t, resp.Report.Summary, resp.Message)

	sess, err := svc.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, sess.Status)
	assert.Len(t, sess.Conversation, 7)
	for i, turn := range sess.Conversation {
		want := RoleAssistant
		if i%2 == 1 {
			want = RoleUser
		}
		assert.Equal(t, want, turn.Role, "turn %d", i)
	}
	assert.Equal(t,
		[]SessionStatus{StatusStarting, StatusActive, StatusEnding, StatusClosed},
		sessions.statuses[sessionKey("s1")])

	_, err = svc.ProcessInput(ctx, "s1", "one more thing")
	require.ErrorIs(t, err, ErrNoActiveSession)
}

func TestActivity_ReportFallback(t *testing.T) {
	tests := []struct {
		name string
		out  string
		err  error
	}{
		{"malformed json", "The session went well!", nil},
		{"missing fields", `{"summary":"ok"}`, nil},
		{"provider error", "", errors.New("quota exceeded")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, gen, _ := newActivityFixture(t)
			ctx := context.Background()
			gen.On("Generate", mock.Anything, mock.MatchedBy(isQuestion)).Return("Tell me more?", nil)
			gen.On("Generate", mock.Anything, mock.MatchedBy(isReport)).Return(tt.out, tt.err)

			_, err := svc.StartSession(ctx, "s1", "act-1", "Cycling")
			require.NoError(t, err)
			var resp *Response
			for i := 0; i < 3; i++ {
				resp, err = svc.ProcessInput(ctx, "s1", "fine")
				require.NoError(t, err)
			}

			require.True(t, resp.IsComplete)
			assert.Equal(t, FallbackReport(), *resp.Report)
			assert.Equal(t, "Activity completed with limited data available", resp.Message)

			sess, err := svc.GetSession(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, StatusClosed, sess.Status)
		})
	}
}

func TestActivity_ProcessInput_FailureKeepsSessionRetryable(t *testing.T) {
	svc, gen, _ := newActivityFixture(t)
	ctx := context.Background()
	gen.On("Generate", mock.Anything, mock.MatchedBy(isQuestion)).Return("First question?", nil).Once()
	gen.On("Generate", mock.Anything, mock.MatchedBy(isQuestion)).Return("", errors.New("timeout")).Once()
	gen.On("Generate", mock.Anything, mock.MatchedBy(isQuestion)).Return("Second question?", nil)

	_, err := svc.StartSession(ctx, "s1", "act-1", "Meditation")
	require.NoError(t, err)

	_, err = svc.ProcessInput(ctx, "s1", "Very focused.")
	require.ErrorIs(t, err, ErrGeneration)

	sess, err := svc.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, sess.Status)
	assert.Len(t, sess.Conversation, 1)

	resp, err := svc.ProcessInput(ctx, "s1", "Very focused.")
	require.NoError(t, err)
	assert.Equal(t, "Second question?", resp.Message)

	sess, err = svc.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, sess.Conversation, 3)
	assert.Equal(t, Turn{Role: RoleUser, Content: "Very focused."}, sess.Conversation[1])
}

func TestActivity_ProcessInput_NoActiveSession(t *testing.T) {
	svc, _, _ := newActivityFixture(t)

	_, err := svc.ProcessInput(context.Background(), "missing", "hello")
	require.ErrorIs(t, err, ErrNoActiveSession)
}

// blockingGenerator waits for its context to expire.
type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, _ GenerationRequest) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (blockingGenerator) Name() string { return "blocking" }

func TestActivity_GenerationTimeout(t *testing.T) {
	svc := NewActivityService(sessionstore.NewMemoryStore(), blockingGenerator{}, 20*time.Millisecond)

	_, err := svc.StartSession(context.Background(), "s1", "act-1", "Running")
	require.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestActivity_EndSession(t *testing.T) {
	svc, gen, _ := newActivityFixture(t)
	ctx := context.Background()
	gen.On("Generate", mock.Anything, mock.MatchedBy(isQuestion)).Return("How was it?", nil)

	require.NoError(t, svc.EndSession(ctx, "unknown"))

	_, err := svc.StartSession(ctx, "s1", "act-1", "Pilates")
	require.NoError(t, err)
	require.NoError(t, svc.EndSession(ctx, "s1"))

	active, err := svc.HasActiveSession(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, active)

	_, err = svc.ProcessInput(ctx, "s1", "hello")
	require.ErrorIs(t, err, ErrNoActiveSession)

	// A closed session id can be reused.
	resp, err := svc.StartSession(ctx, "s1", "act-2", "Stretching")
	require.NoError(t, err)
	assert.Equal(t, "How was it?", resp.Message)
	sess, err := svc.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "act-2", sess.ActivityID)
	assert.Len(t, sess.Conversation, 1)
}

func TestActivity_ConcurrentInputIsSerialized(t *testing.T) {
	svc, gen, _ := newActivityFixture(t)
	ctx := context.Background()
	gen.On("Generate", mock.Anything, mock.MatchedBy(isQuestion)).Return("And then?", nil)

	_, err := svc.StartSession(ctx, "s1", "act-1", "Hiking")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, msg := range []string{"first", "second"} {
		wg.Add(1)
		go func(msg string) {
			defer wg.Done()
			_, err := svc.ProcessInput(ctx, "s1", msg)
			assert.NoError(t, err)
		}(msg)
	}
	wg.Wait()

	sess, err := svc.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, sess.Conversation, 5)
	assert.Equal(t, StatusActive, sess.Status)
}

func TestActivity_Sweep(t *testing.T) {
	svc, gen, sessions := newActivityFixture(t)
	ctx := context.Background()
	gen.On("Generate", mock.Anything, mock.MatchedBy(isQuestion)).Return("How did it go?", nil)

	t0 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := t0
	svc.now = func() time.Time { return clock }

	_, err := svc.StartSession(ctx, "old", "act-1", "Walk")
	require.NoError(t, err)
	clock = t0.Add(23 * time.Hour)
	_, err = svc.StartSession(ctx, "fresh", "act-2", "Walk")
	require.NoError(t, err)
	require.NoError(t, sessions.Set(ctx, sessionKey("corrupt"), "{not json"))
	require.NoError(t, sessions.Set(ctx, "unrelated:key", "keep me"))

	clock = t0.Add(25 * time.Hour)
	removed, err := svc.Sweep(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	old, err := svc.GetSession(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, old)
	fresh, err := svc.GetSession(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, fresh)
	_, err = sessions.Get(ctx, "unrelated:key")
	require.NoError(t, err)
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")

	done := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		unlock()
		close(done)
	}()

	unlockB := k.Lock("b")
	unlockB()

	select {
	case <-done:
		t.Fatal("second Lock on the same key did not block")
	case <-time.After(20 * time.Millisecond):
	}
	unlockA()
	<-done

	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Empty(t, k.locks)
}

// newRedisActivityFixture backs the service with miniredis so that store writes honour
// context cancellation.
func newRedisActivityFixture(t *testing.T) (*ActivityService, *mockGenerator) {
	t.Helper()
	mr := miniredis.RunT(t)
	sessions, err := sessionstore.NewRedisStore(sessionstore.RedisOptions{RedisURL: "redis://" + mr.Addr(), DB: -1})
	require.NoError(t, err)
	t.Cleanup(func() { sessions.Close() })

	gen := &mockGenerator{}
	return NewActivityService(sessions, gen, time.Second), gen
}

func cancelDuringGenerate(cancel context.CancelFunc) func(mock.Arguments) {
	return func(mock.Arguments) { cancel() }
}

func TestActivity_CancelledRequest_ReportStillClosesSession(t *testing.T) {
	svc, gen := newRedisActivityFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen.On("Generate", mock.Anything, mock.MatchedBy(isQuestion)).Return("What went well?", nil)
	gen.On("Generate", mock.Anything, mock.MatchedBy(isReport)).
		Run(cancelDuringGenerate(cancel)).Return("", context.Canceled)

	_, err := svc.StartSession(ctx, "s1", "act-1", "Cycling")
	require.NoError(t, err)
	var resp *Response
	for i := 0; i < 3; i++ {
		resp, err = svc.ProcessInput(ctx, "s1", "good")
		require.NoError(t, err)
	}
	require.True(t, resp.IsComplete)
	assert.Equal(t, FallbackReport(), *resp.Report)

	sess, err := svc.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, StatusClosed, sess.Status)
}

func TestActivity_CancelledRequest_FailedStartIsRemoved(t *testing.T) {
	svc, gen := newRedisActivityFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen.On("Generate", mock.Anything, mock.Anything).
		Run(cancelDuringGenerate(cancel)).Return("", context.Canceled)

	_, err := svc.StartSession(ctx, "s1", "act-1", "Cycling")
	require.ErrorIs(t, err, ErrGeneration)

	sess, err := svc.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestActivity_CancelledRequest_FollowUpFailureDropsReply(t *testing.T) {
	svc, gen := newRedisActivityFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen.On("Generate", mock.Anything, mock.MatchedBy(isQuestion)).Return("How was it?", nil).Once()
	gen.On("Generate", mock.Anything, mock.MatchedBy(isQuestion)).
		Run(cancelDuringGenerate(cancel)).Return("", context.Canceled).Once()

	_, err := svc.StartSession(ctx, "s1", "act-1", "Cycling")
	require.NoError(t, err)

	_, err = svc.ProcessInput(ctx, "s1", "tiring")
	require.ErrorIs(t, err, ErrGeneration)

	sess, err := svc.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, StatusActive, sess.Status)
	assert.Len(t, sess.Conversation, 1)
}
