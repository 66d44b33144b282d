package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartOperation(t *testing.T) {
	before := testutil.ToFloat64(cartOperations.WithLabelValues("add", "error"))
	CartOperation("add", errors.New("out of stock"))
	after := testutil.ToFloat64(cartOperations.WithLabelValues("add", "error"))
	assert.Equal(t, before+1, after)
}

func TestHandler_ExposesCollectors(t *testing.T) {
	SessionTransition("ACTIVE")
	ObserveGeneration("gemini", "question", time.Now(), nil)

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.True(t, strings.Contains(body, "portal_activity_session_transitions_total"))
	assert.True(t, strings.Contains(body, "portal_llm_generation_duration_seconds"))
}
