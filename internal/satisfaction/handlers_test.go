package satisfaction

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeedbackHandler_RejectsWrongMethod(t *testing.T) {
	h := &Handlers{}
	req := httptest.NewRequest(http.MethodGet, "/api/satisfaction/feedback", nil)
	rec := httptest.NewRecorder()
	h.FeedbackHandler()(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFeedbackHandler_RejectsMissingFields(t *testing.T) {
	h := &Handlers{}
	body := bytes.NewBufferString(`{"kind":"thumbs_up"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/satisfaction/feedback", body)
	rec := httptest.NewRecorder()
	h.FeedbackHandler()(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedbackHandler_RejectsUnknownKind(t *testing.T) {
	h := &Handlers{}
	body := bytes.NewBufferString(`{"user_id":"u1","turn_id":"t1","kind":"shrug"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/satisfaction/feedback", body)
	rec := httptest.NewRecorder()
	h.FeedbackHandler()(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInteractionHandler_RejectsMissingFields(t *testing.T) {
	h := &Handlers{}
	body := bytes.NewBufferString(`{"user_id":"u1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/satisfaction/interaction", body)
	rec := httptest.NewRecorder()
	h.InteractionHandler()(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsHandler_RejectsWrongMethod(t *testing.T) {
	h := &Handlers{}
	req := httptest.NewRequest(http.MethodPost, "/api/satisfaction/metrics", nil)
	rec := httptest.NewRecorder()
	h.MetricsHandler()(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
