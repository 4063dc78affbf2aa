package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/therapy-slot-booking/internal/appointment"
	"github.com/hackgods/therapy-slot-booking/internal/booking"
	"github.com/hackgods/therapy-slot-booking/internal/reconcile"
	"github.com/hackgods/therapy-slot-booking/pkg/logging"
)

const testHref = "https://booking.example.com/book?clinicianId=c-42&date=2026-11-02&time=09:30"

type stubBooker struct {
	result booking.Result
	hrefs  []string
}

func (b *stubBooker) Submit(ctx context.Context, patient appointment.PatientData, href string) booking.Result {
	b.hrefs = append(b.hrefs, href)
	return b.result
}

type stubChecker struct{ booked bool }

func (c stubChecker) IsBooked(ctx context.Context, href string) bool { return c.booked }

type stubReconciler struct {
	summary reconcile.Summary
	err     error
}

func (r stubReconciler) ProcessPending(ctx context.Context) (reconcile.Summary, error) {
	return r.summary, r.err
}

type testServer struct {
	handler http.Handler
	store   *appointment.Service
	booker  *stubBooker
}

func newTestServer(t *testing.T, rec Reconciler) *testServer {
	t.Helper()
	logger := logging.NewWithWriter(io.Discard, "error")
	store := appointment.NewService(appointment.NewInMemoryRepository(), nil, logger)
	booker := &stubBooker{result: booking.Result{Success: true, Status: appointment.StatusBooked, Message: booking.MsgBooked}}
	if rec == nil {
		rec = stubReconciler{}
	}
	h := NewRouter(RouterConfig{
		Store:      store,
		Booker:     booker,
		Checker:    stubChecker{booked: true},
		Reconciler: rec,
		Logger:     logger,
		Env:        "test",
	})
	return &testServer{handler: h, store: store, booker: booker}
}

func (s *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

func TestEnrollCreatesUnknownRecord(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, http.MethodPost, "/appointments", BookingRequest{
		Href:    testHref,
		Patient: appointment.PatientData{FirstName: "Ada", LastName: "Lovelace"},
	})

	require.Equal(t, http.StatusCreated, rr.Code)
	resp := decode[RecordResponse](t, rr)
	assert.Equal(t, "unknown", resp.Status)
	assert.Equal(t, "c-42", resp.ClinicianID)
	assert.Equal(t, "Ada", resp.Patient.FirstName)
	assert.Equal(t, appointment.RecordID(testHref), resp.ID)
	assert.Empty(t, resp.ProcessingLog)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestEnrollIsIdempotent(t *testing.T) {
	s := newTestServer(t, nil)
	body := BookingRequest{Href: testHref, Patient: appointment.PatientData{Email: "ada@example.com"}}

	first := decode[RecordResponse](t, s.do(t, http.MethodPost, "/appointments", body))
	second := decode[RecordResponse](t, s.do(t, http.MethodPost, "/appointments", body))

	assert.Equal(t, first, second)
	records, err := s.store.List(context.Background(), appointment.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestEnrollRejectsBadInput(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, http.MethodPost, "/appointments", BookingRequest{Href: "not a url"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_href", decode[ErrorResponse](t, rr).Error)

	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRecords(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	_, err := s.store.Upsert(ctx, appointment.UpsertInput{Href: testHref})
	require.NoError(t, err)
	_, err = s.store.Upsert(ctx, appointment.UpsertInput{
		Href:   "https://booking.example.com/book?clinicianId=c-7&date=2026-11-03&time=10:00",
		Status: appointment.StatusBooked,
	})
	require.NoError(t, err)

	rr := s.do(t, http.MethodGet, "/appointments?status=booked", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[ListRecordsResponse](t, rr)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "c-7", resp.Records[0].ClinicianID)

	rr = s.do(t, http.MethodGet, "/appointments?clinician_id=c-42", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decode[ListRecordsResponse](t, rr).Count)

	rr = s.do(t, http.MethodGet, "/appointments?status=pending", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodGet, "/appointments?limit=ten", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLookupRecord(t *testing.T) {
	s := newTestServer(t, nil)
	_, err := s.store.Upsert(context.Background(), appointment.UpsertInput{Href: testHref})
	require.NoError(t, err)

	rr := s.do(t, http.MethodGet, "/appointments/lookup?href="+url.QueryEscape(testHref), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, testHref, decode[RecordResponse](t, rr).Href)

	rr = s.do(t, http.MethodGet, "/appointments/lookup?href="+url.QueryEscape("https://booking.example.com/other"), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, http.MethodGet, "/appointments/lookup", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSubmitReturnsResult(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, http.MethodPost, "/appointments/submit", BookingRequest{Href: testHref})

	require.Equal(t, http.StatusOK, rr.Code)
	res := decode[booking.Result](t, rr)
	assert.True(t, res.Success)
	assert.Equal(t, appointment.StatusBooked, res.Status)
	assert.Equal(t, []string{testHref}, s.booker.hrefs)
}

func TestCheckReturnsBooked(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, http.MethodPost, "/appointments/check", CheckRequest{Href: testHref})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, CheckResponse{Href: testHref, Booked: true}, decode[CheckResponse](t, rr))
}

func TestReconcile(t *testing.T) {
	summary := reconcile.Summary{Total: 2, Success: 1, Failed: 1, Details: []reconcile.ItemResult{
		{Href: testHref, Success: true, Attempts: 1, Status: appointment.StatusBooked},
		{Href: testHref + "&x=1", Attempts: 3, Status: appointment.StatusUnknown, Error: booking.MsgCouldNotSubmit},
	}}
	s := newTestServer(t, stubReconciler{summary: summary})

	rr := s.do(t, http.MethodPost, "/reconcile", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, summary, decode[reconcile.Summary](t, rr))
}

func TestReconcileAlreadyRunning(t *testing.T) {
	s := newTestServer(t, stubReconciler{err: reconcile.ErrAlreadyRunning})

	rr := s.do(t, http.MethodPost, "/reconcile", nil)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "reconcile_in_progress", decode[ErrorResponse](t, rr).Error)
}

type ctxRecordingReconciler struct {
	ctxErr      error
	hasDeadline bool
}

func (r *ctxRecordingReconciler) ProcessPending(ctx context.Context) (reconcile.Summary, error) {
	r.ctxErr = ctx.Err()
	_, r.hasDeadline = ctx.Deadline()
	return reconcile.Summary{}, nil
}

func TestReconcileOutlivesClientConnection(t *testing.T) {
	rec := &ctxRecordingReconciler{}
	s := newTestServer(t, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/reconcile", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.NoError(t, rec.ctxErr)
	assert.True(t, rec.hasDeadline)
}
