package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vitalis-dev/vitalis-store/internal/care"
	"github.com/vitalis-dev/vitalis-store/internal/integrations"
	"github.com/vitalis-dev/vitalis-store/pkg/engine"
	"github.com/vitalis-dev/vitalis-store/pkg/schema"
)

func setupTestRouter(t *testing.T) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := engine.NewMemStore(nil, nil)
	t.Cleanup(store.Wait)
	llm := &integrations.StubInvoker{}
	h := &Handler{
		Store: store,
		Files: integrations.NewFileStore("/files"),
		LLM:   llm,
		Auth:  integrations.NewAuth(nil),
		Care:  care.NewService(store, llm),
		Clock: func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	}
	return NewRouter(h), h
}

func do(r *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	switch b := body.(type) {
	case nil:
		buf = &bytes.Buffer{}
	case string:
		buf = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		buf = bytes.NewBuffer(raw)
	}
	req, _ := http.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func login(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := do(r, "POST", "/api/auth/login", map[string]string{"email": "jane@example.com", "password": "pw"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	return decode[integrations.Session](t, w).Token
}

func TestEntityCRUD(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := do(r, "POST", "/api/entities/Patient", map[string]any{"full_name": "Jane Doe", "age": 34}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}
	created := decode[engine.Record](t, w)
	id, _ := created["id"].(string)
	if id == "" || created["created_at"] == nil {
		t.Fatalf("Expected id and created_at, got %v", created)
	}

	w = do(r, "GET", "/api/entities/Patient/"+id, nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if got := decode[engine.Record](t, w); got["full_name"] != "Jane Doe" {
		t.Errorf("Expected Jane Doe, got %v", got)
	}

	w = do(r, "PATCH", "/api/entities/Patient/"+id, map[string]any{"age": 35}, "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if got := decode[engine.Record](t, w); got["age"] != float64(35) || got["full_name"] != "Jane Doe" {
		t.Errorf("Unexpected merge result: %v", got)
	}

	w = do(r, "GET", "/api/entities", nil, "")
	if types := decode[[]string](t, w); len(types) != 1 || types[0] != "Patient" {
		t.Errorf("Expected [Patient], got %v", types)
	}

	w = do(r, "DELETE", "/api/entities/Patient/"+id, nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	w = do(r, "GET", "/api/entities/Patient/"+id, nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	w = do(r, "PUT", "/api/entities/Patient/"+id, map[string]any{"age": 1}, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestListSortAndLimit(t *testing.T) {
	r, _ := setupTestRouter(t)
	for _, n := range []int{3, 1, 2} {
		do(r, "POST", "/api/entities/Thing", map[string]any{"n": n}, "")
	}

	w := do(r, "GET", "/api/entities/Thing?sort=-n&limit=2", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	got := decode[[]engine.Record](t, w)
	if len(got) != 2 || got[0]["n"] != float64(3) || got[1]["n"] != float64(2) {
		t.Errorf("Unexpected list: %v", got)
	}

	w = do(r, "GET", "/api/entities/Nothing", nil, "")
	if w.Body.String() != "[]" {
		t.Errorf("Expected empty list, got %s", w.Body.String())
	}

	w = do(r, "GET", "/api/entities/Thing?limit=two", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestInvalidJSONCreate(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := do(r, "POST", "/api/entities/Patient", "invalid", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestUploadAndServeFile(t *testing.T) {
	r, _ := setupTestRouter(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "notes.txt")
	fw.Write([]byte("patient notes"))
	mw.Close()

	req, _ := http.NewRequest("POST", "/api/integrations/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	up := decode[integrations.Upload](t, w)
	if !strings.HasPrefix(up.FileURL, "/files/") || !strings.HasSuffix(up.FileURL, ".txt") {
		t.Fatalf("Unexpected file url %q", up.FileURL)
	}

	w = do(r, "GET", up.FileURL, nil, "")
	if w.Code != http.StatusOK || w.Body.String() != "patient notes" {
		t.Errorf("Expected file contents, got %d %q", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Expected text/plain, got %q", ct)
	}

	w = do(r, "GET", "/files/missing.txt", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	w = do(r, "POST", "/api/integrations/upload", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestInvokeLLM(t *testing.T) {
	r, h := setupTestRouter(t)

	w := do(r, "POST", "/api/integrations/llm", map[string]any{
		"prompt":               "Analyze: headache",
		"response_json_schema": schema.DiagnosisSchema(),
	}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode[map[string]any](t, w); got["possible_condition"] == nil {
		t.Errorf("Expected a diagnosis, got %v", got)
	}

	w = do(r, "POST", "/api/integrations/llm", map[string]any{"prompt": " "}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	h.LLM = &integrations.StubInvoker{Respond: func(integrations.LLMRequest) (map[string]any, error) {
		return map[string]any{"possible_condition": 42}, nil
	}}
	w = do(r, "POST", "/api/integrations/llm", map[string]any{
		"prompt":               "x",
		"response_json_schema": schema.DiagnosisSchema(),
	}, "")
	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", w.Code)
	}

	h.LLM = &integrations.StubInvoker{Respond: func(integrations.LLMRequest) (map[string]any, error) {
		return nil, errors.New("quota exceeded")
	}}
	w = do(r, "POST", "/api/integrations/llm", map[string]any{"prompt": "x"}, "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestAuthFlow(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := do(r, "GET", "/api/auth/me", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}

	w = do(r, "POST", "/api/auth/login", map[string]string{"email": "jane@example.com"}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	token := login(t, r)
	w = do(r, "GET", "/api/auth/me", nil, token)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if me := decode[schema.User](t, w); me.Email != integrations.MockUserEmail {
		t.Errorf("Expected mock user, got %v", me)
	}

	w = do(r, "GET", "/api/auth/redirect?return=/MyAppointments", nil, "")
	if got := decode[map[string]string](t, w)["url"]; got != "/Login?returnUrl=%2FMyAppointments" {
		t.Errorf("Unexpected redirect %q", got)
	}

	do(r, "POST", "/api/auth/logout", nil, token)
	w = do(r, "GET", "/api/auth/me", nil, token)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 after logout, got %d", w.Code)
	}
}

func TestCareRequiresAuth(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := do(r, "GET", "/api/care/dashboard", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", w.Code)
	}
	if got := decode[map[string]string](t, w)["redirect"]; got != "/Login?returnUrl=%2Fapi%2Fcare%2Fdashboard" {
		t.Errorf("Unexpected redirect %q", got)
	}

	w = do(r, "GET", "/api/care/dashboard", nil, "mock-token-forged")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for a stale token, got %d", w.Code)
	}
}

func TestCareWorkflow(t *testing.T) {
	r, _ := setupTestRouter(t)
	token := login(t, r)

	w := do(r, "POST", "/api/care/patients", map[string]any{"full_name": "Jane Doe", "age": 34}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	patient := decode[schema.Patient](t, w)
	if !strings.HasPrefix(patient.PatientID, "P") {
		t.Errorf("Expected a patient number, got %q", patient.PatientID)
	}

	w = do(r, "POST", "/api/care/patients", map[string]any{"age": 34}, token)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	w = do(r, "POST", "/api/care/patients/"+patient.ID+"/open", nil, token)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	w = do(r, "POST", "/api/care/patients/missing/open", nil, token)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	w = do(r, "POST", "/api/care/symptom-checks", map[string]any{"patient_id": patient.ID, "symptoms_text": "headache"}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	check := decode[schema.SymptomCheck](t, w)
	if check.Status != schema.CheckCompleted || check.AIDiagnosis == nil {
		t.Errorf("Expected completed check, got %+v", check)
	}

	w = do(r, "POST", "/api/care/appointments", map[string]any{
		"patient_id":       patient.ID,
		"appointment_type": "video",
		"appointment_date": "2024-05-10T09:00",
		"reason":           "Follow-up",
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	apt := decode[schema.DoctorAppointment](t, w)

	w = do(r, "POST", "/api/care/appointments", map[string]any{"patient_id": patient.ID}, token)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	w = do(r, "POST", "/api/care/appointments/"+apt.ID+"/reschedule", map[string]any{"appointment_date": "2024-05-12T09:00"}, token)
	if got := decode[schema.DoctorAppointment](t, w); got.Status != schema.AppointmentRescheduled {
		t.Errorf("Expected rescheduled, got %+v", got)
	}

	w = do(r, "POST", "/api/care/consultations", map[string]any{
		"symptom_check_id":  check.ID,
		"consultation_type": "chat",
		"preferred_time":    "2024-04-20T09:00",
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode[care.Consultation](t, w); got.Appointment == nil {
		t.Errorf("Expected a linked appointment, got %+v", got)
	}

	w = do(r, "GET", "/api/care/appointments", nil, token)
	buckets := decode[care.AppointmentBuckets](t, w)
	if len(buckets.Upcoming) != 1 || buckets.Upcoming[0].ID != apt.ID || len(buckets.Past) != 1 {
		t.Errorf("Unexpected buckets: %+v", buckets)
	}

	w = do(r, "POST", "/api/care/appointments/"+apt.ID+"/cancel", map[string]any{}, token)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	w = do(r, "POST", "/api/care/appointments/missing/cancel", map[string]any{"reason": "x"}, token)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	w = do(r, "GET", "/api/care/dashboard", nil, token)
	d := decode[care.Dashboard](t, w)
	if d.TotalPatients != 1 || d.TotalSymptomChecks != 1 || len(d.ActiveAppointments) != 2 {
		t.Errorf("Unexpected dashboard: %+v", d)
	}
}

func TestNoRouteAndCORS(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := do(r, "GET", "/api/unknown/route/here/deep", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	w = do(r, "OPTIONS", "/api/entities", nil, "")
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}
