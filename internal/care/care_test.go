package care

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vitalis-dev/vitalis-store/internal/integrations"
	"github.com/vitalis-dev/vitalis-store/pkg/engine"
	"github.com/vitalis-dev/vitalis-store/pkg/schema"
)

var epoch = time.Date(2024, 4, 5, 19, 34, 38, 901_000_000, time.UTC)

// tickingClock advances one second per call.
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newService(t *testing.T, llm integrations.Invoker) (*Service, *engine.MemStore) {
	t.Helper()
	store := engine.NewMemStore(nil, nil, engine.WithClock(tickingClock(epoch)))
	t.Cleanup(store.Wait)
	if llm == nil {
		llm = &integrations.StubInvoker{}
	}
	return NewService(store, llm, WithClock(tickingClock(epoch))), store
}

func registerJane(t *testing.T, s *Service) schema.Patient {
	t.Helper()
	p, err := s.RegisterPatient(context.Background(), schema.Patient{FullName: "Jane Doe", Age: 34, Gender: "female"})
	require.NoError(t, err)
	return p
}

func TestRegisterPatient(t *testing.T) {
	s, _ := newService(t, nil)

	p := registerJane(t, s)
	assert.NotEmpty(t, p.ID)
	assert.NotEmpty(t, p.CreatedAt)
	assert.Equal(t, "Jane Doe", p.FullName)
	assert.Equal(t, patientNumber(epoch.Add(time.Second)), p.PatientID)
	assert.Regexp(t, `^P\d{8}$`, p.PatientID)

	_, err := s.RegisterPatient(context.Background(), schema.Patient{FullName: "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPatientNumber(t *testing.T) {
	assert.Equal(t, "P12345678", patientNumber(time.UnixMilli(9912345678)))
	assert.Equal(t, "P42", patientNumber(time.UnixMilli(42)))
}

func TestOpenPatient(t *testing.T) {
	s, _ := newService(t, nil)
	p := registerJane(t, s)
	assert.Empty(t, p.LastAccessed)

	opened, err := s.OpenPatient(context.Background(), p.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, opened.LastAccessed)
	assert.Equal(t, p.PatientID, opened.PatientID)

	_, err = s.OpenPatient(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAnalyzeSymptoms(t *testing.T) {
	var got integrations.LLMRequest
	llm := &integrations.StubInvoker{Respond: func(req integrations.LLMRequest) (map[string]any, error) {
		got = req
		return map[string]any{
			"possible_condition": "Migraine",
			"description":        "Recurring headaches.",
			"home_remedies":      []any{"rest", "hydration"},
			"otc_medications":    []any{"ibuprofen"},
			"urgency_level":      "Within a Week",
			"urgency_reason":     "No red flags.",
		}, nil
	}}
	s, store := newService(t, llm)
	p := registerJane(t, s)

	text := strings.Repeat("ä", 150)
	check, err := s.AnalyzeSymptoms(context.Background(), SymptomRequest{
		PatientID: p.ID,
		Text:      text,
		ImageURL:  "/files/rash.png",
	})
	require.NoError(t, err)

	assert.Equal(t, schema.CheckCompleted, check.Status)
	assert.Equal(t, "Jane Doe", check.PatientName)
	require.NotNil(t, check.AIDiagnosis)
	assert.Equal(t, "Migraine", check.AIDiagnosis.PossibleCondition)
	assert.Equal(t, []string{"rest", "hydration"}, check.AIDiagnosis.HomeRemedies)

	assert.Contains(t, got.Prompt, "- Age: 34 years")
	assert.Contains(t, got.Prompt, "- Medical History: None provided")
	assert.Contains(t, got.Prompt, "Visual symptom image was provided")
	assert.NotContains(t, got.Prompt, "Audio description")
	assert.Equal(t, []string{"/files/rash.png"}, got.FileURLs)
	assert.Equal(t, schema.DiagnosisSchema(), got.ResponseSchema)

	rec, err := store.Get(schema.EntityPatient, p.ID)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ä", 100), rec["last_symptom_check"])
	assert.NotEmpty(t, rec["last_accessed"])
}

func TestAnalyzeSymptoms_StubSynthesizes(t *testing.T) {
	s, _ := newService(t, nil)
	p := registerJane(t, s)

	check, err := s.AnalyzeSymptoms(context.Background(), SymptomRequest{PatientID: p.ID, Text: "headache"})
	require.NoError(t, err)
	require.NotNil(t, check.AIDiagnosis)
	assert.Contains(t, schema.UrgencyLevels, check.AIDiagnosis.UrgencyLevel)
}

func TestAnalyzeSymptoms_FailureMarksCheck(t *testing.T) {
	boom := errors.New("model unavailable")
	llm := &integrations.StubInvoker{Respond: func(integrations.LLMRequest) (map[string]any, error) {
		return nil, boom
	}}
	s, store := newService(t, llm)
	p := registerJane(t, s)

	_, err := s.AnalyzeSymptoms(context.Background(), SymptomRequest{PatientID: p.ID, Text: "fever"})
	require.ErrorIs(t, err, boom)

	checks, err := store.List(schema.EntitySymptomCheck, engine.ListOptions{})
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, schema.CheckFailed, checks[0]["status"])
	assert.Equal(t, "model unavailable", checks[0]["error"])

	rec, err := store.Get(schema.EntityPatient, p.ID)
	require.NoError(t, err)
	assert.NotContains(t, rec, "last_symptom_check")
}

func TestAnalyzeSymptoms_Validation(t *testing.T) {
	s, store := newService(t, nil)
	p := registerJane(t, s)

	_, err := s.AnalyzeSymptoms(context.Background(), SymptomRequest{PatientID: p.ID, Text: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.AnalyzeSymptoms(context.Background(), SymptomRequest{PatientID: "missing", Text: "cough"})
	assert.ErrorIs(t, err, ErrNotFound)

	checks, err := store.List(schema.EntitySymptomCheck, engine.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, checks)
}

func TestBookAppointment(t *testing.T) {
	s, _ := newService(t, nil)
	p := registerJane(t, s)
	ctx := context.Background()

	apt, err := s.BookAppointment(ctx, AppointmentRequest{
		PatientID:       p.ID,
		AppointmentType: schema.AppointmentVideo,
		AppointmentDate: "2024-05-01T10:00",
		Reason:          "Follow-up",
	})
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", apt.PatientName)
	assert.Equal(t, DefaultSpecialty, apt.Specialty)
	assert.Equal(t, DefaultDoctorName, apt.DoctorName)
	assert.Equal(t, schema.AppointmentScheduled, apt.Status)
	assert.Equal(t, DefaultDurationMinutes, apt.DurationMinutes)

	cardio, err := s.BookAppointment(ctx, AppointmentRequest{
		PatientID: p.ID, AppointmentType: schema.AppointmentInPerson,
		AppointmentDate: "2024-05-02", Reason: "Chest pain", Specialty: "Cardiology",
	})
	require.NoError(t, err)
	assert.Equal(t, "Cardiology", cardio.Specialty)

	_, err = s.BookAppointment(ctx, AppointmentRequest{PatientID: p.ID, AppointmentType: "carrier-pigeon", AppointmentDate: "2024-05-01", Reason: "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.BookAppointment(ctx, AppointmentRequest{PatientID: p.ID, AppointmentType: schema.AppointmentChat, AppointmentDate: "2024-05-01"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.BookAppointment(ctx, AppointmentRequest{PatientID: "missing", AppointmentType: schema.AppointmentChat, AppointmentDate: "2024-05-01", Reason: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRescheduleAndCancel(t *testing.T) {
	s, _ := newService(t, nil)
	p := registerJane(t, s)
	ctx := context.Background()

	apt, err := s.BookAppointment(ctx, AppointmentRequest{
		PatientID: p.ID, AppointmentType: schema.AppointmentCall,
		AppointmentDate: "2024-05-01T10:00", Reason: "Results",
	})
	require.NoError(t, err)

	_, err = s.Reschedule(ctx, apt.ID, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	moved, err := s.Reschedule(ctx, apt.ID, "2024-05-03T09:30")
	require.NoError(t, err)
	assert.Equal(t, schema.AppointmentRescheduled, moved.Status)
	assert.Equal(t, "2024-05-03T09:30", moved.AppointmentDate)
	assert.True(t, moved.Active())

	_, err = s.Cancel(ctx, apt.ID, "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	cancelled, err := s.Cancel(ctx, apt.ID, "Feeling better")
	require.NoError(t, err)
	assert.Equal(t, schema.AppointmentCancelled, cancelled.Status)
	assert.Equal(t, "Feeling better", cancelled.CancellationReason)
	assert.False(t, cancelled.Active())

	_, err = s.Reschedule(ctx, "missing", "2024-05-03")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Cancel(ctx, "missing", "reason")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRequestConsultation(t *testing.T) {
	s, store := newService(t, nil)
	p := registerJane(t, s)
	ctx := context.Background()

	check, err := s.AnalyzeSymptoms(ctx, SymptomRequest{PatientID: p.ID, Text: "sore throat"})
	require.NoError(t, err)

	plain, err := s.RequestConsultation(ctx, ConsultationRequest{
		SymptomCheckID:   check.ID,
		ConsultationType: schema.AppointmentChat,
		Description:      "Is this strep?",
	})
	require.NoError(t, err)
	assert.Nil(t, plain.Appointment)
	assert.Equal(t, p.ID, plain.Consultation.PatientID)
	assert.Equal(t, "Jane Doe", plain.Consultation.PatientName)
	assert.Equal(t, ConsultationRequested, plain.Consultation.Status)

	linked, err := s.RequestConsultation(ctx, ConsultationRequest{
		SymptomCheckID:   check.ID,
		ConsultationType: schema.AppointmentVideo,
		Description:      "Please look at my throat",
		ReportURLs:       []string{"/files/a.pdf"},
		PreferredTime:    "2024-05-04T14:00",
	})
	require.NoError(t, err)
	require.NotNil(t, linked.Appointment)
	apt := linked.Appointment
	assert.Equal(t, linked.Consultation.ID, apt.ConsultationID)
	assert.Equal(t, check.ID, apt.SymptomCheckID)
	assert.Equal(t, schema.AppointmentVideo, apt.AppointmentType)
	assert.Equal(t, "2024-05-04T14:00", apt.AppointmentDate)
	assert.Equal(t, "Please look at my throat", apt.Reason)
	assert.Equal(t, schema.AppointmentScheduled, apt.Status)

	appts, err := store.List(schema.EntityDoctorAppointment, engine.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, appts, 1)

	_, err = s.RequestConsultation(ctx, ConsultationRequest{SymptomCheckID: check.ID})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.RequestConsultation(ctx, ConsultationRequest{SymptomCheckID: check.ID, ConsultationType: schema.AppointmentInPerson})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.RequestConsultation(ctx, ConsultationRequest{SymptomCheckID: "missing", ConsultationType: schema.AppointmentCall})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppointmentsBuckets(t *testing.T) {
	s, _ := newService(t, nil)
	p := registerJane(t, s)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	book := func(date string) schema.DoctorAppointment {
		apt, err := s.BookAppointment(ctx, AppointmentRequest{
			PatientID: p.ID, AppointmentType: schema.AppointmentChat,
			AppointmentDate: date, Reason: "check",
		})
		require.NoError(t, err)
		return apt
	}
	future := book("2024-05-10T09:00")
	past := book("2024-04-20T09:00")
	cancelledFuture := book("2024-06-01T09:00")
	_, err := s.Cancel(ctx, cancelledFuture.ID, "travel")
	require.NoError(t, err)
	book("next tuesday")

	buckets, err := s.Appointments(ctx, now)
	require.NoError(t, err)

	ids := func(list []schema.DoctorAppointment) []string {
		out := make([]string, len(list))
		for i, a := range list {
			out[i] = a.ID
		}
		return out
	}
	assert.Equal(t, []string{future.ID}, ids(buckets.Upcoming))
	assert.Equal(t, []string{cancelledFuture.ID, past.ID}, ids(buckets.Past))
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2024-05-01T10:00:00Z", "2024-05-01T10:00:00.123+02:00", "2024-05-01T10:00:00", "2024-05-01T10:00", "2024-05-01"} {
		_, ok := parseDate(s)
		assert.True(t, ok, s)
	}
	_, ok := parseDate("tomorrow")
	assert.False(t, ok)
}

func TestDashboard(t *testing.T) {
	s, _ := newService(t, nil)
	ctx := context.Background()

	var patients []schema.Patient
	for _, name := range []string{"Ann", "Ben", "Cid"} {
		p, err := s.RegisterPatient(ctx, schema.Patient{FullName: name})
		require.NoError(t, err)
		patients = append(patients, p)
	}
	_, err := s.OpenPatient(ctx, patients[0].ID)
	require.NoError(t, err)
	_, err = s.OpenPatient(ctx, patients[2].ID)
	require.NoError(t, err)

	var checks []schema.SymptomCheck
	for _, text := range []string{"cough", "fever", "rash"} {
		c, err := s.AnalyzeSymptoms(ctx, SymptomRequest{PatientID: patients[1].ID, Text: text})
		require.NoError(t, err)
		checks = append(checks, c)
	}

	for _, date := range []string{"2024-05-01", "2024-05-03", "2024-05-02"} {
		_, err := s.BookAppointment(ctx, AppointmentRequest{PatientID: patients[0].ID, AppointmentType: schema.AppointmentCall, AppointmentDate: date, Reason: "x"})
		require.NoError(t, err)
	}
	late, err := s.BookAppointment(ctx, AppointmentRequest{PatientID: patients[0].ID, AppointmentType: schema.AppointmentCall, AppointmentDate: "2024-05-09", Reason: "x"})
	require.NoError(t, err)
	_, err = s.Cancel(ctx, late.ID, "no longer needed")
	require.NoError(t, err)

	d, err := s.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, d.TotalPatients)
	assert.Equal(t, 3, d.TotalSymptomChecks)

	// Ben was touched last by the symptom checks.
	require.Len(t, d.RecentPatients, 2)
	assert.Equal(t, "Ben", d.RecentPatients[0].FullName)
	assert.Equal(t, "Cid", d.RecentPatients[1].FullName)

	require.Len(t, d.RecentChecks, 2)
	assert.Equal(t, checks[2].ID, d.RecentChecks[0].ID)
	assert.Equal(t, checks[1].ID, d.RecentChecks[1].ID)

	require.Len(t, d.ActiveAppointments, 2)
	assert.Equal(t, "2024-05-03", d.ActiveAppointments[0].AppointmentDate)
	assert.Equal(t, "2024-05-02", d.ActiveAppointments[1].AppointmentDate)
}

func TestIllTypedRecordsAreSkipped(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := engine.NewMemStore(nil, nil, engine.WithClock(tickingClock(epoch)))
	t.Cleanup(store.Wait)
	s := NewService(store, &integrations.StubInvoker{}, WithClock(tickingClock(epoch)), WithLogger(zap.New(core)))
	ctx := context.Background()

	p := registerJane(t, s)
	good, err := s.BookAppointment(ctx, AppointmentRequest{PatientID: p.ID, AppointmentType: schema.AppointmentChat, AppointmentDate: "2024-05-10", Reason: "check"})
	require.NoError(t, err)

	_, err = store.Create(schema.EntityPatient, engine.Record{"full_name": "Typed By Hand", "age": "34"})
	require.NoError(t, err)
	_, err = store.Create(schema.EntityDoctorAppointment, engine.Record{
		"patient_id": p.ID, "appointment_date": "2024-05-11", "status": schema.AppointmentScheduled,
		"duration_minutes": "30",
	})
	require.NoError(t, err)

	d, err := s.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, d.TotalPatients)
	require.Len(t, d.ActiveAppointments, 1)
	assert.Equal(t, good.ID, d.ActiveAppointments[0].ID)

	buckets, err := s.Appointments(ctx, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, buckets.Upcoming, 1)
	assert.Equal(t, good.ID, buckets.Upcoming[0].ID)

	assert.NotZero(t, logs.FilterMessage("skipping undecodable record").Len())
}

func TestCancelledContext(t *testing.T) {
	s, _ := newService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.RegisterPatient(ctx, schema.Patient{FullName: "Jane"})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Dashboard(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
