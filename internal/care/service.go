// Package care implements the patient workflows on top of the entity store:
// profiles, symptom analysis, appointments and consultations.
package care

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vitalis-dev/vitalis-store/internal/integrations"
	"github.com/vitalis-dev/vitalis-store/pkg/engine"
	"github.com/vitalis-dev/vitalis-store/pkg/schema"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// Appointment defaults applied when booking.
const (
	DefaultSpecialty       = "General Practitioner"
	DefaultDoctorName      = "To Be Assigned"
	DefaultDurationMinutes = 30
)

// ConsultationRequested is the status of a new consultation.
const ConsultationRequested = "requested"

const lastCheckRunes = 100

// Service runs the care workflows.
type Service struct {
	patients      *schema.Repository[schema.Patient]
	checks        *schema.Repository[schema.SymptomCheck]
	appointments  *schema.Repository[schema.DoctorAppointment]
	consultations *schema.Repository[schema.DoctorConsultation]

	llm        integrations.Invoker
	logger     *zap.Logger
	now        func() time.Time
	llmTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLLMTimeout bounds each LLM call. Zero means no bound beyond ctx.
func WithLLMTimeout(d time.Duration) Option {
	return func(s *Service) { s.llmTimeout = d }
}

// NewService binds the workflows to store and llm.
func NewService(store engine.EntityStore, llm integrations.Invoker, opts ...Option) *Service {
	s := &Service{
		llm:    llm,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	repoLog := schema.WithLogger(s.logger.Named("schema"))
	s.patients = schema.NewRepository[schema.Patient](store.For(schema.EntityPatient), repoLog)
	s.checks = schema.NewRepository[schema.SymptomCheck](store.For(schema.EntitySymptomCheck), repoLog)
	s.appointments = schema.NewRepository[schema.DoctorAppointment](store.For(schema.EntityDoctorAppointment), repoLog)
	s.consultations = schema.NewRepository[schema.DoctorConsultation](store.For(schema.EntityDoctorConsultation), repoLog)
	return s
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func (s *Service) timestamp() string {
	return engine.FormatTimestamp(s.now())
}

// RegisterPatient creates a patient profile with a display patient_id.
func (s *Service) RegisterPatient(ctx context.Context, p schema.Patient) (schema.Patient, error) {
	if err := ctx.Err(); err != nil {
		return schema.Patient{}, err
	}
	if strings.TrimSpace(p.FullName) == "" {
		return schema.Patient{}, invalid("full_name is required")
	}
	p.PatientID = patientNumber(s.now())

	created, err := s.patients.Create(p)
	if err != nil {
		return schema.Patient{}, fmt.Errorf("create patient: %w", err)
	}
	s.logger.Info("patient registered", zap.String("id", created.ID), zap.String("patient_id", created.PatientID))
	return created, nil
}

// patientNumber is "P" followed by the last 8 digits of the millisecond clock.
func patientNumber(t time.Time) string {
	ms := fmt.Sprintf("%d", t.UnixMilli())
	if len(ms) > 8 {
		ms = ms[len(ms)-8:]
	}
	return "P" + ms
}

// OpenPatient marks the patient as accessed now and returns it.
func (s *Service) OpenPatient(ctx context.Context, id string) (schema.Patient, error) {
	if err := ctx.Err(); err != nil {
		return schema.Patient{}, err
	}
	p, err := s.patients.Update(id, engine.Record{"last_accessed": s.timestamp()})
	if err != nil {
		return schema.Patient{}, err
	}
	if p == nil {
		return schema.Patient{}, fmt.Errorf("patient %s: %w", id, ErrNotFound)
	}
	return *p, nil
}

// SymptomRequest is one symptom submission. At least one input is required.
type SymptomRequest struct {
	PatientID string `json:"patient_id" binding:"required"`
	Text      string `json:"symptoms_text"`
	AudioURL  string `json:"audio_url"`
	ImageURL  string `json:"image_url"`
}

func (r SymptomRequest) fileURLs() []string {
	var urls []string
	if r.AudioURL != "" {
		urls = append(urls, r.AudioURL)
	}
	if r.ImageURL != "" {
		urls = append(urls, r.ImageURL)
	}
	return urls
}

// AnalyzeSymptoms records a symptom check, asks the LLM for a diagnosis and
// stores it. When the LLM fails the check is kept with status failed.
func (s *Service) AnalyzeSymptoms(ctx context.Context, req SymptomRequest) (schema.SymptomCheck, error) {
	if err := ctx.Err(); err != nil {
		return schema.SymptomCheck{}, err
	}
	if strings.TrimSpace(req.Text) == "" && req.AudioURL == "" && req.ImageURL == "" {
		return schema.SymptomCheck{}, invalid("provide symptoms in at least one format")
	}
	patient, err := s.patients.Get(req.PatientID)
	if err != nil {
		return schema.SymptomCheck{}, err
	}
	if patient == nil {
		return schema.SymptomCheck{}, fmt.Errorf("patient %s: %w", req.PatientID, ErrNotFound)
	}

	check, err := s.checks.Create(schema.SymptomCheck{
		PatientID:    patient.ID,
		PatientName:  patient.FullName,
		SymptomsText: req.Text,
		AudioURL:     req.AudioURL,
		ImageURL:     req.ImageURL,
		Status:       schema.CheckAnalyzing,
	})
	if err != nil {
		return schema.SymptomCheck{}, fmt.Errorf("create symptom check: %w", err)
	}
	log := s.logger.With(zap.String("check_id", check.ID), zap.String("patient_id", patient.ID))
	log.Info("analyzing symptoms", zap.Int("files", len(req.fileURLs())))

	llmCtx := ctx
	if s.llmTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, s.llmTimeout)
		defer cancel()
	}
	answer, err := s.llm.Invoke(llmCtx, integrations.LLMRequest{
		Prompt:         analysisPrompt(*patient, req),
		FileURLs:       req.fileURLs(),
		ResponseSchema: schema.DiagnosisSchema(),
	})
	if err != nil {
		log.Warn("symptom analysis failed", zap.Error(err))
		if _, uerr := s.checks.Update(check.ID, engine.Record{
			"status": schema.CheckFailed,
			"error":  err.Error(),
		}); uerr != nil {
			log.Error("failed to mark symptom check failed", zap.Error(uerr))
		}
		return schema.SymptomCheck{}, fmt.Errorf("analyze symptoms: %w", err)
	}

	updated, err := s.checks.Update(check.ID, engine.Record{
		"ai_diagnosis": answer,
		"status":       schema.CheckCompleted,
	})
	if err != nil {
		return schema.SymptomCheck{}, fmt.Errorf("store diagnosis: %w", err)
	}
	if updated == nil {
		return schema.SymptomCheck{}, fmt.Errorf("symptom check %s: %w", check.ID, ErrNotFound)
	}

	if _, err := s.patients.Update(patient.ID, engine.Record{
		"last_symptom_check": truncateRunes(req.Text, lastCheckRunes),
		"last_accessed":      s.timestamp(),
	}); err != nil {
		return schema.SymptomCheck{}, fmt.Errorf("update patient: %w", err)
	}

	log.Info("symptom analysis complete")
	return *updated, nil
}

func analysisPrompt(p schema.Patient, req SymptomRequest) string {
	history := p.MedicalHistory
	if history == "" {
		history = "None provided"
	}

	var b strings.Builder
	b.WriteString("You are a medical AI assistant. Analyze the following patient information and symptoms:\n\n")
	b.WriteString("Patient Information:\n")
	fmt.Fprintf(&b, "- Name: %s\n", p.FullName)
	fmt.Fprintf(&b, "- Age: %d years\n", p.Age)
	fmt.Fprintf(&b, "- Gender: %s\n", p.Gender)
	fmt.Fprintf(&b, "- Medical History: %s\n\n", history)
	b.WriteString("Symptoms Provided:\n")
	if req.Text != "" {
		fmt.Fprintf(&b, "Text Description: %s\n", req.Text)
	}
	if req.AudioURL != "" {
		b.WriteString("Audio description was provided (transcribe if needed)\n")
	}
	if req.ImageURL != "" {
		b.WriteString("Visual symptom image was provided (describe what you see)\n")
	}
	b.WriteString("\nProvide a comprehensive medical analysis including possible conditions, home remedies, OTC medications, and urgency level.")
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
