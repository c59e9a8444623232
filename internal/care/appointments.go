package care

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vitalis-dev/vitalis-store/pkg/engine"
	"github.com/vitalis-dev/vitalis-store/pkg/schema"
)

// AppointmentTypes lists the accepted appointment_type values.
var AppointmentTypes = []string{
	schema.AppointmentChat,
	schema.AppointmentCall,
	schema.AppointmentVideo,
	schema.AppointmentInPerson,
}

// ConsultationTypes lists the accepted consultation_type values.
var ConsultationTypes = []string{
	schema.AppointmentChat,
	schema.AppointmentCall,
	schema.AppointmentVideo,
}

// AppointmentRequest books an appointment for an existing patient.
type AppointmentRequest struct {
	PatientID       string `json:"patient_id" binding:"required"`
	AppointmentType string `json:"appointment_type" binding:"required"`
	AppointmentDate string `json:"appointment_date" binding:"required"`
	Reason          string `json:"reason" binding:"required"`
	Notes           string `json:"notes"`
	Specialty       string `json:"specialty"`
}

// BookAppointment schedules an appointment with the default doctor.
func (s *Service) BookAppointment(ctx context.Context, req AppointmentRequest) (schema.DoctorAppointment, error) {
	if err := ctx.Err(); err != nil {
		return schema.DoctorAppointment{}, err
	}
	if req.PatientID == "" || req.AppointmentType == "" || req.AppointmentDate == "" || strings.TrimSpace(req.Reason) == "" {
		return schema.DoctorAppointment{}, invalid("patient_id, appointment_type, appointment_date and reason are required")
	}
	if !slices.Contains(AppointmentTypes, req.AppointmentType) {
		return schema.DoctorAppointment{}, invalid("unknown appointment_type %q", req.AppointmentType)
	}
	patient, err := s.patients.Get(req.PatientID)
	if err != nil {
		return schema.DoctorAppointment{}, err
	}
	if patient == nil {
		return schema.DoctorAppointment{}, fmt.Errorf("patient %s: %w", req.PatientID, ErrNotFound)
	}

	specialty := req.Specialty
	if specialty == "" {
		specialty = DefaultSpecialty
	}
	apt, err := s.appointments.Create(schema.DoctorAppointment{
		PatientID:       patient.ID,
		PatientName:     patient.FullName,
		AppointmentType: req.AppointmentType,
		AppointmentDate: req.AppointmentDate,
		Reason:          req.Reason,
		Notes:           req.Notes,
		Specialty:       specialty,
		DoctorName:      DefaultDoctorName,
		Status:          schema.AppointmentScheduled,
		DurationMinutes: DefaultDurationMinutes,
	})
	if err != nil {
		return schema.DoctorAppointment{}, fmt.Errorf("create appointment: %w", err)
	}
	s.logger.Info("appointment booked", zap.String("id", apt.ID), zap.String("date", apt.AppointmentDate))
	return apt, nil
}

// Reschedule moves an appointment to newDate.
func (s *Service) Reschedule(ctx context.Context, id, newDate string) (schema.DoctorAppointment, error) {
	if err := ctx.Err(); err != nil {
		return schema.DoctorAppointment{}, err
	}
	if strings.TrimSpace(newDate) == "" {
		return schema.DoctorAppointment{}, invalid("a new date is required")
	}
	return s.updateAppointment(id, engine.Record{
		"appointment_date": newDate,
		"status":           schema.AppointmentRescheduled,
	})
}

// Cancel cancels an appointment. A reason is required.
func (s *Service) Cancel(ctx context.Context, id, reason string) (schema.DoctorAppointment, error) {
	if err := ctx.Err(); err != nil {
		return schema.DoctorAppointment{}, err
	}
	if strings.TrimSpace(reason) == "" {
		return schema.DoctorAppointment{}, invalid("a cancellation reason is required")
	}
	return s.updateAppointment(id, engine.Record{
		"status":              schema.AppointmentCancelled,
		"cancellation_reason": reason,
	})
}

func (s *Service) updateAppointment(id string, patch engine.Record) (schema.DoctorAppointment, error) {
	apt, err := s.appointments.Update(id, patch)
	if err != nil {
		return schema.DoctorAppointment{}, err
	}
	if apt == nil {
		return schema.DoctorAppointment{}, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}
	s.logger.Info("appointment updated", zap.String("id", id), zap.String("status", apt.Status))
	return *apt, nil
}

// ConsultationRequest asks a doctor about a symptom check.
type ConsultationRequest struct {
	SymptomCheckID   string   `json:"symptom_check_id" binding:"required"`
	ConsultationType string   `json:"consultation_type" binding:"required"`
	Description      string   `json:"description"`
	ReportURLs       []string `json:"report_urls"`
	PreferredTime    string   `json:"preferred_time"`
}

// Consultation is a created consultation and, when a preferred time was
// given, its linked appointment.
type Consultation struct {
	Consultation schema.DoctorConsultation `json:"consultation"`
	Appointment  *schema.DoctorAppointment `json:"appointment,omitempty"`
}

// RequestConsultation creates a consultation for a symptom check.
func (s *Service) RequestConsultation(ctx context.Context, req ConsultationRequest) (Consultation, error) {
	if err := ctx.Err(); err != nil {
		return Consultation{}, err
	}
	if req.ConsultationType == "" {
		return Consultation{}, invalid("consultation_type is required")
	}
	if !slices.Contains(ConsultationTypes, req.ConsultationType) {
		return Consultation{}, invalid("unknown consultation_type %q", req.ConsultationType)
	}
	check, err := s.checks.Get(req.SymptomCheckID)
	if err != nil {
		return Consultation{}, err
	}
	if check == nil {
		return Consultation{}, fmt.Errorf("symptom check %s: %w", req.SymptomCheckID, ErrNotFound)
	}

	consultation, err := s.consultations.Create(schema.DoctorConsultation{
		PatientID:        check.PatientID,
		PatientName:      check.PatientName,
		SymptomCheckID:   check.ID,
		ConsultationType: req.ConsultationType,
		Description:      req.Description,
		ReportURLs:       req.ReportURLs,
		PreferredTime:    req.PreferredTime,
		Status:           ConsultationRequested,
	})
	if err != nil {
		return Consultation{}, fmt.Errorf("create consultation: %w", err)
	}
	out := Consultation{Consultation: consultation}

	if req.PreferredTime != "" {
		apt, err := s.appointments.Create(schema.DoctorAppointment{
			PatientID:       check.PatientID,
			PatientName:     check.PatientName,
			AppointmentType: req.ConsultationType,
			AppointmentDate: req.PreferredTime,
			Reason:          req.Description,
			ConsultationID:  consultation.ID,
			SymptomCheckID:  check.ID,
			DoctorName:      DefaultDoctorName,
			Specialty:       DefaultSpecialty,
			Status:          schema.AppointmentScheduled,
			DurationMinutes: DefaultDurationMinutes,
		})
		if err != nil {
			return Consultation{}, fmt.Errorf("create linked appointment: %w", err)
		}
		out.Appointment = &apt
	}

	s.logger.Info("consultation requested",
		zap.String("id", consultation.ID),
		zap.Bool("appointment", out.Appointment != nil))
	return out, nil
}

// AppointmentBuckets splits appointments for display. An appointment can be
// in both lists, or in neither when its date cannot be parsed.
type AppointmentBuckets struct {
	Upcoming []schema.DoctorAppointment `json:"upcoming"`
	Past     []schema.DoctorAppointment `json:"past"`
}

// Appointments lists appointments newest first, split around now.
func (s *Service) Appointments(ctx context.Context, now time.Time) (AppointmentBuckets, error) {
	if err := ctx.Err(); err != nil {
		return AppointmentBuckets{}, err
	}
	all, err := s.appointments.List(engine.ListOptions{Sort: "-appointment_date"})
	if err != nil {
		return AppointmentBuckets{}, err
	}

	out := AppointmentBuckets{
		Upcoming: []schema.DoctorAppointment{},
		Past:     []schema.DoctorAppointment{},
	}
	for _, apt := range all {
		when, ok := parseDate(apt.AppointmentDate)
		if apt.Active() && ok && when.After(now) {
			out.Upcoming = append(out.Upcoming, apt)
		}
		if apt.Status == schema.AppointmentCompleted || apt.Status == schema.AppointmentCancelled || (ok && when.Before(now)) {
			out.Past = append(out.Past, apt)
		}
	}
	return out, nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseDate accepts RFC 3339 and the zoneless forms date inputs produce.
// Zoneless values are read as UTC.
func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
