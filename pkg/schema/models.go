package schema

// Entity type names used by the care workflows.
const (
	EntityPatient            = "Patient"
	EntitySymptomCheck       = "SymptomCheck"
	EntityDoctorAppointment  = "DoctorAppointment"
	EntityDoctorConsultation = "DoctorConsultation"
)

// Meta carries the store-managed fields every record has.
type Meta struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Base returns the store-managed fields.
func (m Meta) Base() Meta { return m }

// Model is implemented by every typed record through an embedded Meta.
type Model interface {
	Base() Meta
}

// Patient is a person whose health data is managed by the user.
type Patient struct {
	Meta
	PatientID        string  `json:"patient_id,omitempty"`
	FullName         string  `json:"full_name"`
	Age              int     `json:"age,omitempty"`
	Gender           string  `json:"gender,omitempty"`
	HeightCM         float64 `json:"height_cm,omitempty"`
	WeightKG         float64 `json:"weight_kg,omitempty"`
	MedicalHistory   string  `json:"medical_history,omitempty"`
	Phone            string  `json:"phone,omitempty"`
	Email            string  `json:"email,omitempty"`
	LastAccessed     string  `json:"last_accessed,omitempty"`
	LastSymptomCheck string  `json:"last_symptom_check,omitempty"`
}

// Symptom check statuses.
const (
	CheckAnalyzing = "analyzing"
	CheckCompleted = "completed"
	CheckFailed    = "failed"
)

// SymptomCheck is one submission of symptoms and its AI analysis.
type SymptomCheck struct {
	Meta
	PatientID    string     `json:"patient_id"`
	PatientName  string     `json:"patient_name,omitempty"`
	SymptomsText string     `json:"symptoms_text,omitempty"`
	AudioURL     string     `json:"audio_url,omitempty"`
	ImageURL     string     `json:"image_url,omitempty"`
	AIDiagnosis  *Diagnosis `json:"ai_diagnosis,omitempty"`
	Status       string     `json:"status"`
	Error        string     `json:"error,omitempty"`
}

// Urgency levels a diagnosis may carry.
var UrgencyLevels = []string{"Immediate", "Today", "Within a Week", "Optional"}

// Diagnosis is the structured LLM answer stored on a SymptomCheck.
type Diagnosis struct {
	PossibleCondition string   `json:"possible_condition"`
	Description       string   `json:"description"`
	HomeRemedies      []string `json:"home_remedies"`
	OTCMedications    []string `json:"otc_medications"`
	UrgencyLevel      string   `json:"urgency_level"`
	UrgencyReason     string   `json:"urgency_reason"`
}

// DiagnosisSchema is the JSON Schema the LLM must answer with.
func DiagnosisSchema() map[string]any {
	stringArray := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	levels := make([]any, len(UrgencyLevels))
	for i, l := range UrgencyLevels {
		levels[i] = l
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"possible_condition": map[string]any{"type": "string"},
			"description":        map[string]any{"type": "string"},
			"home_remedies":      stringArray,
			"otc_medications":    stringArray,
			"urgency_level":      map[string]any{"type": "string", "enum": levels},
			"urgency_reason":     map[string]any{"type": "string"},
		},
		"required": []any{"possible_condition", "urgency_level"},
	}
}

// Appointment statuses.
const (
	AppointmentScheduled   = "scheduled"
	AppointmentRescheduled = "rescheduled"
	AppointmentCompleted   = "completed"
	AppointmentCancelled   = "cancelled"
)

// Appointment types.
const (
	AppointmentChat     = "chat"
	AppointmentCall     = "call"
	AppointmentVideo    = "video"
	AppointmentInPerson = "in-person"
)

// DoctorAppointment is a booked slot with a doctor.
type DoctorAppointment struct {
	Meta
	PatientID          string `json:"patient_id"`
	PatientName        string `json:"patient_name,omitempty"`
	AppointmentType    string `json:"appointment_type"`
	AppointmentDate    string `json:"appointment_date"`
	Reason             string `json:"reason"`
	Notes              string `json:"notes,omitempty"`
	Specialty          string `json:"specialty,omitempty"`
	DoctorName         string `json:"doctor_name,omitempty"`
	Status             string `json:"status"`
	DurationMinutes    int    `json:"duration_minutes,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
	ConsultationID     string `json:"consultation_id,omitempty"`
	SymptomCheckID     string `json:"symptom_check_id,omitempty"`
}

// Active reports whether the appointment still needs to happen.
func (a DoctorAppointment) Active() bool {
	return a.Status == AppointmentScheduled || a.Status == AppointmentRescheduled
}

// DoctorConsultation is a request to talk to a doctor about a symptom check.
type DoctorConsultation struct {
	Meta
	PatientID        string   `json:"patient_id"`
	PatientName      string   `json:"patient_name,omitempty"`
	SymptomCheckID   string   `json:"symptom_check_id"`
	ConsultationType string   `json:"consultation_type"`
	Description      string   `json:"description,omitempty"`
	ReportURLs       []string `json:"report_urls,omitempty"`
	PreferredTime    string   `json:"preferred_time,omitempty"`
	Status           string   `json:"status,omitempty"`
}
