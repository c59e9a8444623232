package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vitalis-dev/vitalis-store/internal/jsonschema"
	"github.com/vitalis-dev/vitalis-store/pkg/engine"
	"github.com/vitalis-dev/vitalis-store/pkg/schema"
)

func TestRepository_PatientLifecycle(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	patients := schema.NewRepository[schema.Patient](store.For(schema.EntityPatient))
	assert.Equal(t, "Patient", patients.Name())

	created, err := patients.Create(schema.Patient{FullName: "Jane Doe", Age: 34, Meta: schema.Meta{ID: "ignored"}})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.NotEqual(t, "ignored", created.ID)
	assert.NotEmpty(t, created.CreatedAt)
	assert.Equal(t, created.Base(), created.Meta)

	list, err := patients.List(engine.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Jane Doe", list[0].FullName)

	updated, err := patients.Update(created.ID, engine.Record{"age": 35})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, 35, updated.Age)
	assert.Equal(t, "Jane Doe", updated.FullName)

	require.NoError(t, patients.Delete(created.ID))
	got, err := patients.Get(created.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	missing, err := patients.Update("nope", engine.Record{"age": 1})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_ListSkipsIllTypedRecords(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	core, logs := observer.New(zap.WarnLevel)
	patients := schema.NewRepository[schema.Patient](store.For(schema.EntityPatient), schema.WithLogger(zap.New(core)))

	bad, err := store.Create(schema.EntityPatient, engine.Record{"full_name": "Typed By Hand", "age": "34"})
	require.NoError(t, err)
	good, err := patients.Create(schema.Patient{FullName: "Jane Doe", Age: 34})
	require.NoError(t, err)

	list, err := patients.List(engine.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, good.ID, list[0].ID)

	entries := logs.FilterMessage("skipping undecodable record").All()
	require.Len(t, entries, 1)
	assert.Equal(t, bad.ID(), entries[0].ContextMap()["id"])

	// Get still reports the broken record instead of hiding it.
	_, err = patients.Get(bad.ID())
	assert.Error(t, err)
}

func TestRepository_IgnoresUnknownFields(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	rec, err := store.Create(schema.EntitySymptomCheck, engine.Record{
		"patient_id": "p1",
		"status":     "completed",
		"ai_diagnosis": map[string]any{
			"possible_condition": "Common cold",
			"urgency_level":      "Optional",
			"home_remedies":      []any{"rest", "fluids"},
		},
		"legacy_field": true,
	})
	require.NoError(t, err)

	checks := schema.NewRepository[schema.SymptomCheck](store.For(schema.EntitySymptomCheck))
	got, err := checks.Get(rec.ID())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.AIDiagnosis)
	assert.Equal(t, "Common cold", got.AIDiagnosis.PossibleCondition)
	assert.Equal(t, []string{"rest", "fluids"}, got.AIDiagnosis.HomeRemedies)
}

func TestRepository_ListSorted(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	appts := schema.NewRepository[schema.DoctorAppointment](store.For(schema.EntityDoctorAppointment))
	for _, d := range []string{"2024-05-01T10:00:00.000Z", "2024-07-01T10:00:00.000Z", "2024-06-01T10:00:00.000Z"} {
		_, err := appts.Create(schema.DoctorAppointment{PatientID: "p1", AppointmentDate: d, Status: schema.AppointmentScheduled})
		require.NoError(t, err)
	}

	list, err := appts.List(engine.ListOptions{Sort: "-appointment_date", Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2024-07-01T10:00:00.000Z", list[0].AppointmentDate)
	assert.Equal(t, "2024-06-01T10:00:00.000Z", list[1].AppointmentDate)
	assert.True(t, list[0].Active())
}

func TestDiagnosisSchemaAcceptsDiagnosis(t *testing.T) {
	d := schema.Diagnosis{
		PossibleCondition: "Migraine",
		UrgencyLevel:      "Within a Week",
		HomeRemedies:      []string{"dark room"},
		OTCMedications:    []string{"ibuprofen"},
	}
	assert.NoError(t, jsonschema.Validate(schema.DiagnosisSchema(), d))

	d.UrgencyLevel = "Whenever"
	assert.Error(t, jsonschema.Validate(schema.DiagnosisSchema(), d))
}
