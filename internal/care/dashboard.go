package care

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/vitalis-dev/vitalis-store/pkg/engine"
	"github.com/vitalis-dev/vitalis-store/pkg/schema"
)

const dashboardItems = 2

// Dashboard is the home page summary.
type Dashboard struct {
	TotalPatients      int                        `json:"total_patients"`
	TotalSymptomChecks int                        `json:"total_symptom_checks"`
	RecentPatients     []schema.Patient           `json:"recent_patients"`
	RecentChecks       []schema.SymptomCheck      `json:"recent_symptom_checks"`
	ActiveAppointments []schema.DoctorAppointment `json:"active_appointments"`
}

// Dashboard gathers the summary with one query per section, run in parallel.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		all, err := s.patients.List(engine.ListOptions{})
		d.TotalPatients = len(all)
		return err
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		all, err := s.checks.List(engine.ListOptions{})
		d.TotalSymptomChecks = len(all)
		return err
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		var err error
		d.RecentPatients, err = s.patients.List(engine.ListOptions{Sort: "-last_accessed", Limit: dashboardItems})
		return err
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		var err error
		d.RecentChecks, err = s.checks.List(engine.ListOptions{Sort: "-" + engine.FieldCreatedAt, Limit: dashboardItems})
		return err
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		all, err := s.appointments.List(engine.ListOptions{Sort: "-appointment_date"})
		if err != nil {
			return err
		}
		d.ActiveAppointments = []schema.DoctorAppointment{}
		for _, apt := range all {
			if len(d.ActiveAppointments) == dashboardItems {
				break
			}
			if apt.Active() {
				d.ActiveAppointments = append(d.ActiveAppointments, apt)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}
