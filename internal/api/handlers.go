package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hakeemcare/clinic-booking/internal/booking"
	"github.com/hakeemcare/clinic-booking/internal/schedule"
	"github.com/hakeemcare/clinic-booking/internal/user"
)

// BookingService is what the handlers need from the booking core.
type BookingService interface {
	AvailableSlots(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]booking.Slot, error)
	CreateBooking(ctx context.Context, practitionerID, patientID uuid.UUID, date time.Time, t schedule.TimeOfDay) (*booking.Appointment, error)
	SetStatus(ctx context.Context, appointmentID, requesterID uuid.UUID, target booking.Status) (*booking.Appointment, error)
	ListForRequester(ctx context.Context, requesterID uuid.UUID, role user.Role) ([]booking.AppointmentDetail, error)
}

// ScheduleService is what the handlers need from the schedule write/read path.
type ScheduleService interface {
	SetSchedule(ctx context.Context, practitionerID uuid.UUID, rules []schedule.DayRule) (*schedule.Schedule, error)
	GetSchedule(ctx context.Context, practitionerID uuid.UUID) (*schedule.Schedule, error)
}

func availableSlotsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practitionerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "id must be a valid UUID")
			return
		}

		date, err := time.Parse(time.DateOnly, r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), practitionerID, date)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, SlotResponse{Time: s.Time.String(), Available: s.Available})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func createBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_identity", "authentication required")
			return
		}

		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		practitionerID, err := uuid.Parse(req.PractitionerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}
		date, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		t, err := schedule.ParseTimeOfDay(req.Time)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM")
			return
		}

		appt, err := svc.CreateBooking(r.Context(), practitionerID, identity.UserID, date, t)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_identity", "authentication required")
			return
		}

		details, err := svc.ListForRequester(r.Context(), identity.UserID, identity.Role)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := make([]AppointmentListItem, 0, len(details))
		for _, d := range details {
			resp = append(resp, AppointmentListItem{
				AppointmentResponse: toAppointmentResponse(&d.Appointment),
				PatientName:         d.PatientName,
				PractitionerName:    d.PractitionerName,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func updateStatusHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_identity", "authentication required")
			return
		}

		appointmentID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		appt, err := svc.SetStatus(r.Context(), appointmentID, identity.UserID, booking.Status(req.Status))
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func setScheduleHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_identity", "authentication required")
			return
		}

		var req SetScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		rules, err := rulesFromRequest(req.Availability)
		if err != nil {
			var verr *schedule.ValidationError
			if errors.As(err, &verr) {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{
					Error:  "invalid_schedule",
					Fields: verr.Violations,
				})
				return
			}
			writeError(w, http.StatusBadRequest, "invalid_schedule", err.Error())
			return
		}

		sched, err := svc.SetSchedule(r.Context(), identity.UserID, rules)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toScheduleResponse(sched))
	}
}

func getScheduleHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practitionerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "id must be a valid UUID")
			return
		}

		sched, err := svc.GetSchedule(r.Context(), practitionerID)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toScheduleResponse(sched))
	}
}

// rulesFromRequest converts wire rules, collecting per-field parse failures
// in the same shape the domain validation reports.
func rulesFromRequest(reqs []DayRuleRequest) ([]schedule.DayRule, error) {
	var violations []schedule.FieldViolation
	rules := make([]schedule.DayRule, 0, len(reqs))

	for i, req := range reqs {
		rule := schedule.DayRule{SlotMinutes: req.SlotMinutes}

		day, err := schedule.ParseWeekday(req.Day)
		if err != nil {
			violations = append(violations, schedule.FieldViolation{Rule: i, Field: "day", Message: "must be a weekday name"})
		}
		rule.Weekday = day

		start, err := schedule.ParseTimeOfDay(req.StartTime)
		if err != nil {
			violations = append(violations, schedule.FieldViolation{Rule: i, Field: "start_time", Message: "must be HH:MM"})
		}
		rule.Start = start

		end, err := schedule.ParseTimeOfDay(req.EndTime)
		if err != nil {
			violations = append(violations, schedule.FieldViolation{Rule: i, Field: "end_time", Message: "must be HH:MM"})
		}
		rule.End = end

		rules = append(rules, rule)
	}

	if len(violations) > 0 {
		return nil, &schedule.ValidationError{Violations: violations}
	}
	return rules, nil
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrPractitionerNotFound):
		writeError(w, http.StatusNotFound, "practitioner_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "this time slot was just booked, please select another")
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, booking.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "not_authorized", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleScheduleError(w http.ResponseWriter, err error) {
	var verr *schedule.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "invalid_schedule",
			Fields: verr.Violations,
		})
	case errors.Is(err, schedule.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, "schedule_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
