package api

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hakeemcare/clinic-booking/internal/booking"
	"github.com/hakeemcare/clinic-booking/internal/schedule"
)

var validate = validator.New()

type CreateBookingRequest struct {
	PractitionerID string `json:"practitioner_id" validate:"required,uuid"`
	Date           string `json:"date" validate:"required,datetime=2006-01-02"`
	Time           string `json:"time" validate:"required"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=completed cancelled"`
}

type DayRuleRequest struct {
	Day         string `json:"day" validate:"required"`
	StartTime   string `json:"start_time" validate:"required"`
	EndTime     string `json:"end_time" validate:"required"`
	SlotMinutes int    `json:"slot_minutes" validate:"required,gt=0"`
}

type SetScheduleRequest struct {
	Availability []DayRuleRequest `json:"availability" validate:"required,min=1,dive"`
}

type SlotResponse struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

type AppointmentResponse struct {
	ID             uuid.UUID `json:"id"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	Date           string    `json:"date"`
	Time           string    `json:"time"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

type AppointmentListItem struct {
	AppointmentResponse
	PatientName      string `json:"patient_name"`
	PractitionerName string `json:"practitioner_name"`
}

type DayRuleResponse struct {
	Day         string `json:"day"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	SlotMinutes int    `json:"slot_minutes"`
}

type ScheduleResponse struct {
	PractitionerID uuid.UUID         `json:"practitioner_id"`
	Availability   []DayRuleResponse `json:"availability"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

type ErrorResponse struct {
	Error   string                    `json:"error"`
	Details string                    `json:"details,omitempty"`
	Fields  []schedule.FieldViolation `json:"fields,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:             a.ID,
		PractitionerID: a.PractitionerID,
		PatientID:      a.PatientID,
		Date:           a.Date.Format(time.DateOnly),
		Time:           a.Time.String(),
		Status:         string(a.Status),
		CreatedAt:      a.CreatedAt,
	}
}

func toScheduleResponse(s *schedule.Schedule) ScheduleResponse {
	rules := make([]DayRuleResponse, 0, len(s.Rules))
	for _, r := range s.Rules {
		rules = append(rules, DayRuleResponse{
			Day:         r.Weekday.String(),
			StartTime:   r.Start.String(),
			EndTime:     r.End.String(),
			SlotMinutes: r.SlotMinutes,
		})
	}
	return ScheduleResponse{
		PractitionerID: s.PractitionerID,
		Availability:   rules,
		UpdatedAt:      s.UpdatedAt,
	}
}
