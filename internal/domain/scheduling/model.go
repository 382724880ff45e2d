package scheduling

import (
	"strings"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/civil"

	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/apperr"
)

const (
	MaxTypeLength   = 200
	MaxReasonLength = 700

	// MeetingWindow is the length of the meeting booked on join.
	MeetingWindow = 30 * time.Minute
)

// Appointment is a scheduled consultation. PatientID is nil until a patient
// is linked.
type Appointment struct {
	ID              int64      `db:"id" json:"id"`
	PatientID       *int64     `db:"patient_id" json:"patient_id"`
	AppointmentType string     `db:"appointment_type" json:"appointment_type"`
	Date            civil.Date `db:"date" json:"date"`
	Time            civil.Time `db:"time" json:"time"`
	Reason          string     `db:"reason" json:"reason"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// StartsAt places the appointment's wall-clock date and time in loc. The
// wall clock is kept on days when loc changes its UTC offset.
func (a *Appointment) StartsAt(loc *time.Location) time.Time {
	return time.Date(a.Date.Year, a.Date.Month, a.Date.Day,
		a.Time.Hour, a.Time.Minute, a.Time.Second, a.Time.Nanosecond, loc)
}

// IsUpcoming reports whether the appointment falls on or after today.
func (a *Appointment) IsUpcoming(today civil.Date) bool {
	return !a.Date.Before(today)
}

// ScheduleRequest is the client's input to Schedule. Date is YYYY-MM-DD and
// Time is HH:MM or HH:MM:SS.
type ScheduleRequest struct {
	PatientID       *int64 `json:"patient_id" form:"patient_id"`
	AppointmentType string `json:"appointment_type" form:"appointment_type"`
	Date            string `json:"date" form:"date"`
	Time            string `json:"time" form:"time"`
	Reason          string `json:"reason" form:"reason"`
}

// toAppointment validates r and converts it. PatientID is copied as given.
func (r *ScheduleRequest) toAppointment() (*Appointment, error) {
	apptType := strings.TrimSpace(r.AppointmentType)
	if apptType == "" {
		return nil, apperr.Validation("appointment_type is required")
	}
	if utf8.RuneCountInString(apptType) > MaxTypeLength {
		return nil, apperr.Validation("appointment_type exceeds %d characters", MaxTypeLength)
	}
	if utf8.RuneCountInString(r.Reason) > MaxReasonLength {
		return nil, apperr.Validation("reason exceeds %d characters", MaxReasonLength)
	}
	if r.PatientID != nil && *r.PatientID <= 0 {
		return nil, apperr.Validation("patient_id must be positive")
	}

	date, err := ParseDate(r.Date)
	if err != nil {
		return nil, err
	}
	tod, err := ParseTime(r.Time)
	if err != nil {
		return nil, err
	}

	return &Appointment{
		PatientID:       r.PatientID,
		AppointmentType: apptType,
		Date:            date,
		Time:            tod,
		Reason:          r.Reason,
	}, nil
}

// ParseDate accepts a real calendar date in YYYY-MM-DD form.
func ParseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return civil.Date{}, apperr.Validation("date %q is not a valid YYYY-MM-DD date", s)
	}
	return d, nil
}

// ParseTime accepts HH:MM or HH:MM:SS. The hour may be a single digit.
func ParseTime(s string) (civil.Time, error) {
	v := strings.TrimSpace(s)
	layout := "15:04:05"
	if strings.Count(v, ":") == 1 {
		layout = "15:04"
	}
	if strings.Index(v, ":") == 1 {
		v = "0" + v
	}
	t, err := time.Parse(layout, v)
	if err != nil {
		return civil.Time{}, apperr.Validation("time %q is not a valid HH:MM or HH:MM:SS time", s)
	}
	return civil.TimeOf(t), nil
}

// Partition splits appts into upcoming and past relative to today, keeping
// the input order in both halves.
func Partition(appts []*Appointment, today civil.Date) (upcoming, past []*Appointment) {
	upcoming = []*Appointment{}
	past = []*Appointment{}
	for _, a := range appts {
		if a.IsUpcoming(today) {
			upcoming = append(upcoming, a)
		} else {
			past = append(past, a)
		}
	}
	return upcoming, past
}
