package meeting

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const localDateTime = "2006-01-02T15:04:05"

// CalendarProvisioner inserts a Google Calendar event with a Meet conference
// and returns its hangout link.
type CalendarProvisioner struct {
	events     *calendar.EventsService
	calendarID string
}

// NewCalendarProvisioner builds a Calendar client from service-account or
// authorized-user JSON credentials.
func NewCalendarProvisioner(ctx context.Context, credsJSON []byte, calendarID string) (*CalendarProvisioner, error) {
	creds, err := google.CredentialsFromJSON(ctx, credsJSON, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}
	return newCalendarProvisioner(ctx, calendarID, option.WithCredentials(creds))
}

func newCalendarProvisioner(ctx context.Context, calendarID string, opts ...option.ClientOption) (*CalendarProvisioner, error) {
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	return &CalendarProvisioner{events: svc.Events, calendarID: calendarID}, nil
}

func newCalendarEvent(req Request) *calendar.Event {
	ev := &calendar.Event{
		Summary:     req.Summary,
		Description: req.Description,
		Start: &calendar.EventDateTime{
			DateTime: req.Start.Format(localDateTime),
			TimeZone: req.Start.Location().String(),
		},
		End: &calendar.EventDateTime{
			DateTime: req.End.Format(localDateTime),
			TimeZone: req.End.Location().String(),
		},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             "meet-" + uuid.NewString(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}
	if req.AttendeeEmail != "" {
		ev.Attendees = []*calendar.EventAttendee{{Email: req.AttendeeEmail}}
	}
	return ev
}

func (p *CalendarProvisioner) Provision(ctx context.Context, req Request) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	created, err := p.events.Insert(p.calendarID, newCalendarEvent(req)).
		ConferenceDataVersion(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("insert calendar event: %w", err)
	}
	if created.HangoutLink == "" {
		return "", errors.New("calendar event created without a meet link")
	}
	return created.HangoutLink, nil
}
