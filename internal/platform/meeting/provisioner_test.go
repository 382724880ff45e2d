package meeting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

func testRequest(t *testing.T) Request {
	t.Helper()
	loc, err := time.LoadLocation("Africa/Casablanca")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, loc)
	return Request{
		AppointmentID: 12,
		Summary:       "Appointment: Checkup",
		Description:   "follow-up",
		Start:         start,
		End:           start.Add(30 * time.Minute),
		AttendeeEmail: "patient@example.com",
	}
}

func TestLinkProvisioner(t *testing.T) {
	p := NewLinkProvisioner("https://meet.example/room-%d")
	url, err := p.Provision(context.Background(), testRequest(t))
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if url != "https://meet.example/room-12" {
		t.Errorf("unexpected url %q", url)
	}
}

func TestLinkProvisioner_InvalidRequest(t *testing.T) {
	p := NewLinkProvisioner("https://meet.example/%d")
	req := testRequest(t)
	req.End = req.Start

	if _, err := p.Provision(context.Background(), req); err == nil {
		t.Fatal("expected error for empty window")
	}

	req = testRequest(t)
	req.AppointmentID = 0
	if _, err := p.Provision(context.Background(), req); err == nil {
		t.Fatal("expected error for missing appointment id")
	}
}

func TestWithTimeout_Success(t *testing.T) {
	inner := ProvisionerFunc(func(ctx context.Context, req Request) (string, error) {
		return "https://meet.example/ok", nil
	})
	url, err := WithTimeout(inner, time.Second).Provision(context.Background(), testRequest(t))
	if err != nil || url != "https://meet.example/ok" {
		t.Fatalf("got %q, %v", url, err)
	}
}

func TestWithTimeout_ProviderIgnoresContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	inner := ProvisionerFunc(func(ctx context.Context, req Request) (string, error) {
		<-release
		return "https://meet.example/late", nil
	})

	start := time.Now()
	_, err := WithTimeout(inner, 50*time.Millisecond).Provision(context.Background(), testRequest(t))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("timeout did not bound the call")
	}
}

func TestWithTimeout_PropagatesProviderError(t *testing.T) {
	boom := errors.New("quota exceeded")
	inner := ProvisionerFunc(func(ctx context.Context, req Request) (string, error) {
		return "", boom
	})
	_, err := WithTimeout(inner, time.Second).Provision(context.Background(), testRequest(t))
	if !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestWithTimeout_EmptyURL(t *testing.T) {
	inner := ProvisionerFunc(func(ctx context.Context, req Request) (string, error) {
		return "", nil
	})
	if _, err := WithTimeout(inner, time.Second).Provision(context.Background(), testRequest(t)); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestCalendarProvisioner_InsertsMeetEvent(t *testing.T) {
	var got calendar.Event
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/calendars/primary/events") {
			http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotFound)
			return
		}
		query = r.URL.RawQuery
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"evt-1","hangoutLink":"https://meet.google.com/abc-defg-hij"}`))
	}))
	defer srv.Close()

	p, err := newCalendarProvisioner(context.Background(), "",
		option.WithoutAuthentication(), option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("newCalendarProvisioner: %v", err)
	}

	url, err := p.Provision(context.Background(), testRequest(t))
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if url != "https://meet.google.com/abc-defg-hij" {
		t.Errorf("unexpected url %q", url)
	}
	if !strings.Contains(query, "conferenceDataVersion=1") {
		t.Errorf("expected conferenceDataVersion=1, got query %q", query)
	}
	if got.Summary != "Appointment: Checkup" || got.Description != "follow-up" {
		t.Errorf("unexpected event fields: %+v", got)
	}
	if got.Start.DateTime != "2025-03-10T09:00:00" || got.Start.TimeZone != "Africa/Casablanca" {
		t.Errorf("unexpected start: %+v", got.Start)
	}
	if got.End.DateTime != "2025-03-10T09:30:00" {
		t.Errorf("unexpected end: %+v", got.End)
	}
	if len(got.Attendees) != 1 || got.Attendees[0].Email != "patient@example.com" {
		t.Errorf("unexpected attendees: %+v", got.Attendees)
	}
	if got.ConferenceData == nil || got.ConferenceData.CreateRequest == nil || got.ConferenceData.CreateRequest.RequestId == "" {
		t.Error("expected a conference create request")
	}
}

func TestCalendarProvisioner_NoMeetLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"evt-2"}`))
	}))
	defer srv.Close()

	p, err := newCalendarProvisioner(context.Background(), "primary",
		option.WithoutAuthentication(), option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("newCalendarProvisioner: %v", err)
	}
	if _, err := p.Provision(context.Background(), testRequest(t)); err == nil {
		t.Fatal("expected error when no meet link is returned")
	}
}

func TestNewCalendarProvisioner_BadCredentials(t *testing.T) {
	if _, err := NewCalendarProvisioner(context.Background(), []byte(`{not json`), "primary"); err == nil {
		t.Fatal("expected error for malformed credentials")
	}
}
