// Package meeting provisions joinable video-meeting URLs for appointments.
// Providers are remote and fallible; callers always go through WithTimeout.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Request describes the meeting to create. Start and End carry the
// appointment's location.
type Request struct {
	AppointmentID int64
	Summary       string
	Description   string
	Start         time.Time
	End           time.Time
	AttendeeEmail string
}

func (r Request) validate() error {
	if r.Summary == "" {
		return errors.New("summary is required")
	}
	if !r.End.After(r.Start) {
		return errors.New("end must be after start")
	}
	return nil
}

// Provisioner creates a meeting and returns its URL.
type Provisioner interface {
	Provision(ctx context.Context, req Request) (string, error)
}

// ProvisionerFunc adapts a function to the Provisioner interface.
type ProvisionerFunc func(ctx context.Context, req Request) (string, error)

func (f ProvisionerFunc) Provision(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ErrTimeout is returned by WithTimeout when the provider does not answer in
// time.
var ErrTimeout = errors.New("meeting provisioning timed out")

type timeoutProvisioner struct {
	next    Provisioner
	timeout time.Duration
}

// WithTimeout bounds every call to next. The result is abandoned when the
// deadline passes even if next ignores its context.
func WithTimeout(next Provisioner, timeout time.Duration) Provisioner {
	return &timeoutProvisioner{next: next, timeout: timeout}
}

func (p *timeoutProvisioner) Provision(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type result struct {
		url string
		err error
	}
	done := make(chan result, 1)
	go func() {
		url, err := p.next.Provision(ctx, req)
		done <- result{url, err}
	}()

	select {
	case r := <-done:
		if r.err == nil && r.url == "" {
			return "", errors.New("provider returned an empty meeting url")
		}
		return r.url, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, p.timeout)
		}
		return "", ctx.Err()
	}
}
