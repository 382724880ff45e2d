package meeting

import (
	"context"
	"fmt"
)

// LinkProvisioner derives a stable room URL from the appointment id. It needs
// no remote account and is the default for local setups.
type LinkProvisioner struct {
	Template string
}

func NewLinkProvisioner(template string) *LinkProvisioner {
	return &LinkProvisioner{Template: template}
}

func (p *LinkProvisioner) Provision(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := req.validate(); err != nil {
		return "", err
	}
	if req.AppointmentID <= 0 {
		return "", fmt.Errorf("appointment id is required")
	}
	return fmt.Sprintf(p.Template, req.AppointmentID), nil
}
