package domain

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
)

// Actor is the already-authenticated caller. Identity is trusted as given.
type Actor struct {
	ID   string
	Role Role
}

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleCustomer, RoleStaff:
		return r, nil
	case "":
		return "", validationError("role is required")
	default:
		return "", validationError(fmt.Sprintf("unknown role %q", s))
	}
}

func (a Actor) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return validationError("actor id is required")
	}
	if _, err := ParseRole(string(a.Role)); err != nil {
		return err
	}
	return nil
}

// InitialStatus is the status a new booking starts in for this actor. Only
// staff can enter walk-ins, which start in the waiting triage state.
func (a Actor) InitialStatus(walkIn bool) (Status, error) {
	switch a.Role {
	case RoleCustomer:
		if walkIn {
			return "", validationError("walk-ins are entered by staff")
		}
		return StatusRequested, nil
	case RoleStaff:
		if walkIn {
			return StatusWaiting, nil
		}
		return StatusConfirmed, nil
	default:
		return "", validationError(fmt.Sprintf("unknown role %q", a.Role))
	}
}
