package bearer

import (
	"fmt"

	"github.com/rhuss/lens/pkg/auth"
)

// Requirement names.
const (
	ScopeRequirementName   = "bearer-scope"
	AppRoleRequirementName = "bearer-app-role"
)

// ScopeRequirement is satisfied by an identity carrying at least one of Scopes.
type ScopeRequirement struct {
	Scopes []string
}

func (r ScopeRequirement) Name() string { return ScopeRequirementName }

// Evaluate implements auth.Requirement.
func (r ScopeRequirement) Evaluate(id *auth.Identity) error {
	if len(r.Scopes) == 0 || id.HasAnyScope(r.Scopes...) {
		return nil
	}
	return &auth.RequirementError{
		Requirement: ScopeRequirementName,
		Reason:      fmt.Sprintf("requires one of scopes %v", r.Scopes),
	}
}

// AppRoleRequirement is satisfied by an identity carrying at least one of
// Roles. With ApplicationsOnly set, identities acting for a user are not
// checked.
type AppRoleRequirement struct {
	Roles            []string
	ApplicationsOnly bool
}

func (r AppRoleRequirement) Name() string { return AppRoleRequirementName }

// Evaluate implements auth.Requirement.
func (r AppRoleRequirement) Evaluate(id *auth.Identity) error {
	if len(r.Roles) == 0 {
		return nil
	}
	if r.ApplicationsOnly && id != nil && !id.Application {
		return nil
	}
	if id.HasAnyRole(r.Roles...) {
		return nil
	}
	return &auth.RequirementError{
		Requirement: AppRoleRequirementName,
		Reason:      fmt.Sprintf("requires one of app roles %v", r.Roles),
	}
}
