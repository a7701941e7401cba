package auth

import (
	"context"
	"fmt"
)

// rolePermissions maps each role to the module actions it is granted.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role]map[string][]string{
	RoleAdmin: {
		ModuleDevice:       {ActionView, ActionAdd, ActionEdit},
		ModuleSubscription: {ActionView, ActionAdd, ActionEdit},
	},
	RoleOperator: {
		ModuleDevice:       {ActionView, ActionEdit},
		ModuleSubscription: {ActionView},
	},
	RoleService: {
		ModuleDevice:       {ActionView, ActionAdd, ActionEdit},
		ModuleSubscription: {ActionView, ActionAdd, ActionEdit},
	},
}

// Authorizer decides whether an actor may perform an operation.
// Command issuers call it before touching the outbox.
type Authorizer interface {
	Authorize(ctx context.Context, actor Actor, req Requirement) error
}

// RoleAuthorizer implements Authorizer from the static role grant table.
type RoleAuthorizer struct{}

// NewRoleAuthorizer creates a role-table-backed authorizer.
func NewRoleAuthorizer() *RoleAuthorizer {
	return &RoleAuthorizer{}
}

// Authorize returns ErrPermissionDenied unless the actor's role grants
// every requested action on the module.
func (a *RoleAuthorizer) Authorize(_ context.Context, actor Actor, req Requirement) error {
	grants, ok := rolePermissions[actor.Role]
	if !ok {
		return fmt.Errorf("%w: unknown role %q", ErrPermissionDenied, actor.Role)
	}

	actions, ok := grants[req.Module]
	if !ok {
		return fmt.Errorf("%w: no access to module %q", ErrPermissionDenied, req.Module)
	}

	for _, required := range req.Actions {
		if !contains(actions, required) {
			return fmt.Errorf("%w: %s on %s", ErrPermissionDenied, required, req.Module)
		}
	}

	return nil
}

func contains(actions []string, action string) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}
