package gateway

import (
	"context"
	"errors"
	"fmt"

	"zeron/internal/identity"
	"zeron/internal/otp/models"
	propmodels "zeron/internal/property/models"
	propstore "zeron/internal/property/store"
	"zeron/pkg/domain"
	dErrors "zeron/pkg/domain-errors"
	"zeron/pkg/platform/sentinel"
	"zeron/pkg/requestcontext"
)

// Operations builds the complete gated operation set over the platform's
// stores. Property writes go through the property store; role writes are the
// only mutation path into the user directory.
func Operations(properties propstore.Store, directory identity.Directory) []GatedOperation {
	return []GatedOperation{
		propertyCreate(properties),
		propertyUpdate(properties),
		propertyDelete(properties),
		promoteSuperAdmin(directory),
		updateRole(directory),
	}
}

func requireAdmin(caller identity.Identity) error {
	if !caller.Role.IsAdmin() {
		return dErrors.New(dErrors.CodeForbidden, "admin role required")
	}
	return nil
}

func requireSuperAdmin(caller identity.Identity) error {
	if caller.Role != identity.RoleSuperAdmin {
		return dErrors.New(dErrors.CodeForbidden, "super admin role required")
	}
	return nil
}

func propertyCreate(properties propstore.Store) GatedOperation {
	return GatedOperation{
		Op:        models.OperationPropertyCreate,
		Authorize: requireAdmin,
		Precondition: func(ctx context.Context, cmd Command) error {
			return validateProperty(cmd.Property, true)
		},
		Summary: func(cmd Command) string {
			return fmt.Sprintf("create property %q (%d shares)", cmd.Property.Title, cmd.Property.TotalShares)
		},
		SubjectID: func(cmd Command) string { return cmd.Property.Title },
		Apply: func(ctx context.Context, cmd Command) (any, error) {
			now := requestcontext.Now(ctx)
			status := propmodels.PropertyStatusActive
			if cmd.Property.Status != "" {
				status = propmodels.PropertyStatus(cmd.Property.Status)
			}
			p := &propmodels.Property{
				ID:              domain.NewPropertyID(),
				Title:           cmd.Property.Title,
				Location:        cmd.Property.Location,
				Status:          status,
				PricePerShare:   cmd.Property.PricePerShare,
				TotalShares:     cmd.Property.TotalShares,
				AvailableShares: cmd.Property.TotalShares,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := properties.Create(ctx, p); err != nil {
				if errors.Is(err, sentinel.ErrConflict) {
					return nil, dErrors.Wrap(err, dErrors.CodeConflict, "property already exists")
				}
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create property")
			}
			return p, nil
		},
	}
}

func propertyUpdate(properties propstore.Store) GatedOperation {
	return GatedOperation{
		Op:        models.OperationPropertyUpdate,
		Authorize: requireAdmin,
		Precondition: func(ctx context.Context, cmd Command) error {
			if cmd.PropertyID.IsZero() {
				return dErrors.New(dErrors.CodeValidation, "property id is required")
			}
			if err := validateProperty(cmd.Property, false); err != nil {
				return err
			}
			existing, err := findProperty(ctx, properties, cmd.PropertyID)
			if err != nil {
				return err
			}
			if existing.Status == propmodels.PropertyStatusDeleted {
				return dErrors.New(dErrors.CodePrecondition, "property is deleted")
			}
			return nil
		},
		Summary: func(cmd Command) string {
			return fmt.Sprintf("update property %s", cmd.PropertyID)
		},
		SubjectID: func(cmd Command) string { return cmd.PropertyID.String() },
		Apply: func(ctx context.Context, cmd Command) (any, error) {
			existing, err := findProperty(ctx, properties, cmd.PropertyID)
			if err != nil {
				return nil, err
			}
			existing.Title = cmd.Property.Title
			existing.Location = cmd.Property.Location
			existing.PricePerShare = cmd.Property.PricePerShare
			if cmd.Property.Status != "" {
				existing.Status = propmodels.PropertyStatus(cmd.Property.Status)
			}
			existing.UpdatedAt = requestcontext.Now(ctx)
			// Update never touches the share pool; inventory moves only
			// through Reserve and Release.
			if err := properties.Update(ctx, existing); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update property")
			}
			return existing, nil
		},
	}
}

func propertyDelete(properties propstore.Store) GatedOperation {
	return GatedOperation{
		Op:        models.OperationPropertyDelete,
		Authorize: requireAdmin,
		Precondition: func(ctx context.Context, cmd Command) error {
			if cmd.PropertyID.IsZero() {
				return dErrors.New(dErrors.CodeValidation, "property id is required")
			}
			existing, err := findProperty(ctx, properties, cmd.PropertyID)
			if err != nil {
				return err
			}
			if existing.Status == propmodels.PropertyStatusDeleted {
				return dErrors.New(dErrors.CodePrecondition, "property is already deleted")
			}
			if existing.InvestorCount > 0 {
				return dErrors.New(dErrors.CodePrecondition, "property has investors")
			}
			return nil
		},
		Summary: func(cmd Command) string {
			return fmt.Sprintf("delete property %s", cmd.PropertyID)
		},
		SubjectID: func(cmd Command) string { return cmd.PropertyID.String() },
		Apply: func(ctx context.Context, cmd Command) (any, error) {
			if err := properties.MarkDeleted(ctx, cmd.PropertyID); err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "property not found")
				}
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete property")
			}
			return map[string]string{"id": cmd.PropertyID.String(), "status": string(propmodels.PropertyStatusDeleted)}, nil
		},
	}
}

func promoteSuperAdmin(directory identity.Directory) GatedOperation {
	return GatedOperation{
		Op:        models.OperationPromoteSuperAdmin,
		Authorize: requireSuperAdmin,
		Precondition: func(ctx context.Context, cmd Command) error {
			target, err := roleTarget(ctx, directory, cmd)
			if err != nil {
				return err
			}
			if cmd.Role.UserID == cmd.Caller.UserID {
				return dErrors.New(dErrors.CodePrecondition, "cannot change own role")
			}
			if target.Role == identity.RoleSuperAdmin {
				return dErrors.New(dErrors.CodePrecondition, "user is already a super admin")
			}
			if target.Role != identity.RoleAdmin {
				return dErrors.New(dErrors.CodePrecondition, "only admins can be promoted")
			}
			return nil
		},
		Summary: func(cmd Command) string {
			return fmt.Sprintf("promote user %s to super admin", cmd.Role.UserID)
		},
		SubjectID: func(cmd Command) string { return cmd.Role.UserID.String() },
		Apply: func(ctx context.Context, cmd Command) (any, error) {
			return applyRole(ctx, directory, cmd.Role.UserID, identity.RoleSuperAdmin)
		},
	}
}

func updateRole(directory identity.Directory) GatedOperation {
	return GatedOperation{
		Op:        models.OperationUpdateRole,
		Authorize: requireSuperAdmin,
		Precondition: func(ctx context.Context, cmd Command) error {
			target, err := roleTarget(ctx, directory, cmd)
			if err != nil {
				return err
			}
			if cmd.Role.Role == "" {
				return dErrors.New(dErrors.CodeValidation, "role is required")
			}
			if _, err := identity.ParseRole(string(cmd.Role.Role)); err != nil {
				return dErrors.Wrap(err, dErrors.CodeValidation, "invalid role")
			}
			if cmd.Role.UserID == cmd.Caller.UserID {
				return dErrors.New(dErrors.CodePrecondition, "cannot change own role")
			}
			if target.Role == cmd.Role.Role {
				return dErrors.New(dErrors.CodePrecondition, "user already has that role")
			}
			return nil
		},
		Summary: func(cmd Command) string {
			return fmt.Sprintf("set role of user %s to %s", cmd.Role.UserID, cmd.Role.Role)
		},
		SubjectID: func(cmd Command) string { return cmd.Role.UserID.String() },
		Apply: func(ctx context.Context, cmd Command) (any, error) {
			return applyRole(ctx, directory, cmd.Role.UserID, cmd.Role.Role)
		},
	}
}

func roleTarget(ctx context.Context, directory identity.Directory, cmd Command) (identity.Identity, error) {
	if cmd.Role == nil || cmd.Role.UserID.IsZero() {
		return identity.Identity{}, dErrors.New(dErrors.CodeValidation, "target user id is required")
	}
	target, err := directory.FindByID(ctx, cmd.Role.UserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return identity.Identity{}, dErrors.Wrap(err, dErrors.CodeNotFound, "user not found")
		}
		return identity.Identity{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return target, nil
}

func applyRole(ctx context.Context, directory identity.Directory, userID domain.UserID, role identity.Role) (any, error) {
	if err := directory.UpdateRole(ctx, userID, role); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update role")
	}
	return map[string]string{"userId": userID.String(), "role": string(role)}, nil
}

func findProperty(ctx context.Context, properties propstore.Store, id domain.PropertyID) (*propmodels.Property, error) {
	p, err := properties.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "property not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load property")
	}
	return p, nil
}
