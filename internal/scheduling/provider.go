package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type LicenseStatus string

// Verified is set by the credentialing team outside this service.
const (
	LicenseUnverified LicenseStatus = "Unverified"
	LicenseSubmitted  LicenseStatus = "Submitted"
	LicenseVerified   LicenseStatus = "Verified"
)

type Specialization struct {
	ID       uuid.UUID
	Category string
}

// Provider is the profile shown on the provider's own page.
type Provider struct {
	ID              uuid.UUID
	Name            string
	Email           string
	Phone           string
	About           string
	FieldExperience int
	Qualification   string
	Gender          string
	LicenseNumber   string
	LicenseStatus   LicenseStatus
	Specialization  *Specialization
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProfileUpdate is a partial update: nil and blank fields are left unchanged.
type ProfileUpdate struct {
	Phone           *string `json:"phone" validate:"omitempty,number,min=10,max=15"`
	About           *string `json:"about" validate:"omitempty,max=500"`
	FieldExperience *int    `json:"field_experience" validate:"omitempty,min=0,max=80"`
	Qualification   *string `json:"qualification" validate:"omitempty,max=100"`
	Gender          *string `json:"gender" validate:"omitempty,oneof=Male Female Other"`
}

func (u ProfileUpdate) empty() bool {
	return u.Phone == nil && u.About == nil && u.FieldExperience == nil &&
		u.Qualification == nil && u.Gender == nil
}

type LicenseSubmission struct {
	LicenseNumber    string    `json:"medical_license_number" validate:"required,medical_license"`
	SpecializationID uuid.UUID `json:"specialization_id" validate:"required"`
}

// ProviderDirectory serves the provider's own profile and license submission.
type ProviderDirectory struct {
	base
}

func NewProviderDirectory(store Store, opts ...Option) *ProviderDirectory {
	return &ProviderDirectory{base: newBase(store, opts)}
}

func (d *ProviderDirectory) GetProfile(ctx context.Context, providerID uuid.UUID) (p *Provider, err error) {
	defer func() { d.observe("get_profile", err) }()

	if providerID == uuid.Nil {
		return nil, invalid("provider_id", "is required")
	}
	p, err = d.store.GetProvider(ctx, providerID)
	if err != nil {
		return nil, asGatewayError("get provider", err)
	}
	return p, nil
}

// UpdateProfile applies the provided fields and returns the stored profile.
func (d *ProviderDirectory) UpdateProfile(ctx context.Context, providerID uuid.UUID, update ProfileUpdate) (p *Provider, err error) {
	defer func() { d.observe("update_profile", err) }()

	if providerID == uuid.Nil {
		return nil, invalid("provider_id", "is required")
	}
	update.Phone = trimmedOrNil(update.Phone)
	update.About = trimmedOrNil(update.About)
	update.Qualification = trimmedOrNil(update.Qualification)
	update.Gender = trimmedOrNil(update.Gender)
	if update.empty() {
		return nil, invalid("profile", "at least one field is required")
	}
	if err := validateStruct(update); err != nil {
		return nil, err
	}

	p, err = d.store.UpdateProvider(ctx, providerID, update)
	if err != nil {
		return nil, asGatewayError("update provider", err)
	}

	d.logEvent(ctx, EventProfileUpdated, "provider", providerID, map[string]any{
		"fields": updatedFields(update),
	})
	return p, nil
}

// SubmitLicense records the license for review. A verified license cannot be
// replaced, and a license number belongs to one provider only.
func (d *ProviderDirectory) SubmitLicense(ctx context.Context, providerID uuid.UUID, sub LicenseSubmission) (p *Provider, err error) {
	defer func() { d.observe("submit_license", err) }()

	if providerID == uuid.Nil {
		return nil, invalid("provider_id", "is required")
	}
	sub.LicenseNumber = strings.ToUpper(strings.TrimSpace(sub.LicenseNumber))
	if err := validateStruct(sub); err != nil {
		return nil, err
	}

	if _, err := d.store.GetSpecialization(ctx, sub.SpecializationID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalid("specialization_id", "is not a known specialization")
		}
		return nil, asGatewayError("get specialization", err)
	}

	applied, err := d.store.SubmitLicense(ctx, providerID, sub.LicenseNumber, sub.SpecializationID)
	if err != nil {
		return nil, asGatewayError("submit license", err)
	}
	if !applied {
		return nil, &ConflictError{Entity: "provider", ID: providerID, Reason: "license is already verified"}
	}

	d.logEvent(ctx, EventLicenseSubmitted, "provider", providerID, map[string]any{
		"specialization_id": sub.SpecializationID.String(),
	})
	d.logger.Info("license submitted", zap.Stringer("provider_id", providerID))

	p, err = d.store.GetProvider(ctx, providerID)
	if err != nil {
		return nil, asGatewayError("get provider", err)
	}
	return p, nil
}

func (d *ProviderDirectory) ListSpecializations(ctx context.Context) (specs []Specialization, err error) {
	defer func() { d.observe("list_specializations", err) }()

	specs, err = d.store.ListSpecializations(ctx)
	if err != nil {
		return nil, asGatewayError("list specializations", err)
	}
	if specs == nil {
		specs = []Specialization{}
	}
	return specs, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func updatedFields(u ProfileUpdate) []string {
	var fields []string
	if u.Phone != nil {
		fields = append(fields, "phone")
	}
	if u.About != nil {
		fields = append(fields, "about")
	}
	if u.FieldExperience != nil {
		fields = append(fields, "field_experience")
	}
	if u.Qualification != nil {
		fields = append(fields, "qualification")
	}
	if u.Gender != nil {
		fields = append(fields, "gender")
	}
	return fields
}
