package claims

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a patient, provider, or claim does not exist.
var ErrNotFound = errors.New("not found")

// DuplicateError is returned by Submit when a claim already exists for the
// same patient and service start date. ExistingRef identifies the prior
// claim.
type DuplicateError struct {
	ExistingRef uuid.UUID
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate claim: existing reference %s", e.ExistingRef)
}

type PatientRepository interface {
	GetByUUID(ctx context.Context, patientID uuid.UUID) (*Patient, error)
	// Delete removes the patient and all of their claims, returning the
	// number of claims removed.
	Delete(ctx context.Context, patientID uuid.UUID) (claimsDeleted int64, err error)
}

type ProviderRepository interface {
	GetByNPI(ctx context.Context, npi string) (*Provider, error)
}

type ClaimRepository interface {
	// Submit persists the claim atomically, upserting the patient and
	// provider rows it references. It returns *DuplicateError when the
	// (patient, service start date) pair already has a claim.
	Submit(ctx context.Context, vc *ValidatedClaim) (*Claim, error)
	GetByReference(ctx context.Context, ref uuid.UUID) (*ClaimDetail, error)
	UpdateStatus(ctx context.Context, ref uuid.UUID, status string) (*Claim, error)
	Stats(ctx context.Context) (*ClaimStats, error)
	// ListGuardKeys returns the duplicate-guard keys of every persisted
	// claim, for warming the in-memory registry at startup.
	ListGuardKeys(ctx context.Context) ([]GuardKey, error)
}
