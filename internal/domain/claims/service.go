package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rcm/priorauth/internal/platform/apierror"
)

// SubmissionReceipt is the successful response body for a claim submission.
type SubmissionReceipt struct {
	Status         string    `json:"status"`
	ClaimReference uuid.UUID `json:"claim_reference"`
	Timestamp      time.Time `json:"timestamp"`
	Message        string    `json:"message"`
}

type Service struct {
	patients  PatientRepository
	providers ProviderRepository
	claims    ClaimRepository
	registry  *DuplicateRegistry
	logger    zerolog.Logger
}

func NewService(patients PatientRepository, providers ProviderRepository, claims ClaimRepository, registry *DuplicateRegistry, logger zerolog.Logger) *Service {
	return &Service{
		patients:  patients,
		providers: providers,
		claims:    claims,
		registry:  registry,
		logger:    logger,
	}
}

// WarmRegistry rebuilds the duplicate registry from persisted claims. Called
// once at startup; a failure leaves the registry empty, which only disables
// the fast path.
func (s *Service) WarmRegistry(ctx context.Context) error {
	keys, err := s.claims.ListGuardKeys(ctx)
	if err != nil {
		return fmt.Errorf("warm duplicate registry: %w", err)
	}
	s.registry.Rebuild(keys)
	s.logger.Info().Int("entries", s.registry.Len()).Msg("duplicate registry warmed")
	return nil
}

// Submit validates, runs the duplicate guard, and persists the claim. The
// registry check is a fast path only; the database constraint catches races
// the registry misses, and both paths return the same duplicate error.
func (s *Service) Submit(ctx context.Context, sub *ClaimSubmission, submittedBy string) (*SubmissionReceipt, error) {
	vc, err := sub.Validate()
	if err != nil {
		return nil, err
	}

	if ref, ok := s.registry.Lookup(vc.PatientID, vc.ServiceStartDate); ok {
		return nil, apierror.DuplicateClaim(ref.String())
	}

	claim, err := s.claims.Submit(ctx, vc)
	if err != nil {
		var dup *DuplicateError
		if errors.As(err, &dup) {
			s.registry.Remember(vc.PatientID, vc.ServiceStartDate, dup.ExistingRef)
			return nil, apierror.DuplicateClaim(dup.ExistingRef.String())
		}
		return nil, err
	}

	s.registry.Remember(vc.PatientID, vc.ServiceStartDate, claim.ClaimReference)

	s.logger.Info().
		Str("claim_reference", claim.ClaimReference.String()).
		Str("procedure_code", claim.ProcedureCode).
		Str("submitted_by", submittedBy).
		Msg("claim submitted")

	return &SubmissionReceipt{
		Status:         StatusSubmitted,
		ClaimReference: claim.ClaimReference,
		Timestamp:      claim.CreatedAt,
		Message:        fmt.Sprintf("Claim submitted successfully by %s", submittedBy),
	}, nil
}

func (s *Service) GetClaim(ctx context.Context, ref uuid.UUID) (*ClaimDetail, error) {
	detail, err := s.claims.GetByReference(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return nil, apierror.NotFound("claim")
	}
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// AdvanceStatus moves a claim along the review workflow. Only transitions in
// the workflow graph are permitted.
func (s *Service) AdvanceStatus(ctx context.Context, ref uuid.UUID, status string) (*Claim, error) {
	if !ValidStatus(status) {
		return nil, apierror.Validation("status", "status is not a recognized value")
	}

	detail, err := s.claims.GetByReference(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return nil, apierror.NotFound("claim")
	}
	if err != nil {
		return nil, err
	}

	if !CanTransition(detail.Status, status) {
		return nil, apierror.BusinessRule("status",
			fmt.Sprintf("Cannot transition claim from %s to %s", detail.Status, status))
	}

	claim, err := s.claims.UpdateStatus(ctx, ref, status)
	if errors.Is(err, ErrNotFound) {
		return nil, apierror.NotFound("claim")
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("claim_reference", ref.String()).
		Str("from", detail.Status).
		Str("to", status).
		Msg("claim status updated")
	return claim, nil
}

func (s *Service) Stats(ctx context.Context) (*ClaimStats, error) {
	return s.claims.Stats(ctx)
}

func (s *Service) GetPatient(ctx context.Context, patientID uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByUUID(ctx, patientID)
	if errors.Is(err, ErrNotFound) {
		return nil, apierror.NotFound("patient")
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetProvider(ctx context.Context, npi string) (*Provider, error) {
	p, err := s.providers.GetByNPI(ctx, npi)
	if errors.Is(err, ErrNotFound) {
		return nil, apierror.NotFound("provider")
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePatient removes a patient and every claim attached to them, then
// evicts the patient's entries from the duplicate registry.
func (s *Service) DeletePatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	claimsDeleted, err := s.patients.Delete(ctx, patientID)
	if errors.Is(err, ErrNotFound) {
		return 0, apierror.NotFound("patient")
	}
	if err != nil {
		return 0, err
	}

	s.registry.ForgetPatient(patientID)

	s.logger.Info().
		Str("patient_id", patientID.String()).
		Int64("claims_deleted", claimsDeleted).
		Msg("patient deleted")
	return claimsDeleted, nil
}
