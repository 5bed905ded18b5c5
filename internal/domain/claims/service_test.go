package claims

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rcm/priorauth/internal/platform/apierror"
)

// -- Mock Repositories --

type mockPatientRepo struct {
	patients map[uuid.UUID]*Patient
	deleted  []uuid.UUID
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) GetByUUID(_ context.Context, patientID uuid.UUID) (*Patient, error) {
	p, ok := m.patients[patientID]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockPatientRepo) Delete(_ context.Context, patientID uuid.UUID) (int64, error) {
	if _, ok := m.patients[patientID]; !ok {
		return 0, ErrNotFound
	}
	delete(m.patients, patientID)
	m.deleted = append(m.deleted, patientID)
	return 2, nil
}

type mockProviderRepo struct {
	providers map[string]*Provider
}

func newMockProviderRepo() *mockProviderRepo {
	return &mockProviderRepo{providers: make(map[string]*Provider)}
}

func (m *mockProviderRepo) GetByNPI(_ context.Context, npi string) (*Provider, error) {
	p, ok := m.providers[npi]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

type mockClaimRepo struct {
	byRef     map[uuid.UUID]*ClaimDetail
	byDupeKey map[string]uuid.UUID
	submitErr error
	nextID    int64
}

func newMockClaimRepo() *mockClaimRepo {
	return &mockClaimRepo{
		byRef:     make(map[uuid.UUID]*ClaimDetail),
		byDupeKey: make(map[string]uuid.UUID),
	}
}

func (m *mockClaimRepo) Submit(_ context.Context, vc *ValidatedClaim) (*Claim, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	key := DuplicateKey(vc.PatientID, vc.ServiceStartDate)
	if ref, ok := m.byDupeKey[key]; ok {
		return nil, &DuplicateError{ExistingRef: ref}
	}

	m.nextID++
	now := time.Now()
	c := &Claim{
		ID:               m.nextID,
		ClaimReference:   uuid.New(),
		ProcedureCode:    vc.ProcedureCode,
		ServiceStartDate: vc.ServiceStartDate,
		ServiceEndDate:   vc.ServiceEndDate,
		Status:           StatusSubmitted,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	m.byDupeKey[key] = c.ClaimReference
	m.byRef[c.ClaimReference] = &ClaimDetail{
		Claim:         *c,
		PatientUUID:   vc.PatientID,
		DateOfBirth:   vc.DateOfBirth,
		NPINumber:     vc.NPINumber,
		PhysicianName: vc.PhysicianName,
	}
	return c, nil
}

func (m *mockClaimRepo) GetByReference(_ context.Context, ref uuid.UUID) (*ClaimDetail, error) {
	d, ok := m.byRef[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (m *mockClaimRepo) UpdateStatus(_ context.Context, ref uuid.UUID, status string) (*Claim, error) {
	d, ok := m.byRef[ref]
	if !ok {
		return nil, ErrNotFound
	}
	d.Status = status
	c := d.Claim
	return &c, nil
}

func (m *mockClaimRepo) Stats(_ context.Context) (*ClaimStats, error) {
	stats := &ClaimStats{ByStatus: make(map[string]int64)}
	for _, d := range m.byRef {
		stats.ByStatus[d.Status]++
		stats.TotalClaims++
	}
	return stats, nil
}

func (m *mockClaimRepo) ListGuardKeys(_ context.Context) ([]GuardKey, error) {
	var keys []GuardKey
	for ref, d := range m.byRef {
		keys = append(keys, GuardKey{
			PatientUUID:      d.PatientUUID,
			ServiceStartDate: d.ServiceStartDate,
			ClaimReference:   ref,
		})
	}
	return keys, nil
}

func newTestService() (*Service, *mockPatientRepo, *mockClaimRepo) {
	patients := newMockPatientRepo()
	providers := newMockProviderRepo()
	claims := newMockClaimRepo()
	svc := NewService(patients, providers, claims, NewDuplicateRegistry(), zerolog.Nop())
	return svc, patients, claims
}

// -- Service Tests --

func TestService_Submit(t *testing.T) {
	svc, _, _ := newTestService()

	receipt, err := svc.Submit(context.Background(), validSubmission(), "standard_user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.Status != StatusSubmitted {
		t.Errorf("status = %q, want %q", receipt.Status, StatusSubmitted)
	}
	if receipt.ClaimReference == uuid.Nil {
		t.Error("expected claim reference to be assigned")
	}
	if receipt.Message != "Claim submitted successfully by standard_user" {
		t.Errorf("unexpected message %q", receipt.Message)
	}
}

func TestService_Submit_ValidationShortCircuits(t *testing.T) {
	svc, _, repo := newTestService()
	repo.submitErr = errors.New("repo must not be reached")

	sub := validSubmission()
	sub.NPINumber = "bad"
	_, err := svc.Submit(context.Background(), sub, "standard_user")

	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) || apiErr.Kind() != "validation_error" {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_Submit_DuplicateSamePatientDate(t *testing.T) {
	svc, _, _ := newTestService()
	sub := validSubmission()

	first, err := svc.Submit(context.Background(), sub, "standard_user")
	if err != nil {
		t.Fatalf("first submission failed: %v", err)
	}

	// Second submission for the same patient and start date, different end
	// date and code, must still conflict.
	dup := validSubmission()
	dup.PatientID = sub.PatientID
	dup.ServiceEndDate = "2025-04-20"
	dup.ProcedureCode = "B901"
	_, err = svc.Submit(context.Background(), dup, "standard_user")

	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *apierror.Error, got %T", err)
	}
	if apiErr.Status != 409 || apiErr.Kind() != "duplicate_claim" {
		t.Errorf("got status=%d kind=%q", apiErr.Status, apiErr.Kind())
	}
	if got := apiErr.Detail.Extra["existing_claim_reference"]; got != first.ClaimReference.String() {
		t.Errorf("existing_claim_reference = %v, want %v", got, first.ClaimReference)
	}
}

func TestService_Submit_DuplicateCaughtByStorage(t *testing.T) {
	// A conflicting claim exists in storage but not in the registry, as after
	// a restart or a losing race. The storage error must surface as the same
	// conflict response and backfill the registry.
	svc, _, repo := newTestService()
	sub := validSubmission()

	patientID := uuid.MustParse(sub.PatientID)
	start, _ := time.Parse("2006-01-02", sub.ServiceStartDate)
	existing := uuid.New()
	repo.byDupeKey[DuplicateKey(patientID, start)] = existing

	_, err := svc.Submit(context.Background(), sub, "standard_user")
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) || apiErr.Status != 409 {
		t.Fatalf("expected 409, got %v", err)
	}

	if ref, ok := svc.registry.Lookup(patientID, start); !ok || ref != existing {
		t.Error("registry should be backfilled after storage conflict")
	}
}

func TestService_Submit_DifferentDatesAllowed(t *testing.T) {
	svc, _, _ := newTestService()
	sub := validSubmission()
	if _, err := svc.Submit(context.Background(), sub, "standard_user"); err != nil {
		t.Fatalf("first submission failed: %v", err)
	}

	second := validSubmission()
	second.PatientID = sub.PatientID
	second.ServiceStartDate = "2025-05-01"
	second.ServiceEndDate = "2025-05-05"
	if _, err := svc.Submit(context.Background(), second, "standard_user"); err != nil {
		t.Fatalf("different start date must be accepted: %v", err)
	}
}

func TestService_WarmRegistry(t *testing.T) {
	svc, _, repo := newTestService()
	sub := validSubmission()
	if _, err := svc.Submit(context.Background(), sub, "standard_user"); err != nil {
		t.Fatal(err)
	}

	// Fresh registry simulating a restart; storage still has the claim.
	cold := NewService(newMockPatientRepo(), newMockProviderRepo(), repo, NewDuplicateRegistry(), zerolog.Nop())
	if err := cold.WarmRegistry(context.Background()); err != nil {
		t.Fatalf("warm failed: %v", err)
	}
	if cold.registry.Len() != 1 {
		t.Errorf("registry Len = %d, want 1", cold.registry.Len())
	}
}

func TestService_GetClaim_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.GetClaim(context.Background(), uuid.New())

	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) || apiErr.Status != 404 {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestService_AdvanceStatus(t *testing.T) {
	svc, _, _ := newTestService()
	receipt, err := svc.Submit(context.Background(), validSubmission(), "standard_user")
	if err != nil {
		t.Fatal(err)
	}

	claim, err := svc.AdvanceStatus(context.Background(), receipt.ClaimReference, StatusPendingReview)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claim.Status != StatusPendingReview {
		t.Errorf("status = %q", claim.Status)
	}

	claim, err = svc.AdvanceStatus(context.Background(), receipt.ClaimReference, StatusApproved)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claim.Status != StatusApproved {
		t.Errorf("status = %q", claim.Status)
	}
}

func TestService_AdvanceStatus_IllegalTransition(t *testing.T) {
	svc, _, _ := newTestService()
	receipt, err := svc.Submit(context.Background(), validSubmission(), "standard_user")
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.AdvanceStatus(context.Background(), receipt.ClaimReference, StatusApproved)
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) || apiErr.Kind() != "business_rule_violation" {
		t.Fatalf("expected business rule violation, got %v", err)
	}

	_, err = svc.AdvanceStatus(context.Background(), receipt.ClaimReference, "nonsense")
	if !errors.As(err, &apiErr) || apiErr.Kind() != "validation_error" {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_Stats(t *testing.T) {
	svc, _, _ := newTestService()
	for i := 0; i < 3; i++ {
		sub := validSubmission()
		if _, err := svc.Submit(context.Background(), sub, "standard_user"); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalClaims != 3 {
		t.Errorf("TotalClaims = %d, want 3", stats.TotalClaims)
	}
	if stats.ByStatus[StatusSubmitted] != 3 {
		t.Errorf("ByStatus[submitted] = %d, want 3", stats.ByStatus[StatusSubmitted])
	}
}

func TestService_DeletePatient(t *testing.T) {
	svc, patients, _ := newTestService()
	sub := validSubmission()
	if _, err := svc.Submit(context.Background(), sub, "standard_user"); err != nil {
		t.Fatal(err)
	}

	patientID := uuid.MustParse(sub.PatientID)
	patients.patients[patientID] = &Patient{PatientID: patientID}

	deleted, err := svc.DeletePatient(context.Background(), patientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 2 {
		t.Errorf("claims deleted = %d, want 2", deleted)
	}

	start, _ := time.Parse("2006-01-02", sub.ServiceStartDate)
	if _, ok := svc.registry.Lookup(patientID, start); ok {
		t.Error("registry entries must be evicted on patient delete")
	}
}

func TestService_DeletePatient_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.DeletePatient(context.Background(), uuid.New())

	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) || apiErr.Status != 404 {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestService_GetPatient(t *testing.T) {
	svc, patients, _ := newTestService()
	patientID := uuid.New()
	patients.patients[patientID] = &Patient{PatientID: patientID, DateOfBirth: time.Date(1984, 3, 2, 0, 0, 0, 0, time.UTC)}

	got, err := svc.GetPatient(context.Background(), patientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PatientID != patientID {
		t.Errorf("patient_id = %s, want %s", got.PatientID, patientID)
	}

	_, err = svc.GetPatient(context.Background(), uuid.New())
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) || apiErr.Status != 404 {
		t.Fatalf("expected 404 for unknown patient, got %v", err)
	}
}

func TestService_GetProvider(t *testing.T) {
	svc, _, _ := newTestService()
	svc.providers.(*mockProviderRepo).providers["1234567890"] = &Provider{
		NPINumber:     "1234567890",
		PhysicianName: "Dr. Alice Okafor",
	}

	got, err := svc.GetProvider(context.Background(), "1234567890")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PhysicianName != "Dr. Alice Okafor" {
		t.Errorf("physician_name = %q", got.PhysicianName)
	}

	_, err = svc.GetProvider(context.Background(), "9999999999")
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) || apiErr.Status != 404 {
		t.Fatalf("expected 404 for unknown provider, got %v", err)
	}
}
