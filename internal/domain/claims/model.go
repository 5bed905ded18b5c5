package claims

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Claim statuses. A claim starts as submitted and is advanced by the review
// process: submitted -> pending_review -> {approved | denied | requires_info}.
const (
	StatusSubmitted     = "submitted"
	StatusPendingReview = "pending_review"
	StatusApproved      = "approved"
	StatusDenied        = "denied"
	StatusRequiresInfo  = "requires_info"
)

var statusTransitions = map[string][]string{
	StatusSubmitted:     {StatusPendingReview},
	StatusPendingReview: {StatusApproved, StatusDenied, StatusRequiresInfo},
}

// ValidStatus reports whether s is a member of the closed status enumeration.
func ValidStatus(s string) bool {
	switch s {
	case StatusSubmitted, StatusPendingReview, StatusApproved, StatusDenied, StatusRequiresInfo:
		return true
	}
	return false
}

// CanTransition reports whether a claim may move from one status to another.
// Terminal statuses have no outgoing transitions.
func CanTransition(from, to string) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// procedureCodes is the closed set of procedure codes accepted at the
// boundary; values outside the set are rejected during validation.
var procedureCodes = map[string]bool{
	"A876": true,
	"B901": true,
	"C102": true,
	"D203": true,
}

// ValidProcedureCode reports whether code is in the closed enumeration.
func ValidProcedureCode(code string) bool {
	return procedureCodes[code]
}

// ProcedureCodes returns the accepted codes, sorted, for error payloads.
func ProcedureCodes() []string {
	codes := make([]string, 0, len(procedureCodes))
	for code := range procedureCodes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Patient maps to the patient table. DateOfBirth is PHI.
type Patient struct {
	ID          int64     `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	DateOfBirth time.Time `db:"date_of_birth" json:"date_of_birth"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Provider maps to the provider table.
type Provider struct {
	ID            int64     `db:"id" json:"id"`
	NPINumber     string    `db:"npi_number" json:"npi_number"`
	PhysicianName string    `db:"physician_name" json:"physician_name"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Claim maps to the claim table. PatientID and ProviderID are internal row
// ids; ClaimReference is the external identifier handed to callers.
type Claim struct {
	ID                      int64     `db:"id" json:"id"`
	ClaimReference          uuid.UUID `db:"claim_reference" json:"claim_reference"`
	PatientID               int64     `db:"patient_id" json:"patient_id"`
	ProviderID              int64     `db:"provider_id" json:"provider_id"`
	ProcedureCode           string    `db:"procedure_code" json:"procedure_code"`
	ServiceStartDate        time.Time `db:"service_start_date" json:"service_start_date"`
	ServiceEndDate          time.Time `db:"service_end_date" json:"service_end_date"`
	ClinicalNotesFilename   *string   `db:"clinical_notes_filename" json:"clinical_notes_filename,omitempty"`
	SupportingNotesAttached bool      `db:"supporting_notes_attached" json:"supporting_notes_attached"`
	Status                  string    `db:"status" json:"status"`
	CreatedAt               time.Time `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time `db:"updated_at" json:"updated_at"`
}

// ClaimDetail is a claim joined with the external identifiers of its patient
// and provider, the shape returned by read endpoints.
type ClaimDetail struct {
	Claim
	PatientUUID   uuid.UUID `json:"patient_uuid"`
	DateOfBirth   time.Time `json:"date_of_birth"`
	NPINumber     string    `json:"npi_number"`
	PhysicianName string    `json:"physician_name"`
}

// ClaimStats aggregates claim counts for the admin stats endpoint.
type ClaimStats struct {
	TotalClaims int64            `json:"total_claims"`
	ByStatus    map[string]int64 `json:"by_status"`
}

// GuardKey is one persisted (patient, service start date) pair with its claim
// reference, used to rebuild the duplicate registry at startup.
type GuardKey struct {
	PatientUUID      uuid.UUID
	ServiceStartDate time.Time
	ClaimReference   uuid.UUID
}

// DuplicateKey derives the guard key for a submission. It must mirror the
// persisted uq_claim_patient_service_date constraint exactly: the in-memory
// fast path and the database must agree on what counts as a duplicate.
func DuplicateKey(patientUUID uuid.UUID, serviceStartDate time.Time) string {
	return fmt.Sprintf("%s_%s", patientUUID, serviceStartDate.Format("2006-01-02"))
}
