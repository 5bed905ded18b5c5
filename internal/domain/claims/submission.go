package claims

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/rcm/priorauth/internal/platform/apierror"
)

// dateLayout is the calendar-date wire format for all date fields.
const dateLayout = "2006-01-02"

var npiPattern = regexp.MustCompile(`^[0-9]{10}$`)

// ClaimSubmission is the raw request body for a prior authorization claim.
// Date fields are strings so parse failures surface as field-qualified
// validation errors rather than opaque binding errors.
type ClaimSubmission struct {
	PatientID               string `json:"patient_id"`
	DateOfBirth             string `json:"date_of_birth"`
	PhysicianName           string `json:"physician_name"`
	NPINumber               string `json:"npi_number"`
	ProcedureCode           string `json:"procedure_code"`
	ServiceStartDate        string `json:"service_start_date"`
	ServiceEndDate          string `json:"service_end_date"`
	ClinicalNotesFilename   string `json:"clinical_notes_filename,omitempty"`
	SupportingNotesAttached *bool  `json:"supporting_notes_attached"`
}

// ValidatedClaim is a structurally valid, sanitized, typed claim ready for
// persistence.
type ValidatedClaim struct {
	PatientID               uuid.UUID
	DateOfBirth             time.Time
	PhysicianName           string
	NPINumber               string
	ProcedureCode           string
	ServiceStartDate        time.Time
	ServiceEndDate          time.Time
	ClinicalNotesFilename   *string
	SupportingNotesAttached bool
}

// Validate performs structural checks fail-fast in field order, sanitizes the
// physician name, then applies the date-ordering business rule. It has no
// side effects.
func (s *ClaimSubmission) Validate() (*ValidatedClaim, error) {
	patientID, err := uuid.Parse(s.PatientID)
	if err != nil {
		return nil, apierror.Validation("patient_id", "patient_id must be a valid UUID")
	}

	dob, err := time.Parse(dateLayout, s.DateOfBirth)
	if err != nil {
		return nil, apierror.Validation("date_of_birth", "date_of_birth must be a calendar date (YYYY-MM-DD)")
	}

	name := strings.TrimSpace(s.PhysicianName)
	if n := utf8.RuneCountInString(name); n < 2 || n > 100 {
		return nil, apierror.Validation("physician_name", "physician_name must be between 2 and 100 characters")
	}
	name = SanitizePhysicianName(name)

	if !npiPattern.MatchString(s.NPINumber) {
		return nil, apierror.Validation("npi_number", "npi_number must be exactly 10 digits")
	}

	if !ValidProcedureCode(s.ProcedureCode) {
		return nil, apierror.Validation("procedure_code", "procedure_code is not a recognized value").
			With("allowed_values", ProcedureCodes())
	}

	start, err := time.Parse(dateLayout, s.ServiceStartDate)
	if err != nil {
		return nil, apierror.Validation("service_start_date", "service_start_date must be a calendar date (YYYY-MM-DD)")
	}

	end, err := time.Parse(dateLayout, s.ServiceEndDate)
	if err != nil {
		return nil, apierror.Validation("service_end_date", "service_end_date must be a calendar date (YYYY-MM-DD)")
	}

	if s.SupportingNotesAttached == nil {
		return nil, apierror.Validation("supporting_notes_attached", "supporting_notes_attached is required")
	}

	// Business rule, distinct from the structural checks above.
	if start.After(end) {
		return nil, apierror.BusinessRule("service_start_date", "Service start date cannot be after service end date")
	}

	vc := &ValidatedClaim{
		PatientID:               patientID,
		DateOfBirth:             dob,
		PhysicianName:           name,
		NPINumber:               s.NPINumber,
		ProcedureCode:           s.ProcedureCode,
		ServiceStartDate:        start,
		ServiceEndDate:          end,
		SupportingNotesAttached: *s.SupportingNotesAttached,
	}
	if fn := strings.TrimSpace(s.ClinicalNotesFilename); fn != "" {
		vc.ClinicalNotesFilename = &fn
	}
	return vc, nil
}

// SanitizePhysicianName keeps letters, digits, spaces, periods, hyphens, and
// apostrophes; everything else is silently dropped. Common name punctuation
// survives while injection characters do not.
func SanitizePhysicianName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '.' || r == '-' || r == '\'' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
