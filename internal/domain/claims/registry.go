package claims

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DuplicateRegistry is an in-memory index of (patient, service start date)
// pairs that already have a claim. It serves as a fast pre-check before
// hitting the database; the unique constraint on the claim table remains the
// authority, so losing this cache only costs a round trip, never correctness.
type DuplicateRegistry struct {
	mu   sync.RWMutex
	keys map[string]uuid.UUID
}

func NewDuplicateRegistry() *DuplicateRegistry {
	return &DuplicateRegistry{keys: make(map[string]uuid.UUID)}
}

// Lookup reports whether a claim already exists for the pair, and its
// reference if so.
func (r *DuplicateRegistry) Lookup(patientID uuid.UUID, serviceStartDate time.Time) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.keys[DuplicateKey(patientID, serviceStartDate)]
	return ref, ok
}

// Remember records a committed claim. Call only after the insert commits.
func (r *DuplicateRegistry) Remember(patientID uuid.UUID, serviceStartDate time.Time, claimRef uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[DuplicateKey(patientID, serviceStartDate)] = claimRef
}

// Forget removes a single pair.
func (r *DuplicateRegistry) Forget(patientID uuid.UUID, serviceStartDate time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, DuplicateKey(patientID, serviceStartDate))
}

// ForgetPatient drops every entry belonging to the patient. Used after a
// patient delete cascades through their claims.
func (r *DuplicateRegistry) ForgetPatient(patientID uuid.UUID) {
	prefix := patientID.String() + "_"
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.keys {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(r.keys, k)
		}
	}
}

// Rebuild replaces the registry contents wholesale from persisted claims.
func (r *DuplicateRegistry) Rebuild(keys []GuardKey) {
	fresh := make(map[string]uuid.UUID, len(keys))
	for _, k := range keys {
		fresh[DuplicateKey(k.PatientUUID, k.ServiceStartDate)] = k.ClaimReference
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = fresh
}

func (r *DuplicateRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}
