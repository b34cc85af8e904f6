package engine

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/vietddude/triage/internal/core/domain"
)

// evidence is the part of a request that determines its classification.
type evidence struct {
	SessionID   string                     `json:"session_id"`
	SubjectID   string                     `json:"subject_id"`
	ErrorSource string                     `json:"error_source"`
	Snapshot    *domain.Snapshot           `json:"snapshot"`
	Context     *domain.SituationalContext `json:"context"`
}

// Fingerprint hashes the request evidence. Two requests with the same
// fingerprint classify identically given the same history.
func Fingerprint(req Request) (string, error) {
	b, err := json.Marshal(evidence{
		SessionID:   req.SessionID,
		SubjectID:   req.SubjectID,
		ErrorSource: req.ErrorSource,
		Snapshot:    req.Snapshot,
		Context:     req.Context,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode evidence: %w", err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(b)), nil
}
