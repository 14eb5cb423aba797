package ledger

import (
	"context"
	"fmt"

	"github.com/nav2424/rift-sub004/internal/server/models"
)

// EventCheck is the verification result for one stored event.
type EventCheck struct {
	EventID      string `json:"event_id"`
	EventType    string `json:"event_type"`
	Valid        bool   `json:"valid"`
	ExpectedHash string `json:"expected_hash"`
	StoredHash   string `json:"stored_hash"`
}

// Report is the full chain verification result for one transaction. Events
// from the first divergence onward are invalid; events before it stay valid
// so a single corruption never masks the healthy prefix.
type Report struct {
	TransactionID string       `json:"transaction_id"`
	Valid         bool         `json:"valid"`
	EventCount    int          `json:"event_count"`
	Events        []EventCheck `json:"events"`
	// TamperedAdminEvents lists administrative events whose recomputed
	// position no longer matches: admin actions must not be silently
	// droppable or rewriteable.
	TamperedAdminEvents []string `json:"tampered_admin_events,omitempty"`
}

// Verify recomputes the transaction's chain in (occurred_at, seq) order,
// threading each recomputed hash forward as the next expected previous-hash.
func (s *Service) Verify(ctx context.Context, transactionID string) (*Report, error) {
	stored, err := s.events.ListByTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	report := &Report{
		TransactionID: transactionID,
		Valid:         true,
		EventCount:    len(stored),
	}

	expectedPrev := ""
	for _, event := range stored {
		recomputed := *event
		recomputed.PrevHash = expectedPrev
		expected, err := SelfHash(&recomputed)
		if err != nil {
			return nil, fmt.Errorf("recompute hash for %s: %w", event.ID, err)
		}

		valid := event.PrevHash == expectedPrev && event.SelfHash == expected
		if !valid {
			report.Valid = false
			if event.ActorRole == models.RoleAdmin {
				report.TamperedAdminEvents = append(report.TamperedAdminEvents, event.ID)
			}
		}

		report.Events = append(report.Events, EventCheck{
			EventID:      event.ID,
			EventType:    event.EventType,
			Valid:        valid,
			ExpectedHash: expected,
			StoredHash:   event.SelfHash,
		})

		// Thread the recomputed hash forward: everything after a corrupted
		// event necessarily fails its previous-hash check.
		expectedPrev = expected
	}

	return report, nil
}
