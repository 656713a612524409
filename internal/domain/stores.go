package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DecisionRecord is one persisted pipeline decision.
type DecisionRecord struct {
	ID           uuid.UUID `json:"id"`
	Effect       EffectID  `json:"effect"`
	Intensity    float64   `json:"intensity"`
	Verdict      Verdict   `json:"verdict"`
	EthicalScore float64   `json:"ethical_score"`
	Vibe         string    `json:"vibe"`
	Energy       float64   `json:"energy"`
	Mood         MoodID    `json:"mood"`
	TotalMs      int64     `json:"total_ms"`
	Target       Genome    `json:"target"`
	CreatedAt    time.Time `json:"created_at"`
}

// DecisionJournal persists decisions and answers similarity queries over
// past musical moments. Optional: a nil journal disables persistence.
type DecisionJournal interface {
	Record(ctx context.Context, rec *DecisionRecord) error
	ListRecent(ctx context.Context, limit int) ([]DecisionRecord, error)
	FindSimilarMoments(ctx context.Context, target Genome, limit int) ([]DecisionRecord, error)
}
