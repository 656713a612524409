package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/luxsync/selene/internal/domain"
	pgvector "github.com/pgvector/pgvector-go"
)

// ErrNotFound is returned when a queried row does not exist.
var ErrNotFound = errors.New("not found")

// JournalStore persists pipeline decisions in Postgres. The target genome
// is stored as a 3D vector so similar musical moments can be recalled by
// cosine distance.
type JournalStore struct {
	db *pgxpool.Pool
}

func NewJournalStore(db *pgxpool.Pool) *JournalStore {
	return &JournalStore{db: db}
}

func (s *JournalStore) Record(ctx context.Context, rec *domain.DecisionRecord) error {
	target := pgvector.NewVector([]float32{
		float32(rec.Target.Aggression),
		float32(rec.Target.Chaos),
		float32(rec.Target.Organicity),
	})

	return s.db.QueryRow(ctx,
		`INSERT INTO decisions (id, effect, intensity, verdict, ethical_score, vibe, energy, mood, total_ms, target)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at`,
		rec.ID, rec.Effect, rec.Intensity, rec.Verdict, rec.EthicalScore,
		rec.Vibe, rec.Energy, rec.Mood, rec.TotalMs, target,
	).Scan(&rec.CreatedAt)
}

func (s *JournalStore) ListRecent(ctx context.Context, limit int) ([]domain.DecisionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, effect, intensity, verdict, ethical_score, vibe, energy, mood, total_ms, target, created_at
		 FROM decisions
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDecisions(rows)
}

// FindSimilarMoments returns past decisions whose target genome sat closest
// to the given one, nearest first.
func (s *JournalStore) FindSimilarMoments(ctx context.Context, target domain.Genome, limit int) ([]domain.DecisionRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	query := pgvector.NewVector([]float32{
		float32(target.Aggression),
		float32(target.Chaos),
		float32(target.Organicity),
	})

	rows, err := s.db.Query(ctx,
		`SELECT id, effect, intensity, verdict, ethical_score, vibe, energy, mood, total_ms, target, created_at
		 FROM decisions
		 ORDER BY target <=> $1
		 LIMIT $2`,
		query, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDecisions(rows)
}

func (s *JournalStore) GetByID(ctx context.Context, id string) (*domain.DecisionRecord, error) {
	rec := &domain.DecisionRecord{}
	var target pgvector.Vector
	err := s.db.QueryRow(ctx,
		`SELECT id, effect, intensity, verdict, ethical_score, vibe, energy, mood, total_ms, target, created_at
		 FROM decisions WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.Effect, &rec.Intensity, &rec.Verdict, &rec.EthicalScore,
		&rec.Vibe, &rec.Energy, &rec.Mood, &rec.TotalMs, &target, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.Target = genomeFromVector(target)
	return rec, nil
}

func scanDecisions(rows pgx.Rows) ([]domain.DecisionRecord, error) {
	var records []domain.DecisionRecord
	for rows.Next() {
		var rec domain.DecisionRecord
		var target pgvector.Vector
		if err := rows.Scan(&rec.ID, &rec.Effect, &rec.Intensity, &rec.Verdict, &rec.EthicalScore,
			&rec.Vibe, &rec.Energy, &rec.Mood, &rec.TotalMs, &target, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Target = genomeFromVector(target)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func genomeFromVector(v pgvector.Vector) domain.Genome {
	slice := v.Slice()
	if len(slice) != 3 {
		return domain.Genome{}
	}
	return domain.Genome{
		Aggression: float64(slice[0]),
		Chaos:      float64(slice[1]),
		Organicity: float64(slice[2]),
	}
}
