package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mabgcm/turkiyedental2-sub001/internal/domain"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/database"
)

// AggregateRepository derives clinic ratings with an aggregation pipeline.
//
// The read and the write are separate commands, so callers must serialize
// Recompute per clinic (see internal/lock).
type AggregateRepository struct {
	clinics *mongo.Collection
	reviews *mongo.Collection
}

// NewAggregateRepository creates a MongoDB-backed aggregate repository.
func NewAggregateRepository(db *mongo.Database) *AggregateRepository {
	return &AggregateRepository{
		clinics: db.Collection(ClinicsCollection),
		reviews: db.Collection(ReviewsCollection),
	}
}

type approvedStats struct {
	Avg   float64 `bson:"avg"`
	Count int     `bson:"count"`
}

// Recompute derives and stores the stats of one clinic.
func (r *AggregateRepository) Recompute(ctx context.Context, clinicID string, at time.Time) (_ domain.RatingStats, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "RecomputeClinicRating", "reviews.aggregate")
	defer func() { end(err) }()

	stats, err := r.compute(ctx, clinicID)
	if err != nil {
		return domain.RatingStats{}, err
	}
	if err = setStats(ctx, r.clinics, clinicID, stats, at); err != nil {
		return domain.RatingStats{}, err
	}
	return stats, nil
}

// Compute derives the stats without writing them.
func (r *AggregateRepository) Compute(ctx context.Context, clinicID string) (_ domain.RatingStats, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "ComputeClinicRating", "reviews.aggregate")
	defer func() { end(err) }()

	return r.compute(ctx, clinicID)
}

func (r *AggregateRepository) compute(ctx context.Context, clinicID string) (domain.RatingStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"clinic_id": clinicID, "status": domain.StatusApproved}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"avg":   bson.M{"$avg": "$ratings.overall"},
			"count": bson.M{"$sum": 1},
		}}},
	}

	cur, err := r.reviews.Aggregate(ctx, pipeline)
	if err != nil {
		return domain.RatingStats{}, fmt.Errorf("aggregate approved reviews: %w", err)
	}
	defer cur.Close(ctx)

	var rows []approvedStats
	if err := cur.All(ctx, &rows); err != nil {
		return domain.RatingStats{}, fmt.Errorf("decode approved stats: %w", err)
	}
	if len(rows) == 0 || rows[0].Count == 0 {
		return domain.RatingStats{}, nil
	}
	return domain.RatingStats{AvgRating: rows[0].Avg, ReviewCount: rows[0].Count}, nil
}
