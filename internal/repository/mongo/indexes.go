package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the indexes the queries rely on. It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) ([]string, error) {
	var created []string

	names, err := db.Collection(ClinicsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetName("clinics_slug_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetName("clinics_name"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create clinic indexes: %w", err)
	}
	created = append(created, names...)

	names, err = db.Collection(ReviewsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "clinic_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("reviews_clinic_status_created"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("reviews_status_created"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create review indexes: %w", err)
	}
	return append(created, names...), nil
}
