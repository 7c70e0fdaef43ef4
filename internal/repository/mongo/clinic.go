package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mabgcm/turkiyedental2-sub001/internal/domain"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/database"
	apperrors "github.com/mabgcm/turkiyedental2-sub001/pkg/errors"
)

// Collection names.
const (
	ClinicsCollection = "clinics"
	ReviewsCollection = "reviews"
)

// ClinicRepository implements repository.ClinicRepository on MongoDB.
type ClinicRepository struct {
	coll *mongo.Collection
}

// NewClinicRepository creates a MongoDB-backed clinic repository.
func NewClinicRepository(db *mongo.Database) *ClinicRepository {
	return &ClinicRepository{coll: db.Collection(ClinicsCollection)}
}

// Create inserts a clinic keyed by its slug.
func (r *ClinicRepository) Create(ctx context.Context, c *domain.Clinic) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "CreateClinic", "clinics.insertOne")
	defer func() { end(err) }()

	if _, err = r.coll.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.AlreadyExists("clinic", "slug", c.Slug)
		}
		return fmt.Errorf("insert clinic: %w", err)
	}
	return nil
}

// GetByID returns a clinic by id.
func (r *ClinicRepository) GetByID(ctx context.Context, id string) (_ *domain.Clinic, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "GetClinic", "clinics.findOne")
	defer func() { end(err) }()

	var c domain.Clinic
	err = r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFound("clinic", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get clinic by id: %w", err)
	}
	return &c, nil
}

// List returns all clinics ordered by name.
func (r *ClinicRepository) List(ctx context.Context) (_ []domain.Clinic, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "ListClinics", "clinics.find")
	defer func() { end(err) }()

	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list clinics: %w", err)
	}
	defer cur.Close(ctx)

	clinics := []domain.Clinic{}
	if err = cur.All(ctx, &clinics); err != nil {
		return nil, fmt.Errorf("decode clinics: %w", err)
	}
	return clinics, nil
}

// Update writes the descriptive fields of a clinic.
func (r *ClinicRepository) Update(ctx context.Context, c *domain.Clinic) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "UpdateClinic", "clinics.updateOne")
	defer func() { end(err) }()

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": c.ID}, bson.M{"$set": bson.M{
		"name":        c.Name,
		"city":        c.City,
		"country":     c.Country,
		"description": c.Description,
		"website":     c.Website,
		"phone":       c.Phone,
		"updated_at":  c.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("update clinic: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("clinic", c.ID)
	}
	return nil
}

// SetStats overwrites the aggregate fields of a clinic.
func (r *ClinicRepository) SetStats(ctx context.Context, id string, s domain.RatingStats, at time.Time) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "SetClinicStats", "clinics.updateOne")
	defer func() { end(err) }()

	return setStats(ctx, r.coll, id, s, at)
}

// Delete removes a clinic. Its reviews are kept.
func (r *ClinicRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "DeleteClinic", "clinics.deleteOne")
	defer func() { end(err) }()

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete clinic: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.NotFound("clinic", id)
	}
	return nil
}

func setStats(ctx context.Context, coll *mongo.Collection, id string, s domain.RatingStats, at time.Time) error {
	res, err := coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"avg_rating":         s.AvgRating,
		"review_count":       s.ReviewCount,
		"ratings_updated_at": at,
		"updated_at":         at,
	}})
	if err != nil {
		return fmt.Errorf("store clinic rating: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("clinic", id)
	}
	return nil
}
