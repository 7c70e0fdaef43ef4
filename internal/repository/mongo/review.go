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

// ReviewRepository implements repository.ReviewRepository on MongoDB.
type ReviewRepository struct {
	coll *mongo.Collection
}

// NewReviewRepository creates a MongoDB-backed review repository.
func NewReviewRepository(db *mongo.Database) *ReviewRepository {
	return &ReviewRepository{coll: db.Collection(ReviewsCollection)}
}

// Create inserts a review.
func (r *ReviewRepository) Create(ctx context.Context, rv *domain.Review) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "CreateReview", "reviews.insertOne")
	defer func() { end(err) }()

	if _, err = r.coll.InsertOne(ctx, rv); err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// GetByID returns a review by id.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (_ *domain.Review, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "GetReview", "reviews.findOne")
	defer func() { end(err) }()

	var rv domain.Review
	err = r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFound("review", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get review by id: %w", err)
	}
	return &rv, nil
}

// ListApprovedByClinic returns a clinic's approved reviews, newest first.
func (r *ReviewRepository) ListApprovedByClinic(ctx context.Context, clinicID string) ([]domain.Review, error) {
	filter := bson.M{"clinic_id": clinicID, "status": domain.StatusApproved}
	sort := bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}
	return r.find(ctx, "ListApprovedReviews", filter, sort)
}

// ListPending returns the moderation queue, oldest first.
func (r *ReviewRepository) ListPending(ctx context.Context) ([]domain.Review, error) {
	filter := bson.M{"status": domain.StatusPending}
	sort := bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	return r.find(ctx, "ListPendingReviews", filter, sort)
}

func (r *ReviewRepository) find(ctx context.Context, op string, filter bson.M, sort bson.D) (_ []domain.Review, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, op, "reviews.find")
	defer func() { end(err) }()

	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer cur.Close(ctx)

	reviews := []domain.Review{}
	if err = cur.All(ctx, &reviews); err != nil {
		return nil, fmt.Errorf("decode reviews: %w", err)
	}
	return reviews, nil
}

// UpdateStatus sets the status only while the review is still in from.
func (r *ReviewRepository) UpdateStatus(ctx context.Context, id string, from, to domain.Status, at time.Time) (_ bool, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "UpdateReviewStatus", "reviews.updateOne")
	defer func() { end(err) }()

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": at}},
	)
	if err != nil {
		return false, fmt.Errorf("update review status: %w", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("check review: %w", err)
	}
	if n == 0 {
		return false, apperrors.NotFound("review", id)
	}
	return false, nil
}

// SetReply attaches or replaces the clinic reply.
func (r *ReviewRepository) SetReply(ctx context.Context, id string, reply domain.Reply) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "SetReviewReply", "reviews.updateOne")
	defer func() { end(err) }()

	return r.set(ctx, id, bson.M{"reply": reply, "updated_at": reply.RepliedAt}, "set review reply")
}

// SetFlagged marks a review for moderator attention.
func (r *ReviewRepository) SetFlagged(ctx context.Context, id string, at time.Time) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "FlagReview", "reviews.updateOne")
	defer func() { end(err) }()

	return r.set(ctx, id, bson.M{"is_flagged": true, "updated_at": at}, "flag review")
}

func (r *ReviewRepository) set(ctx context.Context, id string, fields bson.M, what string) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("review", id)
	}
	return nil
}
