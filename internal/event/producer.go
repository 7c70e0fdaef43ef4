package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mabgcm/turkiyedental2-sub001/internal/domain"
	pkgkafka "github.com/mabgcm/turkiyedental2-sub001/pkg/kafka"
)

// Kafka topics for review and clinic events.
var (
	TopicReviewSubmitted       = pkgkafka.Topic("review", "submitted")
	TopicReviewModerated       = pkgkafka.Topic("review", "moderated")
	TopicReviewReplied         = pkgkafka.Topic("review", "replied")
	TopicClinicCreated         = pkgkafka.Topic("clinic", "created")
	TopicClinicUpdated         = pkgkafka.Topic("clinic", "updated")
	TopicClinicDeleted         = pkgkafka.Topic("clinic", "deleted")
	TopicClinicRatingRecompute = pkgkafka.Topic("clinic", "rating_recomputed")
)

// Aggregate types.
const (
	AggregateTypeReview = "review"
	AggregateTypeClinic = "clinic"
)

// SourceReviewService identifies events published by this service.
const SourceReviewService = "clinic-review-service"

// ReviewSubmittedData is the payload of review.submitted.
type ReviewSubmittedData struct {
	ReviewID string  `json:"review_id"`
	ClinicID string  `json:"clinic_id"`
	UserID   string  `json:"user_id"`
	Overall  float64 `json:"overall"`
}

// ReviewModeratedData is the payload of review.moderated. StatsStale is set
// when the recompute that should have followed the status change failed.
type ReviewModeratedData struct {
	ReviewID    string `json:"review_id"`
	ClinicID    string `json:"clinic_id"`
	Status      string `json:"status"`
	ModeratorID string `json:"moderator_id"`
	StatsStale  bool   `json:"stats_stale"`
}

// ReviewRepliedData is the payload of review.replied.
type ReviewRepliedData struct {
	ReviewID  string    `json:"review_id"`
	ClinicID  string    `json:"clinic_id"`
	RepliedAt time.Time `json:"replied_at"`
}

// ClinicData is the payload of clinic.created and clinic.updated.
type ClinicData struct {
	ID      string `json:"id"`
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	City    string `json:"city"`
	Country string `json:"country"`
}

// ClinicDeletedData is the payload of clinic.deleted.
type ClinicDeletedData struct {
	ID string `json:"id"`
}

// RatingRecomputedData is the payload of clinic.rating_recomputed.
type RatingRecomputedData struct {
	ClinicID    string    `json:"clinic_id"`
	AvgRating   float64   `json:"avg_rating"`
	ReviewCount int       `json:"review_count"`
	ComputedAt  time.Time `json:"computed_at"`
}

// Producer publishes review and clinic domain events.
type Producer struct {
	kafka  pkgkafka.Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer. Pass pkgkafka.NopPublisher{}
// when Kafka is disabled.
func NewProducer(kafka pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(ctx, topic, aggregateID, aggregateType, SourceReviewService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
		slog.String("event_id", event.EventID),
	)
	return nil
}

// PublishReviewSubmitted publishes a review.submitted event.
func (p *Producer) PublishReviewSubmitted(ctx context.Context, r *domain.Review) error {
	return p.publish(ctx, TopicReviewSubmitted, r.ID, AggregateTypeReview, ReviewSubmittedData{
		ReviewID: r.ID,
		ClinicID: r.ClinicID,
		UserID:   r.UserID,
		Overall:  r.Ratings.Overall,
	})
}

// PublishReviewModerated publishes a review.moderated event.
func (p *Producer) PublishReviewModerated(ctx context.Context, r *domain.Review, moderatorID string, statsStale bool) error {
	return p.publish(ctx, TopicReviewModerated, r.ID, AggregateTypeReview, ReviewModeratedData{
		ReviewID:    r.ID,
		ClinicID:    r.ClinicID,
		Status:      string(r.Status),
		ModeratorID: moderatorID,
		StatsStale:  statsStale,
	})
}

// PublishReviewReplied publishes a review.replied event.
func (p *Producer) PublishReviewReplied(ctx context.Context, r *domain.Review) error {
	data := ReviewRepliedData{ReviewID: r.ID, ClinicID: r.ClinicID}
	if r.Reply != nil {
		data.RepliedAt = r.Reply.RepliedAt
	}
	return p.publish(ctx, TopicReviewReplied, r.ID, AggregateTypeReview, data)
}

func clinicData(c *domain.Clinic) ClinicData {
	return ClinicData{ID: c.ID, Slug: c.Slug, Name: c.Name, City: c.City, Country: c.Country}
}

// PublishClinicCreated publishes a clinic.created event.
func (p *Producer) PublishClinicCreated(ctx context.Context, c *domain.Clinic) error {
	return p.publish(ctx, TopicClinicCreated, c.ID, AggregateTypeClinic, clinicData(c))
}

// PublishClinicUpdated publishes a clinic.updated event.
func (p *Producer) PublishClinicUpdated(ctx context.Context, c *domain.Clinic) error {
	return p.publish(ctx, TopicClinicUpdated, c.ID, AggregateTypeClinic, clinicData(c))
}

// PublishClinicDeleted publishes a clinic.deleted event.
func (p *Producer) PublishClinicDeleted(ctx context.Context, id string) error {
	return p.publish(ctx, TopicClinicDeleted, id, AggregateTypeClinic, ClinicDeletedData{ID: id})
}

// PublishRatingRecomputed publishes a clinic.rating_recomputed event.
func (p *Producer) PublishRatingRecomputed(ctx context.Context, clinicID string, s domain.RatingStats, at time.Time) error {
	return p.publish(ctx, TopicClinicRatingRecompute, clinicID, AggregateTypeClinic, RatingRecomputedData{
		ClinicID:    clinicID,
		AvgRating:   s.AvgRating,
		ReviewCount: s.ReviewCount,
		ComputedAt:  at,
	})
}
