package domain

import (
	"time"
)

// Clinic is a dental clinic listed in the directory. ID always equals Slug.
//
// AvgRating and ReviewCount cache the clinic's approved reviews as of the last
// recompute; ReviewCount 0 means "no rating" and forces AvgRating to 0.
type Clinic struct {
	ID               string     `json:"id" bson:"_id"`
	Slug             string     `json:"slug" bson:"slug"`
	Name             string     `json:"name" bson:"name"`
	City             string     `json:"city" bson:"city"`
	Country          string     `json:"country" bson:"country"`
	Description      string     `json:"description,omitempty" bson:"description,omitempty"`
	Website          string     `json:"website,omitempty" bson:"website,omitempty"`
	Phone            string     `json:"phone,omitempty" bson:"phone,omitempty"`
	AvgRating        float64    `json:"avg_rating" bson:"avg_rating"`
	ReviewCount      int        `json:"review_count" bson:"review_count"`
	RatingsUpdatedAt *time.Time `json:"ratings_updated_at,omitempty" bson:"ratings_updated_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" bson:"updated_at"`
}

// Stats returns the cached aggregate.
func (c *Clinic) Stats() RatingStats {
	return RatingStats{AvgRating: c.AvgRating, ReviewCount: c.ReviewCount}
}

// ApplyStats stores a freshly computed aggregate.
func (c *Clinic) ApplyStats(s RatingStats, at time.Time) {
	c.AvgRating = s.AvgRating
	c.ReviewCount = s.ReviewCount
	c.RatingsUpdatedAt = &at
	c.UpdatedAt = at
}

// ClinicSummary is one row of the public directory.
type ClinicSummary struct {
	Clinic
	DisplayRating float64 `json:"display_rating"`
}

// NewClinicSummary rounds the rating for display.
func NewClinicSummary(c Clinic) ClinicSummary {
	return ClinicSummary{Clinic: c, DisplayRating: RoundRating(c.AvgRating)}
}
