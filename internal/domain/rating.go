package domain

import (
	"math"

	"github.com/samber/lo"
)

// RatingStats is the denormalized aggregate stored on a clinic.
type RatingStats struct {
	AvgRating   float64 `json:"avg_rating"`
	ReviewCount int     `json:"review_count"`
}

// ComputeStats averages the overall score of reviews at full precision.
// An empty list yields the zero value.
func ComputeStats(reviews []Review) RatingStats {
	if len(reviews) == 0 {
		return RatingStats{}
	}
	sum := lo.SumBy(reviews, func(r Review) float64 { return r.Ratings.Overall })
	return RatingStats{
		AvgRating:   sum / float64(len(reviews)),
		ReviewCount: len(reviews),
	}
}

// CategoryAverages is the per-category breakdown shown on a clinic page.
type CategoryAverages struct {
	Overall          float64 `json:"overall"`
	Hygiene          float64 `json:"hygiene"`
	Communication    float64 `json:"communication"`
	Transparency     float64 `json:"transparency"`
	TreatmentQuality float64 `json:"treatment_quality"`
	StaffAttitude    float64 `json:"staff_attitude"`
	ReviewCount      int     `json:"review_count"`
}

// ComputeCategoryAverages averages each sub-rating over exactly the given
// reviews. Every category is 0 when the list is empty.
func ComputeCategoryAverages(reviews []Review) CategoryAverages {
	n := len(reviews)
	if n == 0 {
		return CategoryAverages{}
	}
	mean := func(pick func(Ratings) float64) float64 {
		return lo.SumBy(reviews, func(r Review) float64 { return pick(r.Ratings) }) / float64(n)
	}
	return CategoryAverages{
		Overall:          mean(func(r Ratings) float64 { return r.Overall }),
		Hygiene:          mean(func(r Ratings) float64 { return r.Hygiene }),
		Communication:    mean(func(r Ratings) float64 { return r.Communication }),
		Transparency:     mean(func(r Ratings) float64 { return r.Transparency }),
		TreatmentQuality: mean(func(r Ratings) float64 { return r.TreatmentQuality }),
		StaffAttitude:    mean(func(r Ratings) float64 { return r.StaffAttitude }),
		ReviewCount:      n,
	}
}

// Rounded returns a copy with every average rounded for display.
func (c CategoryAverages) Rounded() CategoryAverages {
	return CategoryAverages{
		Overall:          RoundRating(c.Overall),
		Hygiene:          RoundRating(c.Hygiene),
		Communication:    RoundRating(c.Communication),
		Transparency:     RoundRating(c.Transparency),
		TreatmentQuality: RoundRating(c.TreatmentQuality),
		StaffAttitude:    RoundRating(c.StaffAttitude),
		ReviewCount:      c.ReviewCount,
	}
}

// RoundRating rounds to one decimal place. Stored values keep full precision.
func RoundRating(x float64) float64 {
	return math.Round(x*10) / 10
}

// ValidStats reports whether an administrative override is consistent: a
// non-negative count, a rating that is 0 or within [1, 5], and no rating
// without reviews.
func ValidStats(s RatingStats) bool {
	if s.ReviewCount < 0 {
		return false
	}
	if s.ReviewCount == 0 {
		return s.AvgRating == 0
	}
	return s.AvgRating >= 1 && s.AvgRating <= 5
}
