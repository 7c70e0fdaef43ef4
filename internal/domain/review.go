package domain

import (
	"time"

	apperrors "github.com/mabgcm/turkiyedental2-sub001/pkg/errors"
)

// Status is the moderation state of a review.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether s is a moderation outcome.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CheckTransition decides whether a review in status from may move to to.
// Moving to the status it already has is a no-op. Only pending reviews can be
// moderated; a decided review keeps its outcome.
func CheckTransition(from, to Status) (noop bool, err error) {
	if !to.Terminal() {
		return false, apperrors.InvalidInput("status must be approved or rejected")
	}
	if from == to {
		return true, nil
	}
	if from.Terminal() {
		return false, apperrors.Conflict("review is already " + string(from))
	}
	return false, nil
}

// Ratings are the six sub-scores of a review, each in [1, 5].
type Ratings struct {
	Overall          float64 `json:"overall" bson:"overall" validate:"required,gte=1,lte=5"`
	Hygiene          float64 `json:"hygiene" bson:"hygiene" validate:"required,gte=1,lte=5"`
	Communication    float64 `json:"communication" bson:"communication" validate:"required,gte=1,lte=5"`
	Transparency     float64 `json:"transparency" bson:"transparency" validate:"required,gte=1,lte=5"`
	TreatmentQuality float64 `json:"treatment_quality" bson:"treatment_quality" validate:"required,gte=1,lte=5"`
	StaffAttitude    float64 `json:"staff_attitude" bson:"staff_attitude" validate:"required,gte=1,lte=5"`
}

// Reply is the clinic's public answer to a review.
type Reply struct {
	Message   string    `json:"message" bson:"message"`
	RepliedAt time.Time `json:"replied_at" bson:"replied_at"`
}

// Review is a patient's rating of one clinic. ClinicID never changes.
type Review struct {
	ID               string    `json:"id" bson:"_id"`
	ClinicID         string    `json:"clinic_id" bson:"clinic_id"`
	UserID           string    `json:"user_id" bson:"user_id"`
	Title            string    `json:"title" bson:"title"`
	Text             string    `json:"text" bson:"text"`
	VisitDate        string    `json:"visit_date" bson:"visit_date"`
	CountryOfPatient string    `json:"country_of_patient" bson:"country_of_patient"`
	Ratings          Ratings   `json:"ratings" bson:"ratings"`
	Status           Status    `json:"status" bson:"status"`
	IsFlagged        bool      `json:"is_flagged" bson:"is_flagged"`
	Reply            *Reply    `json:"reply,omitempty" bson:"reply,omitempty"`
	CreatedAt        time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" bson:"updated_at"`
}

// DateLayout is the format of VisitDate.
const DateLayout = "2006-01-02"

// VisitDateInFuture reports whether the calendar date lies after the UTC date
// of now. Unparseable dates are not in the future; format is checked elsewhere.
func VisitDateInFuture(visitDate string, now time.Time) bool {
	d, err := time.Parse(DateLayout, visitDate)
	if err != nil {
		return false
	}
	today, _ := time.Parse(DateLayout, now.UTC().Format(DateLayout))
	return d.After(today)
}
