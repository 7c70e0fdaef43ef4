package domain

// ClinicReviewsView is a clinic's approved reviews together with the category
// averages computed over exactly that list. The two are cached and served as
// one unit so the breakdown always matches the reviews shown next to it.
type ClinicReviewsView struct {
	ClinicID   string           `json:"clinic_id"`
	Reviews    []Review         `json:"reviews"`
	Categories CategoryAverages `json:"categories"`
}

// NewClinicReviewsView builds the view from approved reviews. Category
// averages are rounded for display.
func NewClinicReviewsView(clinicID string, approved []Review) ClinicReviewsView {
	if approved == nil {
		approved = []Review{}
	}
	return ClinicReviewsView{
		ClinicID:   clinicID,
		Reviews:    approved,
		Categories: ComputeCategoryAverages(approved).Rounded(),
	}
}

// ClinicDetail is the public clinic page.
type ClinicDetail struct {
	Clinic        Clinic           `json:"clinic"`
	DisplayRating float64          `json:"display_rating"`
	Reviews       []Review         `json:"reviews"`
	Categories    CategoryAverages `json:"categories"`
}

// NewClinicDetail joins a clinic with its reviews view.
func NewClinicDetail(c Clinic, v ClinicReviewsView) ClinicDetail {
	return ClinicDetail{
		Clinic:        c,
		DisplayRating: RoundRating(c.AvgRating),
		Reviews:       v.Reviews,
		Categories:    v.Categories,
	}
}
