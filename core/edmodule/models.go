package edmodule

import (
	"math"
	"time"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/course"
)

// Module statuses.
const (
	StatusHidden    = "hidden"
	StatusDirect    = "direct"
	StatusPublished = "published"
)

var Statuses = []string{StatusHidden, StatusDirect, StatusPublished}

type Module struct {
	ID           int       `json:"id"`
	Code         string    `json:"code"`
	Title        string    `json:"title"`
	Status       string    `json:"status"`
	CourseIDs    []int     `json:"course_ids"`
	About        string    `json:"about"`
	Price        *int      `json:"price"`
	Discount     int       `json:"discount"`
	Vacancies    string    `json:"vacancies"`
	Subtitle     string    `json:"subtitle"`
	OfferText    string    `json:"offer_text"`
	Requirements string    `json:"requirements"`
	SumRatings   int       `json:"sum_ratings"`
	CountRatings int       `json:"count_ratings"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

// Rating is the mean review score rounded to 2 decimals, 0 without reviews.
func (m Module) Rating() float64 {
	if m.CountRatings == 0 {
		return 0
	}
	return math.Round(float64(m.SumRatings)/float64(m.CountRatings)*100) / 100
}

func (m Module) SubtitleItems() []string {
	return core.SplitLines(m.Subtitle)
}

func (m Module) RequirementsList() []string {
	return core.SplitLines(m.Requirements)
}

func (m Module) HasCourse(courseID int) bool {
	for _, id := range m.CourseIDs {
		if id == courseID {
			return true
		}
	}
	return false
}

// EnrollmentType is a way (mode) of enrolling on a whole module.
type EnrollmentType struct {
	ID            int        `json:"id"`
	ModuleID      int        `json:"module_id"`
	Active        bool       `json:"active"`
	Mode          string     `json:"mode"`
	BuyStart      *time.Time `json:"buy_start"`
	BuyExpiration *time.Time `json:"buy_expiration"` // date
	Price         int        `json:"price"`
	About         string     `json:"about"`
	Description   string     `json:"description"`
}

// NewModule contains information needed to create a new Module.
type NewModule struct {
	Code         string `json:"code" validate:"required,max=50,slug"`
	Title        string `json:"title" validate:"required,max=200"`
	Status       string `json:"status" validate:"omitempty,edmodulestatus"`
	CourseIDs    []int  `json:"course_ids" validate:"omitempty,unique"`
	About        string `json:"about"`
	Price        *int   `json:"price" validate:"omitempty,min=0"`
	Discount     int    `json:"discount" validate:"min=0,max=100"`
	Vacancies    string `json:"vacancies"`
	Subtitle     string `json:"subtitle" validate:"omitempty,maxlines=3"`
	OfferText    string `json:"offer_text"`
	Requirements string `json:"requirements"`
}

func (nm *NewModule) Clean() {
	nm.Code = core.CleanString(nm.Code, true /* lower */)
	nm.Title = core.CleanString(nm.Title)
	nm.Subtitle = core.CleanString(nm.Subtitle)
	if nm.Status == "" {
		nm.Status = StatusHidden
	}
}

// UpdateModule defines what information may be provided to modify an existing Module.
type UpdateModule struct {
	Title        *string `json:"title" validate:"omitempty,max=200"`
	Status       *string `json:"status" validate:"omitempty,edmodulestatus"`
	CourseIDs    []int   `json:"course_ids" validate:"omitempty,unique"`
	About        *string `json:"about"`
	Price        *int    `json:"price" validate:"omitempty,min=0"`
	Discount     *int    `json:"discount" validate:"omitempty,min=0,max=100"`
	Vacancies    *string `json:"vacancies"`
	Subtitle     *string `json:"subtitle" validate:"omitempty,maxlines=3"`
	OfferText    *string `json:"offer_text"`
	Requirements *string `json:"requirements"`
}

func (um UpdateModule) apply(m Module) Module {
	if um.Title != nil {
		m.Title = core.CleanString(*um.Title)
	}
	if um.Status != nil {
		m.Status = *um.Status
	}
	if um.CourseIDs != nil {
		m.CourseIDs = um.CourseIDs
	}
	if um.About != nil {
		m.About = *um.About
	}
	if um.Price != nil {
		m.Price = um.Price
	}
	if um.Discount != nil {
		m.Discount = *um.Discount
	}
	if um.Vacancies != nil {
		m.Vacancies = *um.Vacancies
	}
	if um.Subtitle != nil {
		m.Subtitle = core.CleanString(*um.Subtitle)
	}
	if um.OfferText != nil {
		m.OfferText = *um.OfferText
	}
	if um.Requirements != nil {
		m.Requirements = *um.Requirements
	}
	return m
}

type NewEnrollmentType struct {
	Mode          string     `json:"mode" validate:"required,edmode"`
	Active        *bool      `json:"active"`
	BuyStart      *time.Time `json:"buy_start"`
	BuyExpiration *time.Time `json:"buy_expiration"`
	Price         int        `json:"price" validate:"min=0"`
	About         string     `json:"about"`
	Description   string     `json:"description"`
}

type GetFilter struct {
	ID   int
	Code string
}

type QueryFilter struct {
	Search   string `query:"search"`
	Statuses []string
	CourseID int
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// RelatedItem is either a module or a course suggested next to a module.
type RelatedItem struct {
	Type   string         `json:"type"` // "edmodule" | "course"
	Module *Module        `json:"module,omitempty"`
	Course *course.Course `json:"course,omitempty"`
}
