package rating

import (
	"time"

	"github.com/plp/edmodule/core"
)

// Review statuses.
const (
	StatusModeration = "moderation"
	StatusPublished  = "published"
)

var Statuses = []string{StatusModeration, StatusPublished}

type Rating struct {
	ID        int       `json:"id"`
	ModuleID  int       `json:"module_id"`
	UserID    int       `json:"user_id"`
	Rating    int       `json:"rating"`
	Text      string    `json:"text"`
	Status    string    `json:"status"`
	Declined  bool      `json:"declined"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Visible tells whether the review may be shown to other users.
func (r Rating) Visible() bool {
	return r.Status == StatusPublished && !r.Declined
}

type NewRating struct {
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
	Text   string `json:"text" validate:"max=2000"`
}

func (nr *NewRating) Clean() {
	nr.Text = core.CleanString(nr.Text)
}

type Moderation struct {
	Status   string `json:"status" validate:"required,ratingstatus"`
	Declined bool   `json:"declined"`
}

type QueryFilter struct {
	ModuleID int
	UserID   int
	// VisibleOnly keeps published, non-declined reviews.
	VisibleOnly bool
	Limit       int
}
