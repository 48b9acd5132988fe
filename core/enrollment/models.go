package enrollment

import (
	"encoding/json"
	"time"

	"github.com/plp/edmodule/core"
)

// Payment types.
const (
	PaymentManual  = "manual"
	PaymentYamoney = "yamoney"
	PaymentOther   = "other"
)

var PaymentTypes = []string{PaymentManual, PaymentYamoney, PaymentOther}

type Enrollment struct {
	ID          int       `json:"id"`
	UserID      int       `json:"user_id"`
	ModuleID    int       `json:"module_id"`
	IsPaid      bool      `json:"is_paid"`
	IsGraduated bool      `json:"is_graduated"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// Reason records why (and how) a user got enrolled on a module: usually a payment.
type Reason struct {
	ID                 int       `json:"id"`
	EnrollmentID       int       `json:"enrollment_id"`
	EnrollmentTypeID   int       `json:"enrollment_type_id"`
	PaymentType        string    `json:"payment_type"`
	PaymentOrderID     string    `json:"payment_order_id"`
	PaymentDescription string    `json:"payment_description"`
	FullPaid           bool      `json:"full_paid"`
	PromoCode          string    `json:"promo_code"`
	CreatedAt          time.Time `json:"created_at"` // UTC
}

// Progress holds the learning platform progress of an enrollment, keyed by course id.
type Progress struct {
	EnrollmentID int                        `json:"enrollment_id"`
	Progress     map[string]json.RawMessage `json:"progress"`
	UpdatedAt    time.Time                  `json:"updated_at"` // UTC
}

// NewPayment contains information needed to record a module payment.
type NewPayment struct {
	UserID             int    `json:"user_id" validate:"required,min=1"`
	EnrollmentTypeID   int    `json:"enrollment_type_id" validate:"required,min=1"`
	PaymentType        string `json:"payment_type" validate:"omitempty,paymenttype"`
	PaymentOrderID     string `json:"payment_order_id" validate:"max=64"`
	PaymentDescription string `json:"payment_description"`
	FullPaid           *bool  `json:"full_paid"`
	PromoCode          string `json:"promo_code" validate:"omitempty,max=6"`
}

func (np *NewPayment) Clean() {
	np.PaymentType = core.CleanString(np.PaymentType, true /* lower */)
	np.PaymentOrderID = core.CleanString(np.PaymentOrderID)
	np.PromoCode = core.CleanString(np.PromoCode)
}

type GetFilter struct {
	ID       int
	UserID   int
	ModuleID int
}

type QueryFilter struct {
	UserID    int
	ModuleIDs []int
	IsActive  *bool
}

type ReasonFilter struct {
	EnrollmentIDs []int
	FullPaid      *bool
}

// Access sums up what a user may do with a course through modules.
type Access struct {
	HasModule bool `json:"has_module"`
	HasPaid   bool `json:"has_paid"`
}

type Event string

const (
	EventEnrolled   Event = "enrolled"
	EventUnenrolled Event = "unenrolled"
	EventPayed      Event = "payed"
)

// Listener is notified after an enrollment changed. reason is only set on EventPayed.
type Listener func(ev Event, e Enrollment, reason *Reason)
