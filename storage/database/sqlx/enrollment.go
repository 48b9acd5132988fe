package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/enrollment"
)

const (
	enrollmentColumns = "id, user_id, edmodule_id, is_paid, is_graduated, is_active, created_at, updated_at"
	reasonColumns     = "id, enrollment_id, enrollment_type_id, payment_type, payment_order_id, " +
		"payment_description, full_paid, promo_code, created_at"
)

type enrollmentRow struct {
	ID          int       `db:"id"`
	UserID      int       `db:"user_id"`
	ModuleID    int       `db:"edmodule_id"`
	IsPaid      bool      `db:"is_paid"`
	IsGraduated bool      `db:"is_graduated"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r enrollmentRow) enrollment() enrollment.Enrollment {
	return enrollment.Enrollment{
		ID:          r.ID,
		UserID:      r.UserID,
		ModuleID:    r.ModuleID,
		IsPaid:      r.IsPaid,
		IsGraduated: r.IsGraduated,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type reasonRow struct {
	ID                 int         `db:"id"`
	EnrollmentID       int         `db:"enrollment_id"`
	EnrollmentTypeID   int         `db:"enrollment_type_id"`
	PaymentType        null.String `db:"payment_type"`
	PaymentOrderID     string      `db:"payment_order_id"`
	PaymentDescription string      `db:"payment_description"`
	FullPaid           bool        `db:"full_paid"`
	PromoCode          string      `db:"promo_code"`
	CreatedAt          time.Time   `db:"created_at"`
}

func (r reasonRow) reason() enrollment.Reason {
	return enrollment.Reason{
		ID:                 r.ID,
		EnrollmentID:       r.EnrollmentID,
		EnrollmentTypeID:   r.EnrollmentTypeID,
		PaymentType:        r.PaymentType.String,
		PaymentOrderID:     r.PaymentOrderID,
		PaymentDescription: r.PaymentDescription,
		FullPaid:           r.FullPaid,
		PromoCode:          r.PromoCode,
		CreatedAt:          r.CreatedAt.UTC(),
	}
}

type enrollmentRepository struct {
	db core.DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db core.DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

func (repo enrollmentRepository) GetEnrollment(ctx context.Context, filter enrollment.GetFilter) (enrollment.Enrollment, error) {
	var w where
	if filter.ID != 0 {
		w.add("id = ?", filter.ID)
	} else {
		w.add("user_id = ?", filter.UserID)
		w.add("edmodule_id = ?", filter.ModuleID)
	}
	var r enrollmentRow
	q := repo.db.Rebind("SELECT " + enrollmentColumns + " FROM edmodule_enrollments" + w.String())
	if err := repo.db.GetContext(ctx, &r, q, w.args...); err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound, "getting enrollment")
	}
	return r.enrollment(), nil
}

func (repo enrollmentRepository) SaveEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	q := repo.db.Rebind(`INSERT INTO edmodule_enrollments
		(user_id, edmodule_id, is_paid, is_graduated, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, edmodule_id) DO UPDATE SET
		is_paid = EXCLUDED.is_paid, is_graduated = EXCLUDED.is_graduated, is_active = EXCLUDED.is_active,
		updated_at = EXCLUDED.updated_at
		RETURNING ` + enrollmentColumns)
	var r enrollmentRow
	err := repo.db.GetContext(ctx, &r, q,
		e.UserID, e.ModuleID, e.IsPaid, e.IsGraduated, e.IsActive, e.CreatedAt.UTC(), e.UpdatedAt.UTC())
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "saving enrollment")
	}
	return r.enrollment(), nil
}

func (repo enrollmentRepository) QueryEnrollments(ctx context.Context, filter enrollment.QueryFilter) ([]enrollment.Enrollment, error) {
	var w where
	if filter.UserID != 0 {
		w.add("user_id = ?", filter.UserID)
	}
	if len(filter.ModuleIDs) > 0 {
		w.add("edmodule_id = ANY(?)", pq.Array(int64s(filter.ModuleIDs)))
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}
	var rows []enrollmentRow
	q := repo.db.Rebind("SELECT " + enrollmentColumns + " FROM edmodule_enrollments" + w.String() + " ORDER BY id")
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	enrollments := make([]enrollment.Enrollment, 0, len(rows))
	for _, r := range rows {
		enrollments = append(enrollments, r.enrollment())
	}
	return enrollments, nil
}

func (repo enrollmentRepository) CreateReason(ctx context.Context, r enrollment.Reason) (enrollment.Reason, error) {
	q := repo.db.Rebind(`INSERT INTO edmodule_enrollment_reasons
		(enrollment_id, enrollment_type_id, payment_type, payment_order_id, payment_description, full_paid, promo_code, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING ` + reasonColumns)
	var row reasonRow
	err := repo.db.GetContext(ctx, &row, q,
		r.EnrollmentID, r.EnrollmentTypeID, null.NewString(r.PaymentType, r.PaymentType != ""),
		r.PaymentOrderID, r.PaymentDescription, r.FullPaid, r.PromoCode, r.CreatedAt.UTC())
	if err != nil {
		return enrollment.Reason{}, errors.Wrap(err, "inserting enrollment reason")
	}
	return row.reason(), nil
}

func (repo enrollmentRepository) QueryReasons(ctx context.Context, filter enrollment.ReasonFilter) ([]enrollment.Reason, error) {
	var w where
	if len(filter.EnrollmentIDs) > 0 {
		w.add("enrollment_id = ANY(?)", pq.Array(int64s(filter.EnrollmentIDs)))
	}
	if filter.FullPaid != nil {
		w.add("full_paid = ?", *filter.FullPaid)
	}
	var rows []reasonRow
	q := repo.db.Rebind("SELECT " + reasonColumns + " FROM edmodule_enrollment_reasons" + w.String() + " ORDER BY id")
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying enrollment reasons")
	}
	reasons := make([]enrollment.Reason, 0, len(rows))
	for _, r := range rows {
		reasons = append(reasons, r.reason())
	}
	return reasons, nil
}

type progressRow struct {
	EnrollmentID int       `db:"enrollment_id"`
	Progress     []byte    `db:"progress"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r progressRow) progress() (enrollment.Progress, error) {
	p := enrollment.Progress{
		EnrollmentID: r.EnrollmentID,
		Progress:     make(map[string]json.RawMessage),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if len(r.Progress) > 0 {
		if err := json.Unmarshal(r.Progress, &p.Progress); err != nil {
			return enrollment.Progress{}, errors.Wrap(err, "decoding progress")
		}
	}
	return p, nil
}

func (repo enrollmentRepository) GetProgress(ctx context.Context, enrollmentID int) (enrollment.Progress, error) {
	var r progressRow
	q := repo.db.Rebind("SELECT enrollment_id, progress, updated_at FROM edmodule_progress WHERE enrollment_id = ?")
	if err := repo.db.GetContext(ctx, &r, q, enrollmentID); err != nil {
		return enrollment.Progress{}, trapNoRowsErr(err, enrollment.ErrProgressNotFound, "getting progress")
	}
	return r.progress()
}

func (repo enrollmentRepository) SaveProgress(ctx context.Context, p enrollment.Progress) (enrollment.Progress, error) {
	data := p.Progress
	if data == nil {
		data = make(map[string]json.RawMessage)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return enrollment.Progress{}, errors.Wrap(err, "encoding progress")
	}
	q := repo.db.Rebind(`INSERT INTO edmodule_progress (enrollment_id, progress, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (enrollment_id) DO UPDATE SET progress = EXCLUDED.progress, updated_at = EXCLUDED.updated_at
		RETURNING enrollment_id, progress, updated_at`)
	var r progressRow
	if err = repo.db.GetContext(ctx, &r, q, p.EnrollmentID, raw, p.UpdatedAt.UTC()); err != nil {
		return enrollment.Progress{}, errors.Wrap(err, "saving progress")
	}
	return r.progress()
}

func (repo enrollmentRepository) Unsubscribe(ctx context.Context, userID, moduleID int) error {
	q := repo.db.Rebind(`INSERT INTO edmodule_unsubscribes (user_id, edmodule_id) VALUES (?, ?) ON CONFLICT DO NOTHING`)
	_, err := repo.db.ExecContext(ctx, q, userID, moduleID)
	return errors.Wrap(err, "unsubscribing")
}

func (repo enrollmentRepository) Resubscribe(ctx context.Context, userID, moduleID int) error {
	q := repo.db.Rebind("DELETE FROM edmodule_unsubscribes WHERE user_id = ? AND edmodule_id = ?")
	_, err := repo.db.ExecContext(ctx, q, userID, moduleID)
	return errors.Wrap(err, "resubscribing")
}

func (repo enrollmentRepository) IsUnsubscribed(ctx context.Context, userID, moduleID int) (bool, error) {
	var exists bool
	q := repo.db.Rebind("SELECT EXISTS (SELECT 1 FROM edmodule_unsubscribes WHERE user_id = ? AND edmodule_id = ?)")
	if err := repo.db.QueryRowxContext(ctx, q, userID, moduleID).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "checking unsubscribe")
	}
	return exists, nil
}
