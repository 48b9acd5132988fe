package sqlxrepos

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/edmodule"
)

const (
	moduleColumns = "id, code, title, status, about, price, discount, vacancies, subtitle, offer_text, " +
		"requirements, sum_ratings, count_ratings, created_at, updated_at"
	moduleTypeColumns = "id, edmodule_id, active, mode, buy_start, buy_expiration, price, about, description"
)

type moduleRow struct {
	ID           int       `db:"id"`
	Code         string    `db:"code"`
	Title        string    `db:"title"`
	Status       string    `db:"status"`
	About        string    `db:"about"`
	Price        null.Int  `db:"price"`
	Discount     int       `db:"discount"`
	Vacancies    string    `db:"vacancies"`
	Subtitle     string    `db:"subtitle"`
	OfferText    string    `db:"offer_text"`
	Requirements string    `db:"requirements"`
	SumRatings   int       `db:"sum_ratings"`
	CountRatings int       `db:"count_ratings"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r moduleRow) module(courseIDs []int) edmodule.Module {
	if courseIDs == nil {
		courseIDs = []int{}
	}
	return edmodule.Module{
		ID:           r.ID,
		Code:         r.Code,
		Title:        r.Title,
		Status:       r.Status,
		CourseIDs:    courseIDs,
		About:        r.About,
		Price:        r.Price.Ptr(),
		Discount:     r.Discount,
		Vacancies:    r.Vacancies,
		Subtitle:     r.Subtitle,
		OfferText:    r.OfferText,
		Requirements: r.Requirements,
		SumRatings:   r.SumRatings,
		CountRatings: r.CountRatings,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type moduleTypeRow struct {
	ID            int       `db:"id"`
	ModuleID      int       `db:"edmodule_id"`
	Active        bool      `db:"active"`
	Mode          string    `db:"mode"`
	BuyStart      null.Time `db:"buy_start"`
	BuyExpiration null.Time `db:"buy_expiration"`
	Price         int       `db:"price"`
	About         string    `db:"about"`
	Description   string    `db:"description"`
}

func (r moduleTypeRow) enrollmentType() edmodule.EnrollmentType {
	return edmodule.EnrollmentType{
		ID:            r.ID,
		ModuleID:      r.ModuleID,
		Active:        r.Active,
		Mode:          r.Mode,
		BuyStart:      utcPtr(r.BuyStart),
		BuyExpiration: utcPtr(r.BuyExpiration),
		Price:         r.Price,
		About:         r.About,
		Description:   r.Description,
	}
}

type edmoduleRepository struct {
	db core.DB
}

var _ edmodule.Repository = (*edmoduleRepository)(nil) // interface compliance check

func NewEdmoduleRepository(db core.DB) edmodule.Repository {
	return &edmoduleRepository{db: db}
}

func (repo edmoduleRepository) CheckCodeUniqueness(ctx context.Context, code string, excludeID int) error {
	var exists bool
	q := repo.db.Rebind("SELECT EXISTS (SELECT 1 FROM edmodules WHERE code = ? AND id <> ?)")
	if err := repo.db.QueryRowxContext(ctx, q, code, excludeID).Scan(&exists); err != nil {
		return errors.Wrap(err, "checking module code uniqueness")
	}
	if exists {
		return edmodule.ErrCodeExists
	}
	return nil
}

func setModuleCourses(ctx context.Context, tx core.DBExecutor, moduleID int, courseIDs []int) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM edmodule_courses WHERE edmodule_id = ?"), moduleID); err != nil {
		return errors.Wrap(err, "clearing module courses")
	}
	q := tx.Rebind("INSERT INTO edmodule_courses (edmodule_id, course_id, position) VALUES (?, ?, ?)")
	for pos, id := range courseIDs {
		if _, err := tx.ExecContext(ctx, q, moduleID, id, pos); err != nil {
			return errors.Wrap(err, "inserting module course")
		}
	}
	return nil
}

func (repo edmoduleRepository) CreateModule(ctx context.Context, m edmodule.Module) (edmodule.Module, error) {
	var created moduleRow
	err := core.RunInTx(ctx, repo.db, func(tx core.DBExecutor) error {
		q := tx.Rebind(`INSERT INTO edmodules
			(code, title, status, about, price, discount, vacancies, subtitle, offer_text, requirements, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING ` + moduleColumns)
		err := tx.GetContext(ctx, &created, q,
			m.Code, m.Title, m.Status, m.About, null.IntFromPtr(m.Price), m.Discount, m.Vacancies, m.Subtitle,
			m.OfferText, m.Requirements, m.CreatedAt.UTC(), m.UpdatedAt.UTC())
		if err != nil {
			if isUniqueViolation(err) {
				return edmodule.ErrCodeExists
			}
			return errors.Wrap(err, "inserting module")
		}
		return setModuleCourses(ctx, tx, created.ID, m.CourseIDs)
	})
	if err != nil {
		return edmodule.Module{}, err
	}
	return created.module(m.CourseIDs), nil
}

func (repo edmoduleRepository) UpdateModule(ctx context.Context, m edmodule.Module) (edmodule.Module, error) {
	var updated moduleRow
	err := core.RunInTx(ctx, repo.db, func(tx core.DBExecutor) error {
		q := tx.Rebind(`UPDATE edmodules SET
			title = ?, status = ?, about = ?, price = ?, discount = ?, vacancies = ?, subtitle = ?,
			offer_text = ?, requirements = ?, updated_at = ?
			WHERE id = ? RETURNING ` + moduleColumns)
		err := tx.GetContext(ctx, &updated, q,
			m.Title, m.Status, m.About, null.IntFromPtr(m.Price), m.Discount, m.Vacancies, m.Subtitle,
			m.OfferText, m.Requirements, m.UpdatedAt.UTC(), m.ID)
		if err != nil {
			return trapNoRowsErr(err, edmodule.ErrNotFound, "updating module")
		}
		return setModuleCourses(ctx, tx, m.ID, m.CourseIDs)
	})
	if err != nil {
		return edmodule.Module{}, err
	}
	return updated.module(m.CourseIDs), nil
}

// loadCourseIDs fetches the ordered course IDs of the modules.
func (repo edmoduleRepository) loadCourseIDs(ctx context.Context, moduleIDs []int) (map[int][]int, error) {
	byModule := make(map[int][]int, len(moduleIDs))
	if len(moduleIDs) == 0 {
		return byModule, nil
	}
	var rows []struct {
		ModuleID int `db:"edmodule_id"`
		CourseID int `db:"course_id"`
	}
	q := repo.db.Rebind(`SELECT edmodule_id, course_id FROM edmodule_courses
		WHERE edmodule_id = ANY(?) ORDER BY edmodule_id, position`)
	if err := repo.db.SelectContext(ctx, &rows, q, pq.Array(int64s(moduleIDs))); err != nil {
		return nil, errors.Wrap(err, "querying module courses")
	}
	for _, r := range rows {
		byModule[r.ModuleID] = append(byModule[r.ModuleID], r.CourseID)
	}
	return byModule, nil
}

func (repo edmoduleRepository) queryModules(ctx context.Context, w where, orderBy string) ([]edmodule.Module, error) {
	var rows []moduleRow
	q := repo.db.Rebind("SELECT " + moduleColumns + " FROM edmodules" + w.String() + orderBy)
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying modules")
	}
	ids := make([]int, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	courseIDs, err := repo.loadCourseIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	modules := make([]edmodule.Module, 0, len(rows))
	for _, r := range rows {
		modules = append(modules, r.module(courseIDs[r.ID]))
	}
	return modules, nil
}

func (repo edmoduleRepository) GetModule(ctx context.Context, filter edmodule.GetFilter) (edmodule.Module, error) {
	var w where
	switch {
	case filter.ID != 0:
		w.add("id = ?", filter.ID)
	case filter.Code != "":
		w.add("code = ?", filter.Code)
	default:
		return edmodule.Module{}, edmodule.ErrNotFound
	}
	modules, err := repo.queryModules(ctx, w, " LIMIT 1")
	if err != nil {
		return edmodule.Module{}, err
	}
	if len(modules) == 0 {
		return edmodule.Module{}, edmodule.ErrNotFound
	}
	return modules[0], nil
}

var moduleOrderColumns = map[string]string{
	"code":       "code",
	"title":      "title",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func (repo edmoduleRepository) QueryModules(ctx context.Context, filter *edmodule.QueryFilter, ordering []core.DBOrdering) ([]edmodule.Module, error) {
	var w where
	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			w.add("(title ILIKE ? OR code ILIKE ?)", val, val)
		}
		if len(filter.Statuses) > 0 {
			w.add("status = ANY(?)", stringArray(filter.Statuses))
		}
		if filter.CourseID != 0 {
			w.add("id IN (SELECT edmodule_id FROM edmodule_courses WHERE course_id = ?)", filter.CourseID)
		}
	}
	return repo.queryModules(ctx, w, core.OrderByClause(ordering, moduleOrderColumns, "id"))
}

func (repo edmoduleRepository) SetRatings(ctx context.Context, moduleID, sum, count int) error {
	q := repo.db.Rebind("UPDATE edmodules SET sum_ratings = ?, count_ratings = ? WHERE id = ?")
	res, err := repo.db.ExecContext(ctx, q, sum, count, moduleID)
	if err != nil {
		return errors.Wrap(err, "updating module ratings")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return edmodule.ErrNotFound
	}
	return nil
}

func (repo edmoduleRepository) SaveEnrollmentType(ctx context.Context, et edmodule.EnrollmentType) (edmodule.EnrollmentType, error) {
	args := []interface{}{
		et.ModuleID, et.Active, et.Mode, nullTime(et.BuyStart), nullTime(et.BuyExpiration), et.Price, et.About, et.Description,
	}
	var q string
	if et.ID == 0 {
		// same (module, mode): update in place
		q = `INSERT INTO edmodule_enrollment_types
			(edmodule_id, active, mode, buy_start, buy_expiration, price, about, description)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (edmodule_id, mode) DO UPDATE SET
			active = EXCLUDED.active, buy_start = EXCLUDED.buy_start, buy_expiration = EXCLUDED.buy_expiration,
			price = EXCLUDED.price, about = EXCLUDED.about, description = EXCLUDED.description
			RETURNING ` + moduleTypeColumns
	} else {
		q = `UPDATE edmodule_enrollment_types SET
			edmodule_id = ?, active = ?, mode = ?, buy_start = ?, buy_expiration = ?, price = ?, about = ?, description = ?
			WHERE id = ? RETURNING ` + moduleTypeColumns
		args = append(args, et.ID)
	}

	var r moduleTypeRow
	if err := repo.db.GetContext(ctx, &r, repo.db.Rebind(q), args...); err != nil {
		if isUniqueViolation(err) {
			return edmodule.EnrollmentType{}, edmodule.ErrEnrollmentTypeExists
		}
		return edmodule.EnrollmentType{}, trapNoRowsErr(err, edmodule.ErrEnrollmentTypeNotFound, "saving enrollment type")
	}
	return r.enrollmentType(), nil
}

func (repo edmoduleRepository) QueryEnrollmentTypes(ctx context.Context, moduleID int) ([]edmodule.EnrollmentType, error) {
	var rows []moduleTypeRow
	q := repo.db.Rebind("SELECT " + moduleTypeColumns + " FROM edmodule_enrollment_types WHERE edmodule_id = ? ORDER BY id")
	if err := repo.db.SelectContext(ctx, &rows, q, moduleID); err != nil {
		return nil, errors.Wrap(err, "querying enrollment types")
	}
	types := make([]edmodule.EnrollmentType, 0, len(rows))
	for _, r := range rows {
		types = append(types, r.enrollmentType())
	}
	return types, nil
}
