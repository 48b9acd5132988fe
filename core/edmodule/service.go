package edmodule

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/course"
)

var (
	ErrNotFound               = errors.New("educational module not found")
	ErrCodeExists             = errors.New("a module with this code already exists")
	ErrEnrollmentTypeNotFound = errors.New("module enrollment type not found")
	ErrEnrollmentTypeExists   = errors.New("this module already has an enrollment type for this mode")
)

type (
	Repository interface {
		CheckCodeUniqueness(ctx context.Context, code string, excludeID int) error
		CreateModule(ctx context.Context, m Module) (Module, error)
		UpdateModule(ctx context.Context, m Module) (Module, error)
		GetModule(ctx context.Context, filter GetFilter) (Module, error)
		QueryModules(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Module, error)
		SetRatings(ctx context.Context, moduleID, sum, count int) error
		SaveEnrollmentType(ctx context.Context, et EnrollmentType) (EnrollmentType, error)
		QueryEnrollmentTypes(ctx context.Context, moduleID int) ([]EnrollmentType, error)
	}

	Service struct {
		repo    Repository
		courses *course.Service

		rndMu sync.Mutex
		rnd   *rand.Rand
	}
)

func NewService(repo Repository, courses *course.Service) *Service {
	return &Service{
		repo:    repo,
		courses: courses,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRandSource replaces the source used to pick related items.
func (svc *Service) SetRandSource(src rand.Source) {
	svc.rndMu.Lock()
	svc.rnd = rand.New(src)
	svc.rndMu.Unlock()
}

func (svc *Service) perm(n int) []int {
	svc.rndMu.Lock()
	defer svc.rndMu.Unlock()
	return svc.rnd.Perm(n)
}

func (svc *Service) checkCode(ctx context.Context, code string, excludeID int) error {
	if err := svc.repo.CheckCodeUniqueness(ctx, code, excludeID); err != nil {
		if err == ErrCodeExists {
			return core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
		}
		return errors.Wrap(err, "checking code uniqueness")
	}
	return nil
}

func (svc *Service) checkCourses(ctx context.Context, ids []int) error {
	courses, err := svc.courses.GetMany(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "getting courses")
	}
	if len(courses) != len(ids) {
		return core.NewValidationError(nil, core.FieldError{Field: "course_ids", Error: "unknown course"})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nm NewModule) (Module, error) {
	nm.Clean()
	if err := core.Validate.Struct(nm); err != nil {
		return Module{}, err
	}
	if err := svc.checkCode(ctx, nm.Code, 0); err != nil {
		return Module{}, err
	}
	if err := svc.checkCourses(ctx, nm.CourseIDs); err != nil {
		return Module{}, err
	}

	now := core.NowFunc().UTC()
	m := Module{
		Code:         nm.Code,
		Title:        nm.Title,
		Status:       nm.Status,
		CourseIDs:    nm.CourseIDs,
		About:        nm.About,
		Price:        nm.Price,
		Discount:     nm.Discount,
		Vacancies:    nm.Vacancies,
		Subtitle:     nm.Subtitle,
		OfferText:    nm.OfferText,
		Requirements: nm.Requirements,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if m.CourseIDs == nil {
		m.CourseIDs = []int{}
	}
	return svc.repo.CreateModule(ctx, m)
}

func (svc *Service) Update(ctx context.Context, code string, um UpdateModule) (Module, error) {
	if err := core.Validate.Struct(um); err != nil {
		return Module{}, err
	}
	m, err := svc.Get(ctx, code)
	if err != nil {
		return Module{}, err
	}
	if um.CourseIDs != nil {
		if err = svc.checkCourses(ctx, um.CourseIDs); err != nil {
			return Module{}, err
		}
	}
	m = um.apply(m)
	m.UpdatedAt = core.NowFunc().UTC()
	return svc.repo.UpdateModule(ctx, m)
}

func (svc *Service) Get(ctx context.Context, code string) (Module, error) {
	return svc.repo.GetModule(ctx, GetFilter{Code: core.CleanString(code, true /* lower */)})
}

func (svc *Service) GetByID(ctx context.Context, id int) (Module, error) {
	return svc.repo.GetModule(ctx, GetFilter{ID: id})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Module, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryModules(ctx, filter, ordering)
}

// ModulesWithCourse lists the modules bundling the course.
func (svc *Service) ModulesWithCourse(ctx context.Context, courseID int) ([]Module, error) {
	return svc.repo.QueryModules(ctx, &QueryFilter{CourseID: courseID}, nil)
}

func (svc *Service) SetRatings(ctx context.Context, moduleID, sum, count int) error {
	return svc.repo.SetRatings(ctx, moduleID, sum, count)
}

// Details loads the module's courses.
func (svc *Service) Details(ctx context.Context, m Module) (Details, error) {
	courses, err := svc.courses.GetMany(ctx, m.CourseIDs)
	if err != nil {
		return Details{}, errors.Wrap(err, "getting module courses")
	}
	return Details{Module: m, Courses: courses}, nil
}

// Related suggests up to 2 items sharing a category with the module:
// one random published module first, then random published courses outside the module.
func (svc *Service) Related(ctx context.Context, d Details) ([]RelatedItem, error) {
	const limit = 2
	related := make([]RelatedItem, 0, limit)

	categories := d.Categories()
	if len(categories) == 0 {
		return related, nil
	}
	catSet := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		catSet[c] = struct{}{}
	}

	modules, err := svc.repo.QueryModules(ctx, &QueryFilter{Statuses: []string{StatusPublished}}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying published modules")
	}
	candidates := make([]Module, 0, len(modules))
	for _, m := range modules {
		if m.ID == d.ID {
			continue
		}
		md, err := svc.Details(ctx, m)
		if err != nil {
			return nil, err
		}
		if sharesAny(md.Categories(), catSet) {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) > 0 {
		m := candidates[svc.perm(len(candidates))[0]]
		related = append(related, RelatedItem{Type: "edmodule", Module: &m})
	}

	courses, err := svc.courses.QueryPublished(ctx, categories, d.CourseIDs)
	if err != nil {
		return nil, errors.Wrap(err, "querying related courses")
	}
	for _, i := range svc.perm(len(courses)) {
		if len(related) >= limit {
			break
		}
		c := courses[i]
		related = append(related, RelatedItem{Type: "course", Course: &c})
	}
	return related, nil
}

func sharesAny(values []string, set map[string]struct{}) bool {
	for _, v := range values {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

func (svc *Service) SaveEnrollmentType(ctx context.Context, moduleID int, net NewEnrollmentType) (EnrollmentType, error) {
	if err := core.Validate.Struct(net); err != nil {
		return EnrollmentType{}, err
	}
	active := true
	if net.Active != nil {
		active = *net.Active
	}
	et := EnrollmentType{
		ModuleID:      moduleID,
		Active:        active,
		Mode:          net.Mode,
		BuyStart:      net.BuyStart,
		BuyExpiration: net.BuyExpiration,
		Price:         net.Price,
		About:         net.About,
		Description:   net.Description,
	}
	et, err := svc.repo.SaveEnrollmentType(ctx, et)
	if errors.Cause(err) == ErrEnrollmentTypeExists {
		return EnrollmentType{}, core.NewValidationError(err, core.FieldError{Field: "mode", Error: err.Error()})
	}
	return et, err
}

// AvailableEnrollmentTypes filters the module's types on mode and activity. For the verified mode,
// excludeExpired also drops types past their buy expiration date or whose buy window has not started.
func (svc *Service) AvailableEnrollmentTypes(ctx context.Context, moduleID int, mode string, excludeExpired, active bool) ([]EnrollmentType, error) {
	types, err := svc.repo.QueryEnrollmentTypes(ctx, moduleID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollment types")
	}
	return FilterEnrollmentTypes(types, mode, excludeExpired, active, core.NowFunc()), nil
}

func FilterEnrollmentTypes(types []EnrollmentType, mode string, excludeExpired, active bool, now time.Time) []EnrollmentType {
	available := make([]EnrollmentType, 0, len(types))
	for _, et := range types {
		if et.Active != active {
			continue
		}
		if mode != "" && et.Mode != mode {
			continue
		}
		if excludeExpired && et.Mode == course.ModeVerified {
			if et.BuyExpiration != nil && course.DateBefore(*et.BuyExpiration, now) {
				continue
			}
			if et.BuyStart != nil && !et.BuyStart.Before(now) {
				continue
			}
		}
		available = append(available, et)
	}
	return available
}

// VerifiedEnrollmentType is the module's currently buyable verified type.
func (svc *Service) VerifiedEnrollmentType(ctx context.Context, moduleID int) (EnrollmentType, error) {
	types, err := svc.AvailableEnrollmentTypes(ctx, moduleID, course.ModeVerified, true, true)
	if err != nil {
		return EnrollmentType{}, err
	}
	if len(types) == 0 {
		return EnrollmentType{}, ErrEnrollmentTypeNotFound
	}
	return types[0], nil
}

func (svc *Service) GetEnrollmentType(ctx context.Context, moduleID, typeID int) (EnrollmentType, error) {
	types, err := svc.repo.QueryEnrollmentTypes(ctx, moduleID)
	if err != nil {
		return EnrollmentType{}, errors.Wrap(err, "querying enrollment types")
	}
	for _, et := range types {
		if et.ID == typeID {
			return et, nil
		}
	}
	return EnrollmentType{}, ErrEnrollmentTypeNotFound
}
