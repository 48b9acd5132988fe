package enrollment

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/course"
	"github.com/plp/edmodule/core/edmodule"
	"github.com/plp/edmodule/core/promo"
)

var (
	ErrNotFound         = errors.New("enrollment not found")
	ErrProgressNotFound = errors.New("enrollment progress not found")
	ErrEnrollmentClosed = errors.New("enrollment on this module is closed")
	ErrWrongModuleType  = errors.New("enrollment type does not belong to this module")

	paymentTypeTag  = "paymenttype"
	paymentTypeText = "invalid payment type"
)

func init() {
	core.RegisterOneOf(paymentTypeTag, paymentTypeText, PaymentTypes...)
}

type (
	Repository interface {
		GetEnrollment(ctx context.Context, filter GetFilter) (Enrollment, error)
		// SaveEnrollment inserts the enrollment or updates the one of the same (user, module).
		SaveEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
		QueryEnrollments(ctx context.Context, filter QueryFilter) ([]Enrollment, error)
		CreateReason(ctx context.Context, r Reason) (Reason, error)
		QueryReasons(ctx context.Context, filter ReasonFilter) ([]Reason, error)
		GetProgress(ctx context.Context, enrollmentID int) (Progress, error)
		SaveProgress(ctx context.Context, p Progress) (Progress, error)
		Unsubscribe(ctx context.Context, userID, moduleID int) error
		Resubscribe(ctx context.Context, userID, moduleID int) error
		IsUnsubscribed(ctx context.Context, userID, moduleID int) (bool, error)
	}

	// PromoRedeemer checks and consumes promo codes applied to payments.
	PromoRedeemer interface {
		Validate(ctx context.Context, code string, productID int, productType string) (promo.PromoCode, error)
		Redeem(ctx context.Context, code string) (promo.PromoCode, error)
	}

	Service struct {
		repo    Repository
		modules *edmodule.Service
		courses *course.Service
		promos  PromoRedeemer

		mu        sync.RWMutex
		listeners []Listener
	}
)

func NewService(repo Repository, modules *edmodule.Service, courses *course.Service, promos PromoRedeemer) *Service {
	return &Service{
		repo:    repo,
		modules: modules,
		courses: courses,
		promos:  promos,
	}
}

// OnChange registers a listener called after every enrollment event.
func (svc *Service) OnChange(l Listener) {
	svc.mu.Lock()
	svc.listeners = append(svc.listeners, l)
	svc.mu.Unlock()
}

func (svc *Service) emit(ev Event, e Enrollment, r *Reason) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	for _, l := range svc.listeners {
		l(ev, e, r)
	}
}

func (svc *Service) Get(ctx context.Context, userID, moduleID int) (Enrollment, error) {
	return svc.repo.GetEnrollment(ctx, GetFilter{UserID: userID, ModuleID: moduleID})
}

func (svc *Service) GetByID(ctx context.Context, id int) (Enrollment, error) {
	return svc.repo.GetEnrollment(ctx, GetFilter{ID: id})
}

// ActiveEnrollments lists active enrollments, on the given modules only when moduleIDs is set.
func (svc *Service) ActiveEnrollments(ctx context.Context, moduleIDs ...int) ([]Enrollment, error) {
	active := true
	return svc.repo.QueryEnrollments(ctx, QueryFilter{ModuleIDs: moduleIDs, IsActive: &active})
}

func (svc *Service) getOrNew(ctx context.Context, userID, moduleID int) (Enrollment, bool, error) {
	e, err := svc.Get(ctx, userID, moduleID)
	switch errors.Cause(err) {
	case nil:
		return e, false, nil
	case ErrNotFound:
		now := core.NowFunc().UTC()
		return Enrollment{UserID: userID, ModuleID: moduleID, CreatedAt: now, UpdatedAt: now}, true, nil
	default:
		return Enrollment{}, false, errors.Wrap(err, "getting enrollment")
	}
}

// Enroll activates the user's enrollment on the module, creating it if needed.
func (svc *Service) Enroll(ctx context.Context, userID int, m edmodule.Module) (Enrollment, error) {
	if m.Status == edmodule.StatusHidden {
		return Enrollment{}, edmodule.ErrNotFound
	}
	e, _, err := svc.getOrNew(ctx, userID, m.ID)
	if err != nil {
		return Enrollment{}, err
	}
	if e.IsActive {
		return e, nil
	}

	d, err := svc.modules.Details(ctx, m)
	if err != nil {
		return Enrollment{}, err
	}
	if !d.MayEnroll(core.NowFunc()) {
		return Enrollment{}, ErrEnrollmentClosed
	}

	e.IsActive = true
	e.UpdatedAt = core.NowFunc().UTC()
	if e, err = svc.repo.SaveEnrollment(ctx, e); err != nil {
		return Enrollment{}, errors.Wrap(err, "saving enrollment")
	}
	svc.emit(EventEnrolled, e, nil)
	return e, nil
}

func (svc *Service) Unenroll(ctx context.Context, userID, moduleID int) (Enrollment, error) {
	e, err := svc.Get(ctx, userID, moduleID)
	if err != nil {
		return Enrollment{}, err
	}
	if !e.IsActive {
		return e, nil
	}
	e.IsActive = false
	e.UpdatedAt = core.NowFunc().UTC()
	if e, err = svc.repo.SaveEnrollment(ctx, e); err != nil {
		return Enrollment{}, errors.Wrap(err, "saving enrollment")
	}
	svc.emit(EventUnenrolled, e, nil)
	return e, nil
}

// RecordPayment stores a payment for the module, enrolling the user if needed.
// A full payment marks the enrollment as paid; a promo code applied to it is consumed.
func (svc *Service) RecordPayment(ctx context.Context, moduleID int, np NewPayment) (Enrollment, Reason, error) {
	np.Clean()
	if err := core.Validate.Struct(np); err != nil {
		return Enrollment{}, Reason{}, err
	}
	et, err := svc.modules.GetEnrollmentType(ctx, moduleID, np.EnrollmentTypeID)
	if err != nil {
		if errors.Cause(err) == edmodule.ErrEnrollmentTypeNotFound {
			return Enrollment{}, Reason{}, core.NewValidationError(ErrWrongModuleType,
				core.FieldError{Field: "enrollment_type_id", Error: ErrWrongModuleType.Error()})
		}
		return Enrollment{}, Reason{}, err
	}

	if np.PromoCode != "" {
		if _, err = svc.promos.Validate(ctx, np.PromoCode, moduleID, promo.ProductEdmodule); err != nil {
			if promo.IsRejection(err) || errors.Cause(err) == promo.ErrNotFound {
				return Enrollment{}, Reason{}, core.NewValidationError(nil,
					core.FieldError{Field: "promo_code", Error: errors.Cause(err).Error()})
			}
			return Enrollment{}, Reason{}, errors.Wrap(err, "validating promo code")
		}
		if _, err = svc.promos.Redeem(ctx, np.PromoCode); err != nil {
			if errors.Cause(err) == promo.ErrUsedUp || errors.Cause(err) == promo.ErrExpired {
				return Enrollment{}, Reason{}, core.NewValidationError(nil,
					core.FieldError{Field: "promo_code", Error: errors.Cause(err).Error()})
			}
			return Enrollment{}, Reason{}, errors.Wrap(err, "redeeming promo code")
		}
	}

	e, _, err := svc.getOrNew(ctx, np.UserID, moduleID)
	if err != nil {
		return Enrollment{}, Reason{}, err
	}
	fullPaid := true
	if np.FullPaid != nil {
		fullPaid = *np.FullPaid
	}
	e.IsActive = true
	if fullPaid {
		e.IsPaid = true
	}
	e.UpdatedAt = core.NowFunc().UTC()
	if e, err = svc.repo.SaveEnrollment(ctx, e); err != nil {
		return Enrollment{}, Reason{}, errors.Wrap(err, "saving enrollment")
	}

	orderID := np.PaymentOrderID
	if orderID == "" {
		orderID = uuid.New().String()
	}
	r, err := svc.repo.CreateReason(ctx, Reason{
		EnrollmentID:       e.ID,
		EnrollmentTypeID:   et.ID,
		PaymentType:        np.PaymentType,
		PaymentOrderID:     orderID,
		PaymentDescription: np.PaymentDescription,
		FullPaid:           fullPaid,
		PromoCode:          np.PromoCode,
		CreatedAt:          core.NowFunc().UTC(),
	})
	if err != nil {
		return Enrollment{}, Reason{}, errors.Wrap(err, "creating enrollment reason")
	}
	svc.emit(EventPayed, e, &r)
	return e, r, nil
}

func (svc *Service) Graduate(ctx context.Context, userID, moduleID int) (Enrollment, error) {
	e, err := svc.Get(ctx, userID, moduleID)
	if err != nil {
		return Enrollment{}, err
	}
	e.IsGraduated = true
	e.UpdatedAt = core.NowFunc().UTC()
	return svc.repo.SaveEnrollment(ctx, e)
}

// ReasonForUser returns the user's module payment, full payments first; nil when there is none.
func (svc *Service) ReasonForUser(ctx context.Context, userID, moduleID int) (*Reason, error) {
	if userID == 0 {
		return nil, nil
	}
	e, err := svc.Get(ctx, userID, moduleID)
	if errors.Cause(err) == ErrNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	reasons, err := svc.repo.QueryReasons(ctx, ReasonFilter{EnrollmentIDs: []int{e.ID}})
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollment reasons")
	}
	if len(reasons) == 0 {
		return nil, nil
	}
	sort.SliceStable(reasons, func(i, j int) bool { return reasons[i].FullPaid && !reasons[j].FullPaid })
	return &reasons[0], nil
}

// MayEnrollOnProject tells whether the user, actively enrolled on the module,
// graduated from every non-project course of it.
func (svc *Service) MayEnrollOnProject(ctx context.Context, d edmodule.Details, userID int) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	e, err := svc.Get(ctx, userID, d.ID)
	if errors.Cause(err) == ErrNotFound {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if !e.IsActive {
		return false, nil
	}

	graduated := make(map[int]bool)
	courseIDs := make([]int, 0, len(d.Courses))
	for _, c := range d.Courses {
		if !c.IsProject {
			graduated[c.ID] = false
			courseIDs = append(courseIDs, c.ID)
		}
	}
	participants, err := svc.courses.Participations(ctx, userID, courseIDs)
	if err != nil {
		return false, errors.Wrap(err, "getting participations")
	}
	for _, p := range participants {
		if p.IsGraduate {
			graduated[p.CourseID] = true
		}
	}
	for _, ok := range graduated {
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (svc *Service) enrollmentsWithCourse(ctx context.Context, userID, courseID int, activeOnly bool) ([]Enrollment, error) {
	modules, err := svc.modules.ModulesWithCourse(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying modules with course")
	}
	if len(modules) == 0 {
		return []Enrollment{}, nil
	}
	ids := make([]int, 0, len(modules))
	for _, m := range modules {
		ids = append(ids, m.ID)
	}
	filter := QueryFilter{UserID: userID, ModuleIDs: ids}
	if activeOnly {
		active := true
		filter.IsActive = &active
	}
	return svc.repo.QueryEnrollments(ctx, filter)
}

// HasModule tells whether the user is actively enrolled on a module bundling the course.
func (svc *Service) HasModule(ctx context.Context, userID, courseID int) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	enrollments, err := svc.enrollmentsWithCourse(ctx, userID, courseID, true)
	if err != nil {
		return false, err
	}
	return len(enrollments) > 0, nil
}

// HasPaid tells whether the user bought the session, or fully paid a module bundling its course.
func (svc *Service) HasPaid(ctx context.Context, userID int, s course.Session) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	paid, err := svc.courses.HasPaidSession(ctx, userID, s.ID)
	if err != nil || paid {
		return paid, err
	}

	enrollments, err := svc.enrollmentsWithCourse(ctx, userID, s.CourseID, false)
	if err != nil || len(enrollments) == 0 {
		return false, err
	}
	ids := make([]int, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.ID)
	}
	fullPaid := true
	reasons, err := svc.repo.QueryReasons(ctx, ReasonFilter{EnrollmentIDs: ids, FullPaid: &fullPaid})
	if err != nil {
		return false, errors.Wrap(err, "querying enrollment reasons")
	}
	return len(reasons) > 0, nil
}

func (svc *Service) CourseAccess(ctx context.Context, userID int, s course.Session) (Access, error) {
	hasModule, err := svc.HasModule(ctx, userID, s.CourseID)
	if err != nil {
		return Access{}, err
	}
	hasPaid, err := svc.HasPaid(ctx, userID, s)
	if err != nil {
		return Access{}, err
	}
	return Access{HasModule: hasModule, HasPaid: hasPaid}, nil
}

func (svc *Service) Unsubscribe(ctx context.Context, userID, moduleID int) error {
	return svc.repo.Unsubscribe(ctx, userID, moduleID)
}

func (svc *Service) Resubscribe(ctx context.Context, userID, moduleID int) error {
	return svc.repo.Resubscribe(ctx, userID, moduleID)
}

func (svc *Service) IsUnsubscribed(ctx context.Context, userID, moduleID int) (bool, error) {
	return svc.repo.IsUnsubscribed(ctx, userID, moduleID)
}

func (svc *Service) Progress(ctx context.Context, enrollmentID int) (Progress, error) {
	return svc.repo.GetProgress(ctx, enrollmentID)
}

func (svc *Service) SaveProgress(ctx context.Context, p Progress) (Progress, error) {
	p.UpdatedAt = core.NowFunc().UTC()
	return svc.repo.SaveProgress(ctx, p)
}
