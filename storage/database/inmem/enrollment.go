package inmemdb

import (
	"context"
	"encoding/json"

	"github.com/plp/edmodule/core/enrollment"
)

type enrollmentRepository struct {
	db *DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db *DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

func (repo *enrollmentRepository) GetEnrollment(_ context.Context, filter enrollment.GetFilter) (enrollment.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != 0 {
		if e, ok := repo.db.enrollments[filter.ID]; ok {
			return *e, nil
		}
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	for _, e := range rows(repo.db.enrollments) {
		if e.UserID == filter.UserID && e.ModuleID == filter.ModuleID {
			return e, nil
		}
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) SaveEnrollment(_ context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for id, existing := range repo.db.enrollments {
		if existing.UserID == e.UserID && existing.ModuleID == e.ModuleID {
			e.ID = id
			e.CreatedAt = existing.CreatedAt
		}
	}
	if e.ID == 0 {
		e.ID = repo.db.nextPK()
	}
	repo.db.enrollments[e.ID] = &e
	return e, nil
}

func (repo *enrollmentRepository) QueryEnrollments(_ context.Context, filter enrollment.QueryFilter) ([]enrollment.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	enrollments := make([]enrollment.Enrollment, 0)
	for _, e := range rows(repo.db.enrollments) {
		if filter.UserID != 0 && e.UserID != filter.UserID {
			continue
		}
		if len(filter.ModuleIDs) > 0 && !containsInt(filter.ModuleIDs, e.ModuleID) {
			continue
		}
		if filter.IsActive != nil && e.IsActive != *filter.IsActive {
			continue
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, nil
}

func (repo *enrollmentRepository) CreateReason(_ context.Context, r enrollment.Reason) (enrollment.Reason, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.enrollments[r.EnrollmentID]; !ok {
		return enrollment.Reason{}, enrollment.ErrNotFound
	}
	r.ID = repo.db.nextPK()
	repo.db.reasons[r.ID] = &r
	return r, nil
}

func (repo *enrollmentRepository) QueryReasons(_ context.Context, filter enrollment.ReasonFilter) ([]enrollment.Reason, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	reasons := make([]enrollment.Reason, 0)
	for _, r := range rows(repo.db.reasons) {
		if len(filter.EnrollmentIDs) > 0 && !containsInt(filter.EnrollmentIDs, r.EnrollmentID) {
			continue
		}
		if filter.FullPaid != nil && r.FullPaid != *filter.FullPaid {
			continue
		}
		reasons = append(reasons, r)
	}
	return reasons, nil
}

func copyProgress(p enrollment.Progress) enrollment.Progress {
	data := make(map[string]json.RawMessage, len(p.Progress))
	for k, v := range p.Progress {
		data[k] = append(json.RawMessage(nil), v...)
	}
	p.Progress = data
	return p
}

func (repo *enrollmentRepository) GetProgress(_ context.Context, enrollmentID int) (enrollment.Progress, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.progress[enrollmentID]; ok {
		return copyProgress(*p), nil
	}
	return enrollment.Progress{}, enrollment.ErrProgressNotFound
}

func (repo *enrollmentRepository) SaveProgress(_ context.Context, p enrollment.Progress) (enrollment.Progress, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.enrollments[p.EnrollmentID]; !ok {
		return enrollment.Progress{}, enrollment.ErrNotFound
	}
	p = copyProgress(p)
	repo.db.progress[p.EnrollmentID] = &p
	return copyProgress(p), nil
}

func (repo *enrollmentRepository) Unsubscribe(_ context.Context, userID, moduleID int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.unsubscribes[subscription{userID: userID, moduleID: moduleID}] = struct{}{}
	return nil
}

func (repo *enrollmentRepository) Resubscribe(_ context.Context, userID, moduleID int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.unsubscribes, subscription{userID: userID, moduleID: moduleID})
	return nil
}

func (repo *enrollmentRepository) IsUnsubscribed(_ context.Context, userID, moduleID int) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	_, ok := repo.db.unsubscribes[subscription{userID: userID, moduleID: moduleID}]
	return ok, nil
}
