package inmemdb

import (
	"context"
	"strings"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/edmodule"
)

type edmoduleRepository struct {
	db *DB
}

var _ edmodule.Repository = (*edmoduleRepository)(nil)

func NewEdmoduleRepository(db *DB) edmodule.Repository {
	return &edmoduleRepository{db: db}
}

var moduleOrderings = map[string]func(a, b edmodule.Module) int{
	"code":       func(a, b edmodule.Module) int { return strings.Compare(a.Code, b.Code) },
	"title":      func(a, b edmodule.Module) int { return strings.Compare(a.Title, b.Title) },
	"created_at": func(a, b edmodule.Module) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
	"updated_at": func(a, b edmodule.Module) int { return compareTimes(a.UpdatedAt, b.UpdatedAt) },
}

func (repo *edmoduleRepository) CheckCodeUniqueness(_ context.Context, code string, excludeID int) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for id, m := range repo.db.modules {
		if id != excludeID && m.Code == code {
			return edmodule.ErrCodeExists
		}
	}
	return nil
}

func (repo *edmoduleRepository) CreateModule(_ context.Context, m edmodule.Module) (edmodule.Module, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	m.ID = repo.db.nextPK()
	m.CourseIDs = copyInts(m.CourseIDs)
	repo.db.modules[m.ID] = &m
	return m, nil
}

func (repo *edmoduleRepository) UpdateModule(_ context.Context, m edmodule.Module) (edmodule.Module, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.modules[m.ID]
	if !ok {
		return edmodule.Module{}, edmodule.ErrNotFound
	}
	// ratings are only changed through SetRatings
	m.SumRatings, m.CountRatings = orig.SumRatings, orig.CountRatings
	m.CourseIDs = copyInts(m.CourseIDs)
	repo.db.modules[m.ID] = &m
	return m, nil
}

func (repo *edmoduleRepository) GetModule(_ context.Context, filter edmodule.GetFilter) (edmodule.Module, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, m := range rows(repo.db.modules) {
		if (filter.ID != 0 && m.ID == filter.ID) || (filter.Code != "" && m.Code == filter.Code) {
			m.CourseIDs = copyInts(m.CourseIDs)
			return m, nil
		}
	}
	return edmodule.Module{}, edmodule.ErrNotFound
}

func (repo *edmoduleRepository) QueryModules(_ context.Context, filter *edmodule.QueryFilter, ordering []core.DBOrdering) ([]edmodule.Module, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	modules := make([]edmodule.Module, 0)
	for _, m := range rows(repo.db.modules) {
		if filter != nil {
			if filter.Search != "" {
				s := strings.ToLower(filter.Search)
				if !strings.Contains(strings.ToLower(m.Title), s) && !strings.Contains(m.Code, s) {
					continue
				}
			}
			if len(filter.Statuses) > 0 && !containsString(filter.Statuses, m.Status) {
				continue
			}
			if filter.CourseID != 0 && !containsInt(m.CourseIDs, filter.CourseID) {
				continue
			}
		}
		m.CourseIDs = copyInts(m.CourseIDs)
		modules = append(modules, m)
	}
	orderRows(modules, ordering, moduleOrderings)
	return modules, nil
}

func containsString(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func (repo *edmoduleRepository) SetRatings(_ context.Context, moduleID, sum, count int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	m, ok := repo.db.modules[moduleID]
	if !ok {
		return edmodule.ErrNotFound
	}
	m.SumRatings, m.CountRatings = sum, count
	return nil
}

func (repo *edmoduleRepository) SaveEnrollmentType(_ context.Context, et edmodule.EnrollmentType) (edmodule.EnrollmentType, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.modules[et.ModuleID]; !ok {
		return edmodule.EnrollmentType{}, edmodule.ErrNotFound
	}
	for id, existing := range repo.db.moduleTypes {
		if existing.ModuleID == et.ModuleID && existing.Mode == et.Mode && id != et.ID {
			if et.ID != 0 {
				return edmodule.EnrollmentType{}, edmodule.ErrEnrollmentTypeExists
			}
			// same (module, mode): update in place
			et.ID = id
		}
	}
	if et.ID == 0 {
		et.ID = repo.db.nextPK()
	}
	repo.db.moduleTypes[et.ID] = &et
	return et, nil
}

func (repo *edmoduleRepository) QueryEnrollmentTypes(_ context.Context, moduleID int) ([]edmodule.EnrollmentType, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	types := make([]edmodule.EnrollmentType, 0)
	for _, et := range rows(repo.db.moduleTypes) {
		if et.ModuleID == moduleID {
			types = append(types, et)
		}
	}
	return types, nil
}
