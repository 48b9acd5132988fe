package inmemdb

import (
	"sort"
	"sync"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/course"
	"github.com/plp/edmodule/core/edmodule"
	"github.com/plp/edmodule/core/enrollment"
	"github.com/plp/edmodule/core/promo"
	"github.com/plp/edmodule/core/rating"
	"github.com/plp/edmodule/core/user"
)

type subscription struct {
	userID   int
	moduleID int
}

// DB is an in-memory database shared by the repositories. Rows are stored by primary key.
type DB struct {
	mutex sync.RWMutex
	pk    int

	users           map[int]*user.User
	courses         map[int]*course.Course
	sessions        map[int]*course.Session
	participants    map[int]*course.Participant
	sessionPayments map[int]*course.SessionPayment
	modules         map[int]*edmodule.Module
	moduleTypes     map[int]*edmodule.EnrollmentType
	enrollments     map[int]*enrollment.Enrollment
	reasons         map[int]*enrollment.Reason
	progress        map[int]*enrollment.Progress // {enrollment ID: progress}
	unsubscribes    map[subscription]struct{}
	ratings         map[int]*rating.Rating
	promoCodes      map[int]*promo.PromoCode
}

func NewDB() *DB {
	return &DB{
		users:           make(map[int]*user.User),
		courses:         make(map[int]*course.Course),
		sessions:        make(map[int]*course.Session),
		participants:    make(map[int]*course.Participant),
		sessionPayments: make(map[int]*course.SessionPayment),
		modules:         make(map[int]*edmodule.Module),
		moduleTypes:     make(map[int]*edmodule.EnrollmentType),
		enrollments:     make(map[int]*enrollment.Enrollment),
		reasons:         make(map[int]*enrollment.Reason),
		progress:        make(map[int]*enrollment.Progress),
		unsubscribes:    make(map[subscription]struct{}),
		ratings:         make(map[int]*rating.Rating),
		promoCodes:      make(map[int]*promo.PromoCode),
	}
}

// nextPK must be called with the write lock held.
func (db *DB) nextPK() int {
	db.pk++
	return db.pk
}

// rows returns copies of the table rows ordered by primary key.
func rows[T any](table map[int]*T) []T {
	ids := make([]int, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, *table[id])
	}
	return out
}

// orderRows sorts items by the orderings whose field has a comparator in `cmps`.
// Items keep their primary key order otherwise.
func orderRows[T any](items []T, orderings []core.DBOrdering, cmps map[string]func(a, b T) int) {
	sort.SliceStable(items, func(i, j int) bool {
		for _, ord := range orderings {
			cmp, ok := cmps[ord.Field]
			if !ok {
				continue
			}
			c := cmp(items[i], items[j])
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func copyInts(values []int) []int {
	if values == nil {
		return nil
	}
	out := make([]int, len(values))
	copy(out, values)
	return out
}
