package eligibility

import "github.com/cuongbtq/booking-dispatch/internal/domain"

// PoolQuery is the roster filter a store applies before the in-memory rules
// run. It narrows the roster, it does not replace IsEligible.
type PoolQuery struct {
	RoleID         int64
	TranslatorType domain.TranslatorType
	LanguageID     int64
	Gender         domain.Gender
	Levels         []domain.TranslatorLevel
	ExcludeIDs     []int64
}

// PoolQuery derives the roster filter for job
func (f *Filter) PoolQuery(job *domain.Job, excludeIDs ...int64) PoolQuery {
	q := PoolQuery{
		RoleID:         f.TranslatorRoleID,
		TranslatorType: TranslatorTypeFor(job.JobType),
		LanguageID:     job.FromLanguageID,
		Gender:         job.Gender,
		Levels:         LevelsFor(job.Certified),
	}
	for _, id := range excludeIDs {
		if id != 0 {
			q.ExcludeIDs = append(q.ExcludeIDs, id)
		}
	}
	return q
}

// LevelStrings returns the accepted levels as plain strings for SQL arrays
func (q PoolQuery) LevelStrings() []string {
	out := make([]string, len(q.Levels))
	for i, l := range q.Levels {
		out[i] = string(l)
	}
	return out
}
