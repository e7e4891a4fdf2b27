// Package schedule builds the turn calendar of a career session and
// draws simulation periods per difficulty.
package schedule

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/inversim/career-engine/internal/dates"
	"github.com/inversim/career-engine/internal/model"
)

// BaseStartDate is the earliest date a simulated period may begin.
// Price coverage before it is too thin to be useful.
var BaseStartDate = dates.New(2000, time.January, 3)

// PeriodSpec is a difficulty's period length range and turn step.
type PeriodSpec struct {
	MinYears   int
	MaxYears   int
	StepMonths int
}

var specs = map[model.Difficulty]PeriodSpec{
	model.Principiante: {MinYears: 10, MaxYears: 15, StepMonths: 12},
	model.Intermedio:   {MinYears: 3, MaxYears: 7, StepMonths: 6},
	model.Experto:      {MinYears: 1, MaxYears: 2, StepMonths: 1},
}

// SpecFor returns the period spec for a difficulty.
func SpecFor(d model.Difficulty) (PeriodSpec, bool) {
	spec, ok := specs[d]
	return spec, ok
}

// BuildTurns splits [start, end] into contiguous pending turns of
// stepMonths each. Month addition clamps to the target month's length,
// so a turn starting Jan 31 ends Feb 28 (or 29). The last turn is
// truncated at end. Turns are numbered from 1 with no gaps or overlap.
func BuildTurns(start, end dates.Date, stepMonths int) []model.Turn {
	if stepMonths <= 0 || end.Before(start) {
		return nil
	}
	var turns []model.Turn
	cursor := start
	for n := 1; !cursor.After(end); n++ {
		turnEnd := dates.Min(cursor.AddMonths(stepMonths).AddDays(-1), end)
		turns = append(turns, model.Turn{
			N:      n,
			Start:  cursor,
			End:    turnEnd,
			Status: model.TurnPending,
		})
		cursor = turnEnd.AddDays(1)
	}
	return turns
}

// GeneratePeriod draws a period for spec from rng: a uniform duration
// in [MinYears, MaxYears] and a uniform start offset between
// BaseStartDate and the latest start that still fits before today.
// The end is inclusive, one day short of the full year count, and never
// lands in the future.
func GeneratePeriod(rng *rand.Rand, spec PeriodSpec, today dates.Date) model.Period {
	years := spec.MinYears + rng.Intn(spec.MaxYears-spec.MinYears+1)

	latest := today.AddMonths(-12 * years)
	start := BaseStartDate
	if span := BaseStartDate.DaysUntil(latest); span > 0 {
		start = BaseStartDate.AddDays(rng.Intn(span + 1))
	}
	end := start.AddMonths(12 * years).AddDays(-1)
	if end.After(today) {
		end = today
	}
	return model.Period{Start: start, End: end}
}

// GenerateSchedule draws a period and its turn calendar. A draw that
// produces no turns keeps its start and stretches the end to today; if
// the calendar is still empty the clock itself predates BaseStartDate
// and the error surfaces.
func GenerateSchedule(rng *rand.Rand, difficulty model.Difficulty, today dates.Date) (model.Period, []model.Turn, error) {
	spec, ok := SpecFor(difficulty)
	if !ok {
		return model.Period{}, nil, fmt.Errorf("schedule: no period spec for difficulty %q", difficulty)
	}

	period := GeneratePeriod(rng, spec, today)
	turns := BuildTurns(period.Start, period.End, spec.StepMonths)
	if len(turns) == 0 {
		period.End = today
		turns = BuildTurns(period.Start, period.End, spec.StepMonths)
	}
	if len(turns) == 0 {
		return model.Period{}, nil, fmt.Errorf("schedule: empty turn calendar for difficulty %q", difficulty)
	}
	return period, turns, nil
}
