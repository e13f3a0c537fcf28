// Package calendar builds month grids for date pickers.
package calendar

import "time"

// Cell is one day in a 7-column, Sunday-first month grid.
type Cell struct {
	Day     int       `json:"day"`
	InMonth bool      `json:"in_month"`
	Date    time.Time `json:"date"`
}

// Grid returns the cells for the month (month0 is zero-based) including the
// trailing days of the previous month and the leading days of the next one, so
// that len(cells) is a multiple of 7.
func Grid(year, month0 int) []Cell {
	first := time.Date(year, time.Month(month0+1), 1, 0, 0, 0, 0, time.UTC)
	lead := int(first.Weekday())
	n := daysIn(first)

	cells := make([]Cell, 0, 42)
	for i := lead; i > 0; i-- {
		d := first.AddDate(0, 0, -i)
		cells = append(cells, Cell{Day: d.Day(), Date: d})
	}
	for day := 1; day <= n; day++ {
		cells = append(cells, Cell{Day: day, InMonth: true, Date: first.AddDate(0, 0, day-1)})
	}
	next := first.AddDate(0, 1, 0)
	for i := 0; len(cells)%7 != 0; i++ {
		d := next.AddDate(0, 0, i)
		cells = append(cells, Cell{Day: d.Day(), Date: d})
	}
	return cells
}

func daysIn(first time.Time) int {
	return first.AddDate(0, 1, -1).Day()
}
