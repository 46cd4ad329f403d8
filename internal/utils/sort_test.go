package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSortDates(t *testing.T) {
	dates := []time.Time{day(2020, 3, 1), day(2019, 1, 1), day(2021, 6, 5)}

	assert.Equal(t, []time.Time{day(2019, 1, 1), day(2020, 3, 1), day(2021, 6, 5)}, SortDates(dates, true))
	assert.Equal(t, []time.Time{day(2021, 6, 5), day(2020, 3, 1), day(2019, 1, 1)}, SortDates(dates, false))
}

func TestUniqueDays(t *testing.T) {
	times := []time.Time{
		time.Date(2022, 5, 3, 13, 40, 0, 0, time.UTC),
		time.Date(2022, 5, 1, 13, 40, 0, 0, time.UTC),
		time.Date(2022, 5, 3, 13, 41, 0, 0, time.UTC),
	}
	assert.Equal(t, []time.Time{day(2022, 5, 1), day(2022, 5, 3)}, UniqueDays(times))
}
