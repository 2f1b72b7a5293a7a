package ocr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDateLabelled(t *testing.T) {
	e := DateExtractor{Now: fixedClock}
	got := e.Extract("KEELLS\nDate: 2026-09-25 10:15\nTOTAL 100.00")
	require.NotNil(t, got)
	assert.True(t, day(2026, time.September, 25).Equal(*got), "got %v", got)
}

func TestDateDayFirst(t *testing.T) {
	e := DateExtractor{Now: fixedClock}
	got := e.Extract("25/09/2026")
	require.NotNil(t, got)
	assert.True(t, day(2026, time.September, 25).Equal(*got), "got %v", got)
}

func TestDateNumericIsDayFirst(t *testing.T) {
	e := DateExtractor{Now: fixedClock}
	cases := map[string]time.Time{
		"05/03/2026":       day(2026, time.March, 5),
		"11/10/2026":       day(2026, time.October, 11),
		"Date: 03.10.2026": day(2026, time.October, 3),
		"Date: 01-09-26":   day(2026, time.September, 1),
	}
	for text, want := range cases {
		got := e.Extract(text)
		require.NotNil(t, got, text)
		assert.True(t, want.Equal(*got), "%s gave %v", text, got)
	}
}

func TestDateMonthFirstFallback(t *testing.T) {
	e := DateExtractor{Now: fixedClock}
	got := e.Extract("09/25/2026")
	require.NotNil(t, got)
	assert.True(t, day(2026, time.September, 25).Equal(*got), "got %v", got)
}

func TestDateNamedMonth(t *testing.T) {
	e := DateExtractor{Now: fixedClock}
	for _, text := range []string{"12 Sep 2026", "12th September, 2026", "Sep 12, 2026", "12-Sep-26"} {
		got := e.Extract(text)
		require.NotNil(t, got, text)
		assert.True(t, day(2026, time.September, 12).Equal(*got), "%s gave %v", text, got)
	}
}

func TestDateRejectsStaleAndContinues(t *testing.T) {
	e := DateExtractor{Now: fixedClock}
	assert.Nil(t, e.Extract("Date: 16/10/2024"))

	got := e.Extract("Date: 16/10/2024\nPrinted 25/09/2026")
	require.NotNil(t, got)
	assert.True(t, day(2026, time.September, 25).Equal(*got), "got %v", got)
}

func TestDateRejectsFuture(t *testing.T) {
	e := DateExtractor{Now: fixedClock}
	assert.Nil(t, e.Extract("Date: 20/12/2026"))
	assert.Nil(t, e.Extract("no date here"))
}

func TestDateWindowEdges(t *testing.T) {
	e := DateExtractor{Now: fixedClock}
	got := e.Extract("17/10/2025")
	require.NotNil(t, got)
	assert.Nil(t, e.Extract("15/10/2025"))
}
