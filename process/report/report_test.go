package report

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthRange(t *testing.T) {
	start, end, err := MonthRange("2026-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), end)

	for _, bad := range []string{"", "2026", "2026-13", "02-2026"} {
		_, _, err := MonthRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestReportNet(t *testing.T) {
	r := Report{Totals: []KindTotal{
		{Kind: "expense", Count: 2, TotalMinor: 155000},
		{Kind: "income", Count: 1, TotalMinor: 500000},
	}}
	assert.Equal(t, int64(345000), r.Net())
}

func TestReportWrite(t *testing.T) {
	r := Report{
		Username: "alice",
		Month:    "2026-09",
		Totals:   []KindTotal{{Kind: "expense", Count: 1, TotalMinor: 155000}},
		Items: []Item{{
			ID: 7, Date: time.Date(2026, 9, 25, 0, 0, 0, 0, time.UTC),
			Kind: "expense", Amount: "1550.00", Category: "Groceries",
		}},
	}
	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf))
	out := buf.String()

	assert.Contains(t, out, "Report for user=alice month=2026-09 (UTC)")
	assert.Contains(t, out, "records=1")
	assert.Contains(t, out, "total=1550.00")
	assert.Contains(t, out, "-1550.00")
	assert.Regexp(t, `7\s+2026-09-25\s+expense\s+1550.00\s+Groceries\s+-\s+false`, out)
}

func TestReportWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Report{Username: "bob", Month: "2026-01"}).Write(&buf))
	assert.Contains(t, buf.String(), "no transactions")
	assert.NotContains(t, buf.String(), "CONFIRMED")
}

// Runs against DB_DSN when DB_DSN_TEST=1; the schema comes from the
// service's migrate command.
func TestBuild_Postgres(t *testing.T) {
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	ctx := context.Background()
	db, err := Open(ctx, os.Getenv("DB_DSN"))
	require.NoError(t, err)
	defer db.Close()

	_, err = Build(ctx, db, Options{Username: "no-such-user-" + time.Now().Format("150405.000"), Month: "2026-01"})
	require.ErrorIs(t, err, ErrUnknownUser)
}
