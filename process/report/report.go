// Package report prints a month of a user's transactions straight from
// the Postgres tables.
package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/jinzhu/now"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// ErrUnknownUser is returned when the username has no row in users.
var ErrUnknownUser = errors.New("user not found")

// Options select what to report.
type Options struct {
	Username string
	// Month is YYYY-MM, interpreted in UTC.
	Month         string
	List          bool
	ConfirmedOnly bool
}

// KindTotal sums one transaction kind over the month.
type KindTotal struct {
	Kind       string
	Count      int64
	TotalMinor int64
}

// Item is one listed transaction.
type Item struct {
	ID        uint
	Date      time.Time
	Kind      string
	Amount    string
	Category  string
	Merchant  string
	Confirmed bool
}

// Report is a month of one user's transactions.
type Report struct {
	Username string
	Month    string
	Totals   []KindTotal
	Items    []Item
}

// Open connects to Postgres through lib/pq and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// MonthRange returns the UTC [start, end) bounds of a YYYY-MM month.
func MonthRange(month string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01", month, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month %q, expected YYYY-MM", month)
	}
	start := now.With(t).BeginningOfMonth()
	return start, start.AddDate(0, 1, 0), nil
}

// Build queries the report for opts.
func Build(ctx context.Context, db *sql.DB, opts Options) (*Report, error) {
	start, end, err := MonthRange(opts.Month)
	if err != nil {
		return nil, err
	}
	var userID uint
	err = db.QueryRowContext(ctx, `SELECT id FROM users WHERE username = $1 AND deleted_at IS NULL`, opts.Username).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, opts.Username)
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}

	where := `user_id = $1 AND date >= $2 AND date < $3`
	if opts.ConfirmedOnly {
		where += ` AND confirmed`
	}
	rep := &Report{Username: opts.Username, Month: opts.Month}

	rows, err := db.QueryContext(ctx, `SELECT kind, COUNT(*), COALESCE(SUM(amount_minor),0) FROM transactions WHERE `+where+` GROUP BY kind ORDER BY kind`, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kt KindTotal
		if err := rows.Scan(&kt.Kind, &kt.Count, &kt.TotalMinor); err != nil {
			return nil, err
		}
		rep.Totals = append(rep.Totals, kt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !opts.List {
		return rep, nil
	}
	items, err := db.QueryContext(ctx, `SELECT id, date, kind, amount, COALESCE(category,''), COALESCE(merchant,''), confirmed FROM transactions WHERE `+where+` ORDER BY date, id`, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer items.Close()
	for items.Next() {
		var it Item
		if err := items.Scan(&it.ID, &it.Date, &it.Kind, &it.Amount, &it.Category, &it.Merchant, &it.Confirmed); err != nil {
			return nil, err
		}
		rep.Items = append(rep.Items, it)
	}
	return rep, items.Err()
}

// Net is income minus expenses in minor units.
func (r *Report) Net() int64 {
	var net int64
	for _, t := range r.Totals {
		if t.Kind == "income" {
			net += t.TotalMinor
		} else {
			net -= t.TotalMinor
		}
	}
	return net
}

// Write renders the report as aligned text.
func (r *Report) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Report for user=%s month=%s (UTC)\n", r.Username, r.Month)
	if len(r.Totals) == 0 {
		fmt.Fprintln(tw, "  no transactions")
	}
	for _, t := range r.Totals {
		fmt.Fprintf(tw, "  %s\trecords=%d\ttotal=%s\n", t.Kind, t.Count, money(t.TotalMinor))
	}
	fmt.Fprintf(tw, "  net\t\t%s\n", money(r.Net()))
	if len(r.Items) > 0 {
		fmt.Fprintln(tw, "\nID\tDATE\tKIND\tAMOUNT\tCATEGORY\tMERCHANT\tCONFIRMED")
		for _, it := range r.Items {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%t\n",
				it.ID, it.Date.UTC().Format("2006-01-02"), it.Kind, it.Amount, dash(it.Category), dash(it.Merchant), it.Confirmed)
		}
	}
	return tw.Flush()
}

func money(minor int64) string { return decimal.New(minor, -2).StringFixed(2) }

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
