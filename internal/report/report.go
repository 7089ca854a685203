// Package report sends the weekly summary email to every user.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/financio/internal/analysis"
	"github.com/dvloznov/financio/internal/domain"
	"github.com/dvloznov/financio/internal/logger"
	"github.com/dvloznov/financio/internal/mailer"
)

const (
	// Window is the span each report covers.
	Window = 7 * 24 * time.Hour

	// DefaultDashboardURL is linked from every email.
	DefaultDashboardURL = "https://financio.app"

	defaultUserName = "User"
	subjectPrefix   = "📊 Laporan Keuangan Mingguan - "
)

// UserDirectory lists recipients. Satisfied by *history.Directory.
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]domain.UserRecord, error)
}

// TransactionSource reads a user's transactions. Satisfied by *history.Source.
type TransactionSource interface {
	RecentTransactions(ctx context.Context, userID string, since time.Time, limit int) ([]domain.TransactionRecord, error)
}

// Archive keeps a copy of each rendered report. Satisfied by *gcs.ReportArchive.
type Archive interface {
	Save(ctx context.Context, userID string, generatedAt time.Time, html []byte) (string, error)
}

// Job is one weekly report run.
type Job struct {
	users        UserDirectory
	transactions TransactionSource
	mailer       mailer.Mailer
	archive      Archive
	dashboardURL string
	now          func() time.Time
}

// Option configures a Job.
type Option func(*Job)

// WithArchive stores every rendered report in a.
func WithArchive(a Archive) Option {
	return func(j *Job) { j.archive = a }
}

// WithClock overrides the job's clock.
func WithClock(now func() time.Time) Option {
	return func(j *Job) { j.now = now }
}

// WithDashboardURL overrides the dashboard link.
func WithDashboardURL(url string) Option {
	return func(j *Job) { j.dashboardURL = url }
}

// NewJob creates a report job.
func NewJob(users UserDirectory, transactions TransactionSource, m mailer.Mailer, opts ...Option) *Job {
	j := &Job{
		users:        users,
		transactions: transactions,
		mailer:       m,
		dashboardURL: DefaultDashboardURL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Failure is a user whose report could not be sent.
type Failure struct {
	UserID string
	Err    error
}

// Result summarises a run.
type Result struct {
	Users    int
	Sent     int
	Skipped  int
	Failures []Failure
}

// Run sends a report to every user with an email address. Users are
// handled one after another and a failure for one user does not stop the
// others; all failures are joined into the returned error.
func (j *Job) Run(ctx context.Context) (Result, error) {
	log := logger.FromContext(ctx)

	users, err := j.users.ListUsers(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("Run: list users: %w", err)
	}

	res := Result{Users: len(users)}
	now := j.now()
	var errs []error

	for _, user := range users {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if user.Email == "" {
			res.Skipped++
			continue
		}

		if err := j.sendOne(ctx, user, now); err != nil {
			log.Error().Err(err).Str("user_id", user.ID).Msg("Weekly report failed")
			res.Failures = append(res.Failures, Failure{UserID: user.ID, Err: err})
			errs = append(errs, fmt.Errorf("user %s: %w", user.ID, err))
			continue
		}
		res.Sent++
		log.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("Email sent")
	}

	log.Info().
		Int("users", res.Users).
		Int("sent", res.Sent).
		Int("skipped", res.Skipped).
		Int("failed", len(res.Failures)).
		Msg("Weekly report run finished")
	return res, errors.Join(errs...)
}

func (j *Job) sendOne(ctx context.Context, user domain.UserRecord, now time.Time) error {
	txs, err := j.transactions.RecentTransactions(ctx, user.ID, now.Add(-Window), 0)
	if err != nil {
		return fmt.Errorf("fetch transactions: %w", err)
	}

	html, err := j.Render(user, txs)
	if err != nil {
		return err
	}

	err = j.mailer.SendEmail(ctx, mailer.Email{
		MessageID:  uuid.NewString(),
		Subject:    Subject(now),
		HTMLBody:   html,
		Recipients: []string{user.ID},
		IsHTML:     true,
		IsDraft:    false,
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	if j.archive != nil {
		log := logger.FromContext(ctx)
		uri, err := j.archive.Save(ctx, user.ID, now, []byte(html))
		if err != nil {
			log.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to archive weekly report")
		} else {
			log.Debug().Str("user_id", user.ID).Str("uri", uri).Msg("Archived weekly report")
		}
	}
	return nil
}

// Render builds the HTML body for user from txs.
func (j *Job) Render(user domain.UserRecord, txs []domain.TransactionRecord) (string, error) {
	summary := analysis.Aggregate(txs, nil)

	name := user.Name
	if name == "" {
		name = defaultUserName
	}

	lines := make([]string, 0, min(len(txs), maxListedTransactions))
	for _, tx := range txs {
		if len(lines) == maxListedTransactions {
			break
		}
		lines = append(lines, fmt.Sprintf("%s - Rp %s", tx.Description, FormatRupiah(tx.Amount)))
	}

	return renderEmail(emailData{
		UserName:         name,
		Income:           FormatRupiah(summary.TotalIncome),
		Expense:          FormatRupiah(summary.TotalExpense),
		Balance:          FormatRupiah(summary.NetBalance),
		TransactionCount: len(txs),
		Lines:            lines,
		DashboardURL:     j.dashboardURL,
	})
}

// Subject is the email subject for a report sent at t.
func Subject(t time.Time) string {
	return subjectPrefix + t.Format("02 January 2006")
}
