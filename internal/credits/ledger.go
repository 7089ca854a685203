// Package credits meters analysis runs against a per-user credit balance
// stored as one document per user.
package credits

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dvloznov/financio/internal/docstore"
	"github.com/dvloznov/financio/internal/domain"
	"github.com/dvloznov/financio/internal/logger"
)

const (
	// FreeTierCredits is the lifetime allowance of a free user.
	FreeTierCredits = 10

	// PaidTierCredits is the allowance granted by the premium tier.
	PaidTierCredits = 50

	maxCASAttempts = 5

	// casBackoff is the base pause between contended attempts; each pause
	// is a random duration up to attempt*casBackoff.
	casBackoff = 20 * time.Millisecond
)

// UpgradeHint is returned to users who ran out of credits.
var UpgradeHint = fmt.Sprintf("Upgrade to premium to get %d additional credits!", PaidTierCredits)

// Ledger document field names.
const (
	fieldTotalCredits = "totalCredits"
	fieldUsedCredits  = "usedCredits"
	fieldIsPaid       = "isPaid"
	fieldLastUsedAt   = "lastUsedAt"
)

var (
	// ErrNotInitialized means the user's ledger entry was never provisioned.
	ErrNotInitialized = errors.New("credits: ledger not initialized")

	// ErrCreditsExhausted means the user has no credits left.
	ErrCreditsExhausted = errors.New("credits: no credits remaining")

	// ErrContention means the entry kept changing under concurrent writers.
	ErrContention = errors.New("credits: too many concurrent updates")
)

// Error is a user-actionable credit failure. Kind is ErrNotInitialized or
// ErrCreditsExhausted; the totals are only meaningful for the latter.
type Error struct {
	Kind         error
	TotalCredits int
	UsedCredits  int
}

func (e *Error) Error() string {
	if errors.Is(e.Kind, ErrCreditsExhausted) {
		return fmt.Sprintf("%v (%d of %d used)", e.Kind, e.UsedCredits, e.TotalCredits)
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error { return e.Kind }

// Status is the balance after a successful deduction or a read.
type Status struct {
	TotalCredits     int  `json:"totalCredits"`
	UsedCredits      int  `json:"usedCredits"`
	RemainingCredits int  `json:"remainingCredits"`
	IsPaid           bool `json:"isPaid"`
}

func statusOf(e domain.CreditLedgerEntry) Status {
	remaining := e.Remaining()
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		TotalCredits:     e.TotalCredits,
		UsedCredits:      e.UsedCredits,
		RemainingCredits: remaining,
		IsPaid:           e.IsPaid,
	}
}

// Ledger reads and conditionally writes credit entries.
type Ledger struct {
	store      docstore.Store
	collection string
	freeTier   int
	now        func() time.Time
}

// NewLedger returns a Ledger over the given collection. freeTier is used
// when a stored entry lacks totalCredits; a non-positive value selects
// FreeTierCredits.
func NewLedger(store docstore.Store, collection string, freeTier int) *Ledger {
	if freeTier <= 0 {
		freeTier = FreeTierCredits
	}
	return &Ledger{
		store:      store,
		collection: collection,
		freeTier:   freeTier,
		now:        time.Now,
	}
}

// CheckAndDeduct spends one credit for userID.
//
// The write is conditioned on the revision the entry was read at. When
// another writer got there first the entry is re-read and the check is
// repeated, so usedCredits can never pass totalCredits. An exhausted or
// missing entry is never written.
func (l *Ledger) CheckAndDeduct(ctx context.Context, userID string) (Status, error) {
	log := logger.FromContext(ctx).With().Str("user_id", userID).Logger()

	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		entry, err := l.read(ctx, userID)
		if err != nil {
			return Status{}, err
		}

		if entry.Remaining() <= 0 {
			return Status{}, &Error{
				Kind:         ErrCreditsExhausted,
				TotalCredits: entry.TotalCredits,
				UsedCredits:  entry.UsedCredits,
			}
		}

		now := l.now()
		_, err = l.store.UpdateDocument(ctx, l.collection, userID, map[string]any{
			fieldUsedCredits: entry.UsedCredits + 1,
			fieldLastUsedAt:  docstore.FormatTime(now),
		}, docstore.IfRevision(entry.Revision))
		if errors.Is(err, docstore.ErrConflict) {
			log.Debug().Int("attempt", attempt).Msg("Credit entry changed concurrently, retrying")
			if attempt == maxCASAttempts {
				break
			}
			if err := sleep(ctx, jitter(attempt)); err != nil {
				return Status{}, fmt.Errorf("CheckAndDeduct: %w", err)
			}
			continue
		}
		if err != nil {
			return Status{}, fmt.Errorf("CheckAndDeduct: update ledger: %w", err)
		}

		entry.UsedCredits++
		entry.LastUsedAt = &now
		return statusOf(entry), nil
	}

	log.Warn().Int("attempts", maxCASAttempts).Msg("Giving up on contended credit entry")
	return Status{}, fmt.Errorf("CheckAndDeduct: %w", ErrContention)
}

func jitter(attempt int) time.Duration {
	return rand.N(time.Duration(attempt) * casBackoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Status returns the current balance without spending anything.
func (l *Ledger) Status(ctx context.Context, userID string) (Status, error) {
	entry, err := l.read(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	return statusOf(entry), nil
}

// Provision creates the user's entry when it does not exist yet. An
// existing entry is returned untouched. created reports whether a new
// entry was written.
func (l *Ledger) Provision(ctx context.Context, userID string, paid bool) (status Status, created bool, err error) {
	total := l.freeTier
	if paid {
		total = PaidTierCredits
	}

	doc, err := l.store.CreateDocument(ctx, l.collection, userID, map[string]any{
		fieldTotalCredits: total,
		fieldUsedCredits:  0,
		fieldIsPaid:       paid,
	})
	if errors.Is(err, docstore.ErrAlreadyExists) {
		status, err := l.Status(ctx, userID)
		return status, false, err
	}
	if err != nil {
		return Status{}, false, fmt.Errorf("Provision: create ledger: %w", err)
	}

	entry, err := l.decode(userID, doc)
	if err != nil {
		return Status{}, false, err
	}
	log := logger.FromContext(ctx)
	log.Info().Str("user_id", userID).Int("total_credits", total).Msg("Provisioned credit ledger")
	return statusOf(entry), true, nil
}

func (l *Ledger) read(ctx context.Context, userID string) (domain.CreditLedgerEntry, error) {
	doc, err := l.store.GetDocument(ctx, l.collection, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.CreditLedgerEntry{}, &Error{Kind: ErrNotInitialized}
	}
	if err != nil {
		return domain.CreditLedgerEntry{}, fmt.Errorf("read ledger: %w", err)
	}
	return l.decode(userID, doc)
}

// decode validates a stored entry, filling the documented defaults for
// absent fields.
func (l *Ledger) decode(userID string, doc docstore.Document) (domain.CreditLedgerEntry, error) {
	entry := domain.CreditLedgerEntry{
		UserID:   userID,
		Revision: doc.Revision,
	}

	total, ok, err := docstore.Int(doc.Fields, fieldTotalCredits)
	if err != nil {
		return entry, fmt.Errorf("decode ledger %s: %w", userID, err)
	}
	if !ok {
		total = l.freeTier
	}
	used, _, err := docstore.Int(doc.Fields, fieldUsedCredits)
	if err != nil {
		return entry, fmt.Errorf("decode ledger %s: %w", userID, err)
	}
	if used < 0 {
		return entry, fmt.Errorf("decode ledger %s: negative usedCredits %d", userID, used)
	}
	paid, _, err := docstore.Bool(doc.Fields, fieldIsPaid)
	if err != nil {
		return entry, fmt.Errorf("decode ledger %s: %w", userID, err)
	}
	lastUsed, ok, err := docstore.Time(doc.Fields, fieldLastUsedAt)
	if err != nil {
		return entry, fmt.Errorf("decode ledger %s: %w", userID, err)
	}
	if ok {
		entry.LastUsedAt = &lastUsed
	}

	entry.TotalCredits = total
	entry.UsedCredits = used
	entry.IsPaid = paid
	return entry, nil
}
