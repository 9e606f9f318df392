package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

// DefaultArchiveLookback bounds the first execution window after start.
const DefaultArchiveLookback = 24 * time.Hour

// PositionSource lists the current ledger positions.
type PositionSource interface {
	Positions() []domain.Position
}

// Archiver copies the position ledger and the executions completed since the
// previous run to cold storage.
type Archiver struct {
	blob      domain.Archiver
	positions PositionSource
	execs     domain.ExecutionStore // may be nil
	now       func() time.Time
	logger    *slog.Logger

	lastRun time.Time
}

// NewArchiver creates an Archiver whose first execution window starts
// lookback before now.
func NewArchiver(blob domain.Archiver, positions PositionSource, execs domain.ExecutionStore, lookback time.Duration, logger *slog.Logger) *Archiver {
	if lookback <= 0 {
		lookback = DefaultArchiveLookback
	}
	a := &Archiver{
		blob:      blob,
		positions: positions,
		execs:     execs,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "archiver")),
	}
	a.lastRun = a.now().UTC().Add(-lookback)
	return a
}

// Run performs a single archive pass. The execution window only advances
// when it was written successfully, so a failed pass is retried next time.
func (a *Archiver) Run(ctx context.Context) error {
	now := a.now().UTC()

	path, err := a.blob.ArchivePositions(ctx, now, a.positions.Positions())
	if err != nil {
		return fmt.Errorf("archiving positions at %v: %w", now, err)
	}
	if path != "" {
		a.logger.InfoContext(ctx, "archiver: positions archived", slog.String("path", path))
	}

	if a.execs == nil {
		return nil
	}
	execs, err := a.execs.ListBetween(ctx, a.lastRun, now)
	if err != nil {
		return fmt.Errorf("listing executions since %v: %w", a.lastRun, err)
	}
	path, err = a.blob.ArchiveExecutions(ctx, a.lastRun, now, execs)
	if err != nil {
		return fmt.Errorf("archiving executions since %v: %w", a.lastRun, err)
	}
	if path != "" {
		a.logger.InfoContext(ctx, "archiver: executions archived",
			slog.Int("count", len(execs)),
			slog.String("path", path),
			slog.Time("from", a.lastRun),
		)
	}
	a.lastRun = now
	return nil
}

// RunCron runs the archiver on a 5-field cron schedule
// ("minute hour day-of-month month day-of-week") until ctx is cancelled.
// Fields accept "*", lists, ranges and steps, e.g. "*/15 * * * *".
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
	}
	a.logger.InfoContext(ctx, "archiver: cron started", slog.String("cron", cronExpr))

	for {
		next, err := cron.next(a.now().UTC())
		if err != nil {
			return err
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			// Final pass so the ledger at shutdown is kept.
			if err := a.Run(context.WithoutCancel(ctx)); err != nil {
				a.logger.Warn("archiver: final run failed", slog.String("error", err.Error()))
			}
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archiver: run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField is the set of values a field matches; nil means any.
type cronField map[int]bool

func (f cronField) matches(v int) bool {
	return f == nil || f[v]
}

// parseCronField parses "*", "5", "1,15", "9-17", "*/10" or "0-30/5".
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return nil, nil
	}

	out := make(cronField)
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)
		step := 1
		if base, s, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid step %q", s)
			}
			step = n
			part = base
		}

		from, to := lo, hi
		switch {
		case part == "*":
		case strings.Contains(part, "-"):
			a, b, _ := strings.Cut(part, "-")
			var err error
			if from, err = strconv.Atoi(a); err != nil {
				return nil, fmt.Errorf("invalid range start %q", a)
			}
			if to, err = strconv.Atoi(b); err != nil {
				return nil, fmt.Errorf("invalid range end %q", b)
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid cron field value %q: %w", part, err)
			}
			from, to = v, v
			if step > 1 {
				to = hi
			}
		}
		if from < lo || to > hi || from > to {
			return nil, fmt.Errorf("value %q out of range [%d,%d]", part, lo, hi)
		}
		for v := from; v <= to; v += step {
			out[v] = true
		}
	}
	return out, nil
}

type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

func (c parsedCron) matchesTime(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dayOfMonth.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dayOfWeek.matches(int(t.Weekday()))
}

func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	names := [5]string{"minute", "hour", "day-of-month", "month", "day-of-week"}
	var parsed [5]cronField
	for i, f := range fields {
		cf, err := parseCronField(f, bounds[i][0], bounds[i][1])
		if err != nil {
			return parsedCron{}, fmt.Errorf("parsing %s field: %w", names[i], err)
		}
		parsed[i] = cf
	}

	return parsedCron{
		minute:     parsed[0],
		hour:       parsed[1],
		dayOfMonth: parsed[2],
		month:      parsed[3],
		dayOfWeek:  parsed[4],
	}, nil
}

// next returns the first minute strictly after 'after' that matches,
// searching up to one year ahead.
func (c parsedCron) next(after time.Time) (time.Time, error) {
	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if c.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching cron time within one year")
}

// ValidateCron reports whether expr is a usable schedule.
func ValidateCron(expr string) error {
	_, err := parseCron(expr)
	return err
}
