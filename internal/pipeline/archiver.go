package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/imperfectform/predictbot/internal/domain"
)

// AuditArchiver snapshots the audit log to cold storage on a cron schedule.
type AuditArchiver struct {
	archiver      domain.Archiver
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger
}

func NewAuditArchiver(archiver domain.Archiver, retentionDays int, now func() time.Time, logger *slog.Logger) *AuditArchiver {
	if now == nil {
		now = time.Now
	}
	return &AuditArchiver{
		archiver:      archiver,
		retentionDays: retentionDays,
		now:           now,
		logger:        logger.With(slog.String("component", "audit_archiver")),
	}
}

// Run archives audit entries older than the retention cutoff.
func (a *AuditArchiver) Run(ctx context.Context) (string, error) {
	cutoff := a.now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	key, err := a.archiver.ArchiveAudit(ctx, cutoff)
	if err != nil {
		return "", fmt.Errorf("pipeline: archive audit before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if key == "" {
		a.logger.Info("no audit entries to archive", slog.Time("cutoff", cutoff))
	} else {
		a.logger.Info("audit archived", slog.Time("cutoff", cutoff), slog.String("key", key))
	}
	return key, nil
}

// RunCron runs the archiver on a five-field cron schedule
// ("minute hour day-of-month month day-of-week") until ctx is done.
func (a *AuditArchiver) RunCron(ctx context.Context, expr string) error {
	sched, err := parseCron(expr)
	if err != nil {
		return fmt.Errorf("pipeline: cron %q: %w", expr, err)
	}
	a.logger.Info("audit archiver scheduled", slog.String("cron", expr))

	for {
		next, ok := sched.next(a.now().UTC())
		if !ok {
			return fmt.Errorf("pipeline: cron %q never fires within a year", expr)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.Error("audit archive failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField matches a set of values; nil means any.
type cronField map[int]bool

func (f cronField) matches(v int) bool { return f == nil || f[v] }

type cronSchedule struct {
	minute, hour, dom, month, dow cronField
}

func (s cronSchedule) matches(t time.Time) bool {
	return s.minute.matches(t.Minute()) &&
		s.hour.matches(t.Hour()) &&
		s.dom.matches(t.Day()) &&
		s.month.matches(int(t.Month())) &&
		s.dow.matches(int(t.Weekday()))
}

// next returns the first matching minute strictly after t, searching one
// year ahead.
func (s cronSchedule) next(t time.Time) (time.Time, bool) {
	candidate := t.Truncate(time.Minute).Add(time.Minute)
	limit := t.Add(366 * 24 * time.Hour)
	for ; candidate.Before(limit); candidate = candidate.Add(time.Minute) {
		if s.matches(candidate) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

func parseCron(expr string) (cronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return cronSchedule{}, fmt.Errorf("want 5 fields, got %d", len(fields))
	}
	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	var parsed [5]cronField
	for i, f := range fields {
		cf, err := parseCronField(f, bounds[i][0], bounds[i][1])
		if err != nil {
			return cronSchedule{}, fmt.Errorf("field %d %q: %w", i+1, f, err)
		}
		parsed[i] = cf
	}
	return cronSchedule{minute: parsed[0], hour: parsed[1], dom: parsed[2], month: parsed[3], dow: parsed[4]}, nil
}

// parseCronField accepts "*", "*/step", "a", "a-b", "a-b/step", and
// comma-separated lists of those.
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return nil, nil
	}
	out := cronField{}
	for _, part := range strings.Split(field, ",") {
		step := 1
		if rng, s, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("bad step %q", s)
			}
			part, step = rng, n
		}
		from, to := lo, hi
		if part != "*" {
			a, b, isRange := strings.Cut(part, "-")
			var err error
			if from, err = strconv.Atoi(a); err != nil {
				return nil, fmt.Errorf("bad value %q", a)
			}
			to = from
			if isRange {
				if to, err = strconv.Atoi(b); err != nil {
					return nil, fmt.Errorf("bad value %q", b)
				}
			}
		}
		if from < lo || to > hi || from > to {
			return nil, fmt.Errorf("%d-%d outside %d-%d", from, to, lo, hi)
		}
		for v := from; v <= to; v += step {
			out[v] = true
		}
	}
	return out, nil
}
