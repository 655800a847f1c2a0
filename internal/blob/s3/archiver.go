package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

// Archive layout and sizing.
const (
	// multipartThreshold is the payload size above which uploads switch to
	// the multipart path.
	multipartThreshold = 8 * 1024 * 1024

	contentTypeJSONL = "application/x-ndjson"

	// dailyRunOffset delays each run past midnight so the day's last
	// writes have settled in the store.
	dailyRunOffset = 10 * time.Minute
)

// OpportunityHistory is the slice of the opportunity store the archiver
// reads.
type OpportunityHistory interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.ArbitrageOpportunity, error)
}

// AuditLog records completed archive runs. Optional.
type AuditLog interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}

// Archiver uploads each UTC day's opportunity history as one JSONL object.
// Records are never deleted from the primary store here; pruning is a
// separate explicit step once an archive is verified.
type Archiver struct {
	writer domain.BlobWriter
	opps   OpportunityHistory
	audit  AuditLog
	logger *slog.Logger
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, opps OpportunityHistory, audit AuditLog, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		writer: writer,
		opps:   opps,
		audit:  audit,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveDay uploads the opportunity history of day's UTC date to
// opportunities/YYYY/MM/DD.jsonl and returns the record count. An empty
// day uploads nothing.
func (a *Archiver) ArchiveDay(ctx context.Context, day time.Time) (int64, error) {
	day = day.UTC()
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	opps, err := a.opps.ListBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(opps) == 0 {
		a.logger.Info("nothing to archive", slog.String("day", from.Format("2006-01-02")))
		return 0, nil
	}

	buf, err := marshalJSONL(opps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := archivePath(from)
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONL)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	count := int64(len(opps))
	a.logger.Info("day archived",
		slog.String("path", path),
		slog.Int64("records", count),
		slog.Int("bytes", len(buf)))

	if a.audit != nil {
		err := a.audit.Log(ctx, "archive", map[string]any{
			"path":  path,
			"count": count,
			"day":   from.Format("2006-01-02"),
		})
		if err != nil {
			a.logger.Warn("audit log failed", "error", err)
		}
	}
	return count, nil
}

// RunDaily archives the previous UTC day shortly after each midnight
// until ctx is cancelled. A failed run is logged and retried at the next
// midnight; the object key is per-day, so a later manual ArchiveDay can
// fill the gap.
func (a *Archiver) RunDaily(ctx context.Context) error {
	a.logger.Info("daily archiver started")
	for {
		next := nextRunAt(time.Now().UTC())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}

		day := next.AddDate(0, 0, -1)
		if _, err := a.ArchiveDay(ctx, day); err != nil {
			a.logger.Error("archive run failed",
				slog.String("day", day.Format("2006-01-02")),
				slog.String("error", err.Error()))
		}
	}
}

// nextRunAt returns the next midnight-plus-offset after now.
func nextRunAt(now time.Time) time.Time {
	run := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(dailyRunOffset)
	if !run.After(now) {
		run = run.AddDate(0, 0, 1)
	}
	return run
}

// archivePath keys one day's archive: opportunities/2026/03/14.jsonl.
func archivePath(day time.Time) string {
	return fmt.Sprintf("opportunities/%04d/%02d/%02d.jsonl", day.Year(), int(day.Month()), day.Day())
}

// marshalJSONL renders records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
