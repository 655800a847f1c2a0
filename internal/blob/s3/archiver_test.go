package s3blob

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

type fakeBlobWriter struct {
	err         error
	path        string
	data        []byte
	contentType string
	multipart   bool
	partSize    int64
	uploads     int
}

func (f *fakeBlobWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if f.err != nil {
		return f.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.path, f.data, f.contentType = path, b, contentType
	f.uploads++
	return nil
}

func (f *fakeBlobWriter) PutMultipart(_ context.Context, path string, data io.Reader, partSize int64) error {
	if f.err != nil {
		return f.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.path, f.data, f.partSize = path, b, partSize
	f.multipart = true
	f.uploads++
	return nil
}

type fakeHistory struct {
	opps     []domain.ArbitrageOpportunity
	err      error
	from, to time.Time
}

func (f *fakeHistory) ListBetween(_ context.Context, from, to time.Time) ([]domain.ArbitrageOpportunity, error) {
	f.from, f.to = from, to
	return f.opps, f.err
}

type fakeAuditSink struct {
	events  []string
	details []map[string]any
}

func (f *fakeAuditSink) Log(_ context.Context, event string, detail map[string]any) error {
	f.events = append(f.events, event)
	f.details = append(f.details, detail)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func archivedOpp(id string, detectedAt time.Time) domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		ID:         id,
		PairID:     7,
		PairKey:    "myriad:mkt-1:0xcond",
		Direction:  domain.DirectionBuyAmmHedgeBook,
		ProfitUSD:  2.37,
		ROI:        0.063,
		DetectedAt: detectedAt,
		Status:     domain.ExecStatusDetected,
	}
}

func TestArchiveDayUploadsJSONL(t *testing.T) {
	writer := &fakeBlobWriter{}
	detected := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	history := &fakeHistory{opps: []domain.ArbitrageOpportunity{
		archivedOpp("opp-1", detected),
		archivedOpp("opp-2", detected.Add(time.Hour)),
	}}
	audit := &fakeAuditSink{}
	a := NewArchiver(writer, history, audit, discardLogger())

	// A zoned mid-day timestamp still archives its UTC date.
	day := time.Date(2026, 3, 14, 18, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))
	count, err := a.ArchiveDay(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), history.from)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), history.to)

	assert.Equal(t, "opportunities/2026/03/14.jsonl", writer.path)
	assert.Equal(t, contentTypeJSONL, writer.contentType)
	assert.False(t, writer.multipart)

	lines := strings.Split(strings.TrimRight(string(writer.data), "\n"), "\n")
	require.Len(t, lines, 2)
	for i, want := range []string{"opp-1", "opp-2"} {
		var got domain.ArbitrageOpportunity
		require.NoError(t, json.Unmarshal([]byte(lines[i]), &got))
		assert.Equal(t, want, got.ID)
		assert.Equal(t, "myriad:mkt-1:0xcond", got.PairKey)
	}

	require.Equal(t, []string{"archive"}, audit.events)
	detail := audit.details[0]
	assert.Equal(t, writer.path, detail["path"])
	assert.Equal(t, int64(2), detail["count"])
	assert.Equal(t, "2026-03-14", detail["day"])
}

func TestArchiveDayEmptyUploadsNothing(t *testing.T) {
	writer := &fakeBlobWriter{}
	audit := &fakeAuditSink{}
	a := NewArchiver(writer, &fakeHistory{}, audit, discardLogger())

	count, err := a.ArchiveDay(context.Background(), time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, writer.uploads)
	assert.Empty(t, audit.events)
}

func TestArchiveDayQueryFailure(t *testing.T) {
	writer := &fakeBlobWriter{}
	history := &fakeHistory{err: assert.AnError}
	a := NewArchiver(writer, history, nil, discardLogger())

	_, err := a.ArchiveDay(context.Background(), time.Now())
	require.ErrorContains(t, err, "archive query")
	assert.Zero(t, writer.uploads)
}

func TestArchiveDayUploadFailure(t *testing.T) {
	writer := &fakeBlobWriter{err: assert.AnError}
	history := &fakeHistory{opps: []domain.ArbitrageOpportunity{
		archivedOpp("opp-1", time.Now().UTC()),
	}}
	audit := &fakeAuditSink{}
	a := NewArchiver(writer, history, audit, discardLogger())

	_, err := a.ArchiveDay(context.Background(), time.Now())
	require.ErrorContains(t, err, "archive upload")
	assert.Empty(t, audit.events)
}

func TestArchiveDaySwitchesToMultipart(t *testing.T) {
	writer := &fakeBlobWriter{}
	big := archivedOpp("opp-big", time.Now().UTC())
	big.PairKey = strings.Repeat("x", 9<<20)
	history := &fakeHistory{opps: []domain.ArbitrageOpportunity{big}}
	a := NewArchiver(writer, history, nil, discardLogger())

	count, err := a.ArchiveDay(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.True(t, writer.multipart)
	assert.Equal(t, minPartSize, writer.partSize)
}

func TestArchiveDayNilAudit(t *testing.T) {
	writer := &fakeBlobWriter{}
	history := &fakeHistory{opps: []domain.ArbitrageOpportunity{
		archivedOpp("opp-1", time.Now().UTC()),
	}}
	a := NewArchiver(writer, history, nil, discardLogger())

	count, err := a.ArchiveDay(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestNextRunAt(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before the offset runs today",
			now:  time.Date(2026, 3, 14, 0, 5, 0, 0, time.UTC),
			want: time.Date(2026, 3, 14, 0, 10, 0, 0, time.UTC),
		},
		{
			name: "exactly at the offset waits a day",
			now:  time.Date(2026, 3, 14, 0, 10, 0, 0, time.UTC),
			want: time.Date(2026, 3, 15, 0, 10, 0, 0, time.UTC),
		},
		{
			name: "late evening runs next day",
			now:  time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC),
			want: time.Date(2026, 3, 15, 0, 10, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextRunAt(tt.now))
		})
	}
}

func TestRunDailyStopsOnCancel(t *testing.T) {
	a := NewArchiver(&fakeBlobWriter{}, &fakeHistory{}, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := a.RunDaily(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
