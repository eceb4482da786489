package audit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagedesk/voyagedesk/internal/shared"
)

type mockReportSource struct {
	byAction   map[Action]int64
	byEntity   map[string]int64
	entries    []Entry
	callCounts struct {
		countByAction int
	}
}

func (m *mockReportSource) CountByAction(ctx context.Context, start, end time.Time, userID string) (map[Action]int64, error) {
	m.callCounts.countByAction++
	return m.byAction, nil
}

func (m *mockReportSource) CountByEntityType(ctx context.Context, start, end time.Time, userID string) (map[string]int64, error) {
	return m.byEntity, nil
}

func (m *mockReportSource) ListWindow(ctx context.Context, start, end time.Time, userID string) ([]Entry, error) {
	return m.entries, nil
}

func testSource() *mockReportSource {
	return &mockReportSource{
		byAction: map[Action]int64{ActionCreate: 4, ActionDelete: 1, ActionEmergencyPermission: 1},
		byEntity: map[string]int64{"Booking": 3, "Client": 3},
		entries: []Entry{
			{
				ID: "e1", UserID: "u1", Username: "morgan", Action: ActionCreate,
				EntityType: "Booking", EntityID: "b1", EntityName: "Booking",
				Metadata: Metadata{IP: "10.0.0.9", Method: "POST", At: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)},
			},
		},
	}
}

func TestGenerateComplianceReportSummary(t *testing.T) {
	source := testSource()
	reporter := NewReporter(ReporterConfig{Repo: source})

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	report, err := reporter.GenerateComplianceReport(context.Background(), start, end, "", "SOC2", false, FormatSummary)
	require.NoError(t, err)

	assert.Equal(t, "SOC2", report.Framework)
	assert.Equal(t, int64(6), report.Total)
	assert.Equal(t, int64(1), report.ByAction[ActionEmergencyPermission])
	assert.Empty(t, report.Entries, "summary reports carry no raw entries")
}

func TestGenerateComplianceReportDetailedStripsMetadata(t *testing.T) {
	source := testSource()
	reporter := NewReporter(ReporterConfig{Repo: source})

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	report, err := reporter.GenerateComplianceReport(context.Background(), start, end, "u1", "GDPR", false, FormatDetailed)
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	assert.Empty(t, report.Entries[0].Metadata.IP, "metadata stays out unless requested")
	assert.Empty(t, report.Entries[0].Metadata.Method)
	assert.False(t, report.Entries[0].Metadata.At.IsZero(), "the timestamp always survives")

	source = testSource()
	reporter = NewReporter(ReporterConfig{Repo: source})
	report, err = reporter.GenerateComplianceReport(context.Background(), start, end, "u1", "GDPR", true, FormatDetailed)
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, "10.0.0.9", report.Entries[0].Metadata.IP)
}

func TestGenerateComplianceReportValidation(t *testing.T) {
	reporter := NewReporter(ReporterConfig{Repo: testSource()})
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := reporter.GenerateComplianceReport(ctx, start, start.Add(time.Hour), "", "", false, FormatSummary)
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = reporter.GenerateComplianceReport(ctx, start, start, "", "SOC2", false, FormatSummary)
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = reporter.GenerateComplianceReport(ctx, start, start.Add(time.Hour), "", "SOC2", false, "csv")
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestGetAuditStatisticsCachesInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	source := testSource()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	reporter := NewReporter(ReporterConfig{
		Repo:     source,
		Cache:    client,
		CacheTTL: time.Minute,
		Clock:    func() time.Time { return now },
	})

	stats, err := reporter.GetAuditStatistics(context.Background(), "30d", "SOC2")
	require.NoError(t, err)
	assert.Equal(t, int64(6), stats.Total)
	assert.Equal(t, now.Add(-30*24*time.Hour), stats.Start)
	assert.Equal(t, 1, source.callCounts.countByAction)

	// Second call is served from the cache.
	cached, err := reporter.GetAuditStatistics(context.Background(), "30d", "SOC2")
	require.NoError(t, err)
	assert.Equal(t, stats.Total, cached.Total)
	assert.Equal(t, 1, source.callCounts.countByAction)

	// A different time frame is its own cache key.
	_, err = reporter.GetAuditStatistics(context.Background(), "7d", "SOC2")
	require.NoError(t, err)
	assert.Equal(t, 2, source.callCounts.countByAction)
}

func TestGetAuditStatisticsRejectsUnknownTimeFrame(t *testing.T) {
	reporter := NewReporter(ReporterConfig{Repo: testSource()})

	_, err := reporter.GetAuditStatistics(context.Background(), "12h", "SOC2")
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = reporter.GetAuditStatistics(context.Background(), "30d", "")
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}
