package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// ReportFormat selects how much detail a compliance report carries.
type ReportFormat string

const (
	FormatSummary  ReportFormat = "summary"
	FormatDetailed ReportFormat = "detailed"
)

// Report aggregates audit entries for a compliance framework.
type Report struct {
	Framework    string            `json:"framework"`
	Start        time.Time         `json:"start"`
	End          time.Time         `json:"end"`
	UserID       string            `json:"userId,omitempty"`
	Total        int64             `json:"total"`
	ByAction     map[Action]int64  `json:"byAction"`
	ByEntityType map[string]int64  `json:"byEntityType"`
	Entries      []Entry           `json:"entries,omitempty"`
	GeneratedAt  time.Time         `json:"generatedAt"`
}

// Stats is a rolling-window aggregate for dashboards.
type Stats struct {
	Framework    string           `json:"framework"`
	TimeFrame    string           `json:"timeFrame"`
	Start        time.Time        `json:"start"`
	End          time.Time        `json:"end"`
	Total        int64            `json:"total"`
	ByAction     map[Action]int64 `json:"byAction"`
	ByEntityType map[string]int64 `json:"byEntityType"`
}

// ReportSource is the repository slice the reporter reads from.
type ReportSource interface {
	CountByAction(ctx context.Context, start, end time.Time, userID string) (map[Action]int64, error)
	CountByEntityType(ctx context.Context, start, end time.Time, userID string) (map[string]int64, error)
	ListWindow(ctx context.Context, start, end time.Time, userID string) ([]Entry, error)
}

// Reporter produces compliance reports and cached rolling statistics.
type Reporter struct {
	repo   ReportSource
	cache  *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

// ReporterConfig collects reporter dependencies. Cache is optional.
type ReporterConfig struct {
	Repo     ReportSource
	Cache    *redis.Client
	CacheTTL time.Duration
	Logger   *slog.Logger
	Clock    func() time.Time
}

// NewReporter constructs a Reporter.
func NewReporter(cfg ReporterConfig) *Reporter {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{repo: cfg.Repo, cache: cfg.Cache, ttl: ttl, logger: logger, now: now}
}

// GenerateComplianceReport scans the window and returns summary counts; the
// detailed format additionally carries the raw filtered entries, with
// metadata stripped unless explicitly requested.
func (r *Reporter) GenerateComplianceReport(ctx context.Context, start, end time.Time, userID, framework string, includeMetadata bool, format ReportFormat) (*Report, error) {
	if framework == "" {
		return nil, fmt.Errorf("audit: framework is required: %w", shared.ErrInvalidArgument)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("audit: report window must end after it starts: %w", shared.ErrInvalidArgument)
	}
	if format == "" {
		format = FormatSummary
	}
	if format != FormatSummary && format != FormatDetailed {
		return nil, fmt.Errorf("audit: unknown format %q: %w", format, shared.ErrInvalidArgument)
	}

	byAction, err := r.repo.CountByAction(ctx, start, end, userID)
	if err != nil {
		return nil, err
	}
	byEntity, err := r.repo.CountByEntityType(ctx, start, end, userID)
	if err != nil {
		return nil, err
	}
	report := &Report{
		Framework:    framework,
		Start:        start,
		End:          end,
		UserID:       userID,
		ByAction:     byAction,
		ByEntityType: byEntity,
		GeneratedAt:  r.now().UTC(),
	}
	for _, count := range byAction {
		report.Total += count
	}

	if format == FormatDetailed {
		entries, err := r.repo.ListWindow(ctx, start, end, userID)
		if err != nil {
			return nil, err
		}
		if !includeMetadata {
			for i := range entries {
				entries[i].Metadata = Metadata{At: entries[i].Metadata.At}
			}
		}
		report.Entries = entries
	}
	return report, nil
}

// GetAuditStatistics returns the rolling-window aggregate for a time frame
// such as "7d", "30d", or "90d". Results are cached briefly and concurrent
// recomputations for the same key are collapsed.
func (r *Reporter) GetAuditStatistics(ctx context.Context, timeFrame, framework string) (*Stats, error) {
	window, err := parseTimeFrame(timeFrame)
	if err != nil {
		return nil, err
	}
	if framework == "" {
		return nil, fmt.Errorf("audit: framework is required: %w", shared.ErrInvalidArgument)
	}

	key := fmt.Sprintf("audit:stats:%s:%s", framework, timeFrame)
	if cached := r.cachedStats(ctx, key); cached != nil {
		return cached, nil
	}

	value, err, _ := r.group.Do(key, func() (any, error) {
		end := r.now().UTC()
		start := end.Add(-window)
		byAction, err := r.repo.CountByAction(ctx, start, end, "")
		if err != nil {
			return nil, err
		}
		byEntity, err := r.repo.CountByEntityType(ctx, start, end, "")
		if err != nil {
			return nil, err
		}
		stats := &Stats{
			Framework:    framework,
			TimeFrame:    timeFrame,
			Start:        start,
			End:          end,
			ByAction:     byAction,
			ByEntityType: byEntity,
		}
		for _, count := range byAction {
			stats.Total += count
		}
		r.storeStats(ctx, key, stats)
		return stats, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Stats), nil
}

func (r *Reporter) cachedStats(ctx context.Context, key string) *Stats {
	if r.cache == nil {
		return nil
	}
	payload, err := r.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("stats cache read", slog.Any("error", err))
		}
		return nil
	}
	var stats Stats
	if err := json.Unmarshal(payload, &stats); err != nil {
		return nil
	}
	return &stats
}

func (r *Reporter) storeStats(ctx context.Context, key string, stats *Stats) {
	if r.cache == nil {
		return
	}
	payload, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		r.logger.Warn("stats cache write", slog.Any("error", err))
	}
}

func parseTimeFrame(timeFrame string) (time.Duration, error) {
	switch timeFrame {
	case "7d":
		return 7 * 24 * time.Hour, nil
	case "30d":
		return 30 * 24 * time.Hour, nil
	case "90d":
		return 90 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("audit: unknown time frame %q: %w", timeFrame, shared.ErrInvalidArgument)
	}
}
