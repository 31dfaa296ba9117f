package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"maintenance-service/internal/cache"
	"maintenance-service/internal/model"
	"maintenance-service/internal/repository"
	"maintenance-service/pkg/logger"
	"maintenance-service/prometheus"

	"go.uber.org/zap"
)

// AnalyticsAggregator computes read-only rollups over contract and visit
// state. Results are cached for a short window per tenant and scope; the
// aggregator never mutates domain data.
type AnalyticsAggregator struct {
	store  repository.Store
	scopes *ScopeResolver
	cache  cache.Cache
	ttl    time.Duration
	now    func() time.Time
}

// NewAnalyticsAggregator creates an aggregator caching results for ttl
func NewAnalyticsAggregator(store repository.Store, scopes *ScopeResolver, c cache.Cache, ttl time.Duration) *AnalyticsAggregator {
	return &AnalyticsAggregator{store: store, scopes: scopes, cache: c, ttl: ttl, now: time.Now}
}

// Contract health buckets, in evaluation priority order: expiry checks take
// precedence over completion-rate checks.
const (
	HealthExpired  = "expired"
	HealthCritical = "critical"
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthPoor     = "poor"
)

// ContractHealth is the per-contract rollup
type ContractHealth struct {
	ContractID      uint    `json:"contract_id"`
	Status          string  `json:"status"`
	TotalVisits     int     `json:"total_visits"`
	CompletedVisits int     `json:"completed_visits"`
	CompletionRate  float64 `json:"completion_rate"`
	Bucket          string  `json:"bucket"`
}

// ContractHealthReport aggregates contract state for a tenant scope
type ContractHealthReport struct {
	ByStatus     map[string]int   `json:"by_status"`
	Expired      int              `json:"expired"`
	ExpiringSoon int              `json:"expiring_soon"` // end_date within 30 days
	Buckets      map[string]int   `json:"buckets"`
	Contracts    []ContractHealth `json:"contracts"`
}

// SLAReport covers visit service levels over a date range
type SLAReport struct {
	From               time.Time `json:"from"`
	To                 time.Time `json:"to"`
	TotalVisits        int       `json:"total_visits"`
	CompletedVisits    int       `json:"completed_visits"`
	OverdueVisits      int       `json:"overdue_visits"`
	OnTimeRate         float64   `json:"on_time_rate"`
	AvgResponseMinutes float64   `json:"avg_response_minutes"`
	AvgDurationMinutes float64   `json:"avg_duration_minutes"`
}

// TechnicianPerformance is the per-technician rollup
type TechnicianPerformance struct {
	TechnicianID    uint    `json:"technician_id"`
	TotalVisits     int     `json:"total_visits"`
	CompletedVisits int     `json:"completed_visits"`
	CompletionRate  float64 `json:"completion_rate"`
	AvgRating       float64 `json:"avg_rating"`
	TotalRevenue    float64 `json:"total_revenue"`
}

func scopeKey(scope model.AccessScope) string {
	if scope.Unrestricted {
		return "all"
	}
	if len(scope.BranchIDs) == 0 {
		return "none"
	}
	ids := append([]uint(nil), scope.BranchIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}

// cached runs compute on a cache miss and stores the JSON-encoded result.
// Cache failures are logged and treated as misses; they never fail a report.
func cached[T any](ctx context.Context, a *AnalyticsAggregator, key string, out *T, compute func() (T, error)) error {
	if data, ok, err := a.cache.Get(ctx, key); err == nil && ok {
		if err := json.Unmarshal(data, out); err == nil {
			prometheus.RecordAnalyticsCache(true)
			return nil
		}
	} else if err != nil {
		logger.FromContext(ctx).Warn("Analytics cache read failed", zap.String("key", key), zap.Error(err))
	}
	prometheus.RecordAnalyticsCache(false)

	result, err := compute()
	if err != nil {
		return err
	}
	*out = result

	if data, err := json.Marshal(result); err == nil {
		if err := a.cache.Set(ctx, key, data, a.ttl); err != nil {
			logger.FromContext(ctx).Warn("Analytics cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

// ContractHealthReport rolls up contract status, expiry and completion rates
func (a *AnalyticsAggregator) ContractHealthReport(ctx context.Context, actor model.Actor) (*ContractHealthReport, error) {
	scope, err := a.scopes.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("analytics:health:tenant:%d:scope:%s", actor.TenantID, scopeKey(scope))

	var report ContractHealthReport
	err = cached(ctx, a, key, &report, func() (ContractHealthReport, error) {
		return a.computeContractHealth(ctx, actor.TenantID, scope)
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (a *AnalyticsAggregator) computeContractHealth(ctx context.Context, tenantID uint, scope model.AccessScope) (ContractHealthReport, error) {
	report := ContractHealthReport{
		ByStatus: map[string]int{},
		Buckets:  map[string]int{},
	}

	contracts, err := a.store.Contracts().List(ctx, tenantID, scope, "")
	if err != nil {
		return report, err
	}

	today := model.DateOnly(a.now())
	soon := today.AddDate(0, 0, 30)
	critical := today.AddDate(0, 0, 7)

	for _, contract := range contracts {
		report.ByStatus[string(contract.Status)]++

		visits, err := a.store.Visits().ListByContract(ctx, contract.ID)
		if err != nil {
			return report, err
		}
		completed := 0
		for _, v := range visits {
			if v.Status == model.VisitCompleted {
				completed++
			}
		}
		rate := 1.0
		if len(visits) > 0 {
			rate = float64(completed) / float64(len(visits))
		}

		expired := contract.EndDate != nil && contract.EndDate.Before(today)
		expiringSoon := contract.EndDate != nil && !expired && !contract.EndDate.After(soon)
		if expired {
			report.Expired++
		}
		if expiringSoon {
			report.ExpiringSoon++
		}

		// Bucket priority: expiry state first, then completion rate.
		var bucket string
		switch {
		case expired:
			bucket = HealthExpired
		case contract.EndDate != nil && contract.EndDate.Before(critical):
			bucket = HealthCritical
		case rate >= 0.8:
			bucket = HealthHealthy
		case rate >= 0.6:
			bucket = HealthWarning
		default:
			bucket = HealthPoor
		}
		report.Buckets[bucket]++

		report.Contracts = append(report.Contracts, ContractHealth{
			ContractID:      contract.ID,
			Status:          string(contract.Status),
			TotalVisits:     len(visits),
			CompletedVisits: completed,
			CompletionRate:  rate,
			Bucket:          bucket,
		})
	}

	sort.Slice(report.Contracts, func(i, j int) bool {
		return report.Contracts[i].ContractID < report.Contracts[j].ContractID
	})
	return report, nil
}

// SLAReport computes visit service levels over [from, to]
func (a *AnalyticsAggregator) SLAReport(ctx context.Context, actor model.Actor, from, to time.Time) (*SLAReport, error) {
	scope, err := a.scopes.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("analytics:sla:tenant:%d:scope:%s:%s:%s",
		actor.TenantID, scopeKey(scope),
		model.DateOnly(from).Format("2006-01-02"), model.DateOnly(to).Format("2006-01-02"))

	var report SLAReport
	err = cached(ctx, a, key, &report, func() (SLAReport, error) {
		return a.computeSLA(ctx, actor.TenantID, scope, from, to)
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (a *AnalyticsAggregator) computeSLA(ctx context.Context, tenantID uint, scope model.AccessScope, from, to time.Time) (SLAReport, error) {
	report := SLAReport{From: model.DateOnly(from), To: model.DateOnly(to)}

	visits, err := a.store.Visits().List(ctx, tenantID, scope, &from, &to)
	if err != nil {
		return report, err
	}

	today := model.DateOnly(a.now())
	onTime := 0
	var responseTotal, durationTotal time.Duration
	responseCount, durationCount := 0, 0

	for _, v := range visits {
		report.TotalVisits++
		switch {
		case v.Status == model.VisitCompleted:
			report.CompletedVisits++
			// On time = completed at or before the scheduled day.
			if v.ActualEndTime != nil && !model.DateOnly(*v.ActualEndTime).After(model.DateOnly(v.ScheduledDate)) {
				onTime++
			}
		case v.Status == model.VisitScheduled && model.DateOnly(v.ScheduledDate).Before(today):
			report.OverdueVisits++
		}
		if v.ActualStartTime != nil {
			responseTotal += v.ActualStartTime.Sub(model.DateOnly(v.ScheduledDate))
			responseCount++
		}
		if v.ActualStartTime != nil && v.ActualEndTime != nil {
			durationTotal += v.ActualEndTime.Sub(*v.ActualStartTime)
			durationCount++
		}
	}

	if report.CompletedVisits > 0 {
		report.OnTimeRate = float64(onTime) / float64(report.CompletedVisits)
	}
	if responseCount > 0 {
		report.AvgResponseMinutes = responseTotal.Minutes() / float64(responseCount)
	}
	if durationCount > 0 {
		report.AvgDurationMinutes = durationTotal.Minutes() / float64(durationCount)
	}
	return report, nil
}

// TechnicianReport computes per-technician visit performance
func (a *AnalyticsAggregator) TechnicianReport(ctx context.Context, actor model.Actor) ([]TechnicianPerformance, error) {
	scope, err := a.scopes.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("analytics:technicians:tenant:%d:scope:%s", actor.TenantID, scopeKey(scope))

	var report []TechnicianPerformance
	err = cached(ctx, a, key, &report, func() ([]TechnicianPerformance, error) {
		return a.computeTechnicians(ctx, actor.TenantID, scope)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (a *AnalyticsAggregator) computeTechnicians(ctx context.Context, tenantID uint, scope model.AccessScope) ([]TechnicianPerformance, error) {
	visits, err := a.store.Visits().List(ctx, tenantID, scope, nil, nil)
	if err != nil {
		return nil, err
	}

	type acc struct {
		total, completed, ratings int
		ratingSum                 int
		revenue                   float64
	}
	byTech := map[uint]*acc{}
	for _, v := range visits {
		if v.AssignedTechnicianID == nil {
			continue
		}
		id := *v.AssignedTechnicianID
		entry := byTech[id]
		if entry == nil {
			entry = &acc{}
			byTech[id] = entry
		}
		entry.total++
		if v.Status == model.VisitCompleted {
			entry.completed++
			entry.revenue += v.TotalCost
		}
		if v.CustomerRating != nil {
			entry.ratings++
			entry.ratingSum += *v.CustomerRating
		}
	}

	report := make([]TechnicianPerformance, 0, len(byTech))
	for id, entry := range byTech {
		perf := TechnicianPerformance{
			TechnicianID:    id,
			TotalVisits:     entry.total,
			CompletedVisits: entry.completed,
			TotalRevenue:    entry.revenue,
		}
		if entry.total > 0 {
			perf.CompletionRate = float64(entry.completed) / float64(entry.total)
		}
		if entry.ratings > 0 {
			perf.AvgRating = float64(entry.ratingSum) / float64(entry.ratings)
		}
		report = append(report, perf)
	}
	sort.Slice(report, func(i, j int) bool { return report[i].TechnicianID < report[j].TechnicianID })
	return report, nil
}
