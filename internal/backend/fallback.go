package backend

import (
	"context"
	"sync"

	"github.com/banshee-data/anpr.dashboard/internal/monitoring"
)

// FallbackStats is the sample snapshot shown when /api/v1/stats fails.
func FallbackStats() Stats {
	return Stats{
		TotalInferences:   1234,
		AvgConfidence:     87,
		OCRFailureRate:    12,
		AvgProcessingTime: 145,
	}
}

// FallbackRecentDetections is the sample table shown when
// /api/v1/recent-detections fails.
func FallbackRecentDetections() []RecentDetection {
	return []RecentDetection{
		{Plate: "ABC123", Confidence: 94, Status: "Success", Timestamp: "2024-01-15 14:30:22"},
		{Plate: "XYZ789", Confidence: 87, Status: "Success", Timestamp: "2024-01-15 14:28:15"},
		{Plate: "DEF456", Confidence: 72, Status: "Success", Timestamp: "2024-01-15 14:25:43"},
		{Plate: "GHI789", Confidence: 45, Status: "Failed", Timestamp: "2024-01-15 14:22:18"},
		{Plate: "JKL012", Confidence: 91, Status: "Success", Timestamp: "2024-01-15 14:20:05"},
	}
}

// Snapshot is the analytics data for one dashboard render. The Sample flags
// mark parts that came from the fallback rather than the backend.
type Snapshot struct {
	Stats        Stats
	Recent       []RecentDetection
	StatsSample  bool
	RecentSample bool
}

// UsingSample reports whether any part of the snapshot is sample data.
func (s Snapshot) UsingSample() bool {
	return s.StatsSample || s.RecentSample
}

// LoadDashboardData fetches stats and recent detections concurrently. Any
// failure is logged and replaced by the fallback; it never returns an error.
func LoadDashboardData(ctx context.Context, c *Client) Snapshot {
	var (
		wg   sync.WaitGroup
		snap Snapshot
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		stats, err := c.GetStats(ctx)
		if err != nil {
			monitoring.Warnf("stats unavailable, showing sample data: %v", err)
			snap.Stats, snap.StatsSample = FallbackStats(), true
			return
		}
		snap.Stats = stats
	}()
	go func() {
		defer wg.Done()
		recent, err := c.GetRecentDetections(ctx)
		if err != nil {
			monitoring.Warnf("recent detections unavailable, showing sample data: %v", err)
			snap.Recent, snap.RecentSample = FallbackRecentDetections(), true
			return
		}
		snap.Recent = recent
	}()
	wg.Wait()

	return snap
}
