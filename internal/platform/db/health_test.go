package db

import (
	"testing"
)

// =========== Pool statistics ===========

func TestPoolStats_HealthyTracksConnections(t *testing.T) {
	cases := []struct {
		name    string
		stats   PoolStats
		healthy bool
	}{
		{
			name: "established pool",
			stats: PoolStats{
				TotalConns: 4, IdleConns: 3, AcquiredConns: 1,
				MaxConns: 10, AcquireCount: 250, AcquireDuration: "1.2s",
				Healthy: true,
			},
			healthy: true,
		},
		{
			name: "no connections yet",
			stats: PoolStats{
				MaxConns: 10, AcquireDuration: "0s",
			},
			healthy: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.stats.Healthy != tc.healthy {
				t.Fatalf("expected healthy=%v, got %+v", tc.healthy, tc.stats)
			}
			if tc.stats.AcquiredConns > tc.stats.TotalConns {
				t.Fatalf("acquired cannot exceed total: %+v", tc.stats)
			}
		})
	}
}
