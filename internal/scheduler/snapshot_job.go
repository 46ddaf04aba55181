package scheduler

import (
	"github.com/teamscryps/backend/internal/modules/snapshot"
)

// DailySnapshotJob writes the end-of-day portfolio rollup for every
// client.
type DailySnapshotJob struct {
	snapshots *snapshot.Service
}

// NewDailySnapshotJob creates the daily snapshot job
func NewDailySnapshotJob(snapshotSvc *snapshot.Service) *DailySnapshotJob {
	return &DailySnapshotJob{snapshots: snapshotSvc}
}

// Name returns the job name
func (j *DailySnapshotJob) Name() string { return "daily_snapshot" }

// Run executes one snapshot pass.
func (j *DailySnapshotJob) Run() error {
	return j.snapshots.RunDaily()
}
