package model

import "time"

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunSkipped   RunStatus = "skipped"
)

// RunRecord 注册表中的一次运行
type RunRecord struct {
	ID         string    `json:"id" firestore:"id"`
	Key        string    `json:"key" firestore:"key"` // 影响结果的配置的 sha256
	RunDir     string    `json:"run_dir" firestore:"runDir"`
	StartedAt  time.Time `json:"started_at" firestore:"startedAt"`
	FinishedAt time.Time `json:"finished_at,omitempty" firestore:"finishedAt,omitempty"`
	Status     RunStatus `json:"status" firestore:"status"`
	Error      string    `json:"error,omitempty" firestore:"error,omitempty"`
	Overrides  []string  `json:"overrides" firestore:"overrides"`
}
