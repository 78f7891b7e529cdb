package domain

import "time"

// ExperimentStatus tracks the lifecycle of an experiment run.
type ExperimentStatus string

const (
	StatusPending   ExperimentStatus = "pending"
	StatusRunning   ExperimentStatus = "running"
	StatusCompleted ExperimentStatus = "completed"
	StatusFailed    ExperimentStatus = "failed"
)

// IsTerminal reports whether the experiment can no longer progress.
func (s ExperimentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task describes the ML problem an experiment works on.
type Task struct {
	Goal    string `json:"goal" yaml:"goal"`
	Eval    string `json:"eval,omitempty" yaml:"eval,omitempty"`
	DataDir string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`
}

// Description renders the task as the text handed to the agent.
func (t Task) Description() string {
	desc := "## Goal\n" + t.Goal + "\n"
	if t.Eval != "" {
		desc += "\n## Evaluation metric\n" + t.Eval + "\n"
	}
	return desc
}

// Experiment is the persisted record of one search run.
type Experiment struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Task        Task             `json:"task"`
	Status      ExperimentStatus `json:"status"`
	CurrentStep int              `json:"current_step"`
	TotalSteps  int              `json:"total_steps"`
	Progress    float64          `json:"progress"`

	BestNodeID   string   `json:"best_node_id,omitempty"`
	BestMetric   *float64 `json:"best_metric,omitempty"`
	BestCode     string   `json:"best_code,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`

	Config  map[string]any  `json:"config,omitempty"`
	Journal JournalSnapshot `json:"journal"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RecordBest copies the best good node of the journal into the record.
func (e *Experiment) RecordBest(j *Journal) {
	best := j.BestNode(true)
	if best == nil {
		return
	}
	e.BestNodeID = best.ID
	e.BestCode = best.Code
	if v, ok := best.Metric.Value(); ok {
		e.BestMetric = &v
	}
}

// Clone returns a copy that shares no mutable state with e.
// Journal nodes are copied by value; their pointer fields are never mutated
// after review.
func (e *Experiment) Clone() *Experiment {
	c := *e
	if e.BestMetric != nil {
		v := *e.BestMetric
		c.BestMetric = &v
	}
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		c.CompletedAt = &t
	}
	if e.Config != nil {
		c.Config = make(map[string]any, len(e.Config))
		for k, v := range e.Config {
			c.Config[k] = v
		}
	}
	c.Journal.Nodes = append([]Node(nil), e.Journal.Nodes...)
	return &c
}
