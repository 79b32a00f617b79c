package reelflow

import (
	"fmt"
	"time"
)

// WorkflowStatus represents the current state of a workflow
type WorkflowStatus string

const (
	WorkflowStatusPending         WorkflowStatus = "PENDING"
	WorkflowStatusRunning         WorkflowStatus = "RUNNING"
	WorkflowStatusPartiallyFailed WorkflowStatus = "PARTIALLY_FAILED"
	WorkflowStatusFailed          WorkflowStatus = "FAILED"
	WorkflowStatusCompleted       WorkflowStatus = "COMPLETED"
)

// IsTerminal returns true if no further progress happens without caller action
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed || s == WorkflowStatusPartiallyFailed
}

// Valid reports whether s is a known status
func (s WorkflowStatus) Valid() bool {
	switch s {
	case WorkflowStatusPending, WorkflowStatusRunning, WorkflowStatusPartiallyFailed,
		WorkflowStatusFailed, WorkflowStatusCompleted:
		return true
	}
	return false
}

// String returns the string representation
func (s WorkflowStatus) String() string {
	return string(s)
}

// UnitStatus represents the persisted outcome of a single unit of work
type UnitStatus string

const (
	UnitStatusPending   UnitStatus = "PENDING"
	UnitStatusSucceeded UnitStatus = "SUCCEEDED"
	UnitStatusFailed    UnitStatus = "FAILED"
)

// String returns the string representation
func (s UnitStatus) String() string {
	return string(s)
}

// StageName identifies one phase of the pipeline
type StageName string

const (
	StageScript   StageName = "SCRIPT"
	StageImages   StageName = "IMAGES"
	StageAudio    StageName = "AUDIO"
	StageAssembly StageName = "ASSEMBLY"
)

// DefaultStageOrder is the fixed order a media job moves through
var DefaultStageOrder = []StageName{StageScript, StageImages, StageAudio, StageAssembly}

// String returns the string representation
func (n StageName) String() string {
	return string(n)
}

// StageOutcome is the result reported by a stage executor
type StageOutcome string

const (
	StageNotStarted      StageOutcome = "NOT_STARTED"
	StageInProgress      StageOutcome = "IN_PROGRESS"
	StageSucceeded       StageOutcome = "STAGE_SUCCEEDED"
	StagePartiallyFailed StageOutcome = "STAGE_PARTIALLY_FAILED"
	StageFailed          StageOutcome = "STAGE_FAILED"
)

// String returns the string representation
func (o StageOutcome) String() string {
	return string(o)
}

// WorkflowState is the single source of truth for a job's progress.
// It is what a CheckpointStore persists under workflow/<workflow_id>.
type WorkflowState struct {
	// Identity
	WorkflowID string `json:"workflowId"`

	// Progress
	Status          WorkflowStatus         `json:"status"`
	CurrentStage    StageName              `json:"currentStage"`
	CompletedStages []StageName            `json:"completedStages"`
	TotalUnits      int                    `json:"totalUnits"`
	UnitResults     map[string]*UnitResult `json:"unitResults"`

	// Job input and stage artifacts needed by later stages
	Job    JobSpec         `json:"job"`
	Script *ScriptArtifact `json:"script,omitempty"`
	Output *ArtifactRef    `json:"output,omitempty"`

	// Error handling
	Error *WorkflowError `json:"error,omitempty"`

	// Timing
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UnitResult tracks the outcome of one unit of work within a stage
type UnitResult struct {
	Stage          StageName    `json:"stage"`
	Index          int          `json:"index"`
	Status         UnitStatus   `json:"status"`
	ArtifactRef    *ArtifactRef `json:"artifactRef,omitempty"`
	Attempts       int          `json:"attempts"`
	LastError      string       `json:"lastError,omitempty"`
	Provider       string       `json:"provider,omitempty"`
	ProvidersTried []string     `json:"providersTried,omitempty"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// Succeeded reports whether the unit reached SUCCEEDED
func (r *UnitResult) Succeeded() bool {
	return r != nil && r.Status == UnitStatusSucceeded
}

// UnitKey builds the unique unit_results key for a unit of a stage
func UnitKey(stage StageName, index int) string {
	return fmt.Sprintf("%s#%d", stage, index)
}

// Unit returns the result for a unit, or nil when it has never been recorded
func (s *WorkflowState) Unit(stage StageName, index int) *UnitResult {
	if s.UnitResults == nil {
		return nil
	}
	return s.UnitResults[UnitKey(stage, index)]
}

// HasCompleted reports whether stage is in completed_stages
func (s *WorkflowState) HasCompleted(stage StageName) bool {
	for _, done := range s.CompletedStages {
		if done == stage {
			return true
		}
	}
	return false
}

// StageUnits returns the recorded results of a stage keyed by unit index
func (s *WorkflowState) StageUnits(stage StageName) map[int]*UnitResult {
	units := make(map[int]*UnitResult)
	for _, r := range s.UnitResults {
		if r.Stage == stage {
			units[r.Index] = r
		}
	}
	return units
}

// Clone returns a deep copy so callers can mutate without touching the original
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	c := *s

	if s.CompletedStages != nil {
		c.CompletedStages = append(make([]StageName, 0, len(s.CompletedStages)), s.CompletedStages...)
	}
	if s.UnitResults != nil {
		c.UnitResults = make(map[string]*UnitResult, len(s.UnitResults))
		for k, v := range s.UnitResults {
			c.UnitResults[k] = v.clone()
		}
	}
	c.Job = s.Job.clone()
	if s.Script != nil {
		script := *s.Script
		script.Scenes = append([]Scene(nil), s.Script.Scenes...)
		if s.Script.Ref != nil {
			ref := *s.Script.Ref
			script.Ref = &ref
		}
		c.Script = &script
	}
	if s.Output != nil {
		out := *s.Output
		c.Output = &out
	}
	if s.Error != nil {
		werr := *s.Error
		c.Error = &werr
	}
	return &c
}

func (r *UnitResult) clone() *UnitResult {
	if r == nil {
		return nil
	}
	c := *r
	if r.ArtifactRef != nil {
		ref := *r.ArtifactRef
		c.ArtifactRef = &ref
	}
	if r.ProvidersTried != nil {
		c.ProvidersTried = append([]string(nil), r.ProvidersTried...)
	}
	return &c
}

// WorkflowSummary is the compact view returned by list and status queries
type WorkflowSummary struct {
	WorkflowID      string         `json:"workflowId"`
	Title           string         `json:"title,omitempty"`
	Status          WorkflowStatus `json:"status"`
	CurrentStage    StageName      `json:"currentStage"`
	CompletedStages []StageName    `json:"completedStages"`
	TotalUnits      int            `json:"totalUnits"`
	SucceededUnits  int            `json:"succeededUnits"`
	FailedUnits     int            `json:"failedUnits"`
	Error           *WorkflowError `json:"error,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// Summary condenses the state; unit counts refer to the current stage
func (s *WorkflowState) Summary() WorkflowSummary {
	sum := WorkflowSummary{
		WorkflowID:      s.WorkflowID,
		Title:           s.Job.Title,
		Status:          s.Status,
		CurrentStage:    s.CurrentStage,
		CompletedStages: append(make([]StageName, 0, len(s.CompletedStages)), s.CompletedStages...),
		TotalUnits:      s.TotalUnits,
		Error:           s.Error,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	for _, r := range s.UnitResults {
		if r.Stage != s.CurrentStage {
			continue
		}
		switch r.Status {
		case UnitStatusSucceeded:
			sum.SucceededUnits++
		case UnitStatusFailed:
			sum.FailedUnits++
		}
	}
	return sum
}
