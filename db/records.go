package db

import (
	"encoding/json"

	"github.com/rohanthewiz/logger"

	"taskflow/plan"
	"taskflow/recorder"
)

// Record types stored in plan_records
const (
	recordPlanStart    = "plan_start"
	recordStepStart    = "step_start"
	recordStepEnd      = "step_end"
	recordThinkAct     = "think_act"
	recordActionResult = "action_result"
	recordPlanComplete = "plan_complete"
)

// Recorder persists plan lifecycle events to DuckDB. Recording failures are
// logged and swallowed; execution never stops for the recorder.
type Recorder struct {
	db *DB
}

// NewRecorder creates a DB-backed recorder
func NewRecorder(db *DB) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) insert(planID, rootPlanID, recordType, stepID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.LogErr(err, "failed to marshal record payload", "record_type", recordType)
		return
	}

	_, err = r.db.Exec(`
		INSERT INTO plan_records (id, plan_id, root_plan_id, record_type, step_id, payload)
		VALUES (nextval('plan_records_seq'), ?, ?, ?, ?, ?)`,
		planID, rootPlanID, recordType, stepID, string(data),
	)
	if err != nil {
		logger.LogErr(err, "failed to insert plan record", "record_type", recordType, "plan_id", planID)
	}
}

// RecordPlanStart records the start of a plan run
func (r *Recorder) RecordPlanStart(ctx *plan.ExecutionContext) {
	payload := map[string]interface{}{
		"title":          titleOf(ctx),
		"parent_plan_id": ctx.ParentPlanID,
		"depth":          ctx.Depth,
		"tool_call_id":   ctx.ToolCallID,
		"steps":          len(ctx.Plan.Steps),
	}
	r.insert(ctx.CurrentPlanID, ctx.RootPlanID, recordPlanStart, "", payload)
}

// RecordStepStart records a step entering execution
func (r *Recorder) RecordStepStart(step *plan.Step, planID string) {
	r.insert(planID, "", recordStepStart, step.StepID, step)
}

// RecordStepEnd records a step's terminal state
func (r *Recorder) RecordStepEnd(step *plan.Step, planID string) {
	r.insert(planID, "", recordStepEnd, step.StepID, step)
}

// RecordThinkingAndAction records one think/act cycle
func (r *Recorder) RecordThinkingAndAction(step *plan.Step, params recorder.ThinkActParams) {
	r.insert("", "", recordThinkAct, step.StepID, params)
}

// RecordActionResult records updated tool results
func (r *Recorder) RecordActionResult(params []recorder.ActToolParam) {
	r.insert("", "", recordActionResult, "", params)
}

// RecordPlanCompletion records the plan's terminal result
func (r *Recorder) RecordPlanCompletion(planID string, result *plan.ExecutionResult) {
	r.insert(planID, "", recordPlanComplete, "", result)
}

// RecordsForPlan returns the raw record payloads for a plan in order
func (r *Recorder) RecordsForPlan(planID string) ([]map[string]interface{}, error) {
	rows, err := r.db.Query(`
		SELECT record_type, step_id, payload, created_at
		FROM plan_records WHERE plan_id = ? ORDER BY id`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		var recordType, stepID, payload string
		var createdAt interface{}
		if err := rows.Scan(&recordType, &stepID, &payload, &createdAt); err != nil {
			return nil, err
		}
		entry := map[string]interface{}{
			"record_type": recordType,
			"step_id":     stepID,
			"created_at":  createdAt,
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(payload), &decoded); err == nil {
			entry["payload"] = decoded
		} else {
			entry["payload"] = payload
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func titleOf(ctx *plan.ExecutionContext) string {
	if ctx.Plan != nil {
		return ctx.Plan.Title
	}
	return ""
}
