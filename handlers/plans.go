package handlers

import (
	"context"
	"encoding/json"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"

	"taskflow/models"
	"taskflow/plan"
	"taskflow/providers"
)

// executePlanRequest is the body of POST /api/plan/execute
type executePlanRequest struct {
	TemplateID     string `json:"template_id"`
	UserRequest    string `json:"user_request"`
	ConversationID string `json:"conversation_id,omitempty"`
	UploadKey      string `json:"upload_key,omitempty"`
}

// executePlanHandler instantiates a template and starts it asynchronously
func executePlanHandler(c rweb.Context) error {
	var req executePlanRequest
	if err := json.Unmarshal(c.Request().Body(), &req); err != nil {
		return c.WriteJSON(map[string]string{"error": "invalid request body"})
	}
	if req.TemplateID == "" {
		return c.WriteJSON(map[string]string{"error": "template_id is required"})
	}

	template, err := deps.Templates.LoadTemplate(req.TemplateID)
	if err != nil {
		logger.LogErr(err, "failed to load template", "template_id", req.TemplateID)
		return c.WriteJSON(map[string]string{"error": "template not found: " + req.TemplateID})
	}

	p := template.Instantiate(deps.Dispatcher)
	execCtx := &plan.ExecutionContext{
		CurrentPlanID:  p.ID,
		RootPlanID:     p.RootPlanID,
		ConversationID: req.ConversationID,
		UploadKey:      req.UploadKey,
		UserRequest:    req.UserRequest,
		Plan:           p,
	}

	resultCh := deps.Executor.ExecuteAllAsync(context.Background(), execCtx)
	go func() {
		result := <-resultCh
		// The user-visible dialog accumulates per conversation across plans
		if req.ConversationID != "" && deps.Conversations != nil && result.Success {
			deps.Conversations.Add(req.ConversationID,
				providers.UserMessage(req.UserRequest),
				providers.AssistantMessage(result.FinalResult))
		}
		BroadcastPlanEvent(p.RootPlanID, "plan_complete", result)
		deps.Interrupts.Clear(p.RootPlanID)
	}()

	BroadcastPlanEvent(p.RootPlanID, "plan_started", map[string]string{"plan_id": p.ID, "title": p.Title})

	return c.WriteJSON(map[string]string{
		"plan_id":      p.ID,
		"root_plan_id": p.RootPlanID,
		"status":       "started",
	})
}

// interruptPlanHandler flags a root plan for cooperative cancellation
func interruptPlanHandler(c rweb.Context) error {
	planID := c.Request().Param("id")
	if planID == "" {
		return c.WriteJSON(map[string]string{"error": "plan id is required"})
	}

	deps.Interrupts.Interrupt(planID)
	BroadcastPlanEvent(planID, "plan_interrupt_requested", nil)
	return c.WriteJSON(map[string]string{"status": "interrupt requested", "plan_id": planID})
}

// planRecordsHandler returns the recorded lifecycle events for a plan
func planRecordsHandler(c rweb.Context) error {
	planID := c.Request().Param("id")
	records, err := deps.Recorder.RecordsForPlan(planID)
	if err != nil {
		logger.LogErr(err, "failed to fetch plan records", "plan_id", planID)
		return c.WriteJSON(map[string]string{"error": "failed to fetch records"})
	}
	return c.WriteJSON(map[string]interface{}{"plan_id": planID, "records": records})
}

// listTemplatesHandler returns all stored plan templates
func listTemplatesHandler(c rweb.Context) error {
	templates, err := deps.Templates.ListTemplates()
	if err != nil {
		logger.LogErr(err, "failed to list templates")
		return c.WriteJSON(map[string]string{"error": "failed to list templates"})
	}
	return c.WriteJSON(map[string]interface{}{"templates": templates})
}

// saveTemplateHandler inserts or replaces a plan template
func saveTemplateHandler(c rweb.Context) error {
	var t plan.Template
	if err := json.Unmarshal(c.Request().Body(), &t); err != nil {
		return c.WriteJSON(map[string]string{"error": "invalid template body"})
	}
	if t.ID == "" || len(t.Steps) == 0 {
		return c.WriteJSON(map[string]string{"error": "template id and steps are required"})
	}

	if err := deps.Templates.SaveTemplate(&t); err != nil {
		logger.LogErr(err, "failed to save template", "template_id", t.ID)
		return c.WriteJSON(map[string]string{"error": "failed to save template"})
	}
	return c.WriteJSON(map[string]string{"status": "saved", "template_id": t.ID})
}

// saveModelHandler inserts or replaces a model config and triggers the
// client cache purge
func saveModelHandler(c rweb.Context) error {
	var cfg models.Config
	if err := json.Unmarshal(c.Request().Body(), &cfg); err != nil {
		return c.WriteJSON(map[string]string{"error": "invalid model body"})
	}
	if cfg.Name == "" {
		return c.WriteJSON(map[string]string{"error": "model name is required"})
	}

	if err := deps.Models.Save(cfg); err != nil {
		logger.LogErr(err, "failed to save model config", "model", cfg.Name)
		return c.WriteJSON(map[string]string{"error": "failed to save model"})
	}
	return c.WriteJSON(map[string]string{"status": "saved", "model": cfg.Name})
}

// getFormHandler returns the form currently awaiting input for a root plan
func getFormHandler(c rweb.Context) error {
	rootPlanID := c.Request().Param("rootPlanId")
	form := deps.Forms.Get(rootPlanID)
	if form == nil {
		return c.WriteJSON(map[string]interface{}{"form": nil})
	}
	return c.WriteJSON(map[string]interface{}{
		"state": string(form.InputState()),
		"form":  form.Definition(),
	})
}

// submitFormHandler delivers user values to the waiting form
func submitFormHandler(c rweb.Context) error {
	rootPlanID := c.Request().Param("rootPlanId")

	var values map[string]string
	if err := json.Unmarshal(c.Request().Body(), &values); err != nil {
		return c.WriteJSON(map[string]string{"error": "invalid form values"})
	}

	if err := deps.Forms.Submit(rootPlanID, values); err != nil {
		logger.LogErr(err, "form submission failed", "root_plan_id", rootPlanID)
		return c.WriteJSON(map[string]string{"error": err.Error()})
	}

	BroadcastPlanEvent(rootPlanID, "form_submitted", nil)
	return c.WriteJSON(map[string]string{"status": "submitted"})
}
