// Package handlers exposes the thin HTTP surface over the execution core.
package handlers

import (
	"github.com/rohanthewiz/rweb"

	"taskflow/db"
	"taskflow/executor"
	"taskflow/forms"
	"taskflow/interrupt"
	"taskflow/memory"
	"taskflow/plan"
)

// Deps carries the collaborators the handlers need
type Deps struct {
	Executor      *executor.PlanExecutor
	Templates     *db.TemplateStore
	Recorder      *db.Recorder
	Models        *db.ModelStore
	Interrupts    *interrupt.Service
	Forms         *forms.Store
	Dispatcher    *plan.Dispatcher
	Conversations *memory.ConversationStore
}

var deps Deps

// SetupRoutes configures all HTTP routes for the server
func SetupRoutes(s *rweb.Server, d Deps) {
	deps = d

	// Root endpoint - serves the status page
	s.Get("/", statusPageHandler)

	// Plan execution
	s.Post("/api/plan/execute", executePlanHandler)
	s.Post("/api/plan/:id/interrupt", interruptPlanHandler)
	s.Get("/api/plan/:id/records", planRecordsHandler)

	// Plan templates
	s.Get("/api/template", listTemplatesHandler)
	s.Post("/api/template", saveTemplateHandler)

	// Model configurations
	s.Post("/api/model", saveModelHandler)

	// Form input rendezvous
	s.Get("/api/form/:rootPlanId", getFormHandler)
	s.Post("/api/form/:rootPlanId/submit", submitFormHandler)

	// SSE endpoint for streaming progress events
	s.Get("/events", eventsHandler)
}
