package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
)

// WorkflowConfigRequest is the body of create and update.
type WorkflowConfigRequest struct {
	Name      string             `json:"name" validate:"required,max=120"`
	Nodes     []seo.NodeOverride `json:"nodes" validate:"max=5,dive"`
	IsDefault bool               `json:"isDefault"`
}

func (req WorkflowConfigRequest) config(userID, id string) seo.WorkflowConfig {
	return seo.WorkflowConfig{ID: id, UserID: userID, Name: req.Name, Nodes: req.Nodes, IsDefault: req.IsDefault}
}

func handleListWorkflows(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.Store.ListWorkflows(r.Context(), principal(r).UserID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"configs": list})
	}
}

func handleGetWorkflow(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := deps.Store.Workflow(r.Context(), principal(r).UserID, chi.URLParam(r, "id"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

func handleCreateWorkflow(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req WorkflowConfigRequest
		if !decode(w, r, &req) {
			return
		}
		cfg, err := deps.Store.CreateWorkflow(r.Context(), req.config(principal(r).UserID, ""))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, cfg)
	}
}

func handleUpdateWorkflow(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req WorkflowConfigRequest
		if !decode(w, r, &req) {
			return
		}
		cfg, err := deps.Store.UpdateWorkflow(r.Context(), req.config(principal(r).UserID, chi.URLParam(r, "id")))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

func handleDeleteWorkflow(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.DeleteWorkflow(r.Context(), principal(r).UserID, chi.URLParam(r, "id")); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleRunMigrations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		applied, err := deps.Store.Migrate(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		if applied == nil {
			applied = []int{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"applied": applied})
	}
}

func handleMigrationStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := deps.Store.MigrationStatus(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"migrations": status})
	}
}
