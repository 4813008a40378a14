package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/formgrid/flowd/internal/definition"
	"github.com/formgrid/flowd/model"
)

// definitionResponse wraps a stored definition together with non-blocking
// validation warnings from the save.
type definitionResponse struct {
	Definition model.WorkflowDefinition `json:"definition"`
	Warnings   []definition.Issue       `json:"warnings,omitempty"`
}

// canManageDefinitions reports whether the current request may create, update,
// or delete workflow definitions.
func canManageDefinitions(r *http.Request) bool {
	return CapabilitiesFrom(r.Context()).HasAny(model.CapWorkflowManage, model.CapWorkflowAdmin)
}

func handleDefinitionList(store definition.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := model.MustActor(r.Context())

		domainID := actor.DomainID
		if q := r.URL.Query().Get("domainId"); q != "" && q != actor.DomainID {
			// Only an administrator may look into another tenant.
			if !CapabilitiesFrom(r.Context()).Has(model.CapWorkflowAdmin) {
				WriteForbidden(w, r, "Cannot list definitions of another domain")
				return
			}
			domainID = q
		}

		var (
			defs []model.WorkflowDefinition
			err  error
		)
		if modelID := r.URL.Query().Get("modelId"); modelID != "" {
			defs, err = store.ListByModel(r.Context(), domainID, modelID)
		} else {
			defs, err = store.ListByDomain(r.Context(), domainID)
		}
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if defs == nil {
			defs = []model.WorkflowDefinition{}
		}
		WriteJSON(w, http.StatusOK, defs)
	}
}

func handleDefinitionCreate(store definition.Store, validator *definition.Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := model.MustActor(r.Context())
		if !canManageDefinitions(r) {
			WriteForbidden(w, r, "Managing workflow definitions requires the workflows:manage capability")
			return
		}

		var def model.WorkflowDefinition
		if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}

		// The tenant comes from the verified token, never from the body.
		def.DomainID = actor.DomainID
		if def.ID == "" {
			def.ID = uuid.New().String()
		}
		definition.Normalize(&def)

		result := validator.Validate(&def)
		if !result.Valid() {
			WriteError(w, r, model.NewValidationError(result.FieldErrors()))
			return
		}

		now := time.Now().UTC()
		def.CreatedBy = actor.SubjectID
		def.CreatedAt = now
		def.UpdatedAt = now
		def.Version = 1
		def.Active = true

		if err := store.Create(r.Context(), def); err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusCreated, definitionResponse{Definition: def, Warnings: result.Warnings})
	}
}

func handleDefinitionGet(store definition.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := model.MustActor(r.Context())
		def, err := store.Get(r.Context(), actor.DomainID, chi.URLParam(r, "workflowID"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, def)
	}
}

func handleDefinitionUpdate(store definition.Store, validator *definition.Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := model.MustActor(r.Context())
		if !canManageDefinitions(r) {
			WriteForbidden(w, r, "Managing workflow definitions requires the workflows:manage capability")
			return
		}

		var def model.WorkflowDefinition
		if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}
		def.ID = chi.URLParam(r, "workflowID")
		def.DomainID = actor.DomainID
		definition.Normalize(&def)

		result := validator.Validate(&def)
		if !result.Valid() {
			WriteError(w, r, model.NewValidationError(result.FieldErrors()))
			return
		}

		if err := store.Update(r.Context(), def); err != nil {
			WriteError(w, r, err)
			return
		}
		updated, err := store.Get(r.Context(), actor.DomainID, def.ID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, definitionResponse{Definition: updated, Warnings: result.Warnings})
	}
}

func handleDefinitionDelete(store definition.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := model.MustActor(r.Context())
		if !canManageDefinitions(r) {
			WriteForbidden(w, r, "Managing workflow definitions requires the workflows:manage capability")
			return
		}
		if err := store.Delete(r.Context(), actor.DomainID, chi.URLParam(r, "workflowID")); err != nil {
			WriteError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDefinitionDeactivate(store definition.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := model.MustActor(r.Context())
		if !canManageDefinitions(r) {
			WriteForbidden(w, r, "Managing workflow definitions requires the workflows:manage capability")
			return
		}
		workflowID := chi.URLParam(r, "workflowID")
		if err := store.Deactivate(r.Context(), actor.DomainID, workflowID); err != nil {
			WriteError(w, r, err)
			return
		}
		def, err := store.Get(r.Context(), actor.DomainID, workflowID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, def)
	}
}
