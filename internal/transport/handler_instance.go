package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/formgrid/flowd/internal/workflow"
	"github.com/formgrid/flowd/model"
)

func handleInstanceCreate(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := model.MustActor(r.Context())
		workflowID := chi.URLParam(r, "workflowID")

		var body struct {
			RecordID string         `json:"recordId"`
			Data     model.Document `json:"data"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteError(w, r, err)
			return
		}

		inst, err := engine.CreateInstance(r.Context(), actor, workflowID, body.RecordID, body.Data)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusCreated, inst)
	}
}

func handleInstanceList(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := model.MustActor(r.Context())

		filters := workflow.Filters{
			WorkflowID: chi.URLParam(r, "workflowID"),
			StateID:    r.URL.Query().Get("state"),
			RecordID:   r.URL.Query().Get("recordId"),
			Limit:      queryInt(r, "limit", 0),
			Offset:     queryInt(r, "offset", 0),
		}

		instances, err := engine.ListInstances(r.Context(), actor, filters)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if instances == nil {
			instances = []model.WorkflowInstance{}
		}
		WriteJSON(w, http.StatusOK, instances)
	}
}

func handleInstanceGet(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := model.MustActor(r.Context())
		inst, err := engine.GetInstance(r.Context(), actor, chi.URLParam(r, "instanceID"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, inst)
	}
}

func handleInstanceActions(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := model.MustActor(r.Context())
		transitions, err := engine.AvailableTransitions(r.Context(), actor, chi.URLParam(r, "instanceID"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"availableTransitions": transitions,
		})
	}
}

func handleTransitionExecute(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := model.MustActor(r.Context())
		instanceID := chi.URLParam(r, "instanceID")
		transitionID := chi.URLParam(r, "transitionID")

		var body struct {
			Data            model.Document `json:"data"`
			Comment         string         `json:"comment"`
			ExpectedVersion *int           `json:"expectedVersion"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteError(w, r, err)
			return
		}

		inst, err := engine.Execute(r.Context(), actor, instanceID, transitionID,
			body.Data, body.Comment, body.ExpectedVersion)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, inst)
	}
}

func handleMyTasks(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := model.MustActor(r.Context())
		tasks, err := engine.MyTasks(r.Context(), actor)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if tasks == nil {
			tasks = []workflow.Task{}
		}
		WriteJSON(w, http.StatusOK, tasks)
	}
}

func handleCommentAdd(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := model.MustActor(r.Context())
		instanceID := chi.URLParam(r, "instanceID")

		var body struct {
			Text string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteError(w, r, err)
			return
		}

		inst, err := engine.AddComment(r.Context(), actor, instanceID, body.Text)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusCreated, inst)
	}
}

// decodeBody decodes a JSON request body into dst. An empty body is allowed
// and leaves dst zero-valued.
func decodeBody(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return model.NewBadRequestError("invalid JSON body")
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
