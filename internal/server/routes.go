package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/lazypower/recollect/internal/store"
)

func (s *Server) handleRemember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string   `json:"content"`
		Tags    []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content required"})
		return
	}

	id, err := s.engine.Remember(r.Context(), req.Content, req.Tags)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q required"})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var tr *store.TimeRange
	from, _ := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
	to, _ := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
	if from > 0 || to > 0 {
		tr = &store.TimeRange{From: from, To: to}
	}

	resp, err := s.engine.Recall(r.Context(), query, limit, tr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.Forget(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string   `json:"name"`
		Type         string   `json:"type"`
		Observations []string `json:"observations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name required"})
		return
	}

	id, err := s.engine.CreateEntity(r.Context(), req.Name, req.Type, req.Observations)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req struct {
		NewName string `json:"new_name"`
		NewType string `json:"new_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.NewName == "" && req.NewType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "new_name or new_type required"})
		return
	}

	if err := s.engine.UpdateEntity(r.Context(), name, req.NewName, req.NewType); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.engine.DeleteEntity(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type relationRequest struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Relation string `json:"relation"`
}

func (r relationRequest) valid() bool {
	return r.Source != "" && r.Target != "" && r.Relation != ""
}

func (s *Server) handleCreateRelation(w http.ResponseWriter, r *http.Request) {
	var req relationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source, target, relation required"})
		return
	}

	if err := s.engine.CreateRelation(r.Context(), req.Source, req.Target, req.Relation); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteRelation(w http.ResponseWriter, r *http.Request) {
	var req relationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source, target, relation required"})
		return
	}

	if err := s.engine.DeleteRelation(r.Context(), req.Source, req.Target, req.Relation); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleReadGraph(w http.ResponseWriter, r *http.Request) {
	center := r.URL.Query().Get("center")
	depth, _ := strconv.Atoi(r.URL.Query().Get("depth"))

	view, err := s.engine.ReadGraph(r.Context(), center, depth)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	updated, err := s.engine.RunMaintenance()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}
