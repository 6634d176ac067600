package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/ensemblectl/internal/inspect"
	"github.com/mattjoyce/ensemblectl/internal/ledger"
)

const maxListLimit = 500

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		PluginsLoaded: len(s.registry.Names()),
	})
}

// handleListPlugins handles GET /plugins.
func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	names := s.registry.Names()
	resp := PluginListResponse{Plugins: make([]PluginSummary, 0, len(names))}
	for _, name := range names {
		p, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		resp.Plugins = append(resp.Plugins, PluginSummary{
			Name:        p.Name,
			Version:     p.Version,
			Description: p.Description,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleGetPlugin handles GET /plugins/{plugin}.
func (s *Server) handleGetPlugin(w http.ResponseWriter, r *http.Request) {
	p, ok := s.registry.Get(chi.URLParam(r, "plugin"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "plugin not found")
		return
	}

	configs, err := p.Configs()
	if err != nil {
		s.logger.Error("failed to list plugin configs", "plugin", p.Name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list configs")
		return
	}
	if configs == nil {
		configs = []string{}
	}

	resp := PluginDetailResponse{
		Name:        p.Name,
		Version:     p.Version,
		Description: p.Description,
		Program:     p.Program,
		Args:        make([]PluginArg, 0, len(p.Args)),
		Configs:     configs,
	}
	for _, a := range p.Args {
		resp.Args = append(resp.Args, PluginArg{Name: a.Name, Default: a.Value.String()})
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleListSubmissions handles GET /submissions?plugin=&status=&limit=.
func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.ListFilter{
		Plugin: q.Get("plugin"),
		Status: ledger.Status(q.Get("status")),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxListLimit {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		filter.Limit = n
	}

	subs, err := s.ledger.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list submissions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list submissions")
		return
	}

	resp := SubmissionListResponse{Submissions: make([]SubmissionResponse, 0, len(subs))}
	for i := range subs {
		resp.Submissions = append(resp.Submissions, toSubmissionResponse(&subs[i]))
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleGetSubmission handles GET /submissions/{id}. Unique id prefixes resolve.
func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := s.ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSubmissionResponse(sub))
}

// handleSubmissionReport handles GET /submissions/{id}/report.
func (s *Server) handleSubmissionReport(w http.ResponseWriter, r *http.Request) {
	report, err := inspect.Gather(r.Context(), s.ledger, s.workspaces, chi.URLParam(r, "id"))
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// handleStats handles GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.ledger.Counts(r.Context())
	if err != nil {
		s.logger.Error("failed to count submissions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to count submissions")
		return
	}
	resp := StatsResponse{ByStatus: make(map[string]int, len(counts))}
	for status, n := range counts {
		resp.ByStatus[string(status)] = n
		resp.Total += n
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrSubmissionNotFound):
		s.writeError(w, http.StatusNotFound, "submission not found")
	case errors.Is(err, ledger.ErrAmbiguousID):
		s.writeError(w, http.StatusConflict, "submission id prefix is ambiguous")
	default:
		s.logger.Error("failed to load submission", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load submission")
	}
}

func toSubmissionResponse(sub *ledger.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:            sub.ID,
		Kind:          sub.Kind,
		Plugin:        sub.Plugin,
		Config:        sub.Config,
		Machine:       sub.Machine,
		Backend:       sub.Backend,
		Label:         sub.Label,
		Status:        string(sub.Status),
		BackendJobID:  deref(sub.BackendJobID),
		Arguments:     sub.Arguments,
		WallTime:      sub.WallTime,
		Memory:        sub.Memory,
		Cores:         sub.Cores,
		ArraySize:     sub.ArraySize,
		WorkspaceID:   sub.WorkspaceID,
		ScanParameter: deref(sub.ScanParameter),
		ScanValue:     deref(sub.ScanValue),
		CreatedAt:     sub.CreatedAt,
		SubmittedAt:   sub.SubmittedAt,
		CompletedAt:   sub.CompletedAt,
		LastError:     deref(sub.LastError),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
