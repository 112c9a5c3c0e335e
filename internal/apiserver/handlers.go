package apiserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/moolen/causeway/internal/memory"
	"github.com/moolen/causeway/internal/models"
	"github.com/moolen/causeway/internal/router"
	"github.com/moolen/causeway/internal/session"
	"github.com/moolen/causeway/internal/supervisor"
	"github.com/moolen/causeway/internal/synthesis"
)

type startRequest struct {
	Service   string             `json:"service"`
	Namespace string             `json:"namespace"`
	TraceID   string             `json:"trace_id"`
	RepoURL   string             `json:"repo_url" validate:"omitempty,url"`
	ScanMode  string             `json:"scan_mode" validate:"omitempty,oneof=diagnostic guard"`
	Platform  string             `json:"platform" validate:"omitempty,oneof=kubernetes openshift"`
	Window    *models.TimeWindow `json:"time_window"`
}

type startResponse struct {
	SessionID string          `json:"session_id"`
	ScanMode  models.ScanMode `json:"scan_mode"`
	Phase     models.Phase    `json:"phase,omitempty"`
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if req.Service == "" && req.ScanMode != string(models.ScanModeGuard) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "service is required for diagnostic sessions")
		return
	}

	incident := models.IncidentPointer{
		Service:   req.Service,
		Namespace: req.Namespace,
		TraceID:   req.TraceID,
		RepoURL:   req.RepoURL,
		Window:    req.Window,
		ScanMode:  models.ScanMode(req.ScanMode),
		Platform:  models.Platform(req.Platform),
	}
	h, err := s.sessions.Create(r.Context(), incident)
	if err != nil {
		writeError(w, http.StatusBadRequest, "SESSION_CREATE_FAILED", err.Error())
		return
	}

	resp := startResponse{SessionID: h.ID(), ScanMode: h.Session().Incident.ScanMode}
	if h.Supervisor() != nil {
		resp.Phase = h.Supervisor().Phase()
		go s.runWorkflow(h)
	} else {
		go s.runGraph(h)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// runWorkflow drives the supervisor in the background until done or
// blocked on a gate, then reviews evidence and persists a fingerprint
// once the diagnosis completes.
func (s *Server) runWorkflow(h *session.Handle) {
	if err := h.RunDiagnosis(context.Background()); err != nil {
		s.logger.Warn("diagnosis for session %s stopped: %v", h.ID(), err)
		return
	}
	if h.Supervisor().Phase() != models.PhaseDiagnosisComplete {
		return
	}
	h.ReviewEvidence(context.Background())
	s.recordFingerprint(h)
}

func (s *Server) runGraph(h *session.Handle) {
	if _, err := h.RunGraph(context.Background()); err != nil {
		s.logger.Warn("graph run for session %s failed: %v", h.ID(), err)
	}
}

// recordFingerprint compares the finished incident against past ones
// and stores it for future similarity checks.
func (s *Server) recordFingerprint(h *session.Handle) {
	if s.memory == nil {
		return
	}
	ctx := context.Background()

	rootCause := ""
	snap := h.Graph().Snapshot()
	if len(snap.RootCauses) > 0 {
		for _, node := range snap.Nodes {
			if node.ID == snap.RootCauses[0] {
				rootCause = node.Pin.Claim
				break
			}
		}
	}

	fp := memory.FromEvidence(h.Pins(), rootCause, time.Since(h.Session().CreatedAt), true)
	novel, err := s.memory.IsNovel(ctx, fp)
	if err != nil {
		s.logger.Warn("fingerprint similarity check failed: %v", err)
	} else if novel {
		h.Events().Emit("memory", "novel_incident", "no similar past incident on record")
	} else {
		h.Events().Emit("memory", "known_incident", "a similar past incident is on record")
	}
	if err := s.memory.Save(ctx, fp); err != nil {
		s.logger.Warn("fingerprint save failed: %v", err)
	}
}

type graphSummary struct {
	Coverage      float64           `json:"coverage"`
	IssueClusters int               `json:"issue_clusters"`
	Reports       map[string]string `json:"reports"`
	ReDispatches  int               `json:"re_dispatches"`
}

type statusResponse struct {
	SessionID string             `json:"session_id"`
	CreatedAt time.Time          `json:"created_at"`
	ScanMode  models.ScanMode    `json:"scan_mode"`
	Workflow  *supervisor.Status `json:"workflow,omitempty"`
	Graph     *graphSummary      `json:"graph,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, h *session.Handle) {
	sess := h.Session()
	resp := statusResponse{
		SessionID: sess.ID,
		CreatedAt: sess.CreatedAt,
		ScanMode:  sess.Incident.ScanMode,
	}
	if sup := h.Supervisor(); sup != nil {
		status := sup.Status()
		resp.Workflow = &status
	}
	if state := h.LastState(); state != nil {
		summary := &graphSummary{
			Coverage:      state.Coverage,
			IssueClusters: len(state.Clusters),
			Reports:       make(map[string]string),
			ReDispatches:  state.ReDispatchCount,
		}
		for _, report := range state.ReportList() {
			summary.Reports[string(report.Domain)] = string(report.Status)
		}
		resp.Graph = summary
	}
	writeJSON(w, http.StatusOK, resp)
}

type findingsResponse struct {
	Findings   []models.EvidencePin    `json:"findings"`
	Rejected   []models.EvidencePin    `json:"rejected,omitempty"`
	RootCauses []string                `json:"root_causes,omitempty"`
	Reports    []models.DomainReport   `json:"reports,omitempty"`
	Synthesis  *synthesis.Result       `json:"synthesis,omitempty"`
	Guard      *models.GuardScanResult `json:"guard,omitempty"`
	Clusters   []models.IssueCluster   `json:"issue_clusters,omitempty"`
}

func (s *Server) handleFindings(w http.ResponseWriter, r *http.Request, h *session.Handle) {
	resp := findingsResponse{Findings: []models.EvidencePin{}}
	for _, pin := range h.Pins() {
		if pin.ValidationStatus == models.ValidationRejected {
			resp.Rejected = append(resp.Rejected, pin)
			continue
		}
		resp.Findings = append(resp.Findings, pin)
	}
	resp.RootCauses = h.Graph().Snapshot().RootCauses
	if state := h.LastState(); state != nil {
		resp.Reports = state.ReportList()
		resp.Synthesis = &state.Synthesis
		resp.Guard = state.Guard
		resp.Clusters = state.Clusters
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, h *session.Handle) {
	writeJSON(w, http.StatusOK, map[string]any{"events": h.Events().Events()})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request, h *session.Handle) {
	writeJSON(w, http.StatusOK, map[string]any{"intents": h.Executor().Registry()})
}

func (s *Server) handleInvestigate(w http.ResponseWriter, r *http.Request, h *session.Handle) {
	var req router.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	if req.QuickAction == "" && req.Query == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "quick_action or query is required")
		return
	}

	resp, err := h.Investigate(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVESTIGATION_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvidenceGraph(w http.ResponseWriter, r *http.Request, h *session.Handle) {
	writeJSON(w, http.StatusOK, map[string]any{
		"pins":  h.Pins(),
		"graph": h.Graph().Snapshot(),
	})
}

func (s *Server) handleConfidence(w http.ResponseWriter, r *http.Request, h *session.Handle) {
	writeJSON(w, http.StatusOK, h.Ledger().Snapshot())
}

func (s *Server) handleReasoning(w http.ResponseWriter, r *http.Request, h *session.Handle) {
	sup := h.Supervisor()
	if sup == nil {
		writeError(w, http.StatusNotFound, "NO_REASONING", "graph sessions have no reasoning manifest")
		return
	}
	writeJSON(w, http.StatusOK, sup.Manifest())
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request, h *session.Handle) {
	writeJSON(w, http.StatusOK, map[string]any{"timeline": h.Graph().BuildTimeline()})
}

type attestationRequest struct {
	GateType  string `json:"gate_type" validate:"required,oneof=discovery_complete pre_remediation post_remediation"`
	Decision  string `json:"decision" validate:"required,oneof=approve reject request_changes"`
	DecidedBy string `json:"decided_by" validate:"required"`
	Notes     string `json:"notes"`
}

func (s *Server) handleAttestation(w http.ResponseWriter, r *http.Request, h *session.Handle) {
	var req attestationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	gateType := models.GateType(req.GateType)
	decision := models.GateDecision(req.Decision)
	if err := h.Attest(gateType, decision, req.DecidedBy, req.Notes); err != nil {
		writeError(w, http.StatusConflict, "ATTESTATION_REJECTED", err.Error())
		return
	}

	// An approved discovery gate unblocks the paused workflow.
	if gateType == models.GateDiscoveryComplete && decision == models.GateApprove {
		go s.runWorkflow(h)
	}

	resp := map[string]any{"acknowledged": true}
	if sup := h.Supervisor(); sup != nil {
		resp["phase"] = sup.Phase()
	}
	writeJSON(w, http.StatusOK, resp)
}
