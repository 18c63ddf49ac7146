package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/aristath/settlement/internal/config"
	"github.com/aristath/settlement/internal/domain"
	"github.com/aristath/settlement/internal/modules/export"
	"github.com/aristath/settlement/internal/modules/report"
	"github.com/aristath/settlement/internal/services/settlement"
	"github.com/aristath/settlement/internal/work"
	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/mem"
)

// maxCampaignBytes caps the size of a submitted campaign file
const maxCampaignBytes = 1 << 20

// errorBody is the JSON shape of a failed request or run.
type errorBody struct {
	Error  string   `json:"error"`
	Rule   string   `json:"rule,omitempty"`
	Keys   []string `json:"keys,omitempty"`
	Fields []string `json:"fields,omitempty"`
}

// runResponse is the JSON shape of a run, queued, finished or recorded.
type runResponse struct {
	ID          string                   `json:"id"`
	Status      string                   `json:"status"`
	SubmittedAt *time.Time               `json:"submitted_at,omitempty"`
	StartedAt   *time.Time               `json:"started_at,omitempty"`
	FinishedAt  *time.Time               `json:"finished_at,omitempty"`
	Error       *errorBody               `json:"error,omitempty"`
	Summary     *report.Summary          `json:"summary,omitempty"`
	Unmapped    []domain.UnmappedCaliber `json:"unmapped,omitempty"`
	Exceptions  []domain.AuditException  `json:"exceptions,omitempty"`
	Files       export.Files             `json:"files,omitempty"`
	Recorded    *export.RunRecord        `json:"recorded,omitempty"`
}

// statusRecorded marks a run known only from the ledger
const statusRecorded = "recorded"

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":         "healthy",
		"service":        "settlement",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	}

	if memStat, err := mem.VirtualMemory(); err == nil {
		response["memory_percent"] = memStat.UsedPercent
	} else {
		s.log.Warn().Err(err).Msg("Failed to read memory stats")
	}

	if s.processor != nil {
		response["jobs"] = s.processor.Counts()
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleSubmitRun parses a campaign file (YAML or JSON) and queues a settlement run.
func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCampaignBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	campaign, err := config.ParseCampaign(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	params, err := campaign.Parameters()
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	id, err := s.processor.Submit(func(ctx context.Context, id string) (*settlement.Outcome, error) {
		return s.runner.Run(ctx, id, *params)
	})
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	s.log.Info().Str("run_id", id).Int("campaign", params.Scope.Campaign).Msg("Settlement run queued")
	s.writeJSON(w, http.StatusAccepted, runResponse{ID: id, Status: string(work.StatusQueued)})
}

// handleListRuns returns how many runs are held in each status.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": s.processor.Counts(),
	})
}

// handleGetRun returns the state of a run. Runs the processor has forgotten are
// looked up in the ledger.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, ok := s.processor.Get(id)
	if !ok {
		s.writeRecordedRun(w, r, id)
		return
	}

	resp := runResponse{
		ID:          job.ID,
		Status:      string(job.Status),
		SubmittedAt: timeRef(job.SubmittedAt),
		StartedAt:   timeRef(job.StartedAt),
		FinishedAt:  timeRef(job.FinishedAt),
	}
	if job.Err != nil {
		resp.Error = describeError(job.Err)
	}
	if outcome := job.Value; outcome != nil {
		summary := outcome.Report()
		resp.Summary = &summary
		resp.Unmapped = outcome.Unmapped
		resp.Exceptions = outcome.Fund.Exceptions
		resp.Files = outcome.Files
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeRecordedRun(w http.ResponseWriter, r *http.Request, id string) {
	if s.ledger == nil {
		s.writeError(w, http.StatusNotFound, work.ErrUnknownJob)
		return
	}
	record, err := s.ledger.Run(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if record == nil {
		s.writeError(w, http.StatusNotFound, work.ErrUnknownJob)
		return
	}
	s.writeJSON(w, http.StatusOK, runResponse{
		ID:       record.RunID,
		Status:   statusRecorded,
		Recorded: record,
	})
}

// handleGetPrices returns the final prices of a run, from the processor while it holds
// the run and from the ledger afterwards.
func (s *Server) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if job, ok := s.processor.Get(id); ok {
		if !job.Status.Done() {
			s.writeJSON(w, http.StatusConflict, errorBody{Error: "run has not finished"})
			return
		}
		if job.Value == nil {
			s.writeJSON(w, http.StatusConflict, errorBody{Error: "run produced no prices"})
			return
		}
		s.writeJSON(w, http.StatusOK, job.Value.Prices)
		return
	}

	if s.ledger == nil {
		s.writeError(w, http.StatusNotFound, work.ErrUnknownJob)
		return
	}
	prices, err := s.ledger.Prices(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(prices) == 0 {
		s.writeError(w, http.StatusNotFound, work.ErrUnknownJob)
		return
	}
	s.writeJSON(w, http.StatusOK, prices)
}

// describeError exposes the rule and offending keys of settlement failures.
func describeError(err error) *errorBody {
	body := &errorBody{Error: err.Error()}

	var validation *domain.ValidationError
	var mapping *domain.MappingError
	var fields config.ValidationErrors
	switch {
	case errors.As(err, &validation):
		body.Rule = validation.Rule
		body.Keys = validation.Keys
	case errors.As(err, &mapping):
		body.Rule = "caliber_mapping"
		body.Keys = mapping.Codes
	case errors.As(err, &fields):
		body.Rule = domain.RuleParameters
		body.Fields = fields.Fields()
	}
	return body
}

func timeRef(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, describeError(err))
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
