package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spherical/slide-creator/internal/domain"
	"github.com/spherical/slide-creator/internal/observability"
	"github.com/spherical/slide-creator/internal/storage"
	"github.com/spherical/slide-creator/internal/validate"
	"github.com/spherical/slide-creator/internal/workflow"
)

// maxBodyBytes bounds request bodies; raw LLM answers stay well below
const maxBodyBytes = 4 << 20

type handler struct {
	logger *observability.Logger
	deps   Deps
}

// SchemaDTO describes one registered schema.
type SchemaDTO struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Required    []string            `json:"required,omitempty"`
	Enums       map[string][]string `json:"enums,omitempty"`
	Template    string              `json:"template,omitempty"`
}

// ValidationResponseDTO is the outcome of validating a raw response.
type ValidationResponseDTO struct {
	Valid    bool                 `json:"valid"`
	Errors   []string             `json:"errors"`
	Warnings []string             `json:"warnings"`
	Data     interface{}          `json:"data,omitempty"`
	Details  []validate.Violation `json:"details,omitempty"`
}

// ConversionRequestDTO asks for one PDF to be converted.
type ConversionRequestDTO struct {
	PDFPath    string `json:"pdf_path"`
	OutputPath string `json:"output_path,omitempty"`
}

// ConversionResponseDTO summarizes a finished conversion.
type ConversionResponseDTO struct {
	RunID      string                 `json:"run_id"`
	State      workflow.State         `json:"state"`
	OutputPath string                 `json:"output_path"`
	Written    bool                   `json:"written"`
	Failure    *workflow.Failure      `json:"failure,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Warnings   []string               `json:"warnings,omitempty"`
	Stages     []workflow.StageReport `json:"stages"`
	Metadata   workflow.Metadata      `json:"metadata"`
	LatencyMs  int64                  `json:"latency_ms"`
}

func (h *handler) listSchemas(w http.ResponseWriter, r *http.Request) {
	reg := h.deps.Registry
	out := make([]SchemaDTO, 0, len(reg.Names()))
	for _, name := range reg.Names() {
		s, err := reg.Get(name)
		if err != nil {
			continue
		}
		out = append(out, SchemaDTO{Name: s.Name(), Description: s.Description()})
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"schemas": out})
}

func (h *handler) getSchema(w http.ResponseWriter, r *http.Request) {
	s, err := h.deps.Registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, "Schema not found", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, SchemaDTO{
		Name:        s.Name(),
		Description: s.Description(),
		Required:    s.RequiredFields(),
		Enums:       s.Enums(),
		Template:    s.Template(),
	})
}

func (h *handler) validate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !h.deps.Registry.Has(name) {
		h.writeError(w, http.StatusNotFound, "Schema not found", name)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Failed to read request body", err.Error())
		return
	}

	res := h.deps.Validator.Validate(string(body), name)
	resp := ValidationResponseDTO{
		Valid:    res.Valid,
		Errors:   nonNil(res.Errors),
		Warnings: nonNil(res.Warnings),
		Details:  res.Violations,
		Data:     res.Data,
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handler) createConversion(w http.ResponseWriter, r *http.Request) {
	if h.deps.Converter == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Conversions are not enabled", "")
		return
	}

	var req ConversionRequestDTO
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.PDFPath == "" {
		h.writeError(w, http.StatusBadRequest, "pdf_path is required", "")
		return
	}

	start := time.Now()
	out, err := h.deps.Converter.Convert(r.Context(), req.PDFPath, req.OutputPath, nil)
	if out == nil {
		h.writeError(w, statusFor(err), "Conversion could not start", errString(err))
		return
	}

	resp := ConversionResponseDTO{
		RunID:      out.Result.RunID,
		State:      out.Result.State,
		OutputPath: out.OutputPath,
		Written:    out.Written,
		Failure:    out.Result.Failure,
		Error:      errString(err),
		Warnings:   out.Result.Warnings(),
		Stages:     out.Result.Stages,
		Metadata:   out.Result.Metadata,
		LatencyMs:  time.Since(start).Milliseconds(),
	}

	status := http.StatusOK
	switch {
	case out.Result.State == workflow.StateHaltUnsafe:
		status = http.StatusUnprocessableEntity
	case err != nil:
		status = statusFor(err)
	}

	h.logger.Info().
		Str("run_id", resp.RunID).
		Str("state", string(resp.State)).
		Int("status", status).
		Msg("Conversion request finished")
	h.writeJSON(w, status, resp)
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	if h.deps.Runs == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Run history is not enabled", "")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer", v)
			return
		}
		limit = n
	}

	runs, err := h.deps.Runs.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list runs")
		h.writeError(w, http.StatusInternalServerError, "Failed to list runs", "")
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (h *handler) getRun(w http.ResponseWriter, r *http.Request) {
	if h.deps.Runs == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Run history is not enabled", "")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid run id", err.Error())
		return
	}

	run, err := h.deps.Runs.GetByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "Run not found", id.String())
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", id.String()).Msg("Failed to load run")
		h.writeError(w, http.StatusInternalServerError, "Failed to load run", "")
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (h *handler) writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	h.writeJSON(w, status, resp)
}

// statusFor maps domain error types onto HTTP status codes
func statusFor(err error) int {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		return http.StatusInternalServerError
	}
	switch de.Type {
	case domain.ErrorTypeValidation:
		return http.StatusBadRequest
	case domain.ErrorTypeCancelled:
		return http.StatusServiceUnavailable
	case domain.ErrorTypeExtraction, domain.ErrorTypeParse:
		return http.StatusUnprocessableEntity
	case domain.ErrorTypeAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
