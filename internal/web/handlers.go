package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/listing-import/internal/core"
	"github.com/JonMunkholm/listing-import/internal/logging"
)

// SubmitResponse is returned with 202 Accepted.
type SubmitResponse struct {
	ImportID  string `json:"import_id"`
	StatusURL string `json:"status_url"`
}

// SheetReference describes the columns one sheet kind accepts.
type SheetReference struct {
	Kind     core.SheetKind `json:"kind"`
	Label    string         `json:"label"`
	Columns  []string       `json:"columns"`
	Required []string       `json:"required"`
	Fields   []string       `json:"fields"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string             `json:"status"`
	Database string             `json:"database,omitempty"`
	Imports  core.LimiterStatus `json:"imports"`
}

// handleSubmitImport validates the form, takes an import slot and runs the
// import in the background. The client polls the status URL.
func (s *Server) handleSubmitImport(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseImportRequest(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.limiter.Acquire(r.Context()); err != nil {
		w.Header().Set("Retry-After", "30")
		respondError(w, r, err)
		return
	}

	req.ImportID = uuid.NewString()
	s.jobs.Update(r.Context(), core.ImportProgress{
		ImportID:  req.ImportID,
		Kind:      req.Kind,
		Phase:     core.PhaseStarting,
		UpdatedAt: time.Now(),
	})

	s.inflight.Add(1)
	go s.runImport(logging.WithImport(s.baseCtx, req.ImportID), req)

	logging.FromContext(r.Context()).Info("import accepted",
		"import_id", req.ImportID,
		"kind", req.Kind,
		"seller_id", req.SellerID,
		"listings_file", req.Listings.Name,
	)
	writeJSONStatus(w, http.StatusAccepted, SubmitResponse{
		ImportID:  req.ImportID,
		StatusURL: "/api/imports/" + req.ImportID,
	})
}

// runImport owns one limiter slot and records the outcome.
func (s *Server) runImport(ctx context.Context, req core.ImportRequest) {
	defer s.inflight.Done()
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Import.Timeout)
	defer cancel()

	start := time.Now()
	res, err := s.importer.Import(ctx, req)

	var failure *core.ErrorInfo
	if err != nil {
		info := core.Describe(err, "", time.Since(start))
		failure = &info
	}
	if ferr := s.jobs.Finish(context.WithoutCancel(ctx), req.ImportID, res, failure); ferr != nil {
		logging.FromContext(ctx).Error("import outcome not saved", "error", ferr)
	}
}

// handleValidateImport dry-runs an import: both sheets are read and every
// row validated. Nothing is downloaded or written.
func (s *Server) handleValidateImport(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseImportRequest(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	report := s.importer.Validate(r.Context(), req)
	status := http.StatusOK
	if !report.Valid {
		status = http.StatusUnprocessableEntity
	}
	writeJSONStatus(w, status, report)
}

// handleGetImport returns the progress and, once finished, the result of
// an import.
func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "importID")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, r, http.StatusBadRequest, "IMP003", "invalid import id")
		return
	}

	job, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, job)
}

// handleListSheets lists every registered sheet with its column contract so
// sellers can build their spreadsheets.
func (s *Server) handleListSheets(w http.ResponseWriter, r *http.Request) {
	schemas := core.All()
	out := make([]SheetReference, 0, len(schemas))
	for _, schema := range schemas {
		ref := SheetReference{
			Kind:     schema.Kind,
			Label:    schema.Label,
			Columns:  schema.Columns(),
			Required: schema.RequiredColumns(),
		}
		for _, f := range schema.Fields {
			ref.Fields = append(ref.Fields, f.Describe())
		}
		out = append(out, ref)
	}
	writeJSON(w, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Imports: s.limiter.Status()}
	status := http.StatusOK

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}
	writeJSONStatus(w, status, resp)
}
