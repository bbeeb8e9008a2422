package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/koustreak/xdb/internal/bind"
	"github.com/koustreak/xdb/internal/errs"
	"github.com/koustreak/xdb/internal/query"
)

// StatementRequest is the body of /fetch and /exec.
type StatementRequest struct {
	Statement string         `json:"statement"`
	Values    map[string]any `json:"values,omitempty"`

	// ReturnID makes /exec also report LastInsertID(Sequence).
	ReturnID bool   `json:"return_id,omitempty"`
	Sequence string `json:"sequence,omitempty"`
}

// FetchResponse is the body returned by /fetch. Found is false only for
// one and value modes on an empty result.
type FetchResponse = query.Outcome

// ExecResponse is the body returned by /exec.
type ExecResponse struct {
	RowsAffected int64 `json:"rows_affected"`
	LastInsertID any   `json:"last_insert_id,omitempty"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// --- handlers ---

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	req, err := decodeStatement(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var resp FetchResponse
	err = s.withExecutor(r.Context(), func(ctx context.Context) error {
		resp, err = s.exec.FetchMode(ctx, query.Mode(chi.URLParam(r, "mode")), req.Statement, bind.Values(req.Values))
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	req, err := decodeStatement(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var resp ExecResponse
	err = s.withExecutor(r.Context(), func(ctx context.Context) error {
		if len(req.Values) == 0 {
			resp.RowsAffected, err = s.exec.Exec(ctx, req.Statement)
		} else {
			resp.RowsAffected, err = s.exec.RowsAffected(ctx, req.Statement, bind.Values(req.Values))
		}
		if err != nil || !req.ReturnID {
			return err
		}
		resp.LastInsertID, err = s.exec.LastInsertID(ctx, req.Sequence)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogEntries(w http.ResponseWriter, r *http.Request) {
	if s.log == nil {
		writeError(w, errs.New(errs.ErrKindNotFound, "query log disabled"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  s.log.Active(),
		"entries": s.log.Entries(),
	})
}

func (s *Server) handleLogReset(w http.ResponseWriter, r *http.Request) {
	if s.log == nil {
		writeError(w, errs.New(errs.ErrKindNotFound, "query log disabled"))
		return
	}
	s.log.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogActive(w http.ResponseWriter, r *http.Request) {
	if s.log == nil {
		writeError(w, errs.New(errs.ErrKindNotFound, "query log disabled"))
		return
	}
	var body struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Active == nil {
		writeError(w, errs.New(errs.ErrKindInvalidInput, `body must be {"active": true|false}`))
		return
	}
	s.log.SetActive(*body.Active)
	writeJSON(w, http.StatusOK, map[string]bool{"active": *body.Active})
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	schemaName := schemaParam(r)

	var tables []string
	err := s.withExecutor(r.Context(), func(ctx context.Context) (err error) {
		tables, err = s.schema.ListTables(ctx, schemaName)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema": schemaName, "tables": tables})
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	schemaName, table := schemaParam(r), chi.URLParam(r, "table")

	var info any
	err := s.withExecutor(r.Context(), func(ctx context.Context) (err error) {
		info, err = s.schema.InspectTable(ctx, schemaName, table)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	err := s.withExecutor(r.Context(), func(ctx context.Context) error {
		return s.exec.Driver().Ping(ctx)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- helpers ---

func decodeStatement(r *http.Request) (*StatementRequest, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var req StatementRequest
	if err := dec.Decode(&req); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "decode request body", err)
	}
	if req.Statement == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "statement is required")
	}
	for k, v := range req.Values {
		req.Values[k] = fromJSON(v)
	}
	return &req, nil
}

// fromJSON turns a json.Number into an int64 when it is integral and into
// its text otherwise, so the binder sees a scalar it knows.
func fromJSON(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	return n.String()
}

func schemaParam(r *http.Request) string {
	if s := r.URL.Query().Get("schema"); s != "" {
		return s
	}
	return "public"
}

func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindInvalidInput:
		return http.StatusBadRequest
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindConstraint:
		return http.StatusConflict
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrKindConnectionFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), ErrorResponse{
		Error: err.Error(),
		Kind:  errs.KindOf(err).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
