// Package handler implements the HTTP handlers of the report API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/healthreport/internal/api/middleware"
	"github.com/kiranshivaraju/healthreport/internal/api/response"
	"github.com/kiranshivaraju/healthreport/internal/catalog"
	"github.com/kiranshivaraju/healthreport/internal/selection"
	"github.com/kiranshivaraju/healthreport/pkg/models"
)

const maxBodyBytes = 1 << 20

func userFrom(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := mw.GetUserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
	}
	return userID, ok
}

// decodeBody decodes an optional JSON body. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.Error(w, http.StatusBadRequest, code, fmt.Sprintf("Invalid %s", name), nil)
		return uuid.Nil, false
	}
	return id, true
}

func queryLimit(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// selectionJSON renders every variant under its wire key, empty lists included.
func selectionJSON(s selection.Snapshot) map[string][]string {
	out := make(map[string][]string, len(models.Variants))
	for _, v := range models.Variants {
		out[v.WireKey()] = s.IDs(v)
	}
	return out
}

// parseSelection reads wire-keyed id lists. Unknown keys are rejected.
func parseSelection(in map[string][]string) (map[models.Variant][]string, error) {
	out := make(map[models.Variant][]string, len(in))
	for key, ids := range in {
		v, ok := models.ParseVariant(key)
		if !ok {
			return nil, fmt.Errorf("%w: %q", catalog.ErrUnknownVariant, key)
		}
		out[v] = ids
	}
	return out, nil
}
