package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sentinelwatch/sentinelwatch/internal/domain/auth"
)

// apiError is the JSON error envelope spec.md §7 requires for every
// HTTP error response.
type apiError struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
		Detail  string `json:"detail,omitempty"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, kind, message, detail string) {
	var e apiError
	e.Error.Kind = kind
	e.Error.Message = message
	e.Error.Detail = detail
	writeJSON(w, status, e)
}

func readJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func verifyBearer(token, storedHash string) (bool, error) {
	return auth.VerifyKey(token, storedHash)
}

// pageParams is the validated result of parsing page/page_size/sort/order
// query parameters, centralized here so every paginated handler applies
// spec.md §6's pagination rule identically.
type pageParams struct {
	Page     int
	PageSize int
	Sort     string
	Order    string
}

// parsePageParams validates page/page_size/sort/order against
// allowedSort, the indexed-column allowlist for the endpoint being
// queried. defaultSort is used when the caller omits "sort".
func parsePageParams(q url.Values, allowedSort map[string]bool, defaultSort string) (pageParams, error) {
	p := pageParams{Page: 1, PageSize: 20, Sort: defaultSort, Order: "desc"}

	if s := q.Get("page"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return pageParams{}, fmt.Errorf("page must be an integer >= 1")
		}
		p.Page = v
	}
	if s := q.Get("page_size"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > 100 {
			return pageParams{}, fmt.Errorf("page_size must be an integer between 1 and 100")
		}
		p.PageSize = v
	}
	if s := q.Get("sort"); s != "" {
		if !allowedSort[s] {
			return pageParams{}, fmt.Errorf("sort must be one of the indexed columns")
		}
		p.Sort = s
	}
	if s := q.Get("order"); s != "" {
		if s != "asc" && s != "desc" {
			return pageParams{}, fmt.Errorf("order must be 'asc' or 'desc'")
		}
		p.Order = s
	}
	return p, nil
}

func totalPages(total, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	pages := total / pageSize
	if total%pageSize != 0 {
		pages++
	}
	return pages
}
