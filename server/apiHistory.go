package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/imclass/pkg/nn"
	"github.com/cyclopcam/imclass/pkg/pwdhash"
	"github.com/cyclopcam/imclass/server/resultdb"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

const defaultHistoryLimit = 100
const maxHistoryLimit = 1000

// SYNC-HISTORY-JSON
type historyItemJSON struct {
	resultdb.Result
	Top []nn.ClassPrediction `json:"top"`
}

func (s *Server) historyOrPanic() *resultdb.ResultDB {
	if s.History == nil {
		www.PanicBadRequestf("History is disabled")
	}
	return s.History
}

// Panics unless the request carries the admin password via BASIC authentication
func (s *Server) requireAdmin(r *http.Request) {
	if s.Config.AdminPasswordHash == "" {
		www.PanicForbiddenf("Admin API is disabled, because no admin password has been configured")
	}
	username, password, ok := r.BasicAuth()
	if !ok || username != "admin" || !pwdhash.VerifyHashBase64(password, s.Config.AdminPasswordHash) {
		www.PanicForbidden()
	}
}

// Example: curl "localhost:8080/api/history?limit=10"
func (s *Server) httpHistory(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	history := s.historyOrPanic()
	limit := defaultHistoryLimit
	if _, ok := r.URL.Query()["limit"]; ok {
		limit = www.QueryInt(r, "limit")
		if limit < 1 || limit > maxHistoryLimit {
			www.PanicBadRequestf("limit must be between 1 and %v", maxHistoryLimit)
		}
	}
	results, err := history.Recent(limit)
	www.Check(err)
	items := make([]historyItemJSON, len(results))
	for i := range results {
		items[i] = historyItemJSON{
			Result: results[i],
			Top:    results[i].Predictions(),
		}
	}
	www.CacheNever(w)
	www.SendJSON(w, items)
}

// Number of results per class, over the last 'hours' (default 24)
func (s *Server) httpHistoryClasses(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	history := s.historyOrPanic()
	hours := 24
	if _, ok := r.URL.Query()["hours"]; ok {
		hours = www.QueryInt(r, "hours")
		if hours < 1 {
			www.PanicBadRequestf("hours must be at least 1")
		}
	}
	counts, err := history.ClassCounts(time.Now().Add(-time.Duration(hours) * time.Hour))
	www.Check(err)
	www.CacheNever(w)
	www.SendJSON(w, counts)
}

// Example: curl -u admin:password -X DELETE localhost:8080/api/history
func (s *Server) httpHistoryDelete(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	history := s.historyOrPanic()
	n, err := history.DeleteAll()
	www.Check(err)
	s.Log.Infof("Deleted %v history records", n)
	www.SendOK(w)
}
