package server

import (
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/staticfiles"
	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

//go:embed static
var staticWWW embed.FS

// Maximum size of an image uploaded to /api/classify
const maxClassifyBodyBytes = 8 * 1024 * 1024

func (s *Server) setupHttpRoutes() error {
	logEveryRequest := false
	router := httprouter.New()

	handle := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			if logEveryRequest {
				s.Log.Infof("HTTP %v %v", method, r.URL.Path)
			}
			handle(w, r, params)
		})
	}

	// We create a unique rate limiter for each endpoint, keyed by IP
	ratelimited := func(method, route string, handle httprouter.Handle, requestLimit int, windowLength time.Duration) {
		limiter := httprate.Limit(requestLimit, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP))
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	// admin requires BASIC authentication with the admin password
	admin := func(method, route string, handle httprouter.Handle) {
		ratelimited(method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			s.requireAdmin(r)
			handle(w, r, params)
		}, 1, time.Second)
	}

	handle("GET", "/api/ping", s.httpPing)
	handle("GET", "/api/model", s.httpModel)
	handle("GET", "/api/result", s.httpResult)
	handle("GET", "/api/stats", s.httpStats)
	handle("GET", "/api/latestImage", s.httpLatestImage)
	handle("GET", "/api/ws", s.httpStreamResults)
	ratelimited("POST", "/api/classify", s.httpClassify, s.Config.Model.ClassifyRate, time.Second)

	handle("GET", "/api/history", s.httpHistory)
	handle("GET", "/api/history/classes", s.httpHistoryClasses)
	admin("DELETE", "/api/history", s.httpHistoryDelete)

	handle("GET", "/api/snapshots", s.httpSnapshotList)
	handle("GET", "/api/snapshot/*name", s.httpSnapshotGet)

	isImmutable := true
	var fsys fs.FS
	fsysRoot := "static"
	fsys = staticWWW
	if s.Config.HotReloadWWW {
		relRoot := "server/static"
		absRoot, err := filepath.Abs(relRoot)
		if err != nil {
			s.Log.Errorf("Failed to resolve static file directory %v: %v", relRoot, err)
			return errors.New("Failed to resolve static file directory for hot reload")
		}
		s.Log.Infof("Serving static files from %v, with hot reload", absRoot)
		fsys = os.DirFS(absRoot)
		fsysRoot = ""
		isImmutable = false
	}

	static, err := staticfiles.NewCachedStaticFileServer(fsys, fsysRoot, []string{"/api/"}, s.Log, isImmutable, nil)
	if err != nil {
		s.Log.Warnf("Error in static files: %v", err)
	} else {
		router.NotFound = static
	}

	s.httpRouter = router
	return nil
}
