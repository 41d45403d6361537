package server

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/cyclopcam/imclass/pkg/storage"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

// List snapshots, optionally for a single day.
// Example: curl "localhost:8080/api/snapshots?day=2024-03-01"
func (s *Server) httpSnapshotList(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if s.Archiver == nil {
		www.PanicBadRequestf("Snapshots are disabled")
	}
	names, err := s.Archiver.List(r.Context(), www.QueryValue(r, "day"))
	if err != nil {
		www.PanicBadRequestf("%v", err)
	}
	www.CacheNever(w)
	www.SendJSON(w, names)
}

// Example: curl -o snap.jpg localhost:8080/api/snapshot/2024-03-01/1709294400000-cat.jpg
func (s *Server) httpSnapshotGet(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if s.Archiver == nil {
		www.PanicBadRequestf("Snapshots are disabled")
	}
	name := strings.TrimPrefix(params.ByName("name"), "/")
	jpg, err := s.Archiver.Read(r.Context(), name)
	if errors.Is(err, storage.ErrInvalidName) {
		www.PanicBadRequestf("%v", err)
	} else if errors.Is(err, os.ErrNotExist) {
		www.SendError(w, "Snapshot not found", http.StatusNotFound)
		return
	}
	www.Check(err)
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "max-age=31536000, immutable")
	w.Write(jpg)
}
