// Package api exposes the bridge service over HTTP.
package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"creator-bridge/internal/bridge"
)

// Server routes HTTP requests to a bridge.Service. Every route except
// /health and /metrics requires a bearer token; the token's user id scopes
// all reads and writes.
type Server struct {
	svc    *bridge.Service
	auth   *Authenticator
	logger bridge.Logger
}

func NewServer(svc *bridge.Service, auth *Authenticator, logger bridge.Logger) *Server {
	return &Server{svc: svc, auth: auth, logger: logger}
}

// Handler returns the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Route("/platforms", func(r chi.Router) {
			r.Get("/connections", s.listConnections)
			r.Post("/connections", s.addConnection)
			r.Delete("/connections/{connectionID}", s.deactivateConnection)
			r.Post("/test/{connectionID}", s.testConnection)
			r.Put("/auto-sync/{connectionID}", s.setConnectionAutoSync)
			r.Get("/stats", s.connectionStats)
		})

		r.Route("/content", func(r chi.Router) {
			r.Get("/", s.listContent)
			r.Get("/browse/{connectionID}", s.browse)
			r.Post("/import", s.importVideos)
			r.Get("/stats/overview", s.overview)
			r.Get("/{contentID}", s.getContent)
			r.Put("/{contentID}/metadata", s.updateMetadata)
			r.Put("/{contentID}/auto-sync", s.setAutoSync)
			r.Post("/{contentID}/retry", s.retry)
			r.Delete("/{contentID}", s.archive)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", s.syncStatus)
			r.Get("/destinations", s.destinations)
			r.Post("/bulk", s.bulkSync)
			r.Post("/{contentID}", s.syncOne)
		})
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"pending": s.svc.Engine().Pending(),
	})
}

// Connections

func (s *Server) listConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := s.svc.ListConnections(r.Context(), UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]connectionJSON, 0, len(conns))
	for _, c := range conns {
		out = append(out, toConnectionJSON(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": out})
}

func (s *Server) addConnection(w http.ResponseWriter, r *http.Request) {
	var body connectionBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	conn, err := s.svc.AddConnection(r.Context(), UserID(r.Context()), bridge.ConnectionInput{
		Platform:      body.Platform,
		AccountID:     body.AccountID,
		AccountHandle: body.AccountHandle,
		AccessToken:   body.AccessToken,
		RefreshToken:  body.RefreshToken,
		TokenExpiry:   body.TokenExpiry,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConnectionJSON(conn))
}

func (s *Server) deactivateConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeactivateConnection(r.Context(), UserID(r.Context()), chi.URLParam(r, "connectionID")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) testConnection(w http.ResponseWriter, r *http.Request) {
	check, err := s.svc.TestConnection(r.Context(), UserID(r.Context()), chi.URLParam(r, "connectionID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConnectionCheckJSON(check))
}

func (s *Server) setConnectionAutoSync(w http.ResponseWriter, r *http.Request) {
	var body autoSyncBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	conn, err := s.svc.SetConnectionAutoSync(r.Context(), UserID(r.Context()), chi.URLParam(r, "connectionID"), body.Enabled, body.Destinations)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConnectionJSON(conn))
}

func (s *Server) connectionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.ConnectionStats(r.Context(), UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConnectionStatsJSON(stats))
}

// Content

func (s *Server) listContent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := bridge.RecordFilter{
		Platform: q.Get("platform"),
		Search:   q.Get("search"),
	}
	if v := q.Get("status"); v != "" {
		st, err := bridge.ParseStatus(v)
		if err != nil {
			s.fail(w, r, &requestError{msg: err.Error()})
			return
		}
		f.Status = st
	}
	var err error
	if f.IncludeArchived, err = queryBool(q.Get("includeArchived")); err != nil {
		s.fail(w, r, err)
		return
	}
	if f.Limit, err = queryInt(q.Get("limit"), 20, 1, 100); err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := queryInt(q.Get("page"), 1, 1, 1<<20)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	f.Offset = (page - 1) * f.Limit

	recs, err := s.svc.ListContent(r.Context(), UserID(r.Context()), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]contentJSON, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toContentJSON(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": out, "page": page, "limit": f.Limit})
}

func (s *Server) browse(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r.URL.Query().Get("limit"), 25, 1, 100)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.svc.Browse(r.Context(), UserID(r.Context()), chi.URLParam(r, "connectionID"), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBrowseResponse(page))
}

func (s *Server) importVideos(w http.ResponseWriter, r *http.Request) {
	var body importBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.svc.Import(r.Context(), UserID(r.Context()), body.request())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toImportResponse(res))
}

func (s *Server) overview(w http.ResponseWriter, r *http.Request) {
	ov, err := s.svc.Overview(r.Context(), UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOverviewJSON(ov))
}

func (s *Server) getContent(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.GetContent(r.Context(), UserID(r.Context()), chi.URLParam(r, "contentID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContentJSON(rec))
}

func (s *Server) updateMetadata(w http.ResponseWriter, r *http.Request) {
	var body metadataBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	rec, err := s.svc.UpdateMetadata(r.Context(), UserID(r.Context()), chi.URLParam(r, "contentID"), body.edit())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContentJSON(rec))
}

func (s *Server) setAutoSync(w http.ResponseWriter, r *http.Request) {
	var body autoSyncBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	id := chi.URLParam(r, "contentID")
	if err := s.svc.SetAutoSync(r.Context(), UserID(r.Context()), id, body.Enabled, body.Destinations); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contentId": id, "autoSync": body.Enabled})
}

func (s *Server) retry(w http.ResponseWriter, r *http.Request) {
	ack, err := s.svc.Retry(r.Context(), UserID(r.Context()), chi.URLParam(r, "contentID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contentId": ack.ContentID, "status": string(ack.Status)})
}

func (s *Server) archive(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Archive(r.Context(), UserID(r.Context()), chi.URLParam(r, "contentID")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Sync

func (s *Server) syncOne(w http.ResponseWriter, r *http.Request) {
	var body syncBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	ack, err := s.svc.SyncOne(r.Context(), UserID(r.Context()), chi.URLParam(r, "contentID"), body.Destination)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusAccepted
	if !ack.Accepted {
		status = http.StatusOK
	}
	writeJSON(w, status, syncAckJSON{Accepted: ack.Accepted, ContentID: ack.ContentID, Status: string(ack.Status), Ack: string(ack.Ack)})
}

func (s *Server) bulkSync(w http.ResponseWriter, r *http.Request) {
	var body bulkSyncBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.svc.BulkSync(r.Context(), UserID(r.Context()), body.ContentIDs, body.Destination)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]bulkItemJSON, 0, len(res.Results))
	for _, it := range res.Results {
		out = append(out, bulkItemJSON{ID: it.ID, Status: string(it.Status), Error: it.Error})
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"results": out})
}

func (s *Server) syncStatus(w http.ResponseWriter, r *http.Request) {
	rep, err := s.svc.SyncStatus(r.Context(), UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSyncStatusJSON(rep))
}

func (s *Server) destinations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"destinations": nonNil(s.svc.Destinations())})
}

func queryInt(raw string, def, lo, hi int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, &requestError{msg: "invalid integer query parameter " + strconv.Quote(raw)}
	}
	return n, nil
}

func queryBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &requestError{msg: "invalid boolean query parameter " + strconv.Quote(raw)}
	}
	return b, nil
}
