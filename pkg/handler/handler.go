package handler

import (
	"compress/flate"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/rs/cors"

	log "github.com/sirupsen/logrus"

	"github.com/invisy/PitDetector/internal/pkg/database"
	"github.com/invisy/PitDetector/internal/pkg/hub"
	"github.com/invisy/PitDetector/internal/pkg/messaging/commands"
	"github.com/invisy/PitDetector/internal/pkg/pipeline"
)

//SubscriberRegistry keeps track of live websocket subscribers
type SubscriberRegistry interface {
	Subscribe(s hub.Subscriber) hub.Handle
	Unsubscribe(handle hub.Handle) bool
}

//RequestRouter wraps the concrete router implementation
type RequestRouter struct {
	impl *chi.Mux
}

func (router *RequestRouter) Delete(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Delete(pattern, handlerFn)
}

func (router *RequestRouter) Get(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Get(pattern, handlerFn)
}

func (router *RequestRouter) Post(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Post(pattern, handlerFn)
}

func (router *RequestRouter) Put(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Put(pattern, handlerFn)
}

//ServeHTTP lets the router be used as an http.Handler
func (router *RequestRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	router.impl.ServeHTTP(w, r)
}

func (router *RequestRouter) addStoreHandlers(p *pipeline.Pipeline, store database.Datastore) {
	// Enable compression for json responses. The websocket route stays outside of this group
	// since it needs to hijack the uncompressed connection.
	compressor := middleware.NewCompressor(flate.DefaultCompression, "application/json")

	router.impl.Group(func(r chi.Router) {
		r.Use(compressor.Handler)

		r.Post("/processed_agent_data/", NewCreateProcessedAgentDataHandler(p))
		r.Post("/agent_data/", NewCreateAgentDataHandler(p))
		r.Get("/processed_agent_data/", NewListProcessedAgentDataHandler(store))
		r.Get("/processed_agent_data/{id}", NewReadProcessedAgentDataHandler(store))
		r.Put("/processed_agent_data/{id}", NewUpdateProcessedAgentDataHandler(p, store))
		r.Delete("/processed_agent_data/{id}", NewDeleteProcessedAgentDataHandler(store))
	})
}

func (router *RequestRouter) addSubscriptionHandlers(registry SubscriberRegistry) {
	router.Get("/ws/", NewWebsocketHandler(registry))
}

func newRequestRouter() *RequestRouter {
	router := &RequestRouter{impl: chi.NewRouter()}

	router.impl.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowCredentials: true,
		Debug:            false,
	}).Handler)

	router.impl.Use(middleware.Logger)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	return router
}

//CreateRequestRouter creates a request router and registers all handlers
func CreateRequestRouter(p *pipeline.Pipeline, store database.Datastore, registry SubscriberRegistry) *RequestRouter {
	router := newRequestRouter()

	router.addStoreHandlers(p, store)
	router.addSubscriptionHandlers(registry)

	return router
}

//CreateRouterAndStartServing creates a request router, registers all handlers and serves requests
//until the context is cancelled.
func CreateRouterAndStartServing(ctx context.Context, port string, p *pipeline.Pipeline, store database.Datastore, registry SubscriberRegistry) error {
	router := CreateRequestRouter(p, store, registry)

	server := &http.Server{Addr: ":" + port, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting road store api on port %s.", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		log.Info("Shutting down road store api ...")
		return server.Shutdown(shutdownCtx)
	}
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("Failed to encode response: %s", err.Error())
	}
}

//writeError maps the error taxonomy onto http status codes
func writeError(w http.ResponseWriter, err error) {
	var verr *pipeline.ValidationError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: err.Error()})
	case errors.Is(err, database.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: err.Error()})
	default:
		log.Errorf("Request failed: %s", err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "internal server error"})
	}
}

func idFromRequest(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "id must be a positive integer"})
		return 0, false
	}
	return uint(id), true
}

//NewCreateProcessedAgentDataHandler stores a batch of (optionally pre-classified) agent data
func NewCreateProcessedAgentDataHandler(p *pipeline.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batch := []commands.ProcessedAgentData{}
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid payload: " + err.Error()})
			return
		}

		classified, err := pipeline.ParseProcessedAgentData(batch, p.Classifier())
		if err != nil {
			writeError(w, err)
			return
		}

		records, err := p.IngestClassified(r.Context(), classified)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, records)
	}
}

//NewCreateAgentDataHandler classifies and stores a batch of raw agent data
func NewCreateAgentDataHandler(p *pipeline.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batch := []commands.AgentData{}
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid payload: " + err.Error()})
			return
		}

		records, err := p.IngestAgentData(r.Context(), batch)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, records)
	}
}

func NewReadProcessedAgentDataHandler(store database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idFromRequest(w, r)
		if !ok {
			return
		}

		record, err := store.GetProcessedAgentDataByID(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, record)
	}
}

func NewListProcessedAgentDataHandler(store database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := store.ListProcessedAgentData(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, records)
	}
}

func NewUpdateProcessedAgentDataHandler(p *pipeline.Pipeline, store database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idFromRequest(w, r)
		if !ok {
			return
		}

		data := commands.ProcessedAgentData{}
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid payload: " + err.Error()})
			return
		}

		classified, err := pipeline.ParseProcessedAgentDataItem(data, p.Classifier())
		if err != nil {
			writeError(w, err)
			return
		}

		record, err := store.UpdateProcessedAgentData(r.Context(), id, classified)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, record)
	}
}

func NewDeleteProcessedAgentDataHandler(store database.Datastore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idFromRequest(w, r)
		if !ok {
			return
		}

		if err := store.DeleteProcessedAgentData(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
