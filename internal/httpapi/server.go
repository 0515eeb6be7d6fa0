// Package httpapi is the HTTP boundary of the graph context service.
//
// Every request runs in exactly one graph transaction. Errors are reported
// as {"error": {kind, message, field, type, retryable}} with a status code
// chosen from the error kind.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mesh-intelligence/graphctx/pkg/types"
)

// Prefix is the path prefix of every API route except /health.
const Prefix = "/api/v1"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 8 << 20

// Graph is the set of graph operations the API serves. *graph.Graph
// implements it.
type Graph interface {
	RegisterEntityType(ctx context.Context, def types.EntityType) (bool, error)
	RegisterRelationType(ctx context.Context, def types.RelationType) (bool, error)
	EntityType(name string) (types.EntityType, error)
	RelationType(name string) (types.RelationType, error)
	EntityTypes() []types.EntityType
	RelationTypes() []types.RelationType

	CreateEntity(ctx context.Context, typeName string, props types.Properties) (types.Entity, error)
	GetEntity(ctx context.Context, id string) (types.Entity, error)
	UpdateEntity(ctx context.Context, id string, patch types.Properties) (types.Entity, error)
	DeleteEntity(ctx context.Context, id string) error

	CreateRelation(ctx context.Context, typeName, fromID, toID string, props types.Properties) (types.Relation, error)
	GetRelation(ctx context.Context, id string) (types.Relation, error)
	UpdateRelation(ctx context.Context, id string, patch types.Properties) (types.Relation, error)
	DeleteRelation(ctx context.Context, id string) error

	Query(ctx context.Context, spec types.QuerySpec) ([]types.Entity, error)
	Traverse(ctx context.Context, spec types.TraversalSpec) (types.TraversalResult, error)
	ApplyBatch(ctx context.Context, steps []types.BatchStep) (types.BatchResult, error)
}

// Options configure a Server.
type Options struct {
	// RequestTimeout bounds each request. Zero means no bound.
	RequestTimeout time.Duration
	// Logger is the base request logger. Nil means slog.Default().
	Logger *slog.Logger
	// Version is reported by /health.
	Version string
}

// Server routes HTTP requests to a Graph.
type Server struct {
	g       Graph
	opts    Options
	handler http.Handler
}

// New returns a server for g.
func New(g Graph, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{g: g, opts: opts}
	s.handler = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(requestLogger(s.opts.Logger))
	r.Use(recoverPanics)
	r.Use(withTimeout(s.opts.RequestTimeout))

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	api := r.PathPrefix(Prefix).Subrouter()
	api.HandleFunc("/health", s.health).Methods(http.MethodGet)

	api.HandleFunc("/entity-types", s.registerEntityType).Methods(http.MethodPost)
	api.HandleFunc("/entity-types", s.listEntityTypes).Methods(http.MethodGet)
	api.HandleFunc("/entity-types/{name}", s.getEntityType).Methods(http.MethodGet)
	api.HandleFunc("/relation-types", s.registerRelationType).Methods(http.MethodPost)
	api.HandleFunc("/relation-types", s.listRelationTypes).Methods(http.MethodGet)
	api.HandleFunc("/relation-types/{name}", s.getRelationType).Methods(http.MethodGet)

	api.HandleFunc("/entities", s.createEntity).Methods(http.MethodPost)
	api.HandleFunc("/entities/{id}", s.getEntity).Methods(http.MethodGet)
	api.HandleFunc("/entities/{id}", s.updateEntity).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/entities/{id}", s.deleteEntity).Methods(http.MethodDelete)

	api.HandleFunc("/relations", s.createRelation).Methods(http.MethodPost)
	api.HandleFunc("/relations/{id}", s.getRelation).Methods(http.MethodGet)
	api.HandleFunc("/relations/{id}", s.updateRelation).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/relations/{id}", s.deleteRelation).Methods(http.MethodDelete)

	api.HandleFunc("/query", s.query).Methods(http.MethodPost)
	api.HandleFunc("/traverse", s.traverse).Methods(http.MethodPost)
	api.HandleFunc("/batch", s.batch).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{Kind: "NotFound", Message: "no route for " + r.URL.Path}})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
