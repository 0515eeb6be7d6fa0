package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mesh-intelligence/graphctx/pkg/types"
)

type createEntityRequest struct {
	EntityType string           `json:"entity_type"`
	Properties types.Properties `json:"properties"`
}

type createRelationRequest struct {
	RelationType string           `json:"relation_type"`
	From         string           `json:"from_entity"`
	To           string           `json:"to_entity"`
	Properties   types.Properties `json:"properties"`
}

type batchRequest struct {
	Steps []types.BatchStep `json:"steps"`
}

// readBody returns the request body, rejecting empty and oversized ones.
func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, &badRequest{msg: "read request body", err: err}
	}
	if len(body) > maxBodyBytes {
		return nil, &badRequest{msg: "request body is too large"}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &badRequest{msg: "request body is empty"}
	}
	return body, nil
}

// decodeStrict decodes exactly one JSON value into v, rejecting unknown
// fields.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &badRequest{msg: "malformed JSON body", err: err}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &badRequest{msg: "body must hold a single JSON value"}
	}
	return nil
}

func decode(r *http.Request, v any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	return decodeStrict(body, v)
}

// decodeWrapped decodes a body that is either v itself or an object whose
// only key is wrapper holding v.
func decodeWrapped(r *http.Request, wrapper string, v any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err == nil && len(probe) == 1 {
		if inner, ok := probe[wrapper]; ok {
			body = inner
		}
	}
	return decodeStrict(body, v)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.opts.Version})
}

func registered(created bool) int {
	if created {
		return http.StatusCreated
	}
	return http.StatusOK
}

func (s *Server) registerEntityType(w http.ResponseWriter, r *http.Request) {
	var def types.EntityType
	if err := decode(r, &def); err != nil {
		writeError(w, r, err, false)
		return
	}
	created, err := s.g.RegisterEntityType(r.Context(), def)
	if err != nil {
		writeError(w, r, err, false)
		return
	}
	stored, err := s.g.EntityType(def.Name)
	if err != nil {
		writeError(w, r, err, false)
		return
	}
	writeJSON(w, registered(created), stored)
}

func (s *Server) listEntityTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.g.EntityTypes()))
}

func (s *Server) getEntityType(w http.ResponseWriter, r *http.Request) {
	def, err := s.g.EntityType(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) registerRelationType(w http.ResponseWriter, r *http.Request) {
	var def types.RelationType
	if err := decode(r, &def); err != nil {
		writeError(w, r, err, false)
		return
	}
	created, err := s.g.RegisterRelationType(r.Context(), def)
	if err != nil {
		writeError(w, r, err, false)
		return
	}
	stored, err := s.g.RelationType(def.Name)
	if err != nil {
		writeError(w, r, err, false)
		return
	}
	writeJSON(w, registered(created), stored)
}

func (s *Server) listRelationTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.g.RelationTypes()))
}

func (s *Server) getRelationType(w http.ResponseWriter, r *http.Request) {
	def, err := s.g.RelationType(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) createEntity(w http.ResponseWriter, r *http.Request) {
	var req createEntityRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err, false)
		return
	}
	e, err := s.g.CreateEntity(r.Context(), req.EntityType, req.Properties)
	if err != nil {
		writeError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) getEntity(w http.ResponseWriter, r *http.Request) {
	e, err := s.g.GetEntity(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// updateEntity takes the property patch itself as the body.
func (s *Server) updateEntity(w http.ResponseWriter, r *http.Request) {
	var patch types.Properties
	if err := decode(r, &patch); err != nil {
		writeError(w, r, err, false)
		return
	}
	e, err := s.g.UpdateEntity(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		writeError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) deleteEntity(w http.ResponseWriter, r *http.Request) {
	if err := s.g.DeleteEntity(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err, false)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createRelation(w http.ResponseWriter, r *http.Request) {
	var req createRelationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err, false)
		return
	}
	required := []struct{ field, value string }{
		{"relation_type", req.RelationType},
		{"from_entity", req.From},
		{"to_entity", req.To},
	}
	for _, f := range required {
		if f.value == "" {
			writeError(w, r, &badRequest{msg: f.field + " is required"}, false)
			return
		}
	}
	rel, err := s.g.CreateRelation(r.Context(), req.RelationType, req.From, req.To, req.Properties)
	if err != nil {
		writeError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

func (s *Server) getRelation(w http.ResponseWriter, r *http.Request) {
	rel, err := s.g.GetRelation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (s *Server) updateRelation(w http.ResponseWriter, r *http.Request) {
	var patch types.Properties
	if err := decode(r, &patch); err != nil {
		writeError(w, r, err, false)
		return
	}
	rel, err := s.g.UpdateRelation(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		writeError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (s *Server) deleteRelation(w http.ResponseWriter, r *http.Request) {
	if err := s.g.DeleteRelation(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err, false)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// query accepts a QuerySpec, optionally wrapped as {"query_spec": ...}.
func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var spec types.QuerySpec
	if err := decodeWrapped(r, "query_spec", &spec); err != nil {
		writeError(w, r, err, false)
		return
	}
	entities, err := s.g.Query(r.Context(), spec)
	if err != nil {
		writeError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entities))
}

// traverse accepts a TraversalSpec, optionally wrapped as
// {"traversal_spec": ...}.
func (s *Server) traverse(w http.ResponseWriter, r *http.Request) {
	var spec types.TraversalSpec
	if err := decodeWrapped(r, "traversal_spec", &spec); err != nil {
		writeError(w, r, err, false)
		return
	}
	res, err := s.g.Traverse(r.Context(), spec)
	if err != nil {
		writeError(w, r, err, false)
		return
	}
	res.Entities = nonNil(res.Entities)
	res.Relations = nonNil(res.Relations)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err, false)
		return
	}
	res, err := s.g.ApplyBatch(r.Context(), req.Steps)
	if err != nil {
		writeError(w, r, err, false)
		return
	}
	res.Entities = nonNil(res.Entities)
	res.Relations = nonNil(res.Relations)
	writeJSON(w, http.StatusCreated, res)
}

// nonNil makes empty results encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
