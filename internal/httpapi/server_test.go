package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/graphctx/internal/memstore"
	"github.com/mesh-intelligence/graphctx/pkg/graph"
	"github.com/mesh-intelligence/graphctx/pkg/types"
)

const (
	personType  = `{"name":"Person","properties":{"name":{"type":"string","required":true},"age":{"type":"integer"}}}`
	companyType = `{"name":"Company","properties":{"name":{"type":"string","required":true}}}`
	worksAtType = `{"name":"WORKS_AT","from_types":["Person"],"to_types":["Company"],"properties":{"role":{"type":"string"}}}`
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServer(t *testing.T) *Server {
	t.Helper()
	g, err := graph.New(context.Background(), memstore.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return New(g, Options{Logger: quietLogger(), Version: "test"})
}

type response struct {
	code   int
	header http.Header
	body   []byte
}

func do(t *testing.T, h http.Handler, method, path, body string) response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return response{code: rec.Code, header: rec.Header(), body: rec.Body.Bytes()}
}

func decodeAs[T any](t *testing.T, r response) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.body, &v), string(r.body))
	return v
}

func errorOf(t *testing.T, r response) errorDetail {
	return decodeAs[errorBody](t, r).Error
}

// seed registers Person, Company and WORKS_AT and returns the ids of Alice,
// Bob and Acme, with both people working at Acme.
func seed(t *testing.T, s *Server) (alice, bob, acme string) {
	t.Helper()
	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, Prefix+"/entity-types", personType).code)
	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, Prefix+"/entity-types", companyType).code)
	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, Prefix+"/relation-types", worksAtType).code)

	create := func(body string) string {
		r := do(t, s, http.MethodPost, Prefix+"/entities", body)
		require.Equal(t, http.StatusCreated, r.code, string(r.body))
		return decodeAs[types.Entity](t, r).ID
	}
	alice = create(`{"entity_type":"Person","properties":{"name":"Alice","age":30}}`)
	bob = create(`{"entity_type":"Person","properties":{"name":"Bob","age":41}}`)
	acme = create(`{"entity_type":"Company","properties":{"name":"Acme"}}`)

	for _, from := range []string{alice, bob} {
		r := do(t, s, http.MethodPost, Prefix+"/relations",
			`{"relation_type":"WORKS_AT","from_entity":"`+from+`","to_entity":"`+acme+`"}`)
		require.Equal(t, http.StatusCreated, r.code, string(r.body))
	}
	return alice, bob, acme
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	for _, path := range []string{"/health", Prefix + "/health"} {
		r := do(t, s, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, r.code)
		got := decodeAs[map[string]string](t, r)
		assert.Equal(t, "ok", got["status"])
		assert.Equal(t, "test", got["version"])
		assert.NotEmpty(t, r.header.Get(RequestIDHeader))
	}
}

func TestRegisterTypeIsIdempotent(t *testing.T) {
	s := newServer(t)

	r := do(t, s, http.MethodPost, Prefix+"/entity-types", personType)
	require.Equal(t, http.StatusCreated, r.code)
	def := decodeAs[types.EntityType](t, r)
	assert.Equal(t, []string{"name", "age"}, def.Properties.Names())

	r = do(t, s, http.MethodPost, Prefix+"/entity-types", personType)
	assert.Equal(t, http.StatusOK, r.code)

	r = do(t, s, http.MethodPost, Prefix+"/entity-types", `{"name":"Person","properties":{"name":{"type":"integer"}}}`)
	require.Equal(t, http.StatusConflict, r.code)
	e := errorOf(t, r)
	assert.Equal(t, string(types.KindTypeConflict), e.Kind)
	assert.Equal(t, "Person", e.Type)
	assert.False(t, e.Retryable)

	r = do(t, s, http.MethodGet, Prefix+"/entity-types", "")
	require.Equal(t, http.StatusOK, r.code)
	assert.Len(t, decodeAs[[]types.EntityType](t, r), 1)
}

func TestGetUnknownTypeIsNotFound(t *testing.T) {
	s := newServer(t)
	r := do(t, s, http.MethodGet, Prefix+"/entity-types/Ghost", "")
	require.Equal(t, http.StatusNotFound, r.code)
	assert.Equal(t, string(types.KindUnknownType), errorOf(t, r).Kind)

	r = do(t, s, http.MethodGet, Prefix+"/relation-types/GHOST", "")
	assert.Equal(t, http.StatusNotFound, r.code)

	r = do(t, s, http.MethodGet, Prefix+"/relation-types", "")
	require.Equal(t, http.StatusOK, r.code)
	assert.JSONEq(t, `[]`, string(r.body))
}

func TestEntityLifecycle(t *testing.T) {
	s := newServer(t)
	alice, _, acme := seed(t, s)

	r := do(t, s, http.MethodGet, Prefix+"/entities/"+alice, "")
	require.Equal(t, http.StatusOK, r.code)
	e := decodeAs[types.Entity](t, r)
	assert.Equal(t, "Person", e.Type)
	assert.Equal(t, types.String("Alice"), e.Properties["name"])

	r = do(t, s, http.MethodPatch, Prefix+"/entities/"+alice, `{"age":31}`)
	require.Equal(t, http.StatusOK, r.code, string(r.body))
	assert.Equal(t, types.Int(31), decodeAs[types.Entity](t, r).Properties["age"])

	r = do(t, s, http.MethodPut, Prefix+"/entities/"+alice, `{"age":null}`)
	require.Equal(t, http.StatusOK, r.code, string(r.body))
	_, hasAge := decodeAs[types.Entity](t, r).Properties["age"]
	assert.False(t, hasAge)

	r = do(t, s, http.MethodDelete, Prefix+"/entities/"+acme, "")
	require.Equal(t, http.StatusNoContent, r.code)
	assert.Empty(t, r.body)

	r = do(t, s, http.MethodGet, Prefix+"/entities/"+acme, "")
	require.Equal(t, http.StatusNotFound, r.code)
	assert.Equal(t, string(types.KindEntityNotFound), errorOf(t, r).Kind)

	r = do(t, s, http.MethodPost, Prefix+"/traverse",
		`{"start_entity":"`+alice+`","direction":"both"}`)
	require.Equal(t, http.StatusOK, r.code)
	assert.JSONEq(t, `{"entities":[],"relations":[]}`, string(r.body))
}

func TestCreateEntityErrors(t *testing.T) {
	s := newServer(t)
	seed(t, s)

	tests := []struct {
		name   string
		body   string
		status int
		kind   string
		field  string
	}{
		{"empty body", "", http.StatusBadRequest, kindBadRequest, ""},
		{"blank body", "  \n", http.StatusBadRequest, kindBadRequest, ""},
		{"malformed", `{"entity_type":`, http.StatusBadRequest, kindBadRequest, ""},
		{"unknown request field", `{"entity_type":"Person","props":{}}`, http.StatusBadRequest, kindBadRequest, ""},
		{"trailing value", `{"entity_type":"Person","properties":{"name":"A"}} {}`, http.StatusBadRequest, kindBadRequest, ""},
		{"unknown type", `{"entity_type":"Ghost","properties":{}}`, http.StatusUnprocessableEntity, string(types.KindUnknownType), ""},
		{"missing required", `{"entity_type":"Person","properties":{"age":3}}`, http.StatusUnprocessableEntity, string(types.KindMissingProperty), "name"},
		{"unknown property", `{"entity_type":"Person","properties":{"name":"A","email":"a@b"}}`, http.StatusUnprocessableEntity, string(types.KindUnknownProperty), "email"},
		{"wrong type", `{"entity_type":"Person","properties":{"name":"A","age":"old"}}`, http.StatusUnprocessableEntity, string(types.KindTypeMismatch), "age"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := do(t, s, http.MethodPost, Prefix+"/entities", tt.body)
			require.Equal(t, tt.status, r.code, string(r.body))
			e := errorOf(t, r)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.field, e.Field)
			assert.False(t, e.Retryable)
			assert.NotEmpty(t, e.Message)
		})
	}
}

func TestBodyTooLarge(t *testing.T) {
	s := newServer(t)
	body := `{"entity_type":"Person","properties":{"name":"` + strings.Repeat("x", maxBodyBytes) + `"}}`
	r := do(t, s, http.MethodPost, Prefix+"/entities", body)
	require.Equal(t, http.StatusBadRequest, r.code)
	assert.Contains(t, errorOf(t, r).Message, "too large")
}

func TestRelationEndpoints(t *testing.T) {
	s := newServer(t)
	alice, bob, acme := seed(t, s)

	r := do(t, s, http.MethodPost, Prefix+"/relations", `{"relation_type":"WORKS_AT","from_entity":"`+alice+`"}`)
	require.Equal(t, http.StatusBadRequest, r.code)
	assert.Contains(t, errorOf(t, r).Message, "to_entity")

	r = do(t, s, http.MethodPost, Prefix+"/relations",
		`{"relation_type":"WORKS_AT","from_entity":"`+acme+`","to_entity":"`+bob+`"}`)
	require.Equal(t, http.StatusUnprocessableEntity, r.code)
	e := errorOf(t, r)
	assert.Equal(t, string(types.KindEndpointTypeMismatch), e.Kind)
	assert.Equal(t, "from_entity", e.Field)

	r = do(t, s, http.MethodPost, Prefix+"/relations",
		`{"relation_type":"WORKS_AT","from_entity":"`+alice+`","to_entity":"nope"}`)
	require.Equal(t, http.StatusNotFound, r.code)
	assert.Equal(t, string(types.KindEntityNotFound), errorOf(t, r).Kind)

	r = do(t, s, http.MethodPost, Prefix+"/relations",
		`{"relation_type":"WORKS_AT","from_entity":"`+alice+`","to_entity":"`+acme+`","properties":{"role":"cto"}}`)
	require.Equal(t, http.StatusCreated, r.code)
	rel := decodeAs[types.Relation](t, r)
	assert.Equal(t, alice, rel.FromID)
	assert.Equal(t, acme, rel.ToID)

	r = do(t, s, http.MethodPatch, Prefix+"/relations/"+rel.ID, `{"role":"ceo"}`)
	require.Equal(t, http.StatusOK, r.code)
	assert.Equal(t, types.String("ceo"), decodeAs[types.Relation](t, r).Properties["role"])

	r = do(t, s, http.MethodDelete, Prefix+"/relations/"+rel.ID, "")
	require.Equal(t, http.StatusNoContent, r.code)

	r = do(t, s, http.MethodGet, Prefix+"/relations/"+rel.ID, "")
	require.Equal(t, http.StatusNotFound, r.code)
	assert.Equal(t, string(types.KindRelationNotFound), errorOf(t, r).Kind)
}

func TestQueryEndpoint(t *testing.T) {
	s := newServer(t)
	alice, bob, _ := seed(t, s)

	for _, body := range []string{
		`{"entity_type":"Person","conditions":[{"field":"age","operator":"gt","value":35}]}`,
		`{"query_spec":{"entity_type":"Person","conditions":[{"field":"age","operator":"gt","value":35}]}}`,
	} {
		r := do(t, s, http.MethodPost, Prefix+"/query", body)
		require.Equal(t, http.StatusOK, r.code, string(r.body))
		got := decodeAs[[]types.Entity](t, r)
		require.Len(t, got, 1)
		assert.Equal(t, bob, got[0].ID)
	}

	r := do(t, s, http.MethodPost, Prefix+"/query", `{"entity_type":"Person","limit":1}`)
	require.Equal(t, http.StatusOK, r.code)
	got := decodeAs[[]types.Entity](t, r)
	require.Len(t, got, 1)
	assert.Equal(t, alice, got[0].ID)

	r = do(t, s, http.MethodPost, Prefix+"/query", `{"entity_type":"Person","conditions":[{"field":"name","operator":"eq","value":"Nobody"}]}`)
	require.Equal(t, http.StatusOK, r.code)
	assert.JSONEq(t, `[]`, string(r.body))

	r = do(t, s, http.MethodPost, Prefix+"/query", `{"entity_type":"Person","conditions":[{"field":"age","operator":"contains","value":3}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, r.code)
	assert.Equal(t, string(types.KindInvalidQuerySpec), errorOf(t, r).Kind)
}

func TestTraverseEndpoint(t *testing.T) {
	s := newServer(t)
	alice, bob, acme := seed(t, s)

	r := do(t, s, http.MethodPost, Prefix+"/traverse",
		`{"traversal_spec":{"start_entity":"`+alice+`","direction":"both","max_depth":2}}`)
	require.Equal(t, http.StatusOK, r.code, string(r.body))
	res := decodeAs[types.TraversalResult](t, r)
	require.Len(t, res.Entities, 2)
	assert.Equal(t, acme, res.Entities[0].ID)
	assert.Equal(t, 1, res.Entities[0].Depth)
	assert.Equal(t, bob, res.Entities[1].ID)
	assert.Equal(t, 2, res.Entities[1].Depth)
	assert.Len(t, res.Relations, 2)

	r = do(t, s, http.MethodPost, Prefix+"/traverse",
		`{"start_entity":"`+alice+`","max_depth":0}`)
	require.Equal(t, http.StatusOK, r.code)
	assert.JSONEq(t, `{"entities":[],"relations":[]}`, string(r.body))

	r = do(t, s, http.MethodPost, Prefix+"/traverse", `{"start_entity":"missing"}`)
	require.Equal(t, http.StatusNotFound, r.code)
	assert.Equal(t, string(types.KindEntityNotFound), errorOf(t, r).Kind)
}

func TestBatchEndpoint(t *testing.T) {
	s := newServer(t)
	seed(t, s)

	r := do(t, s, http.MethodPost, Prefix+"/batch", `{"steps":[
		{"op":"create_entity","ref":"carol","entity_type":"Person","properties":{"name":"Carol"}},
		{"op":"create_entity","ref":"initech","entity_type":"Company","properties":{"name":"Initech"}},
		{"op":"create_relation","relation_type":"WORKS_AT","from_entity":"@carol","to_entity":"@initech"}
	]}`)
	require.Equal(t, http.StatusCreated, r.code, string(r.body))
	res := decodeAs[types.BatchResult](t, r)
	require.Len(t, res.Entities, 2)
	require.Len(t, res.Relations, 1)
	assert.Equal(t, res.Refs["carol"], res.Relations[0].FromID)

	before := decodeAs[[]types.Entity](t, do(t, s, http.MethodPost, Prefix+"/query", `{"entity_type":"Person"}`))

	r = do(t, s, http.MethodPost, Prefix+"/batch", `{"steps":[
		{"op":"create_entity","ref":"dave","entity_type":"Person","properties":{"name":"Dave"}},
		{"op":"create_entity","entity_type":"Person","properties":{"age":9}}
	]}`)
	require.Equal(t, http.StatusUnprocessableEntity, r.code)
	assert.Equal(t, string(types.KindMissingProperty), errorOf(t, r).Kind)

	after := decodeAs[[]types.Entity](t, do(t, s, http.MethodPost, Prefix+"/query", `{"entity_type":"Person"}`))
	assert.Len(t, after, len(before))
}

func TestUnknownRoute(t *testing.T) {
	s := newServer(t)
	r := do(t, s, http.MethodGet, Prefix+"/nothing", "")
	require.Equal(t, http.StatusNotFound, r.code)
	assert.Equal(t, "NotFound", errorOf(t, r).Kind)
}

// stubGraph fails every call it does not override.
type stubGraph struct {
	Graph
	createEntity func(ctx context.Context) (types.Entity, error)
}

func (g stubGraph) CreateEntity(ctx context.Context, _ string, _ types.Properties) (types.Entity, error) {
	return g.createEntity(ctx)
}

func TestStorageFailureIsRetryable(t *testing.T) {
	s := New(stubGraph{createEntity: func(context.Context) (types.Entity, error) {
		return types.Entity{}, &types.Error{Kind: types.KindStorageUnavailable, Msg: "disk gone"}
	}}, Options{Logger: quietLogger()})

	r := do(t, s, http.MethodPost, Prefix+"/entities", `{"entity_type":"Person","properties":{}}`)
	require.Equal(t, http.StatusServiceUnavailable, r.code)
	e := errorOf(t, r)
	assert.Equal(t, string(types.KindStorageUnavailable), e.Kind)
	assert.True(t, e.Retryable)
}

func TestPanicBecomesInternalError(t *testing.T) {
	var logs bytes.Buffer
	s := New(stubGraph{createEntity: func(context.Context) (types.Entity, error) {
		panic("boom")
	}}, Options{Logger: slog.New(slog.NewJSONHandler(&logs, nil))})

	r := do(t, s, http.MethodPost, Prefix+"/entities", `{"entity_type":"Person","properties":{}}`)
	require.Equal(t, http.StatusInternalServerError, r.code)
	e := errorOf(t, r)
	assert.Equal(t, kindInternal, e.Kind)
	assert.Equal(t, "internal error", e.Message)
	assert.Contains(t, logs.String(), "boom")
	assert.Contains(t, logs.String(), r.header.Get(RequestIDHeader))
}

func TestRequestTimeoutReachesGraph(t *testing.T) {
	s := New(stubGraph{createEntity: func(ctx context.Context) (types.Entity, error) {
		<-ctx.Done()
		return types.Entity{}, types.Storagef(ctx.Err(), "begin")
	}}, Options{Logger: quietLogger(), RequestTimeout: 10 * time.Millisecond})

	r := do(t, s, http.MethodPost, Prefix+"/entities", `{"entity_type":"Person","properties":{}}`)
	require.Equal(t, http.StatusServiceUnavailable, r.code)
	assert.True(t, errorOf(t, r).Retryable)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind       types.Kind
		typeLookup bool
		want       int
	}{
		{types.KindUnknownType, false, http.StatusUnprocessableEntity},
		{types.KindUnknownType, true, http.StatusNotFound},
		{types.KindTypeConflict, false, http.StatusConflict},
		{types.KindInvalidDefinition, false, http.StatusUnprocessableEntity},
		{types.KindEndpointTypeMismatch, false, http.StatusUnprocessableEntity},
		{types.KindRelationNotFound, false, http.StatusNotFound},
		{types.KindCommitFailed, false, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(&types.Error{Kind: tt.kind}, tt.typeLookup))
		})
	}
	assert.Equal(t, http.StatusBadRequest, statusFor(&badRequest{msg: "x"}, false))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF, false))
}
