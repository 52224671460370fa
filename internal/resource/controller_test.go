package resource

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsplatform/internal/access"
	"docsplatform/internal/models"
)

type widget struct {
	ID   int
	Name string
	Tag  string
}

type widgetInput struct {
	Name string `json:"name" validate:"required,max=10"`
	Tag  string `json:"tag" validate:"omitempty,oneof=a b"`
}

type widgetFixture struct {
	project  models.Project
	items    []widget
	rendered map[string]bool
	updated  *widgetInput
}

func newWidgetFixture(count int) *widgetFixture {
	f := &widgetFixture{
		project:  models.Project{ID: 1, Slug: "docs", UserIDs: []int64{1}, Privacy: models.PrivacyPublic},
		rendered: make(map[string]bool),
	}
	for i := 1; i <= count; i++ {
		f.items = append(f.items, widget{ID: i, Name: fmt.Sprintf("widget-%02d", i), Tag: "a"})
	}
	return f
}

func (f *widgetFixture) config() Config[widget] {
	return Config[widget]{
		Name:    "widgets",
		Object:  access.ObjectVersions,
		Actions: []Action{ActionList, ActionRetrieve, ActionCreate, ActionPartialUpdate},
		Parents: func(req *Request) (Scope, error) {
			if req.Param("project_slug") != f.project.Slug {
				return Scope{}, ErrNotFound
			}
			project := f.project
			return Scope{Project: &project}, nil
		},
		List: func(req *Request) ([]widget, error) { return f.items, nil },
		Get: func(req *Request) (widget, error) {
			for _, item := range f.items {
				if fmt.Sprint(item.ID) == req.Param("id") {
					return item, nil
				}
			}
			return widget{}, ErrNotFound
		},
		Create: func(req *Request) (widget, error) {
			input := req.Payload.(*widgetInput)
			item := widget{ID: len(f.items) + 1, Name: input.Name, Tag: input.Tag}
			f.items = append(f.items, item)
			return item, nil
		},
		Update: func(req *Request, current widget) (widget, error) {
			f.updated = req.Payload.(*widgetInput)
			if f.updated.Tag != "" {
				current.Tag = f.updated.Tag
			}
			return current, nil
		},
		ReadSchema: "widget",
		Render: func(req *Request, item widget) (any, error) {
			for name := range req.Expand {
				f.rendered[name] = true
			}
			return map[string]any{"id": item.ID, "name": item.Name, "tag": item.Tag}, nil
		},
		WriteSchemas: map[Action]WriteSchema{
			ActionCreate:        {Name: "widget-create", New: func() any { return &widgetInput{} }},
			ActionPartialUpdate: {Name: "widget-update", New: func() any { return &widgetInput{} }},
		},
		Filters:    map[string]Filter[widget]{"name": IContains(func(w widget) string { return w.Name })},
		Expand:     []string{"owner", "owner.teams"},
		ListExpand: []string{"owner"},
	}
}

func newWidgetServer(t *testing.T, f *widgetFixture) *http.ServeMux {
	t.Helper()
	policy, err := access.NewPolicy()
	require.NoError(t, err)
	controller, err := NewController(f.config(), policy, nil)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("GET /projects/{project_slug}/widgets/{$}", controller.Handler(ActionList))
	mux.Handle("POST /projects/{project_slug}/widgets/{$}", controller.Handler(ActionCreate))
	mux.Handle("GET /projects/{project_slug}/widgets/{id}/{$}", controller.Handler(ActionRetrieve))
	mux.Handle("PATCH /projects/{project_slug}/widgets/{id}/{$}", controller.Handler(ActionPartialUpdate))
	mux.Handle("DELETE /projects/{project_slug}/widgets/{id}/{$}", controller.Handler(ActionDestroy))
	return mux
}

func serve(t *testing.T, mux http.Handler, method, target string, caller *models.User, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if caller != nil {
		req = req.WithContext(ContextWithCaller(req.Context(), *caller))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

var (
	admin    = &models.User{ID: 1, Username: "admin"}
	outsider = &models.User{ID: 2, Username: "outsider"}
)

func TestControllerRequiresAuthentication(t *testing.T) {
	mux := newWidgetServer(t, newWidgetFixture(1))
	rec := serve(t, mux, http.MethodGet, "/projects/docs/widgets/", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestControllerMissingParentIsNotFound(t *testing.T) {
	mux := newWidgetServer(t, newWidgetFixture(1))
	rec := serve(t, mux, http.MethodGet, "/projects/missing/widgets/1/", admin, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestControllerDeniesWritesToReaders(t *testing.T) {
	mux := newWidgetServer(t, newWidgetFixture(1))
	rec := serve(t, mux, http.MethodPost, "/projects/docs/widgets/", outsider, `{"name":"x"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(t, mux, http.MethodGet, "/projects/docs/widgets/1/", outsider, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestControllerRejectsUnroutedAction(t *testing.T) {
	mux := newWidgetServer(t, newWidgetFixture(1))
	rec := serve(t, mux, http.MethodDelete, "/projects/docs/widgets/1/", admin, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestControllerPaginates(t *testing.T) {
	mux := newWidgetServer(t, newWidgetFixture(25))

	rec := serve(t, mux, http.MethodGet, "/projects/docs/widgets/", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 25, body["count"])
	assert.Len(t, body["results"], DefaultLimit)
	assert.Contains(t, body["next"], "offset=10")
	assert.Nil(t, body["previous"])

	rec = serve(t, mux, http.MethodGet, "/projects/docs/widgets/?limit=20&offset=20", admin, "")
	body = decodeBody(t, rec)
	assert.Len(t, body["results"], 5)
	assert.Nil(t, body["next"])
	assert.Contains(t, body["previous"], "limit=20")
}

func TestControllerCapsLimit(t *testing.T) {
	mux := newWidgetServer(t, newWidgetFixture(150))
	rec := serve(t, mux, http.MethodGet, "/projects/docs/widgets/?limit=1000", admin, "")
	body := decodeBody(t, rec)
	assert.Len(t, body["results"], MaxLimit)
}

func TestControllerFilters(t *testing.T) {
	mux := newWidgetServer(t, newWidgetFixture(12))
	rec := serve(t, mux, http.MethodGet, "/projects/docs/widgets/?name=WIDGET-1", admin, "")
	body := decodeBody(t, rec)
	assert.EqualValues(t, 3, body["count"])
}

func TestControllerListHonorsOnlyListExpansions(t *testing.T) {
	f := newWidgetFixture(1)
	mux := newWidgetServer(t, f)
	serve(t, mux, http.MethodGet, "/projects/docs/widgets/?expand=owner,owner.teams", admin, "")
	assert.Equal(t, map[string]bool{"owner": true}, f.rendered)

	serve(t, mux, http.MethodGet, "/projects/docs/widgets/1/?expand=owner.teams", admin, "")
	assert.True(t, f.rendered["owner.teams"])
}

func TestControllerCreateValidation(t *testing.T) {
	mux := newWidgetServer(t, newWidgetFixture(0))

	rec := serve(t, mux, http.MethodPost, "/projects/docs/widgets/", admin, `{"tag":"z"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decodeBody(t, rec)["fields"].(map[string]any)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "tag")

	rec = serve(t, mux, http.MethodPost, "/projects/docs/widgets/", admin, `{"name":"ok","unknown":true}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["name"])
}

func TestControllerPartialUpdateValidatesPresentFields(t *testing.T) {
	f := newWidgetFixture(1)
	mux := newWidgetServer(t, f)

	rec := serve(t, mux, http.MethodPatch, "/projects/docs/widgets/1/", admin, `{"tag":"b"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "b", decodeBody(t, rec)["tag"])

	rec = serve(t, mux, http.MethodPatch, "/projects/docs/widgets/1/", admin, `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewControllerRequiresTotalSchemaMapping(t *testing.T) {
	policy, err := access.NewPolicy()
	require.NoError(t, err)

	cfg := newWidgetFixture(0).config()
	delete(cfg.WriteSchemas, ActionCreate)
	_, err = NewController(cfg, policy, nil)
	assert.ErrorContains(t, err, "no write schema for create")

	cfg = newWidgetFixture(0).config()
	cfg.Object = "unknown"
	_, err = NewController(cfg, policy, nil)
	assert.Error(t, err)

	cfg = newWidgetFixture(0).config()
	cfg.Actions = append(cfg.Actions, ActionDestroy)
	cfg.WriteSchemas[ActionDestroy] = WriteSchema{Name: "widget-destroy"}
	_, err = NewController(cfg, policy, nil)
	assert.ErrorContains(t, err, "no handler for destroy")
}

func TestSchemaFor(t *testing.T) {
	cfg := newWidgetFixture(0).config()
	name, err := cfg.SchemaFor(ActionList)
	require.NoError(t, err)
	assert.Equal(t, "widget", name)
	name, err = cfg.SchemaFor(ActionCreate)
	require.NoError(t, err)
	assert.Equal(t, "widget-create", name)
	_, err = cfg.SchemaFor(ActionDestroy)
	assert.Error(t, err)
}
