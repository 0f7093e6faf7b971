package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func respond(body string) gin.HandlerFunc {
	return func(c *gin.Context) { c.String(http.StatusOK, body) }
}

func get(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "/api/v1", r.BasePath())
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "/api/v2", r.BasePath())

	r.Register(NewDomainGroup("a", "/a"), NewDomainGroup("b", "/b"))
	assert.Len(t, r.registrars, 2)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	NewRouter(engine).
		Register(NewDomainGroup("pricing", "/pricing").GET("/table", respond("table"))).
		Setup()

	w := get(engine, http.MethodGet, "/api/v1/pricing/table")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "table", w.Body.String())

	assert.Equal(t, http.StatusNotFound, get(engine, http.MethodGet, "/pricing/table").Code)
}

func TestDomainGroup_Methods(t *testing.T) {
	g := NewDomainGroup("projects", "/projects")
	assert.Equal(t, "projects", g.Name())
	assert.Equal(t, "/projects", g.Prefix())

	g.GET("/tasks", respond("get")).
		POST("/tasks", respond("post")).
		PUT("/tasks/:id", respond("put")).
		PATCH("/tasks/:id", respond("patch")).
		DELETE("/tasks/:id", respond("delete"))

	engine := gin.New()
	g.RegisterRoutes(engine.Group("/api/v1"))

	tests := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/api/v1/projects/tasks", "get"},
		{http.MethodPost, "/api/v1/projects/tasks", "post"},
		{http.MethodPut, "/api/v1/projects/tasks/1", "put"},
		{http.MethodPatch, "/api/v1/projects/tasks/1", "patch"},
		{http.MethodDelete, "/api/v1/projects/tasks/1", "delete"},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			w := get(engine, tt.method, tt.path)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, w.Body.String())
		})
	}
}

func TestDomainGroup_MiddlewareScope(t *testing.T) {
	mark := func(name string) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Header("X-"+name, "1")
			c.Next()
		}
	}

	admin := NewDomainGroup("admin", "/admin")
	admin.POST("/login", respond("login"))
	board := admin.Group("board", "").Use(mark("Guard"))
	board.GET("/me", respond("me"))
	tasks := board.Group("projects", "/projects").Use(mark("Inner"))
	tasks.GET("/tasks", respond("tasks"))

	engine := gin.New()
	NewRouter(engine).Register(admin).Setup()

	w := get(engine, http.MethodPost, "/api/v1/admin/login")
	assert.Equal(t, "login", w.Body.String())
	assert.Empty(t, w.Header().Get("X-Guard"))

	w = get(engine, http.MethodGet, "/api/v1/admin/me")
	assert.Equal(t, "me", w.Body.String())
	assert.Equal(t, "1", w.Header().Get("X-Guard"))
	assert.Empty(t, w.Header().Get("X-Inner"))

	w = get(engine, http.MethodGet, "/api/v1/admin/projects/tasks")
	assert.Equal(t, "tasks", w.Body.String())
	assert.Equal(t, "1", w.Header().Get("X-Guard"))
	assert.Equal(t, "1", w.Header().Get("X-Inner"))
}
