package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nest-haus/backend/internal/domain/shared"
	"github.com/nest-haus/backend/internal/interfaces/http/dto"
	"github.com/nest-haus/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// serve registers h at route behind the request id middleware and performs
// one request against it.
func serve(t *testing.T, method, route, target string, body any, h gin.HandlerFunc, setup ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Handle(method, route, h)

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, fn := range setup {
		fn(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func dataMap(t *testing.T, resp dto.Response) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"not found", shared.ErrNotFound.WithMessage("Inquiry not found"), http.StatusNotFound, dto.ErrCodeNotFound, "Inquiry not found"},
		{"already exists", shared.ErrAlreadyExists, http.StatusConflict, dto.ErrCodeAlreadyExists, shared.ErrAlreadyExists.Message},
		{"invalid input", shared.ErrInvalidInput.WithMessage("Missing email"), http.StatusBadRequest, dto.ErrCodeInvalidInput, "Missing email"},
		{"service unavailable", shared.ErrServiceUnavailable.Wrap(errors.New("redis down")), http.StatusServiceUnavailable, dto.ErrCodeServiceUnavailable, shared.ErrServiceUnavailable.Message},
		{"payment failed", shared.ErrPaymentFailed, http.StatusBadGateway, dto.ErrCodePaymentFailed, shared.ErrPaymentFailed.Message},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			w := serve(t, http.MethodGet, "/", "/", nil, func(c *gin.Context) { h.HandleError(c, tt.err) })

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decode(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantMsg, resp.Error.Message)
			assert.NotEmpty(t, resp.Error.RequestID)
			assert.Equal(t, w.Header().Get(middleware.RequestIDHeader), resp.Error.RequestID)
		})
	}
}

func TestBaseHandler_HandleErrorNil(t *testing.T) {
	h := &BaseHandler{}
	w := serve(t, http.MethodGet, "/", "/", nil, func(c *gin.Context) {
		h.HandleError(c, nil)
		c.Status(http.StatusNoContent)
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

type bindTarget struct {
	Email string `json:"email" binding:"required,email"`
	Count int    `json:"count" binding:"omitempty,min=1"`
}

func TestBaseHandler_BindJSON(t *testing.T) {
	h := &BaseHandler{}
	bind := func(c *gin.Context) {
		var req bindTarget
		if h.BindJSON(c, &req) {
			h.Success(c, req)
		}
	}

	t.Run("valid", func(t *testing.T) {
		w := serve(t, http.MethodPost, "/", "/", bindTarget{Email: "a@b.at"}, bind)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("validation details use json names", func(t *testing.T) {
		w := serve(t, http.MethodPost, "/", "/", map[string]any{"email": "nope", "count": 0}, bind)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decode(t, w)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		require.NotEmpty(t, resp.Error.Details)
		assert.Equal(t, "email", resp.Error.Details[0].Field)
	})

	t.Run("empty body", func(t *testing.T) {
		w := serve(t, http.MethodPost, "/", "/", "", bind)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decode(t, w)
		assert.Equal(t, dto.ErrCodeInvalidJSON, resp.Error.Code)
		assert.Equal(t, "Request body is empty", resp.Error.Message)
	})

	t.Run("malformed", func(t *testing.T) {
		w := serve(t, http.MethodPost, "/", "/", "{not json", bind)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid request body", decode(t, w).Error.Message)
	})

	t.Run("too large", func(t *testing.T) {
		r := gin.New()
		r.Use(middleware.RequestID(), middleware.BodyLimit(16))
		r.POST("/", bind)
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"someone@example.com"}`))
		req.ContentLength = -1
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestSessionID(t *testing.T) {
	t.Run("explicit wins", func(t *testing.T) {
		var got string
		serve(t, http.MethodGet, "/", "/", nil, func(c *gin.Context) {
			got = sessionID(c, " abc ")
			v, _ := c.Get(middleware.SessionIDKey)
			assert.Equal(t, "abc", v)
		}, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "cookie"})
		})
		assert.Equal(t, "abc", got)
	})

	t.Run("cookie fallback", func(t *testing.T) {
		var got string
		serve(t, http.MethodGet, "/", "/", nil, func(c *gin.Context) {
			got = sessionID(c, "")
		}, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "cookie"})
		})
		assert.Equal(t, "cookie", got)
	})

	t.Run("none", func(t *testing.T) {
		var got = "x"
		serve(t, http.MethodGet, "/", "/", nil, func(c *gin.Context) {
			got = sessionID(c, "")
			_, ok := c.Get(middleware.SessionIDKey)
			assert.False(t, ok)
		})
		assert.Empty(t, got)
	})
}
