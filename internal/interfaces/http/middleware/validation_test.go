package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type contactForm struct {
	Name     string   `json:"name" binding:"required,min=2"`
	Email    string   `json:"email" binding:"required,email"`
	Contact  string   `json:"preferredContact" binding:"omitempty,oneof=email phone whatsapp"`
	Budget   int      `json:"budget" binding:"omitempty,gte=1000,lte=900000"`
	Tags     []string `json:"tags" binding:"omitempty,max=2"`
	PageSize int      `form:"page_size" binding:"omitempty,max=100"`
}

func bindContact(t *testing.T, body string) error {
	t.Helper()
	gin.SetMode(gin.TestMode)
	SetupValidator()
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	var form contactForm
	return c.ShouldBindJSON(&form)
}

func TestValidationDetails(t *testing.T) {
	err := bindContact(t, `{"name":"A","email":"nope","preferredContact":"fax","budget":5,"tags":["a","b","c"]}`)
	require.Error(t, err)

	details := ValidationDetails(err)
	byField := map[string]string{}
	for _, d := range details {
		byField[d.Field] = d.Message
	}
	assert.Equal(t, "Must be at least 2 characters", byField["name"])
	assert.Equal(t, "Invalid email format", byField["email"])
	assert.Equal(t, "Must be one of: email phone whatsapp", byField["preferredContact"])
	assert.Equal(t, "Must be greater than or equal to 1000", byField["budget"])
	assert.Equal(t, "Must be at most 2", byField["tags"])
}

func TestValidationDetails_Required(t *testing.T) {
	err := bindContact(t, `{}`)
	require.Error(t, err)

	details := ValidationDetails(err)
	require.Len(t, details, 2)
	assert.Equal(t, "name", details[0].Field)
	assert.Equal(t, "This field is required", details[0].Message)
}

func TestValidationDetails_FormTagFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	SetupValidator()
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?page_size=500", nil)

	var q struct {
		PageSize int `form:"page_size" binding:"max=100"`
	}
	err := c.ShouldBindQuery(&q)
	require.Error(t, err)
	details := ValidationDetails(err)
	require.Len(t, details, 1)
	assert.Equal(t, "page_size", details[0].Field)
	assert.Equal(t, "Must be at most 100", details[0].Message)
}

func TestValidationDetails_OtherErrors(t *testing.T) {
	assert.Nil(t, ValidationDetails(errors.New("unexpected EOF")))
	assert.Nil(t, ValidationDetails(bindContact(t, `{"name":`)))
}
