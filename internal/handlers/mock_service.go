package handlers

import (
	"context"
	"net/http"

	"printlapse/internal/models"
	"printlapse/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	genTokenToken string
	genTokenErr   error
	parseErr      error

	lastGenSecret  string
	lastParseToken string
}

func (m *mockAuth) GenerateToken(secret string) (string, error) {
	m.lastGenSecret = secret
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) error {
	m.lastParseToken = token
	return m.parseErr
}

type mockCommands struct {
	result string
	err    error

	lastName string
	lastArgs string
	calls    int
}

func (m *mockCommands) Execute(ctx context.Context, name, args string) (string, error) {
	m.calls++
	m.lastName = name
	m.lastArgs = args
	return m.result, m.err
}

type mockMonitoring struct {
	status models.Status
}

func (m *mockMonitoring) Status() models.Status {
	return m.status
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
