package Controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"Workbench/Cache"
	"Workbench/Config"
	"Workbench/Controllers"
	"Workbench/CronJobs"
	"Workbench/FiberConfig"
	"Workbench/Models"
	"Workbench/Tasks"
	"Workbench/email"
)

const testPassword = "password123"

type recordingMailer struct {
	mu       sync.Mutex
	messages []email.Message
	err      error
}

func (m *recordingMailer) Send(ctx context.Context, message email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, message)
	return nil
}

func (m *recordingMailer) last() email.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return email.Message{}
	}
	return m.messages[len(m.messages)-1]
}

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	redis  *miniredis.Miniredis
	cache  Cache.Cache
	mailer *recordingMailer
}

type envelope struct {
	Success    bool                     `json:"success"`
	StatusCode int                      `json:"statusCode"`
	Message    string                   `json:"message"`
	Data       json.RawMessage          `json:"data"`
	Errors     []Controllers.FieldError `json:"errors"`
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := Models.Connect("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	server := miniredis.RunT(t)
	cache, err := Cache.New("redis://"+server.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	cfg := &Config.Config{
		Env:             Config.EnvTest,
		APIVersion:      "v1",
		JWTSecret:       "test-secret",
		JWTExpiresIn:    time.Hour,
		BcryptCost:      bcrypt.MinCost,
		CORSOrigins:     []string{"*"},
		RateLimitMax:    1000,
		RateLimitWindow: time.Minute,
		Location:        time.UTC,
	}

	engine := Tasks.NewEngine(Tasks.NewGormStore(db),
		Tasks.WithLocation(time.UTC),
		Tasks.WithClock(func() time.Time { return time.Now().UTC() }),
		Tasks.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	scheduler := CronJobs.NewCarryForwardScheduler(engine, db, cache, "", time.UTC, time.Minute)

	mailer := &recordingMailer{}
	app := FiberConfig.New(cfg, FiberConfig.Deps{
		DB:        db,
		Cache:     cache,
		Mailer:    mailer,
		Scheduler: scheduler,
	})

	return &testEnv{app: app, db: db, redis: server, cache: cache, mailer: mailer}
}

// request sends body as JSON and returns the raw response.
func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	resp := e.request(t, method, path, token, body)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

type company struct {
	code          string
	managerID     string
	managerToken  string
	employeeID    string
	employeeToken string
}

// signup registers a manager with a new company and one employee, and
// logs both in.
func (e *testEnv) signup(t *testing.T, name string) company {
	t.Helper()
	slug := strings.ToLower(name)

	status, env := e.do(t, http.MethodPost, "/v1/auth/register", "", fiber.Map{
		"name":        name + " Manager",
		"email":       slug + "-manager@example.com",
		"password":    testPassword,
		"companyName": name,
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	registered := decode[struct {
		UserID      string `json:"userId"`
		CompanyCode string `json:"companyCode"`
	}](t, env.Data)

	c := company{code: registered.CompanyCode, managerID: registered.UserID}
	c.employeeID = e.register(t, name+" Employee", slug+"-employee@example.com", c.code)
	c.managerToken = e.login(t, slug+"-manager@example.com", testPassword)
	c.employeeToken = e.login(t, slug+"-employee@example.com", testPassword)
	return c
}

func (e *testEnv) register(t *testing.T, name, address, code string) string {
	t.Helper()
	status, env := e.do(t, http.MethodPost, "/v1/auth/register", "", fiber.Map{
		"name":        name,
		"email":       address,
		"password":    testPassword,
		"companyCode": code,
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	return decode[struct {
		UserID string `json:"userId"`
	}](t, env.Data).UserID
}

func (e *testEnv) login(t *testing.T, address, password string) string {
	t.Helper()
	status, env := e.do(t, http.MethodPost, "/v1/auth/login", "", fiber.Map{
		"email":    address,
		"password": password,
	})
	require.Equal(t, http.StatusOK, status, env.Message)
	return decode[struct {
		AccessToken string `json:"accessToken"`
	}](t, env.Data).AccessToken
}

func (e *testEnv) createProject(t *testing.T, token, name string, members ...string) string {
	t.Helper()
	status, env := e.do(t, http.MethodPost, "/v1/projects", token, fiber.Map{"name": name})
	require.Equal(t, http.StatusCreated, status, env.Message)
	projectID := decode[Models.Project](t, env.Data).ID

	for _, userID := range members {
		status, env := e.do(t, http.MethodPost, "/v1/projects/"+projectID+"/members", token, fiber.Map{"userId": userID})
		require.Equal(t, http.StatusCreated, status, env.Message)
	}
	return projectID
}

func (e *testEnv) createTask(t *testing.T, token, projectID, assigneeID, title string, start, end time.Time) Models.Task {
	t.Helper()
	body := fiber.Map{
		"title":     title,
		"type":      Models.TaskTypeFeature,
		"projectId": projectID,
		"startTime": start,
		"endTime":   end,
	}
	if assigneeID != "" {
		body["assignedToId"] = assigneeID
	}
	status, env := e.do(t, http.MethodPost, "/v1/tasks", token, body)
	require.Equal(t, http.StatusCreated, status, env.Message)
	return decode[Models.Task](t, env.Data)
}

var tempPasswordPattern = regexp.MustCompile(`>([0-9a-f]{16})<`)

// now is whole-second UTC, which is how SQLite round-trips times.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
