package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"studentapi/internal/http/middleware"
	"studentapi/internal/model"
	"studentapi/internal/service"
	serviceMocks "studentapi/internal/service/mocks"
)

type testApp struct {
	app     *fiber.App
	svc     *serviceMocks.MockStudentService
	rosters *serviceMocks.MockRosterService
	dbMock  sqlmock.Sqlmock
	logs    *observer.ObservedLogs
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	ta := &testApp{
		svc:     new(serviceMocks.MockStudentService),
		rosters: new(serviceMocks.MockRosterService),
		dbMock:  dbMock,
		logs:    logs,
	}
	ta.app = fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(logger),
	})
	ta.app.Use(middleware.RequestID())
	RegisterRoutes(ta.app, db, ta.svc, ta.rosters, logger)
	return ta
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, resp *http.Response) errorPayload {
	t.Helper()
	var body errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthCheck(t *testing.T) {
	ta := newTestApp(t)

	t.Run("healthy", func(t *testing.T) {
		ta.dbMock.ExpectPing().WillReturnError(nil)

		resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		ta.dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, resp).Error.Code)
	})

	assert.NoError(t, ta.dbMock.ExpectationsWereMet())
}

func TestLivenessProbe(t *testing.T) {
	ta := newTestApp(t)

	resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListStudents(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ta := newTestApp(t)
		items := []model.Student{
			{ID: uuid.New(), FirstName: "Ann", LastName: "Lee", Program: "CS"},
			{ID: uuid.New(), FirstName: "Bob", LastName: "Ray", Program: "EE"},
		}
		ta.svc.On("List", mock.Anything).Return(items, nil).Once()

		resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/students", nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var got []model.Student
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, items, got)
		ta.svc.AssertExpectations(t)
	})

	t.Run("empty list is an empty array", func(t *testing.T) {
		ta := newTestApp(t)
		ta.svc.On("List", mock.Anything).Return(nil, nil).Once()

		resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/students", nil))
		require.NoError(t, err)

		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "[]", string(body))
	})

	t.Run("case-insensitive path", func(t *testing.T) {
		ta := newTestApp(t)
		ta.svc.On("List", mock.Anything).Return([]model.Student{}, nil).Once()

		resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/Students", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("service error is logged, not leaked", func(t *testing.T) {
		ta := newTestApp(t)
		ta.svc.On("List", mock.Anything).Return(nil, errors.New("pq: connection refused")).Once()

		req := httptest.NewRequest(http.MethodGet, "/students", nil)
		req.Header.Set(middleware.RequestIDHeader, "rid-1")
		resp, err := ta.app.Test(req)
		require.NoError(t, err)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, "rid-1", body.RequestID)
		assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
		assert.NotContains(t, body.Error.Message, "connection refused")

		entries := ta.logs.FilterMessage("request_failed").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, "rid-1", fields["request_id"])
		assert.Equal(t, "pq: connection refused", fields["error"])
	})
}

func TestGetStudent(t *testing.T) {
	id := uuid.New()

	t.Run("success", func(t *testing.T) {
		ta := newTestApp(t)
		want := &model.Student{ID: id, FirstName: "Ann", LastName: "Lee", Program: "CS"}
		ta.svc.On("Get", mock.Anything, id).Return(want, nil).Once()

		resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/students/"+id.String(), nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var got model.Student
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, *want, got)
	})

	t.Run("json uses camelCase", func(t *testing.T) {
		ta := newTestApp(t)
		ta.svc.On("Get", mock.Anything, id).
			Return(&model.Student{ID: id, FirstName: "Ann", LastName: "Lee", Program: "CS"}, nil).Once()

		resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/students/"+id.String(), nil))
		require.NoError(t, err)

		body, _ := io.ReadAll(resp.Body)
		assert.JSONEq(t, `{"id":"`+id.String()+`","firstName":"Ann","lastName":"Lee","program":"CS"}`, string(body))
	})

	t.Run("invalid id", func(t *testing.T) {
		ta := newTestApp(t)

		resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/students/not-a-uuid", nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_ID", decodeError(t, resp).Error.Code)
		ta.svc.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("not found", func(t *testing.T) {
		ta := newTestApp(t)
		ta.svc.On("Get", mock.Anything, id).Return(nil, service.ErrNotFound).Once()

		resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/students/"+id.String(), nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
	})
}

func TestCreateStudent(t *testing.T) {
	in := model.StudentInput{FirstName: "Ann", LastName: "Lee", Program: "CS"}

	t.Run("success", func(t *testing.T) {
		ta := newTestApp(t)
		created := &model.Student{ID: uuid.New(), FirstName: "Ann", LastName: "Lee", Program: "CS"}
		ta.svc.On("Create", mock.Anything, in).Return(created, nil).Once()

		resp, err := ta.app.Test(jsonRequest(http.MethodPost, "/students", `{"firstName":"Ann","lastName":"Lee","program":"CS"}`))
		require.NoError(t, err)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "http://example.com/students/"+created.ID.String(), resp.Header.Get("Location"))

		var got model.Student
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, *created, got)
		ta.svc.AssertExpectations(t)
	})

	t.Run("malformed body", func(t *testing.T) {
		ta := newTestApp(t)

		resp, err := ta.app.Test(jsonRequest(http.MethodPost, "/students", `{"firstName":`))
		require.NoError(t, err)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_BODY", decodeError(t, resp).Error.Code)
		ta.svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("validation failure lists fields", func(t *testing.T) {
		ta := newTestApp(t)
		verr := &service.ValidationError{Fields: []service.FieldError{
			{Field: "program", Message: "program is required"},
		}}
		ta.svc.On("Create", mock.Anything, model.StudentInput{FirstName: "Ann", LastName: "Lee"}).Return(nil, verr).Once()

		resp, err := ta.app.Test(jsonRequest(http.MethodPost, "/students", `{"firstName":"Ann","lastName":"Lee"}`))
		require.NoError(t, err)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, "VALIDATION_FAILED", body.Error.Code)
		assert.Equal(t, verr.Fields, body.Error.Details)
		assert.Zero(t, ta.logs.Len())
	})
}

func TestUpsertStudent(t *testing.T) {
	id := uuid.New()
	in := model.StudentInput{FirstName: "Anne", LastName: "Leigh", Program: "Math"}
	body := `{"firstName":"Anne","lastName":"Leigh","program":"Math"}`

	t.Run("created", func(t *testing.T) {
		ta := newTestApp(t)
		ta.svc.On("Upsert", mock.Anything, id, in).
			Return(&model.Student{ID: id, FirstName: "Anne", LastName: "Leigh", Program: "Math"}, true, nil).Once()

		resp, err := ta.app.Test(jsonRequest(http.MethodPut, "/students/"+id.String(), body))
		require.NoError(t, err)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "http://example.com/students/"+id.String(), resp.Header.Get("Location"))
	})

	t.Run("updated keeps program", func(t *testing.T) {
		ta := newTestApp(t)
		ta.svc.On("Upsert", mock.Anything, id, in).
			Return(&model.Student{ID: id, FirstName: "Anne", LastName: "Leigh", Program: "CS"}, false, nil).Once()

		resp, err := ta.app.Test(jsonRequest(http.MethodPut, "/students/"+id.String(), body))
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("Location"))

		var got model.Student
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, "CS", got.Program)
	})

	t.Run("invalid id", func(t *testing.T) {
		ta := newTestApp(t)

		resp, err := ta.app.Test(jsonRequest(http.MethodPut, "/students/123", body))
		require.NoError(t, err)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_ID", decodeError(t, resp).Error.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		ta := newTestApp(t)
		ta.svc.On("Upsert", mock.Anything, id, in).Return(nil, false, errors.New("db fail")).Once()

		resp, err := ta.app.Test(jsonRequest(http.MethodPut, "/students/"+id.String(), body))
		require.NoError(t, err)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestDeleteStudent(t *testing.T) {
	id := uuid.New()

	t.Run("accepted with empty body", func(t *testing.T) {
		ta := newTestApp(t)
		ta.svc.On("Delete", mock.Anything, id).Return(nil).Once()

		resp, err := ta.app.Test(httptest.NewRequest(http.MethodDelete, "/students/"+id.String(), nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Empty(t, body)
		ta.svc.AssertExpectations(t)
	})

	t.Run("missing is 404", func(t *testing.T) {
		ta := newTestApp(t)
		ta.svc.On("Delete", mock.Anything, id).Return(service.ErrNotFound).Once()

		resp, err := ta.app.Test(httptest.NewRequest(http.MethodDelete, "/students/"+id.String(), nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		ta := newTestApp(t)

		resp, err := ta.app.Test(httptest.NewRequest(http.MethodDelete, "/students/xyz", nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestExportStudents(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ta := newTestApp(t)
		res := &service.ExportResult{
			Key:       "exports/students-20240301T103000Z-abcd1234.xlsx",
			URL:       "https://minio.local/signed",
			Count:     2,
			ExpiresAt: time.Date(2024, 3, 1, 10, 45, 0, 0, time.UTC),
		}
		ta.rosters.On("Export", mock.Anything).Return(res, nil).Once()

		resp, err := ta.app.Test(httptest.NewRequest(http.MethodPost, "/students/exports", nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		var got service.ExportResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, res.URL, got.URL)
		assert.Equal(t, 2, got.Count)
	})

	t.Run("storage not configured", func(t *testing.T) {
		ta := newTestApp(t)
		ta.rosters.On("Export", mock.Anything).Return(nil, service.ErrStorageUnavailable).Once()

		resp, err := ta.app.Test(httptest.NewRequest(http.MethodPost, "/students/exports", nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "EXPORT_UNAVAILABLE", decodeError(t, resp).Error.Code)
	})
}

func multipartRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/students/imports", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestImportStudents(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ta := newTestApp(t)
		res := &service.ImportResult{
			Created: 1,
			Rejected: []service.RowError{
				{Row: 3, Details: []service.FieldError{{Field: "program", Message: "program is required"}}},
			},
		}
		ta.rosters.On("Import", mock.Anything, mock.Anything).Return(res, nil).Once()

		resp, err := ta.app.Test(multipartRequest(t, "file", "roster.xlsx", []byte("xlsx bytes")))
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var got service.ImportResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, *res, got)
		ta.rosters.AssertExpectations(t)
	})

	t.Run("no file", func(t *testing.T) {
		ta := newTestApp(t)

		resp, err := ta.app.Test(multipartRequest(t, "other", "roster.xlsx", []byte("x")))
		require.NoError(t, err)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "FILE_REQUIRED", decodeError(t, resp).Error.Code)
	})

	t.Run("unreadable workbook", func(t *testing.T) {
		ta := newTestApp(t)
		ta.rosters.On("Import", mock.Anything, mock.Anything).
			Return(nil, errors.Join(service.ErrInvalidRoster, errors.New("zip: not a valid zip file"))).Once()

		resp, err := ta.app.Test(multipartRequest(t, "file", "roster.xlsx", []byte("nope")))
		require.NoError(t, err)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_ROSTER", decodeError(t, resp).Error.Code)
	})
}

func TestErrorHandler(t *testing.T) {
	t.Run("unknown route", func(t *testing.T) {
		ta := newTestApp(t)

		req := httptest.NewRequest(http.MethodGet, "/nope", nil)
		req.Header.Set(middleware.RequestIDHeader, "rid-404")
		resp, err := ta.app.Test(req)
		require.NoError(t, err)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, "NOT_FOUND", body.Error.Code)
		assert.Equal(t, "rid-404", body.RequestID)
	})

	t.Run("fiber errors keep their status", func(t *testing.T) {
		app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
		app.Post("/big", func(c *fiber.Ctx) error { return fiber.ErrRequestEntityTooLarge })
		app.Get("/teapot", func(c *fiber.Ctx) error { return fiber.ErrTeapot })

		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/big", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
		assert.Equal(t, "PAYLOAD_TOO_LARGE", decodeError(t, resp).Error.Code)

		resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/teapot", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusTeapot, resp.StatusCode)
		assert.Equal(t, "BAD_REQUEST", decodeError(t, resp).Error.Code)
	})

	t.Run("plain error is internal", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.New(core))})
		app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("boom") })

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "INTERNAL_ERROR", decodeError(t, resp).Error.Code)
		assert.Equal(t, 1, logs.FilterMessage("request_failed").Len())
	})
}
