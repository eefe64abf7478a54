package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"studentapi/internal/model"
	"studentapi/internal/service"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, db *sql.DB, students service.StudentService, rosters service.RosterService, logger *zap.Logger) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	app.Get("/students", ListStudents(students, logger))
	app.Post("/students", CreateStudent(students, logger))
	app.Post("/students/exports", ExportStudents(rosters, logger))
	app.Post("/students/imports", ImportStudents(rosters, logger))
	app.Get("/students/:id", GetStudent(students, logger))
	app.Put("/students/:id", UpsertStudent(students, logger))
	app.Delete("/students/:id", DeleteStudent(students, logger))
}

// HealthCheck godoc
// @Summary Readiness check
// @Description Pings the database.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} errorPayload
// @Router /health [get]
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe godoc
// @Summary Liveness probe
// @Tags health
// @Success 200
// @Router /healthz [get]
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// ListStudents godoc
// @Summary List students
// @Tags students
// @Produce json
// @Success 200 {array} model.Student
// @Failure 500 {object} errorPayload
// @Router /students [get]
func ListStudents(svc service.StudentService, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		items, err := svc.List(c.UserContext())
		if err != nil {
			return writeServiceError(c, logger, err)
		}
		if items == nil {
			items = []model.Student{}
		}
		return c.JSON(items)
	}
}

// GetStudent godoc
// @Summary Get a student
// @Tags students
// @Produce json
// @Param id path string true "Student ID (UUID)"
// @Success 200 {object} model.Student
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /students/{id} [get]
func GetStudent(svc service.StudentService, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeInvalidID(c)
		}
		s, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, logger, err)
		}
		return c.JSON(s)
	}
}

// CreateStudent godoc
// @Summary Create a student
// @Description The ID is generated by the server.
// @Tags students
// @Accept json
// @Produce json
// @Param student body model.StudentInput true "Student"
// @Success 201 {object} model.Student
// @Header 201 {string} Location "URL of the new student"
// @Failure 400 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /students [post]
func CreateStudent(svc service.StudentService, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in model.StudentInput
		if err := c.BodyParser(&in); err != nil {
			return writeInvalidBody(c)
		}
		s, err := svc.Create(c.UserContext(), in)
		if err != nil {
			return writeServiceError(c, logger, err)
		}
		c.Location(studentURL(c, s.ID))
		return c.Status(fiber.StatusCreated).JSON(s)
	}
}

// UpsertStudent godoc
// @Summary Create or update a student
// @Description Inserts the student under the given ID if it does not exist.
// @Description Otherwise updates firstName and lastName; program keeps its stored value.
// @Tags students
// @Accept json
// @Produce json
// @Param id path string true "Student ID (UUID)"
// @Param student body model.StudentInput true "Student"
// @Success 200 {object} model.Student
// @Success 201 {object} model.Student
// @Failure 400 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /students/{id} [put]
func UpsertStudent(svc service.StudentService, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeInvalidID(c)
		}
		var in model.StudentInput
		if err := c.BodyParser(&in); err != nil {
			return writeInvalidBody(c)
		}
		s, created, err := svc.Upsert(c.UserContext(), id, in)
		if err != nil {
			return writeServiceError(c, logger, err)
		}
		if created {
			c.Location(studentURL(c, s.ID))
			return c.Status(fiber.StatusCreated).JSON(s)
		}
		return c.JSON(s)
	}
}

// DeleteStudent godoc
// @Summary Delete a student
// @Tags students
// @Param id path string true "Student ID (UUID)"
// @Success 202
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /students/{id} [delete]
func DeleteStudent(svc service.StudentService, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeInvalidID(c)
		}
		if err := svc.Delete(c.UserContext(), id); err != nil {
			return writeServiceError(c, logger, err)
		}
		// SendStatus would fill the body with the status text.
		return c.Status(fiber.StatusAccepted).Send(nil)
	}
}

// ExportStudents godoc
// @Summary Export the roster
// @Description Uploads all students as an .xlsx workbook and returns a presigned download link.
// @Tags roster
// @Produce json
// @Success 201 {object} service.ExportResult
// @Failure 503 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /students/exports [post]
func ExportStudents(svc service.RosterService, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := svc.Export(c.UserContext())
		if err != nil {
			return writeServiceError(c, logger, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}

// ImportStudents godoc
// @Summary Import a roster
// @Description Creates one student per row of the uploaded .xlsx workbook.
// @Tags roster
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Roster workbook (.xlsx)"
// @Success 200 {object} service.ImportResult
// @Failure 400 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /students/imports [post]
func ImportStudents(svc service.RosterService, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		res, err := svc.Import(c.UserContext(), f)
		if err != nil {
			return writeServiceError(c, logger, err)
		}
		return c.JSON(res)
	}
}

func parseID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("id"))
	return id, err == nil
}

func writeInvalidID(c *fiber.Ctx) error {
	return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
}

func writeInvalidBody(c *fiber.Ctx) error {
	return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
}

func studentURL(c *fiber.Ctx, id uuid.UUID) string {
	return c.BaseURL() + "/students/" + id.String()
}
