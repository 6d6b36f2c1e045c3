package httpserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/hospital_desk/internal/models"
	"github.com/Skotchmaster/hospital_desk/internal/service"
	"github.com/Skotchmaster/hospital_desk/internal/transport"
)

type BackupHTTP struct {
	Svc *service.BackupService
}

func (h *BackupHTTP) Logs(c echo.Context) error {
	logs, err := h.Svc.ListLogs(c.Request().Context())
	if err != nil {
		return fail(c, err, "Failed to fetch backup logs")
	}
	return c.JSON(http.StatusOK, transport.BackupLogsResponse{Success: true, Logs: logs})
}

// Run blocks until the backup finishes. A failed script still answers 200
// with success false and the recorded entry.
func (h *BackupHTTP) Run(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	entry, err := h.Svc.Run(c.Request().Context(), id.UserID)
	if err != nil {
		return fail(c, err, "Failed to perform backup")
	}
	return c.JSON(http.StatusOK, transport.BackupRunResponse{
		Success: entry.Status == models.BackupStatusSuccess,
		Message: entry.Message,
		Logs:    entry,
	})
}

func (h *BackupHTTP) StartJob(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	job, err := h.Svc.Start(c.Request().Context(), id.UserID)
	if err != nil {
		return fail(c, err, "Failed to start backup")
	}
	return c.JSON(http.StatusAccepted, transport.BackupJobResponse{Success: true, Job: *job})
}

func (h *BackupHTTP) GetJob(c echo.Context) error {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid job ID")
	}
	view, err := h.Svc.GetJob(c.Request().Context(), jobID)
	if err != nil {
		return fail(c, err, "Failed to fetch backup job")
	}
	return c.JSON(http.StatusOK, transport.BackupJobResponse{Success: true, Job: view.Job, Log: view.Log})
}

func (h *BackupHTTP) LogFile(c echo.Context) error {
	f, err := h.Svc.ReadLogFile(c.QueryParam("filename"))
	if err != nil {
		return fail(c, err, "Failed to read log file")
	}
	return c.JSON(http.StatusOK, transport.LogFileResponse{Success: true, Filename: f.Filename, Content: f.Content})
}
