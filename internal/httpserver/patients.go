package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/hospital_desk/internal/logging"
	"github.com/Skotchmaster/hospital_desk/internal/service"
	"github.com/Skotchmaster/hospital_desk/internal/transport"
)

type PatientsHTTP struct {
	Svc *service.PatientService
}

func patientID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid patient ID")
	}
	return uint(id), nil
}

func patientFields(r transport.PatientRequest) service.PatientFields {
	return service.PatientFields{
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		TCID:        r.TCID,
		PhoneNumber: r.PhoneNumber,
		Department:  r.Department,
		Complaint:   r.Complaint,
	}
}

func (h *PatientsHTTP) bind(c echo.Context) (service.PatientFields, error) {
	var req transport.PatientRequest
	if err := c.Bind(&req); err != nil {
		logging.FromContext(c.Request().Context()).Warn("patient_bind_error", "status", 400, "error", err)
		return service.PatientFields{}, echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	return patientFields(req), nil
}

func (h *PatientsHTTP) List(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	items, err := h.Svc.List(c.Request().Context(), id)
	if err != nil {
		return fail(c, err, "Failed to fetch patients")
	}
	return c.JSON(http.StatusOK, transport.PatientsResponse{Success: true, Patients: items})
}

func (h *PatientsHTTP) Search(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	items, err := h.Svc.Search(c.Request().Context(), id, c.QueryParam("q"), limit)
	if err != nil {
		return fail(c, err, "Failed to search patients")
	}
	return c.JSON(http.StatusOK, transport.PatientsResponse{Success: true, Patients: items})
}

func (h *PatientsHTTP) Get(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	pid, err := patientID(c)
	if err != nil {
		return err
	}
	p, err := h.Svc.Get(c.Request().Context(), id, pid)
	if err != nil {
		return fail(c, err, "Failed to fetch patient")
	}
	return c.JSON(http.StatusOK, transport.PatientResponse{Success: true, Patient: p})
}

func (h *PatientsHTTP) Create(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	fields, err := h.bind(c)
	if err != nil {
		return err
	}
	p, err := h.Svc.Create(c.Request().Context(), id, fields)
	if err != nil {
		return fail(c, err, "Failed to add patient")
	}
	return c.JSON(http.StatusOK, transport.PatientResponse{Success: true, Message: "Patient added successfully", Patient: p})
}

func (h *PatientsHTTP) Update(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	pid, err := patientID(c)
	if err != nil {
		return err
	}
	fields, err := h.bind(c)
	if err != nil {
		return err
	}
	if _, err := h.Svc.Update(c.Request().Context(), id, pid, fields); err != nil {
		return fail(c, err, "Failed to update patient")
	}
	return c.JSON(http.StatusOK, transport.MessageResponse{Success: true, Message: "Patient updated successfully"})
}

func (h *PatientsHTTP) Delete(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	pid, err := patientID(c)
	if err != nil {
		return err
	}
	if err := h.Svc.Delete(c.Request().Context(), id, pid); err != nil {
		return fail(c, err, "Failed to delete patient")
	}
	return c.JSON(http.StatusOK, transport.MessageResponse{Success: true, Message: "Patient deleted successfully"})
}
