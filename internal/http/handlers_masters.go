package http

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"

	"shopfloor/internal/db"
	"shopfloor/internal/model"
	"shopfloor/internal/services"
)

func employeeRow(e db.Employee) model.EmployeeRow {
	return model.EmployeeRow{Code: e.Code, Name: e.Name, Role: e.Role, Active: e.Active}
}

func machineRow(m db.Machine) model.MachineRow {
	return model.MachineRow{Code: m.Code, Description: m.Description, WorkCenter: m.WorkCenter}
}

func employeesListHandler(c *fiber.Ctx) error {
	rows, err := storeFrom(c).ListEmployees(c.Context())
	if err != nil {
		return internalError(c, "EMPLOYEE_LIST_FAILED", err)
	}
	out := make([]model.EmployeeRow, 0, len(rows))
	for _, e := range rows {
		out = append(out, employeeRow(e))
	}
	return c.JSON(model.Page[model.EmployeeRow]{Data: out, Total: int64(len(out))})
}

func employeeUpsertHandler(c *fiber.Ctx) error {
	var req EmployeeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		return badRequest(c, "code is required")
	}
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))
	if req.Role == "" {
		req.Role = RoleOperator
	}
	if !ValidRole(req.Role) {
		return badRequest(c, fmt.Sprintf("invalid role %q", req.Role))
	}
	if strings.TrimSpace(req.Name) == "" {
		req.Name = req.Code
	}

	st := storeFrom(c)
	emp, err := st.UpsertEmployee(c.Context(), db.UpsertEmployeeParams{
		Code:   req.Code,
		Name:   strings.TrimSpace(req.Name),
		Role:   req.Role,
		Active: req.Active == nil || *req.Active,
	})
	if err != nil {
		return internalError(c, "EMPLOYEE_UPSERT_FAILED", err)
	}
	recordAuditEvent(c, st, "employee.upsert", 0, req)
	return c.JSON(employeeRow(emp))
}

func machinesListHandler(c *fiber.Ctx) error {
	rows, err := storeFrom(c).ListMachines(c.Context())
	if err != nil {
		return internalError(c, "MACHINE_LIST_FAILED", err)
	}
	out := make([]model.MachineRow, 0, len(rows))
	for _, m := range rows {
		out = append(out, machineRow(m))
	}
	return c.JSON(model.Page[model.MachineRow]{Data: out, Total: int64(len(out))})
}

func machineUpsertHandler(c *fiber.Ctx) error {
	var req model.MachineRow
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		return badRequest(c, "code is required")
	}

	st := storeFrom(c)
	m, err := st.UpsertMachine(c.Context(), db.UpsertMachineParams{
		Code:        req.Code,
		Description: strings.TrimSpace(req.Description),
		WorkCenter:  strings.TrimSpace(req.WorkCenter),
	})
	if err != nil {
		return internalError(c, "MACHINE_UPSERT_FAILED", err)
	}
	recordAuditEvent(c, st, "machine.upsert", 0, req)
	return c.JSON(machineRow(m))
}

// assignmentsGetHandler returns the machines and employees allowed on a
// job operation. Empty lists mean the operation is unrestricted.
func assignmentsGetHandler(c *fiber.Ctx) error {
	job := strings.TrimSpace(c.Query("job"))
	if job == "" {
		return badRequest(c, "job is required")
	}
	oper, err := strconv.Atoi(c.Query("operation"))
	if err != nil || oper <= 0 {
		return badRequest(c, "operation must be a positive integer")
	}

	machines, employees, err := storeFrom(c).Assignments(c.Context(), job, int32(oper))
	if err != nil {
		return internalError(c, "ASSIGNMENT_LOOKUP_FAILED", err)
	}
	return c.JSON(model.AssignmentsResponse{Machines: machines, Employees: employees})
}

func assignmentAddHandler(c *fiber.Ctx) error {
	var req model.AssignmentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	req.Job = strings.TrimSpace(req.Job)
	req.Code = strings.TrimSpace(req.Code)
	req.Kind = strings.ToLower(strings.TrimSpace(req.Kind))
	switch {
	case req.Job == "":
		return badRequest(c, "job is required")
	case req.Operation <= 0:
		return badRequest(c, "operation must be positive")
	case req.Kind != "machine" && req.Kind != "employee":
		return badRequest(c, "kind must be machine or employee")
	case req.Code == "":
		return badRequest(c, "code is required")
	}

	st := storeFrom(c)
	err := st.AddAssignment(c.Context(), db.Assignment{
		JobNum:  req.Job,
		OperNum: int32(req.Operation),
		Kind:    req.Kind,
		Code:    req.Code,
	})
	if err != nil {
		return internalError(c, "ASSIGNMENT_ADD_FAILED", err)
	}
	recordAuditEvent(c, st, "assignment.add", 0, req)
	return c.Status(fiber.StatusCreated).JSON(model.ActionResponse{
		Success: true,
		Message: fmt.Sprintf("%s %s assigned to %s operation %d", req.Kind, req.Code, req.Job, req.Operation),
	})
}

// scanCheckHandler validates one decoded QR label against a wizard step.
func scanCheckHandler(c *fiber.Ctx) error {
	var req ScanCheckRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	res, err := scanFrom(c).Check(c.Context(), services.ScanCheckRequest{
		TransNum: req.TransNum,
		Step:     req.Step,
		QR:       req.QR,
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalid) || errors.Is(err, services.ErrNotFound) {
			return writeServiceError(c, err)
		}
		return internalError(c, "SCAN_CHECK_FAILED", err)
	}
	return c.JSON(ScanCheckResponse{
		Valid:   res.Valid,
		Step:    res.Step.String(),
		Message: res.Message,
	})
}
