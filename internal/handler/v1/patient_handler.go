package v1

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/patient"
)

const defaultMaxImportBytes = 5 << 20

type patientResponse struct {
	ChildCode   string      `json:"child_code"`
	FirstName   string      `json:"first_name"`
	LastName    string      `json:"last_name"`
	Community   string      `json:"community"`
	DateOfBirth string      `json:"birthdate"`
	Sex         patient.Sex `json:"gender"`
	Age         int         `json:"age"`
	ScreenCount int64       `json:"screen_count"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func toPatientResponse(p *patient.Patient, screenCount int64) patientResponse {
	return patientResponse{
		ChildCode:   p.ChildCode,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Community:   p.Community,
		DateOfBirth: p.DateOfBirth.Format(patient.DateLayout),
		Sex:         p.Sex,
		Age:         p.Age(time.Now()),
		ScreenCount: screenCount,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

type updatePatientRequest struct {
	ChildCode   *string `json:"child_code"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Community   *string `json:"community"`
	DateOfBirth *string `json:"birthdate"`
	Sex         *string `json:"gender"`
}

type bulkDeleteRequest struct {
	ChildCodes []string `json:"child_codes"`
}

func NewPatientHandler(svc PatientService, maxImportBytes int64) *PatientHandler {
	if maxImportBytes <= 0 {
		maxImportBytes = defaultMaxImportBytes
	}
	return &PatientHandler{svc: svc, maxImportBytes: maxImportBytes}
}

// List handles GET /patients?search=&community=
func (h *PatientHandler) List(c *gin.Context) {
	q := &patient.ListPatientsQuery{
		Search:    strings.TrimSpace(c.Query("search")),
		Community: strings.TrimSpace(c.Query("community")),
	}

	summaries, err := h.svc.ListPatients(c.Request.Context(), q)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, lo.Map(summaries, func(s *patient.Summary, _ int) patientResponse {
		return toPatientResponse(&s.Patient, s.ScreenCount)
	}))
}

func (h *PatientHandler) Create(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req patient.Fields
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.svc.CreatePatient(c.Request.Context(), req, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, toPatientResponse(p, 0))
}

func (h *PatientHandler) Update(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req updatePatientRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.svc.UpdatePatient(c.Request.Context(), c.Param("code"), &patient.UpdatePatientCommand{
		ChildCode:   req.ChildCode,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Community:   req.Community,
		DateOfBirth: req.DateOfBirth,
		Sex:         req.Sex,
		UpdatedBy:   actor.UserID,
	}, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toPatientResponse(p, 0))
}

// Delete removes a single patient and their screening records.
func (h *PatientHandler) Delete(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	deleted, err := h.svc.BulkDelete(c.Request.Context(), []string{c.Param("code")}, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if deleted == 0 {
		respondServiceError(c, patient.ErrPatientNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PatientHandler) BulkDelete(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req bulkDeleteRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(req.ChildCodes) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	deleted, err := h.svc.BulkDelete(c.Request.Context(), req.ChildCodes, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, gin.H{"deleted": deleted})
}

// Export streams the CSV export as a download. The file is rendered in full
// first so a failure still produces a JSON error instead of a truncated file.
func (h *PatientHandler) Export(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.svc.Export(c.Request.Context(), &buf); err != nil {
		respondServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("patients_%s.csv", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *PatientHandler) ArchiveExport(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	key, err := h.svc.ArchiveExport(c.Request.Context(), actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, gin.H{"key": key})
}

// PreviewImport accepts the CSV either as a multipart "file" field or as the
// raw request body.
func (h *PatientHandler) PreviewImport(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxImportBytes)

	var body io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			respondError(c, http.StatusBadRequest, "missing csv file in form field \"file\"")
			return
		}
		f, err := fh.Open()
		if err != nil {
			respondError(c, http.StatusBadRequest, "unreadable upload")
			return
		}
		defer f.Close()
		body = f
	}

	data, err := io.ReadAll(body)
	if err != nil {
		respondError(c, http.StatusRequestEntityTooLarge, "import file is too large or unreadable")
		return
	}

	preview, err := h.svc.PreviewImport(c.Request.Context(), bytes.NewReader(data), actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, preview)
}

func (h *PatientHandler) CommitImport(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	id, ok := parseUUID(c, "preview_id")
	if !ok {
		return
	}

	n, err := h.svc.CommitImport(c.Request.Context(), id, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, gin.H{"imported": n})
}
