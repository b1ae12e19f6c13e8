package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/cycle"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/patient"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/screening"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/service"
)

type sectionResponse struct {
	Complete    bool                `json:"complete"`
	State       screening.GateState `json:"state"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	CompletedBy *uuid.UUID          `json:"completed_by,omitempty"`
	Data        any                 `json:"data,omitempty"`
}

type recordResponse struct {
	Patient       patientResponse                    `json:"patient"`
	Cycle         *cycle.Cycle                       `json:"cycle"`
	Persisted     bool                               `json:"persisted"`
	FullyComplete bool                               `json:"fully_complete"`
	Sections      map[domain.Section]sectionResponse `json:"sections"`
}

func toRecordResponse(v *service.RecordView) recordResponse {
	r := v.Record
	flags := r.Flags()
	section := func(s domain.Section, at *time.Time, by *uuid.UUID, data any) sectionResponse {
		return sectionResponse{
			Complete:    flags.Complete(s),
			State:       v.States[s],
			CompletedAt: at,
			CompletedBy: by,
			Data:        data,
		}
	}

	// Typed nil pointers must not leak into the interface field.
	var vitals, lab, diag any
	if r.Vitals != nil {
		vitals = r.Vitals
	}
	if r.Laboratory != nil {
		lab = r.Laboratory
	}
	if r.Diagnosis != nil {
		diag = r.Diagnosis
	}

	return recordResponse{
		Patient:       toPatientResponse(v.Patient, 0),
		Cycle:         v.Cycle,
		Persisted:     r.ID != uuid.Nil,
		FullyComplete: r.FullyComplete(),
		Sections: map[domain.Section]sectionResponse{
			domain.SectionVitals:     section(domain.SectionVitals, r.Section1CompletedAt, r.Section1CompletedBy, vitals),
			domain.SectionLaboratory: section(domain.SectionLaboratory, r.Section2CompletedAt, r.Section2CompletedBy, lab),
			domain.SectionDiagnosis:  section(domain.SectionDiagnosis, r.Section3CompletedAt, r.Section3CompletedBy, diag),
		},
	}
}

func NewScreeningHandler(svc ScreeningService) *ScreeningHandler {
	return &ScreeningHandler{svc: svc}
}

// Worklist handles GET /screenings/worklist?search=&community=
func (h *ScreeningHandler) Worklist(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	wl, err := h.svc.Worklist(c.Request.Context(), &patient.ListPatientsQuery{
		Search:    strings.TrimSpace(c.Query("search")),
		Community: strings.TrimSpace(c.Query("community")),
	}, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, wl)
}

func (h *ScreeningHandler) Summary(c *gin.Context) {
	sum, err := h.svc.Summary(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, sum)
}

func (h *ScreeningHandler) Get(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	view, err := h.svc.GetRecord(c.Request.Context(), c.Param("code"), actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toRecordResponse(view))
}

// SaveSection handles PUT /screenings/:code/sections/:section. The body is
// decoded into the form type of the section named in the path.
func (h *ScreeningHandler) SaveSection(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	section, err := domain.ParseSection(c.Param("section"))
	if err != nil {
		respondServiceError(c, screening.ErrInvalidSection)
		return
	}
	payload, err := screening.PayloadFor(section)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if err := c.ShouldBindJSON(payload); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	view, err := h.svc.SaveSection(c.Request.Context(), c.Param("code"), section, payload, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toRecordResponse(view))
}
