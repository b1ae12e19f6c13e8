package screening

import (
	"strings"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
)

// Payload is the clinical content captured by one section's form.
type Payload interface {
	Section() domain.Section
	Validate() []string
}

// Vitals is the section 1 form: anthropometry, vital signs and physical exam.
type Vitals struct {
	WeightKg           *float64 `json:"weight_kg,omitempty"`
	HeightCm           *float64 `json:"height_cm,omitempty"`
	MUACCm             *float64 `json:"muac_cm,omitempty"`
	TemperatureCelsius *float64 `json:"temperature_celsius,omitempty"`
	HeartRateBPM       *int     `json:"heart_rate_bpm,omitempty"`
	RespiratoryRate    *int     `json:"respiratory_rate_bpm,omitempty"`
	OxygenSaturation   *float64 `json:"oxygen_saturation,omitempty"`

	GeneralAppearance string `json:"general_appearance,omitempty"`
	Pallor            string `json:"pallor,omitempty"`
	Oedema            string `json:"oedema,omitempty"`
	Jaundice          string `json:"jaundice,omitempty"`
	SkinFindings      string `json:"skin_findings,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

func (Vitals) Section() domain.Section { return domain.SectionVitals }

func (v Vitals) Validate() []string {
	var errs []string
	positive := map[string]*float64{
		"weight_kg":           v.WeightKg,
		"height_cm":           v.HeightCm,
		"muac_cm":             v.MUACCm,
		"temperature_celsius": v.TemperatureCelsius,
	}
	for _, name := range []string{"weight_kg", "height_cm", "muac_cm", "temperature_celsius"} {
		if p := positive[name]; p != nil && *p <= 0 {
			errs = append(errs, name+" must be positive")
		}
	}
	if v.OxygenSaturation != nil && (*v.OxygenSaturation <= 0 || *v.OxygenSaturation > 100) {
		errs = append(errs, "oxygen_saturation must be between 0 and 100")
	}
	if v.HeartRateBPM != nil && *v.HeartRateBPM <= 0 {
		errs = append(errs, "heart_rate_bpm must be positive")
	}
	if v.RespiratoryRate != nil && *v.RespiratoryRate <= 0 {
		errs = append(errs, "respiratory_rate_bpm must be positive")
	}
	errs = appendChoiceErr(errs, "pallor", v.Pallor, yesNo)
	errs = appendChoiceErr(errs, "oedema", v.Oedema, yesNo)
	errs = appendChoiceErr(errs, "jaundice", v.Jaundice, yesNo)
	return errs
}

// Laboratory is the section 2 form.
type Laboratory struct {
	HemoglobinGdL *float64 `json:"hemoglobin_g_dl,omitempty"`
	BloodGlucose  *float64 `json:"blood_glucose_mmol_l,omitempty"`
	MalariaRDT    string   `json:"malaria_rdt,omitempty"`
	SickleCell    string   `json:"sickle_cell,omitempty"`
	StoolExam     string   `json:"stool_exam,omitempty"`
	Urinalysis    string   `json:"urinalysis,omitempty"`
	OtherTests    string   `json:"other_tests,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

func (Laboratory) Section() domain.Section { return domain.SectionLaboratory }

func (l Laboratory) Validate() []string {
	var errs []string
	if l.HemoglobinGdL != nil && *l.HemoglobinGdL <= 0 {
		errs = append(errs, "hemoglobin_g_dl must be positive")
	}
	if l.BloodGlucose != nil && *l.BloodGlucose <= 0 {
		errs = append(errs, "blood_glucose_mmol_l must be positive")
	}
	errs = appendChoiceErr(errs, "malaria_rdt", l.MalariaRDT, testResult)
	errs = appendChoiceErr(errs, "sickle_cell", l.SickleCell, []string{"AA", "AS", "SS", "SC", "not_done"})
	return errs
}

// Diagnosis is the section 3 form.
type Diagnosis struct {
	Diagnosis        string `json:"diagnosis"`
	Treatment        string `json:"treatment,omitempty"`
	Referral         string `json:"referral,omitempty"`
	ReferralFacility string `json:"referral_facility,omitempty"`
	FollowUp         string `json:"follow_up,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

func (Diagnosis) Section() domain.Section { return domain.SectionDiagnosis }

func (d Diagnosis) Validate() []string {
	var errs []string
	if strings.TrimSpace(d.Diagnosis) == "" {
		errs = append(errs, "diagnosis is required")
	}
	errs = appendChoiceErr(errs, "referral", d.Referral, yesNo)
	if strings.EqualFold(d.Referral, "yes") && strings.TrimSpace(d.ReferralFacility) == "" {
		errs = append(errs, "referral_facility is required when referral is yes")
	}
	return errs
}

var (
	yesNo      = []string{"yes", "no"}
	testResult = []string{"positive", "negative", "not_done"}
)

// appendChoiceErr accepts an empty value or one of the choices, ignoring case.
func appendChoiceErr(errs []string, field, value string, choices []string) []string {
	if value == "" {
		return errs
	}
	for _, c := range choices {
		if strings.EqualFold(value, c) {
			return errs
		}
	}
	return append(errs, field+" must be one of "+strings.Join(choices, ", "))
}
