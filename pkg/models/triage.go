package models

import "strings"

// Specialty is a medical specialty a report can be focused on.
type Specialty string

const (
	SpecialtyCardiology        Specialty = "cardiology"
	SpecialtyNeurology         Specialty = "neurology"
	SpecialtyPsychiatry        Specialty = "psychiatry"
	SpecialtyGastroenterology  Specialty = "gastroenterology"
	SpecialtyEndocrinology     Specialty = "endocrinology"
	SpecialtyPulmonology       Specialty = "pulmonology"
	SpecialtyDermatology       Specialty = "dermatology"
	SpecialtyRheumatology      Specialty = "rheumatology"
	SpecialtyOrthopedics       Specialty = "orthopedics"
	SpecialtyNephrology        Specialty = "nephrology"
	SpecialtyUrology           Specialty = "urology"
	SpecialtyGynecology        Specialty = "gynecology"
	SpecialtyOncology          Specialty = "oncology"
	SpecialtyInfectiousDisease Specialty = "infectious-disease"
	SpecialtyPrimaryCare       Specialty = "primary-care"
)

var knownSpecialties = map[Specialty]bool{
	SpecialtyCardiology:        true,
	SpecialtyNeurology:         true,
	SpecialtyPsychiatry:        true,
	SpecialtyGastroenterology:  true,
	SpecialtyEndocrinology:     true,
	SpecialtyPulmonology:       true,
	SpecialtyDermatology:       true,
	SpecialtyRheumatology:      true,
	SpecialtyOrthopedics:       true,
	SpecialtyNephrology:        true,
	SpecialtyUrology:           true,
	SpecialtyGynecology:        true,
	SpecialtyOncology:          true,
	SpecialtyInfectiousDisease: true,
	SpecialtyPrimaryCare:       true,
}

// ParseSpecialty normalizes s. Unknown values fall back to primary care and
// report ok=false so callers can log the substitution.
func ParseSpecialty(s string) (Specialty, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "_", "-")
	switch norm {
	case "primary care", "primarycare", "general", "general-practice":
		norm = string(SpecialtyPrimaryCare)
	case "infectious disease":
		norm = string(SpecialtyInfectiousDisease)
	}
	sp := Specialty(norm)
	if knownSpecialties[sp] {
		return sp, true
	}
	return SpecialtyPrimaryCare, false
}

// TriageUrgency is how soon the patient should see the recommended specialist.
type TriageUrgency string

const (
	TriageRoutine  TriageUrgency = "routine"
	TriageUrgent   TriageUrgency = "urgent"
	TriageEmergent TriageUrgency = "emergent"
)

// ParseTriageUrgency maps unknown values to routine.
func ParseTriageUrgency(s string) TriageUrgency {
	switch TriageUrgency(strings.ToLower(strings.TrimSpace(s))) {
	case TriageUrgent:
		return TriageUrgent
	case TriageEmergent:
		return TriageEmergent
	default:
		return TriageRoutine
	}
}

// SpecialtyRecommendation is one ranked alternative to the primary specialty.
type SpecialtyRecommendation struct {
	Specialty  Specialty `json:"specialty"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason"`
}

// TriageResult is the advisory output of one triage invocation.
// BasisIDs is set only when the remote service echoed back which
// assessments informed its decision.
type TriageResult struct {
	PrimarySpecialty     Specialty                 `json:"primary_specialty"`
	Confidence           float64                   `json:"confidence"`
	Reasoning            string                    `json:"reasoning"`
	Urgency              TriageUrgency             `json:"urgency"`
	RedFlags             []string                  `json:"red_flags,omitempty"`
	SecondarySpecialties []SpecialtyRecommendation `json:"secondary_specialties,omitempty"`
	RecommendedTiming    string                    `json:"recommended_timing"`
	BasisIDs             map[Variant][]string      `json:"basis_ids,omitempty"`
}

// Offers reports whether sp is the primary or one of the secondary specialties.
func (r TriageResult) Offers(sp Specialty) bool {
	if r.PrimarySpecialty == sp {
		return true
	}
	for _, s := range r.SecondarySpecialties {
		if s.Specialty == sp {
			return true
		}
	}
	return false
}

// ConfidenceFor returns the confidence the result assigned to sp.
func (r TriageResult) ConfidenceFor(sp Specialty) float64 {
	if r.PrimarySpecialty == sp {
		return r.Confidence
	}
	for _, s := range r.SecondarySpecialties {
		if s.Specialty == sp {
			return s.Confidence
		}
	}
	return 0
}
