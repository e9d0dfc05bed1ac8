package emergency

// Limitations and access levels derive deterministically from the emergency
// type. The two universal limitations are appended to every grant.
var universalLimitations = []string{
	"all access logged and subject to post-emergency review",
	"cannot grant further access to third parties",
}

var typeLimitations = map[string][]string{
	TypeLifeThreatening: {
		"Access limited to critical care records",
	},
	TypeUnconsciousPatient: {
		"Access limited to records relevant to current treatment",
		"Access must cease when patient regains capacity to consent",
	},
	TypeCriticalCare: {
		"Access limited to critical care records",
		"Attending specialist review required within 12 hours",
	},
	TypeSurgeryRequired: {
		"Access limited to surgical history, anesthesia records, and current medications",
	},
	TypeMentalHealthCrisis: {
		"Access limited to mental health and current medication records",
		"Psychiatric consult must be documented",
	},
}

var typeAccessLevels = map[string]string{
	TypeLifeThreatening:    "critical-care-only",
	TypeUnconsciousPatient: "treatment-relevant",
	TypeCriticalCare:       "critical-care-only",
	TypeSurgeryRequired:    "surgical-and-anesthesia",
	TypeMentalHealthCrisis: "mental-health-only",
}

// LimitationsFor returns the fixed restriction list for an emergency type,
// universal entries last.
func LimitationsFor(emergencyType string) []string {
	base := typeLimitations[emergencyType]
	out := make([]string, 0, len(base)+len(universalLimitations))
	out = append(out, base...)
	out = append(out, universalLimitations...)
	return out
}

// AccessLevelFor returns the record scope a temporary credential carries for
// the given emergency type.
func AccessLevelFor(emergencyType string) string {
	return typeAccessLevels[emergencyType]
}
