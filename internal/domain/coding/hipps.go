package coding

import "math"

// HIPPSResult is the derived reimbursement classification: the 5-character
// case-mix group, the combined multiplier, and the projected payment. A
// pure function of the active code state and two fixed external inputs.
type HIPPSResult struct {
	CaseMixGroup      string  `json:"case_mix_group"`
	TotalPoints       int     `json:"total_points"`
	ClinicalSeverity  string  `json:"clinical_severity"`
	FunctionalLevel   string  `json:"functional_level"`
	ServiceLevel      string  `json:"service_level"`
	ComorbidityLevel  string  `json:"comorbidity_level"`
	TherapyLevel      string  `json:"therapy_level"`
	PaymentMultiplier float64 `json:"payment_multiplier"`
	FinalPayment      int     `json:"final_payment"`
}

var (
	severityMultipliers = map[string]float64{
		"1": 1.0, "2": 1.15, "3": 1.30, "4": 1.45, "5": 1.60, "6": 1.75,
	}
	functionalMultipliers = map[string]float64{"L": 1.25, "M": 1.10, "H": 1.0}
	serviceMultipliers    = map[string]float64{
		"C": 0.85, "D": 0.90, "E": 0.95, "F": 1.0, "G": 1.05,
		"H": 1.10, "I": 1.15, "J": 1.20, "K": 1.25,
	}
	comorbidityMultipliers = map[string]float64{
		"A": 1.0, "B": 1.08, "C": 1.16, "D": 1.24, "E": 1.32, "F": 1.40,
	}
	therapyMultipliers = map[string]float64{
		"A": 0.95, "B": 1.0, "C": 1.05, "D": 1.10, "E": 1.15, "F": 1.20,
	}
)

func clinicalSeverity(primaryPoints int) string {
	switch {
	case primaryPoints >= 25:
		return "6"
	case primaryPoints >= 20:
		return "5"
	case primaryPoints >= 15:
		return "4"
	case primaryPoints >= 10:
		return "3"
	case primaryPoints >= 5:
		return "2"
	default:
		return "1"
	}
}

func functionalLevel(oasisScore int) string {
	switch {
	case oasisScore >= 90:
		return "H"
	case oasisScore >= 70:
		return "M"
	default:
		return "L"
	}
}

func serviceLevel(totalPoints int) string {
	switch {
	case totalPoints >= 80:
		return "K"
	case totalPoints >= 60:
		return "J"
	case totalPoints >= 45:
		return "I"
	case totalPoints >= 30:
		return "H"
	case totalPoints >= 20:
		return "G"
	case totalPoints >= 15:
		return "F"
	case totalPoints >= 10:
		return "E"
	case totalPoints >= 5:
		return "D"
	default:
		return "C"
	}
}

func comorbidityLevel(activeSecondaries int) string {
	switch {
	case activeSecondaries >= 5:
		return "F"
	case activeSecondaries >= 4:
		return "E"
	case activeSecondaries >= 3:
		return "D"
	case activeSecondaries >= 2:
		return "C"
	case activeSecondaries >= 1:
		return "B"
	default:
		return "A"
	}
}

func therapyLevel(therapyMinutes int) string {
	switch {
	case therapyMinutes >= 600:
		return "F"
	case therapyMinutes >= 480:
		return "E"
	case therapyMinutes >= 360:
		return "D"
	case therapyMinutes >= 240:
		return "C"
	case therapyMinutes >= 120:
		return "B"
	default:
		return "A"
	}
}

func mul(table map[string]float64, key string) float64 {
	if v, ok := table[key]; ok {
		return v
	}
	return 1.0
}

// ComputeHIPPS derives the case-mix group and payment from the codes that
// are currently active (selected or manually added, not rejected) and
// flagged as HIPPS contributors. Always recomputed, never cached.
func (e *Engine) ComputeHIPPS(oasisScore, therapyMinutes int, baseRate float64) HIPPSResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	totalPoints := 0
	for _, list := range [][]CodeSuggestion{e.primary, e.secondary} {
		for _, cs := range list {
			if e.isActiveLocked(cs) && cs.IsHIPPSContributor {
				totalPoints += cs.HIPPSPoints
			}
		}
	}

	severity := "1"
	if active := e.activePrimaryLocked(); active != nil {
		severity = clinicalSeverity(active.HIPPSPoints)
	}

	activeSecondaries := 0
	for _, cs := range e.secondary {
		if e.isActiveLocked(cs) {
			activeSecondaries++
		}
	}

	r := HIPPSResult{
		TotalPoints:      totalPoints,
		ClinicalSeverity: severity,
		FunctionalLevel:  functionalLevel(oasisScore),
		ServiceLevel:     serviceLevel(totalPoints),
		ComorbidityLevel: comorbidityLevel(activeSecondaries),
		TherapyLevel:     therapyLevel(therapyMinutes),
	}
	r.CaseMixGroup = r.ClinicalSeverity + r.FunctionalLevel + r.ServiceLevel + r.ComorbidityLevel + r.TherapyLevel

	multiplier := mul(severityMultipliers, r.ClinicalSeverity) *
		mul(functionalMultipliers, r.FunctionalLevel) *
		mul(serviceMultipliers, r.ServiceLevel) *
		mul(comorbidityMultipliers, r.ComorbidityLevel) *
		mul(therapyMultipliers, r.TherapyLevel)
	r.PaymentMultiplier = multiplier
	r.FinalPayment = int(math.Round(baseRate * multiplier))
	return r
}
