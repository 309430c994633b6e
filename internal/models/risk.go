package models

// Risk levels reported by the oracle for a single finding
const (
	RiskInfo   = "info"
	RiskWarn   = "warn"
	RiskDanger = "danger"
)

// RiskReport is the oracle's summary for a single mint
type RiskReport struct {
	// Score is opaque and unbounded above; lower is safer.
	Score        int64  `json:"score"`
	Risks        []Risk `json:"risks"`
	TokenProgram string `json:"tokenProgram,omitempty"`
	TokenType    string `json:"tokenType,omitempty"`
}

// Risk is one finding inside a RiskReport
type Risk struct {
	Name        string `json:"name"`
	Value       string `json:"value,omitempty"`
	Description string `json:"description"`
	Score       int64  `json:"score"`
	Level       string `json:"level"`
}

// DangerCount returns the number of findings at danger level.
func (r *RiskReport) DangerCount() int {
	count := 0
	for _, risk := range r.Risks {
		if risk.Level == RiskDanger {
			count++
		}
	}
	return count
}

type RiskLevel string

const (
	LevelLow      RiskLevel = "LOW"
	LevelMedium   RiskLevel = "MEDIUM"
	LevelHigh     RiskLevel = "HIGH"
	LevelCritical RiskLevel = "CRITICAL"
)

type Recommendation string

const (
	RecommendBuy   Recommendation = "BUY"
	RecommendHold  Recommendation = "HOLD"
	RecommendAvoid Recommendation = "AVOID"
)

// Verdict is the bounded classification derived from a RiskReport
type Verdict struct {
	Level          RiskLevel      `json:"level"`
	Recommendation Recommendation `json:"recommendation"`
	Summary        string         `json:"summary"`
}

// Analysis is a token together with its verdict, as delivered to the gateway
type Analysis struct {
	Token      TokenRecord `json:"token"`
	Verdict    Verdict     `json:"verdict"`
	PassesGate bool        `json:"passesGate"`
}

// SnipePlan is the outcome of the pre-trade safety checks for an analysed token
type SnipePlan struct {
	Mint      string   `json:"mint"`
	Safe      bool     `json:"safe"`
	Reasons   []string `json:"reasons,omitempty"`
	AmountSOL float64  `json:"amountSol"`
}
