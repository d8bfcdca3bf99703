package types

// ThreatReport is a threat as reported by the incident collaborator
type ThreatReport struct {
	Name        string       `json:"name"`
	Description string       `json:"threat_description"`
	Score       int          `json:"threat_score"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// DailyThreat is one day of the collaborator's one-week outlook
type DailyThreat struct {
	Day                            int      `json:"day"`
	CriticalInfrastructureProblems []string `json:"critical_infrastructure_problems"`
	PublicHealthRisks              []string `json:"public_health_risks,omitempty"`
	EconomicDisruptions            []string `json:"economic_disruptions,omitempty"`
	EnvironmentalConcerns          []string `json:"environmental_concerns,omitempty"`
}

// StartResult is the collaborator's response to a session start
type StartResult struct {
	SessionID           string        `json:"session_id"`
	MostPotentialThreat ThreatReport  `json:"most_potential_threat"`
	DailyThreats        []DailyThreat `json:"daily_threats"`
}

// ResponseAnalysis holds the 0-10 scores for each evaluated dimension
type ResponseAnalysis struct {
	MedicalRelevance      float64 `json:"medical_relevance"`
	LogisticalFeasibility float64 `json:"logistical_feasibility"`
	EthicalConsiderations float64 `json:"ethical_considerations"`
	ContextRelevance      float64 `json:"context_relevance"`
	OverallEffectiveness  float64 `json:"overall_effectiveness"`
}

// SeverityReport is a severity score with its explanation
type SeverityReport struct {
	Score       int    `json:"severity_score"`
	Description string `json:"severity_description"`
}

// AlternativeSolution is the AI counterfactual attached to an analysis
type AlternativeSolution struct {
	Solution          string                    `json:"solution"`
	AlternativeResult string                    `json:"alternative_result"`
	Feedback          string                    `json:"feedback"`
	ResponseAnalysis  ResponseAnalysis          `json:"response_analysis"`
	ResourcesNeeded   map[string]map[string]int `json:"resources_needed,omitempty"`
	UpdatedSeverity   SeverityReport            `json:"updated_severty_score"`
}

// Analysis is the structured evaluation of a submitted action
type Analysis struct {
	ShortResponse        string               `json:"short_response"`
	Feedback             string               `json:"feedback"`
	ResponseAnalysis     ResponseAnalysis     `json:"response_analysis"`
	AlternativeSolutions *AlternativeSolution `json:"alternative_solutions,omitempty"`
	UpdatedSeverity      SeverityReport       `json:"updated_severty_score"`
}

// ScoredResult is the collaborator's response to a solved action
type ScoredResult struct {
	SeverityScore    int                       `json:"severity_score"`
	UpdatedResources map[string]map[string]int `json:"updated_resources"`
	FollowUpThreat   *ThreatReport             `json:"follow_up_threat,omitempty"`
	Analysis         Analysis                  `json:"analysis"`
}

// SimulationRequest asks the collaborator to solve the situation itself
type SimulationRequest struct {
	LocationHint string                    `json:"location"`
	Stability    float64                   `json:"initial_stability"`
	Resources    map[string]map[string]int `json:"resources"`
	Actions      []string                  `json:"history"`
}
