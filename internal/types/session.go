package types

import "time"

// GameCondition represents the terminal state of a session
type GameCondition string

const (
	ConditionInProgress GameCondition = "in_progress"
	ConditionWon        GameCondition = "won"
	ConditionLost       GameCondition = "lost"
)

// Terminal reports whether the condition ends the session
func (c GameCondition) Terminal() bool {
	return c == ConditionWon || c == ConditionLost
}

// Coordinates is a geographic point
type Coordinates struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// ResourceItem represents a single named resource quantity
type ResourceItem struct {
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	Available int    `json:"available"`
	Total     int    `json:"total"`
}

// ResourceGroup represents a category of resources
type ResourceGroup struct {
	Category string         `json:"category"`
	Items    []ResourceItem `json:"items"`
}

// Threat represents a disclosed or pending incident tied to the scenario
type Threat struct {
	Index       int          `json:"index"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Score       int          `json:"score"`
	Visible     bool         `json:"visible"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// ActionRecord is one entry in the append-only action history
type ActionRecord struct {
	Title         string    `json:"title"`
	Action        string    `json:"action"`
	ResultText    string    `json:"result_text"`
	Feedback      string    `json:"feedback"`
	Effectiveness float64   `json:"effectiveness"`
	Timestamp     time.Time `json:"timestamp"`
}

// Scenario is the immutable descriptor produced by the setup form
type Scenario struct {
	DisasterType string          `json:"disaster_type"`
	Role         string          `json:"role"`
	Location     string          `json:"location"`
	Description  string          `json:"description"`
	StartDate    time.Time       `json:"start_date"`
	EndDate      time.Time       `json:"end_date"`
	Center       Coordinates     `json:"center"`
	Resources    []ResourceGroup `json:"resources,omitempty"`
}

// Snapshot is the read-only session view consumed by presentation
type Snapshot struct {
	ID             string          `json:"id"`
	TurnsLeft      int             `json:"turns_left"`
	Stability      float64         `json:"stability"`
	Ledger         []ResourceGroup `json:"ledger"`
	Threats        []Threat        `json:"threats"`
	FocusedThreat  int             `json:"focused_threat"`
	History        []ActionRecord  `json:"history"`
	LastUserResult *ScoredResult   `json:"last_user_result,omitempty"`
	LastAiResult   *ScoredResult   `json:"last_ai_result,omitempty"`
	CurrentTime    time.Time       `json:"current_time"`
	Playing        bool            `json:"playing"`
	GameCondition  GameCondition   `json:"game_condition"`
}

// ComparisonSide is one half of a side-by-side comparison
type ComparisonSide struct {
	Narrative string  `json:"narrative"`
	Feedback  string  `json:"feedback"`
	Score     float64 `json:"score"`
}

// Comparison exposes the user and AI responses to the same situation
type Comparison struct {
	User ComparisonSide `json:"user"`
	AI   ComparisonSide `json:"ai"`
}
