package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/user/crisis-command/config"
	"github.com/user/crisis-command/internal/interfaces"
	"github.com/user/crisis-command/internal/types"
	"go.uber.org/zap"
)

// solveResultSchema is the contract every scored response must satisfy
// before any of its fields are applied to session state
const solveResultSchema = `{
  "type": "object",
  "properties": {
    "severity_score": {"type": "integer", "minimum": 0, "maximum": 10},
    "updated_resources": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "object",
        "additionalProperties": {"type": "integer"}
      }
    },
    "follow_up_threat": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "threat_description": {"type": "string"},
        "threat_score": {"type": "integer"}
      },
      "required": ["name", "threat_description"]
    },
    "analysis": {
      "type": "object",
      "properties": {
        "short_response": {"type": "string", "minLength": 1},
        "feedback": {"type": "string"},
        "response_analysis": {
          "type": "object",
          "properties": {
            "medical_relevance": {"type": "number", "minimum": 0, "maximum": 10},
            "logistical_feasibility": {"type": "number", "minimum": 0, "maximum": 10},
            "ethical_considerations": {"type": "number", "minimum": 0, "maximum": 10},
            "context_relevance": {"type": "number", "minimum": 0, "maximum": 10},
            "overall_effectiveness": {"type": "number", "minimum": 0, "maximum": 10}
          },
          "required": ["overall_effectiveness"]
        }
      },
      "required": ["short_response", "feedback", "response_analysis"]
    }
  },
  "required": ["severity_score", "updated_resources", "analysis"]
}`

// maxResponseBytes caps how much of a collaborator response is read
const maxResponseBytes = 4 << 20

// Client talks to the scoring collaborator over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	schema     *jsonschema.Schema
	logger     *zap.Logger
}

var _ interfaces.Scorer = (*Client)(nil)

// NewClient creates a scoring client from configuration
func NewClient(cfg config.ScoringConfig, logger *zap.Logger) (*Client, error) {
	schema, err := jsonschema.CompileString("solve_result.json", solveResultSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to compile solve result schema: %w", err)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		schema:     schema,
		logger:     logger,
	}, nil
}

// StartSession asks the incident collaborator to open a new session for
// the given location hint
func (c *Client) StartSession(ctx context.Context, locationHint string) (types.StartResult, error) {
	request := struct {
		Location string `json:"location"`
	}{Location: locationHint}

	body, err := c.post(ctx, "start", "/session/start", request)
	if err != nil {
		return types.StartResult{}, err
	}

	var result types.StartResult
	if err := json.Unmarshal(body, &result); err != nil {
		return types.StartResult{}, &ScoringError{Op: "start", Reason: "unparseable response", Err: err}
	}
	if result.SessionID == "" {
		return types.StartResult{}, &ScoringError{Op: "start", Reason: "response missing session_id"}
	}
	if result.MostPotentialThreat.Name == "" {
		return types.StartResult{}, &ScoringError{Op: "start", Reason: "response missing most_potential_threat"}
	}

	return result, nil
}

// SolveAction submits an action text for scoring. The response is
// validated against the solve result schema before it is decoded, so a
// partial response never reaches the caller.
func (c *Client) SolveAction(ctx context.Context, sessionID, solution string) (types.ScoredResult, error) {
	request := struct {
		SessionID string `json:"session_id"`
		Solution  string `json:"solution"`
	}{SessionID: sessionID, Solution: solution}

	return c.scoredCall(ctx, "solve", "/session/solve", request)
}

// RunSimulation asks the collaborator for an AI counterfactual evaluated
// against the supplied pre-action state
func (c *Client) RunSimulation(ctx context.Context, req types.SimulationRequest) (types.ScoredResult, error) {
	return c.scoredCall(ctx, "simulate", "/session/simulate", req)
}

func (c *Client) scoredCall(ctx context.Context, op, path string, request any) (types.ScoredResult, error) {
	body, err := c.post(ctx, op, path, request)
	if err != nil {
		return types.ScoredResult{}, err
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return types.ScoredResult{}, &ScoringError{Op: op, Reason: "unparseable response", Err: err}
	}
	if err := c.schema.Validate(raw); err != nil {
		return types.ScoredResult{}, &ScoringError{Op: op, Reason: "incomplete response", Err: err}
	}

	var result types.ScoredResult
	if err := json.Unmarshal(body, &result); err != nil {
		return types.ScoredResult{}, &ScoringError{Op: op, Reason: "unparseable response", Err: err}
	}

	return result, nil
}

func (c *Client) post(ctx context.Context, op, path string, request any) ([]byte, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, &ScoringError{Op: op, Reason: "unencodable request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, &NetworkError{Op: op, Err: context.Canceled}
		}
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("Scoring service returned error status",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode))
		return nil, &ScoringError{Op: op, Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	return body, nil
}
