package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/claimrecon/internal/oracle"
)

// Scenario defines a reconciliation scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// ConcurrencyLimit caps oracle calls in flight. Defaults to DefaultConcurrencyLimit.
	ConcurrencyLimit int `yaml:"concurrency_limit,omitempty"`

	// CallTimeoutMs bounds each oracle call. Defaults to DefaultCallTimeoutMs.
	CallTimeoutMs int `yaml:"call_timeout_ms,omitempty"`

	// Claims are submitted in order before the first scan.
	Claims []ClaimStep `yaml:"claims"`

	// Oracle maps verification tokens to their scripted outcomes.
	Oracle map[string][]string `yaml:"oracle,omitempty"`

	// Scans is the number of scans to run.
	Scans int `yaml:"scans"`

	// Attach sets verification tokens between scans.
	Attach []AttachStep `yaml:"attach,omitempty"`

	// Expect validates the final state of claims.
	Expect []Expectation `yaml:"expect,omitempty"`
}

// ClaimStep submits one claim.
type ClaimStep struct {
	Subject string `yaml:"subject"`
	Kind    string `yaml:"kind"`
	Token   string `yaml:"token,omitempty"`

	// ExpectError is "duplicate" or "invalid" if the submission must fail.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// AttachStep attaches a token to an existing claim after a given scan.
type AttachStep struct {
	// AfterScan is the 1-based scan after which the token is attached.
	AfterScan int    `yaml:"after_scan"`
	Subject   string `yaml:"subject"`
	Kind      string `yaml:"kind"`
	Token     string `yaml:"token"`
}

// Expectation checks one claim, identified by subject and kind, after the
// last scan. Nil fields are not checked.
type Expectation struct {
	Subject     string `yaml:"subject"`
	Kind        string `yaml:"kind"`
	Status      string `yaml:"status,omitempty"`
	RetryCount  *int   `yaml:"retry_count,omitempty"`
	OracleCalls *int   `yaml:"oracle_calls,omitempty"`
}

// Submission outcomes recorded in the trace and matched by ExpectError.
const (
	SubmitCreated   = "created"
	SubmitDuplicate = "duplicate"
	SubmitInvalid   = "invalid"
)

// Scenario defaults.
const (
	DefaultConcurrencyLimit = 4
	DefaultCallTimeoutMs    = 1000
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Claims) == 0 {
		return fmt.Errorf("claims list is required and must be non-empty")
	}
	if s.Scans < 1 {
		return fmt.Errorf("scans must be at least 1")
	}
	if s.ConcurrencyLimit < 0 {
		return fmt.Errorf("concurrency_limit must not be negative")
	}
	if s.CallTimeoutMs < 0 {
		return fmt.Errorf("call_timeout_ms must not be negative")
	}

	for i, c := range s.Claims {
		switch c.ExpectError {
		case "", SubmitDuplicate, SubmitInvalid:
		default:
			return fmt.Errorf("claims[%d]: expect_error must be %q or %q, got %q", i, SubmitDuplicate, SubmitInvalid, c.ExpectError)
		}
	}

	for token, outcomes := range s.Oracle {
		if len(outcomes) == 0 {
			return fmt.Errorf("oracle[%s]: at least one outcome is required", token)
		}
		for _, raw := range outcomes {
			if _, err := oracle.ParseOutcome(raw); err != nil {
				return fmt.Errorf("oracle[%s]: %w", token, err)
			}
		}
	}

	for i, a := range s.Attach {
		if a.AfterScan < 1 || a.AfterScan >= s.Scans {
			return fmt.Errorf("attach[%d]: after_scan must be between 1 and %d", i, s.Scans-1)
		}
		if a.Token == "" {
			return fmt.Errorf("attach[%d]: token is required", i)
		}
	}

	for i, e := range s.Expect {
		if e.Subject == "" || e.Kind == "" {
			return fmt.Errorf("expect[%d]: subject and kind are required", i)
		}
		switch e.Status {
		case "", "unconfirmed", "confirmed":
		default:
			return fmt.Errorf("expect[%d]: unknown status %q", i, e.Status)
		}
	}
	return nil
}

// scripts converts the oracle section into scripted outcomes.
func (s *Scenario) scripts() map[string][]oracle.Outcome {
	out := make(map[string][]oracle.Outcome, len(s.Oracle))
	for token, raws := range s.Oracle {
		for _, raw := range raws {
			o, _ := oracle.ParseOutcome(raw) // checked by validateScenario
			out[token] = append(out[token], o)
		}
	}
	return out
}
