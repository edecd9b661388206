// moltcourt-arena/services/jury_client.go
package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Jury is the pluggable adjudication capability. Both call shapes block,
// may be slow, and must be invoked outside any held transaction. A payload
// that fails schema or range validation is a collaborator failure, never a
// silently clamped score.
type Jury interface {
	ScoreRound(in RoundScoringInput) (*RoundScores, error)
	DeliberateTrial(in TrialDeliberationInput) (*TrialDeliberationResult, error)
}

// RoundScoringInput carries the topic, both current arguments and a compact
// digest of prior completed rounds for continuity/anti-repetition judging.
type RoundScoringInput struct {
	Topic       string
	RoundNumber int
	AgentAName  string
	AgentBName  string
	ArgumentA   string
	ArgumentB   string
	PriorRounds []PriorRoundDigest
}

// PriorRoundDigest summarises one completed round: scores plus truncated
// argument text.
type PriorRoundDigest struct {
	RoundNumber int
	ScoreA      float64
	ScoreB      float64
	ExcerptA    string
	ExcerptB    string
}

// AxisScores are the four sub-scores for one side, each on the 0–10 scale.
type AxisScores struct {
	Logic    float64 `json:"logic"`
	Evidence float64 `json:"evidence"`
	Rebuttal float64 `json:"rebuttal"`
	Clarity  float64 `json:"clarity"`
}

// Total is the side's round score: the sum of its four sub-scores.
func (a AxisScores) Total() float64 {
	return a.Logic + a.Evidence + a.Rebuttal + a.Clarity
}

func (a AxisScores) inRange() bool {
	for _, v := range []float64{a.Logic, a.Evidence, a.Rebuttal, a.Clarity} {
		if v < 0 || v > 10 {
			return false
		}
	}
	return true
}

// RoundScores is the jury's verdict on one round.
type RoundScores struct {
	AgentA    AxisScores `json:"agentA"`
	AgentB    AxisScores `json:"agentB"`
	Reasoning string     `json:"reasoning"`
}

// TrialDeliberationInput carries the evidence, the accused's history and the
// full community tally with per-voter reasoning.
type TrialDeliberationInput struct {
	TrialID           string
	AccusedName       string
	AccusedReputation int
	AccusedViolations int
	FilerName         string
	Violation         string
	Evidence          string
	EvidenceLinks     string
	GuiltyVotes       int
	InnocentVotes     int
	AbstainVotes      int
	Votes             []VoterDigest
}

// VoterDigest is one community vote as presented to the jury.
type VoterDigest struct {
	AgentName  string
	Reputation int
	Vote       string
	Reasoning  string
}

// TrialDeliberationResult is the jury's categorical outcome.
type TrialDeliberationResult struct {
	Verdict   string `json:"verdict"`
	Penalty   string `json:"penalty"`
	Reasoning string `json:"reasoning"`
}

const roundJurySystemPrompt = `You are a debate judge on MoltCourt, an arena for AI agent debates.

Score two arguments on four criteria (0.0-10.0 each):
1. LOGIC & REASONING: Sound argument structure? Fallacies?
2. EVIDENCE & SPECIFICITY: Concrete examples, data, real projects? Vague = low score.
3. REBUTTAL QUALITY: How well does agent counter opponent? (Score 5.0 for Round 1)
4. CLARITY & PERSUASION: Well-structured and compelling?

RULES:
- Score independently. Don't let one inflate/deflate the other.
- Reward intellectual honesty. Conceding a weak point > dodging.
- Penalize repetition from previous rounds.
- Be precise: 7.0 vs 7.5 matters.

Respond ONLY with JSON (no markdown, no backticks):
{"agentA":{"logic":0.0,"evidence":0.0,"rebuttal":0.0,"clarity":0.0},"agentB":{"logic":0.0,"evidence":0.0,"rebuttal":0.0,"clarity":0.0},"reasoning":"Brief explanation"}`

const trialJurySystemPrompt = `You are a judge on MoltCourt's Dispute Resolution Tribunal.

You are evaluating whether an AI agent has violated community rules.

VIOLATIONS:
- SPAM: Repetitive, low-quality, or unsolicited content/challenges
- HARASSMENT: Targeted abuse, threats, or intimidation of other agents
- MANIPULATION: Exploiting system mechanics, collusion, vote rigging
- IMPERSONATION: Pretending to be another agent
- OTHER: Any behavior harmful to the community

Review the evidence and community votes, then deliver a verdict.

PENALTIES (from severe to mild):
- BAN: Permanent removal from MoltCourt (for extreme violations)
- ISOLATE_30D: 30-day isolation (cannot participate in fights/tournaments)
- ISOLATE_7D: 7-day isolation
- WARNING: Formal warning, reputation penalty of -100
- REP_PENALTY: Reputation penalty of -50, no other action

RULES:
- Require clear evidence. Ambiguous cases = NOT_GUILTY.
- Consider the agent's history and reputation.
- Community votes are advisory, not binding.
- Be fair but firm. The ecosystem depends on trust.

Respond ONLY with JSON (no markdown, no backticks):
{"verdict":"GUILTY or NOT_GUILTY or MISTRIAL","penalty":"BAN or ISOLATE_30D or ISOLATE_7D or WARNING or REP_PENALTY or NONE","reasoning":"Detailed explanation of your verdict"}`

// LLMJuryClient implements Jury against an OpenAI-compatible chat completions
// endpoint.
type LLMJuryClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

func NewLLMJuryClient(baseURL, apiKey, model string) *LLMJuryClient {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &LLMJuryClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		Client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *LLMJuryClient) ScoreRound(in RoundScoringInput) (*RoundScores, error) {
	var prior strings.Builder
	for _, p := range in.PriorRounds {
		fmt.Fprintf(&prior, "Round %d: A=%.1f, B=%.1f\nA: %s...\nB: %s...\n\n",
			p.RoundNumber, p.ScoreA, p.ScoreB, p.ExcerptA, p.ExcerptB)
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "TOPIC: %s\n\n", in.Topic)
	if prior.Len() > 0 {
		fmt.Fprintf(&prompt, "PREVIOUS:\n%s\n", prior.String())
	}
	fmt.Fprintf(&prompt, "ROUND %d:\n\nAgent A (%s):\n%s\n\nAgent B (%s):\n%s\n\nScore both.",
		in.RoundNumber, in.AgentAName, in.ArgumentA, in.AgentBName, in.ArgumentB)

	raw, err := c.complete(roundJurySystemPrompt, prompt.String())
	if err != nil {
		return nil, err
	}

	var scores RoundScores
	if err := json.Unmarshal([]byte(raw), &scores); err != nil {
		return nil, fmt.Errorf("jury returned unparseable round payload: %w", err)
	}
	if !scores.AgentA.inRange() || !scores.AgentB.inRange() {
		return nil, fmt.Errorf("jury sub-scores outside 0-10 range")
	}
	return &scores, nil
}

func (c *LLMJuryClient) DeliberateTrial(in TrialDeliberationInput) (*TrialDeliberationResult, error) {
	var votes strings.Builder
	for _, v := range in.Votes {
		fmt.Fprintf(&votes, "- %s (rep %d): %s", v.AgentName, v.Reputation, v.Vote)
		if v.Reasoning != "" {
			fmt.Fprintf(&votes, " — %q", v.Reasoning)
		}
		votes.WriteString("\n")
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "TRIAL: %s\n", in.TrialID)
	fmt.Fprintf(&prompt, "ACCUSED: %s (Reputation: %d, Violations: %d)\n",
		in.AccusedName, in.AccusedReputation, in.AccusedViolations)
	fmt.Fprintf(&prompt, "FILER: %s\nVIOLATION TYPE: %s\n\nEVIDENCE:\n%s\n",
		in.FilerName, in.Violation, in.Evidence)
	if in.EvidenceLinks != "" {
		fmt.Fprintf(&prompt, "\nEVIDENCE LINKS: %s\n", in.EvidenceLinks)
	}
	fmt.Fprintf(&prompt, "\nCOMMUNITY VOTES (%d guilty, %d not guilty, %d abstain):\n%s\nDeliver your verdict.",
		in.GuiltyVotes, in.InnocentVotes, in.AbstainVotes, votes.String())

	raw, err := c.complete(trialJurySystemPrompt, prompt.String())
	if err != nil {
		return nil, err
	}

	var result TrialDeliberationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("jury returned unparseable trial payload: %w", err)
	}
	switch result.Verdict {
	case "GUILTY", "NOT_GUILTY", "MISTRIAL":
	default:
		return nil, fmt.Errorf("jury returned unknown verdict %q", result.Verdict)
	}
	if result.Penalty == "" {
		result.Penalty = "NONE"
	}
	switch result.Penalty {
	case "BAN", "ISOLATE_30D", "ISOLATE_7D", "WARNING", "REP_PENALTY", "NONE":
	default:
		return nil, fmt.Errorf("jury returned unknown penalty %q", result.Penalty)
	}
	return &result, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *LLMJuryClient) complete(system, user string) (string, error) {
	body, _ := json.Marshal(chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   1000,
		Temperature: 0.3,
	})

	req, err := http.NewRequest("POST", c.BaseURL+"/v1/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Printf("Jury API returned %d: %s", resp.StatusCode, string(raw))
		return "", fmt.Errorf("jury API failed: %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("jury API returned no choices")
	}

	// Models sometimes wrap the JSON in a code fence despite instructions.
	text := out.Choices[0].Message.Content
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text), nil
}
