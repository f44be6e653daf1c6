package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// VenueUnknown is reported when the upstream omits a match venue.
const VenueUnknown = "N/A"

// MatchSummary is the caller-facing projection of one upstream match.
type MatchSummary struct {
	HomeTeam   string          `json:"homeTeam"`
	HomeTeamID int64           `json:"homeTeamId"`
	AwayTeam   string          `json:"awayTeam"`
	AwayTeamID int64           `json:"awayTeamId"`
	UTCDate    string          `json:"utcDate"`
	Venue      string          `json:"venue"`
	Status     string          `json:"status"`
	Score      json.RawMessage `json:"score"`
}

// TeamDetail is the upstream team object, passed through untouched.
type TeamDetail map[string]any

// ID returns the numeric team id, or 0 when absent.
func (t TeamDetail) ID() int64 {
	switch v := t["id"].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

// Name returns the team name, or "" when absent.
func (t TeamDetail) Name() string {
	name, _ := t["name"].(string)
	return name
}

type teamRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type upstreamMatch struct {
	UTCDate  string          `json:"utcDate"`
	Status   string          `json:"status"`
	Venue    *string         `json:"venue"`
	HomeTeam teamRef         `json:"homeTeam"`
	AwayTeam teamRef         `json:"awayTeam"`
	Score    json.RawMessage `json:"score"`
}

// matchesEnvelope keeps Matches as a pointer so a missing key can be told
// apart from an empty list.
type matchesEnvelope struct {
	Matches *[]upstreamMatch `json:"matches"`
}

// shapeMatches projects an upstream matches payload, preserving order.
func shapeMatches(body []byte) ([]MatchSummary, error) {
	var env matchesEnvelope
	if err := sonic.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode matches: %w", err)
	}
	if env.Matches == nil {
		return nil, ErrNoMatches
	}

	out := make([]MatchSummary, 0, len(*env.Matches))
	for _, m := range *env.Matches {
		venue := VenueUnknown
		if m.Venue != nil && *m.Venue != "" {
			venue = *m.Venue
		}
		score := m.Score
		if len(score) == 0 {
			score = json.RawMessage("null")
		}
		out = append(out, MatchSummary{
			HomeTeam:   m.HomeTeam.Name,
			HomeTeamID: m.HomeTeam.ID,
			AwayTeam:   m.AwayTeam.Name,
			AwayTeamID: m.AwayTeam.ID,
			UTCDate:    m.UTCDate,
			Venue:      venue,
			Status:     m.Status,
			Score:      score,
		})
	}
	return out, nil
}

// decodeTeam checks the upstream team payload is a JSON object.
func decodeTeam(body []byte) (TeamDetail, error) {
	var team TeamDetail
	if err := sonic.Unmarshal(body, &team); err != nil {
		return nil, fmt.Errorf("decode team: %w", err)
	}
	if team == nil {
		return nil, fmt.Errorf("decode team: empty payload")
	}
	return team, nil
}
