// Package testutil provides testing utilities for the football gateway.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a single mock upstream response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream is a scriptable stand-in for the football-data API.
//
// Each path serves its scripted responses in order; the last one repeats
// once the script is used up. Unknown paths answer 404.
type MockUpstream struct {
	server *httptest.Server

	mu        sync.Mutex
	scripts   map[string][]MockResponse
	served    map[string]int
	total     int
	lastToken string
	hits      []time.Time
}

// NewMockUpstream creates and starts a new mock upstream server.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		scripts: make(map[string][]MockResponse),
		served:  make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server base URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// SetResponses scripts the responses served for path, in order.
func (m *MockUpstream) SetResponses(path string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[path] = responses
	m.served[path] = 0
}

// SetMatchesResponses scripts the matches endpoint of a competition.
func (m *MockUpstream) SetMatchesResponses(league string, responses ...MockResponse) {
	m.SetResponses(fmt.Sprintf("/v4/competitions/%s/matches", league), responses...)
}

// SetTeamResponses scripts the team endpoint.
func (m *MockUpstream) SetTeamResponses(teamID int64, responses ...MockResponse) {
	m.SetResponses(fmt.Sprintf("/v4/teams/%d", teamID), responses...)
}

// RequestCount returns the total number of requests received.
func (m *MockUpstream) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// PathCount returns the number of requests received for path.
func (m *MockUpstream) PathCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.served[path]
}

// LastToken returns the X-Auth-Token of the most recent request.
func (m *MockUpstream) LastToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastToken
}

// Hits returns the arrival time of every request, in order.
func (m *MockUpstream) Hits() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Time, len(m.hits))
	copy(out, m.hits)
	return out
}

func (m *MockUpstream) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.total++
	m.lastToken = r.Header.Get("X-Auth-Token")
	m.hits = append(m.hits, time.Now())

	script, ok := m.scripts[r.URL.Path]
	n := m.served[r.URL.Path]
	m.served[r.URL.Path] = n + 1
	m.mu.Unlock()

	if !ok || len(script) == 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "The resource you are looking for does not exist.", "errorCode": 404}`))
		return
	}

	if n >= len(script) {
		n = len(script) - 1
	}
	resp := script[n]

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewOKResponse creates a 200 OK response with the given JSON body.
func NewOKResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"X-Requests-Available-Minute": "9",
			"X-RequestCounter-Reset":      "60",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response shaped like
// the football-data throttle reply.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message": "You reached your request limit. Wait 60 seconds.", "errorCode": 429}`,
		Headers: map[string]string{
			"X-Requests-Available-Minute": "0",
			"X-RequestCounter-Reset":      "60",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message": "Internal server error"}`,
	}
}

// NewForbiddenResponse creates the 403 returned for competitions outside the
// subscribed tier.
func NewForbiddenResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"message": "The resource you are looking for is restricted.", "errorCode": 403}`,
	}
}

// MatchesBody renders a minimal matches payload. An empty venue omits the
// field entirely.
func MatchesBody(matches ...MatchFixture) string {
	body := `{"filters": {"matchday": "1"}, "resultSet": {"count": ` + fmt.Sprint(len(matches)) + `}, "matches": [`
	for i, m := range matches {
		if i > 0 {
			body += ","
		}
		venue := ""
		if m.Venue != "" {
			venue = fmt.Sprintf(`"venue": %q, `, m.Venue)
		}
		body += fmt.Sprintf(`{"id": %d, "utcDate": %q, "status": %q, "matchday": %d, %s`+
			`"homeTeam": {"id": %d, "name": %q, "crest": "https://crests.football-data.org/%d.png"}, `+
			`"awayTeam": {"id": %d, "name": %q, "crest": "https://crests.football-data.org/%d.png"}, `+
			`"score": {"winner": null, "duration": "REGULAR", "fullTime": {"home": %d, "away": %d}}, `+
			`"referees": []}`,
			m.ID, m.UTCDate, m.Status, m.Matchday, venue,
			m.HomeID, m.HomeName, m.HomeID,
			m.AwayID, m.AwayName, m.AwayID,
			m.HomeGoals, m.AwayGoals)
	}
	return body + `]}`
}

// MatchFixture describes one match in a MatchesBody payload.
type MatchFixture struct {
	ID        int64
	UTCDate   string
	Status    string
	Matchday  int
	Venue     string
	HomeID    int64
	HomeName  string
	AwayID    int64
	AwayName  string
	HomeGoals int
	AwayGoals int
}

// SampleMatch returns a finished fixture with sensible defaults.
func SampleMatch() MatchFixture {
	return MatchFixture{
		ID:        435943,
		UTCDate:   "2024-09-14T11:30:00Z",
		Status:    "FINISHED",
		Matchday:  4,
		HomeID:    65,
		HomeName:  "Manchester City FC",
		AwayID:    58,
		AwayName:  "Aston Villa FC",
		HomeGoals: 2,
		AwayGoals: 1,
	}
}

// TeamBody renders a minimal team payload.
func TeamBody(id int64, name string) string {
	return fmt.Sprintf(`{"id": %d, "name": %q, "shortName": %q, "tla": "TST", `+
		`"crest": "https://crests.football-data.org/%d.png", "address": "Somewhere", `+
		`"founded": 1880, "venue": "Etihad Stadium", "clubColors": "Sky Blue / White", `+
		`"squad": [{"id": 3223, "name": "Ederson", "position": "Goalkeeper"}]}`,
		id, name, name, id)
}
