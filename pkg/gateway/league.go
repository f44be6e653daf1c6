package gateway

// Gameweek bounds accepted for a matches lookup.
const (
	MinGameweek = 1
	MaxGameweek = 38
)

// League is one competition the gateway serves.
type League struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var leagues = []League{
	{Code: "PL", Name: "Premier League"},
	{Code: "SA", Name: "Serie A"},
	{Code: "BL1", Name: "Bundesliga"},
	{Code: "FL1", Name: "Ligue 1"},
	{Code: "PD", Name: "La Liga"},
	{Code: "EC", Name: "European Championship"},
}

// Leagues returns the supported competitions in display order.
func Leagues() []League {
	return append([]League(nil), leagues...)
}

// LeagueCodes returns the supported competition codes in display order.
func LeagueCodes() []string {
	codes := make([]string, len(leagues))
	for i, l := range leagues {
		codes[i] = l.Code
	}
	return codes
}
