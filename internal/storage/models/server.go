package models

// Server represents one entry of the VPN server catalog
type Server struct {
	ID          string   `json:"id" yaml:"id"`
	Country     string   `json:"country" yaml:"country"`
	City        string   `json:"city" yaml:"city"`
	Flag        string   `json:"flag,omitempty" yaml:"flag,omitempty"`
	IP          string   `json:"ip" yaml:"ip"`
	LoadPercent int      `json:"load_percent" yaml:"load_percent"` // 0-100
	PingMS      int      `json:"ping_ms" yaml:"ping_ms"`
	Premium     bool     `json:"premium" yaml:"premium"`
	Features    []string `json:"features,omitempty" yaml:"features,omitempty"` // e.g. Streaming, P2P
}

// Location returns "Country (City)" as shown in the connection log.
func (s Server) Location() string {
	return s.Country + " (" + s.City + ")"
}

// HasFeature reports whether the server carries the given feature tag.
func (s Server) HasFeature(feature string) bool {
	for _, f := range s.Features {
		if f == feature {
			return true
		}
	}
	return false
}
