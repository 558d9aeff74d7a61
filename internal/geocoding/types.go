package geocoding

import "strings"

// Address is the structured part of a reverse geocoding result.
type Address struct {
	Road          string `json:"road,omitempty"`
	Neighbourhood string `json:"neighbourhood,omitempty"`
	Suburb        string `json:"suburb,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	Country       string `json:"country,omitempty"`
}

// ResolvedAddress is what the picker shows for the centered point.
type ResolvedAddress struct {
	DisplayName string  `json:"display_name"`
	Address     Address `json:"address"`
}

// Label is the short form shown on the picker card: city, neighbourhood and
// road, skipping the parts the service did not return.
func (r *ResolvedAddress) Label() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Address.City, r.Address.Neighbourhood, r.Address.Road} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return r.DisplayName
	}
	return strings.Join(parts, " ")
}

type reverseResult struct {
	DisplayName string  `json:"display_name"`
	Address     Address `json:"address"`
	Error       string  `json:"error,omitempty"`
}
