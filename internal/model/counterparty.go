package model

// CounterpartyDetails describes a protocol a plugin decodes.
type CounterpartyDetails struct {
	Identifier string `json:"identifier"`
	Label      string `json:"label"`
	Image      string `json:"image,omitempty"`
}
