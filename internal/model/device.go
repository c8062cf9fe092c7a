package model

import "strings"

// DeviceDefinition maps a physical instrument to the gateway.
type DeviceDefinition struct {
	ID              string   `json:"id"`
	DriverType      string   `json:"driver_type"` // SiLA2, SerialWrapper, VisionWrapper
	Endpoint        string   `json:"endpoint"`
	Capabilities    []string `json:"capabilities"`
	AllowedReflexes []string `json:"allowed_reflexes"`
}

// Allows reports whether a manually triggered action is permitted on the
// device. An empty AllowedReflexes list permits every action.
func (d DeviceDefinition) Allows(action Action) bool {
	if len(d.AllowedReflexes) == 0 {
		return true
	}
	for _, a := range d.AllowedReflexes {
		if strings.EqualFold(a, string(action)) {
			return true
		}
	}
	return false
}
