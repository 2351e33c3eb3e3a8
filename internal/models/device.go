package models

// Device kinds.
const (
	DeviceKindSimulated = "simulated"
	DeviceKindSerial    = "serial"
)

// Device describes a discovered oven.
type Device struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Port      string `json:"port"` // serial port path or "simulated"
	Kind      string `json:"kind"` // simulated | serial
	Connected bool   `json:"connected"`
	Selected  bool   `json:"selected"`
}

// IsSimulated reports whether the device is a software model.
func (d Device) IsSimulated() bool { return d.Kind == DeviceKindSimulated }
