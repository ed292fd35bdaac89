package model

// ConnectPoint is a location on the network: a device (or host) and an
// optional port. An empty Port denotes the whole device, which is how
// host endpoints and invalidation index keys are expressed.
type ConnectPoint struct {
	DeviceID string `json:"id"`
	Port     string `json:"port,omitempty"`
}

// NewConnectPoint creates a connect point
func NewConnectPoint(deviceID, port string) ConnectPoint {
	return ConnectPoint{DeviceID: deviceID, Port: port}
}

// DevicePoint creates a port-less connect point
func DevicePoint(deviceID string) ConnectPoint {
	return ConnectPoint{DeviceID: deviceID}
}

// HasPort returns true if the point names a specific port
func (c ConnectPoint) HasPort() bool {
	return c.Port != ""
}

// Device returns the point with its port stripped
func (c ConnectPoint) Device() ConnectPoint {
	return ConnectPoint{DeviceID: c.DeviceID}
}

func (c ConnectPoint) String() string {
	if c.Port == "" {
		return c.DeviceID
	}
	return c.DeviceID + "/" + c.Port
}

// Hop is a directed device-to-device traversal step of a route.
type Hop struct {
	Src string
	Dst string
}

func (h Hop) String() string {
	return h.Src + "->" + h.Dst
}
