package models

// Connectivity classifies the last reachability probe.
type Connectivity string

const (
	ConnectivityFast    Connectivity = "FAST"
	ConnectivitySlow    Connectivity = "SLOW"
	ConnectivityOffline Connectivity = "OFFLINE"
)

// Reachable reports whether a remote attempt is worth making.
func (c Connectivity) Reachable() bool {
	return c == ConnectivityFast || c == ConnectivitySlow
}
