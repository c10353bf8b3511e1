package sdt

import (
	"github.com/zsiec/siflow/flow"
)

// Running status values (EN 300 468 table 6).
const (
	RunningUndefined  = 0
	RunningNotRunning = 1
	RunningStartsSoon = 2
	RunningPausing    = 3
	RunningRunning    = 4
	RunningOffAir     = 5
)

// Service is the typed view of a per-service flow definition.
type Service struct {
	ID          uint16   `json:"service_id"`
	Name        string   `json:"name,omitempty"`
	Provider    string   `json:"provider,omitempty"`
	Type        uint8    `json:"service_type"`
	Running     uint8    `json:"running_status"`
	Scrambled   bool     `json:"scrambled"`
	EIT         bool     `json:"eit_present_following"`
	EITSchedule bool     `json:"eit_schedule"`
	Descriptors [][]byte `json:"descriptors,omitempty"`
}

// ServiceFromFlowDef extracts the service attributes of def. Missing
// attributes keep their zero value.
func ServiceFromFlowDef(def *flow.Def) Service {
	var s Service
	if id, err := def.ID(); err == nil {
		s.ID = uint16(id)
	}
	s.Name, _ = def.Name()
	s.Provider, _ = def.ProviderName()
	s.Type, _ = def.ServiceType()
	s.Running, _ = def.RunningStatus()
	s.Scrambled = def.Scrambled()
	s.EIT = def.EIT()
	s.EITSchedule = def.EITSchedule()
	s.Descriptors = def.SDTDescriptors()
	return s
}

// RunningStatusString names a running_status value.
func RunningStatusString(v uint8) string {
	switch v {
	case RunningUndefined:
		return "undefined"
	case RunningNotRunning:
		return "not running"
	case RunningStartsSoon:
		return "starts in a few seconds"
	case RunningPausing:
		return "pausing"
	case RunningRunning:
		return "running"
	case RunningOffAir:
		return "service off-air"
	default:
		return "reserved"
	}
}
