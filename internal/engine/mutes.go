package engine

import (
	"strings"

	"homepulse/internal/config"
)

// MuteSet holds devices under maintenance. Their samples are skipped before
// any evaluation so a serviced unit cannot pollute its own baseline or fire
// alerts while it is being worked on.
type MuteSet struct {
	devices map[string]struct{}
}

func buildMutes(cfg *config.Config) *MuteSet {
	m := &MuteSet{}
	if len(cfg.Maintenance.Devices) == 0 {
		return m
	}
	m.devices = make(map[string]struct{}, len(cfg.Maintenance.Devices))
	for _, d := range cfg.Maintenance.Devices {
		id := normalizeDeviceID(d)
		if id == "" {
			continue
		}
		m.devices[id] = struct{}{}
	}
	return m
}

func (m *MuteSet) IsMuted(deviceID string) bool {
	if m == nil || m.devices == nil {
		return false
	}
	_, ok := m.devices[normalizeDeviceID(deviceID)]
	return ok
}

func normalizeDeviceID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
