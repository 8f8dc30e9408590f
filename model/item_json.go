package model

import (
	"encoding/json"
	"time"
)

// Cooldowns travel as whole milliseconds. Unset cooldowns encode as -1.

func durationMillis(d time.Duration) int64 {
	if d == UnsetCooldown {
		return -1
	}
	return d.Milliseconds()
}

func millisDuration(ms int64) time.Duration {
	if ms < 0 {
		return UnsetCooldown
	}
	return time.Duration(ms) * time.Millisecond
}

// MarshalJSON implements json.Marshaler.
func (p ActionProperties) MarshalJSON() ([]byte, error) {
	type alias ActionProperties
	return json.Marshal(struct {
		alias
		Cooldown int64 `json:"cooldown_ms"`
	}{alias(p), durationMillis(p.Cooldown)})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *ActionProperties) UnmarshalJSON(data []byte) error {
	type alias ActionProperties
	aux := struct {
		*alias
		Cooldown int64 `json:"cooldown_ms"`
	}{alias: (*alias)(p), Cooldown: -1}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.Cooldown = millisDuration(aux.Cooldown)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d ItemDefinition) MarshalJSON() ([]byte, error) {
	type alias ItemDefinition
	return json.Marshal(struct {
		alias
		Cooldown int64 `json:"cooldown_ms"`
	}{alias(d), durationMillis(d.Cooldown)})
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *ItemDefinition) UnmarshalJSON(data []byte) error {
	type alias ItemDefinition
	aux := struct {
		*alias
		Cooldown int64 `json:"cooldown_ms"`
	}{alias: (*alias)(d), Cooldown: -1}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d.Cooldown = millisDuration(aux.Cooldown)
	return nil
}
