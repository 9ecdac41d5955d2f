package config

import "github.com/fgeck/gameserver-console/internal/models"

// eventRecord is the on-disk shape of a scheduled event.
type eventRecord struct {
	Name    string   `mapstructure:"name" yaml:"name" json:"name"`
	ID      string   `mapstructure:"id" yaml:"id,omitempty" json:"id,omitempty"`
	Type    string   `mapstructure:"type" yaml:"type" json:"type"`
	Cron    string   `mapstructure:"cron" yaml:"cron,omitempty" json:"cron,omitempty"`
	Params  []string `mapstructure:"params" yaml:"params,omitempty" json:"params,omitempty"`
	Enabled *bool    `mapstructure:"enabled" yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// toModel converts the record; a missing enabled flag means enabled.
func (r eventRecord) toModel() models.ScheduledEvent {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return models.ScheduledEvent{
		Name:    r.Name,
		ID:      r.ID,
		Type:    models.TaskType(r.Type),
		Cron:    r.Cron,
		Params:  r.Params,
		Enabled: enabled,
	}
}

// newEventRecord converts e, writing enabled only when it is false.
func newEventRecord(e models.ScheduledEvent) eventRecord {
	r := eventRecord{
		Name:   e.Name,
		ID:     e.ID,
		Type:   string(e.Type),
		Cron:   e.Cron,
		Params: e.Params,
	}
	if !e.Enabled {
		disabled := false
		r.Enabled = &disabled
	}
	return r
}
