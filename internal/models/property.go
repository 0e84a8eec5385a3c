package models

import "time"

type Property struct {
	ID            int64       `json:"id" yaml:"id"`
	HostID        int64       `json:"host_id" yaml:"host_id"`
	Name          string      `json:"name" yaml:"name"`
	PricePerNight int64       `json:"price_per_night" yaml:"price_per_night"`
	MaxGuests     int         `json:"max_guests" yaml:"max_guests"`
	NumberOfUnits int         `json:"number_of_units" yaml:"number_of_units"`
	Availability  []DateRange `json:"availability" yaml:"-"`
	CreatedAt     time.Time   `json:"created_at" yaml:"-"`
	UpdatedAt     time.Time   `json:"updated_at" yaml:"-"`
	Version       int64       `json:"version" yaml:"-"`
}

// Units returns the capacity, treating an unset value as a single unit.
func (p *Property) Units() int {
	if p.NumberOfUnits <= 0 {
		return 1
	}
	return p.NumberOfUnits
}

// Clone copies the property including its availability slice.
func (p *Property) Clone() *Property {
	if p == nil {
		return nil
	}
	c := *p
	c.Availability = append([]DateRange(nil), p.Availability...)
	return &c
}
