package billing

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ChargingMethod selects how a service line is priced.
type ChargingMethod string

const (
	ChargingFlat      ChargingMethod = "flat"
	ChargingPerUnit   ChargingMethod = "per_unit"
	ChargingPerPerson ChargingMethod = "per_person"
)

// ParseChargingMethod accepts the canonical names and a few legacy spellings.
func ParseChargingMethod(value string) (ChargingMethod, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "flat", "fixed":
		return ChargingFlat, nil
	case "per_unit", "perunit", "metered":
		return ChargingPerUnit, nil
	case "per_person", "perperson":
		return ChargingPerPerson, nil
	default:
		return "", errors.Wrapf(ErrUnknownChargingMethod, "%q", value)
	}
}

func (m ChargingMethod) Valid() bool {
	switch m {
	case ChargingFlat, ChargingPerUnit, ChargingPerPerson:
		return true
	default:
		return false
	}
}

// Unit is the billing unit of a service price.
type Unit string

const (
	UnitKWh    Unit = "kwh"
	UnitM3     Unit = "m3"
	UnitFlat   Unit = "flat"
	UnitPerson Unit = "person"
)

func (u Unit) Valid() bool {
	switch u {
	case UnitKWh, UnitM3, UnitFlat, UnitPerson:
		return true
	default:
		return false
	}
}

// HostelService is a service offered by a hostel's catalog.
type HostelService struct {
	ServiceID      string         `json:"service_id" yaml:"service_id"`
	Name           string         `json:"name" yaml:"name"`
	ChargingMethod ChargingMethod `json:"charging_method" yaml:"charging_method"`
	Unit           Unit           `json:"unit" yaml:"unit"`
}

// Validate checks the catalog entry.
func (s HostelService) Validate() error {
	if s.ServiceID == "" {
		return errors.Wrap(ErrEmptyID, "service id required")
	}
	if !s.ChargingMethod.Valid() {
		return errors.Wrapf(ErrUnknownChargingMethod, "service %s: %q", s.ServiceID, s.ChargingMethod)
	}
	return nil
}
