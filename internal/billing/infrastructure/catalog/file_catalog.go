package catalog

import (
	"context"
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	billing "hostel-billing/internal/billing/domain"
)

type catalogFile struct {
	Default []serviceEntry            `yaml:"default"`
	Hostels map[string][]serviceEntry `yaml:"hostels"`
}

type serviceEntry struct {
	ServiceID      string `yaml:"service_id"`
	Name           string `yaml:"name"`
	ChargingMethod string `yaml:"charging_method"`
	Unit           string `yaml:"unit"`
}

// FileCatalog serves hostel service catalogs from a YAML document.
// Hostels without their own list get the default list.
type FileCatalog struct {
	defaults []billing.HostelService
	hostels  map[string][]billing.HostelService
}

// LoadFile reads a catalog file.
func LoadFile(path string) (*FileCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "catalog: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a catalog document.
func Parse(data []byte) (*FileCatalog, error) {
	var doc catalogFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "catalog: decode yaml")
	}
	defaults, err := convert("default", doc.Default)
	if err != nil {
		return nil, err
	}
	out := &FileCatalog{defaults: defaults, hostels: make(map[string][]billing.HostelService, len(doc.Hostels))}
	for hostelID, entries := range doc.Hostels {
		services, err := convert(hostelID, entries)
		if err != nil {
			return nil, err
		}
		out.hostels[hostelID] = services
	}
	return out, nil
}

func convert(owner string, entries []serviceEntry) ([]billing.HostelService, error) {
	seen := make(map[string]struct{}, len(entries))
	services := make([]billing.HostelService, 0, len(entries))
	for _, e := range entries {
		method, err := billing.ParseChargingMethod(e.ChargingMethod)
		if err != nil {
			return nil, errors.Wrapf(err, "catalog %s: service %s", owner, e.ServiceID)
		}
		svc := billing.HostelService{
			ServiceID:      e.ServiceID,
			Name:           e.Name,
			ChargingMethod: method,
			Unit:           billing.Unit(e.Unit),
		}
		if err := svc.Validate(); err != nil {
			return nil, errors.Wrapf(err, "catalog %s", owner)
		}
		if _, dup := seen[svc.ServiceID]; dup {
			return nil, errors.Newf("catalog %s: duplicate service %s", owner, svc.ServiceID)
		}
		seen[svc.ServiceID] = struct{}{}
		services = append(services, svc)
	}
	sort.Slice(services, func(i, j int) bool { return services[i].ServiceID < services[j].ServiceID })
	return services, nil
}

// GetServicesForHostel returns the catalog of hostelID.
func (c *FileCatalog) GetServicesForHostel(_ context.Context, hostelID string) ([]billing.HostelService, error) {
	services, ok := c.hostels[hostelID]
	if !ok {
		services = c.defaults
	}
	return append([]billing.HostelService(nil), services...), nil
}
