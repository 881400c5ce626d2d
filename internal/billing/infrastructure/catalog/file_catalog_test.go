package catalog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billing "hostel-billing/internal/billing/domain"
	"hostel-billing/internal/billing/infrastructure/catalog"
)

const doc = `
default:
  - service_id: internet
    name: Internet
    charging_method: flat
    unit: flat
  - service_id: electricity
    name: Electricity
    charging_method: metered
    unit: kwh
hostels:
  hostel-2:
    - service_id: cleaning
      name: Cleaning
      charging_method: per_person
      unit: person
`

func TestCatalogFallsBackToDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	c, err := catalog.LoadFile(path)
	require.NoError(t, err)

	services, err := c.GetServicesForHostel(context.Background(), "hostel-1")
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, "electricity", services[0].ServiceID)
	assert.Equal(t, billing.ChargingPerUnit, services[0].ChargingMethod)

	own, err := c.GetServicesForHostel(context.Background(), "hostel-2")
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, billing.ChargingPerPerson, own[0].ChargingMethod)
}

func TestCatalogRejectsBadEntries(t *testing.T) {
	_, err := catalog.Parse([]byte("default:\n  - service_id: gas\n    charging_method: hourly\n"))
	assert.True(t, errors.Is(err, billing.ErrUnknownChargingMethod))

	_, err = catalog.Parse([]byte("default:\n  - service_id: gas\n    charging_method: flat\n  - service_id: gas\n    charging_method: flat\n"))
	assert.Error(t, err)
}
