package collector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// loadTestData loads a raw notification fixture from the testdata directory
func loadTestData(t *testing.T, filename string) []byte {
	t.Helper()

	data, err := os.ReadFile(filepath.Join("testdata", filename))
	require.NoError(t, err, "Failed to read test data file: %s", filename)
	require.True(t, gjson.ValidBytes(data), "Invalid JSON in test data file: %s", filename)
	return data
}

// loadNotification loads and parses a notification fixture
func loadNotification(t *testing.T, filename string) Notification {
	t.Helper()

	n, err := ParseNotification(loadTestData(t, filename))
	require.NoError(t, err, "Failed to parse test data file: %s", filename)
	return n
}

// TestDataCatalog provides easy access to common notification fixtures
type TestDataCatalog struct {
	t *testing.T
}

// NewTestDataCatalog creates a new test data catalog
func NewTestDataCatalog(t *testing.T) *TestDataCatalog {
	return &TestDataCatalog{t: t}
}

// IPMI returns a full IPMI notification for node knilab-master-u9
func (c *TestDataCatalog) IPMI() Notification {
	return loadNotification(c.t, "notification-ipmi-1.json")
}

// IPMISecondNode returns a small IPMI notification for node knilab-master-u10 with lower
// case, aliased and unknown categories
func (c *TestDataCatalog) IPMISecondNode() Notification {
	return loadNotification(c.t, "notification-ipmi-2.json")
}

// IPMINoInstance returns the IPMI notification with a null instance_uuid
func (c *TestDataCatalog) IPMINoInstance() Notification {
	return loadNotification(c.t, "notification-ipmi-none-instance_uuid.json")
}

// IPMINoNodeName returns the IPMI notification with a null node_name
func (c *TestDataCatalog) IPMINoNodeName() Notification {
	return loadNotification(c.t, "notification-ipmi-none-node_name.json")
}

// Redfish returns a Redfish notification with one sensor per category
func (c *TestDataCatalog) Redfish() Notification {
	return loadNotification(c.t, "notification-redfish.json")
}

// RedfishNoInstance returns a Redfish notification with a null instance_uuid
func (c *TestDataCatalog) RedfishNoInstance() Notification {
	return loadNotification(c.t, "notification-redfish-none-instance_uuid.json")
}

// IDRAC returns a Redfish notification as sent for iDRAC nodes, with disabled and absent
// sensors
func (c *TestDataCatalog) IDRAC() Notification {
	return loadNotification(c.t, "notification-idrac.json")
}

// Ironic returns an ironic.metrics notification
func (c *TestDataCatalog) Ironic() Notification {
	return loadNotification(c.t, "notification-ironic.json")
}
