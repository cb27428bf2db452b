package cache

import (
	"fmt"
	"strings"
	"time"
)

// Remote TTL classes. Catalogs change rarely; aggregates should follow recent ETL runs.
const (
	CatalogTTL   = 24 * time.Hour
	AggregateTTL = 10 * time.Minute
)

// StatesKey is the key of the state catalog.
func StatesKey() string {
	return "states:list"
}

// DistrictsKey is the key of a state's district catalog.
func DistrictsKey(state string) string {
	return "districts:" + keyPart(state)
}

// DashboardKey is the key of one dashboard aggregate.
func DashboardKey(state, district string, months int) string {
	return fmt.Sprintf("dashboard:%s:%s:%d", keyPart(state), keyPart(district), months)
}

func keyPart(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
