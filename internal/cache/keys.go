package cache

import "fmt"

// KeyTraffic addresses the station traffic of one dataset version and filter.
func KeyTraffic(version string, timeFilter int) string {
	return fmt.Sprintf("traffic:%s:%d", version, timeFilter)
}

// KeyTrafficVersion matches every cached filter of a version.
func KeyTrafficVersion(version string) string {
	return fmt.Sprintf("traffic:%s:*", version)
}
