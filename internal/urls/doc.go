// Package urls provides centralized constants for all documentation URLs used
// throughout the application.
//
// All documentation URLs are defined here so they can be updated in a single
// location before release.
//
// Usage:
//
//	import "github.com/muurk/battctl/internal/urls"
//
//	fmt.Printf("See %s\n", urls.DeviceCompatibility("/dell"))
package urls
