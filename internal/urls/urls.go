package urls

// Documentation URLs for guides and troubleshooting
// All URLs point to the documentation site at https://maniacx.github.io/Battery-Health-Charging/

const base = "https://maniacx.github.io/Battery-Health-Charging/"

// DeviceCompatibilityBase lists supported laptops and the extra packages
// each vendor needs.
const DeviceCompatibilityBase = base + "device-compatibility"

// PolkitReadme explains installing and updating the privileged helper and
// what to do when the installation check times out.
const PolkitReadme = base + "polkitbug"

// DeviceCompatibility returns the compatibility page for a vendor. suffix
// is "" or "/<vendor>" as returned by registry.DocSuffix.
func DeviceCompatibility(suffix string) string {
	return DeviceCompatibilityBase + suffix
}
