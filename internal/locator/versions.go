package locator

import "fmt"

// DefaultVersion is the daemon release downloaded when no executable is
// configured and none is found in the cache.
const DefaultVersion = "4.1.5"

// defaultBaseURL is the upstream release host. Tests point BaseURL at an
// httptest server instead.
const defaultBaseURL = "https://download.electrum.org"

// checksums pins the sha256 of each supported release artifact, keyed by
// version. Entries mirror the SHA256SUM files published alongside the
// releases. A version absent from this map can still be used by supplying
// the checksum explicitly.
var checksums = map[string]string{
	"4.1.5": "4157a4a2a0c50cda55e24a7dc0a63d84c4c04fdd12b022d60bdbad1b1ff8a971",
}

// downloadFilename returns the release artifact name for a version.
// Only linux/amd64 artifacts are published as self-contained images.
func downloadFilename(version string) string {
	return fmt.Sprintf("electrum-%s-x86_64.AppImage", version)
}

// downloadURL returns the full artifact URL for a version under base.
func downloadURL(base, version string) string {
	return fmt.Sprintf("%s/%s/%s", base, version, downloadFilename(version))
}

// ChecksumFor returns the pinned sha256 for a version, or false when the
// version is not in the built-in table.
func ChecksumFor(version string) (string, bool) {
	sum, ok := checksums[version]
	return sum, ok
}
