// Package keys builds the cache keys used by the read repositories.
//
// The builders never validate their input: an empty segment simply produces an
// empty field, so "::catalog" is a valid key for an empty catalog HRN.
package keys

import "strconv"

const sep = "::"

// Version returns a pointer to v, for the builders that take an optional version.
func Version(v int64) *int64 { return &v }

// API returns the key under which a resolved service endpoint is stored.
func API(hrn, service, version string) string {
	return hrn + sep + service + sep + version + sep + "api"
}

// Catalog returns the key for catalog metadata.
func Catalog(hrn string) string { return hrn + sep + "catalog" }

// LatestVersion returns the key for the latest known catalog version.
func LatestVersion(hrn string) string { return hrn + sep + "latestVersion" }

// Partition returns the key for the metadata of a single partition.
func Partition(hrn, layer, partition string, version *int64) string {
	return hrn + sep + layer + sep + partition + sep + versioned(version) + "partition"
}

// Partitions returns the key for the list of partition ids of a layer.
func Partitions(hrn, layer string, version *int64) string {
	return hrn + sep + layer + sep + versioned(version) + "partitions"
}

// LayerVersions returns the key for the layer versions of a catalog version.
func LayerVersions(hrn string, version int64) string {
	return hrn + sep + strconv.FormatInt(version, 10) + sep + "layerVersions"
}

// QuadTree returns the key for a quadtree index rooted at rootTile.
// rootTile must already be encoded (for example as a HERE tile string).
func QuadTree(hrn, layer, rootTile string, version *int64, depth int32) string {
	return hrn + sep + layer + sep + rootTile + sep + versioned(version) +
		strconv.FormatInt(int64(depth), 10) + sep + "quadtree"
}

// DataHandle returns the key for the blob addressed by a data handle.
func DataHandle(hrn, layer, handle string) string {
	return hrn + sep + layer + sep + handle + sep + "Data"
}

// LayerPrefix returns the prefix shared by every key of a layer, except the
// catalog-wide ones (API, Catalog, LatestVersion, LayerVersions).
func LayerPrefix(hrn, layer string) string { return hrn + sep + layer + sep }

func versioned(version *int64) string {
	if version == nil {
		return ""
	}
	return strconv.FormatInt(*version, 10) + sep
}
