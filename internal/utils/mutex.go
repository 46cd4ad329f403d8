package utils

import "sync"

var gdalMu sync.Mutex

// WithGDAL serialises access to GDAL datasets, which are not safe for
// concurrent use.
func WithGDAL(fn func()) {
	gdalMu.Lock()
	defer gdalMu.Unlock()
	fn()
}
