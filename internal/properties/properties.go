package properties

import (
	"os"
	"path/filepath"
)

func RootPath() string {
	if root := os.Getenv("ROOT_PATH"); root != "" {
		return root
	}
	return "."
}

// DataPath joins elements under $ROOT_PATH/data.
func DataPath(elem ...string) string {
	return filepath.Join(append([]string{RootPath(), "data"}, elem...)...)
}

func ImagesPath(elem ...string) string {
	return DataPath(append([]string{"images"}, elem...)...)
}

func ResultPath(elem ...string) string {
	return DataPath(append([]string{"result"}, elem...)...)
}

func CachePath(elem ...string) string {
	return DataPath(append([]string{"cache"}, elem...)...)
}

type Color struct {
	R, G, B uint8
}

// FieldOutline is the colour fields are drawn with on previews.
var FieldOutline = Color{255, 0, 0}

// NoData paints pixels without any valid observation.
var NoData = Color{40, 40, 40}
