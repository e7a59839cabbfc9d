package fileactivity

import (
	"path/filepath"
	"strings"

	"github.com/projecteru2/rf4watch/types"
)

var extCategories = map[string]types.Category{
	".log":      types.CategoryLog,
	".txt":      types.CategoryLog,
	".png":      types.CategoryScreenshot,
	".jpg":      types.CategoryScreenshot,
	".jpeg":     types.CategoryScreenshot,
	".bmp":      types.CategoryScreenshot,
	".yaml":     types.CategoryConfig,
	".yml":      types.CategoryConfig,
	".json":     types.CategoryConfig,
	".ini":      types.CategoryConfig,
	".cfg":      types.CategoryConfig,
	".session":  types.CategorySession,
	".data":     types.CategorySession,
	".save":     types.CategorySession,
	".template": types.CategoryTemplate,
	".tmpl":     types.CategoryTemplate,
}

// directory name hints, checked in order
var dirHints = []struct {
	substr   string
	category types.Category
}{
	{"log", types.CategoryLog},
	{"screenshot", types.CategoryScreenshot},
	{"config", types.CategoryConfig},
	{"session", types.CategorySession},
	{"template", types.CategoryTemplate},
}

// Classify returns the category of path by extension, falling back to hints
// in the parent directory name and then the root name.
func Classify(path, rootName string) types.Category {
	if c, ok := extCategories[strings.ToLower(filepath.Ext(path))]; ok {
		return c
	}
	for _, name := range []string{filepath.Base(filepath.Dir(path)), rootName} {
		lower := strings.ToLower(name)
		for _, h := range dirHints {
			if strings.Contains(lower, h.substr) {
				return h.category
			}
		}
	}
	return types.CategoryOther
}
