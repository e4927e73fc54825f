// Package templates holds the embedded receipt document resources, one
// per template identifier.
package templates

import (
	"embed"
	"fmt"
)

//go:embed assets/*.html
var assets embed.FS

// Load returns the document text for a schema document name. A missing
// resource fails only the rendering attempt that asked for it.
func Load(name string) (string, error) {
	data, err := assets.ReadFile("assets/" + name)
	if err != nil {
		return "", fmt.Errorf("failed to load document %q: %w", name, err)
	}
	return string(data), nil
}
