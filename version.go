package formbridge

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var version string

// Version is the formbridge release, read from the VERSION file.
var Version = strings.TrimSpace(version)
