//go:build !opencl

package compute

import "errors"

// OpenCLEnabled reports whether the binary was built with the opencl tag.
const OpenCLEnabled = false

func openCLPlatforms() ([]Platform, error) {
	return nil, errors.New("support is not enabled; rebuild with -tags opencl")
}
