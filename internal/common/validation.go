package common

import (
	"fmt"
	"slices"
)

// ValidateOutputFormat checks format against the configured formats and the
// formats a renderer exists for. An empty configured list allows every
// available format.
func ValidateOutputFormat(format string, configured, available []string) error {
	if !slices.Contains(available, format) {
		return fmt.Errorf("unsupported output format '%s'. Supported formats: %v",
			format, GetSupportedFormats(configured, available))
	}
	if len(configured) > 0 && !slices.Contains(configured, format) {
		return fmt.Errorf("unsupported output format '%s'. Supported formats: %v",
			format, GetSupportedFormats(configured, available))
	}
	return nil
}

// GetSupportedFormats returns the available formats allowed by configuration
func GetSupportedFormats(configured, available []string) []string {
	if len(configured) == 0 {
		return available
	}
	var formats []string
	for _, f := range configured {
		if slices.Contains(available, f) {
			formats = append(formats, f)
		}
	}
	return formats
}
