// Package templates holds documents shipped with the binary.
package templates

import _ "embed"

// ResumeFilename is the download name of the resume template.
const ResumeFilename = "resume-template.md"

//go:embed resume.md
var resume []byte

// Resume returns the markdown resume template.
func Resume() []byte {
	return resume
}
