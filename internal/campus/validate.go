package campus

import (
	"regexp"
	"strings"
)

var (
	studentEmailPattern  = regexp.MustCompile(`^\d{8}@dut4life\.ac\.za$`)
	lecturerEmailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@dut\.ac\.za$`)
)

// ValidStudentEmail reports whether email is an institutional student address
// (eight digits at dut4life.ac.za).
func ValidStudentEmail(email string) bool {
	return studentEmailPattern.MatchString(strings.TrimSpace(email))
}

// ValidLecturerEmail reports whether email is a staff address at dut.ac.za.
func ValidLecturerEmail(email string) bool {
	return lecturerEmailPattern.MatchString(strings.TrimSpace(email))
}

// ValidMark reports whether mark is a final mark within 0..100.
func ValidMark(mark float64) bool {
	return mark >= 0 && mark <= 100
}
