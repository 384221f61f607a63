package campus

import "testing"

func TestValidStudentEmail(t *testing.T) {
	for email, want := range map[string]bool{
		"12345678@dut4life.ac.za":  true,
		"1234567@dut4life.ac.za":   false,
		"123456789@dut4life.ac.za": false,
		"abcdefgh@dut4life.ac.za":  false,
		"12345678@dut.ac.za":       false,
		"12345678@dut4life.ac.zax": false,
	} {
		if got := ValidStudentEmail(email); got != want {
			t.Fatalf("ValidStudentEmail(%q) = %v, want %v", email, got, want)
		}
	}
}

func TestValidLecturerEmail(t *testing.T) {
	for email, want := range map[string]bool{
		"john.doe@dut.ac.za":      true,
		"j_doe+x@dut.ac.za":       true,
		"12345678@dut4life.ac.za": false,
		"john@dut.ac.za.evil":     false,
		"@dut.ac.za":              false,
	} {
		if got := ValidLecturerEmail(email); got != want {
			t.Fatalf("ValidLecturerEmail(%q) = %v, want %v", email, got, want)
		}
	}
}

func TestValidMark(t *testing.T) {
	for mark, want := range map[float64]bool{0: true, 100: true, 55.5: true, -0.1: false, 100.01: false, 105: false} {
		if got := ValidMark(mark); got != want {
			t.Fatalf("ValidMark(%v) = %v, want %v", mark, got, want)
		}
	}
}
