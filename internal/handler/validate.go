package handler

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"faceattend/internal/campus"
)

var registerOnce sync.Once

// RegisterValidators adds the institutional email tags to gin's validator.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(fieldName)
		_ = v.RegisterValidation("student_email", func(fl validator.FieldLevel) bool {
			return campus.ValidStudentEmail(fl.Field().String())
		})
		_ = v.RegisterValidation("lecturer_email", func(fl validator.FieldLevel) bool {
			return campus.ValidLecturerEmail(fl.Field().String())
		})
	})
}

// fieldName reports fields by their wire name.
func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

// bindingMessage turns validator errors into something a form can show.
func bindingMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "student_email":
		return "Invalid student email format. Must be 8 digits followed by @dut4life.ac.za (e.g., 12345678@dut4life.ac.za)"
	case "lecturer_email":
		return "Invalid lecturer email format. Must end with @dut.ac.za (e.g., john.doe@dut.ac.za)"
	case "eqfield":
		return "Passwords do not match"
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	}
	return fe.Field() + " is invalid"
}
