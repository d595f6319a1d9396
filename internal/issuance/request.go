package issuance

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// emailPattern is the RFC 2822 style expression the pass service has always used.
// It is matched against the lower-cased address.
var emailPattern = regexp.MustCompile(`^(([^<>()\[\]\\.,;:\s@"]+(\.[^<>()\[\]\\.,;:\s@"]+)*)|(".+"))@((\[[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}])|(([a-zA-Z\-0-9]+\.)+[a-zA-Z]{2,}))$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("passemail", func(fl validator.FieldLevel) bool {
		return IsValidEmail(fl.Field().String())
	})
	return v
}

// IsValidEmail reports whether email is accepted as a recipient address.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(strings.ToLower(email))
}

// PassRequest is a pass submission.
//
// Values are normalised while decoding: JSON null, "", 0, false and absent keys become "" so
// they fail the required check. Non-zero numbers and true are converted to their JSON text.
type PassRequest struct {
	SchoolYear     string `json:"schoolYear" validate:"required" example:"2023-2024"`
	BarcodeData    string `json:"barcodeData" validate:"required" example:"12345"`
	Name           string `json:"name" validate:"required" example:"Jane Doe"`
	Email          string `json:"email" validate:"required,passemail" example:"jane.doe@example.edu"`
	GradeLevel     string `json:"gradeLevel" validate:"required" example:"11"`
	GraduationYear string `json:"graduationYear" validate:"required" example:"2025"`
	Advisory       string `json:"advisory" validate:"required" example:"Smith 204"`
	StudentID      string `json:"studentID" validate:"required" example:"100234"`

	// ImageURL is an http(s) URL or a base64 encoded image
	ImageURL string `json:"imageURL" validate:"required" example:"https://example.edu/photos/100234.png"`

	// imageNotString is set when imageURL was present but not a JSON string
	imageNotString bool
}

// DecodePassRequest reads a JSON submission. An empty body or a body that is not a
// JSON object decodes to an empty request. Malformed JSON is a validation error.
func DecodePassRequest(body io.Reader) (PassRequest, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return PassRequest{}, NewTooLargeError(tooLarge.Limit)
		}
		return PassRequest{}, NewValidationError(MsgInvalidBody)
	}
	obj, _ := raw.(map[string]any)

	req := PassRequest{
		SchoolYear:     displayText(obj["schoolYear"]),
		BarcodeData:    displayText(obj["barcodeData"]),
		Name:           displayText(obj["name"]),
		Email:          displayText(obj["email"]),
		GradeLevel:     displayText(obj["gradeLevel"]),
		GraduationYear: displayText(obj["graduationYear"]),
		Advisory:       displayText(obj["advisory"]),
		StudentID:      displayText(obj["studentID"]),
	}

	switch image := obj["imageURL"].(type) {
	case string:
		req.ImageURL = image
	default:
		if truthy(image) {
			encoded, _ := json.Marshal(image)
			req.ImageURL = string(encoded)
			req.imageNotString = true
		}
	}
	return req, nil
}

// ValidatePassRequest checks, in order: all fields present, email syntax, imageURL is a string.
func ValidatePassRequest(req PassRequest) error {
	if err := validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return NewValidationError(MsgMissingFields)
		}
		for _, fe := range fieldErrs {
			if fe.Tag() == "required" {
				return NewValidationError(MsgMissingFields)
			}
		}
		return NewValidationError(MsgInvalidEmail)
	}

	if req.imageNotString {
		return NewValidationError(MsgInvalidImage)
	}
	return nil
}

// truthy follows the JavaScript notion of truthiness for decoded JSON values
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		return err != nil || f != 0
	default:
		return true
	}
}

// displayText converts a decoded JSON value to the text shown on the pass.
// Objects and arrays have no display form and count as missing.
func displayText(v any) string {
	if !truthy(v) {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return "true"
	default:
		return ""
	}
}
