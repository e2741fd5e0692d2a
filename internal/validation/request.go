package validation

import "github.com/go-playground/validator/v10"

var requestValidate = validator.New()

// FieldError describes one failed rule on a request body field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// CheckRequest runs the struct tag rules of a bound request body and
// returns one FieldError per violation, or nil when the body is clean.
func CheckRequest(obj any) []FieldError {
	err := requestValidate.Struct(obj)
	if err == nil {
		return nil
	}

	var fieldErrors []FieldError
	for _, fe := range err.(validator.ValidationErrors) {
		fieldErrors = append(fieldErrors, FieldError{
			Field:   fe.Field(),
			Message: errorMsg(fe),
			Type:    fe.Tag(),
		})
	}
	return fieldErrors
}

func errorMsg(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		return "Value is too short"
	case "max":
		return "Value is too long"
	case "gt":
		return "Value must be greater than " + err.Param()
	case "gte":
		return "Value must be greater than or equal to " + err.Param()
	default:
		return "Invalid value"
	}
}
