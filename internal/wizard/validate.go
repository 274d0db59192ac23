package wizard

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"fasttrack/pkg/types"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report form keys, the same keys the templates use for inline errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var identityLabels = map[string]string{
	"first_name":     "First name",
	"last_name":      "Last name",
	"student_number": "Student ID",
	"email":          "Email",
	"phone":          "Phone number",
}

func validateIdentity(identity types.Identity) types.FieldErrors {
	fields := types.FieldErrors{}

	err := validate.Struct(identity.Trimmed())
	if err == nil {
		return fields
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fields["identity"] = err.Error()
		return fields
	}

	for _, fe := range verrs {
		key := fe.Field()
		if _, seen := fields[key]; seen {
			continue
		}
		fields[key] = identityMessage(key, fe.Tag())
	}
	return fields
}

func identityMessage(key, tag string) string {
	switch {
	case key == "relationship":
		return "Please select your relationship to the university."
	case tag == "email":
		return "Invalid email address."
	}

	if label, ok := identityLabels[key]; ok {
		return label + " is required."
	}
	return "This field is required."
}

func PurposeKey(docID int) string {
	return fmt.Sprintf("purpose_%d", docID)
}

func validateDocuments(selections []types.DocumentSelection) types.FieldErrors {
	fields := types.FieldErrors{}
	if len(selections) == 0 {
		fields["documents"] = "Select at least one document."
		return fields
	}

	for _, s := range selections {
		if !s.HasPurpose() {
			fields[PurposeKey(s.DocTypeID)] = fmt.Sprintf("Select a purpose for %s.", s.Name)
		}
	}
	return fields
}
