package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/ja"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	ja_translations "github.com/go-playground/validator/v10/translations/ja"
)

// trans is the singleton Japanese translator for validation errors.
var trans ut.Translator

// Setup registers the validator with Japanese translations on Gin's binding
// engine, plus the "blank" tag for blank labels. Call once during startup.
func Setup() {
	v, ok := binding.Validator.Engine().(*govalidator.Validate)
	if !ok {
		return
	}

	// Use JSON tag name for field names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	jaLocale := ja.New()
	uni := ut.New(jaLocale, jaLocale)
	trans, _ = uni.GetTranslator("ja")
	_ = ja_translations.RegisterDefaultTranslations(v, trans)

	_ = v.RegisterValidation("blank", validateBlank)
	_ = v.RegisterTranslation("blank", trans,
		func(ut ut.Translator) error {
			return ut.Add("blank", "{0}は空欄のラベル(a〜z)で指定してください", true)
		},
		func(ut ut.Translator, fe govalidator.FieldError) string {
			t, _ := ut.T("blank", fe.Field())
			return t
		},
	)
}

// IsBlankLabel reports whether s names a blank: one lowercase ASCII letter.
func IsBlankLabel(s string) bool {
	return len(s) == 1 && s[0] >= 'a' && s[0] <= 'z'
}

func validateBlank(fl govalidator.FieldLevel) bool {
	return IsBlankLabel(fl.Field().String())
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name → human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) && trans != nil {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(trans)
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}
