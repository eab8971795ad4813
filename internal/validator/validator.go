package validator

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// examIDPattern matches exam ids such as "math-2023". Ids become part of
// store keys, so nothing else is accepted.
var examIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

var (
	// trans is the singleton English translator for validation errors.
	trans ut.Translator

	setupOnce sync.Once
	engine    *govalidator.Validate
)

// Setup registers the validator with English translations on Gin's binding engine.
// Safe to call more than once.
func Setup() {
	setupOnce.Do(setup)
}

func setup() {
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		engine = v
		// Use JSON tag name for field names in error messages.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		// Register English translations.
		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		trans, _ = uni.GetTranslator("en")
		en_translations.RegisterDefaultTranslations(v, trans)

		// Login forms often carry stray spaces around the address; the
		// service trims before lookup.
		_ = v.RegisterValidation("trimmed_email", func(fl govalidator.FieldLevel) bool {
			return v.Var(strings.TrimSpace(fl.Field().String()), "email") == nil
		})
		_ = v.RegisterTranslation("trimmed_email", trans,
			func(u ut.Translator) error {
				return u.Add("trimmed_email", "{0} must be a valid email address", true)
			},
			func(u ut.Translator, fe govalidator.FieldError) string {
				t, _ := u.T("trimmed_email", fe.Field())
				return t
			},
		)

		_ = v.RegisterValidation("examid", func(fl govalidator.FieldLevel) bool {
			return examIDPattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterTranslation("examid", trans,
			func(u ut.Translator) error {
				return u.Add("examid", "{0} must be a valid exam id", true)
			},
			func(u ut.Translator, fe govalidator.FieldError) string {
				t, _ := u.T("examid", fe.Field())
				return t
			},
		)
	}
}

// ErrInvalidExamID is returned by ExamID for malformed ids.
var ErrInvalidExamID = errors.New("invalid exam id")

// ExamID validates a path exam id.
func ExamID(id string) error {
	Setup()
	if engine == nil {
		if !examIDPattern.MatchString(id) {
			return ErrInvalidExamID
		}
		return nil
	}
	if err := engine.Var(id, "required,examid"); err != nil {
		return ErrInvalidExamID
	}
	return nil
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name to human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
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
