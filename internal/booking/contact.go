package booking

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/tourbook/internal/roster"
)

var (
	phonePattern = regexp.MustCompile(`^0\d{9}$`)
	gmailPattern = regexp.MustCompile(`^[^@\s]+@gmail\.com$`)
)

const (
	MsgContactRequired = "required"
	MsgContactPhone    = "must be 10 digits starting with 0"
	MsgContactEmail    = "must be a @gmail.com address"
)

// Contact is the person the backend reaches about the booking.
type Contact struct {
	Name    string `json:"contact_name" validate:"notblank"`
	Email   string `json:"contact_email" validate:"gmail"`
	Phone   string `json:"contact_phone" validate:"phone"`
	Address string `json:"contact_address"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func contactValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			return phonePattern.MatchString(strings.TrimSpace(fl.Field().String()))
		})
		_ = v.RegisterValidation("gmail", func(fl validator.FieldLevel) bool {
			return gmailPattern.MatchString(strings.TrimSpace(fl.Field().String()))
		})
		validate = v
	})
	return validate
}

// Validate returns the per-field errors of the contact. An empty map means
// the contact is valid.
func (c Contact) Validate() roster.FieldErrors {
	errs := roster.FieldErrors{}
	err := contactValidator().Struct(c)
	if err == nil {
		return errs
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs["contact"] = err.Error()
		return errs
	}
	for _, fe := range verrs {
		field := fe.Field()
		switch {
		case strings.TrimSpace(fe.Value().(string)) == "":
			errs[field] = MsgContactRequired
		case fe.Tag() == "phone":
			errs[field] = MsgContactPhone
		case fe.Tag() == "gmail":
			errs[field] = MsgContactEmail
		default:
			errs[field] = MsgContactRequired
		}
	}
	return errs
}

// Normalize trims surrounding whitespace from every field.
func (c Contact) Normalize() Contact {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Address = strings.TrimSpace(c.Address)
	return c
}
