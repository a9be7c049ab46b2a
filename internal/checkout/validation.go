package checkout

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"storefront-checkout/internal/model"
	"storefront-checkout/internal/shipping"
)

// Form is the shopper's checkout form. One address serves as both billing
// and shipping.
type Form struct {
	FirstName     string `json:"first_name" validate:"required"`
	LastName      string `json:"last_name" validate:"required"`
	Email         string `json:"email" validate:"required,shopper_email"`
	Phone         string `json:"phone" validate:"omitempty,phone"`
	Address1      string `json:"address_1" validate:"required"`
	Address2      string `json:"address_2"`
	City          string `json:"city" validate:"required"`
	State         string `json:"state" validate:"required"`
	Postcode      string `json:"postcode" validate:"required,pincode"`
	Country       string `json:"country" validate:"omitempty,len=2"`
	PaymentMethod string `json:"payment_method" validate:"omitempty,oneof=razorpay"`
}

// Defaults applied by Normalize.
const (
	DefaultCountry       = "IN"
	DefaultPaymentMethod = "razorpay"
)

// Normalize trims every field and fills in country and payment method.
func (f *Form) Normalize() {
	for _, p := range []*string{
		&f.FirstName, &f.LastName, &f.Email, &f.Phone, &f.Address1, &f.Address2,
		&f.City, &f.State, &f.Postcode, &f.Country, &f.PaymentMethod,
	} {
		*p = strings.TrimSpace(*p)
	}
	if f.Country == "" {
		f.Country = DefaultCountry
	}
	f.Country = strings.ToUpper(f.Country)
	if f.PaymentMethod == "" {
		f.PaymentMethod = DefaultPaymentMethod
	}
}

// Address returns the form as a model.Address.
func (f *Form) Address() model.Address {
	return model.Address{
		FirstName: f.FirstName,
		LastName:  f.LastName,
		Address1:  f.Address1,
		Address2:  f.Address2,
		City:      f.City,
		State:     f.State,
		Postcode:  f.Postcode,
		Country:   f.Country,
		Email:     f.Email,
		Phone:     f.Phone,
	}
}

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{0,15}$`)
	phoneStrip   = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
)

// ValidPhone reports whether s is a phone number once spaces, dashes and
// parentheses are removed.
func ValidPhone(s string) bool {
	return phonePattern.MatchString(phoneStrip.Replace(s))
}

// fieldMessages are shown next to the offending input.
var fieldMessages = map[string]string{
	"first_name":      "First name is required",
	"last_name":       "Last name is required",
	"email":           "A valid email is required",
	"phone":           "A valid phone number is required",
	"address_1":       "Address is required",
	"city":            "City is required",
	"state":           "State is required",
	"postcode":        "A valid PIN code is required",
	"country":         "Country must be a two-letter code",
	"payment_method":  "Unsupported payment method",
	"shipping_method": "Select a shipping method",
	"cart":            "Your cart is empty",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	must(v.RegisterValidation("shopper_email", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	}))
	must(v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	}))
	must(v.RegisterValidation("pincode", func(fl validator.FieldLevel) bool {
		return shipping.ValidPostcode(fl.Field().String())
	}))
	return v
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Validate checks the form and the shipping selection. It returns nil when
// the submission may proceed.
func Validate(form *Form, quote *model.ShippingQuote) model.FieldErrors {
	errs := model.FieldErrors{}

	if err := validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			errs["form"] = err.Error()
			return errs
		}
		for _, fe := range verrs {
			field := fe.Field()
			if msg, ok := fieldMessages[field]; ok {
				errs[field] = msg
			} else {
				errs[field] = fe.Error()
			}
		}
	}

	if quote == nil || quote.CourierName == "" {
		errs["shipping_method"] = fieldMessages["shipping_method"]
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
