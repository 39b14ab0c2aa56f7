package attendance

import (
	"math"
	"reflect"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/hazira/core"
)

var (
	accuracyTag  = "accuracy"
	accuracyText = "{0} must be a finite number of meters, zero or more"
)

// InitValidators registers the attendance validators on `validate`.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(accuracyTag, accuracyValidation)
	core.RegisterCustomTranslation(validate, translator, accuracyTag, accuracyText)
}

func accuracyValidation(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.Float64 && field.Kind() != reflect.Float32 {
		return false
	}
	v := field.Float()
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
