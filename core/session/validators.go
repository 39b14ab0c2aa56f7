package session

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/hazira/core"
)

var (
	sessionTokenTag  = "sessiontoken"
	sessionTokenText = "{0} is not a valid session token"

	errEndsBeforeStart = "ends_at must be after starts_at"
)

// InitValidators registers the session validators on `validate`.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(sessionTokenTag, sessionTokenValidation)
	core.RegisterCustomTranslation(validate, translator, sessionTokenTag, sessionTokenText)
}

func sessionTokenValidation(fl validator.FieldLevel) bool {
	return ValidToken(fl.Field().String())
}
