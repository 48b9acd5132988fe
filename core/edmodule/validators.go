package edmodule

import (
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/course"
)

var (
	statusTag  = "edmodulestatus"
	statusText = "invalid status"

	modeTag  = "edmode"
	modeText = "invalid enrollment mode"

	maxLinesTag  = "maxlines"
	maxLinesText = "too many lines"
)

func init() {
	core.RegisterOneOf(statusTag, statusText, Statuses...)
	core.RegisterOneOf(modeTag, modeText, course.Modes...)

	_ = core.Validate.RegisterValidation(maxLinesTag, maxLinesValidation)
	core.RegisterCustomTranslation(core.Validate, core.Translator, maxLinesTag, maxLinesText)
}

// maxLinesValidation caps the number of non-blank lines of a string field.
func maxLinesValidation(fl validator.FieldLevel) bool {
	max, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(core.SplitLines(fl.Field().String())) <= max
}
