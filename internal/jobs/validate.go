package jobs

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// httpURLPattern backs the "httpurl" validator tag: the request column must
// match http(s)://... (§3), which is stricter than validator's built-in
// "url" tag (that accepts any scheme).
var httpURLPattern = regexp.MustCompile(`^https?://\S+$`)

// validatable mirrors the exported Job fields validator needs to see; Job
// itself carries an unexported field validator would otherwise have to
// skip silently, so routing through this shadow struct keeps tag failures
// unambiguous about which field tripped.
type validatable struct {
	JobID            string `validate:"required"`
	RequestID        string `validate:"required"`
	Username         string `validate:"required"`
	Request          string `validate:"required,httpurl"`
	Progress         int    `validate:"min=0,max=100"`
	BatchesCompleted int    `validate:"min=0"`
	NumInputGranules int    `validate:"min=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("httpurl", func(fl validator.FieldLevel) bool {
		return httpURLPattern.MatchString(fl.Field().String())
	})
	return v
}

var fieldDescriptions = map[string]string{
	"JobID":            "job id is required",
	"RequestID":        "request id is required",
	"Username":         "username is required",
	"Request":          "request must be an http(s) URL",
	"Progress":         "progress must be between 0 and 100",
	"BatchesCompleted": "batchesCompleted must not be negative",
	"NumInputGranules": "numInputGranules must not be negative",
}

// Validate runs the structural checks from §3/§7 and returns every problem
// found, or an empty ValidationError when the Job is well-formed.
func (j *Job) Validate() ValidationError {
	shadow := validatable{
		JobID:            j.JobID,
		RequestID:        j.RequestID,
		Username:         j.Username,
		Request:          j.Request,
		Progress:         j.Progress,
		BatchesCompleted: j.BatchesCompleted,
		NumInputGranules: j.NumInputGranules,
	}

	err := validate.Struct(shadow)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return ValidationError{err.Error()}
	}

	problems := make(ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		if desc, ok := fieldDescriptions[fe.Field()]; ok {
			problems = append(problems, desc)
			continue
		}
		problems = append(problems, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
	}
	return problems
}
