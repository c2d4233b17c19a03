package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/tunefetch/tunefetch/internal/domain"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("track_field", validateTrackField)
}

// ValidateEnqueue checks a batch enqueue request beyond its struct tags:
// artist and title must carry printable content and priorities must map onto
// a known lane tier.
func ValidateEnqueue(req *domain.BatchEnqueueRequest) error {
	if err := validate.Struct(req); err != nil {
		return err
	}

	for i, track := range req.Tracks {
		if err := validate.Var(track.Artist, "track_field"); err != nil {
			return fmt.Errorf("track %d: invalid artist %q", i, track.Artist)
		}
		if err := validate.Var(track.Title, "track_field"); err != nil {
			return fmt.Errorf("track %d: invalid title %q", i, track.Title)
		}
		if !validPriority(track.Priority) {
			return fmt.Errorf("track %d: unsupported priority %d", i, track.Priority)
		}
	}
	return nil
}

func validPriority(p int) bool {
	return p >= domain.PriorityExpress
}

func validateTrackField(fl validator.FieldLevel) bool {
	s := strings.TrimSpace(fl.Field().String())
	if s == "" {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
