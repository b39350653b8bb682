package rules

import (
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	apperrors "tw-screener/internal/errors"
)

var validate = validator.New()

// Parameters configures one evaluation. The zero value is not useful; start
// from DefaultParameters.
type Parameters struct {
	Strategy Strategy `default:"chip" validate:"required"`

	// BiasRange bounds |close - MA200| / MA200 in percent. Ignored by the
	// pullback and false-breakdown strategies.
	BiasRange float64 `default:"5.0" validate:"gt=0,lte=100"`

	VolumeSurgeRequired   bool // volume above the prior day
	RSIRisingRequired     bool // RSI above the prior day
	TrendHighRequired     bool // recent closing high above MA200 * 1.05
	BullishCandleRequired bool // see patterns.IsBullishCandle

	// ChipThresholdPct is the minimum institutional net buy as a percentage of volume.
	ChipThresholdPct float64 `default:"10.0" validate:"gte=0,lte=100"`

	// MinVolumeLots is the volume floor in lots of 1000 shares.
	MinVolumeLots int64 `default:"1000" validate:"gte=0"`
}

// DefaultParameters returns the parameters used when nothing is configured.
func DefaultParameters() Parameters {
	var p Parameters
	_ = defaults.Set(&p)
	return p
}

// Validate checks ranges and the strategy name.
func (p Parameters) Validate() error {
	if !p.Strategy.Valid() {
		return fmt.Errorf("strategy %q: %w", p.Strategy, apperrors.ErrUnknownStrategy)
	}
	if err := validate.Struct(p); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(errs))
			for _, fe := range errs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid parameters: %s", strings.Join(fields, ", "))
		}
		return err
	}
	return nil
}
