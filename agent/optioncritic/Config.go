package optioncritic

import (
	"fmt"
)

// Default configuration values
const (
	DefaultEpsStart       float64 = 1.0
	DefaultEpsMin         float64 = 0.1
	DefaultEpsDecay       float64 = 1e6
	DefaultGamma          float64 = 0.99
	DefaultEntropyReg     float64 = 0.01
	DefaultTerminationReg float64 = 0.01
)

// Config implements the configuration of an OptionCritic agent
type Config struct {
	// NumOptions is the number of temporally-extended options the
	// high-level policy selects among
	NumOptions int

	// NumActions is the number of primitive actions available to each
	// option's policy
	NumActions int

	// FeatureSize is the width of state feature vectors. It must
	// equal the output width of the feature extractor.
	FeatureSize int

	// Epsilon schedule for option-level exploration. Epsilon decays
	// exponentially from EpsStart toward EpsMin with time constant
	// EpsDecay, advancing once per option (re)selection.
	EpsStart float64
	EpsMin   float64
	EpsDecay float64

	// Gamma is the reward discount factor
	Gamma float64

	// EntropyReg scales the entropy bonus in the actor loss,
	// discouraging premature policy collapse
	EntropyReg float64

	// TerminationReg is added to the termination advantage, nudging
	// options toward longer durations
	TerminationReg float64

	// Seed seeds all of the agent's random number generation
	Seed uint64
}

// NewConfig returns a Config with the argument architecture and
// default values for all remaining fields
func NewConfig(numOptions, numActions, featureSize int, seed uint64) Config {
	return Config{
		NumOptions:     numOptions,
		NumActions:     numActions,
		FeatureSize:    featureSize,
		EpsStart:       DefaultEpsStart,
		EpsMin:         DefaultEpsMin,
		EpsDecay:       DefaultEpsDecay,
		Gamma:          DefaultGamma,
		EntropyReg:     DefaultEntropyReg,
		TerminationReg: DefaultTerminationReg,
		Seed:           seed,
	}
}

// Validate ensures the configuration describes a legal agent
func (c Config) Validate() error {
	if c.NumOptions < 1 {
		return fmt.Errorf("config: must have at least one option "+
			"\n\thave(%v)", c.NumOptions)
	}
	if c.NumActions < 1 {
		return fmt.Errorf("config: must have at least one action "+
			"\n\thave(%v)", c.NumActions)
	}
	if c.FeatureSize < 1 {
		return fmt.Errorf("config: feature size must be positive "+
			"\n\thave(%v)", c.FeatureSize)
	}
	if c.EpsMin > c.EpsStart {
		return fmt.Errorf("config: minimum epsilon cannot exceed starting "+
			"epsilon \n\twant(<= %v)\n\thave(%v)", c.EpsStart, c.EpsMin)
	}
	if c.EpsDecay <= 0 {
		return fmt.Errorf("config: epsilon decay time constant must be "+
			"positive \n\thave(%v)", c.EpsDecay)
	}
	if c.Gamma <= 0 || c.Gamma > 1 {
		return fmt.Errorf("config: discount must be in (0, 1] \n\thave(%v)",
			c.Gamma)
	}
	if c.EntropyReg < 0 {
		return fmt.Errorf("config: entropy regularization cannot be "+
			"negative \n\thave(%v)", c.EntropyReg)
	}
	if c.TerminationReg < 0 {
		return fmt.Errorf("config: termination regularization cannot be "+
			"negative \n\thave(%v)", c.TerminationReg)
	}
	return nil
}
