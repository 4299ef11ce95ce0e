package funnel

import (
	"strings"
	"time"
)

// StepDescriptor pairs a wizard step with the predicate gating advancement
// past it. The wizard is this ordered list, not a hard-coded step count:
// inserting or removing a step is a data change.
type StepDescriptor struct {
	Name     string
	Validate func(data OnboardingData, today time.Time) bool
}

var steps = []StepDescriptor{
	{
		Name: "identity",
		Validate: func(d OnboardingData, today time.Time) bool {
			return strings.TrimSpace(d.FirstName) != "" && IsBirthDateInRange(d.BirthDate, today)
		},
	},
	{
		Name: "birth-time",
		Validate: func(d OnboardingData, _ time.Time) bool {
			return d.TimeUnknown || strings.TrimSpace(d.BirthTime) != ""
		},
	},
	{
		Name: "birth-city",
		Validate: func(d OnboardingData, _ time.Time) bool {
			return strings.TrimSpace(d.BirthCity) != ""
		},
	},
	{
		Name: "life-area",
		Validate: func(d OnboardingData, _ time.Time) bool {
			return strings.TrimSpace(d.LifeArea) != ""
		},
	},
	{
		Name: "gender",
		Validate: func(d OnboardingData, _ time.Time) bool {
			return d.Gender == GenderMale || d.Gender == GenderFemale
		},
	},
	{
		Name: "prior-reading",
		Validate: func(d OnboardingData, _ time.Time) bool {
			return strings.TrimSpace(d.HasHadReading) != ""
		},
	},
	{
		Name: "email",
		Validate: func(d OnboardingData, _ time.Time) bool {
			return strings.TrimSpace(d.Email) != "" && strings.Contains(d.Email, "@")
		},
	},
}

// Steps returns the ordered wizard descriptors.
func Steps() []StepDescriptor {
	return steps
}

// StepCount is the number of wizard steps; the final step's submission is a
// terminal transition out of the wizard rather than an advance past it.
func StepCount() int {
	return len(steps)
}

// CanAdvance reports whether the given 1-based step's collected fields permit
// forward navigation. It never fails loudly: out-of-range steps and invalid
// data both just return false.
func CanAdvance(step int, data OnboardingData, today time.Time) bool {
	if step < 1 || step > len(steps) {
		return false
	}
	return steps[step-1].Validate(data, today)
}
