// Package constants provides named constants used throughout the celldyn codebase.
// This centralizes the model's rates and thresholds so the engine, the
// prediction module and their tests agree on a single calibration.
package constants

// Canonical culture optimum and accepted physical ranges.
const (
	// OptimalTemperature is the canonical incubation temperature in °C.
	OptimalTemperature = 37.0

	// OptimalPH is the canonical medium pH.
	OptimalPH = 7.4

	MinTemperature = 20.0
	MaxTemperature = 45.0
	MinPH          = 6.0
	MaxPH          = 8.5
)

// Environmental stress factor parameters.
// stress = 1 - TemperaturePenalty*|T-37|/37 - PHPenalty*|pH-7.4|/7.4, floored.
const (
	TemperaturePenalty = 3.0
	PHPenalty          = 5.0

	// MinStressFactor is the residual progression rate; cells never fully stall.
	MinStressFactor = 0.1
)

// Microenvironment pool parameters. Uptake rates are per hour for a vessel
// filled to capacity; per-cell uptake is the rate divided by capacity.
const (
	InitialGlucose = 1.0
	InitialOxygen  = 1.0
	InitialLactate = 0.0

	// A full vessel draws glucose faster than perfusion replaces it, so a
	// confluent culture exhausts its medium after about two days while a
	// half-full one settles just above the low-resource threshold.
	GlucoseUptake = 0.0225
	OxygenUptake  = 0.03

	// LactateYield is lactate produced per unit of glucose consumed.
	LactateYield = 0.8

	// LactateClearance is the first-order lactate decay rate per hour.
	LactateClearance = 0.005

	// PerfusionRate relaxes glucose and lactate toward baseline (media exchange).
	PerfusionRate = 0.015

	// OxygenationRate relaxes oxygen toward saturation.
	OxygenationRate = 0.2

	// LowResourceThreshold marks starvation when glucose or oxygen falls below it.
	LowResourceThreshold = 0.2

	// LactateToxicThreshold is the lactate level above which acidosis damages cells.
	LactateToxicThreshold = 0.6
)

// Cell agent parameters. Rates are per hour.
const (
	InitialHealth = 1.0
	InitialATP    = 0.8

	// ChildATP is the baseline ATP of a newly divided cell.
	ChildATP = 0.5

	// ATPYield is the hourly ATP credit at full supply. Below a supply of
	// about 0.73 the average cell burns more than it gains.
	ATPYield        = 0.3
	ATPMaintenance  = 0.22
	DivisionATPCost = 0.15

	// MetabolicVariability spreads each cell's maintenance cost uniformly over
	// ATPMaintenance*(1±MetabolicVariability), so a starving culture loses its
	// most demanding cells first.
	MetabolicVariability = 0.15

	// LowATPThreshold is where ATP depletion starts to cost health.
	LowATPThreshold   = 0.2
	ATPDepletionDecay = 0.05

	EnvStressDecay = 0.004
	LactateDecay   = 0.03

	// StarvationPenalty multiplies the whole health-decay rate while starving.
	StarvationPenalty = 3.0

	// HealthRecovery applies only when nothing is damaging the cell.
	HealthRecovery = 0.01

	// DrugDamageFraction converts drug hazard into health decay.
	DrugDamageFraction = 0.5

	// Below ApoptosisHealthThreshold the apoptosis rate ramps up to BasalApoptosisRate.
	ApoptosisHealthThreshold = 0.3
	BasalApoptosisRate       = 0.05
)

// Treatment and prediction policy.
const (
	// DefaultHillCoefficient is used when a drug entry leaves hill unset.
	DefaultHillCoefficient = 1.5

	// DefaultToxicMultiple sets the toxicity bound to a multiple of IC50
	// when a drug entry leaves toxic_threshold unset.
	DefaultToxicMultiple = 20.0

	// TargetViability is the surviving fraction the optimal dose aims for.
	TargetViability = 0.5

	// Therapeutic index thresholds for the dose recommendation.
	WideWindowIndex     = 10.0
	ModerateWindowIndex = 3.0
	NarrowWindowIndex   = 1.0
)

// Engine and service defaults.
const (
	DefaultSeed = 42

	// DefaultParallelThreshold is the population above which per-cell updates
	// are split across workers.
	DefaultParallelThreshold = 2048

	DefaultMaxSteps       = 100000
	DefaultMaxCultureSize = 1000000

	// StepEpsilon absorbs float error when dividing duration by interval.
	StepEpsilon = 1e-9
)

// Request defaults used by the CLI and MCP tools when a field is omitted.
const (
	DefaultInitialCells = 500
	DefaultDuration     = 72.0 // hours
	DefaultTimeInterval = 1.0  // hours
	DefaultCultureSize  = 1000
)
