package consts

const (
	CHARGE    = 1.6021918e-19 // Elementary charge (C)
	BOLTZMANN = 1.3806226e-23 // Boltzmann constant (J/K)
	KELVIN    = 273.15        // Kelvin temperature (K)

	// Numerical safeguards shared by the expression elements. Changing these
	// changes convergence behavior; they are not tuning knobs.
	DerivEpsilon   = 1e-6 // perturbation fallback and derivative clamp
	MinDenominator = 1e-6 // below this a ratio denominator counts as zero
	DivEpsilon     = 1e-9 // substituted for a zero denominator
	MinTolerance   = 1e-9 // floor for output convergence tolerances
)
