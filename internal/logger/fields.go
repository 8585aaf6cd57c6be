// Public domain.

package logger

// Standard field names for structured logging across chronostar.
// Use these constants instead of raw strings to keep log lines greppable.
const (
	// Model search
	FieldNComps    = "ncomps"
	FieldLabel     = "label"
	FieldIteration = "iteration"
	FieldComponent = "component"
	FieldState     = "state"

	// Likelihoods and scores
	FieldLnLike = "lnlike"
	FieldLnPost = "lnpost"
	FieldBIC    = "bic"
	FieldDelta  = "delta"

	// Sampler
	FieldSteps      = "steps"
	FieldWalkers    = "walkers"
	FieldTau        = "tau"
	FieldAcceptance = "acceptance"
	FieldConverged  = "converged"

	// Data
	FieldStars         = "stars"
	FieldStar          = "star"
	FieldInstabilities = "instabilities"
	FieldMembers       = "members"
	FieldUniformRows   = "uniform_rows"
	FieldFile          = "file"

	// Timing
	FieldDurationMS = "duration_ms"
)
