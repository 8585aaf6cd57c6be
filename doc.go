/*
Command chronostar finds stellar associations and their ages by kinematic
traceback.

Contents

  Program overview
  Command line usage
  Configuration
  File formats
  Algorithm outline


Program overview

Input is a table of stars with positions and velocities in 6D phase space,
either heliocentric cartesian XYZUVW or Gaia style astrometry.  Output is a
set of fitted components, each the Gaussian birth distribution of an
association together with its age, and for every star the probability of
membership in each component or in the field background.

A component is born as a Gaussian at its age ago and carried to the present
by a model of galactic orbits.  A star belongs to a component in proportion
to the overlap of the star's measurement Gaussian with the component's
current Gaussian.  Expectation-maximization alternates computing those
memberships with refitting each component by sampling its posterior, and
a search over the number of components keeps splitting components while
the Bayesian information criterion improves.

Sample run:

	chronostar synth groups.toml -o stars.csv --truth truth.csv
	chronostar fit -c chronostar.toml --data stars.csv
	chronostar members -c chronostar.toml --data stars.csv
	chronostar score --members results/members.csv --truth truth.csv

fit prints a line for the best fit and a table of its groups:

	best fit 2/A: 2 components, 40 stars, lnL -512.31, BIC 1091.47
	┌───────┬─────────┬──────┬─────────┬─────────┬───────┬─────┬─────┬─────┬─────┬─────┬───────────┐
	│ GROUP │ MEMBERS │ AGE  │ AGE 16% │ AGE 84% │ X     │ Y   │ Z   │ U   │ V   │ W   │ SAMPLER   │
	├───────┼─────────┼──────┼─────────┼─────────┼───────┼─────┼─────┼─────┼─────┼─────┼───────────┤
	│ A     │ 20.0    │ 10.2 │ 8.9     │ 11.6    │ 0.3   │ 0.1 │ 0.2 │ 0.0 │ 0.1 │ 0.0 │ converged │
	│ B     │ 20.0    │ 9.7  │ 8.1     │ 11.0    │ 200.4 │ 2.0 │ 0.1 │ 0.1 │ 2.0 │ 0.0 │ converged │
	└───────┴─────────┴──────┴─────────┴─────────┴───────┴─────┴─────┴─────┴─────┴─────┴───────────┘

X Y Z are pc and U V W km/s, the current mean of each group.  Ages are
Myr, the median and 16th and 84th percentiles of the age posterior.  A
group whose last sampler run stopped at max_steps before its convergence
criteria held is shown as low confidence.


Command line usage

  Usage: chronostar <command> [options]

  Commands:
    fit      fit components and search the number of components by BIC
    members  membership probabilities of a star table for a stored fit
    score    Matthews correlation coefficient of memberships against truth
    synth    write a synthetic star table drawn from known components
    version  display version and copyright

  Options of all commands:
    -c, --config <file>     TOML configuration file
    -v, --verbose           increase log verbosity, may be repeated
        --data <file>       star table, overrides data.file
        --results <dir>     results directory, overrides run.results_dir
        --workers <n>       worker goroutines, overrides run.workers

chronostar <command> -h lists the options of each command.


Configuration

The configuration file is TOML with sections data, model, em, mcmc, fit,
run and log.  Every key has a default and only data.file must be given,
in the file or with --data.  A key that is not recognized is an error.

	[data]
	file = "stars.csv"
	format = "cartesian"              # or "astrometry"
	background_column = "background_log_overlap"
	background_kde_file = ""           # reference table for a KDE field model
	missing_rv_error = 1e4             # km/s, for stars without radial velocity

	[model]
	shape = "sphere"                   # sphere, ellip, axis or free
	propagator = "epicyclic"           # epicyclic, ballistic or static
	max_age = 500                      # Myr

	[em]
	max_iterations = 100
	tolerance = 0.1                    # change in lnL counted as stable
	patience = 3                       # stable iterations to converge
	use_background = true
	member_threshold = 1e-5

	[mcmc]
	method = "ensemble"                # or "nelder-mead"
	walkers_per_param = 2
	min_steps = 200
	max_steps = 5000

	[fit]
	max_components = 20
	bic_margin = 0
	init_file = ""                     # stored result to continue from

	[run]
	results_dir = "results"
	repeatable = true                  # seed from run.seed, else from the clock
	seed = 3

	[log]
	level = "info"
	json_file = true                   # also log JSON to results_dir/chronostar.log

The remaining keys and their defaults are listed in package config.


File formats

Cartesian star tables are CSV with a header line.  Required columns are
X Y Z U V W and X_error through W_error.  Optional columns are the
correlations X_Y_corr through V_W_corr, source_id or name, epoch in Myr
and the background column, the log density of the field at the star.

Astrometric tables have columns ra dec parallax pmra pmdec radial_velocity
with the _error columns of each and the Gaia correlation columns.  A star
without radial velocity is given velocity 0 with error missing_rv_error,
so its overlaps are determined by the other five dimensions.

The results directory holds a result.gob for each fit of the search, at
<k>/<label>/result.gob, final.gob for the best fit, summary.yaml and
metrics.txt.  A search run again over the same directory loads the stored
fits instead of repeating them.

members writes CSV with columns source_id, a column per component A, B, ...,
background and group, the column of the star's highest membership.  Truth tables read by score and written by synth have
columns source_id and label, the group index of each star or -1 for the
field.


Algorithm outline

1.  Overlaps.  The log overlap of a star with a component is the log of the
integral of the product of the two Gaussians, the log density at the star
mean of a Gaussian with the summed covariance.

2.  Memberships.  Log overlaps are weighted by component amplitude,
completed with the background column and normalized per star in log space.
With use_background set and no KDE reference, every star must have a
background column value.

3.  Maximization.  Each component is refitted to its members by an affine
invariant ensemble sampler, run until the chain is many autocorrelation
times long or the step budget ends.  The representative parameters are the
maximum posterior sample or the posterior mean.

4.  Convergence.  The EM loop ends when the total log likelihood changes by
less than the tolerance for patience iterations, or at the iteration cap,
in which case the result is flagged non-converged.

5.  Search.  Starting from one component, each component in turn is split
in two with ages at its 16th and 84th age percentiles and refitted.  The
best split is kept when it lowers the BIC, otherwise the search ends.

-------------
Public domain.
*/
package main
