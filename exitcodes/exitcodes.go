// Package exitcodes defines the standard exit codes used by ptf-runner.
package exitcodes

// Exit code constants used by ptf-runner
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): The run completed and the tests passed
// * Failure (1): Generic failure: tests failed or a background service died
// * RuntimeErr (2): Configuration or infrastructure errors
// * Timeout (124): The test run exceeded its time bound
// * NotFound (127): A collaborator executable could not be found
// * SignalBase (128): A terminating signal N exits with 128+N
const (
	Success    = 0
	Failure    = 1
	RuntimeErr = 2
	Timeout    = 124
	NotFound   = 127
	SignalBase = 128
)
