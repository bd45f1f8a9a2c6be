package commands

// ArgsParseError reports invalid command line arguments or configuration.
// It is raised before the loop is created.
type ArgsParseError struct {
	Err error
}

func (e *ArgsParseError) Error() string { return "invalid arguments: " + e.Err.Error() }
func (e *ArgsParseError) Unwrap() error { return e.Err }

// StartupError reports a conductor that could not be set up.
type StartupError struct {
	Err error
}

func (e *StartupError) Error() string { return "startup failed: " + e.Err.Error() }
func (e *StartupError) Unwrap() error { return e.Err }
