package sentinel

var _ error = Error("")

// Error is a constant-declarable error. Two Error values match under
// errors.Is when their messages are equal.
type Error string

func (e Error) Error() string {
	return string(e)
}
