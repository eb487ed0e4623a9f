package processing

type StoppedError struct{}

func NewStoppedError() *StoppedError {
	return &StoppedError{}
}

func (err *StoppedError) Error() string {
	return "processing core has stopped"
}
