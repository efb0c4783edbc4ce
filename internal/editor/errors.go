package editor

import "fmt"

// UserInputError is a required field left empty
type UserInputError struct {
	Label string
}

func (e *UserInputError) Error() string {
	return fmt.Sprintf("%s cannot be empty", e.Label)
}
