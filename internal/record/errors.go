package record

import "fmt"

// MissingRecordError is returned when a record file does not exist
type MissingRecordError struct {
	Path string
}

func (e *MissingRecordError) Error() string {
	return fmt.Sprintf("config not found: %s", e.Path)
}
