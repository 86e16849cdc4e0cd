package pipeline

import "errors"

// ErrDuplicateOutput is returned when two runs of a batch would write the
// same outline file.
var ErrDuplicateOutput = errors.New("runs share an output file")
