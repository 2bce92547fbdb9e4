package voice

import "strings"

// Transcript accumulates the transcript fragments of the current turn
type Transcript struct {
	input  strings.Builder
	output strings.Builder
}

// AppendInput adds a user fragment and returns the input so far
func (t *Transcript) AppendInput(fragment string) string {
	t.input.WriteString(fragment)
	return t.input.String()
}

// AppendOutput adds an assistant fragment and returns the output so far
func (t *Transcript) AppendOutput(fragment string) string {
	t.output.WriteString(fragment)
	return t.output.String()
}

// Flush returns both buffers and empties them
func (t *Transcript) Flush() (input, output string) {
	input, output = t.input.String(), t.output.String()
	t.Reset()
	return input, output
}

// Reset empties both buffers
func (t *Transcript) Reset() {
	t.input.Reset()
	t.output.Reset()
}

// Len returns the buffered byte counts
func (t *Transcript) Len() (input, output int) {
	return t.input.Len(), t.output.Len()
}
