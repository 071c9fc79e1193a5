package transcribe

import "context"

// MockTranscriber returns a canned transcript. It exists for local
// development and tests where no recognizer is available.
type MockTranscriber struct {
	Text string
}

func NewMockTranscriber() *MockTranscriber {
	return &MockTranscriber{Text: "mock transcript"}
}

func (t *MockTranscriber) Transcribe(_ context.Context, _ string) (Result, error) {
	return checkResult(t.Text)
}

func checkResult(text string) (Result, error) {
	checked, err := checkText(text)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: checked}, nil
}
