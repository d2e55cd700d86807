package discord

import "testing"

func TestCloseCodeClassification(t *testing.T) {
	tests := []struct {
		code       CloseCode
		wantFatal  bool
		wantResume bool
	}{
		{CloseUnknownError, false, true},
		{CloseUnknownOpcode, false, true},
		{CloseDecodeError, false, true},
		{CloseNotAuthenticated, false, true},
		{CloseAuthenticationFailed, true, false},
		{CloseAlreadyAuthenticated, false, true},
		{CloseInvalidSequence, false, false},
		{CloseRateLimited, false, true},
		{CloseSessionTimedOut, false, false},
		{CloseInvalidShard, true, false},
		{CloseShardingRequired, true, false},
		{CloseInvalidAPIVersion, true, false},
		{CloseInvalidIntents, true, false},
		{CloseDisallowedIntents, true, false},
		// Unknown codes must stay retryable and resumable.
		{CloseCode(4999), false, true},
		{CloseCode(1000), false, true},
	}
	for _, tt := range tests {
		if got := tt.code.IsFatal(); got != tt.wantFatal {
			t.Errorf("code %d: IsFatal() = %v, want %v", tt.code, got, tt.wantFatal)
		}
		if got := tt.code.CanResume(); got != tt.wantResume {
			t.Errorf("code %d: CanResume() = %v, want %v", tt.code, got, tt.wantResume)
		}
	}
}

func TestCloseErrorMessage(t *testing.T) {
	err := &CloseError{Code: CloseAuthenticationFailed, Reason: "Authentication failed."}
	want := `gateway closed connection: code 4004: Authentication failed.`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	bare := &CloseError{Code: CloseUnknownError}
	want = `gateway closed connection: code 4000`
	if got := bare.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
