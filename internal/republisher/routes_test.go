package republisher

import (
	"reflect"
	"testing"
)

func TestCandidateNames(t *testing.T) {
	t.Parallel()

	got := candidateNames("General Chat", "Acme Corp")
	want := []string{
		"general-chat [acme-corp]",
		"general-chat-acme-corp",
		"general-chat_acme-corp",
		"acme-corp-general-chat",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("candidateNames() = %v, want %v", got, want)
	}
}
