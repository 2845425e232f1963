package secret

import "testing"

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("482913")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "482913" {
		t.Fatal("expected hash to differ from the code")
	}
	if !Verify("482913", hash) {
		t.Fatal("expected code to verify")
	}
	if Verify("482914", hash) {
		t.Fatal("did not expect a different code to verify")
	}
	if Verify("482913", "not-a-hash") {
		t.Fatal("did not expect a malformed hash to verify")
	}
}
