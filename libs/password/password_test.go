package password

import (
	"errors"
	"strings"
	"testing"
)

func testParams() Params {
	return Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func TestHashVerify(t *testing.T) {
	hash, err := Hash("s3cret", testParams())
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding: %s", hash)
	}

	ok, err := Verify("s3cret", hash)
	if err != nil || !ok {
		t.Fatalf("expected password to verify, ok=%v err=%v", ok, err)
	}

	ok, err = Verify("wrong", hash)
	if err != nil {
		t.Fatalf("verify error: %v", err)
	}
	if ok {
		t.Fatalf("expected password to fail")
	}
}

func TestHashUsesFreshSalt(t *testing.T) {
	a, _ := Hash("same", testParams())
	b, _ := Hash("same", testParams())
	if a == b {
		t.Fatalf("expected different hashes for the same password")
	}
}

func TestVerifyMalformed(t *testing.T) {
	for _, encoded := range []string{"", "plain", "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$a2V5", "$argon2id$v=19$m=x$c2FsdA$a2V5"} {
		if _, err := Verify("pw", encoded); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("expected ErrMalformedHash for %q, got %v", encoded, err)
		}
	}
}
