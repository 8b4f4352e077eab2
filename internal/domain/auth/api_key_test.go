package auth

import "testing"

func TestHashKey_Deterministic(t *testing.T) {
	t.Parallel()
	if HashKey("secret") != HashKey("secret") {
		t.Fatal("HashKey must be deterministic")
	}
	if HashKey("secret") == HashKey("other") {
		t.Fatal("HashKey must differ for different inputs")
	}
}

func TestVerifyKey_SHA256(t *testing.T) {
	t.Parallel()
	hash := HashKey("my-token")
	match, err := VerifyKey("my-token", hash)
	if err != nil {
		t.Fatalf("VerifyKey: %v", err)
	}
	if !match {
		t.Error("expected match for correct token")
	}

	match, err = VerifyKey("wrong-token", hash)
	if err != nil {
		t.Fatalf("VerifyKey: %v", err)
	}
	if match {
		t.Error("expected no match for wrong token")
	}
}

func TestVerifyKey_SHA256Prefixed(t *testing.T) {
	t.Parallel()
	hash := "sha256:" + HashKey("my-token")
	match, err := VerifyKey("my-token", hash)
	if err != nil {
		t.Fatalf("VerifyKey: %v", err)
	}
	if !match {
		t.Error("expected match for sha256: prefixed hash")
	}
}

func TestVerifyKey_Argon2id(t *testing.T) {
	t.Parallel()
	hash, err := HashKeyArgon2id("my-token")
	if err != nil {
		t.Fatalf("HashKeyArgon2id: %v", err)
	}
	match, err := VerifyKey("my-token", hash)
	if err != nil {
		t.Fatalf("VerifyKey: %v", err)
	}
	if !match {
		t.Error("expected match for correct argon2id token")
	}

	match, err = VerifyKey("wrong-token", hash)
	if err != nil {
		t.Fatalf("VerifyKey: %v", err)
	}
	if match {
		t.Error("expected no match for wrong token")
	}
}

func TestVerifyKey_UnknownHashType(t *testing.T) {
	t.Parallel()
	_, err := VerifyKey("token", "not-a-recognized-hash")
	if err != ErrUnknownHashType {
		t.Errorf("err = %v, want ErrUnknownHashType", err)
	}
}

func TestDetectHashType(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"$argon2id$v=19$m=47104,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2g":                "argon2id",
		"sha256:" + HashKey("x"):                                               "sha256",
		HashKey("x"):                                                           "sha256",
		"too-short":                                                            "unknown",
	}
	for hash, want := range cases {
		if got := DetectHashType(hash); got != want {
			t.Errorf("DetectHashType(%q) = %q, want %q", hash, got, want)
		}
	}
}
