package utils

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
)

type sampleInput struct {
	Name  string `binding:"required,max=5"`
	Count int    `binding:"gt=0"`
}

func TestValidateInput(t *testing.T) {
	if err := ValidateInput(&sampleInput{Name: "abc", Count: 1}); err != nil {
		t.Fatalf("valid input: %v", err)
	}
	err := ValidateInput(&sampleInput{Name: "toolong", Count: 0})
	if !errors.Is(err, ErrorValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	// fields are reported in sorted order
	if !strings.HasSuffix(err.Error(), "sampleInput.Count:gt, sampleInput.Name:max") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]string{"b", "a", "b", "c", "a"})
	want := []string{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestJwtRoundTrip(t *testing.T) {
	t.Setenv("API_SECRET", "test-secret")
	token, err := JwtGenerate(42, "Aye", "biz-1")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	parsed, err := JwtValidate(token)
	if err != nil || !parsed.Valid {
		t.Fatalf("JwtValidate: %v", err)
	}
	claim := parsed.Claims.(*JwtCustomClaim)
	if claim.ID != 42 || claim.BusinessId != "biz-1" || claim.Name != "Aye" {
		t.Fatalf("claim = %+v", claim)
	}

	t.Setenv("API_SECRET", "other-secret")
	if parsed, err := JwtValidate(token); err == nil && parsed.Valid {
		t.Fatal("token signed with another secret validated")
	}
}

func TestJwtRejectedWithoutSecret(t *testing.T) {
	t.Setenv("API_SECRET", "")
	if _, err := JwtGenerate(1, "Seed", "biz-1"); !errors.Is(err, ErrorJwtSecretMissing) {
		t.Fatalf("JwtGenerate err = %v, want %v", err, ErrorJwtSecretMissing)
	}

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &JwtCustomClaim{
		ID:             1,
		BusinessId:     "someone-elses-business",
		StandardClaims: jwt.StandardClaims{ExpiresAt: time.Now().Add(time.Hour).Unix()},
	}).SignedString([]byte("Inventory-Secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if parsed, err := JwtValidate(forged); err == nil && parsed.Valid {
		t.Fatal("token validated without API_SECRET")
	}
	if JwtSecretConfigured() {
		t.Fatal("JwtSecretConfigured with empty API_SECRET")
	}
}
