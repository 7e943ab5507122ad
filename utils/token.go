package utils

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// JwtCustomClaim identifies the requester and the business every request is scoped to.
type JwtCustomClaim struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	BusinessId string `json:"business_id"`
	jwt.StandardClaims
}

var ErrorJwtSecretMissing = errors.New("API_SECRET is not set")

// JwtSecretConfigured reports whether tokens can be signed and checked.
// Without API_SECRET every token is rejected.
func JwtSecretConfigured() bool {
	return os.Getenv("API_SECRET") != ""
}

func getJwtSecret() ([]byte, error) {
	secret := os.Getenv("API_SECRET")
	if secret == "" {
		return nil, ErrorJwtSecretMissing
	}
	return []byte(secret), nil
}

func JwtGenerate(userID int, name string, businessId string) (string, error) {
	secret, err := getJwtSecret()
	if err != nil {
		return "", err
	}
	tokenLifespan, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil || tokenLifespan <= 0 {
		tokenLifespan = 24
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &JwtCustomClaim{
		ID:         userID,
		Name:       name,
		BusinessId: businessId,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(time.Hour * time.Duration(tokenLifespan)).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	})
	return t.SignedString(secret)
}

func JwtValidate(token string) (*jwt.Token, error) {
	return jwt.ParseWithClaims(token, &JwtCustomClaim{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return getJwtSecret()
	})
}
