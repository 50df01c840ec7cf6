// Mktoken prints a bearer token for the Marquee API.
// Run it next to the server's api.pem.
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/marquee-cinema/marquee/engine"
)

func main() {
	keyFile := flag.String("key", "api.pem", "path to the server's token signing key")
	subject := flag.String("sub", "operator", "token subject")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	tokens := engine.NewTokenIssuer(*keyFile)
	now := time.Now()
	tok, err := tokens.Sign(&jwt.RegisteredClaims{
		Subject:   *subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
	})
	if err != nil {
		panic(err)
	}

	fmt.Println(tok)
}
