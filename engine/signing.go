package engine

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// ValueSigner produces short-lived, tamper-evident strings carrying a value of type T.
// Used for things like check-in codes that are handed to people outside the system.
type ValueSigner[T any] struct {
	key []byte
}

// NewValueSigner uses a random key, so signed values do not survive a restart.
func NewValueSigner[T any]() *ValueSigner[T] {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(err)
	}
	return &ValueSigner[T]{key: key}
}

func NewValueSignerWithKey[T any](key []byte) *ValueSigner[T] {
	return &ValueSigner[T]{key: key}
}

func (v *ValueSigner[T]) Sign(val T, ttl time.Duration) string {
	js, err := json.Marshal(&signedValue[T]{Value: val, Exp: time.Now().Add(ttl).Unix()})
	if err != nil {
		panic(err)
	}
	payload := base64.RawURLEncoding.EncodeToString(js)
	h := hmac.New(sha256.New, v.key)
	io.WriteString(h, payload)
	return fmt.Sprintf("%s.%s", payload, base64.RawURLEncoding.EncodeToString(h.Sum(nil)))
}

func (v *ValueSigner[T]) Verify(str string) (val T, valid bool) {
	parts := strings.Split(str, ".")
	if len(parts) != 2 {
		return
	}

	sig, _ := base64.RawURLEncoding.DecodeString(parts[1])
	h := hmac.New(sha256.New, v.key)
	io.WriteString(h, parts[0])
	if !hmac.Equal(sig, h.Sum(nil)) {
		return
	}

	js, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return
	}
	sv := &signedValue[T]{}
	if err := json.Unmarshal(js, sv); err != nil {
		return
	}
	if time.Now().Unix() > sv.Exp {
		return
	}
	return sv.Value, true
}

type signedValue[T any] struct {
	Value T     `json:"v"`
	Exp   int64 `json:"e"`
}
