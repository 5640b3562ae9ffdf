package logging

import (
	"strconv"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/promptzip/internal/config"
)

type secretLength int

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (n secretLength) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddBool("set", n > 0)
	enc.AddInt("length", int(n))
	return nil
}

// Secret logs whether a credential is configured and its length, never
// its value.
func Secret(key string, val config.Secret) zap.Field {
	return zap.Object(key, secretLength(len(val.Value())))
}

// Preview logs at most n runes of a prompt followed by its total length,
// e.g. "Summarize the follo…(1532 bytes)".
func Preview(key, text string, n int) zap.Field {
	if utf8.RuneCountInString(text) <= n {
		return zap.String(key, text)
	}
	runes := []rune(text)
	return zap.String(key, string(runes[:n])+"…("+strconv.Itoa(len(text))+" bytes)")
}
