package cache

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// CachingArg is the call argument that toggles caching. It never takes part
// in key derivation.
const CachingArg = "caching"

// ErrKeyDerivation reports call arguments that cannot be serialized
// deterministically.
var ErrKeyDerivation = errors.New("cache: cannot derive key")

// Key identifies a cache entry. Derived keys are 64 lowercase hex characters.
type Key string

// Args holds the arguments of a wrapped call by name.
type Args map[string]any

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

func validateKey(key Key) error {
	if !keyPattern.MatchString(string(key)) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, string(key))
	}
	return nil
}

// Deriver turns an operation identity and its arguments into a Key.
type Deriver struct{}

// NewDeriver creates a Deriver.
func NewDeriver() *Deriver {
	return &Deriver{}
}

// Derive returns the key for operation called with args. The CachingArg entry
// is ignored, and argument order never affects the result.
func (d *Deriver) Derive(operation string, args Args) (Key, error) {
	if operation == "" {
		return "", fmt.Errorf("%w: empty operation identity", ErrKeyDerivation)
	}

	filtered := make(map[string]any, len(args))
	for name, v := range args {
		if name == CachingArg {
			continue
		}
		filtered[strconv.Quote(name)] = quoteStrings(v)
	}

	// encoding/json emits map keys in sorted order, nested maps included.
	payload, err := json.Marshal(filtered)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrKeyDerivation, err)
	}

	material := make([]byte, 0, len(operation)+1+len(payload))
	material = append(material, operation...)
	material = append(material, 0)
	material = append(material, payload...)

	sum := blake2b.Sum256(material)
	return Key(hex.EncodeToString(sum[:])), nil
}

// quoteStrings replaces every string in v with its Go-quoted form.
// encoding/json turns invalid UTF-8 into U+FFFD, which would map different
// byte strings to one key. Quoted strings are valid UTF-8 and stay distinct.
func quoteStrings(v any) any {
	switch v := v.(type) {
	case string:
		return strconv.Quote(v)
	case []string:
		out := make([]string, len(v))
		for i, s := range v {
			out[i] = strconv.Quote(s)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = quoteStrings(e)
		}
		return out
	case Args:
		return quoteStrings(map[string]any(v))
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[strconv.Quote(k)] = quoteStrings(e)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, e := range v {
			out[strconv.Quote(k)] = strconv.Quote(e)
		}
		return out
	default:
		return v
	}
}
