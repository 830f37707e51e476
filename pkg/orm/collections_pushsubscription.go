package orm

import (
	"crypto/rand"
	"strings"

	"github.com/jmapstore/core/pkg/jmaperr"
	"github.com/jmapstore/core/pkg/types"
)

// Grounded on original_source/components/jmap/src/push_subscription/set.rs:
// the expires clamp, the 512-byte https:// URL rule, and the generated
// verification code are carried over unchanged; crypto/rand replaces the
// Rust rand crate since nothing in the retrieval pack wires an alternative
// random source and this is a security-relevant token.
const (
	pushExpiresMax          = 7 * 24 * 3600 // seconds
	pushMaxSubscriptions    = 100
	pushVerificationCodeLen = 32
)

const verificationCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func generateVerificationCode() (string, error) {
	buf := make([]byte, pushVerificationCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", jmaperr.Wrap(jmaperr.KindInternalError, err)
	}
	out := make([]byte, pushVerificationCodeLen)
	for i, b := range buf {
		out[i] = verificationCodeAlphabet[int(b)%len(verificationCodeAlphabet)]
	}
	return string(out), nil
}

// PushSubscriptionSchema implements Schema for types.CollectionPushSubscription.
type PushSubscriptionSchema struct{}

func (PushSubscriptionSchema) Collection() types.Collection {
	return types.CollectionPushSubscription
}

func (PushSubscriptionSchema) DefaultProperties() map[uint8]types.Value {
	return map[uint8]types.Value{}
}

func (PushSubscriptionSchema) Normalize(env ValidationEnv, isInsert bool, diff *Diff) error {
	if isInsert {
		code, err := generateVerificationCode()
		if err != nil {
			return err
		}
		diff.Set(PSVerificationCode, types.Value{Kind: types.KindText, Text: code})
	}

	now := env.Now()
	const micro = int64(1_000_000)
	maxMicros := int64(pushExpiresMax) * micro

	if isInsert || diff.WasSet(PSExpires) {
		expires := now + maxMicros
		if diff.WasSet(PSExpires) {
			expires = diff.Get(PSExpires).DateTime
		}
		if expires > now && expires-now > maxMicros {
			expires = now + maxMicros
		}
		diff.Set(PSExpires, types.Value{Kind: types.KindDateTime, DateTime: expires})
	}
	return nil
}

func (PushSubscriptionSchema) Validate(env ValidationEnv, id types.DocumentID, doc map[uint8]types.Value) error {
	url, ok := doc[PSURL]
	if !ok || url.Kind != types.KindText {
		return jmaperr.InvalidProperty("url", "url is required")
	}
	if !strings.HasPrefix(url.Text, "https://") {
		return jmaperr.InvalidProperty("url", "url must use https://")
	}
	if len(url.Text) >= 512 {
		return jmaperr.InvalidProperty("url", "url must be shorter than 512 bytes")
	}

	if clientID, ok := doc[PSDeviceClientID]; ok && clientID.Kind != types.KindText {
		return jmaperr.InvalidProperty("deviceClientId", "must be a string")
	}
	if keys, ok := doc[PSKeys]; ok && keys.Kind != types.KindKeys {
		return jmaperr.InvalidProperty("keys", "must be a Keys object")
	}
	if types_, ok := doc[PSTypes]; ok && types_.Kind != types.KindTextList {
		return jmaperr.InvalidProperty("types", "must be a list of type names")
	}

	count, err := env.CountLive(types.CollectionPushSubscription)
	if err != nil {
		return err
	}
	if count > pushMaxSubscriptions {
		return jmaperr.New(jmaperr.KindForbidden, "there are too many subscriptions, please delete some before adding a new one")
	}
	return nil
}

func (PushSubscriptionSchema) IndexAs(doc map[uint8]types.Value) []UpdateField {
	var fields []UpdateField
	for _, prop := range []uint8{PSDeviceClientID, PSURL, PSKeys, PSExpires, PSTypes, PSVerificationCode} {
		v, ok := doc[prop]
		if !ok {
			continue
		}
		fields = append(fields, valueToStoredField(prop, v))
	}
	return fields
}

// valueToStoredField converts a resolved property value into the stored,
// non-indexed UpdateField the write pipeline needs to persist it. Most
// PushSubscription/VacationResponse properties are opaque payload with no
// bitmap or sort requirement, so OptStore is the only option they set.
func valueToStoredField(property uint8, v types.Value) UpdateField {
	switch v.Kind {
	case types.KindDateTime:
		return UpdateField{Property: property, Op: OpLongInteger, Options: OptStore, Integer: v.DateTime}
	case types.KindNumber:
		return UpdateField{Property: property, Op: OpFloat, Options: OptStore, Float: v.Number}
	case types.KindBool:
		n := int64(0)
		if v.Bool {
			n = 1
		}
		return UpdateField{Property: property, Op: OpInteger, Options: OptStore, Integer: n}
	default:
		return UpdateField{Property: property, Op: OpBinary, Options: OptStore, Binary: encodeStoredValue(v)}
	}
}
