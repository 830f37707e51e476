package orm

import (
	"testing"

	"github.com/jmapstore/core/pkg/jmaperr"
	"github.com/jmapstore/core/pkg/types"
)

// fakeEnv is an in-memory ValidationEnv for schema tests.
type fakeEnv struct {
	now       int64
	live      map[types.Collection]map[types.DocumentID]bool
	tagged    map[types.Collection]map[uint8]map[string][]types.DocumentID
	parentOf  map[types.Collection]map[types.DocumentID]types.DocumentID
}

func newFakeEnv(now int64) *fakeEnv {
	return &fakeEnv{
		now:      now,
		live:     map[types.Collection]map[types.DocumentID]bool{},
		tagged:   map[types.Collection]map[uint8]map[string][]types.DocumentID{},
		parentOf: map[types.Collection]map[types.DocumentID]types.DocumentID{},
	}
}

func (e *fakeEnv) addLive(collection types.Collection, id types.DocumentID) {
	if e.live[collection] == nil {
		e.live[collection] = map[types.DocumentID]bool{}
	}
	e.live[collection][id] = true
}

func (e *fakeEnv) setParent(collection types.Collection, id, parent types.DocumentID) {
	if e.parentOf[collection] == nil {
		e.parentOf[collection] = map[types.DocumentID]types.DocumentID{}
	}
	e.parentOf[collection][id] = parent
}

func (e *fakeEnv) tag(collection types.Collection, field uint8, value types.TagValue, id types.DocumentID) {
	if e.tagged[collection] == nil {
		e.tagged[collection] = map[uint8]map[string][]types.DocumentID{}
	}
	if e.tagged[collection][field] == nil {
		e.tagged[collection][field] = map[string][]types.DocumentID{}
	}
	key := string(value.Bytes())
	e.tagged[collection][field][key] = append(e.tagged[collection][field][key], id)
}

func (e *fakeEnv) Exists(collection types.Collection, id types.DocumentID) (bool, error) {
	return e.live[collection][id], nil
}

func (e *fakeEnv) FindByTag(collection types.Collection, field uint8, value types.TagValue) ([]types.DocumentID, error) {
	return e.tagged[collection][field][string(value.Bytes())], nil
}

func (e *fakeEnv) CountLive(collection types.Collection) (int, error) {
	return len(e.live[collection]), nil
}

func (e *fakeEnv) Now() int64 { return e.now }

func (e *fakeEnv) ParentOf(collection types.Collection, id types.DocumentID, field uint8) (types.DocumentID, bool, error) {
	p, ok := e.parentOf[collection][id]
	return p, ok, nil
}

const microsPerDay = int64(24 * 3600 * 1_000_000)

// S4: push subscription url validation and expires clamping.
func TestPushSubscriptionS4(t *testing.T) {
	reg := NewRegistry(PushSubscriptionSchema{})
	env := newFakeEnv(1_000_000_000 * 1_000_000)

	d := TrackChanges(nil)
	d.Set(PSURL, types.Value{Kind: types.KindText, Text: "http://example.com"})
	if _, err := reg.InsertValidate(env, types.CollectionPushSubscription, 1, d); jmaperr.KindOf(err) != jmaperr.KindInvalidProperties {
		t.Fatalf("expected invalidProperties for http:// url, got %v", err)
	}

	d2 := TrackChanges(nil)
	d2.Set(PSURL, types.Value{Kind: types.KindText, Text: "https://example.com/push"})
	d2.Set(PSExpires, types.Value{Kind: types.KindDateTime, DateTime: env.Now() + 30*microsPerDay})
	fields, err := reg.InsertValidate(env, types.CollectionPushSubscription, 1, d2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var expiresMicros int64 = -1
	var sawVerification bool
	for _, f := range fields {
		if f.Property == PSExpires {
			expiresMicros = f.Integer
		}
		if f.Property == PSVerificationCode {
			sawVerification = true
			if len(f.Binary) == 0 {
				t.Fatal("expected a non-empty verification code payload")
			}
		}
	}
	if !sawVerification {
		t.Fatal("expected a generated verification code field")
	}
	wantExpires := env.Now() + 7*microsPerDay
	if expiresMicros != wantExpires {
		t.Fatalf("expected expires clamped to now+7d (%d), got %d", wantExpires, expiresMicros)
	}
}

func TestPushSubscriptionQuota(t *testing.T) {
	reg := NewRegistry(PushSubscriptionSchema{})
	env := newFakeEnv(0)
	for i := 0; i < 150; i++ {
		env.addLive(types.CollectionPushSubscription, types.DocumentID(i))
	}
	d := TrackChanges(nil)
	d.Set(PSURL, types.Value{Kind: types.KindText, Text: "https://example.com/push"})
	if _, err := reg.InsertValidate(env, types.CollectionPushSubscription, 200, d); jmaperr.KindOf(err) != jmaperr.KindForbidden {
		t.Fatalf("expected forbidden over quota, got %v", err)
	}
}

func TestMailboxValidation(t *testing.T) {
	reg := NewRegistry(MailboxSchema{})
	env := newFakeEnv(0)
	env.addLive(types.CollectionMailbox, 1)

	d := TrackChanges(nil)
	d.Set(MailboxName, types.Value{Kind: types.KindText, Text: ""})
	if _, err := reg.InsertValidate(env, types.CollectionMailbox, 2, d); jmaperr.KindOf(err) != jmaperr.KindInvalidProperties {
		t.Fatalf("expected invalidProperties for empty name, got %v", err)
	}

	d2 := TrackChanges(nil)
	d2.Set(MailboxName, types.Value{Kind: types.KindText, Text: "Inbox"})
	d2.Set(MailboxParentID, types.Value{Kind: types.KindID, ID: 99})
	if _, err := reg.InsertValidate(env, types.CollectionMailbox, 2, d2); jmaperr.KindOf(err) != jmaperr.KindInvalidProperties {
		t.Fatalf("expected invalidProperties for missing parent, got %v", err)
	}
}

func TestMailboxCycleDetection(t *testing.T) {
	reg := NewRegistry(MailboxSchema{})
	env := newFakeEnv(0)
	env.addLive(types.CollectionMailbox, 1)
	env.addLive(types.CollectionMailbox, 2)
	env.setParent(types.CollectionMailbox, 2, 1) // 2's parent is 1

	d := TrackChanges(nil)
	d.Set(MailboxName, types.Value{Kind: types.KindText, Text: "Loop"})
	d.Set(MailboxParentID, types.Value{Kind: types.KindID, ID: 2})
	if _, err := reg.InsertValidate(env, types.CollectionMailbox, 1, d); jmaperr.KindOf(err) != jmaperr.KindInvalidProperties {
		t.Fatalf("expected invalidProperties for cycle, got %v", err)
	}
}

func TestMailboxRoleUniqueness(t *testing.T) {
	reg := NewRegistry(MailboxSchema{})
	env := newFakeEnv(0)
	env.tag(types.CollectionMailbox, TagFieldRole, types.TagText("inbox"), 1)

	d := TrackChanges(nil)
	d.Set(MailboxName, types.Value{Kind: types.KindText, Text: "Another Inbox"})
	d.Set(MailboxRole, types.Value{Kind: types.KindText, Text: "inbox"})
	if _, err := reg.InsertValidate(env, types.CollectionMailbox, 2, d); jmaperr.KindOf(err) != jmaperr.KindInvalidProperties {
		t.Fatalf("expected invalidProperties for duplicate role, got %v", err)
	}
}

func TestVacationResponseSingleton(t *testing.T) {
	reg := NewRegistry(VacationResponseSchema{})
	env := newFakeEnv(0)

	d := TrackChanges(nil)
	d.Set(VacationIsEnabled, types.Value{Kind: types.KindBool, Bool: true})
	if _, err := reg.InsertValidate(env, types.CollectionVacationResponse, 5, d); jmaperr.KindOf(err) != jmaperr.KindForbidden {
		t.Fatalf("expected forbidden for non-zero singleton id, got %v", err)
	}
	if _, err := reg.InsertValidate(env, types.CollectionVacationResponse, 0, d); err != nil {
		t.Fatalf("unexpected error for id 0: %v", err)
	}
}

func TestEmailRequiresMailboxAndBody(t *testing.T) {
	reg := NewRegistry(EmailSchema{})
	env := newFakeEnv(0)
	env.addLive(types.CollectionMailbox, 1)

	d := TrackChanges(nil)
	if _, err := reg.InsertValidate(env, types.CollectionMail, 1, d); jmaperr.KindOf(err) != jmaperr.KindInvalidProperties {
		t.Fatalf("expected invalidProperties for missing mailboxIds, got %v", err)
	}

	d2 := TrackChanges(nil)
	d2.Set(EmailMailboxIDs, types.Value{Kind: types.KindTags, Tags: []types.TagValue{types.TagID(1)}})
	if _, err := reg.InsertValidate(env, types.CollectionMail, 1, d2); jmaperr.KindOf(err) != jmaperr.KindInvalidProperties {
		t.Fatalf("expected invalidProperties for missing body, got %v", err)
	}

	d3 := TrackChanges(nil)
	d3.Set(EmailMailboxIDs, types.Value{Kind: types.KindTags, Tags: []types.TagValue{types.TagID(1)}})
	d3.Set(EmailSubject, types.Value{Kind: types.KindText, Text: "hello"})
	if _, err := reg.InsertValidate(env, types.CollectionMail, 1, d3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEncodeDecodeValueRoundTrip(t *testing.T) {
	cases := []types.Value{
		{Kind: types.KindText, Text: "hello"},
		{Kind: types.KindNumber, Number: 3.5},
		{Kind: types.KindBool, Bool: true},
		{Kind: types.KindDateTime, DateTime: 1234567890},
		{Kind: types.KindTextList, TextList: []string{"a", "b"}},
		{Kind: types.KindTags, Tags: []types.TagValue{types.TagID(7), types.TagText("x")}},
		{Kind: types.KindACLSet, ACL: map[types.AccountID]types.ACLRights{3: types.ACLRead | types.ACLModify}},
	}
	for _, v := range cases {
		data := encodeStoredValue(v)
		got, err := DecodeValue(data)
		if err != nil {
			t.Fatalf("decode %v: %v", v, err)
		}
		if got.Kind != v.Kind {
			t.Fatalf("kind mismatch: got %v want %v", got.Kind, v.Kind)
		}
	}
}

func TestDiffTrackChangesAndACLUpdate(t *testing.T) {
	base := NewDocument(1, types.CollectionMailbox, 1)
	base.Properties[MailboxName] = types.Value{Kind: types.KindText, Text: "Inbox"}

	d := TrackChanges(base)
	d.ACLUpdate(10, 2, types.ACLRead)
	resulting := d.Resulting()
	v := resulting[10]
	if v.Kind != types.KindACLSet || v.ACL[2] != types.ACLRead {
		t.Fatalf("expected ACL grant, got %+v", v)
	}

	d.ACLUpdate(10, 2, 0)
	resulting = d.Resulting()
	if _, ok := resulting[10].ACL[2]; ok {
		t.Fatal("expected ACL entry to be removed when rights is 0")
	}
}

func TestDiffTagUntagMergesOntoResulting(t *testing.T) {
	base := NewDocument(1, types.CollectionMail, 9)
	base.Properties[EmailMailboxIDs] = types.Value{Kind: types.KindTags, Tags: []types.TagValue{types.TagID(1)}}

	d := TrackChanges(base)
	d.Tag(EmailMailboxIDs, types.TagID(2))
	d.Untag(EmailMailboxIDs, types.TagID(1))

	resulting := d.Resulting()
	v := resulting[EmailMailboxIDs]
	if v.Kind != types.KindTags {
		t.Fatalf("expected KindTags, got %+v", v)
	}
	has := func(id types.DocumentID) bool {
		for _, tg := range v.Tags {
			if tg == types.TagID(id) {
				return true
			}
		}
		return false
	}
	if has(1) {
		t.Fatal("expected mailbox 1 to be untagged")
	}
	if !has(2) {
		t.Fatal("expected mailbox 2 to be tagged")
	}
	if len(v.Tags) != 1 {
		t.Fatalf("expected exactly 1 remaining tag, got %+v", v.Tags)
	}
}
