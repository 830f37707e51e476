package orm

import (
	"github.com/jmapstore/core/pkg/jmaperr"
	"github.com/jmapstore/core/pkg/types"
)

// Grounded on original_source/components/jmap_mail/src/mailbox/schema.rs
// for the property set (name, parentId, role, sortOrder, subscriptions,
// ACL) and standard JMAP Mailbox rules (RFC 8621 §2) for the invariants
// the distilled schema.rs left implicit: name non-empty, role unique per
// account, no parent cycles.
const mailboxMaxNameLength = 255

// MailboxSchema implements Schema for types.CollectionMailbox.
type MailboxSchema struct{}

func (MailboxSchema) Collection() types.Collection { return types.CollectionMailbox }

func (MailboxSchema) DefaultProperties() map[uint8]types.Value {
	return map[uint8]types.Value{
		MailboxSortOrder:    {Kind: types.KindNumber, Number: 0},
		MailboxIsSubscribed: {Kind: types.KindBool, Bool: false},
	}
}

func (MailboxSchema) Normalize(env ValidationEnv, isInsert bool, diff *Diff) error {
	return nil
}

func (s MailboxSchema) Validate(env ValidationEnv, id types.DocumentID, doc map[uint8]types.Value) error {
	name, ok := doc[MailboxName]
	if !ok || name.Kind != types.KindText || name.Text == "" {
		return jmaperr.InvalidProperty("name", "name is required and must be non-empty")
	}
	if len(name.Text) > mailboxMaxNameLength {
		return jmaperr.InvalidProperty("name", "name exceeds the maximum length")
	}

	if parent, ok := doc[MailboxParentID]; ok && parent.Kind == types.KindID {
		if parent.ID == id {
			return jmaperr.InvalidProperty("parentId", "a mailbox cannot be its own parent")
		}
		exists, err := env.Exists(types.CollectionMailbox, parent.ID)
		if err != nil {
			return err
		}
		if !exists {
			return jmaperr.InvalidProperty("parentId", "parent mailbox does not exist")
		}
		if cycle, err := s.introducesCycle(env, id, parent.ID); err != nil {
			return err
		} else if cycle {
			return jmaperr.InvalidProperty("parentId", "parentId would introduce a cycle")
		}
	}

	if role, ok := doc[MailboxRole]; ok && role.Kind == types.KindText && role.Text != "" {
		ids, err := env.FindByTag(types.CollectionMailbox, TagFieldRole, types.TagText(role.Text))
		if err != nil {
			return err
		}
		for _, existing := range ids {
			if existing != id {
				return jmaperr.InvalidProperty("role", "role must be unique within an account")
			}
		}
	}
	return nil
}

// introducesCycle walks parentID's ancestry looking for id, the mailbox
// being reparented. A cycle exists if id appears anywhere above parentID.
func (MailboxSchema) introducesCycle(env ValidationEnv, id, parentID types.DocumentID) (bool, error) {
	const maxDepth = 10000 // guards against a corrupt ancestry chain looping forever
	cur := parentID
	for i := 0; i < maxDepth; i++ {
		if cur == id {
			return true, nil
		}
		next, ok, err := env.ParentOf(types.CollectionMailbox, cur, MailboxParentID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		cur = next
	}
	return false, jmaperr.New(jmaperr.KindDataCorruption, "mailbox ancestry chain exceeds maximum depth")
}

func (MailboxSchema) IndexAs(doc map[uint8]types.Value) []UpdateField {
	var fields []UpdateField
	if name, ok := doc[MailboxName]; ok {
		fields = append(fields, UpdateField{Property: MailboxName, Op: OpText, Options: OptStore | OptSort, Text: name.Text})
	}
	if parent, ok := doc[MailboxParentID]; ok && parent.Kind == types.KindID {
		fields = append(fields, UpdateField{
			Property: MailboxParentID, Op: OpTag, Options: OptStore | OptSort,
			Tag: types.TagID(parent.ID),
		})
	}
	if role, ok := doc[MailboxRole]; ok && role.Kind == types.KindText && role.Text != "" {
		fields = append(fields, UpdateField{
			Property: MailboxRole, Op: OpTag, Options: OptStore,
			Tag: types.TagText(role.Text),
		})
	}
	if sortOrder, ok := doc[MailboxSortOrder]; ok {
		fields = append(fields, UpdateField{Property: MailboxSortOrder, Op: OpInteger, Options: OptStore | OptSort, Integer: int64(sortOrder.Number)})
	}
	if sub, ok := doc[MailboxIsSubscribed]; ok {
		fields = append(fields, valueToStoredField(MailboxIsSubscribed, sub))
	}
	return fields
}
