package orm

import (
	"github.com/jmapstore/core/pkg/jmaperr"
	"github.com/jmapstore/core/pkg/types"
)

// EmailSchema implements Schema for types.CollectionMail: at least one
// mailbox membership, at least one header or body part.
type EmailSchema struct{}

func (EmailSchema) Collection() types.Collection { return types.CollectionMail }

func (EmailSchema) DefaultProperties() map[uint8]types.Value {
	return map[uint8]types.Value{}
}

func (EmailSchema) Normalize(env ValidationEnv, isInsert bool, diff *Diff) error {
	return nil
}

func (EmailSchema) Validate(env ValidationEnv, id types.DocumentID, doc map[uint8]types.Value) error {
	mailboxes, ok := doc[EmailMailboxIDs]
	if !ok || mailboxes.Kind != types.KindTags || len(mailboxes.Tags) == 0 {
		return jmaperr.InvalidProperty("mailboxIds", "an email must belong to at least one mailbox")
	}
	for _, m := range mailboxes.Tags {
		if m.Kind != types.TagValueID {
			return jmaperr.InvalidProperty("mailboxIds", "mailboxIds must reference mailbox ids")
		}
		exists, err := env.Exists(types.CollectionMailbox, m.ID)
		if err != nil {
			return err
		}
		if !exists {
			return jmaperr.InvalidProperty("mailboxIds", "mailboxIds references a mailbox that does not exist")
		}
	}

	hasSubject := hasNonEmptyText(doc, EmailSubject)
	hasBody := hasNonEmptyText(doc, EmailBodyText)
	hasBlob, ok := doc[EmailBlobID]
	if !hasSubject && !hasBody && !(ok && hasBlob.Kind == types.KindBlob) {
		return jmaperr.InvalidProperty("bodyStructure", "an email must have at least one header or body part")
	}
	return nil
}

func hasNonEmptyText(doc map[uint8]types.Value, prop uint8) bool {
	v, ok := doc[prop]
	return ok && v.Kind == types.KindText && v.Text != ""
}

func (EmailSchema) IndexAs(doc map[uint8]types.Value) []UpdateField {
	var fields []UpdateField
	if mailboxes, ok := doc[EmailMailboxIDs]; ok {
		for _, m := range mailboxes.Tags {
			fields = append(fields, UpdateField{Property: EmailMailboxIDs, Op: OpTag, Options: OptStore, Tag: m})
		}
	}
	if keywords, ok := doc[EmailKeywords]; ok {
		for _, k := range keywords.Tags {
			fields = append(fields, UpdateField{Property: EmailKeywords, Op: OpTag, Options: OptStore, Tag: k})
		}
	}
	if subject, ok := doc[EmailSubject]; ok {
		fields = append(fields, UpdateField{
			Property: EmailSubject, Op: OpText, Options: OptStore | OptSort | OptFullText, Text: subject.Text,
		})
	}
	if from, ok := doc[EmailFrom]; ok {
		fields = append(fields, UpdateField{Property: EmailFrom, Op: OpText, Options: OptStore | OptSort, Text: from.Text})
	}
	if to, ok := doc[EmailTo]; ok {
		fields = append(fields, UpdateField{Property: EmailTo, Op: OpText, Options: OptStore, Text: to.Text})
	}
	if receivedAt, ok := doc[EmailReceivedAt]; ok {
		fields = append(fields, UpdateField{Property: EmailReceivedAt, Op: OpLongInteger, Options: OptStore | OptSort, Integer: receivedAt.DateTime})
	}
	if body, ok := doc[EmailBodyText]; ok {
		fields = append(fields, UpdateField{
			Property: EmailBodyText, Op: OpText, Options: OptStoreAsBlob | OptFullText, Text: body.Text,
		})
	}
	if threadID, ok := doc[EmailThreadID]; ok && threadID.Kind == types.KindID {
		fields = append(fields, UpdateField{Property: EmailThreadID, Op: OpTag, Options: OptStore, Tag: types.TagID(threadID.ID)})
	}
	return fields
}
