package orm

// Property IDs are small and collection-scoped: each collection's Schema
// interprets its own uint8 space, so the same numeric value means
// different things in Mailbox versus PushSubscription. Keeping them as
// plain constants (rather than a shared global enum) mirrors the way
// spec.md §3 scopes Property names to their owning collection.

// PushSubscription properties, per spec.md §4.4 and the push_subscription
// schema it distills.
const (
	PSDeviceClientID uint8 = iota
	PSURL
	PSKeys
	PSExpires
	PSTypes
	PSVerificationCode
)

// Mailbox properties.
const (
	MailboxName uint8 = iota
	MailboxParentID
	MailboxRole
	MailboxSortOrder
	MailboxIsSubscribed
	MailboxTotalEmails
	MailboxUnreadEmails
	MailboxTotalThreads
	MailboxUnreadThreads
	MailboxMyRights
)

// Email properties (the subset the core write path needs; display/derived
// counters live in Mailbox and Thread instead).
const (
	EmailMailboxIDs uint8 = iota
	EmailKeywords
	EmailSubject
	EmailFrom
	EmailTo
	EmailReceivedAt
	EmailBodyText
	EmailBlobID
	EmailThreadID
)

// VacationResponse properties.
const (
	VacationIsEnabled uint8 = iota
	VacationFromDate
	VacationToDate
	VacationSubject
	VacationTextBody
	VacationHTMLBody
)

// Tag fields used for bitmap membership, scoped per collection the same
// way properties are.
const (
	TagFieldMailboxID uint8 = iota
	TagFieldKeyword
	TagFieldRole
)
