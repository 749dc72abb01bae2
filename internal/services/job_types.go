package services

// Background job types.
const (
	JobIdentityUpdate     = "identity.update"
	JobIdentityDelete     = "identity.delete"
	JobIdentityCreateUser = "identity.create_user"
	JobUserRefresh        = "user.refresh"
	JobMailingListUpsert  = "mailinglist.upsert"
	JobMailingListDelete  = "mailinglist.delete"
	JobEmailWelcome       = "email.welcome"
	JobEmailGoodbye       = "email.goodbye"
	JobEmailAccountUpdate = "email.account_update"
	JobEmailOutreach      = "email.outreach"
	JobEmailFinal         = "email.final"
	JobAdminCommentNotify = "admin.comment_notify"
	JobVoterMatch         = "voter.match"
)

type IdentityUpdatePayload struct {
	Subject string `json:"subject"`
	Name    string `json:"name"`
}

type IdentityDeletePayload struct {
	Subject string `json:"subject"`
}

type IdentityCreatePayload struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type UserPayload struct {
	UserID string `json:"user_id"`
}

type AccountPayload struct {
	AccountID string `json:"account_id"`
}

type EmailAddressPayload struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type CommentPayload struct {
	CommentID string `json:"comment_id"`
}
