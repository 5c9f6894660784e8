package domain

import dErrors "civicledger/pkg/domain-errors"

// ContentType enumerates the anchorable record kinds.
type ContentType string

const (
	ContentTypeIssue       ContentType = "issue"
	ContentTypeComment     ContentType = "comment"
	ContentTypeVote        ContentType = "vote"
	ContentTypeCommentVote ContentType = "comment_vote"
)

func ParseContentType(s string) (ContentType, error) {
	switch ContentType(s) {
	case ContentTypeIssue, ContentTypeComment, ContentTypeVote, ContentTypeCommentVote:
		return ContentType(s), nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown content type: "+s)
}

func (t ContentType) String() string { return string(t) }

// IsVote reports whether the type is user-scoped: callers address votes by
// the parent issue/comment id, and the acting user disambiguates which vote
// row is meant.
func (t ContentType) IsVote() bool {
	return t == ContentTypeVote || t == ContentTypeCommentVote
}

// ContentRef is how callers address content. For issues and comments, ID is
// the row's own identifier. For vote types, ID is the parent issue/comment
// id and UserID selects the vote row. Keeping the two identifier roles in
// one explicit type avoids the key confusion between logical content and
// its vote rows.
type ContentRef struct {
	ID     ContentID
	Type   ContentType
	UserID UserID
}

func (r ContentRef) Validate() error {
	if r.ID.IsEmpty() {
		return dErrors.New(dErrors.CodeInvalidInput, "content id is required")
	}
	if _, err := ParseContentType(string(r.Type)); err != nil {
		return err
	}
	if r.Type.IsVote() && r.UserID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "vote content requires a user id")
	}
	return nil
}
