// Package hashing produces the deterministic fingerprints anchored
// on-chain. Every function here is pure: no I/O, no clock reads, and a
// fixed canonical form per record kind, because reconciliation recomputes
// these hashes later and any drift reads as tampering.
//
// Fields are joined with ":" in a fixed order and digested with keccak256
// so the result is directly usable as a bytes32 on the EVM side.
package hashing

import (
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"civicledger/pkg/domain"
)

// Hasher computes identity fingerprints under the deployment's secret
// salt. The salt hides which off-chain user an on-chain hash belongs to;
// it is provisioned once pre-launch and must never change, since rotating
// it invalidates every previously anchored identity hash.
type Hasher struct {
	salt string
}

func New(salt string) *Hasher {
	return &Hasher{salt: salt}
}

// IdentityHash fingerprints (userId, email, verificationAttemptId) under
// the salt.
func (h *Hasher) IdentityHash(userID domain.UserID, email, attemptID string) domain.Hash32 {
	return digest([]string{userID.String(), email, attemptID, h.salt})
}

// Coordinates is an optional profile location. A nil *Coordinates
// canonicalizes to the empty string, identically on every call; silently
// coercing nil differently across calls would break reconciliation.
type Coordinates struct {
	Lat float64
	Lng float64
}

func (c *Coordinates) canonical() string {
	if c == nil {
		return ""
	}
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}

// ProfileFields are the mutable profile attributes covered by the profile
// fingerprint. Timestamps are deliberately excluded: they change
// legitimately and would make every verification a false positive.
type ProfileFields struct {
	UserID      domain.UserID
	FirstName   string
	LastName    string
	Coordinates *Coordinates
	Role        string
	Verified    bool
}

// ProfileHash fingerprints the mutable profile fields. No salt: profile
// hashes are compared only against our own stored value, never used as an
// on-chain key.
func ProfileHash(f ProfileFields) domain.Hash32 {
	return digest([]string{
		"profile",
		f.UserID.String(),
		f.FirstName,
		f.LastName,
		f.Coordinates.canonical(),
		f.Role,
		strconv.FormatBool(f.Verified),
	})
}

// ContentFields is implemented by the per-type field tuples below. The
// canonical ordering per type is fixed for the lifetime of the system.
type ContentFields interface {
	ContentType() domain.ContentType
	canonical() []string
}

// IssueFields covers a civic issue post.
type IssueFields struct {
	ID        domain.ContentID
	Title     string
	Narrative string
	IssueType string
	Topic     string
	UserID    domain.UserID
	CreatedAt time.Time
}

func (f IssueFields) ContentType() domain.ContentType { return domain.ContentTypeIssue }

func (f IssueFields) canonical() []string {
	return []string{
		"issue", f.ID.String(), f.Title, f.Narrative, f.IssueType, f.Topic,
		f.UserID.String(), canonicalTime(f.CreatedAt),
	}
}

// CommentFields covers a comment on an issue.
type CommentFields struct {
	ID        domain.ContentID
	Content   string
	IssueID   domain.ContentID
	UserID    domain.UserID
	CreatedAt time.Time
}

func (f CommentFields) ContentType() domain.ContentType { return domain.ContentTypeComment }

func (f CommentFields) canonical() []string {
	return []string{
		"comment", f.ID.String(), f.Content, f.IssueID.String(),
		f.UserID.String(), canonicalTime(f.CreatedAt),
	}
}

// VoteFields covers a user's vote on an issue. The vote row's own id is
// not part of the fingerprint; provenance comes from (issueId, userId).
type VoteFields struct {
	IssueID   domain.ContentID
	UserID    domain.UserID
	Value     int
	UpdatedAt time.Time
}

func (f VoteFields) ContentType() domain.ContentType { return domain.ContentTypeVote }

func (f VoteFields) canonical() []string {
	return []string{
		"vote", f.IssueID.String(), f.UserID.String(),
		strconv.Itoa(f.Value), canonicalTime(f.UpdatedAt),
	}
}

// CommentVoteFields covers a user's vote on a comment.
type CommentVoteFields struct {
	CommentID domain.ContentID
	UserID    domain.UserID
	Value     int
	UpdatedAt time.Time
}

func (f CommentVoteFields) ContentType() domain.ContentType { return domain.ContentTypeCommentVote }

func (f CommentVoteFields) canonical() []string {
	return []string{
		"comment_vote", f.CommentID.String(), f.UserID.String(),
		strconv.Itoa(f.Value), canonicalTime(f.UpdatedAt),
	}
}

// ContentHash fingerprints a content record's current field values.
func ContentHash(f ContentFields) domain.Hash32 {
	return digest(f.canonical())
}

func canonicalTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func digest(fields []string) domain.Hash32 {
	sum := crypto.Keccak256([]byte(strings.Join(fields, ":")))
	var h domain.Hash32
	copy(h[:], sum)
	return h
}
