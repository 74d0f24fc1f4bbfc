package chat

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrNotParticipant          = errors.New("not a participant")
	ErrForbidden               = errors.New("forbidden")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrConversationLocked      = errors.New("conversation locked")
	ErrAlreadyDeleted          = errors.New("message already deleted")
	ErrEditWindowExpired       = errors.New("edit window expired")
	ErrInvalidPayload          = errors.New("invalid payload")
	ErrInvalidReaction         = errors.New("invalid reaction")
	ErrInvalidState            = errors.New("invalid presence state")
	ErrInvalidTitle            = errors.New("invalid title")
	ErrInvalidMembers          = errors.New("invalid members")
	ErrInsufficientMembers     = errors.New("insufficient members")
	ErrInvalidPageSize         = errors.New("invalid page size")
	ErrFutureTimestamp         = errors.New("timestamp in the future")
	ErrUnsupportedForDirect    = errors.New("unsupported for direct conversations")
	ErrOwnerCannotLeave        = errors.New("owner cannot leave without transferring ownership")
)
