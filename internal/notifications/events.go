package notifications

// Event type constants prevent typos in event names.
const (
	EventReceiveMessage        = "receive_message"
	EventMessageDeleted        = "message_deleted"
	EventMessageEdited         = "message_edited"
	EventReactionsUpdated      = "reactions_updated"
	EventPresenceUpdated       = "presence_updated"
	EventMemberMuteUpdated     = "member_mute_updated"
	EventMemberRemoved         = "member_removed"
	EventForceRedirect         = "force_redirect"
	EventCommandResult         = "command_result"
	EventMessageNotification   = "message_notification"
	EventNewDMMessage          = "new_dm_message"
	EventFriendRequestReceived = "friend_request_received"
	EventFriendRequestUpdated  = "friend_request_updated"
	EventJoined                = "joined"
	EventError                 = "error"
)
