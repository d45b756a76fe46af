package models

// Server-to-client events. The first four are broadcast to every
// connection, EventParticipantRemoved is targeted at the removed
// connection only.
const (
	EventPollStarted         = "poll-started"
	EventVoteTallyChanged    = "vote-tally-changed"
	EventPollEnded           = "poll-ended"
	EventRosterChanged       = "roster-changed"
	EventParticipantRemoved  = "participant-removed"
	EventPollHistory         = "poll-history"
	EventChatMessage         = "chat-message"
	EventParticipantsChanged = "participants-changed"
	EventCanCreatePollOK     = "can-create-poll-ok"
	EventPollCreateError     = "poll-create-error"
)

// Client-to-server events.
const (
	EventCreatePoll         = "create-poll"
	EventCastVote           = "cast-vote"
	EventEndPoll            = "end-poll"
	EventCheckCanCreatePoll = "check-can-create-poll"
	EventJoinRoster         = "join-roster"
	EventRemoveParticipant  = "remove-participant"
	EventGetPollHistory     = "get-poll-history"
	EventJoinChat           = "join-chat"
	EventSendChat           = "send-chat"
)
