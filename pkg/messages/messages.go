package messages

const (
	ErrUserErrorProcessing = "Sorry, something went wrong while processing your request. Please try again later."

	CategoryMenu = "📋 Please choose a category:\n" +
		"1️⃣ General Help\n" +
		"2️⃣ Purchase Issues\n" +
		"3️⃣ Other\n\n" +
		"Reply with: `!ticket open <number> [subject]`"

	Usage = "Usage: !ticket <open|close|status|delete>"

	InvalidCategory = "Invalid category.\nUsage: !ticket open <1|2|3|general|purchase|other> [subject]"

	AlreadyOpen = "You already have an open ticket: %s"

	RoomProvisioningFailed = "Failed to create ticket room. Please contact an admin."

	TicketCreated = "Ticket #%d created in room: %s"

	JoinLink = "🔗 Admin join link: %s"

	TicketOpenedNotice = "New ticket #%d opened by %s\nCategory: %s\nSubject: %s\n\nAdmins were invited automatically. Admins may invite moderators as needed."

	LogRoomOpened = "Ticket #%d (%s) opened by %s in %s"

	LogRoomClosed = "Ticket #%d closed by %s"

	LogRoomDeleted = "Ticket #%d deleted"

	NoOpenTicket = "You don’t have any open ticket."

	NotAuthorized = "You are not allowed to close this ticket."

	AlreadyClosed = "This ticket is already closed."

	TicketClosed = "Ticket closed. This room will be deleted in %s."

	TicketAutoClosed = "⏳ Auto-closing this ticket after inactivity. It will be deleted in %s."

	TicketDeleted = "🗑️ Ticket deleted after expiry."

	TicketDeletedByAdmin = "🗑️ Ticket deleted by %s."

	DeleteNotAllowed = "You are not allowed to delete this ticket."

	DeleteNotClosed = "Only closed tickets can be deleted. Close it first."

	NoTicketInRoom = "There is no ticket for this room."

	StatusOpen = "You have ticket #%d open in %s"

	StatusClosed = "Ticket #%d in %s is closed and will be deleted in %s."

	NoOpenTickets = "No open tickets found."

	Done = "✅ Done."

	KickReasonNotAllowed = "This room is restricted to the ticket owner and support staff."

	KickReasonBanned = "Banned from this service."

	KickReasonClosed = "Ticket closed"
)
