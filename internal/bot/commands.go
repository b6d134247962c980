package bot

// Command constants for Telegram bot commands.
const (
	CommandStart  = "/start"
	CommandHelp   = "/help"
	CommandPrice  = "/price"
	CommandLong   = "/long"
	CommandShort  = "/short"
	CommandCancel = "/cancel"
)
