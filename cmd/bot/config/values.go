package config

import "github.com/Jacobbrewer1/howl/pkg/entities"

const (
	// AppName is the name of the application.
	AppName = "howl"

	// EnvTransport selects the chat platform.
	EnvTransport = `TRANSPORT`

	// EnvMatrixHomeserver is the environment variable for the homeserver URL.
	EnvMatrixHomeserver = `MATRIX_HOMESERVER`

	// EnvMatrixUserID is the environment variable for the bot's Matrix user.
	EnvMatrixUserID = `MATRIX_USER_ID`

	// EnvMatrixAccessToken is the environment variable for the Matrix access token.
	EnvMatrixAccessToken = `MATRIX_ACCESS_TOKEN`

	// EnvMatrixPurgeRooms enables room deletion through the Synapse admin API.
	EnvMatrixPurgeRooms = `MATRIX_PURGE_ROOMS`

	// EnvBotToken is the environment variable for the Discord bot token.
	EnvBotToken = `BOT_TOKEN`

	// EnvApplicationId is the environment variable for the Discord application ID.
	EnvApplicationId = `APPLICATION_ID`

	// EnvGuildId is the environment variable for the Discord guild tickets live in.
	EnvGuildId = `GUILD_ID`

	// EnvTicketCategoryId is the environment variable for the Discord channel category of tickets.
	EnvTicketCategoryId = `TICKET_CATEGORY_ID`

	// EnvRequestsPerSecond limits outgoing platform requests.
	EnvRequestsPerSecond = `REQUESTS_PER_SECOND`

	// EnvStore selects the ticket store.
	EnvStore = `STORE`

	// EnvSQLitePath is the environment variable for the SQLite database file.
	EnvSQLitePath = `SQLITE_PATH`

	// EnvMongoUri is the environment variable for the MongoDB URI.
	EnvMongoUri = `MONGO_URI`

	// EnvPolicyFile is the environment variable for the YAML ticketing policy.
	EnvPolicyFile = `TICKET_POLICY_FILE`

	EnvTicketRetention       = `TICKET_RETENTION`
	EnvTicketInactivity      = `TICKET_INACTIVITY`
	EnvTicketAdmins          = `TICKET_ADMINS`
	EnvTicketBanned          = `TICKET_BANNED`
	EnvTicketLogRoom         = `TICKET_LOG_ROOM`
	EnvTicketKickOnClose     = `TICKET_KICK_ON_CLOSE`
	EnvTicketCloseAuthority  = `TICKET_CLOSE_AUTHORITY`
	EnvTicketClosePowerLevel = `TICKET_CLOSE_POWER_LEVEL`
	EnvPublicBaseURL         = `PUBLIC_BASE_URL`

	// EnvAmqpUrl is the environment variable for the lifecycle event broker.
	EnvAmqpUrl = `AMQP_URL`

	// EnvAmqpExchange is the exchange lifecycle events are published to.
	EnvAmqpExchange = `AMQP_EXCHANGE`

	// EnvMonitoringPort is the environment variable for the monitoring port.
	EnvMonitoringPort = `MONITORING_PORT`
)

const (
	TransportMatrix  = "matrix"
	TransportDiscord = "discord"

	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
	StoreMemory = "memory"

	defaultSQLitePath     = "howl.db"
	defaultAmqpExchange   = "howl.tickets"
	defaultMonitoringPort = "8080"
)

var (
	// Transport is the chat platform, matrix or discord.
	Transport string

	// MatrixHomeserver is the base URL of the homeserver.
	MatrixHomeserver string

	// MatrixUserID is the bot's user. Resolved with whoami when empty.
	MatrixUserID string

	// MatrixAccessToken authenticates the bot.
	MatrixAccessToken string

	// MatrixPurgeRooms deletes rooms through the Synapse admin API instead of forgetting them.
	MatrixPurgeRooms bool

	// BotToken is the token for the Discord bot.
	BotToken string

	// ApplicationId is the ID of the Discord application.
	ApplicationId string

	// GuildId is the Discord guild tickets are created in.
	GuildId string

	// TicketCategoryId is the Discord channel category for ticket channels.
	TicketCategoryId string

	// RequestsPerSecond limits outgoing platform requests. Zero disables the limit.
	RequestsPerSecond float64

	// Store is the ticket store, sqlite, mongo or memory.
	Store string

	// SQLitePath is the SQLite database file.
	SQLitePath string

	// MongoUri is the URI for the MongoDB database.
	MongoUri string

	// AmqpUrl is the broker lifecycle events are published to. Empty disables publishing.
	AmqpUrl string

	// AmqpExchange is the topic exchange for lifecycle events.
	AmqpExchange string

	// MonitoringPort is the port for the monitoring server.
	MonitoringPort string

	// Ticketing is the ticketing policy.
	Ticketing *entities.TicketingConfig
)
