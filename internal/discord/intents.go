package discord

// Intents is the bitset of event groups a session subscribes to. It is sent
// once at identify time and never renegotiated without a fresh identify.
type Intents uint64

const (
	IntentGuilds                      Intents = 1 << 0
	IntentGuildMembers                Intents = 1 << 1
	IntentGuildModeration             Intents = 1 << 2
	IntentGuildExpressions            Intents = 1 << 3
	IntentGuildIntegrations           Intents = 1 << 4
	IntentGuildWebhooks               Intents = 1 << 5
	IntentGuildInvites                Intents = 1 << 6
	IntentGuildVoiceStates            Intents = 1 << 7
	IntentGuildPresences              Intents = 1 << 8
	IntentGuildMessages               Intents = 1 << 9
	IntentGuildMessageReactions       Intents = 1 << 10
	IntentGuildMessageTyping          Intents = 1 << 11
	IntentDirectMessages              Intents = 1 << 12
	IntentDirectMessageReactions      Intents = 1 << 13
	IntentDirectMessageTyping         Intents = 1 << 14
	IntentMessageContent              Intents = 1 << 15
	IntentGuildScheduledEvents        Intents = 1 << 16
	IntentAutoModerationConfiguration Intents = 1 << 20
	IntentAutoModerationExecution     Intents = 1 << 21
	IntentGuildMessagePolls           Intents = 1 << 24
	IntentDirectMessagePolls          Intents = 1 << 25
)

// IntentsUnprivileged is every intent that does not require explicit
// approval in the developer portal.
const IntentsUnprivileged = IntentGuilds |
	IntentGuildModeration |
	IntentGuildExpressions |
	IntentGuildIntegrations |
	IntentGuildWebhooks |
	IntentGuildInvites |
	IntentGuildVoiceStates |
	IntentGuildMessages |
	IntentGuildMessageReactions |
	IntentGuildMessageTyping |
	IntentDirectMessages |
	IntentDirectMessageReactions |
	IntentDirectMessageTyping |
	IntentGuildScheduledEvents |
	IntentAutoModerationConfiguration |
	IntentAutoModerationExecution |
	IntentGuildMessagePolls |
	IntentDirectMessagePolls

// Has reports whether every bit in other is set.
func (i Intents) Has(other Intents) bool {
	return i&other == other
}
