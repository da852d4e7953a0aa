package domain

// Command names a transaction requested by a client.
type Command string

const (
	CommandCreate Command = "create"
	CommandBuy    Command = "buy"
	CommandSell   Command = "sell"
	CommandStatus Command = "status"
	CommandReset  Command = "reset"
)

// Valid reports whether c is one of the known commands.
func (c Command) Valid() bool {
	switch c {
	case CommandCreate, CommandBuy, CommandSell, CommandStatus, CommandReset:
		return true
	}
	return false
}
