package core

import (
	"errors"
	"sync"
)

// CommandHandler decodes its own arguments from data and runs the command
type CommandHandler func(data *[]byte) error

// Command is one message in the data dictionary. Responses (MCU to host)
// have no handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string // e.g. "oid=%c trigger_pin=%u echo_pin=%u"
	Handler CommandHandler
}

// Signature is the dictionary key for the message
func (c *Command) Signature() string {
	if c.Format == "" {
		return c.Name
	}
	return c.Name + " " + c.Format
}

// IsResponse reports whether the message is sent by the MCU
func (c *Command) IsResponse() bool {
	return c.Handler == nil
}

var (
	ErrUnknownCommand = errors.New("unknown command id")
	ErrNotACommand    = errors.New("response id received as a command")
)

// dispatchError carries the offending id without fmt
type dispatchError struct {
	id  uint16
	err error
}

func (e *dispatchError) Error() string { return e.err.Error() + " " + itoa(int(e.id)) }
func (e *dispatchError) Unwrap() error { return e.err }

// CommandRegistry numbers messages densely in registration order, so the
// first two registrations fix identify_response at 0 and identify at 1.
type CommandRegistry struct {
	mu     sync.RWMutex
	byID   []*Command
	byName map[string]*Command
}

var globalRegistry = NewCommandRegistry()

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{byName: make(map[string]*Command)}
}

// Register adds a message and returns its id. A name registered twice keeps
// its first id.
func (r *CommandRegistry) Register(name string, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cmd, ok := r.byName[name]; ok {
		return cmd.ID
	}
	cmd := &Command{
		ID:      uint16(len(r.byID)),
		Name:    name,
		Format:  format,
		Handler: handler,
	}
	r.byID = append(r.byID, cmd)
	r.byName[name] = cmd
	return cmd.ID
}

func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.byID) {
		return nil, false
	}
	return r.byID[id], true
}

func (r *CommandRegistry) GetCommandByName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.byName[name]
	return cmd, ok
}

// Dispatch runs the handler registered for cmdID
func (r *CommandRegistry) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := r.GetCommand(cmdID)
	if !ok {
		return &dispatchError{id: cmdID, err: ErrUnknownCommand}
	}
	if cmd.IsResponse() {
		return &dispatchError{id: cmdID, err: ErrNotACommand}
	}
	return cmd.Handler(data)
}

// Messages splits the registry into the dictionary's commands and
// responses, keyed by signature
func (r *CommandRegistry) Messages() (commands, responses map[string]int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands = make(map[string]int)
	responses = make(map[string]int)
	for _, cmd := range r.byID {
		if cmd.IsResponse() {
			responses[cmd.Signature()] = int(cmd.ID)
		} else {
			commands[cmd.Signature()] = int(cmd.ID)
		}
	}
	return commands, responses
}

// RegisterCommand adds a host to MCU command to the global registry
func RegisterCommand(name string, format string, handler CommandHandler) uint16 {
	return globalRegistry.Register(name, format, handler)
}

// RegisterResponse adds an MCU to host message to the global registry
func RegisterResponse(name string, format string) uint16 {
	return globalRegistry.Register(name, format, nil)
}

// DispatchCommand is the transport's CommandHandler
func DispatchCommand(cmdID uint16, data *[]byte) error {
	return globalRegistry.Dispatch(cmdID, data)
}

func GetGlobalRegistry() *CommandRegistry {
	return globalRegistry
}
