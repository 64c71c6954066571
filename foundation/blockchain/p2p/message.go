package p2p

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ardanlabs/blocknode/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/common"
)

// ErrMalformedMessage is returned when a line or its payload can't be decoded.
var ErrMalformedMessage = errors.New("malformed message")

// Set of commands understood by the protocol.
const (
	CmdConnect = "CONNECT"
	CmdAck     = "ACK"
	CmdInv     = "INV"
	CmdGetData = "GETDATA"
	CmdBlock   = "BLOCK"
)

// Message represents one line of the protocol: a command and its payload.
type Message struct {
	Command string
	Payload string
}

// ParseMessage splits a line into its command and payload.
func ParseMessage(line string) (Message, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Message{}, fmt.Errorf("%w: empty line", ErrMalformedMessage)
	}

	command, payload, _ := strings.Cut(line, " ")
	if command == "" {
		return Message{}, fmt.Errorf("%w: missing command", ErrMalformedMessage)
	}

	msg := Message{
		Command: command,
		Payload: payload,
	}

	return msg, nil
}

// Format returns the newline terminated line for the message.
func (m Message) Format() []byte {
	if m.Payload == "" {
		return []byte(m.Command + "\n")
	}

	return []byte(m.Command + " " + m.Payload + "\n")
}

// String implements the fmt.Stringer interface.
func (m Message) String() string {
	return strings.TrimRight(string(m.Format()), "\n")
}

// =============================================================================

// NewConnect constructs the message that opens a conversation.
func NewConnect() Message {
	return Message{Command: CmdConnect}
}

// NewAck constructs an acknowledgement. Newlines in the text are replaced
// so the message stays on one line.
func NewAck(text string) Message {
	text = strings.NewReplacer("\r", " ", "\n", " ").Replace(text)
	return Message{Command: CmdAck, Payload: text}
}

// NewInv constructs an announcement of the specified hashes.
func NewInv(hashes []common.Hash) (Message, error) {
	if hashes == nil {
		hashes = []common.Hash{}
	}

	data, err := json.Marshal(hashes)
	if err != nil {
		return Message{}, err
	}

	return Message{Command: CmdInv, Payload: string(data)}, nil
}

// DecodeInv decodes the hashes announced by an INV message.
func DecodeInv(payload string) ([]common.Hash, error) {
	var hashes []common.Hash
	if err := json.Unmarshal([]byte(payload), &hashes); err != nil {
		return nil, fmt.Errorf("%w: inv: %s", ErrMalformedMessage, err)
	}

	return hashes, nil
}

// NewGetData constructs a request for the block with the specified hash.
func NewGetData(hash common.Hash) Message {
	data, _ := json.Marshal(hash)
	return Message{Command: CmdGetData, Payload: string(data)}
}

// DecodeGetData decodes the hash requested by a GETDATA message.
func DecodeGetData(payload string) (common.Hash, error) {
	var hash common.Hash
	if err := json.Unmarshal([]byte(payload), &hash); err != nil {
		return common.Hash{}, fmt.Errorf("%w: getdata: %s", ErrMalformedMessage, err)
	}

	return hash, nil
}

// NewBlock constructs the message that delivers a block.
func NewBlock(block database.Block) (Message, error) {
	data, err := json.Marshal(database.NewBlockData(block))
	if err != nil {
		return Message{}, err
	}

	return Message{Command: CmdBlock, Payload: string(data)}, nil
}

// DecodeBlock decodes the block delivered by a BLOCK message.
func DecodeBlock(payload string) (database.Block, error) {
	var bd database.BlockData
	if err := json.Unmarshal([]byte(payload), &bd); err != nil {
		return database.Block{}, fmt.Errorf("%w: block: %s", ErrMalformedMessage, err)
	}

	block, err := database.ToBlock(bd)
	if err != nil {
		return database.Block{}, fmt.Errorf("%w: block: %s", ErrMalformedMessage, err)
	}

	return block, nil
}
