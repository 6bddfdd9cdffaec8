package wire

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

var clientPayloads = map[ClientKind]protoreflect.Name{
	ClientStartGame:   "start_game",
	ClientGuess:       "guess",
	ClientPause:       "pause",
	ClientResume:      "resume",
	ClientRestartVote: "restart_vote",
	ClientRestart:     "restart",
	ClientLeave:       "leave",
}

var serverPayloads = map[ServerKind]protoreflect.Name{
	ServerSnapshot:   "snapshot",
	ServerWrongGuess: "wrong_guess",
	ServerError:      "error",
	ServerWelcome:    "welcome",
}

var (
	clientKinds = invert(clientPayloads)
	serverKinds = invert(serverPayloads)
)

func invert[K comparable](m map[K]protoreflect.Name) map[protoreflect.Name]K {
	out := make(map[protoreflect.Name]K, len(m))
	for k, name := range m {
		out[name] = k
	}
	return out
}

func field(m protoreflect.Message, name protoreflect.Name) protoreflect.FieldDescriptor {
	return m.Descriptor().Fields().ByName(name)
}

func set(m protoreflect.Message, name protoreflect.Name, v protoreflect.Value) {
	m.Set(field(m, name), v)
}

func get(m protoreflect.Message, name protoreflect.Name) protoreflect.Value {
	return m.Get(field(m, name))
}

// setMessage stores a fresh message in the named field and returns it.
func setMessage(m protoreflect.Message, name protoreflect.Name) protoreflect.Message {
	fd := field(m, name)
	body := m.NewField(fd)
	m.Set(fd, body)
	return body.Message()
}

// readPayload decodes a packet and returns which member of its oneof is set.
func readPayload(data []byte, desc protoreflect.MessageDescriptor) (*dynamicpb.Message, protoreflect.FieldDescriptor, error) {
	msg := dynamicpb.NewMessage(desc)
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedPacket, err)
	}
	fd := msg.WhichOneof(desc.Oneofs().ByName("payload"))
	if fd == nil {
		return nil, nil, ErrUnknownPacket
	}
	return msg, fd, nil
}

func MarshalClientPacket(p ClientPacket) []byte {
	name, ok := clientPayloads[p.Kind]
	if !ok {
		return nil
	}

	msg := dynamicpb.NewMessage(clientPacketDesc)
	body := setMessage(msg, name)
	switch p.Kind {
	case ClientStartGame:
		set(body, "catalog_reference", protoreflect.ValueOfString(p.CatalogReference))
		set(body, "owner_id", protoreflect.ValueOfString(p.OwnerId))
	case ClientGuess:
		set(body, "text", protoreflect.ValueOfString(p.Text))
	case ClientRestartVote:
		set(body, "vote", protoreflect.ValueOfBool(p.Vote))
	}

	data, err := proto.Marshal(msg)
	if err != nil {
		return nil
	}
	return data
}

// UnmarshalClientPacket decodes a client message. The packet is a oneof:
// the last member on the wire wins.
func UnmarshalClientPacket(data []byte) (ClientPacket, error) {
	msg, fd, err := readPayload(data, clientPacketDesc)
	if err != nil {
		return ClientPacket{}, err
	}

	p := ClientPacket{Kind: clientKinds[fd.Name()]}
	body := msg.Get(fd).Message()
	switch p.Kind {
	case ClientStartGame:
		p.CatalogReference = get(body, "catalog_reference").String()
		p.OwnerId = get(body, "owner_id").String()
	case ClientGuess:
		p.Text = get(body, "text").String()
	case ClientRestartVote:
		p.Vote = get(body, "vote").Bool()
	}
	return p, nil
}

func MarshalServerPacket(p ServerPacket) []byte {
	name, ok := serverPayloads[p.Kind]
	if !ok {
		return nil
	}

	msg := dynamicpb.NewMessage(serverPacketDesc)
	body := setMessage(msg, name)
	switch p.Kind {
	case ServerSnapshot:
		writeSnapshot(body, p.Snapshot)
	case ServerError:
		set(body, "code", protoreflect.ValueOfString(p.ErrorCode))
	case ServerWelcome:
		set(body, "session_id", protoreflect.ValueOfString(p.SessionId))
		set(body, "player_id", protoreflect.ValueOfString(p.PlayerId))
	}
	set(msg, "server_timestamp", protoreflect.ValueOfInt64(p.ServerTimestamp))

	data, err := proto.Marshal(msg)
	if err != nil {
		return nil
	}
	return data
}

func UnmarshalServerPacket(data []byte) (ServerPacket, error) {
	msg, fd, err := readPayload(data, serverPacketDesc)
	if err != nil {
		return ServerPacket{}, err
	}

	p := ServerPacket{
		Kind:            serverKinds[fd.Name()],
		ServerTimestamp: get(msg, "server_timestamp").Int(),
	}
	body := msg.Get(fd).Message()
	switch p.Kind {
	case ServerSnapshot:
		p.Snapshot = readSnapshot(body)
	case ServerError:
		p.ErrorCode = get(body, "code").String()
	case ServerWelcome:
		p.SessionId = get(body, "session_id").String()
		p.PlayerId = get(body, "player_id").String()
	}
	return p, nil
}
