package wire

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

const protoPackage = "cueword.v1"

type fieldProto = descriptorpb.FieldDescriptorProto

func scalar(name string, num int32, typ descriptorpb.FieldDescriptorProto_Type) *fieldProto {
	return &fieldProto{
		Name:   proto.String(name),
		Number: proto.Int32(num),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func str(name string, num int32) *fieldProto {
	return scalar(name, num, descriptorpb.FieldDescriptorProto_TYPE_STRING)
}

func i32(name string, num int32) *fieldProto {
	return scalar(name, num, descriptorpb.FieldDescriptorProto_TYPE_INT32)
}

func i64(name string, num int32) *fieldProto {
	return scalar(name, num, descriptorpb.FieldDescriptorProto_TYPE_INT64)
}

func boolean(name string, num int32) *fieldProto {
	return scalar(name, num, descriptorpb.FieldDescriptorProto_TYPE_BOOL)
}

func msgField(name string, num int32, typeName string) *fieldProto {
	f := scalar(name, num, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE)
	f.TypeName = proto.String("." + protoPackage + "." + typeName)
	return f
}

func repeated(f *fieldProto) *fieldProto {
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}

// payload puts fields into the message's first oneof.
func payload(fields ...*fieldProto) []*fieldProto {
	for _, f := range fields {
		f.OneofIndex = proto.Int32(0)
	}
	return fields
}

func message(name string, fields ...*fieldProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func packet(name string, fields ...*fieldProto) *descriptorpb.DescriptorProto {
	m := message(name, fields...)
	m.OneofDecl = []*descriptorpb.OneofDescriptorProto{{Name: proto.String("payload")}}
	return m
}

// schemaProto is the one definition of every message on the wire. Field
// numbers are never reused.
var schemaProto = &descriptorpb.FileDescriptorProto{
	Name:    proto.String("cueword.proto"),
	Package: proto.String(protoPackage),
	Syntax:  proto.String("proto3"),
	MessageType: []*descriptorpb.DescriptorProto{
		packet("ClientPacket", payload(
			msgField("start_game", 1, "StartGame"),
			msgField("guess", 2, "Guess"),
			msgField("pause", 3, "Pause"),
			msgField("resume", 4, "Resume"),
			msgField("restart_vote", 5, "RestartVote"),
			msgField("restart", 6, "Restart"),
			msgField("leave", 7, "Leave"),
		)...),
		message("StartGame", str("catalog_reference", 1), str("owner_id", 2)),
		message("Guess", str("text", 1)),
		message("Pause"),
		message("Resume"),
		message("RestartVote", boolean("vote", 1)),
		message("Restart"),
		message("Leave"),

		packet("ServerPacket", append(payload(
			msgField("snapshot", 1, "Snapshot"),
			msgField("wrong_guess", 2, "WrongGuess"),
			msgField("error", 3, "Error"),
			msgField("welcome", 4, "Welcome"),
		), i64("server_timestamp", 15))...),
		message("Snapshot",
			str("room_id", 1),
			scalar("seq", 2, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
			i32("phase", 3),
			i32("play_status", 4),
			i32("round", 5),
			i32("total_rounds", 6),
			i32("cycle", 7),
			i32("counter", 8),
			i64("remaining_ms", 9),
			str("key", 10),
			repeated(msgField("cues", 11, "CueFragment")),
			msgField("winner", 12, "Winner"),
			repeated(msgField("players", 13, "PlayerState")),
			i32("votes_for", 14),
			i32("votes_cast", 15),
			i64("scheduled_start_ms", 16),
		),
		message("CueFragment", i32("order", 1), str("text", 2), boolean("revealed", 3)),
		message("PlayerState",
			str("id", 1),
			str("display_name", 2),
			boolean("connected", 3),
			boolean("owner", 4),
			i32("round_score", 5),
			i32("cumulative_score", 6),
			i32("session_score", 7),
			boolean("voted", 8),
			boolean("vote", 9),
		),
		message("Winner", str("player_id", 1), str("display_name", 2), i32("points", 3)),
		message("WrongGuess"),
		message("Error", str("code", 1)),
		message("Welcome", str("session_id", 1), str("player_id", 2)),
	},
}

var (
	schema = mustFile(schemaProto)

	clientPacketDesc = schema.Messages().ByName("ClientPacket")
	serverPacketDesc = schema.Messages().ByName("ServerPacket")
)

func mustFile(fdp *descriptorpb.FileDescriptorProto) protoreflect.FileDescriptor {
	fd, err := protodesc.NewFile(fdp, new(protoregistry.Files))
	if err != nil {
		panic(fmt.Sprintf("wire: invalid schema: %v", err))
	}
	return fd
}

// Schema renders the wire messages as a .proto file for client code
// generators.
func Schema() string {
	var b strings.Builder
	b.WriteString("syntax = \"proto3\";\n\n")
	fmt.Fprintf(&b, "package %s;\n", schema.Package())

	msgs := schema.Messages()
	for i := range msgs.Len() {
		b.WriteString("\n")
		writeMessage(&b, msgs.Get(i))
	}
	return b.String()
}

func writeMessage(b *strings.Builder, md protoreflect.MessageDescriptor) {
	fields := md.Fields()
	if fields.Len() == 0 {
		fmt.Fprintf(b, "message %s {}\n", md.Name())
		return
	}

	fmt.Fprintf(b, "message %s {\n", md.Name())
	seen := make(map[protoreflect.Name]bool)
	for i := range fields.Len() {
		fd := fields.Get(i)
		od := fd.ContainingOneof()
		if od == nil {
			writeField(b, "  ", fd)
			continue
		}
		if seen[od.Name()] {
			continue
		}
		seen[od.Name()] = true

		fmt.Fprintf(b, "  oneof %s {\n", od.Name())
		for j := range od.Fields().Len() {
			writeField(b, "    ", od.Fields().Get(j))
		}
		b.WriteString("  }\n")
	}
	b.WriteString("}\n")
}

func writeField(b *strings.Builder, indent string, fd protoreflect.FieldDescriptor) {
	typ := fd.Kind().String()
	if md := fd.Message(); md != nil {
		typ = string(md.Name())
	}
	if fd.IsList() {
		typ = "repeated " + typ
	}
	fmt.Fprintf(b, "%s%s %s = %d;\n", indent, typ, fd.Name(), fd.Number())
}
