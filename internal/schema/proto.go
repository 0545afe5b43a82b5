package schema

import (
	"encoding/base64"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/tinytelemetry/dltscope/internal/model"
)

// ReadDescriptorSet reads a serialized FileDescriptorSet, as written by
// protoc --descriptor_set_out.
func ReadDescriptorSet(path string) (*descriptorpb.FileDescriptorSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read descriptor set: %w", err)
	}
	var fds descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(data, &fds); err != nil {
		return nil, fmt.Errorf("schema: parse descriptor set %s: %w", path, err)
	}
	return &fds, nil
}

// FromDescriptorSet registers a protobuf decoder for every message type in
// fds, nested messages included. Map entry types are skipped.
func FromDescriptorSet(fds *descriptorpb.FileDescriptorSet) (*Table, error) {
	files, err := protodesc.NewFiles(fds)
	if err != nil {
		return nil, fmt.Errorf("schema: build descriptors: %w", err)
	}

	t := NewTable()
	var regErr error
	files.RangeFiles(func(fd protoreflect.FileDescriptor) bool {
		regErr = registerMessages(t, fd.Messages())
		return regErr == nil
	})
	if regErr != nil {
		return nil, regErr
	}
	return t, nil
}

func registerMessages(t *Table, msgs protoreflect.MessageDescriptors) error {
	for i := 0; i < msgs.Len(); i++ {
		md := msgs.Get(i)
		if md.IsMapEntry() {
			continue
		}
		if err := t.Register(string(md.FullName()), ProtoDecoder(md)); err != nil {
			return err
		}
		if err := registerMessages(t, md.Messages()); err != nil {
			return err
		}
	}
	return nil
}

// ProtoDecoder returns a decoder for messages described by md.
//
// The result follows the protobuf JSON mapping with unpopulated fields
// emitted: keys are JSON names in declaration order, enums are names,
// bytes are base64 and 64-bit integers are decimal strings. Fields with
// explicit presence that are not set, such as singular sub-messages and
// oneof members, are left out.
func ProtoDecoder(md protoreflect.MessageDescriptor) Decoder {
	return func(body []byte) (model.Node, error) {
		msg := dynamicpb.NewMessage(md)
		if err := proto.Unmarshal(body, msg); err != nil {
			return model.Node{}, fmt.Errorf("schema: decode %s: %w", md.FullName(), err)
		}
		return messageNode(msg), nil
	}
}

func messageNode(m protoreflect.Message) model.Node {
	md := m.Descriptor()
	switch md.FullName() {
	case "google.protobuf.Timestamp":
		return timestampNode(m)
	case "google.protobuf.Duration":
		return durationNode(m)
	}

	fields := md.Fields()
	b := model.NewMapBuilder(fields.Len())
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if fd.HasPresence() && !m.Has(fd) {
			continue
		}
		b.Set(fd.JSONName(), fieldNode(fd, m.Get(fd)))
	}
	return b.Node()
}

func fieldNode(fd protoreflect.FieldDescriptor, v protoreflect.Value) model.Node {
	switch {
	case fd.IsList():
		l := v.List()
		items := make([]model.Node, l.Len())
		for i := range items {
			items[i] = singularNode(fd, l.Get(i))
		}
		return model.List(items...)
	case fd.IsMap():
		return mapNode(fd, v.Map())
	default:
		return singularNode(fd, v)
	}
}

func mapNode(fd protoreflect.FieldDescriptor, m protoreflect.Map) model.Node {
	type entry struct {
		key protoreflect.MapKey
		val protoreflect.Value
	}
	entries := make([]entry, 0, m.Len())
	m.Range(func(k protoreflect.MapKey, v protoreflect.Value) bool {
		entries = append(entries, entry{k, v})
		return true
	})
	sort.Slice(entries, func(i, j int) bool {
		return mapKeyLess(fd.MapKey().Kind(), entries[i].key, entries[j].key)
	})

	b := model.NewMapBuilder(len(entries))
	for _, e := range entries {
		b.Set(e.key.String(), singularNode(fd.MapValue(), e.val))
	}
	return b.Node()
}

func mapKeyLess(kind protoreflect.Kind, a, b protoreflect.MapKey) bool {
	switch kind {
	case protoreflect.BoolKind:
		return !a.Bool() && b.Bool()
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return a.Int() < b.Int()
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return a.Uint() < b.Uint()
	default:
		return a.String() < b.String()
	}
}

func singularNode(fd protoreflect.FieldDescriptor, v protoreflect.Value) model.Node {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return model.Scalar(v.Bool())
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return model.Scalar(v.Int())
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return model.Scalar(v.Uint())
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return model.Scalar(strconv.FormatInt(v.Int(), 10))
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return model.Scalar(strconv.FormatUint(v.Uint(), 10))
	case protoreflect.FloatKind:
		// Round-trip through the 32-bit representation so 0.1 stays 0.1.
		f, _ := strconv.ParseFloat(strconv.FormatFloat(v.Float(), 'g', -1, 32), 64)
		return model.Scalar(f)
	case protoreflect.DoubleKind:
		return model.Scalar(v.Float())
	case protoreflect.StringKind:
		return model.Scalar(v.String())
	case protoreflect.BytesKind:
		return model.Scalar(base64.StdEncoding.EncodeToString(v.Bytes()))
	case protoreflect.EnumKind:
		num := v.Enum()
		if ev := fd.Enum().Values().ByNumber(num); ev != nil {
			return model.Scalar(string(ev.Name()))
		}
		return model.Scalar(int64(num))
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return messageNode(v.Message())
	}
	return model.Scalar(nil)
}

func timestampNode(m protoreflect.Message) model.Node {
	fields := m.Descriptor().Fields()
	secs := m.Get(fields.ByName("seconds")).Int()
	nanos := m.Get(fields.ByName("nanos")).Int()
	return model.Scalar(time.Unix(secs, nanos).UTC().Format(time.RFC3339Nano))
}

func durationNode(m protoreflect.Message) model.Node {
	fields := m.Descriptor().Fields()
	secs := m.Get(fields.ByName("seconds")).Int()
	nanos := m.Get(fields.ByName("nanos")).Int()
	d := time.Duration(secs)*time.Second + time.Duration(nanos)
	return model.Scalar(strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "s")
}
