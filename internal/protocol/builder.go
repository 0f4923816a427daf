package protocol

import (
	"encoding/json"
	"fmt"
)

// Builder assembles outbound packets.
type Builder struct {
	packet Packet
}

// NewBuilder starts a packet stamped with the given sender identity and address.
func NewBuilder(sender Sender, address string) *Builder {
	return &Builder{packet: Packet{
		Headers: map[string]string{
			HeaderSender:        string(sender),
			HeaderSenderAddress: address,
		},
		Args: make(map[string]string),
	}}
}

// Request sets the RequestName header.
func (b *Builder) Request(name string) *Builder {
	b.packet.Headers[HeaderRequestName] = name
	return b
}

// Arg sets a named argument from any printable value.
func (b *Builder) Arg(name string, v any) *Builder {
	b.packet.Args[name] = fmt.Sprint(v)
	return b
}

// Content appends a content entry.
func (b *Builder) Content(v any) *Builder {
	b.packet.Content = append(b.packet.Content, fmt.Sprint(v))
	return b
}

// JSON appends v encoded as JSON to the content list.
func (b *Builder) JSON(v any) *Builder {
	data, err := json.Marshal(v)
	if err != nil {
		return b.Content("null")
	}

	return b.Content(string(data))
}

// Success marks the packet Result=Success.
func (b *Builder) Success() *Builder {
	return b.Arg(ArgResult, ResultSuccess)
}

// Fail marks the packet Result=Failed with reason.
func (b *Builder) Fail(reason FailReason) *Builder {
	b.Arg(ArgResult, ResultFailed)
	return b.Arg(ArgFailReason, string(reason))
}

// Packet returns the assembled packet.
func (b *Builder) Packet() Packet {
	return b.packet
}
