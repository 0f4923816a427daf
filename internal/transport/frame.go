// Package transport carries sealed packet frames between the service and its peers over WebSocket.
package transport

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Delivery is the delivery method announced by the first byte of every frame.
type Delivery byte

// Delivery methods.
const (
	ReliableOrdered Delivery = iota
	ReliableUnordered
	Sequenced
	Unreliable
)

func (d Delivery) String() string {
	switch d {
	case ReliableOrdered:
		return "ReliableOrdered"
	case ReliableUnordered:
		return "ReliableUnordered"
	case Sequenced:
		return "Sequenced"
	case Unreliable:
		return "Unreliable"
	default:
		return fmt.Sprintf("Delivery(%d)", byte(d))
	}
}

// Message is one opened inbound frame.
type Message struct {
	Payload  []byte
	Delivery Delivery
}

var (
	// ErrShortFrame is returned for frames too small to hold a header.
	ErrShortFrame = errors.New("frame too short")
	// ErrUnknownDelivery is returned for frames with an undefined delivery byte.
	ErrUnknownDelivery = errors.New("unknown delivery method")
	// ErrOpen is returned when a frame fails authentication.
	ErrOpen = errors.New("frame authentication failed")
)

// newSessionKey returns a fresh XChaCha20-Poly1305 key.
func newSessionKey() []byte {
	key := make([]byte, chacha20poly1305.KeySize)
	_, _ = rand.Read(key)

	return key
}

// newAEAD wraps a session key.
func newAEAD(key []byte) (cipher.AEAD, error) {
	return chacha20poly1305.NewX(key)
}

// seal builds [delivery][nonce][ciphertext]. The delivery byte is authenticated as additional data.
func seal(aead cipher.AEAD, d Delivery, payload []byte) []byte {
	header := 1 + aead.NonceSize()
	frame := make([]byte, header, header+len(payload)+aead.Overhead())
	frame[0] = byte(d)
	_, _ = rand.Read(frame[1:header])

	return aead.Seal(frame, frame[1:header], payload, frame[:1])
}

// open verifies and decrypts a frame produced by seal.
func open(aead cipher.AEAD, frame []byte) (Message, error) {
	header := 1 + aead.NonceSize()
	if len(frame) < header+aead.Overhead() {
		return Message{}, ErrShortFrame
	}

	d := Delivery(frame[0])
	if d > Unreliable {
		return Message{}, ErrUnknownDelivery
	}

	payload, err := aead.Open(nil, frame[1:header], frame[header:], frame[:1])
	if err != nil {
		return Message{}, errors.Join(ErrOpen, err)
	}

	return Message{Delivery: d, Payload: payload}, nil
}

// keyFrame is the one-time plaintext handshake frame carrying the session key.
func keyFrame(key []byte) []byte {
	return append([]byte{byte(ReliableOrdered)}, key...)
}

// parseKeyFrame extracts the session key from a handshake frame.
func parseKeyFrame(frame []byte) ([]byte, error) {
	if len(frame) != 1+chacha20poly1305.KeySize {
		return nil, ErrShortFrame
	}

	return frame[1:], nil
}
