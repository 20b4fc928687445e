package server

import (
	"encoding/json"

	"github.com/critdb/crit/internal/record"
	"github.com/critdb/crit/internal/transport"
)

// remoteOpPayload is the JSON body of a KindRemoteOp envelope, following the
// same encode-the-whole-message-as-JSON convention the gossip transport
// uses for its own envelopes.
type remoteOpPayload struct {
	Alias   Alias             `json:"alias"`
	Ref     string            `json:"ref"`
	ReplyTo transport.Address `json:"reply_to"`
	Kind    opKind            `json:"kind"`
	Records []record.Record   `json:"records,omitempty"`
	Keys    []any             `json:"keys,omitempty"`
}

func encodeRemoteOp(alias Alias, ref string, replyTo transport.Address, op operation) []byte {
	data, _ := json.Marshal(remoteOpPayload{
		Alias: alias, Ref: ref, ReplyTo: replyTo,
		Kind: op.kind, Records: op.records, Keys: op.keys,
	})
	return data
}

func decodeRemoteOp(data []byte) (remoteOpPayload, error) {
	var p remoteOpPayload
	err := json.Unmarshal(data, &p)
	return p, err
}

// ackPayload is the JSON body of a KindAck envelope.
type ackPayload struct {
	Ref  string            `json:"ref"`
	From transport.Address `json:"from"`
}

func encodeAck(ref string, from transport.Address) []byte {
	data, _ := json.Marshal(ackPayload{Ref: ref, From: from})
	return data
}

func decodeAck(data []byte) (ackPayload, error) {
	var p ackPayload
	err := json.Unmarshal(data, &p)
	return p, err
}

// checkServerPayload is the JSON body of a KindCheckServer envelope: an
// alias liveness probe sent by one peer to another.
type checkServerPayload struct {
	Source transport.Address `json:"source"`
	Mon    string            `json:"mon"`
	Dest   Alias             `json:"dest"`
	DumpRef string           `json:"dump_ref,omitempty"`
}

func encodeCheckServer(p checkServerPayload) []byte {
	data, _ := json.Marshal(p)
	return data
}

func decodeCheckServer(data []byte) (checkServerPayload, error) {
	var p checkServerPayload
	err := json.Unmarshal(data, &p)
	return p, err
}

type checkReplyPayload struct {
	Mon string `json:"mon"`
	OK  bool   `json:"ok"`
}

func encodeCheckReply(p checkReplyPayload) []byte {
	data, _ := json.Marshal(p)
	return data
}

func decodeCheckReply(data []byte) (checkReplyPayload, error) {
	var p checkReplyPayload
	err := json.Unmarshal(data, &p)
	return p, err
}
