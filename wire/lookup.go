package wire

import (
	"fmt"

	"github.com/esrtp/overlay/topology"
)

// QueryKind distinguishes a lookup query's payload shape.
type QueryKind byte

// Lookup query kinds (spec.md §3).
const (
	KindNeighbors QueryKind = 0
	KindFile      QueryKind = 1
)

// AnswerStatus is the result of a lookup query.
type AnswerStatus byte

// Lookup answer statuses (spec.md §3).
const (
	StatusOk            AnswerStatus = 0
	StatusVideoNotFound AnswerStatus = 1
	StatusError         AnswerStatus = 2
)

// LookupQuery is flooded over the overlay as a single UDP datagram.
// AlreadyAsked is the loop-avoidance set: it grows monotonically as the
// query propagates, and is carried inside the message so it doubles as a
// network-wide visited set across concurrent flooding paths.
type LookupQuery struct {
	CorrelationID uint32
	Kind          QueryKind
	Filename      string // only meaningful for KindFile
	AlreadyAsked  []topology.Neighbor
}

// Encode serializes the query as a single UDP payload.
func (q *LookupQuery) Encode() []byte {
	var buf []byte
	buf = putUvarint(buf, uint64(q.CorrelationID))
	buf = append(buf, byte(q.Kind))
	if q.Kind == KindFile {
		buf = putString(buf, q.Filename)
		buf = putNeighbors(buf, q.AlreadyAsked)
	}
	return buf
}

// DecodeLookupQuery parses a UDP datagram into a LookupQuery.
func DecodeLookupQuery(data []byte) (*LookupQuery, error) {
	r := &byteReader{buf: data}

	id, err := getUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read correlation id: %w", err)
	}
	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("wire: read query kind: %w", err)
	}

	q := &LookupQuery{CorrelationID: uint32(id), Kind: QueryKind(kindByte)}
	if q.Kind == KindFile {
		q.Filename, err = getString(r)
		if err != nil {
			return nil, fmt.Errorf("wire: read query filename: %w", err)
		}
		q.AlreadyAsked, err = getNeighbors(r)
		if err != nil {
			return nil, fmt.Errorf("wire: read already-asked set: %w", err)
		}
	}
	return q, nil
}

// LookupAnswer is the reply to a LookupQuery, carrying either the
// responder's own neighbor list (KindNeighbors) or the reverse path to a
// serving node (KindFile).
type LookupAnswer struct {
	CorrelationID uint32
	Status        AnswerStatus
	Kind          QueryKind
	Path          []topology.Neighbor
}

// Encode serializes the answer as a single UDP payload.
func (a *LookupAnswer) Encode() []byte {
	var buf []byte
	buf = putUvarint(buf, uint64(a.CorrelationID))
	buf = append(buf, byte(a.Status))
	buf = append(buf, byte(a.Kind))
	buf = putNeighbors(buf, a.Path)
	return buf
}

// DecodeLookupAnswer parses a UDP datagram into a LookupAnswer.
func DecodeLookupAnswer(data []byte) (*LookupAnswer, error) {
	r := &byteReader{buf: data}

	id, err := getUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read correlation id: %w", err)
	}
	statusByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("wire: read status: %w", err)
	}
	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("wire: read kind: %w", err)
	}
	path, err := getNeighbors(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read path: %w", err)
	}

	return &LookupAnswer{
		CorrelationID: uint32(id),
		Status:        AnswerStatus(statusByte),
		Kind:          QueryKind(kindByte),
		Path:          path,
	}, nil
}
