// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/advisor/core"
)

// Serializers for persisted values. Each implements mus.Serializer.
var (
	VectorsMUS  = vectorsMUS{}
	ManifestMUS = manifestMUS{}
	MessageMUS  = messageMUS{}
)

var (
	_ mus.Serializer[[][]float32]   = VectorsMUS
	_ mus.Serializer[IndexManifest] = ManifestMUS
	_ mus.Serializer[core.Message]  = MessageMUS
)

// vectorsMUS encodes a vector matrix as count, dimension and count*dimension
// raw float32 values. All vectors must share the first vector's length.
type vectorsMUS struct{}

func (vectorsMUS) Marshal(v [][]float32, bs []byte) (n int) {
	dim := 0
	if len(v) > 0 {
		dim = len(v[0])
	}
	n = varint.Int.Marshal(len(v), bs)
	n += varint.Int.Marshal(dim, bs[n:])
	for _, vec := range v {
		for _, f := range vec {
			n += raw.Float32.Marshal(f, bs[n:])
		}
	}
	return n
}

func (vectorsMUS) Unmarshal(bs []byte) (v [][]float32, n int, err error) {
	count, n1, err := varint.Int.Unmarshal(bs)
	n += n1
	if err != nil {
		return nil, n, err
	}
	dim, n1, err := varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return nil, n, err
	}
	if count < 0 || dim < 0 {
		return nil, n, fmt.Errorf("%w: negative vector shape", ErrSerializationFailed)
	}
	if len(bs)-n < count*dim*raw.Float32.Size(0) {
		return nil, n, ErrTruncatedData
	}
	v = make([][]float32, count)
	for i := range v {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j], n1, err = raw.Float32.Unmarshal(bs[n:])
			n += n1
			if err != nil {
				return nil, n, err
			}
		}
		v[i] = vec
	}
	return v, n, nil
}

func (vectorsMUS) Size(v [][]float32) (size int) {
	dim := 0
	if len(v) > 0 {
		dim = len(v[0])
	}
	size = varint.Int.Size(len(v)) + varint.Int.Size(dim)
	return size + len(v)*dim*raw.Float32.Size(0)
}

func (s vectorsMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return n, err
}

type manifestMUS struct{}

func (manifestMUS) Marshal(v IndexManifest, bs []byte) (n int) {
	n = ord.String.Marshal(v.Identity, bs)
	n += varint.Int.Marshal(v.Dimension, bs[n:])
	n += varint.Int64.Marshal(v.BuiltAt.UnixMicro(), bs[n:])
	n += varint.Int.Marshal(len(v.ItemIDs), bs[n:])
	for _, id := range v.ItemIDs {
		n += ord.String.Marshal(id, bs[n:])
	}
	return n
}

func (manifestMUS) Unmarshal(bs []byte) (v IndexManifest, n int, err error) {
	var n1 int
	v.Identity, n1, err = ord.String.Unmarshal(bs)
	n += n1
	if err != nil {
		return v, n, err
	}
	v.Dimension, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return v, n, err
	}
	micros, n1, err := varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return v, n, err
	}
	v.BuiltAt = time.UnixMicro(micros).UTC()
	count, n1, err := varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return v, n, err
	}
	if count < 0 || count > len(bs)-n {
		return v, n, ErrTruncatedData
	}
	v.ItemIDs = make([]string, count)
	for i := range v.ItemIDs {
		v.ItemIDs[i], n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return v, n, err
		}
	}
	return v, n, nil
}

func (manifestMUS) Size(v IndexManifest) (size int) {
	size = ord.String.Size(v.Identity)
	size += varint.Int.Size(v.Dimension)
	size += varint.Int64.Size(v.BuiltAt.UnixMicro())
	size += varint.Int.Size(len(v.ItemIDs))
	for _, id := range v.ItemIDs {
		size += ord.String.Size(id)
	}
	return size
}

func (s manifestMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return n, err
}

type messageMUS struct{}

func (messageMUS) Marshal(v core.Message, bs []byte) (n int) {
	n = ord.String.Marshal(v.ID, bs)
	n += ord.String.Marshal(v.SessionID, bs[n:])
	n += ord.String.Marshal(string(v.Role), bs[n:])
	n += ord.String.Marshal(v.Content, bs[n:])
	n += varint.Int64.Marshal(v.Timestamp.UnixMicro(), bs[n:])
	return n
}

func (messageMUS) Unmarshal(bs []byte) (v core.Message, n int, err error) {
	fields := []*string{&v.ID, &v.SessionID, nil, &v.Content}
	for i, field := range fields {
		s, n1, err := ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return v, n, err
		}
		if i == 2 {
			v.Role = core.Role(s)
			continue
		}
		*field = s
	}
	micros, n1, err := varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return v, n, err
	}
	v.Timestamp = time.UnixMicro(micros).UTC()
	return v, n, nil
}

func (messageMUS) Size(v core.Message) (size int) {
	size = ord.String.Size(v.ID)
	size += ord.String.Size(v.SessionID)
	size += ord.String.Size(string(v.Role))
	size += ord.String.Size(v.Content)
	return size + varint.Int64.Size(v.Timestamp.UnixMicro())
}

func (s messageMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return n, err
}

// MarshalVectors serializes a vector matrix to bytes.
// Returns ErrSerializationFailed if vector lengths differ.
func MarshalVectors(vectors [][]float32) ([]byte, error) {
	for i, vec := range vectors {
		if len(vec) != len(vectors[0]) {
			return nil, fmt.Errorf("%w: vector %d has length %d, want %d",
				ErrSerializationFailed, i, len(vec), len(vectors[0]))
		}
	}
	buf := make([]byte, VectorsMUS.Size(vectors))
	VectorsMUS.Marshal(vectors, buf)
	return buf, nil
}

// UnmarshalVectors deserializes a vector matrix from bytes.
func UnmarshalVectors(data []byte) ([][]float32, error) {
	vectors, _, err := VectorsMUS.Unmarshal(data)
	return vectors, err
}

// MarshalManifest serializes an IndexManifest to bytes.
func MarshalManifest(manifest *IndexManifest) []byte {
	buf := make([]byte, ManifestMUS.Size(*manifest))
	ManifestMUS.Marshal(*manifest, buf)
	return buf
}

// UnmarshalManifest deserializes an IndexManifest from bytes.
func UnmarshalManifest(data []byte) (*IndexManifest, error) {
	manifest, _, err := ManifestMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &manifest, nil
}

// MarshalMessage serializes a Message to bytes.
func MarshalMessage(message *core.Message) []byte {
	buf := make([]byte, MessageMUS.Size(*message))
	MessageMUS.Marshal(*message, buf)
	return buf
}

// UnmarshalMessage deserializes a Message from bytes.
func UnmarshalMessage(data []byte) (*core.Message, error) {
	message, _, err := MessageMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &message, nil
}
