package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// CurrentSchemaVersion is the schema written by Encode.
const CurrentSchemaVersion = 1

func writeShortString(buf *bytes.Buffer, name, v string) error {
	if len(v) > 255 {
		return fmt.Errorf("%s too long", name)
	}
	buf.WriteByte(byte(len(v)))
	buf.WriteString(v)
	return nil
}

func readShortString(reader *bytes.Reader) (string, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// Encode serializes s in the current schema.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(CurrentSchemaVersion)

	if err := writeShortString(&buf, "userID", s.UserID); err != nil {
		return nil, err
	}
	if err := writeShortString(&buf, "role", s.Role); err != nil {
		return nil, err
	}
	if err := writeShortString(&buf, "state", s.State); err != nil {
		return nil, err
	}
	if err := writeShortString(&buf, "tokenID", s.TokenID); err != nil {
		return nil, err
	}

	buf.Write(s.RefreshHash[:])

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a blob written by Encode.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != CurrentSchemaVersion {
		return nil, fmt.Errorf("unsupported session schema version %d", version)
	}

	s := &Session{SchemaVersion: version}

	if s.UserID, err = readShortString(reader); err != nil {
		return nil, err
	}
	if s.Role, err = readShortString(reader); err != nil {
		return nil, err
	}
	if s.State, err = readShortString(reader); err != nil {
		return nil, err
	}
	if s.TokenID, err = readShortString(reader); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(reader, s.RefreshHash[:]); err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in session blob")
	}
	return s, nil
}
