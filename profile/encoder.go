package profile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	profileFormatVersionCurrent = 2
	// v1 records predate replay protection and carry no TOTP counter.
	profileFormatVersionV1 = 1

	maxBackupCodes = 255
)

// Encode serializes p into the flat binary record layout shared by the
// durable stores.
func Encode(p *Profile) ([]byte, error) {
	if p == nil {
		return nil, errors.New("nil profile")
	}
	if len(p.BackupCodes) > maxBackupCodes {
		return nil, errors.New("too many backup codes")
	}

	var buf bytes.Buffer
	buf.WriteByte(profileFormatVersionCurrent)

	for _, field := range []struct {
		name  string
		value string
	}{
		{"userID", p.UserID},
		{"activeSecret", p.ActiveSecret},
		{"pendingSecret", p.PendingSecret},
	} {
		if err := writeShortString(&buf, field.value); err != nil {
			return nil, fmt.Errorf("%s: %w", field.name, err)
		}
	}

	writeTime(&buf, p.PendingCreatedAt)
	writeBool(&buf, p.Enabled)

	if err := binary.Write(&buf, binary.BigEndian, int32(p.DeviceCount)); err != nil {
		return nil, err
	}
	writeTime(&buf, p.LastUsedAt)
	if err := binary.Write(&buf, binary.BigEndian, p.LastTOTPCounter); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, p.Version); err != nil {
		return nil, err
	}

	buf.WriteByte(byte(len(p.BackupCodes)))
	for _, code := range p.BackupCodes {
		if err := writeShortString(&buf, code.Code); err != nil {
			return nil, fmt.Errorf("backup code: %w", err)
		}
		if err := writeShortString(&buf, code.Hash); err != nil {
			return nil, fmt.Errorf("backup code hash: %w", err)
		}
		writeBool(&buf, code.Used)
		writeTime(&buf, code.UsedAt)
	}

	return buf.Bytes(), nil
}

// Decode parses a record produced by Encode, including older format versions.
func Decode(data []byte) (*Profile, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != profileFormatVersionCurrent && version != profileFormatVersionV1 {
		return nil, errors.New("invalid profile version")
	}

	p := &Profile{}
	if p.UserID, err = readShortString(reader); err != nil {
		return nil, err
	}
	if p.ActiveSecret, err = readShortString(reader); err != nil {
		return nil, err
	}
	if p.PendingSecret, err = readShortString(reader); err != nil {
		return nil, err
	}
	if p.PendingCreatedAt, err = readTime(reader); err != nil {
		return nil, err
	}
	if p.Enabled, err = readBool(reader); err != nil {
		return nil, err
	}

	var devices int32
	if err := binary.Read(reader, binary.BigEndian, &devices); err != nil {
		return nil, err
	}
	p.DeviceCount = int(devices)

	if p.LastUsedAt, err = readTime(reader); err != nil {
		return nil, err
	}
	if version == profileFormatVersionCurrent {
		if err := binary.Read(reader, binary.BigEndian, &p.LastTOTPCounter); err != nil {
			return nil, err
		}
	}
	if err := binary.Read(reader, binary.BigEndian, &p.Version); err != nil {
		return nil, err
	}

	count, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if count > 0 {
		p.BackupCodes = make([]BackupCode, count)
	}
	for i := range p.BackupCodes {
		c := &p.BackupCodes[i]
		if c.Code, err = readShortString(reader); err != nil {
			return nil, err
		}
		if c.Hash, err = readShortString(reader); err != nil {
			return nil, err
		}
		if c.Used, err = readBool(reader); err != nil {
			return nil, err
		}
		if c.UsedAt, err = readTime(reader); err != nil {
			return nil, err
		}
	}

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in profile record")
	}
	return p, nil
}

func writeShortString(buf *bytes.Buffer, s string) error {
	if len(s) > 255 {
		return errors.New("value too long")
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	return nil
}

func readShortString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return "", err
	}
	return string(out), nil
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
		return
	}
	buf.WriteByte(0)
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b == 1, nil
}

// Times are stored as Unix nanoseconds; 0 encodes the zero time.
func writeTime(buf *bytes.Buffer, t time.Time) {
	var n int64
	if !t.IsZero() {
		n = t.UnixNano()
	}
	_ = binary.Write(buf, binary.BigEndian, n)
}

func readTime(r *bytes.Reader) (time.Time, error) {
	var n int64
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return time.Time{}, err
	}
	if n == 0 {
		return time.Time{}, nil
	}
	return time.Unix(0, n).UTC(), nil
}
