/*
boxkeep mailbox registry and storage engine.
Copyright © 2024 boxkeep contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package mboxstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

const (
	headerMagic        = uint32(0x626b6831) // "bkh1"
	headerGeneration   = uint32(1)
	headerMinorVersion = uint32(1)
	// MaxFlagNames bounds the user-flag vocabulary per spec.md §3.
	MaxFlagNames = 128
)

// Header is the fixed-layout per-mailbox header of spec.md §3/§6: ACL,
// uniqueid, the user-flag vocabulary, option bits and quota root, plus the
// numeric bookkeeping fields (last_uid, highestmodseq, counters, ...).
type Header struct {
	Generation      uint32
	MinorVersion    uint32
	ExistsCount     uint32
	LastUID         uint32
	QuotaUsed       uint64
	LastAppendDate  int64
	UIDValidity     uint32
	DeletedCount    uint32
	AnsweredCount   uint32
	FlaggedCount    uint32
	Options         uint32
	POP3LastLogin   int64
	HighestModSeq   uint64

	ACL       string
	UniqueID  string
	QuotaRoot string
	FlagNames []string
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// encode serialises h to its on-disk byte-exact form: a fixed numeric
// block, the variable ACL/uniqueid/quota-root/flag-name trailer, and a
// trailing CRC32 over everything before it.
func (h Header) encode() ([]byte, error) {
	var buf bytes.Buffer

	fields := []interface{}{
		headerMagic, h.Generation, h.MinorVersion,
		h.ExistsCount, h.LastUID, h.QuotaUsed, h.LastAppendDate,
		h.UIDValidity, h.DeletedCount, h.AnsweredCount, h.FlaggedCount,
		h.Options, h.POP3LastLogin, h.HighestModSeq,
	}
	for _, f := range fields {
		if err := binary.Write(&buf, binary.BigEndian, f); err != nil {
			return nil, err
		}
	}

	if err := writeString(&buf, h.ACL); err != nil {
		return nil, err
	}
	if err := writeString(&buf, h.UniqueID); err != nil {
		return nil, err
	}
	if err := writeString(&buf, h.QuotaRoot); err != nil {
		return nil, err
	}
	if len(h.FlagNames) > MaxFlagNames {
		return nil, fmt.Errorf("mboxstore: %d flag names exceeds limit of %d", len(h.FlagNames), MaxFlagNames)
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(h.FlagNames))); err != nil {
		return nil, err
	}
	for _, fn := range h.FlagNames {
		if err := writeString(&buf, fn); err != nil {
			return nil, err
		}
	}

	sum := crc32.ChecksumIEEE(buf.Bytes())
	if err := binary.Write(&buf, binary.BigEndian, sum); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// ErrHeaderCorrupt is returned by decodeHeader when the trailing CRC32
// does not match, per spec.md §4.3's open-time invariant.
var ErrHeaderCorrupt = fmt.Errorf("mboxstore: header CRC mismatch")

func decodeHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < 4 {
		return h, ErrHeaderCorrupt
	}

	body, wantSum := data[:len(data)-4], binary.BigEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(body) != wantSum {
		return h, ErrHeaderCorrupt
	}

	r := bytes.NewReader(body)

	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return h, err
	}
	if magic != headerMagic {
		return h, ErrHeaderCorrupt
	}

	fields := []interface{}{
		&h.Generation, &h.MinorVersion,
		&h.ExistsCount, &h.LastUID, &h.QuotaUsed, &h.LastAppendDate,
		&h.UIDValidity, &h.DeletedCount, &h.AnsweredCount, &h.FlaggedCount,
		&h.Options, &h.POP3LastLogin, &h.HighestModSeq,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return h, err
		}
	}

	var err error
	if h.ACL, err = readString(r); err != nil {
		return h, err
	}
	if h.UniqueID, err = readString(r); err != nil {
		return h, err
	}
	if h.QuotaRoot, err = readString(r); err != nil {
		return h, err
	}

	var nFlags uint32
	if err := binary.Read(r, binary.BigEndian, &nFlags); err != nil {
		return h, err
	}
	h.FlagNames = make([]string, nFlags)
	for i := range h.FlagNames {
		if h.FlagNames[i], err = readString(r); err != nil {
			return h, err
		}
	}

	return h, nil
}

func writeHeaderFile(path string, h Header) error {
	data, err := h.encode()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func readHeaderFile(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	return decodeHeader(data)
}
