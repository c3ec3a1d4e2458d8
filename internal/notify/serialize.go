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

package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

func unescapeName(s string) string {
	return strings.ReplaceAll(s, "\x10", ";")
}

func escapeName(s string) string {
	return strings.ReplaceAll(s, ";", "\x10")
}

// parseUpdate decodes a "SENDER_ID;SEQ;JSON\n" line as written by
// formatUpdate. seq is the sender's monotonic per-Pipe counter, used by
// callers to drop stale or repeated deliveries of the same line. Every Push
// call takes a new seq, so an update that Peer.pushOrdered pushes again after
// a transient failure carries a higher seq and is not dropped.
func parseUpdate(s string) (senderID string, seq uint64, upd *Update, err error) {
	parts := strings.SplitN(s, ";", 3)
	if len(parts) != 3 {
		return "", 0, nil, errors.New("notify: mismatched parts count")
	}

	seq, err = strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return "", 0, nil, fmt.Errorf("notify: parseUpdate: bad seq: %w", err)
	}

	upd = &Update{}
	if err := json.Unmarshal([]byte(unescapeName(parts[2])), upd); err != nil {
		return "", 0, nil, fmt.Errorf("notify: parseUpdate: %w", err)
	}

	return parts[0], seq, upd, nil
}

func formatUpdate(senderID string, seq uint64, upd Update) (string, error) {
	blob, err := json.Marshal(upd)
	if err != nil {
		return "", fmt.Errorf("notify: formatUpdate: %w", err)
	}
	return strings.Join([]string{senderID, strconv.FormatUint(seq, 10), escapeName(string(blob))}, ";") + "\n", nil
}

// seqTracker dedups redeliveries of the same (sender, seq) pair across a
// Pipe's Listen side, keyed per sender so independent senders' counters
// don't interfere.
type seqTracker struct {
	mu   sync.Mutex
	last map[string]uint64
}

// seen reports whether seq from sender is a stale or duplicate redelivery
// (seq no greater than the highest already observed from sender), recording
// seq as the new high-water mark when it isn't.
func (s *seqTracker) seen(sender string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		s.last = make(map[string]uint64)
	}
	if seq <= s.last[sender] {
		return true
	}
	s.last[sender] = seq
	return false
}
