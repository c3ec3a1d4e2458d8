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

package append

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/boxkeep/boxkeep/framework/log"
)

// CalloutTimeout is the fixed per-delivery receive timeout of spec.md §4.4
// and §5; a timeout or parse error aborts the hook without failing the
// delivery, so it is never configurable.
const CalloutTimeout = 10 * time.Second

// CalloutRequest is the encoded (FILENAME, ANNOTATIONS, FLAGS, BODY, GUID)
// tuple sent to the annotation callout, per spec.md §4.4.
type CalloutRequest struct {
	Filename    string
	Annotations map[string]string
	Flags       []string
	Body        string
	GUID        string
}

// CalloutDirective is one parsed response line: either "+FLAG", "-FLAG", or
// "ANNOTATION key value".
type CalloutDirective struct {
	AddFlag    string
	RemoveFlag string
	Annotation string
	AnnotValue string
	IsAnnotate bool
}

// Callout invokes the annotation hook, either as a UNIX-domain service
// (SockPath set) or as a child process (Command set). Grounded on the
// teacher's internal/check/command.Check (line-oriented subprocess
// protocol over stdin/stdout) for the child-process transport, and on
// internal/notify.DeliveryNotifier's net.DialUnix usage for the
// socket transport — unlike the notifier, this is request/response so it
// dials a stream ("unix"), not a datagram ("unixgram"), socket.
type Callout struct {
	SockPath string
	Command  string
	Args     []string
	Log      log.Logger
}

// Run sends req and parses the directive response. Any failure — dial
// error, timeout, or malformed response — is reported as a nil slice: the
// caller applies no directives and continues the delivery unmodified, per
// spec.md §4.4's "timeout or parse error aborts the hook without failing
// the delivery". Actual transport/parse errors are logged for diagnosis.
func (c *Callout) Run(ctx context.Context, req CalloutRequest) []CalloutDirective {
	if c == nil || (c.SockPath == "" && c.Command == "") {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, CalloutTimeout)
	defer cancel()

	var out []byte
	var err error
	if c.SockPath != "" {
		out, err = c.runSocket(ctx, req)
	} else {
		out, err = c.runCommand(ctx, req)
	}
	if err != nil {
		calloutTotal.WithLabelValues("transport_error").Inc()
		c.Log.Error("annotation callout failed, continuing without directives", err)
		return nil
	}

	directives, perr := parseDirectives(out)
	if perr != nil {
		calloutTotal.WithLabelValues("parse_error").Inc()
		c.Log.Error("annotation callout response malformed, continuing without directives", perr)
		return nil
	}
	calloutTotal.WithLabelValues("ok").Inc()
	return directives
}

func (c *Callout) runSocket(ctx context.Context, req CalloutRequest) ([]byte, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "unix", c.SockPath)
	if err != nil {
		return nil, fmt.Errorf("append: dial callout socket: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(encodeRequest(req)); err != nil {
		return nil, fmt.Errorf("append: write callout request: %w", err)
	}
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(conn); err != nil {
		return nil, fmt.Errorf("append: read callout response: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Callout) runCommand(ctx context.Context, req CalloutRequest) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	cmd.Stdin = bytes.NewReader(encodeRequest(req))

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("append: run callout command: %w", err)
	}
	return out, nil
}

func encodeRequest(req CalloutRequest) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "FILENAME %s\n", req.Filename)
	fmt.Fprintf(&b, "GUID %s\n", req.GUID)
	fmt.Fprintf(&b, "FLAGS %s\n", strings.Join(req.Flags, " "))
	for k, v := range req.Annotations {
		fmt.Fprintf(&b, "ANNOTATION %s %s\n", k, v)
	}
	fmt.Fprintf(&b, "BODY %s\n", hex.EncodeToString([]byte(req.Body)))
	return b.Bytes()
}

// parseDirectives reads "+FLAG", "-FLAG" and "ANNOTATION key value" lines.
// Any other line is a parse error, matching the protocol's "response is a
// sequence of (+FLAGS|-FLAGS|ANNOTATION ...) directives" grammar.
func parseDirectives(out []byte) ([]CalloutDirective, error) {
	var directives []CalloutDirective

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+"):
			directives = append(directives, CalloutDirective{AddFlag: line[1:]})
		case strings.HasPrefix(line, "-"):
			directives = append(directives, CalloutDirective{RemoveFlag: line[1:]})
		case strings.HasPrefix(line, "ANNOTATION "):
			fields := strings.SplitN(strings.TrimPrefix(line, "ANNOTATION "), " ", 2)
			if len(fields) != 2 {
				return nil, fmt.Errorf("append: malformed ANNOTATION directive: %q", line)
			}
			directives = append(directives, CalloutDirective{IsAnnotate: true, Annotation: fields[0], AnnotValue: fields[1]})
		default:
			return nil, fmt.Errorf("append: unrecognised directive: %q", line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return directives, nil
}

// ApplyDirectives folds directives into flags and annotations, per spec.md
// §4.4. System-set annotations (annotations present before the callout ran)
// bypass ACL — that check happens at the caller, not here; ApplyDirectives
// only merges values.
func ApplyDirectives(flags []string, annotations map[string]string, directives []CalloutDirective) ([]string, map[string]string) {
	flagSet := make(map[string]bool, len(flags))
	for _, f := range flags {
		flagSet[f] = true
	}

	out := make(map[string]string, len(annotations))
	for k, v := range annotations {
		out[k] = v
	}

	for _, d := range directives {
		switch {
		case d.AddFlag != "":
			flagSet[d.AddFlag] = true
		case d.RemoveFlag != "":
			delete(flagSet, d.RemoveFlag)
		case d.IsAnnotate:
			out[d.Annotation] = d.AnnotValue
		}
	}

	newFlags := make([]string, 0, len(flagSet))
	for f := range flagSet {
		newFlags = append(newFlags, f)
	}
	return newFlags, out
}
