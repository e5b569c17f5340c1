package singleinstance

import (
	"fmt"
	"strings"
)

const (
	residentHost = "127.0.0.1"
	pingRequest  = "PING\n"
	pongResponse = "PONG\n"

	verbTrigger = "TRIGGER"
	verbRunOnce = "RUNONCE"
	modeStdout  = "STDOUT"
	modeClip    = "CLIPBOARD"

	statusSuccess = "SUCCESS\n"
	statusError   = "ERROR\n"
)

// encodeRequest renders the request line: "TRIGGER <action>" or
// "RUNONCE <action> STDOUT|CLIPBOARD".
func encodeRequest(r Request) string {
	if r.Kind == RequestTrigger {
		return fmt.Sprintf("%s %s\n", verbTrigger, r.Action)
	}
	mode := modeClip
	if r.OutputToStdout {
		mode = modeStdout
	}
	return fmt.Sprintf("%s %s %s\n", verbRunOnce, r.Action, mode)
}

func parseRequest(line string) (Request, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Request{}, fmt.Errorf("malformed request %q", strings.TrimSpace(line))
	}
	switch fields[0] {
	case verbTrigger:
		return Request{Kind: RequestTrigger, Action: fields[1]}, nil
	case verbRunOnce:
		r := Request{Kind: RequestRunOnce, Action: fields[1]}
		if len(fields) > 2 {
			r.OutputToStdout = fields[2] == modeStdout
		}
		return r, nil
	}
	return Request{}, fmt.Errorf("unknown request verb %q", fields[0])
}
